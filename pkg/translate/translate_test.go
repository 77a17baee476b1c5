package translate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/marker"
)

// fakeStore serves canned payloads and records fetches.
type fakeStore struct {
	items   map[string]json.RawMessage
	fetched [][]string
}

func (s *fakeStore) Persist(context.Context, string, []marker.StoredItem) error { return nil }

func (s *fakeStore) Fetch(_ context.Context, _ string, ids []string, _ string) (map[string]json.RawMessage, error) {
	s.fetched = append(s.fetched, ids)
	out := map[string]json.RawMessage{}
	for _, id := range ids {
		if p, ok := s.items[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *fakeStore) Close() {}

func textMessage(role, text string) api.Message {
	return api.Message{Role: role, Content: api.MessageContent{Text: text}}
}

func baseRequest(messages ...api.Message) *api.CompletionsRequest {
	return &api.CompletionsRequest{
		Model:    "gpt-4.1",
		Messages: messages,
		User:     "user-1",
	}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestTranslateDropsDenylistedFields(t *testing.T) {
	req := baseRequest(textMessage("user", "hi"))
	req.FrequencyPenalty = floatPtr(0.5)
	req.Seed = intPtr(42)

	tr := New(nil, nil)
	out, dropped, err := tr.Translate(context.Background(), req, Context{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if len(dropped) != 2 {
		t.Fatalf("dropped = %v, want 2 diagnostics", dropped)
	}
	got := map[string]bool{}
	for _, d := range dropped {
		got[d] = true
	}
	if !got["frequency_penalty"] || !got["seed"] {
		t.Errorf("dropped = %v", dropped)
	}

	data, _ := json.Marshal(out)
	for _, field := range []string{"frequency_penalty", "seed"} {
		if strings.Contains(string(data), field) {
			t.Errorf("translated request still carries %q: %s", field, data)
		}
	}
}

func TestTranslateRemapsFields(t *testing.T) {
	req := baseRequest(textMessage("user", "hi"))
	req.MaxTokens = intPtr(256)
	req.ReasoningEffort = "low"
	req.Temperature = floatPtr(0.7)

	tr := New(nil, nil)
	out, _, err := tr.Translate(context.Background(), req, Context{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if out.MaxOutputTokens == nil || *out.MaxOutputTokens != 256 {
		t.Errorf("max_output_tokens = %v", out.MaxOutputTokens)
	}
	if out.Reasoning == nil || out.Reasoning.Effort != "low" {
		t.Errorf("reasoning = %+v", out.Reasoning)
	}
	if out.Temperature == nil || *out.Temperature != 0.7 {
		t.Errorf("temperature = %v", out.Temperature)
	}
}

func TestTranslateInstructionsLastSystemWins(t *testing.T) {
	req := baseRequest(
		textMessage("system", "first prompt"),
		textMessage("user", "hi"),
		textMessage("system", "second prompt"),
	)

	tr := New(nil, nil)
	out, _, err := tr.Translate(context.Background(), req, Context{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if out.Instructions != "second prompt" {
		t.Errorf("instructions = %q", out.Instructions)
	}
	if len(out.Input) != 1 || out.Input[0].Role != "user" {
		t.Errorf("input = %+v, system messages must not survive", out.Input)
	}
}

func TestTranslateUserBlocks(t *testing.T) {
	content := api.MessageContent{}
	blocksJSON := `[
		{"type": "text", "text": "look at this"},
		{"type": "image_url", "image_url": {"url": "https://img.example/x.png", "detail": "high"}},
		{"type": "input_file", "file_id": "file-1"},
		{"type": "vendor_block", "payload": {"x": 1}}
	]`
	if err := json.Unmarshal([]byte(blocksJSON), &content.Blocks); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	req := baseRequest(api.Message{Role: "user", Content: content})
	tr := New(nil, nil)
	out, _, err := tr.Translate(context.Background(), req, Context{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	blocks := out.Input[0].Content
	if len(blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(blocks))
	}
	if blocks[0].Type != "input_text" || blocks[0].Text != "look at this" {
		t.Errorf("text block = %+v", blocks[0])
	}
	if blocks[1].Type != "input_image" || blocks[1].ImageURL != "https://img.example/x.png" || blocks[1].Detail != "high" {
		t.Errorf("image block = %+v", blocks[1])
	}
	if blocks[2].Type != "input_file" || blocks[2].FileID != "file-1" {
		t.Errorf("file block = %+v", blocks[2])
	}

	raw, _ := json.Marshal(blocks[3])
	if !strings.Contains(string(raw), `"vendor_block"`) || !strings.Contains(string(raw), `"x":1`) {
		t.Errorf("unknown block mangled: %s", raw)
	}
}

func TestTranslateDeveloperPassthrough(t *testing.T) {
	req := baseRequest(textMessage("developer", "keep the tone formal"))
	tr := New(nil, nil)
	out, _, err := tr.Translate(context.Background(), req, Context{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out.Input) != 1 || out.Input[0].Role != "developer" {
		t.Errorf("input = %+v", out.Input)
	}
}

func TestTranslateAssistantMarkers(t *testing.T) {
	const id = "01HZXW8K9M2P4Q6R"
	store := &fakeStore{items: map[string]json.RawMessage{
		id: json.RawMessage(`{"type":"function_call","call_id":"c1","name":"echo","arguments":"{}"}`),
	}}

	m := marker.New("function_call", id).WithModel("gpt-4.1")
	text := "before" + m.Wrapped() + "after"
	req := baseRequest(
		textMessage("user", "hi"),
		textMessage("assistant", text),
	)

	tr := New(store, nil)
	out, _, err := tr.Translate(context.Background(), req, Context{ChatID: "chat-1"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	// user message + text, restored item, text
	if len(out.Input) != 4 {
		t.Fatalf("input = %d items: %+v", len(out.Input), out.Input)
	}
	if out.Input[1].Content[0].Text != "before" || out.Input[3].Content[0].Text != "after" {
		t.Errorf("literal segments = %+v", out.Input)
	}
	restored := out.Input[2]
	if restored.Type != "function_call" || restored.CallID != "c1" {
		t.Errorf("restored item = %+v", restored)
	}
}

func TestTranslateUnresolvableMarkerDropped(t *testing.T) {
	m := marker.New("reasoning", "0000000000000000")
	req := baseRequest(textMessage("assistant", "keep"+m.Wrapped()))

	tr := New(&fakeStore{}, nil)
	out, _, err := tr.Translate(context.Background(), req, Context{ChatID: "chat-1"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out.Input) != 1 {
		t.Fatalf("input = %+v, want only the literal text", out.Input)
	}
	if out.Input[0].Content[0].Text != "keep" {
		t.Errorf("text = %q", out.Input[0].Content[0].Text)
	}
}

func TestTranslateAssistantPlainText(t *testing.T) {
	req := baseRequest(textMessage("assistant", "previous answer"))
	tr := New(nil, nil)
	out, _, err := tr.Translate(context.Background(), req, Context{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	item := out.Input[0]
	if item.Role != "assistant" || item.Content[0].Type != "output_text" || item.Content[0].Text != "previous answer" {
		t.Errorf("item = %+v", item)
	}
}

func TestTranslateAliasDefaults(t *testing.T) {
	// Explicit effort survives the alias overlay.
	req := baseRequest(textMessage("user", "hi"))
	req.Model = "gpt-5-thinking-high"
	req.ReasoningEffort = "low"

	tr := New(nil, nil)
	out, _, err := tr.Translate(context.Background(), req, Context{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Model != "gpt-5" {
		t.Errorf("model = %q", out.Model)
	}
	if out.Reasoning == nil || out.Reasoning.Effort != "low" {
		t.Errorf("reasoning = %+v, explicit value must win", out.Reasoning)
	}

	// Without an explicit effort the alias default fills the gap.
	req = baseRequest(textMessage("user", "hi"))
	req.Model = "gpt-5-thinking-high"
	out, _, err = tr.Translate(context.Background(), req, Context{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Reasoning == nil || out.Reasoning.Effort != "high" {
		t.Errorf("reasoning = %+v, want alias default", out.Reasoning)
	}
}

func TestTranslateMissingIdentity(t *testing.T) {
	req := baseRequest(textMessage("user", "hi"))
	req.User = ""

	tr := New(nil, nil)
	_, _, err := tr.Translate(context.Background(), req, Context{})

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}

	// Explicit context identity satisfies the requirement.
	if _, _, err := tr.Translate(context.Background(), req, Context{UserID: "u-2"}); err != nil {
		t.Errorf("Translate with context identity: %v", err)
	}
}

func TestTranslateUnsupportedRole(t *testing.T) {
	req := baseRequest(textMessage("tool", "output"))
	tr := New(nil, nil)
	if _, _, err := tr.Translate(context.Background(), req, Context{}); err == nil {
		t.Error("unsupported role accepted")
	}
}
