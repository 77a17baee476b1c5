// Package translate converts inbound Chat Completions requests into
// Responses API requests: unsupported fields are stripped, the system prompt
// becomes instructions, messages become input items, markers in assistant
// turns are resolved back to their stored structured items, and model
// aliases expand to their base model with default parameters.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/capability"
	"github.com/bruecke-ai/bruecke/pkg/marker"
)

// Context identifies the caller of one translation.
type Context struct {
	// UserID identifies the caller. Falls back to the request's user field.
	UserID string

	// ChatID scopes marker resolution to the conversation.
	ChatID string
}

// Translator holds the collaborators translation needs.
type Translator struct {
	store marker.Store
	log   *slog.Logger
}

// New creates a translator. store may be nil, in which case markers in
// assistant messages are dropped instead of resolved.
func New(store marker.Store, log *slog.Logger) *Translator {
	if log == nil {
		log = slog.Default()
	}
	return &Translator{store: store, log: log}
}

// Translate builds the Responses API request for one inbound call. The
// second return value lists the request fields that were dropped because the
// target API does not support them; each is also logged.
func (t *Translator) Translate(ctx context.Context, req *api.CompletionsRequest, tc Context) (*api.ResponsesRequest, []string, error) {
	user := tc.UserID
	if user == "" {
		user = req.User
	}
	if user == "" {
		return nil, nil, api.NewValidationError("user", "caller identity is required")
	}

	dropped := t.droppedFields(req)

	out := &api.ResponsesRequest{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		User:        user,
	}
	if req.MaxTokens != nil {
		out.MaxOutputTokens = req.MaxTokens
	}
	if req.ReasoningEffort != "" {
		out.Reasoning = &api.ReasoningConfig{Effort: req.ReasoningEffort}
	}

	instructions, input, err := t.convertMessages(ctx, req.Messages, req.Model, tc.ChatID)
	if err != nil {
		return nil, dropped, err
	}
	out.Instructions = instructions
	out.Input = input

	if err := expandAlias(out); err != nil {
		return nil, dropped, err
	}
	return out, dropped, nil
}

// droppedFields strips the denylist, logging one diagnostic per present
// field.
func (t *Translator) droppedFields(req *api.CompletionsRequest) []string {
	var dropped []string
	drop := func(name string, present bool) {
		if present {
			dropped = append(dropped, name)
			t.log.Warn("dropping unsupported request field", "field", name)
		}
	}
	drop("frequency_penalty", req.FrequencyPenalty != nil)
	drop("presence_penalty", req.PresencePenalty != nil)
	drop("seed", req.Seed != nil)
	drop("logit_bias", req.LogitBias != nil)
	drop("logprobs", req.Logprobs != nil)
	drop("top_logprobs", req.TopLogprobs != nil)
	drop("n", req.N != nil)
	drop("stop", req.Stop != nil)
	drop("response_format", req.ResponseFormat != nil)
	drop("suffix", req.Suffix != "")
	drop("stream_options", req.StreamOptions != nil)
	drop("audio", req.Audio != nil)
	drop("function_call", req.FunctionCall != nil)
	drop("functions", req.Functions != nil)
	drop("tools", req.Tools != nil)
	drop("extra_tools", req.ExtraTools != nil)
	return dropped
}

// convertMessages turns the message list into instructions plus input items.
// The last system message wins as instructions; every system message leaves
// the list.
func (t *Translator) convertMessages(ctx context.Context, messages []api.Message, model, chatID string) (string, []api.Item, error) {
	instructions := ""
	for _, m := range messages {
		if m.Role == "system" {
			instructions = m.Content.Plain()
		}
	}

	var input []api.Item
	for _, m := range messages {
		switch m.Role {
		case "system":
			// Consumed as instructions.
		case "assistant":
			items, err := t.convertAssistant(ctx, m, chatID)
			if err != nil {
				return "", nil, err
			}
			input = append(input, items...)
		case "user", "developer":
			input = append(input, convertUserMessage(m))
		default:
			return "", nil, api.NewTranslationError(fmt.Sprintf("unsupported message role %q", m.Role))
		}
	}
	return instructions, input, nil
}

// convertUserMessage maps a user or developer message to one input item.
// Unknown block types pass through unchanged.
func convertUserMessage(m api.Message) api.Item {
	if !m.Content.IsBlocks() {
		return api.Item{
			Type:    "message",
			Role:    m.Role,
			Content: []api.OutputBlock{{Type: "input_text", Text: m.Content.Plain()}},
		}
	}

	blocks := make([]api.OutputBlock, 0, len(m.Content.Blocks))
	for _, b := range m.Content.Blocks {
		switch b.Type {
		case "text":
			blocks = append(blocks, api.OutputBlock{Type: "input_text", Text: b.Text})
		case "image_url":
			ob := api.OutputBlock{Type: "input_image"}
			if b.ImageURL != nil {
				ob.ImageURL = b.ImageURL.URL
				ob.Detail = b.ImageURL.Detail
			}
			blocks = append(blocks, ob)
		case "input_file", "file":
			blocks = append(blocks, api.OutputBlock{
				Type:     "input_file",
				FileID:   b.FileID,
				Filename: b.Filename,
				FileData: b.FileData,
			})
		default:
			blocks = append(blocks, api.RawBlock(b.Raw()))
		}
	}
	return api.Item{Type: "message", Role: m.Role, Content: blocks}
}

// convertAssistant maps an assistant message to input items. Markers split
// the text; each resolved marker is replayed as its original structured
// item, and unresolvable markers are silently dropped.
func (t *Translator) convertAssistant(ctx context.Context, m api.Message, chatID string) ([]api.Item, error) {
	text := m.Content.Plain()
	if !marker.Contains(text) {
		if text == "" {
			return nil, nil
		}
		return []api.Item{api.NewAssistantTextItem(text)}, nil
	}

	segments := marker.Split(text)
	resolved := t.resolveMarkers(ctx, segments, chatID)

	var items []api.Item
	for _, seg := range segments {
		if seg.Marker == nil {
			if seg.Text != "" {
				items = append(items, api.NewAssistantTextItem(seg.Text))
			}
			continue
		}
		payload, ok := resolved[seg.Marker.ID]
		if !ok {
			t.log.Debug("dropping unresolvable marker", "kind", seg.Marker.Kind, "id", seg.Marker.ID)
			continue
		}
		item, err := api.ItemFromRaw(payload)
		if err != nil {
			t.log.Warn("stored marker payload unreadable, dropping", "id", seg.Marker.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// resolveMarkers fetches the stored payloads for all marker segments,
// grouped by the model id each marker was persisted under.
func (t *Translator) resolveMarkers(ctx context.Context, segments []marker.Segment, chatID string) map[string]json.RawMessage {
	resolved := map[string]json.RawMessage{}
	if t.store == nil {
		return resolved
	}

	byModel := map[string][]string{}
	for _, seg := range segments {
		if seg.Marker != nil {
			model := seg.Marker.Model()
			byModel[model] = append(byModel[model], seg.Marker.ID)
		}
	}
	for model, ids := range byModel {
		payloads, err := t.store.Fetch(ctx, chatID, ids, model)
		if err != nil {
			t.log.Warn("marker lookup failed", "error", err)
			continue
		}
		for id, p := range payloads {
			resolved[id] = p
		}
	}
	return resolved
}

// expandAlias substitutes the canonical base model and overlays the alias's
// default parameters. Values the caller set explicitly always win.
func expandAlias(req *api.ResponsesRequest) error {
	defaults := capability.AliasDefaults(req.Model)
	req.Model = capability.BaseModel(req.Model)
	if defaults == nil {
		return nil
	}

	data, err := json.Marshal(req)
	if err != nil {
		return api.NewServerError(fmt.Sprintf("merging alias defaults: %s", err.Error()))
	}
	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err != nil {
		return api.NewServerError(fmt.Sprintf("merging alias defaults: %s", err.Error()))
	}

	merged, err := json.Marshal(capability.Overlay(asMap, defaults))
	if err != nil {
		return api.NewServerError(fmt.Sprintf("merging alias defaults: %s", err.Error()))
	}
	var out api.ResponsesRequest
	if err := json.Unmarshal(merged, &out); err != nil {
		return api.NewServerError(fmt.Sprintf("merging alias defaults: %s", err.Error()))
	}
	*req = out
	return nil
}
