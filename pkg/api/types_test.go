package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageContentStringForm(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Content.IsBlocks() {
		t.Error("string content reported as blocks")
	}
	if m.Content.Plain() != "hello" {
		t.Errorf("Plain() = %q, want %q", m.Content.Plain(), "hello")
	}

	out, err := json.Marshal(m.Content)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"hello"` {
		t.Errorf("marshal = %s, want %q", out, `"hello"`)
	}
}

func TestMessageContentBlockForm(t *testing.T) {
	raw := `{"role":"user","content":[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"https://x/img.png"}}]}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !m.Content.IsBlocks() {
		t.Fatal("block content not recognized")
	}
	if len(m.Content.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(m.Content.Blocks))
	}
	if m.Content.Blocks[1].ImageURL == nil || m.Content.Blocks[1].ImageURL.URL != "https://x/img.png" {
		t.Errorf("image block not parsed: %+v", m.Content.Blocks[1])
	}
	if m.Content.Plain() != "a" {
		t.Errorf("Plain() = %q, want %q", m.Content.Plain(), "a")
	}
}

func TestContentBlockUnknownTypeRoundTrips(t *testing.T) {
	raw := `{"type":"input_audio","input_audio":{"data":"...","format":"wav"}}`
	var b ContentBlock
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Errorf("round trip = %s, want %s", out, raw)
	}
}

func TestItemRawRoundTrip(t *testing.T) {
	raw := `{"type":"function_call","id":"fc_1","call_id":"call_1","name":"echo","arguments":"{\"value\":\"hi\"}","vendor_field":{"a":1}}`
	it, err := ItemFromRaw([]byte(raw))
	if err != nil {
		t.Fatalf("ItemFromRaw: %v", err)
	}
	if it.Type != "function_call" || it.CallID != "call_1" || it.Name != "echo" {
		t.Errorf("flat fields not parsed: %+v", it)
	}

	out, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Decoded items re-serialize byte-faithfully, vendor fields included.
	if string(out) != raw {
		t.Errorf("round trip = %s, want %s", out, raw)
	}
}

func TestLocalItemsMarshalFlat(t *testing.T) {
	out, err := json.Marshal(NewFunctionCallOutput("call_9", "echo:hi"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"function_call_output","call_id":"call_9","output":"echo:hi"}`
	if string(out) != want {
		t.Errorf("marshal = %s, want %s", out, want)
	}

	out, err = json.Marshal(NewAssistantTextItem("hello"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"role":"assistant"`) || !strings.Contains(string(out), `"output_text"`) {
		t.Errorf("assistant item = %s", out)
	}
}

func TestNewMarkerID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := NewMarkerID()
		if !ValidateMarkerID(id) {
			t.Fatalf("invalid marker id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate marker id %q", id)
		}
		seen[id] = true
	}
	if ValidateMarkerID("abcdefghijklmnop") {
		t.Error("lowercase id accepted")
	}
	if ValidateMarkerID("0123456789ABCDEF0") {
		t.Error("17-char id accepted")
	}
}
