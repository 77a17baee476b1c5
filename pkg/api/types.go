package api

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Completions side (inbound)
// ---------------------------------------------------------------------------

// CompletionsRequest is the legacy chat-completions request shape accepted on
// the inbound side. Fields the Responses API does not understand are still
// parsed so translation can report each drop individually.
type CompletionsRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
	User     string    `json:"user,omitempty"`

	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`

	// Unsupported upstream. Never forwarded.
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	LogitBias        json.RawMessage `json:"logit_bias,omitempty"`
	Logprobs         *bool           `json:"logprobs,omitempty"`
	TopLogprobs      *int            `json:"top_logprobs,omitempty"`
	N                *int            `json:"n,omitempty"`
	Stop             json.RawMessage `json:"stop,omitempty"`
	ResponseFormat   json.RawMessage `json:"response_format,omitempty"`
	Suffix           string          `json:"suffix,omitempty"`
	StreamOptions    json.RawMessage `json:"stream_options,omitempty"`
	Audio            json.RawMessage `json:"audio,omitempty"`
	FunctionCall     json.RawMessage `json:"function_call,omitempty"`
	Functions        json.RawMessage `json:"functions,omitempty"`
	Tools            json.RawMessage `json:"tools,omitempty"`
	ExtraTools       json.RawMessage `json:"extra_tools,omitempty"`
}

// Message is a single role-tagged chat message. Content is either a plain
// string or a list of content blocks.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
	Name    string         `json:"name,omitempty"`
}

// MessageContent holds either flat text or structured content blocks.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
}

// IsBlocks reports whether the content arrived as a block list.
func (c MessageContent) IsBlocks() bool {
	return c.Blocks != nil
}

// Plain returns the textual content: the flat string, or the concatenation
// of all text blocks.
func (c MessageContent) Plain() string {
	if c.Blocks == nil {
		return c.Text
	}
	var out string
	for _, b := range c.Blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// MarshalJSON serializes as a string or a block array, matching the shape
// the content arrived in.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts both the string and the block-array form.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &c.Blocks); err != nil {
		return fmt.Errorf("content must be a string or an array: %w", err)
	}
	if c.Blocks == nil {
		c.Blocks = []ContentBlock{}
	}
	return nil
}

// ContentBlock is one structured content part of a chat message. Unknown
// block types keep their raw bytes and round-trip untouched.
type ContentBlock struct {
	Type     string
	Text     string
	ImageURL *ImageRef
	FileID   string
	Filename string
	FileData string

	raw json.RawMessage
}

// ImageRef carries an image reference for image_url blocks.
type ImageRef struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Raw returns the block's original bytes, if it was decoded from JSON.
func (b ContentBlock) Raw() json.RawMessage {
	return b.raw
}

// MarshalJSON emits the typed form for known block types and the original
// bytes for everything else.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case "text":
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})
	case "image_url":
		return json.Marshal(struct {
			Type     string    `json:"type"`
			ImageURL *ImageRef `json:"image_url"`
		}{b.Type, b.ImageURL})
	case "input_file":
		return json.Marshal(struct {
			Type     string `json:"type"`
			FileID   string `json:"file_id,omitempty"`
			Filename string `json:"filename,omitempty"`
			FileData string `json:"file_data,omitempty"`
		}{b.Type, b.FileID, b.Filename, b.FileData})
	}
	if b.raw != nil {
		return b.raw, nil
	}
	return json.Marshal(struct {
		Type string `json:"type"`
	}{b.Type})
}

// UnmarshalJSON keeps the raw bytes and parses the fields of known types.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	b.raw = append(json.RawMessage(nil), data...)
	var w struct {
		Type     string    `json:"type"`
		Text     string    `json:"text"`
		ImageURL *ImageRef `json:"image_url"`
		FileID   string    `json:"file_id"`
		Filename string    `json:"filename"`
		FileData string    `json:"file_data"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Type = w.Type
	b.Text = w.Text
	b.ImageURL = w.ImageURL
	b.FileID = w.FileID
	b.Filename = w.Filename
	b.FileData = w.FileData
	return nil
}

// ---------------------------------------------------------------------------
// Responses side (outbound)
// ---------------------------------------------------------------------------

// ResponsesRequest is the request body posted to the Responses API. Input is
// appended to between tool-call rounds; everything else is set once during
// translation and pre-flight.
type ResponsesRequest struct {
	Model           string           `json:"model"`
	Input           []Item           `json:"input"`
	Instructions    string           `json:"instructions,omitempty"`
	Stream          bool             `json:"stream,omitempty"`
	Store           *bool            `json:"store,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
	Reasoning       *ReasoningConfig `json:"reasoning,omitempty"`
	Text            *TextConfig      `json:"text,omitempty"`
	Tools           []ToolSpec       `json:"tools,omitempty"`
	ToolChoice      string           `json:"tool_choice,omitempty"`
	Truncation      string           `json:"truncation,omitempty"`
	MaxToolCalls    *int             `json:"max_tool_calls,omitempty"`
	User            string           `json:"user,omitempty"`
	Include         []string         `json:"include,omitempty"`
}

// ReasoningConfig controls reasoning effort and summary emission.
type ReasoningConfig struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// TextConfig controls output text generation.
type TextConfig struct {
	Verbosity string `json:"verbosity,omitempty"`
}

// ToolSpec is one entry of the request tool list. Function tools carry a
// name and parameter schema; server-side tools (web_search, mcp) carry their
// own configuration fields.
type ToolSpec struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`

	// web_search
	SearchContextSize string          `json:"search_context_size,omitempty"`
	UserLocation      json.RawMessage `json:"user_location,omitempty"`

	// mcp
	ServerLabel     string          `json:"server_label,omitempty"`
	ServerURL       string          `json:"server_url,omitempty"`
	RequireApproval json.RawMessage `json:"require_approval,omitempty"`
	AllowedTools    json.RawMessage `json:"allowed_tools,omitempty"`
	Headers         json.RawMessage `json:"headers,omitempty"`
}

// Item is one structured input or output item. Items decoded from the wire
// keep their raw bytes so they re-serialize byte-faithfully when appended to
// the next request's input or persisted; items built locally marshal from
// their typed fields.
type Item struct {
	Type   string
	ID     string
	Status string

	// message
	Role    string
	Content []OutputBlock

	// function_call / function_call_output
	CallID    string
	Name      string
	Arguments string
	Output    string

	// web_search_call
	Action *WebSearchAction

	// annotation (url_citation)
	Title string
	URL   string

	// reasoning
	EncryptedContent string

	raw json.RawMessage
}

// OutputBlock is one content part of a message-type item, covering both the
// output blocks the model produces and the input blocks the bridge builds.
type OutputBlock struct {
	Type        string          `json:"type"`
	Text        string          `json:"text,omitempty"`
	Annotations json.RawMessage `json:"annotations,omitempty"`

	// input_image / input_file
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`

	raw json.RawMessage
}

// RawBlock wraps pre-serialized block bytes so foreign block types survive
// translation unchanged.
func RawBlock(data json.RawMessage) OutputBlock {
	var b OutputBlock
	_ = json.Unmarshal(data, &struct {
		Type *string `json:"type"`
	}{&b.Type})
	b.raw = append(json.RawMessage(nil), data...)
	return b
}

// MarshalJSON re-emits wrapped raw bytes and marshals typed blocks normally.
func (b OutputBlock) MarshalJSON() ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	type plain OutputBlock
	return json.Marshal(plain(b))
}

// UnmarshalJSON keeps the original bytes alongside the parsed fields.
func (b *OutputBlock) UnmarshalJSON(data []byte) error {
	type plain OutputBlock
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = OutputBlock(p)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

// WebSearchAction describes the action attached to a web_search_call item.
type WebSearchAction struct {
	Type    string            `json:"type,omitempty"`
	Query   string            `json:"query,omitempty"`
	Sources []WebSearchSource `json:"sources,omitempty"`
}

// WebSearchSource is one retrieved source of a web search action.
type WebSearchSource struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Raw returns the item's original wire bytes, or nil for locally built items.
func (it Item) Raw() json.RawMessage {
	return it.raw
}

// MarshalJSON re-emits decoded items byte-faithfully and builds the flat wire
// shape for locally constructed ones.
func (it Item) MarshalJSON() ([]byte, error) {
	if it.raw != nil {
		return it.raw, nil
	}
	switch it.Type {
	case "message":
		content := it.Content
		if content == nil {
			content = []OutputBlock{}
		}
		return json.Marshal(struct {
			Type    string        `json:"type"`
			Role    string        `json:"role"`
			Content []OutputBlock `json:"content"`
		}{it.Type, it.Role, content})
	case "function_call":
		return json.Marshal(struct {
			Type      string `json:"type"`
			CallID    string `json:"call_id"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}{it.Type, it.CallID, it.Name, it.Arguments})
	case "function_call_output":
		return json.Marshal(struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		}{it.Type, it.CallID, it.Output})
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
	}{it.Type, it.ID})
}

// UnmarshalJSON keeps the raw bytes and parses the flat fields shared by the
// item types the bridge inspects.
func (it *Item) UnmarshalJSON(data []byte) error {
	it.raw = append(json.RawMessage(nil), data...)
	var w struct {
		Type             string           `json:"type"`
		ID               string           `json:"id"`
		Status           string           `json:"status"`
		Role             string           `json:"role"`
		Content          []OutputBlock    `json:"content"`
		CallID           string           `json:"call_id"`
		Name             string           `json:"name"`
		Arguments        string           `json:"arguments"`
		Output           string           `json:"output"`
		Action           *WebSearchAction `json:"action"`
		Title            string           `json:"title"`
		URL              string           `json:"url"`
		EncryptedContent string           `json:"encrypted_content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	it.Type = w.Type
	it.ID = w.ID
	it.Status = w.Status
	it.Role = w.Role
	it.Content = w.Content
	it.CallID = w.CallID
	it.Name = w.Name
	it.Arguments = w.Arguments
	it.Output = w.Output
	it.Action = w.Action
	it.Title = w.Title
	it.URL = w.URL
	it.EncryptedContent = w.EncryptedContent
	return nil
}

// ItemFromRaw wraps already-serialized item bytes, parsing the flat fields.
func ItemFromRaw(data json.RawMessage) (Item, error) {
	var it Item
	if err := it.UnmarshalJSON(data); err != nil {
		return Item{}, err
	}
	return it, nil
}

// NewUserTextItem builds a user message item with a single input_text block.
func NewUserTextItem(text string) Item {
	return Item{
		Type:    "message",
		Role:    "user",
		Content: []OutputBlock{{Type: "input_text", Text: text}},
	}
}

// NewAssistantTextItem builds an assistant message item with a single
// output_text block.
func NewAssistantTextItem(text string) Item {
	return Item{
		Type:    "message",
		Role:    "assistant",
		Content: []OutputBlock{{Type: "output_text", Text: text}},
	}
}

// NewFunctionCallOutput builds a function_call_output record for a call id.
func NewFunctionCallOutput(callID, output string) Item {
	return Item{Type: "function_call_output", CallID: callID, Output: output}
}
