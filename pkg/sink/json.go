package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// JSON buffers run events and writes one chat.completion body when the
// final Done completion arrives. Intermediate statuses and citations are
// dropped; the transcript and usage come from the completion payload.
type JSON struct {
	w     http.ResponseWriter
	model string

	mu      sync.Mutex
	content string
	written bool
}

var _ EventSink = (*JSON)(nil)

// NewJSON creates a buffering sink for non-streaming requests.
func NewJSON(w http.ResponseWriter, model string) *JSON {
	return &JSON{w: w, model: model}
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChoice struct {
	Index        int               `json:"index"`
	Message      completionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type completionBody struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   api.Usage          `json:"usage,omitempty"`
}

func (j *JSON) Message(_ context.Context, content string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.content = content
	return nil
}

func (j *JSON) Status(context.Context, string) error { return nil }

func (j *JSON) Citation(context.Context, string, string) error { return nil }

func (j *JSON) Notification(context.Context, Level, string) error { return nil }

func (j *JSON) Completion(_ context.Context, comp Completion) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !comp.Done || j.written {
		return nil
	}
	j.written = true

	if comp.Error != nil {
		j.w.Header().Set("Content-Type", "application/json")
		j.w.WriteHeader(comp.Error.HTTPStatus())
		return json.NewEncoder(j.w).Encode(api.ErrorResponse{Error: comp.Error})
	}

	content := comp.Content
	if content == "" {
		content = j.content
	}

	body := completionBody{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   j.model,
		Choices: []completionChoice{{
			Message:      completionMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: comp.Usage,
	}

	j.w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(j.w).Encode(body); err != nil {
		return fmt.Errorf("encoding completion body: %w", err)
	}
	return nil
}
