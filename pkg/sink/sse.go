package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// writerState tracks the state of an SSE sink.
type writerState int

const (
	writerIdle      writerState = iota // no writes yet
	writerStreaming                    // at least one frame written
	writerCompleted                    // final done frame sent
)

// SSE delivers run events to an HTTP client as server-sent
// chat.completion.chunk frames. Message notifications become content deltas
// computed against the last cumulative value; status, citation, and
// notification events ride along as typed auxiliary frames.
type SSE struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	model string
	id    string

	mu    sync.Mutex
	state writerState
	sent  string // content already delivered
}

var _ EventSink = (*SSE)(nil)

// NewSSE creates an SSE sink writing chunks tagged with the given model id.
func NewSSE(w http.ResponseWriter, model string) *SSE {
	return &SSE{
		w:     w,
		rc:    http.NewResponseController(w),
		model: model,
		id:    "chatcmpl-" + uuid.NewString(),
	}
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   api.Usage     `json:"usage,omitempty"`
	Error   *api.APIError `json:"error,omitempty"`
}

// auxFrame carries non-content notifications alongside the chunk stream.
type auxFrame struct {
	Object      string `json:"object"`
	Description string `json:"description,omitempty"`
	Document    string `json:"document,omitempty"`
	Source      string `json:"source,omitempty"`
	Level       Level  `json:"level,omitempty"`
	Text        string `json:"text,omitempty"`
}

func (s *SSE) Message(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := content
	if len(s.sent) <= len(content) && content[:len(s.sent)] == s.sent {
		delta = content[len(s.sent):]
	}
	if delta == "" {
		return nil
	}
	s.sent = content

	return s.writeFrame(chunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   s.model,
		Choices: []chunkChoice{{Delta: chunkDelta{Content: delta}}},
	})
}

func (s *SSE) Status(ctx context.Context, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFrame(auxFrame{Object: "bridge.status", Description: description})
}

func (s *SSE) Citation(ctx context.Context, document, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFrame(auxFrame{Object: "bridge.citation", Document: document, Source: source})
}

func (s *SSE) Notification(ctx context.Context, level Level, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFrame(auxFrame{Object: "bridge.notification", Level: level, Text: text})
}

// Completion writes a usage-bearing chunk; the Done completion additionally
// carries the finish reason and is followed by the [DONE] sentinel.
func (s *SSE) Completion(ctx context.Context, comp Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return nil
	}

	c := chunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   s.model,
		Choices: []chunkChoice{{}},
		Usage:   comp.Usage,
		Error:   comp.Error,
	}
	if comp.Done {
		reason := "stop"
		c.Choices[0].FinishReason = &reason
	}
	if err := s.writeFrame(c); err != nil {
		return err
	}

	if comp.Done {
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			return fmt.Errorf("writing [DONE]: %w", err)
		}
		if err := s.rc.Flush(); err != nil {
			return fmt.Errorf("flushing [DONE]: %w", err)
		}
		s.state = writerCompleted
	}
	return nil
}

// writeFrame serializes one payload as a data frame and flushes it.
// Must be called with s.mu held.
func (s *SSE) writeFrame(payload any) error {
	if s.state == writerCompleted {
		return errors.New("cannot write frame: stream is completed")
	}
	if s.state == writerIdle {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.state = writerStreaming
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing frame: %w", err)
	}
	return nil
}
