// Package sink defines where run side effects go: partial transcripts,
// status lines, citations, and the final completion. The orchestrator only
// talks to the EventSink interface; HTTP delivery lives in the SSE and JSON
// implementations.
package sink

import (
	"context"
	"sync"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// Level grades a toast-style notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Completion is the payload of a completion notification. Content and Usage
// are cumulative; Done marks the single final notification of a call.
type Completion struct {
	Content string
	Usage   api.Usage
	Error   *api.APIError
	Done    bool
}

// EventSink receives run side effects in dispatch order.
type EventSink interface {
	// Message delivers the transcript so far. Content is cumulative, so a
	// consumer can always render the latest value instead of applying diffs.
	Message(ctx context.Context, content string) error

	// Status delivers a transient progress description.
	Status(ctx context.Context, description string) error

	// Citation delivers a referenced document with its source name.
	Citation(ctx context.Context, document, source string) error

	// Completion delivers cumulative usage and, when Done, ends the call.
	Completion(ctx context.Context, comp Completion) error

	// Notification delivers a leveled toast-style message.
	Notification(ctx context.Context, level Level, text string) error
}

// CapturedEvent records one sink call for inspection in tests.
type CapturedEvent struct {
	Kind        string // "message", "status", "citation", "completion", "notification"
	Content     string
	Description string
	Document    string
	Source      string
	Completion  Completion
	Level       Level
	Text        string
}

// Capture is an EventSink that records every notification.
type Capture struct {
	mu     sync.Mutex
	Events []CapturedEvent
}

var _ EventSink = (*Capture)(nil)

func (c *Capture) record(e CapturedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, e)
}

func (c *Capture) Message(_ context.Context, content string) error {
	c.record(CapturedEvent{Kind: "message", Content: content})
	return nil
}

func (c *Capture) Status(_ context.Context, description string) error {
	c.record(CapturedEvent{Kind: "status", Description: description})
	return nil
}

func (c *Capture) Citation(_ context.Context, document, source string) error {
	c.record(CapturedEvent{Kind: "citation", Document: document, Source: source})
	return nil
}

func (c *Capture) Completion(_ context.Context, comp Completion) error {
	c.record(CapturedEvent{Kind: "completion", Completion: comp})
	return nil
}

func (c *Capture) Notification(_ context.Context, level Level, text string) error {
	c.record(CapturedEvent{Kind: "notification", Level: level, Text: text})
	return nil
}

// ByKind returns the captured events of one kind, in order.
func (c *Capture) ByKind(kind string) []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CapturedEvent
	for _, e := range c.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event, or nil when none were captured.
func (c *Capture) Last() *CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Events) == 0 {
		return nil
	}
	e := c.Events[len(c.Events)-1]
	return &e
}
