// Package run drives the tool-calling loop: it decodes the upstream event
// stream, dispatches events to the sink, executes function calls, and feeds
// their outputs back into the next request.
package run

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// RunEventType discriminates the events a decoded stream produces.
type RunEventType int

const (
	RunEventTextDelta RunEventType = iota
	RunEventReasoningSummary
	RunEventOutputItem
	RunEventCompleted
	RunEventError
)

// Source discriminators attached to OutputItem events.
const (
	ItemEventAdded      = "response.output_item.added"
	ItemEventDone       = "response.output_item.done"
	ItemEventAnnotation = "response.output_text.annotation.added"
)

// RunEvent is one decoded stream event. Which fields are populated depends
// on Type.
type RunEvent struct {
	Type RunEventType

	// TextDelta
	Delta string

	// ReasoningSummary
	Summary string

	// OutputItem
	Item      *api.Item
	ItemEvent string

	// Completed
	Output []api.Item
	Usage  api.Usage

	// Error
	Message string
}

// frame is the superset of fields the decoder reads from a wire frame.
type frame struct {
	Type    string `json:"type"`
	Delta   string `json:"delta"`
	Text    string `json:"text"`
	Message string `json:"message"`

	Item       json.RawMessage `json:"item"`
	Annotation json.RawMessage `json:"annotation"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error"`

	Response struct {
		Output []api.Item `json:"output"`
		Usage  api.Usage  `json:"usage"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
}

// Decoder turns a raw SSE byte stream into RunEvents. It is single-use: a
// fresh Decoder must be created per stream.
type Decoder struct {
	r    io.Reader
	buf  []byte
	done bool
}

// NewDecoder creates a decoder reading SSE frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next event. It returns io.EOF when the stream ends,
// either through the [DONE] sentinel or reader exhaustion. A malformed JSON
// payload in a complete frame is fatal and surfaces as a decode error.
//
// Bytes buffered after a [DONE] sentinel are never parsed. A trailing
// partial line stays buffered until a newline completes it.
func (d *Decoder) Next() (*RunEvent, error) {
	if d.done {
		return nil, io.EOF
	}

	readBuf := make([]byte, 4096)
	for {
		// Drain complete lines from the buffer first.
		for {
			idx := bytes.IndexByte(d.buf, '\n')
			if idx < 0 {
				break
			}
			line := string(bytes.TrimRight(d.buf[:idx], "\r"))
			d.buf = d.buf[idx+1:]

			payload, ok := dataPayload(line)
			if !ok {
				continue
			}
			if payload == "[DONE]" {
				d.done = true
				return nil, io.EOF
			}
			ev, err := mapFrame([]byte(payload))
			if err != nil {
				d.done = true
				return nil, err
			}
			if ev != nil {
				return ev, nil
			}
		}

		n, err := d.r.Read(readBuf)
		if n > 0 {
			d.buf = append(d.buf, readBuf[:n]...)
			continue
		}
		if err != nil {
			d.done = true
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, api.NewDecodeError(fmt.Sprintf("reading stream: %s", err.Error()), err)
		}
	}
}

// dataPayload extracts the payload of a "data:" line. Blank lines, comment
// lines, and any other SSE fields yield ok=false.
func dataPayload(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	rest, found := strings.CutPrefix(line, "data:")
	if !found {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// mapFrame maps one JSON frame to zero or one RunEvent.
func mapFrame(data []byte) (*RunEvent, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, api.NewDecodeError(fmt.Sprintf("malformed frame: %s", err.Error()), err)
	}

	switch {
	case strings.HasSuffix(f.Type, ".output_text.delta"):
		if f.Delta == "" {
			return nil, nil
		}
		return &RunEvent{Type: RunEventTextDelta, Delta: f.Delta}, nil

	case strings.HasSuffix(f.Type, ".reasoning_summary_text.done"):
		if strings.TrimSpace(f.Text) == "" {
			return nil, nil
		}
		return &RunEvent{Type: RunEventReasoningSummary, Summary: f.Text}, nil

	case strings.HasSuffix(f.Type, ".output_item.added"),
		strings.HasSuffix(f.Type, ".output_item.done"):
		item, err := api.ItemFromRaw(f.Item)
		if err != nil {
			return nil, api.NewDecodeError(fmt.Sprintf("malformed output item: %s", err.Error()), err)
		}
		itemEvent := ItemEventDone
		if strings.HasSuffix(f.Type, ".added") {
			itemEvent = ItemEventAdded
		}
		return &RunEvent{Type: RunEventOutputItem, Item: &item, ItemEvent: itemEvent}, nil

	case strings.HasSuffix(f.Type, ".output_text.annotation.added"):
		item, err := api.ItemFromRaw(f.Annotation)
		if err != nil {
			return nil, api.NewDecodeError(fmt.Sprintf("malformed annotation: %s", err.Error()), err)
		}
		return &RunEvent{Type: RunEventOutputItem, Item: &item, ItemEvent: ItemEventAnnotation}, nil

	case strings.HasSuffix(f.Type, ".completed"):
		return &RunEvent{
			Type:   RunEventCompleted,
			Output: f.Response.Output,
			Usage:  f.Response.Usage,
		}, nil

	case strings.HasSuffix(f.Type, ".error"), strings.HasSuffix(f.Type, ".failed"):
		msg := f.Message
		if f.Error != nil && f.Error.Message != "" {
			msg = f.Error.Message
		}
		if f.Response.Error != nil && f.Response.Error.Message != "" {
			msg = f.Response.Error.Message
		}
		if msg == "" {
			msg = "upstream reported an error"
		}
		return &RunEvent{Type: RunEventError, Message: msg}, nil

	default:
		return nil, nil
	}
}

// DecodeBatch maps a complete non-streaming response payload to the event
// sequence an equivalent stream would have produced: one TextDelta per
// output_text block of message items, one OutputItem per non-message item,
// then exactly one Completed.
func DecodeBatch(payload []byte) ([]RunEvent, error) {
	var resp struct {
		Output []api.Item `json:"output"`
		Usage  api.Usage  `json:"usage"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, api.NewDecodeError(fmt.Sprintf("malformed response payload: %s", err.Error()), err)
	}

	var events []RunEvent
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type == "message" {
			for _, block := range item.Content {
				if block.Type == "output_text" && block.Text != "" {
					events = append(events, RunEvent{Type: RunEventTextDelta, Delta: block.Text})
				}
			}
			continue
		}
		events = append(events, RunEvent{Type: RunEventOutputItem, Item: item, ItemEvent: ItemEventDone})
	}

	events = append(events, RunEvent{
		Type:   RunEventCompleted,
		Output: resp.Output,
		Usage:  resp.Usage,
	})
	return events, nil
}
