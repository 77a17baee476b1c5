package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/capability"
	"github.com/bruecke-ai/bruecke/pkg/marker"
	"github.com/bruecke-ai/bruecke/pkg/observability"
	"github.com/bruecke-ai/bruecke/pkg/sessionlog"
	"github.com/bruecke-ai/bruecke/pkg/sink"
	"github.com/bruecke-ai/bruecke/pkg/tools"
)

// DefaultMaxLoops bounds the tool-calling loop when no limit is configured.
const DefaultMaxLoops = 10

// PersistReasoningConversation persists reasoning items into the transcript
// via markers so later turns can restore them.
const PersistReasoningConversation = "conversation"

// Transport submits translated requests to the backend. The upstream client
// implements it.
type Transport interface {
	Stream(ctx context.Context, req *api.ResponsesRequest) (io.ReadCloser, error)
	Invoke(ctx context.Context, req *api.ResponsesRequest) ([]byte, error)
}

// Options carries the per-deployment policy knobs of the loop.
type Options struct {
	// MaxLoops bounds the number of round-trips. Zero means DefaultMaxLoops.
	MaxLoops int

	// PersistToolResults persists tool calls and non-message output items
	// through the marker store so they survive into the next turn.
	PersistToolResults bool

	// PersistReasoning persists reasoning items when set to
	// PersistReasoningConversation. Any other value drops them.
	PersistReasoning string

	// ChatID scopes persisted markers to the conversation.
	ChatID string

	// SessionLog, when set, is flushed to the sink as a citation at the end
	// of the run.
	SessionLog *sessionlog.Buffer
}

// Orchestrator drives one run: submit, decode, dispatch, execute tools,
// resubmit, until the model stops calling tools or the loop limit hits.
type Orchestrator struct {
	transport Transport
	store     marker.Store
	opts      Options
	log       *slog.Logger
}

// New creates an orchestrator. store may be nil, which disables marker
// persistence.
func New(transport Transport, store marker.Store, opts Options, log *slog.Logger) *Orchestrator {
	if opts.MaxLoops <= 0 {
		opts.MaxLoops = DefaultMaxLoops
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{transport: transport, store: store, opts: opts, log: log}
}

// runState is the mutable state of one run.
type runState struct {
	req          *api.ResponsesRequest
	transcript   string
	usage        api.Usage
	pendingCalls []api.Item
	completed    bool
	termErr      *api.APIError
	fill         *fillers
	turns        int
}

// Run executes the loop and returns the final transcript. Transport and
// decode failures are returned as errors; upstream-reported errors and the
// loop limit are graceful stops that still return the accumulated
// transcript. Exactly one done=true completion reaches the sink on every
// exit path. The registry is never mutated.
func (o *Orchestrator) Run(ctx context.Context, req *api.ResponsesRequest, reg *tools.Registry, snk sink.EventSink) (final string, err error) {
	st := &runState{req: req, usage: api.Usage{}}
	defer o.finish(ctx, st, snk, &err)

	for turn := 0; turn < o.opts.MaxLoops; turn++ {
		st.turns++
		if err = o.runTurn(ctx, st, snk); err != nil {
			return st.transcript, err
		}
		if st.termErr != nil {
			return st.transcript, nil
		}
		if !st.completed {
			st.termErr = api.NewUpstreamError("stream ended without a completion")
			_ = snk.Notification(ctx, sink.LevelError, st.termErr.Message)
			return st.transcript, nil
		}
		if !capability.Supports(capability.FeatureFunctionCalling, st.req.Model) {
			return st.transcript, nil
		}
		if len(st.pendingCalls) == 0 {
			return st.transcript, nil
		}

		_ = snk.Status(ctx, "Running tools: "+callNames(st.pendingCalls))
		outputs := tools.Invoke(ctx, st.pendingCalls, reg, o.log)
		if len(outputs) == 0 {
			return st.transcript, nil
		}
		if o.opts.PersistToolResults {
			exchange := append(append([]api.Item{}, st.pendingCalls...), outputs...)
			o.persistItems(ctx, st, snk, exchange)
		}
		st.req.Input = append(st.req.Input, outputs...)
	}

	o.log.Warn("loop limit reached, returning partial result", "max_loops", o.opts.MaxLoops)
	return st.transcript, nil
}

// finish emits the single terminal completion and flushes the session log.
func (o *Orchestrator) finish(ctx context.Context, st *runState, snk sink.EventSink, errp *error) {
	comp := sink.Completion{Content: st.transcript, Usage: st.usage, Done: true}
	if *errp != nil {
		var apiErr *api.APIError
		if !errors.As(*errp, &apiErr) {
			apiErr = api.NewServerError((*errp).Error())
		}
		comp.Error = apiErr
	} else if st.termErr != nil {
		comp.Error = st.termErr
	}
	_ = snk.Completion(ctx, comp)

	if buf := o.opts.SessionLog; buf != nil && !buf.Empty() {
		_ = snk.Citation(ctx, buf.Flush(), "session log")
	}
	observability.LoopTurns.Observe(float64(st.turns))
}

// runTurn performs one submission and consumes its event sequence.
func (o *Orchestrator) runTurn(ctx context.Context, st *runState, snk sink.EventSink) error {
	st.completed = false
	st.pendingCalls = nil

	if capability.Supports(capability.FeatureReasoning, st.req.Model) {
		st.fill = startFillers(ctx, snk)
	}
	defer func() {
		st.fill.Cancel()
		st.fill = nil
	}()

	if !st.req.Stream {
		payload, err := o.transport.Invoke(ctx, st.req)
		if err != nil {
			return err
		}
		events, err := DecodeBatch(payload)
		if err != nil {
			return err
		}
		for i := range events {
			if o.dispatch(ctx, st, &events[i], snk) {
				break
			}
		}
		return nil
	}

	body, err := o.transport.Stream(ctx, st.req)
	if err != nil {
		return err
	}
	defer body.Close()

	dec := NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if o.dispatch(ctx, st, ev, snk) {
			return nil
		}
	}
}

// dispatch applies one event to the run state. A true return stops frame
// consumption for this turn.
func (o *Orchestrator) dispatch(ctx context.Context, st *runState, ev *RunEvent, snk sink.EventSink) bool {
	switch ev.Type {
	case RunEventTextDelta:
		st.fill.Cancel()
		st.transcript += ev.Delta
		_ = snk.Message(ctx, st.transcript)

	case RunEventReasoningSummary:
		st.fill.Cancel()
		_ = snk.Status(ctx, strings.ReplaceAll(ev.Summary, "**", ""))

	case RunEventOutputItem:
		o.dispatchItem(ctx, st, ev, snk)

	case RunEventCompleted:
		st.fill.Cancel()
		st.completed = true
		o.recordCompletion(ctx, st, ev, snk)
		return true

	case RunEventError:
		st.fill.Cancel()
		st.termErr = api.NewUpstreamError(ev.Message)
		_ = snk.Notification(ctx, sink.LevelError, ev.Message)
		return true
	}
	return false
}

// dispatchItem classifies an output item event.
func (o *Orchestrator) dispatchItem(ctx context.Context, st *runState, ev *RunEvent, snk sink.EventSink) {
	item := ev.Item

	if ev.ItemEvent == ItemEventAnnotation {
		if item.Type == "url_citation" {
			source := item.Title
			if source == "" {
				source = item.URL
			}
			_ = snk.Citation(ctx, item.Title+"\n"+item.URL, source)
		}
		return
	}

	switch item.Type {
	case "function_call":
		// Arguments are complete only on the done event.
		if ev.ItemEvent == ItemEventDone {
			st.pendingCalls = append(st.pendingCalls, *item)
		}

	case "web_search_call":
		if ev.ItemEvent == ItemEventDone {
			o.webSearchStatus(ctx, item, snk)
		}

	case "reasoning":
		if ev.ItemEvent == ItemEventDone && o.opts.PersistReasoning == PersistReasoningConversation {
			o.persistItems(ctx, st, snk, []api.Item{*item})
		}

	case "message", "function_call_output":
		// Message text arrives through deltas; outputs are our own echoes.

	default:
		if ev.ItemEvent == ItemEventDone && o.opts.PersistToolResults {
			o.persistItems(ctx, st, snk, []api.Item{*item})
		}
	}
}

// webSearchStatus reports the progress of a finished search action.
func (o *Orchestrator) webSearchStatus(ctx context.Context, item *api.Item, snk sink.EventSink) {
	action := item.Action
	if action == nil || action.Type != "search" {
		return
	}
	if action.Query != "" {
		_ = snk.Status(ctx, "Queries generated: "+action.Query)
	}
	var urls []string
	for _, src := range action.Sources {
		if src.URL != "" {
			urls = append(urls, src.URL)
		}
	}
	if len(urls) > 0 {
		_ = snk.Status(ctx, "Sources retrieved: "+strings.Join(urls, ", "))
		_ = snk.Status(ctx, fmt.Sprintf("Reading through %d sites", len(urls)))
	}
}

// recordCompletion folds a Completed event into the run state: the output
// becomes next-turn input, usage is merged, and the sink gets a non-final
// completion with cumulative totals.
func (o *Orchestrator) recordCompletion(ctx context.Context, st *runState, ev *RunEvent, snk sink.EventSink) {
	st.req.Input = append(st.req.Input, ev.Output...)

	turnUsage := ev.Usage
	if turnUsage == nil {
		turnUsage = api.Usage{}
	}
	if _, ok := turnUsage["turn_count"]; !ok {
		turnUsage["turn_count"] = 1
	}
	if _, ok := turnUsage["function_call_count"]; !ok {
		count := 0
		for _, it := range ev.Output {
			if it.Type == "function_call" {
				count++
			}
		}
		turnUsage["function_call_count"] = count
	}
	st.usage = api.MergeUsage(st.usage, turnUsage)

	observability.ObserveTokens(st.req.Model, numberAt(turnUsage, "input_tokens"), numberAt(turnUsage, "output_tokens"))
	_ = snk.Completion(ctx, sink.Completion{Content: st.transcript, Usage: st.usage})
}

// persistItems stores items through the marker store and appends the
// resulting markers to the transcript so a later turn can resolve them.
func (o *Orchestrator) persistItems(ctx context.Context, st *runState, snk sink.EventSink, items []api.Item) {
	if o.store == nil {
		return
	}
	markers, err := marker.PersistItems(ctx, o.store, o.opts.ChatID, st.req.Model, items)
	if err != nil {
		o.log.Warn("persisting output items", "error", err)
		return
	}
	st.transcript += markers
	_ = snk.Message(ctx, st.transcript)
}

// callNames joins the tool names of queued calls for a status line.
func callNames(calls []api.Item) string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// numberAt reads a numeric usage value, tolerating the types JSON decoding
// and manual construction produce.
func numberAt(u api.Usage, key string) float64 {
	switch v := u[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
