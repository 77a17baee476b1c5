package run

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/sink"
)

// fillerSchedule lists the delayed progress lines shown while a reasoning
// model is silent. Offsets are from submission time; each gets up to 500ms
// of jitter so the lines don't feel mechanical.
var fillerSchedule = []struct {
	offset time.Duration
	text   string
}{
	{0, "Thinking…"},
	{1500 * time.Millisecond, "Reading the user's question…"},
	{4 * time.Second, "Gathering my thoughts…"},
	{6 * time.Second, "Exploring possible responses…"},
	{7 * time.Second, "Building a plan…"},
}

// fillers delivers the scheduled lines until cancelled.
type fillers struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startFillers schedules the filler statuses on the sink. Sink errors are
// suppressed: fillers are pure UX feedback and must never disturb the run.
func startFillers(ctx context.Context, snk sink.EventSink) *fillers {
	ctx, cancel := context.WithCancel(ctx)
	f := &fillers{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(f.done)
		start := time.Now()
		for _, step := range fillerSchedule {
			at := step.offset + rand.N(500*time.Millisecond)
			wait := at - time.Since(start)
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			_ = snk.Status(ctx, step.text)
		}
	}()
	return f
}

// Cancel stops pending fillers and waits for the scheduler to exit, so no
// filler line can interleave with real content emitted afterwards.
func (f *fillers) Cancel() {
	if f == nil {
		return
	}
	f.cancel()
	<-f.done
}
