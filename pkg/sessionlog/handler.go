package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Handler is a slog.Handler that forwards records to an inner handler and
// mirrors them into a session buffer. Wrap the process logger with it to
// scope a logger to one call.
type Handler struct {
	inner slog.Handler
	buf   *Buffer
	attrs []slog.Attr
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler wraps inner so every record also lands in buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

// Logger returns a slog.Logger writing through a session handler.
func Logger(base *slog.Logger, buf *Buffer) *slog.Logger {
	return slog.New(NewHandler(base.Handler(), buf))
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	// The buffer captures everything; the inner handler filters on output.
	return true
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	h.buf.Append(r.Level.String(), sb.String())

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner: h.inner.WithAttrs(attrs),
		buf:   h.buf,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), buf: h.buf, attrs: h.attrs}
}
