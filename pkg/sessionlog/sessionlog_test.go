package sessionlog

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestBufferAppendAndFlush(t *testing.T) {
	b := New(10)
	if !b.Empty() {
		t.Error("new buffer not empty")
	}

	b.Append("INFO", "first")
	b.Appendf("WARN", "dropped field %s", "seed")

	if b.Empty() || b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	doc := b.Flush()
	if !strings.Contains(doc, "first") || !strings.Contains(doc, "dropped field seed") {
		t.Errorf("flushed doc = %q", doc)
	}
	if !strings.Contains(doc, "INFO") || !strings.Contains(doc, "WARN") {
		t.Errorf("levels missing from doc: %q", doc)
	}
	if !b.Empty() {
		t.Error("buffer not cleared by Flush")
	}
	if b.Flush() != "" {
		t.Error("second Flush returned content")
	}
}

func TestBufferOverflow(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		b.Append("INFO", msg)
	}

	doc := b.Flush()
	if strings.Contains(doc, "one") || strings.Contains(doc, "two") {
		t.Errorf("oldest lines not dropped: %q", doc)
	}
	if !strings.Contains(doc, "(2 earlier lines dropped)") {
		t.Errorf("drop note missing: %q", doc)
	}
	if !strings.Contains(doc, "five") {
		t.Errorf("newest line missing: %q", doc)
	}
}

func TestHandlerMirrorsRecords(t *testing.T) {
	buf := New(10)
	base := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	logger := Logger(base, buf)

	logger.Info("translated request", "model", "gpt-5")
	logger.With("turn", 2).Warn("tool missing")

	doc := buf.Flush()
	// Everything is buffered, even below the inner handler's level.
	if !strings.Contains(doc, "translated request model=gpt-5") {
		t.Errorf("info line missing: %q", doc)
	}
	if !strings.Contains(doc, "tool missing") || !strings.Contains(doc, "turn=2") {
		t.Errorf("warn line missing attrs: %q", doc)
	}
}
