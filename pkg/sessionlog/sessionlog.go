// Package sessionlog collects diagnostic log lines for one bridge call so
// they can be attached to the reply when something goes wrong. The buffer is
// created per call and passed explicitly; there is no ambient per-session
// state.
package sessionlog

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultMaxLines bounds a buffer when no limit is configured.
const DefaultMaxLines = 500

// Buffer is a bounded, concurrency-safe collection of log lines scoped to
// one top-level call. When full, the oldest lines are dropped and counted.
type Buffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	dropped int
}

// New creates a buffer holding at most maxLines lines. maxLines <= 0 uses
// DefaultMaxLines.
func New(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Buffer{max: maxLines}
}

// Append records one line with a level tag and timestamp.
func (b *Buffer) Append(level, msg string) {
	line := fmt.Sprintf("%s %-5s %s", time.Now().Format("15:04:05.000"), level, msg)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.max {
		b.lines = b.lines[1:]
		b.dropped++
	}
	b.lines = append(b.lines, line)
}

// Appendf records one formatted line at the given level.
func (b *Buffer) Appendf(level, format string, args ...any) {
	b.Append(level, fmt.Sprintf(format, args...))
}

// Empty reports whether the buffer holds no lines.
func (b *Buffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines) == 0
}

// Flush returns the buffered lines as one document and clears the buffer.
// A note about dropped lines is prepended when the buffer overflowed.
func (b *Buffer) Flush() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == 0 {
		return ""
	}
	var sb strings.Builder
	if b.dropped > 0 {
		fmt.Fprintf(&sb, "(%d earlier lines dropped)\n", b.dropped)
	}
	sb.WriteString(strings.Join(b.lines, "\n"))
	b.lines = nil
	b.dropped = 0
	return sb.String()
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
