package notify

import "sync"

// lineBuffer holds formatted lines awaiting a batched flush. The lock is
// held only for an append or a swap, never across delivery.
type lineBuffer struct {
	mu    sync.Mutex
	lines []string

	totalAppended int64
	totalDrained  int64
}

// Append adds lines in order.
func (b *lineBuffer) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.mu.Lock()
	b.lines = append(b.lines, lines...)
	b.totalAppended += int64(len(lines))
	b.mu.Unlock()
}

// Swap takes ownership of every pending line and leaves the buffer empty.
// Returns nil if nothing is pending.
func (b *lineBuffer) Swap() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == 0 {
		return nil
	}

	lines := b.lines
	b.lines = nil
	b.totalDrained += int64(len(lines))
	return lines
}

// Len returns the number of pending lines.
func (b *lineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// chunk joins lines with newlines into messages no longer than max bytes.
// A single line longer than max is sent on its own. max <= 0 disables
// splitting.
func chunk(lines []string, max int) []string {
	if len(lines) == 0 {
		return nil
	}

	var (
		out     []string
		current []byte
	)
	for _, line := range lines {
		if len(current) > 0 && max > 0 && len(current)+1+len(line) > max {
			out = append(out, string(current))
			current = current[:0]
		}
		if len(current) > 0 {
			current = append(current, '\n')
		}
		current = append(current, line...)
	}
	return append(out, string(current))
}
