package momo

import "sync"

const stderrLimit = 64 << 10

// tailBuffer keeps the last stderrLimit bytes written to it and remembers
// how much has been handed out by Unread.
type tailBuffer struct {
	mu      sync.Mutex
	buf     []byte
	dropped int64 // bytes discarded from the front
	read    int64 // absolute offset consumed by Unread
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - stderrLimit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.dropped += int64(over)
	}
	return len(p), nil
}

// String returns the retained tail.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Unread returns what was written since the previous call.
func (b *tailBuffer) Unread() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := b.read - b.dropped
	if start < 0 {
		start = 0
	}
	out := string(b.buf[start:])
	b.read = b.dropped + int64(len(b.buf))
	return out
}
