package chardev

import (
	"bytes"
	"sync"
)

// Loopback is an in-memory Backend for tests: writes are appended to
// an internal buffer that ReadSync drains, so write_all followed by
// read_all round-trips the same bytes (spec.md §8, round-trip
// property).
type Loopback struct {
	BackendBase

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLoopback creates an empty loopback backend whose backend-side
// open flag is already set.
func NewLoopback() *Loopback {
	l := &Loopback{}
	l.SetOpen(true)
	return l
}

// Write appends p to the internal buffer. writeAll is accepted but
// irrelevant: Loopback never short-writes.
func (l *Loopback) Write(p []byte, writeAll bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

// ReadSync drains up to len(p) bytes from the internal buffer,
// returning (0, nil) at end of stream rather than ErrWouldBlock: the
// loopback buffer never blocks.
func (l *Loopback) ReadSync(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() == 0 {
		return 0, nil
	}
	return l.buf.Read(p)
}
