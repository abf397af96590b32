package ctd

import "bytes"

// LineHandler receives framed lines. The line is only valid for the duration
// of the call.
type LineHandler interface {
	// HandleLine is called once per terminator with the bytes preceding it.
	// truncated is set when the head of the line was evicted to respect the
	// buffer capacity.
	HandleLine(line []byte, truncated bool)
}

// Framer splits an arbitrarily fragmented byte stream into '\n' terminated
// lines using a fixed size linear buffer.
//
// When the bytes of an unfinished line exceed the capacity, the oldest ones are
// dropped. Eviction is per byte, so the lines produced do not depend on how the
// stream was chunked.
type Framer struct {
	buf       []byte
	used      int
	truncated bool
	evicted   uint64
}

// NewFramer creates a Framer with the given capacity. Capacities below
// MinBufferCapacity are raised to it.
func NewFramer(capacity int) *Framer {
	if capacity < MinBufferCapacity {
		capacity = MinBufferCapacity
	}
	return &Framer{buf: make([]byte, capacity)}
}

// Ingest stages p and hands every completed line to h, in arrival order.
func (f *Framer) Ingest(p []byte, h LineHandler) {
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			f.stage(p)
			return
		}
		f.stage(p[:i])
		p = p[i+1:]

		line, truncated := f.buf[:f.used], f.truncated
		f.used = 0
		f.truncated = false
		h.HandleLine(line, truncated)
	}
}

// stage appends p to the buffer, keeping only the newest bytes that fit.
func (f *Framer) stage(p []byte) {
	capacity := len(f.buf)

	if len(p) >= capacity {
		if over := f.used + len(p) - capacity; over > 0 {
			f.evicted += uint64(over)
			f.truncated = true
		}
		f.used = copy(f.buf, p[len(p)-capacity:])
		return
	}

	if over := f.used + len(p) - capacity; over > 0 {
		copy(f.buf, f.buf[over:f.used])
		f.used -= over
		f.evicted += uint64(over)
		f.truncated = true
	}
	f.used += copy(f.buf[f.used:], p)
}

// Buffered returns the number of staged bytes.
func (f *Framer) Buffered() int { return f.used }

// Capacity returns the buffer size.
func (f *Framer) Capacity() int { return len(f.buf) }

// Evicted returns the total number of bytes dropped because of overflow.
func (f *Framer) Evicted() uint64 { return f.evicted }

// Reset discards the staged bytes.
func (f *Framer) Reset() {
	f.used = 0
	f.truncated = false
}
