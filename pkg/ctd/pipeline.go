package ctd

import "io"

// Stats are running counters of a Pipeline.
type Stats struct {
	Bytes     uint64 // bytes ingested
	Lines     uint64 // lines framed
	Samples   uint64 // lines parsed into samples
	Dropped   uint64 // malformed lines discarded
	Recovered uint64 // samples recovered from truncated lines
	Evicted   uint64 // bytes dropped on buffer overflow
	Averages  uint64 // averaged lines written to the sink
}

// Pipeline frames, parses and averages a CTD byte stream.
//
// A Pipeline serves a single stream and is not safe for concurrent use. Lines
// handed to the sink are reused by the next emission and must not be retained.
type Pipeline struct {
	framer   *Framer
	averager *Averager
	sink     io.Writer
	stats    Stats
}

// New creates a Pipeline averaging windowSize samples per output line with a
// line buffer of bufferCapacity bytes. Zero values select the defaults.
func New(windowSize, bufferCapacity int) *Pipeline {
	if bufferCapacity == 0 {
		bufferCapacity = DefaultBufferCapacity
	}
	return &Pipeline{
		framer:   NewFramer(bufferCapacity),
		averager: NewAverager(windowSize),
	}
}

// Ingest feeds a chunk of the sensor stream. Every completed window is written
// to sink as one averaged line; write errors are ignored.
func (p *Pipeline) Ingest(sink io.Writer, b []byte) {
	if sink == nil {
		sink = io.Discard
	}
	p.stats.Bytes += uint64(len(b))

	p.sink = sink
	p.framer.Ingest(b, (*pipelineLines)(p))
	p.sink = nil
}

// pipelineLines receives the framer's lines on behalf of a Pipeline that is
// inside Ingest.
type pipelineLines Pipeline

func (l *pipelineLines) HandleLine(line []byte, truncated bool) {
	(*Pipeline)(l).handleLine(line, truncated)
}

// handleLine parses one framed line and advances the window, emitting to the
// sink of the current Ingest call.
func (p *Pipeline) handleLine(line []byte, truncated bool) {
	p.stats.Lines++

	var (
		s  Sample
		ok bool
	)
	if truncated {
		if s, ok = RecoverLine(line); ok {
			p.stats.Recovered++
		}
	} else {
		s, ok = ParseLine(line)
	}
	if !ok {
		p.stats.Dropped++
		return
	}
	p.stats.Samples++

	if !p.averager.Append(s) {
		return
	}
	_ = p.averager.Emit(p.sink)
	p.stats.Averages++
}

// State returns the number of staged bytes and of samples in the window.
func (p *Pipeline) State() (bufferUsed, windowCount int) {
	return p.framer.Buffered(), p.averager.Count()
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	st := p.stats
	st.Evicted = p.framer.Evicted()
	return st
}

// Capacity returns the line buffer size.
func (p *Pipeline) Capacity() int { return p.framer.Capacity() }

// WindowSize returns the number of samples per averaged line.
func (p *Pipeline) WindowSize() int { return p.averager.Size() }

// Reset drops staged bytes and the partial window. Counters are kept.
func (p *Pipeline) Reset() {
	p.framer.Reset()
	p.averager.Reset()
}

type writer struct {
	p    *Pipeline
	sink io.Writer
}

// NewWriter returns an io.Writer that ingests everything written to it into p,
// sending averaged lines to sink.
func NewWriter(p *Pipeline, sink io.Writer) io.Writer {
	return &writer{p: p, sink: sink}
}

func (w *writer) Write(b []byte) (int, error) {
	w.p.Ingest(w.sink, b)
	return len(b), nil
}
