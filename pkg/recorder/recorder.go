// Package recorder drains the instrument UART into the averaging pipeline and
// appends the raw stream to a log file.
package recorder

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/itohio/goctd/pkg/ctd"
	"github.com/itohio/goctd/pkg/uart"
)

const (
	// DefaultChunkSize matches the receive buffer the pipeline was sized for.
	DefaultChunkSize = 128
	// DefaultSyncIdle is how long the line must be quiet before the log is flushed.
	DefaultSyncIdle = 500 * time.Millisecond
	// DefaultReadTimeout bounds how long a single read waits for data.
	DefaultReadTimeout = 50 * time.Millisecond
)

// Log is the destination of the raw sensor stream.
type Log interface {
	io.Writer
	Sync() error
	Close() error
}

// Options tune the recording loop. Zero values select defaults.
type Options struct {
	ChunkSize   int
	SyncIdle    time.Duration
	ReadTimeout time.Duration
}

// Recorder couples a port, a pipeline and a log.
type Recorder struct {
	port     uart.Port
	log      Log
	logger   *zap.Logger
	metrics  *metrics
	chunk    []byte
	syncIdle time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	pipeline *ctd.Pipeline
}

// New creates a recorder. Averaged lines are written back to port.
func New(port uart.Port, log Log, pipeline *ctd.Pipeline, opts Options, logger *zap.Logger) *Recorder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.SyncIdle <= 0 {
		opts.SyncIdle = DefaultSyncIdle
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{
		port:     port,
		log:      log,
		logger:   logger,
		chunk:    make([]byte, opts.ChunkSize),
		syncIdle: opts.SyncIdle,
		timeout:  opts.ReadTimeout,
		pipeline: pipeline,
	}
	r.metrics = newMetrics(r)

	return r
}

// Run records until ctx is cancelled or the port fails. Cancellation is not
// an error.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.port.SetReadTimeout(r.timeout); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	r.logger.Info("[recorder] recording started",
		zap.Int("chunkSize", len(r.chunk)),
		zap.Duration("syncIdle", r.syncIdle))

	lastData := time.Now()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			if dirty {
				r.sync()
			}
			r.logger.Info("[recorder] received shutdown signal")
			return nil
		default:
		}

		n, err := r.port.Read(r.chunk)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("[recorder] port closed during shutdown", zap.Error(err))
				return nil
			}
			return fmt.Errorf("failed to read from port: %w", err)
		}

		if n > 0 {
			r.record(r.chunk[:n])
			lastData = time.Now()
			dirty = true
			continue
		}

		if dirty && time.Since(lastData) > r.syncIdle {
			r.sync()
			dirty = false
		}
	}
}

// record feeds one chunk to the pipeline and then to the log.
func (r *Recorder) record(chunk []byte) {
	r.metrics.bytesReceived.Add(float64(len(chunk)))

	r.mu.Lock()
	r.pipeline.Ingest(r.port, chunk)
	r.mu.Unlock()

	n, err := r.log.Write(chunk)
	r.metrics.bytesLogged.Add(float64(n))
	if err != nil {
		r.metrics.logErrors.Inc()
		r.logger.Warn("[recorder] error writing to log",
			zap.Error(err),
			zap.Int("chunkLength", len(chunk)),
			zap.Int("written", n))
	}
}

func (r *Recorder) sync() {
	if err := r.log.Sync(); err != nil {
		r.metrics.logErrors.Inc()
		r.logger.Warn("[recorder] error syncing log", zap.Error(err))
		return
	}
	r.metrics.logSyncs.Inc()
	r.logger.Debug("[recorder] log synced")
}

// Stats returns the pipeline counters.
func (r *Recorder) Stats() ctd.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipeline.Stats()
}

// State returns the buffered byte count and the samples in the current window.
func (r *Recorder) State() (used, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipeline.State()
}

// Close closes the log and then the port.
func (r *Recorder) Close() error {
	return multierr.Combine(r.log.Close(), r.port.Close())
}
