package recorder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/itohio/goctd/pkg/config"
	"github.com/itohio/goctd/pkg/ctd"
	"github.com/itohio/goctd/pkg/uart"
)

const (
	sensorLine  = "  5.0000,  3.00000,  10.000,  35.0000,  1500.000\n"
	averageLine = "  5.0000,  3.00000,   10.000,  35.0000, 1500.000\n"
)

// memLog is an in-memory Log.
type memLog struct {
	mu       sync.Mutex
	data     bytes.Buffer
	syncs    int
	closed   bool
	writeErr error
	closeErr error
}

func (l *memLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return 0, l.writeErr
	}
	return l.data.Write(p)
}

func (l *memLog) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncs++
	return nil
}

func (l *memLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return l.closeErr
}

func (l *memLog) snapshot() (string, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data.String(), l.syncs
}

// brokenPort fails every read.
type brokenPort struct{ closeErr error }

func (brokenPort) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }

func (brokenPort) Write(p []byte) (int, error) { return len(p), nil }

func (p brokenPort) Close() error { return p.closeErr }

func (brokenPort) SetReadTimeout(time.Duration) error { return nil }

func newRecorder(t *testing.T, port uart.Port, log Log, window int) *Recorder {
	t.Helper()
	opts := Options{
		ChunkSize:   32,
		SyncIdle:    20 * time.Millisecond,
		ReadTimeout: 5 * time.Millisecond,
	}
	return New(port, log, ctd.New(window, ctd.DefaultBufferCapacity), opts, zaptest.NewLogger(t))
}

func startRecorder(t *testing.T, r *Recorder) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	return cancel, errc
}

func waitRun(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
		return nil
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(uart.NewMock(&config.MockConfig{}), &memLog{}, ctd.New(0, 0), Options{}, nil)
	defer r.Close()

	assert.Len(t, r.chunk, DefaultChunkSize)
	assert.Equal(t, DefaultSyncIdle, r.syncIdle)
	assert.Equal(t, DefaultReadTimeout, r.timeout)
	assert.NotNil(t, r.logger)
}

func TestRecorder_AveragesAndLogs(t *testing.T) {
	port := uart.NewMock(&config.MockConfig{})
	log := &memLog{}
	r := newRecorder(t, port, log, ctd.DefaultWindowSize)

	cancel, errc := startRecorder(t, r)

	stream := strings.Repeat(sensorLine, ctd.DefaultWindowSize)
	for i := 0; i < len(stream); i += 50 {
		port.Inject([]byte(stream[i:min(i+50, len(stream))]))
	}

	require.Eventually(t, func() bool {
		return string(port.Written()) == averageLine
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		data, syncs := log.snapshot()
		return data == stream && syncs >= 1
	}, 5*time.Second, 5*time.Millisecond, "raw stream is logged and flushed once idle")

	cancel()
	require.NoError(t, waitRun(t, errc))

	st := r.Stats()
	assert.Equal(t, uint64(ctd.DefaultWindowSize), st.Samples)
	assert.Equal(t, uint64(1), st.Averages)
	assert.Equal(t, uint64(len(stream)), st.Bytes)

	require.NoError(t, r.Close())
	assert.True(t, log.closed)
}

func TestRecorder_SyncsOncePerIdlePeriod(t *testing.T) {
	port := uart.NewMock(&config.MockConfig{})
	log := &memLog{}
	r := newRecorder(t, port, log, ctd.DefaultWindowSize)

	cancel, errc := startRecorder(t, r)

	port.Inject([]byte(sensorLine))
	require.Eventually(t, func() bool {
		_, syncs := log.snapshot()
		return syncs == 1
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	_, syncs := log.snapshot()
	assert.Equal(t, 1, syncs, "no data, no further flushes")

	cancel()
	require.NoError(t, waitRun(t, errc))
	r.Close()
}

func TestRecorder_LogWriteErrorKeepsRunning(t *testing.T) {
	port := uart.NewMock(&config.MockConfig{})
	log := &memLog{writeErr: errors.New("card full")}
	r := newRecorder(t, port, log, 1)

	cancel, errc := startRecorder(t, r)

	port.Inject([]byte(sensorLine))
	require.Eventually(t, func() bool {
		return string(port.Written()) == averageLine
	}, 5*time.Second, 5*time.Millisecond, "averaging continues without a log")

	cancel()
	require.NoError(t, waitRun(t, errc))
	r.Close()
}

func TestRecorder_ReadError(t *testing.T) {
	r := newRecorder(t, brokenPort{}, &memLog{}, 1)

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestRecorder_ShutdownWhilePortCloses(t *testing.T) {
	port := uart.NewMock(&config.MockConfig{})
	r := newRecorder(t, port, &memLog{}, 1)

	cancel, errc := startRecorder(t, r)
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.NoError(t, r.Close())

	assert.NoError(t, waitRun(t, errc))
}

func TestRecorder_CloseCombinesErrors(t *testing.T) {
	log := &memLog{closeErr: errors.New("log close failed")}
	r := newRecorder(t, brokenPort{closeErr: errors.New("port close failed")}, log, 1)

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log close failed")
	assert.Contains(t, err.Error(), "port close failed")
}

func TestRecorder_Handler(t *testing.T) {
	port := uart.NewMock(&config.MockConfig{})
	log := &memLog{}
	r := newRecorder(t, port, log, 2)

	cancel, errc := startRecorder(t, r)
	port.Inject([]byte(strings.Repeat(sensorLine, 3) + "junk\n"))
	require.Eventually(t, func() bool {
		return r.Stats().Lines == 4
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, waitRun(t, errc))
	defer r.Close()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	for _, want := range []string{
		"ctd_bytes_received_total 152",
		"ctd_bytes_logged_total 152",
		"ctd_lines_total 4",
		"ctd_samples_total 3",
		"ctd_lines_dropped_total 1",
		"ctd_averages_total 1",
		"ctd_window_samples 1",
	} {
		assert.Contains(t, text, want)
	}
}
