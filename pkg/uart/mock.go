package uart

import (
	"errors"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"go.bug.st/serial"

	"github.com/itohio/goctd/pkg/config"
	"github.com/itohio/goctd/pkg/ctd"
)

// NoTimeout makes Read block until data arrives or the port is closed.
var NoTimeout = serial.NoTimeout

// mockBacklog is how many unread bytes the simulated receiver holds before
// the oldest ones are overrun. Captured writes are bounded the same way.
const mockBacklog = 4096

// ErrClosed is returned by Mock operations after Close.
var ErrClosed = errors.New("uart: port closed")

// Mock simulates an SBE 49 FastCAT streaming OutputFormat=3 lines while the
// instrument descends through a stratified water column. Bytes written to the
// port are captured, newest mockBacklog bytes kept, and can be inspected with
// Written.
type Mock struct {
	cfg config.MockConfig

	mu      sync.Mutex
	pending []byte
	written []byte
	timeout time.Duration
	lines   int
	closed  bool

	ready chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewMock creates a simulated instrument. A non-positive sample rate disables
// the generator; bytes then only arrive through Inject.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	m := &Mock{
		cfg:     *cfg,
		timeout: NoTimeout,
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if m.cfg.SampleRate > 0 {
		m.wg.Add(1)
		go m.generateLines()
	}

	return m
}

// SetReadTimeout sets how long Read waits for data. NoTimeout blocks.
func (m *Mock) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.timeout = t
	return nil
}

// Read returns buffered sensor bytes, or 0, nil once the read timeout expires.
func (m *Mock) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	timeout := m.timeout
	m.mu.Unlock()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, ErrClosed
		}
		if len(m.pending) > 0 {
			n := copy(p, m.pending)
			m.pending = m.pending[:copy(m.pending, m.pending[n:])]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-m.ready:
		case <-m.done:
		case <-expired:
			return 0, nil
		}
	}
}

// Write captures bytes sent to the instrument.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	m.written = append(m.written, p...)
	if over := len(m.written) - mockBacklog; over > 0 {
		m.written = m.written[:copy(m.written, m.written[over:])]
	}
	return len(p), nil
}

// Close stops the generator. Pending reads return ErrClosed.
func (m *Mock) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// Inject queues raw bytes as if they had arrived on the wire.
func (m *Mock) Inject(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.pending = append(m.pending, p...)
	if over := len(m.pending) - mockBacklog; over > 0 {
		m.pending = m.pending[:copy(m.pending, m.pending[over:])]
	}

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Written returns a copy of the most recent bytes written to the port.
func (m *Mock) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

// Lines returns the number of sensor lines generated so far.
func (m *Mock) Lines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines
}

// generateLines emits one sensor line per sample period.
func (m *Mock) generateLines() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	var line []byte
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			i := m.lines
			m.lines++
			m.mu.Unlock()

			line = ctd.AppendSensorLine(line[:0], m.sample(i))
			m.Inject(line)
		}
	}
}

// sample returns the i-th simulated reading of a steady descent.
func (m *Mock) sample(i int) ctd.Sample {
	t := float32(i) * float32(m.cfg.SampleRate.Seconds())
	noise := float32(m.cfg.NoiseLevel)
	wobble := (math32.Sin(float32(i)*0.7) + math32.Cos(float32(i)*1.3)) * noise * 0.5

	// Pressure in decibars roughly equals depth in metres.
	p := float32(m.cfg.DescentRate)*t + wobble*10
	if p < 0 {
		p = 0
	}

	// Thermocline decaying towards deep water at 2 degrees.
	surface := float32(m.cfg.SurfaceTemperature)
	temp := 2 + (surface-2)*math32.Exp(-p/200) + wobble
	sal := 34.5 + 0.5*(1-math32.Exp(-p/300)) + wobble

	// Conductivity in S/m, linearised around 35 PSU and 15 degrees.
	cond := 4.2914 * sal / 35 * (1 + 0.021*(temp-15))

	s := ctd.Sample{
		Temperature:  temp,
		Conductivity: cond,
		Pressure:     p,
	}
	if m.cfg.Salinity {
		s.Salinity = ctd.Some(sal)
	}
	if m.cfg.SoundVelocity {
		s.SoundVelocity = ctd.Some(soundVelocity(temp, sal, p))
	}
	return s
}

// soundVelocity uses Medwin's approximation in m/s.
func soundVelocity(temp, sal, depth float32) float32 {
	return 1449.2 + 4.6*temp - 0.055*temp*temp + 0.00029*math32.Pow(temp, 3) +
		(1.34-0.01*temp)*(sal-35) + 0.016*depth
}
