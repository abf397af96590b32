package main

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/goctd/pkg/ctd"
	"github.com/itohio/goctd/pkg/uart"
)

// tolerance is the largest accepted difference between a reply field and the
// expected mean.
const tolerance = 0.01

var errNoReply = errors.New("no reply before timeout")

// trial sends one window of ramp samples and checks the averaged reply.
type trial struct {
	port     uart.Port
	rate     int
	salinity bool
	velocity bool
	interval time.Duration
	timeout  time.Duration

	line  []byte
	reply []byte
}

// rampSample is the i-th synthetic reading: i, 2i, 3i and optionally 4i, 5i.
func rampSample(i int, salinity, velocity bool) ctd.Sample {
	v := float32(i)
	s := ctd.Sample{Temperature: v, Conductivity: 2 * v, Pressure: 3 * v}
	if salinity {
		s.Salinity = ctd.Some(4 * v)
	}
	if velocity {
		s.SoundVelocity = ctd.Some(5 * v)
	}
	return s
}

// expectedMean is the average of rampSample over 1..rate.
func expectedMean(rate int, salinity, velocity bool) ctd.Sample {
	mean := float32(rate+1) / 2
	s := ctd.Sample{Temperature: mean, Conductivity: 2 * mean, Pressure: 3 * mean}
	if salinity {
		s.Salinity = ctd.Some(4 * mean)
	}
	if velocity {
		s.SoundVelocity = ctd.Some(5 * mean)
	}
	return s
}

// matches reports whether the reply line carries the expected values.
func matches(line []byte, want ctd.Sample) bool {
	if !bytes.HasSuffix(line, []byte{'\n'}) || bytes.Count(line, []byte{'\n'}) != 1 {
		return false
	}
	line = line[:len(line)-1]
	if bytes.Count(line, []byte{','}) != 4 {
		return false
	}

	got, ok := ctd.ParseLine(line)
	if !ok {
		return false
	}

	return near(got.Temperature, want.Temperature) &&
		near(got.Conductivity, want.Conductivity) &&
		near(got.Pressure, want.Pressure) &&
		nearOptional(got.Salinity, want.Salinity) &&
		nearOptional(got.SoundVelocity, want.SoundVelocity)
}

func near(a, b float32) bool {
	return math32.Abs(a-b) < tolerance
}

func nearOptional(a, b ctd.Optional) bool {
	av, aok := a.Get()
	bv, bok := b.Get()
	if aok != bok {
		return false
	}
	return !aok || near(av, bv)
}

// run writes rate samples and waits for the reply. It returns the reply and
// whether it matched.
func (t *trial) run() ([]byte, bool, error) {
	for i := 1; i <= t.rate; i++ {
		t.line = ctd.AppendSensorLine(t.line[:0], rampSample(i, t.salinity, t.velocity))
		if _, err := t.port.Write(t.line); err != nil {
			return nil, false, fmt.Errorf("failed to write sample %d: %w", i, err)
		}
		time.Sleep(t.interval)
	}

	reply, err := t.readLine()
	if err != nil && !errors.Is(err, errNoReply) {
		return nil, false, err
	}

	return reply, matches(reply, expectedMean(t.rate, t.salinity, t.velocity)), nil
}

// readLine reads up to and including the next newline or until the timeout.
func (t *trial) readLine() ([]byte, error) {
	if err := t.port.SetReadTimeout(t.timeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	t.reply = t.reply[:0]
	deadline := time.Now().Add(t.timeout)
	var b [1]byte
	for time.Now().Before(deadline) {
		n, err := t.port.Read(b[:])
		if err != nil {
			return t.reply, fmt.Errorf("failed to read reply: %w", err)
		}
		if n == 0 {
			continue
		}
		t.reply = append(t.reply, b[0])
		if b[0] == '\n' {
			return t.reply, nil
		}
	}
	return t.reply, errNoReply
}
