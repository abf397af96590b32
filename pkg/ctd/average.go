package ctd

import "io"

// outputLineCapacity fits an output line with every field at sentinel width.
const outputLineCapacity = 2 * MaxLineLength

// Averager accumulates a fixed window of samples and produces their field-wise
// mean. The window and the output line are allocated once.
type Averager struct {
	window []Sample
	count  int
	line   []byte
}

// NewAverager creates an Averager over windows of size samples. Sizes below
// one fall back to DefaultWindowSize.
func NewAverager(size int) *Averager {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Averager{
		window: make([]Sample, size),
		line:   make([]byte, 0, outputLineCapacity),
	}
}

// Append stores s in the next slot and reports whether the window is now
// full. Appending to a full window starts a new one.
func (a *Averager) Append(s Sample) bool {
	if a.count == len(a.window) {
		a.count = 0
	}
	a.window[a.count] = s
	a.count++
	return a.count == len(a.window)
}

// Mean returns the field-wise mean of the samples currently in the window.
//
// An optional field is present in the mean only when it is present in every
// sample of the window.
func (a *Averager) Mean() Sample {
	if a.count == 0 {
		return Sample{}
	}

	var (
		temperature, conductivity, pressure float64
		salinity, soundVelocity             float64
		nSalinity, nSoundVelocity           int
	)
	for _, s := range a.window[:a.count] {
		temperature += float64(s.Temperature)
		conductivity += float64(s.Conductivity)
		pressure += float64(s.Pressure)
		if v, ok := s.Salinity.Get(); ok {
			salinity += float64(v)
			nSalinity++
		}
		if v, ok := s.SoundVelocity.Get(); ok {
			soundVelocity += float64(v)
			nSoundVelocity++
		}
	}

	n := float64(a.count)
	mean := Sample{
		Temperature:  float32(temperature / n),
		Conductivity: float32(conductivity / n),
		Pressure:     float32(pressure / n),
	}
	if nSalinity == a.count {
		mean.Salinity = Some(float32(salinity / n))
	}
	if nSoundVelocity == a.count {
		mean.SoundVelocity = Some(float32(soundVelocity / n))
	}
	return mean
}

// Emit writes the mean of the window to w as one output line and empties the
// window. Slots are not cleared; the next Append overwrites slot zero.
func (a *Averager) Emit(w io.Writer) error {
	a.line = AppendSample(a.line[:0], a.Mean())
	a.count = 0
	_, err := w.Write(a.line)
	return err
}

// Count returns the number of samples in the window.
func (a *Averager) Count() int { return a.count }

// Size returns the window size.
func (a *Averager) Size() int { return len(a.window) }

// Reset empties the window.
func (a *Averager) Reset() { a.count = 0 }
