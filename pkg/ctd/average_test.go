package ctd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{ calls int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.calls++
	return 0, errors.New("uart gone")
}

func TestNewAverager(t *testing.T) {
	assert.Equal(t, DefaultWindowSize, NewAverager(0).Size())
	assert.Equal(t, DefaultWindowSize, NewAverager(-3).Size())
	assert.Equal(t, 4, NewAverager(4).Size())
	assert.Zero(t, NewAverager(4).Count())
}

func TestAverager_Append(t *testing.T) {
	a := NewAverager(3)
	s := Sample{Temperature: 1, Conductivity: 2, Pressure: 3}

	assert.False(t, a.Append(s))
	assert.Equal(t, 1, a.Count())
	assert.False(t, a.Append(s))
	assert.True(t, a.Append(s), "third sample fills the window")
	assert.Equal(t, 3, a.Count())

	// A full window that was not emitted starts over.
	assert.False(t, a.Append(s))
	assert.Equal(t, 1, a.Count())
}

func TestAverager_Mean(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    Sample
	}{
		{
			name:    "empty window",
			samples: nil,
			want:    Sample{},
		},
		{
			name: "constant stream is unchanged",
			samples: []Sample{
				{Temperature: 5, Conductivity: 3, Pressure: 10, Salinity: Some(35), SoundVelocity: Some(1500)},
				{Temperature: 5, Conductivity: 3, Pressure: 10, Salinity: Some(35), SoundVelocity: Some(1500)},
				{Temperature: 5, Conductivity: 3, Pressure: 10, Salinity: Some(35), SoundVelocity: Some(1500)},
				{Temperature: 5, Conductivity: 3, Pressure: 10, Salinity: Some(35), SoundVelocity: Some(1500)},
			},
			want: Sample{Temperature: 5, Conductivity: 3, Pressure: 10, Salinity: Some(35), SoundVelocity: Some(1500)},
		},
		{
			name: "varying values",
			samples: []Sample{
				{Temperature: 1, Conductivity: 2, Pressure: 3, Salinity: Some(4)},
				{Temperature: 2, Conductivity: 4, Pressure: 6, Salinity: Some(8)},
				{Temperature: 3, Conductivity: 6, Pressure: 9, Salinity: Some(12)},
				{Temperature: 4, Conductivity: 8, Pressure: 12, Salinity: Some(16)},
			},
			want: Sample{Temperature: 2.5, Conductivity: 5, Pressure: 7.5, Salinity: Some(10)},
		},
		{
			name: "field absent everywhere stays absent",
			samples: []Sample{
				{Temperature: 1, Conductivity: 1, Pressure: 1},
				{Temperature: 3, Conductivity: 3, Pressure: 3},
			},
			want: Sample{Temperature: 2, Conductivity: 2, Pressure: 2},
		},
		{
			name: "intermittent field is absent",
			samples: []Sample{
				{Temperature: 1, Conductivity: 1, Pressure: 1, Salinity: Some(35), SoundVelocity: Some(1500)},
				{Temperature: 1, Conductivity: 1, Pressure: 1, SoundVelocity: Some(1502)},
			},
			want: Sample{Temperature: 1, Conductivity: 1, Pressure: 1, SoundVelocity: Some(1501)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAverager(len(tt.samples) + 1)
			for _, s := range tt.samples {
				a.Append(s)
			}
			assert.Equal(t, tt.want, a.Mean())
		})
	}
}

func TestAverager_Emit(t *testing.T) {
	a := NewAverager(2)
	a.Append(Sample{Temperature: 4, Conductivity: 2, Pressure: 10, Salinity: Some(34)})
	a.Append(Sample{Temperature: 6, Conductivity: 4, Pressure: 20, Salinity: Some(36)})

	var out bytes.Buffer
	require.NoError(t, a.Emit(&out))
	assert.Equal(t, "  5.0000,  3.00000,   15.000,  35.0000, -9999.000\n", out.String())
	assert.Zero(t, a.Count(), "emit empties the window")

	// The next window overwrites slot zero.
	out.Reset()
	a.Append(Sample{Temperature: 1, Conductivity: 1, Pressure: 1})
	a.Append(Sample{Temperature: 1, Conductivity: 1, Pressure: 1})
	require.NoError(t, a.Emit(&out))
	assert.Equal(t, "  1.0000,  1.00000,    1.000, -9999.0000, -9999.000\n", out.String())
}

func TestAverager_EmitWriteError(t *testing.T) {
	a := NewAverager(1)
	a.Append(Sample{Temperature: 1, Conductivity: 1, Pressure: 1})

	w := &failingWriter{}
	assert.Error(t, a.Emit(w))
	assert.Equal(t, 1, w.calls)
	assert.Zero(t, a.Count(), "window is reset even when the sink fails")
}

func TestAverager_Reset(t *testing.T) {
	a := NewAverager(4)
	a.Append(Sample{})
	a.Append(Sample{})
	a.Reset()
	assert.Zero(t, a.Count())
}
