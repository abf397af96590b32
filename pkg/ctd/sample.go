// Package ctd turns the ASCII output of a Sea-Bird SBE 49 FastCAT
// (OutputFormat=3, engineering units in decimal) into a lower rate stream of
// averaged samples in the same wire format.
//
// The sensor emits one line per sample, each field 8 bytes wide and left
// padded with spaces:
//
//	ttt.tttt, cc.ccccc, pppp.ppp[, sss.ssss][, vvvv.vvv]\n
//	    '         '         '         '           '- sound velocity (m/s)
//	    '         '         '         '- salinity (psu)
//	    '         '         '- pressure (decibars)
//	    '         '- conductivity (S/m)
//	    ' temperature (deg C, ITS-90)
//
// A Pipeline frames the raw byte stream into lines, parses every line into a
// Sample and, once a window of samples is complete, writes their mean to a
// sink. All storage is allocated by the constructors; ingesting bytes does not
// allocate.
package ctd

import "strings"

const (
	// DefaultWindowSize is the number of samples averaged into one output
	// line. The SBE 49 samples at 16 Hz, so this gives 1 Hz output.
	DefaultWindowSize = 16

	// MaxLineLength is the length of the longest well-formed sensor line,
	// terminator included.
	MaxLineLength = len("ttt.tttt, cc.ccccc, pppp.ppp, sss.ssss, vvvv.vvv\n")

	// MinBufferCapacity is the smallest line buffer accepted by the framer.
	MinBufferCapacity = 2 * MaxLineLength

	// DefaultBufferCapacity is the line buffer size used when none is given.
	DefaultBufferCapacity = 128

	// Sentinel stands in for an absent optional field on the wire.
	Sentinel float32 = -9999
)

// Optional is a measurement the sensor may or may not be configured to emit.
// The zero value is absent.
type Optional struct {
	value float32
	valid bool
}

// Some returns a present Optional holding v.
func Some(v float32) Optional {
	return Optional{value: v, valid: true}
}

// None returns an absent Optional.
func None() Optional {
	return Optional{}
}

// Get returns the value and whether it is present.
func (o Optional) Get() (float32, bool) {
	return o.value, o.valid
}

// Valid reports whether the value is present.
func (o Optional) Valid() bool {
	return o.valid
}

// OrSentinel returns the value, or Sentinel when absent.
func (o Optional) OrSentinel() float32 {
	if !o.valid {
		return Sentinel
	}
	return o.value
}

// Sample is one parsed sensor line.
type Sample struct {
	Temperature   float32 // deg C, ITS-90
	Conductivity  float32 // S/m
	Pressure      float32 // decibars
	Salinity      Optional
	SoundVelocity Optional
}

// String renders s in the canonical wire format without the terminator.
func (s Sample) String() string {
	return strings.TrimSuffix(string(AppendSample(nil, s)), "\n")
}
