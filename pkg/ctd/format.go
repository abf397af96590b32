package ctd

import "strconv"

// fieldWidth is the minimum width of every field on the wire.
const fieldWidth = 8

var separator = []byte(", ")

// AppendSample appends s to dst in the canonical output format
//
//	%8.4f, %8.5f, %8.3f, %8.4f, %8.3f\n
//
// Absent optional fields are rendered as the sentinel. Nothing is allocated
// when dst has enough capacity.
func AppendSample(dst []byte, s Sample) []byte {
	dst = appendField(dst, s.Temperature, temperaturePrecision)
	dst = append(dst, separator...)
	dst = appendField(dst, s.Conductivity, conductivityPrecision)
	dst = append(dst, separator...)
	dst = appendField(dst, s.Pressure, pressurePrecision)
	dst = append(dst, separator...)
	dst = appendField(dst, s.Salinity.OrSentinel(), salinityPrecision)
	dst = append(dst, separator...)
	dst = appendField(dst, s.SoundVelocity.OrSentinel(), soundVelocityPrecision)

	return append(dst, '\n')
}

// AppendSensorLine appends s to dst the way the sensor itself prints it:
// absent optional fields are left out instead of being rendered as sentinels.
func AppendSensorLine(dst []byte, s Sample) []byte {
	dst = appendField(dst, s.Temperature, temperaturePrecision)
	dst = append(dst, separator...)
	dst = appendField(dst, s.Conductivity, conductivityPrecision)
	dst = append(dst, separator...)
	dst = appendField(dst, s.Pressure, pressurePrecision)
	if v, ok := s.Salinity.Get(); ok {
		dst = append(dst, separator...)
		dst = appendField(dst, v, salinityPrecision)
	}
	if v, ok := s.SoundVelocity.Get(); ok {
		dst = append(dst, separator...)
		dst = appendField(dst, v, soundVelocityPrecision)
	}
	return append(dst, '\n')
}

// appendField appends v with prec fractional digits, right justified in
// fieldWidth columns. Wider values are not truncated.
func appendField(dst []byte, v float32, prec int) []byte {
	start := len(dst)
	dst = strconv.AppendFloat(dst, float64(v), 'f', prec, 32)

	pad := fieldWidth - (len(dst) - start)
	if pad <= 0 {
		return dst
	}
	for i := 0; i < pad; i++ {
		dst = append(dst, ' ')
	}
	copy(dst[start+pad:], dst[start:len(dst)-pad])
	for i := start; i < start+pad; i++ {
		dst[i] = ' '
	}
	return dst
}
