package ctd

import (
	"bytes"
	"strconv"
)

const (
	requiredFields = 3
	maxFields      = 5
)

// Digits after the decimal point for each field, as emitted by the sensor.
const (
	temperaturePrecision   = 4
	conductivityPrecision  = 5
	pressurePrecision      = 3
	salinityPrecision      = 4
	soundVelocityPrecision = 3
)

// shape is the lexical form of one field: the allowed number of integer
// digits and the exact number of fractional digits.
type shape struct {
	minInt, maxInt int
	frac           int
}

var (
	temperatureShape   = shape{1, 3, temperaturePrecision}
	conductivityShape  = shape{1, 2, conductivityPrecision}
	pressureShape      = shape{1, 4, pressurePrecision}
	salinityShape      = shape{1, 3, salinityPrecision}
	soundVelocityShape = shape{1, 4, soundVelocityPrecision}
)

// ParseLine parses one sensor line, without its terminator.
//
// The first three fields are temperature, conductivity and pressure. A fourth
// field with exactly four fractional digits is salinity, any other fourth field
// is sound velocity. A fifth field is always sound velocity. Fields after the
// fifth are ignored. Optional fields carrying the wire sentinel are absent.
//
// Each field may be preceded by whitespace and is read up to the first byte
// that cannot continue a number, so a trailing '\r' is accepted. ok is false
// for lines with fewer than three fields or with a field holding no number.
func ParseLine(line []byte) (s Sample, ok bool) {
	var (
		values [maxFields]float32
		fracs  [maxFields]int
		n      int
	)

	rest := line
	for n < maxFields {
		tok, tail, more := cutField(rest)
		v, frac, good := parseField(tok)
		if !good {
			return Sample{}, false
		}
		values[n], fracs[n] = v, frac
		n++
		if !more {
			break
		}
		rest = tail
	}
	if n < requiredFields {
		return Sample{}, false
	}

	s.Temperature = values[0]
	s.Conductivity = values[1]
	s.Pressure = values[2]

	if n > 3 {
		if fracs[3] == salinityPrecision {
			s.Salinity = optional(values[3])
		} else {
			s.SoundVelocity = optional(values[3])
		}
	}
	if n > 4 {
		s.SoundVelocity = optional(values[4])
	}

	return s, true
}

// RecoverLine parses a line whose head was lost to buffer eviction. The evicted
// line and the following one are glued together, so the longest suffix that
// has the exact lexical shape of a sensor line is parsed instead.
func RecoverLine(line []byte) (Sample, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	for start := range line {
		if matchShape(line[start:]) {
			return ParseLine(line[start:])
		}
	}
	return Sample{}, false
}

func optional(v float32) Optional {
	if v == Sentinel {
		return None()
	}
	return Some(v)
}

// cutField splits b around the first comma.
func cutField(b []byte) (field, rest []byte, more bool) {
	i := bytes.IndexByte(b, ',')
	if i < 0 {
		return b, nil, false
	}
	return b[:i], b[i+1:], true
}

// parseField converts the numeric prefix of tok after leading whitespace.
// frac is the number of digits following the decimal point.
func parseField(tok []byte) (v float32, frac int, ok bool) {
	tok = trimLeftSpace(tok)

	n, frac := scanNumber(tok)
	if n == 0 {
		return 0, 0, false
	}

	f, err := strconv.ParseFloat(string(tok[:n]), 32)
	if err != nil {
		return 0, 0, false
	}
	return float32(f), frac, true
}

// scanNumber returns the length of the longest prefix of b that reads as a
// decimal floating point number, and its count of fractional digits. n is zero
// when b does not start with a number.
func scanNumber(b []byte) (n, frac int) {
	i := 0
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		i++
	}

	digits := countDigits(b[i:])
	i += digits

	if i < len(b) && b[i] == '.' {
		frac = countDigits(b[i+1:])
		i += 1 + frac
	}
	if digits+frac == 0 {
		return 0, 0
	}

	if i < len(b) && (b[i] == 'e' || b[i] == 'E') {
		j := i + 1
		if j < len(b) && (b[j] == '+' || b[j] == '-') {
			j++
		}
		if exp := countDigits(b[j:]); exp > 0 {
			i = j + exp
		}
	}

	return i, frac
}

// matchShape reports whether b is exactly a sensor line: three to five fields
// with the widths and precisions the SBE 49 uses, and nothing else. The first
// field must be exactly fieldWidth bytes wide.
func matchShape(b []byte) bool {
	var shapes [maxFields]shape
	shapes[0], shapes[1], shapes[2] = temperatureShape, conductivityShape, pressureShape

	n := 0
	rest := b
	for {
		tok, tail, more := cutField(rest)
		if n == maxFields {
			return false
		}
		switch n {
		case 3:
			// Disambiguated by precision like ParseLine does.
			_, frac, ok := fieldShape(tok)
			if !ok {
				return false
			}
			if frac == salinityPrecision {
				shapes[3] = salinityShape
			} else {
				shapes[3] = soundVelocityShape
			}
		case 4:
			if shapes[3] != salinityShape {
				return false
			}
			shapes[4] = soundVelocityShape
		}

		// The sensor pads the first field to exactly fieldWidth columns, so a
		// sign or digit left over from the evicted bytes cannot extend it.
		if n == 0 && len(tok) != fieldWidth {
			return false
		}

		intDigits, frac, ok := fieldShape(tok)
		if !ok || intDigits < shapes[n].minInt || intDigits > shapes[n].maxInt || frac != shapes[n].frac {
			return false
		}
		n++
		if !more {
			break
		}
		rest = tail
	}

	return n >= requiredFields
}

// fieldShape checks that tok is spaces, an optional sign, digits, a decimal
// point and digits, and returns the digit counts on either side of the point.
func fieldShape(tok []byte) (intDigits, frac int, ok bool) {
	i := 0
	for i < len(tok) && tok[i] == ' ' {
		i++
	}
	if i < len(tok) && (tok[i] == '-' || tok[i] == '+') {
		i++
	}
	intDigits = countDigits(tok[i:])
	i += intDigits
	if i >= len(tok) || tok[i] != '.' {
		return 0, 0, false
	}
	i++
	frac = countDigits(tok[i:])
	i += frac
	return intDigits, frac, i == len(tok) && intDigits > 0 && frac > 0
}

func countDigits(b []byte) int {
	n := 0
	for n < len(b) && b[n] >= '0' && b[n] <= '9' {
		n++
	}
	return n
}

func trimLeftSpace(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	return b
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
