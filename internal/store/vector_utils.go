package store

import (
	"errors"
	"strconv"
	"unsafe"
)

// encodeVector renders v as a compact JSON array. Values use the shortest
// float32 representation so parseVector restores them exactly.
func encodeVector(v []float32) string {
	buf := make([]byte, 0, 2+len(v)*12)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(f), 'g', -1, 32)
	}
	buf = append(buf, ']')
	return string(buf)
}

// parseVector parses a JSON array of floats into dest, reusing its capacity.
func parseVector(data []byte, dest []float32) ([]float32, error) {
	dest = dest[:0]

	i := skipSpace(data, 0)
	if i == len(data) {
		return dest, nil
	}
	if data[i] != '[' {
		return nil, errors.New("expected '[' at start of vector")
	}
	i++

	for i < len(data) {
		i = skipSpace(data, i)
		if i == len(data) {
			break
		}
		if data[i] == ']' {
			return dest, nil
		}

		start := i
		for i < len(data) && data[i] != ',' && data[i] != ']' && !isSpace(data[i]) {
			i++
		}

		if numBytes := data[start:i]; len(numBytes) > 0 {
			// No allocation: the string does not outlive this call.
			s := unsafe.String(&numBytes[0], len(numBytes))
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, err
			}
			dest = append(dest, float32(f))
		}

		i = skipSpace(data, i)
		if i < len(data) && data[i] == ',' {
			i++
		} else if i < len(data) && data[i] == ']' {
			return dest, nil
		}
	}

	return nil, errors.New("unterminated vector")
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	return i
}
