// Package util contains misc internal utilities.
package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseFloatCSV converts CSV formatted numbers to a slice of float64.
// e.g., "1.5,2,-3e-4" => []float64{1.5, 2, -0.0003}.  Whitespace around
// fields and a trailing comma are tolerated.
func ParseFloatCSV(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ",")
	if s == "" {
		return []float64{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// GetBit returns the value of a given bit in a byte
func GetBit(b byte, bitIndex uint) bool {
	return b&(1<<bitIndex) != 0
}

// SetBit sets a given bit in a byte and returns the result
func SetBit(b byte, bitIndex uint, value bool) byte {
	if value {
		return b | (1 << bitIndex)
	}
	return b &^ (1 << bitIndex)
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}
