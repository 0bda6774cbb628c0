package property

import (
	"math"
	"strconv"
	"strings"
)

// Domain is the set of legal values of a numeric setting
type Domain interface {
	Contains(float64) bool
	String() string
}

// Range is an interval.  Both ends are closed unless MinOpen or MaxOpen is set.
type Range struct {
	Min, Max         float64
	MinOpen, MaxOpen bool
}

// Contains returns true if v lies inside the interval.  NaN is never contained.
func (r Range) Contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if v < r.Min || (r.MinOpen && v == r.Min) {
		return false
	}
	if v > r.Max || (r.MaxOpen && v == r.Max) {
		return false
	}
	return true
}

func (r Range) String() string {
	lo, hi := "[", "]"
	if r.MinOpen {
		lo = "("
	}
	if r.MaxOpen {
		hi = ")"
	}
	return lo + formatFloat(r.Min) + ", " + formatFloat(r.Max) + hi
}

// Discrete is a finite set of legal values.  Membership is exact up to a
// relative tolerance of 1e-9, enough to absorb unit conversion rounding.
type Discrete []float64

// Index returns the position of v in d, or -1
func (d Discrete) Index(v float64) int {
	for i, x := range d {
		if v == x || math.Abs(v-x) <= 1e-9*math.Abs(x) {
			return i
		}
	}
	return -1
}

// Contains returns true if v is a member of d
func (d Discrete) Contains(v float64) bool {
	return d.Index(v) >= 0
}

func (d Discrete) String() string {
	s := make([]string, len(d))
	for i, v := range d {
		s[i] = formatFloat(v)
	}
	return "{" + strings.Join(s, ", ") + "}"
}

// formatFloat renders v in fixed-point notation with as few digits as
// round-trip, the form every instrument here accepts
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
