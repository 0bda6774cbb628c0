package srs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nasa-jpl/instrumentkit/property"
)

// Mode names a measured or displayed quantity.  Strings are accepted in any
// case, Mode("X") and X are the same mode.
type Mode string

const (
	X      Mode = "x"
	Y      Mode = "y"
	R      Mode = "r"
	Theta  Mode = "theta"
	XNoise Mode = "xnoise"
	YNoise Mode = "ynoise"
	Aux1   Mode = "aux1"
	Aux2   Mode = "aux2"
	Aux3   Mode = "aux3"
	Aux4   Mode = "aux4"
	Ref    Mode = "ref"
	Ch1    Mode = "ch1"
	Ch2    Mode = "ch2"
	None   Mode = "none"
)

var allModes = map[Mode]struct{}{
	X: {}, Y: {}, R: {}, Theta: {}, XNoise: {}, YNoise: {},
	Aux1: {}, Aux2: {}, Aux3: {}, Aux4: {}, Ref: {}, Ch1: {}, Ch2: {}, None: {},
}

// ModeError is generated when a mode is unknown or is not accepted by an operation
type ModeError struct {
	Op    string
	Mode  Mode
	Valid []Mode
}

func (e ModeError) Error() string {
	if len(e.Valid) == 0 {
		return fmt.Sprintf("%s: unknown mode %q", e.Op, string(e.Mode))
	}
	v := make([]string, len(e.Valid))
	for i, m := range e.Valid {
		v[i] = string(m)
	}
	return fmt.Sprintf("%s: mode %q is not one of %s", e.Op, string(e.Mode), strings.Join(v, ", "))
}

// Unwrap returns property.ErrValidation
func (e ModeError) Unwrap() error {
	return property.ErrValidation
}

// ParseMode normalizes s to a Mode
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := allModes[m]; !ok {
		return "", ModeError{Op: "parse", Mode: Mode(s)}
	}
	return m, nil
}

// modeTable translates modes to the wire codes one command accepts
type modeTable struct {
	op    string
	codes map[Mode]int
}

func (t modeTable) valid() []Mode {
	out := make([]Mode, 0, len(t.codes))
	for m := range t.codes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return t.codes[out[i]] < t.codes[out[j]] })
	return out
}

func (t modeTable) code(m Mode) (int, error) {
	n, err := ParseMode(string(m))
	if err != nil {
		return 0, ModeError{Op: t.op, Mode: m}
	}
	c, ok := t.codes[n]
	if !ok {
		return 0, ModeError{Op: t.op, Mode: m, Valid: t.valid()}
	}
	return c, nil
}

var (
	autoOffsetCodes = modeTable{"auto offset", map[Mode]int{X: 1, Y: 2, R: 3}}

	offsetExpandCodes = modeTable{"offset expand", map[Mode]int{X: 1, Y: 2, R: 3}}

	snapCodes = modeTable{"snap", map[Mode]int{
		X: 1, Y: 2, R: 3, Theta: 4,
		Aux1: 5, Aux2: 6, Aux3: 7, Aux4: 8,
		Ref: 9, Ch1: 10, Ch2: 11}}

	bufferCodes = modeTable{"read buffer", map[Mode]int{Ch1: 1, Ch2: 2}}

	displayChannelCodes = modeTable{"channel display", map[Mode]int{Ch1: 1, Ch2: 2}}

	// displayCodes and ratioCodes are indexed by channel code - 1
	displayCodes = [2]modeTable{
		{"channel 1 display", map[Mode]int{X: 0, R: 1, XNoise: 2, Aux1: 3, Aux2: 4}},
		{"channel 2 display", map[Mode]int{Y: 0, Theta: 1, YNoise: 2, Aux3: 3, Aux4: 4}},
	}
	ratioCodes = [2]modeTable{
		{"channel 1 ratio", map[Mode]int{None: 0, Aux1: 1, Aux2: 2}},
		{"channel 2 ratio", map[Mode]int{None: 0, Aux3: 1, Aux4: 2}},
	}
)
