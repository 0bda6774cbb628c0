package srs

import (
	"errors"
	"strings"
	"testing"

	"github.com/nasa-jpl/instrumentkit/property"
)

func TestParseModeCaseInsensitive(t *testing.T) {
	for _, in := range []string{"THETA", "Theta", " theta "} {
		m, err := ParseMode(in)
		if err != nil || m != Theta {
			t.Errorf("%q: expected theta got %q, %v", in, m, err)
		}
	}
	if _, err := ParseMode("phi"); !errors.Is(err, property.ErrValidation) {
		t.Errorf("expected validation error got %v", err)
	}
}

func TestModeErrorListsValid(t *testing.T) {
	_, err := autoOffsetCodes.code(Theta)
	var me ModeError
	if !errors.As(err, &me) {
		t.Fatalf("expected ModeError got %v", err)
	}
	if !strings.Contains(err.Error(), "x, y, r") {
		t.Errorf("expected valid modes in order, got %q", err.Error())
	}
}

func TestSnapCodes(t *testing.T) {
	tests := map[Mode]int{X: 1, Y: 2, R: 3, Theta: 4, Aux1: 5, Aux4: 8, Ref: 9, Ch1: 10, Ch2: 11}
	for m, expected := range tests {
		got, err := snapCodes.code(m)
		if err != nil || got != expected {
			t.Errorf("%s: expected %d got %d, %v", m, expected, got, err)
		}
	}
}

func TestParseOutputInterface(t *testing.T) {
	tests := map[string]OutputInterface{"": AutoInterface, "GPIB": GPIBInterface, "serial": SerialInterface, "rs232": SerialInterface}
	for in, expected := range tests {
		oi, err := ParseOutputInterface(in)
		if err != nil || oi != expected {
			t.Errorf("%q: expected %d got %d, %v", in, expected, oi, err)
		}
	}
	if _, err := ParseOutputInterface("ethernet"); err == nil {
		t.Error("expected ethernet to be refused")
	}
}
