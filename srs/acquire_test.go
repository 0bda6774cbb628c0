package srs

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/property"
	"github.com/nasa-jpl/instrumentkit/units"
)

func TestAcquisitionTime(t *testing.T) {
	tests := []struct {
		n        int
		hz       float64
		expected time.Duration
	}{
		{10, 1, 10100 * time.Millisecond},
		{512, 512, 1100 * time.Millisecond},
		{3, 0.0625, 48100 * time.Millisecond},
		{5, 2, 3100 * time.Millisecond},
	}
	for _, test := range tests {
		if got := AcquisitionTime(test.n, test.hz); got != test.expected {
			t.Errorf("%d at %g Hz: expected %v got %v", test.n, test.hz, test.expected, got)
		}
	}
}

func TestTakeMeasurementCommandOrder(t *testing.T) {
	s, m, slept := newTestSR830(t)
	m.Reply("SPTS?", "10").
		Reply("TRCA?1,0,10", "1,2,3,4,5,6,7,8,9,10").
		Reply("TRCA?2,0,10", "0,0,0,0,0,0,0,0,0,0")
	data, err := s.TakeMeasurement(units.Bare(1), 10)
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{
		"REST", "SRAT 4", "SEND 0", "FAST 2", "STRD", "PAUS",
		"SPTS?",
		"SPTS?", "TRCA?1,0,10",
		"SPTS?", "TRCA?2,0,10",
	}
	if diff := cmp.Diff(expected, m.Log()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{10100 * time.Millisecond}, *slept); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
	if len(data[0]) != 10 || data[0][9] != 10 || len(data[1]) != 10 {
		t.Errorf("unexpected data %v", data)
	}
}

func TestTakeMeasurementIgnoresFlushReply(t *testing.T) {
	s, m, _ := newTestSR830(t)
	m.Reply("SPTS?", "garbage", "2").
		Reply("TRCA?1,0,2", "1,1").
		Reply("TRCA?2,0,2", "2,2")
	data, err := s.TakeMeasurement(units.New(16, units.Hertz), 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([2][]float64{{1, 1}, {2, 2}}, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestTakeMeasurementRejectsBeforeIO(t *testing.T) {
	s, m, slept := newTestSR830(t)
	tests := []struct {
		rate units.Quantity
		n    int
	}{
		{units.Bare(1), MaxSamples + 1},
		{units.Bare(1), 0},
		{units.Bare(3), 10},
		{units.Bare(1024), 10},
	}
	for _, test := range tests {
		_, err := s.TakeMeasurement(test.rate, test.n)
		if !errors.Is(err, property.ErrValidation) {
			t.Errorf("%v, %d: expected validation error got %v", test.rate, test.n, err)
		}
	}
	if _, err := s.TakeMeasurement(units.New(1, units.Volt), 10); !errors.Is(err, property.ErrType) {
		t.Errorf("expected type error for volts, got %v", err)
	}
	if len(m.Log()) != 0 || len(*slept) != 0 {
		t.Errorf("expected no I/O, got %v and sleeps %v", m.Log(), *slept)
	}
}

func TestTakeMeasurementTransportError(t *testing.T) {
	s, m, slept := newTestSR830(t)
	m.Errs["STRD"] = errors.New("bus fault")
	if _, err := s.TakeMeasurement(units.Bare(1), 10); err == nil {
		t.Error("expected the transport error")
	}
	if len(*slept) != 0 {
		t.Errorf("expected no wait after a failed start, got %v", *slept)
	}
}

func TestTakeMeasurementSimulated(t *testing.T) {
	sim := NewSimulator()
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	sim.Now = func() time.Time { return now }
	s, err := NewSR830(sim, Config{Log: quiet(), Sleep: func(d time.Duration) { now = now.Add(d) }})
	if err != nil {
		t.Fatal(err)
	}
	data, err := s.TakeMeasurement(units.Bare(4), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(data[0]) != 8 || len(data[1]) != 8 {
		t.Fatalf("expected 8 points per channel, got %d and %d", len(data[0]), len(data[1]))
	}
	if data[0][0] != 1 || data[1][0] != 0 {
		t.Errorf("expected X=1 Y=0 got %g, %g", data[0][0], data[1][0])
	}
}

func TestSampleRateParse(t *testing.T) {
	v, err := sampleRate.Parse("Trigger")
	if err != nil || v != TriggerRate {
		t.Errorf("expected trigger got %v, %v", v, err)
	}
	v, err = sampleRate.Parse("0.5Hz")
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := sampleRate.Encode(v.(SampleRate))
	if err != nil || cmd != "SRAT 3" {
		t.Errorf("expected SRAT 3 got %q, %v", cmd, err)
	}
}

func TestSampleRateDecodeOutOfRange(t *testing.T) {
	if _, err := sampleRate.Decode("15"); !errors.Is(err, property.ErrDecode) {
		t.Errorf("expected decode error got %v", err)
	}
	r, err := sampleRate.Decode("0")
	if err != nil || r.String() != "0.0625 Hz" {
		t.Errorf("expected 0.0625 Hz got %v, %v", r, err)
	}
}

var _ comm.Channel = (*Simulator)(nil)
