package srs

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nasa-jpl/instrumentkit/property"
	"github.com/nasa-jpl/instrumentkit/units"
	"github.com/nasa-jpl/instrumentkit/util"
)

const (
	// MaxSamples is the depth of each channel's data buffer
	MaxSamples = 16383

	// settleMargin is added to the computed acquisition time so the last
	// sample lands before PAUS
	settleMargin = 100 * time.Millisecond

	triggerIndex = 14
)

// sampleRates are the SRAT rates in Hz, 2^-4 through 2^9, in index order
var sampleRates = property.Discrete{
	0.0625, 0.125, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 128, 256, 512}

// SampleRate is a buffer sample rate, either a rate in Hz or the external trigger
type SampleRate struct {
	Rate    units.Quantity
	Trigger bool
}

// Rate returns a SampleRate of q, bare values are Hz
func Rate(q units.Quantity) SampleRate {
	return SampleRate{Rate: q}
}

// TriggerRate samples on each external trigger
var TriggerRate = SampleRate{Trigger: true}

func (r SampleRate) String() string {
	if r.Trigger {
		return "trigger"
	}
	return units.Assume(r.Rate, units.Hertz).String()
}

// hertz returns the rate in Hz, validated against the SR830's rates
func (r SampleRate) hertz() (float64, error) {
	q := units.Assume(r.Rate, units.Hertz)
	hz, err := q.In(units.Hertz)
	if err != nil {
		return 0, property.TypeError{Setting: sampleRate.Name, Want: "frequency", Got: r.Rate}
	}
	if !sampleRates.Contains(hz) {
		return 0, property.ValidationError{Setting: sampleRate.Name, Value: q, Domain: sampleRates.String() + " Hz or trigger"}
	}
	return hz, nil
}

func (r SampleRate) index() (int, error) {
	if r.Trigger {
		return triggerIndex, nil
	}
	hz, err := r.hertz()
	if err != nil {
		return 0, err
	}
	return sampleRates.Index(hz), nil
}

// sampleRateSetting is SRAT, an index into sampleRates or the trigger
type sampleRateSetting struct {
	Name string
}

var sampleRate = sampleRateSetting{Name: "sample-rate"}

func (s sampleRateSetting) Encode(r SampleRate) (string, error) {
	idx, err := r.index()
	if err != nil {
		return "", err
	}
	return "SRAT " + strconv.Itoa(idx), nil
}

func (s sampleRateSetting) Decode(reply string) (SampleRate, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return SampleRate{}, property.DecodeError{Setting: s.Name, Reply: reply, Err: err}
	}
	switch {
	case idx == triggerIndex:
		return TriggerRate, nil
	case idx >= 0 && idx < len(sampleRates):
		return Rate(units.New(sampleRates[idx], units.Hertz)), nil
	default:
		return SampleRate{}, property.DecodeError{Setting: s.Name, Reply: reply}
	}
}

func (s sampleRateSetting) Write(t property.Transport, r SampleRate) error {
	cmd, err := s.Encode(r)
	if err != nil {
		return err
	}
	return t.Send(cmd)
}

func (s sampleRateSetting) Read(t property.Transport) (SampleRate, error) {
	reply, err := t.Query("SRAT?")
	if err != nil {
		return SampleRate{}, err
	}
	return s.Decode(reply)
}

func (s sampleRateSetting) SettingName() string { return s.Name }

func (s sampleRateSetting) ReadAny(t property.Transport) (interface{}, error) { return s.Read(t) }

// WriteAny accepts a SampleRate or a units.Quantity
func (s sampleRateSetting) WriteAny(t property.Transport, v interface{}) error {
	switch x := v.(type) {
	case SampleRate:
		return s.Write(t, x)
	case units.Quantity:
		return s.Write(t, Rate(x))
	default:
		return property.TypeError{Setting: s.Name, Want: "sample rate", Got: v}
	}
}

// Parse accepts "trigger" or a frequency
func (s sampleRateSetting) Parse(str string) (interface{}, error) {
	if strings.EqualFold(strings.TrimSpace(str), "trigger") {
		return TriggerRate, nil
	}
	q, err := units.Parse(str)
	if err != nil {
		return nil, err
	}
	return Rate(q), nil
}

// AcquisitionTime is how long TakeMeasurement waits for n samples at rate hz
func AcquisitionTime(n int, hz float64) time.Duration {
	return util.SecsToDuration(math.Ceil(float64(n)/hz)) + settleMargin
}

// TakeMeasurement fills the data buffer with n samples at rate and returns
// the contents of channel 1 and channel 2, in that order.
//
// The buffer is cleared, set to one-shot, and filled with fast transfer on.
// Between starting and pausing the scan, the only wait is a single call to
// Config.Sleep for AcquisitionTime(n, rate).  n must be 1 to MaxSamples.
func (s *SR830) TakeMeasurement(rate units.Quantity, n int) ([2][]float64, error) {
	var out [2][]float64
	if n < 1 || n > MaxSamples {
		return out, property.ValidationError{Setting: "samples", Value: n, Domain: "[1, " + strconv.Itoa(MaxSamples) + "]"}
	}
	sr := Rate(rate)
	hz, err := sr.hertz()
	if err != nil {
		return out, err
	}
	wait := AcquisitionTime(n, hz)
	log := s.log.WithFields(logrus.Fields{"samples": n, "rate": sr.String()})

	if err = s.Init(sr, OneShot); err != nil {
		return out, err
	}
	if err = s.StartDataTransfer(); err != nil {
		return out, err
	}
	log.WithField("wait", wait).Info("acquisition started")
	s.sleep(wait)
	if err = s.Pause(); err != nil {
		return out, err
	}
	s.discardPointCount()

	for i, ch := range []Mode{Ch1, Ch2} {
		out[i], err = s.ReadDataBuffer(ch)
		if err != nil {
			return out, err
		}
	}
	log.WithFields(logrus.Fields{"ch1": len(out[0]), "ch2": len(out[1])}).Info("acquisition complete")
	return out, nil
}

// discardPointCount asks for the point count and drops the answer.  After
// PAUS the SR830 does not hand over the tail of the buffer until SPTS? is
// asked once; the count it gives at that moment is not reliable.
func (s *SR830) discardPointCount() {
	if _, err := s.NumDataPoints(); err != nil {
		s.log.WithError(err).Debug("point count after pause ignored")
	}
}
