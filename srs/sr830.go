/*Package srs enables working with Stanford Research Systems lock-in amplifiers.

The SR830 is driven over RS232 or GPIB with short ASCII mnemonics.  Settings
are typed: frequencies in Hz, phases in degrees and amplitudes in volts
peak-to-peak are units.Quantity values, and bare numbers are taken to be in
those units.  Every value is checked against the instrument's legal range
before anything is written.
*/
package srs

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/property"
	"github.com/nasa-jpl/instrumentkit/units"
	"github.com/nasa-jpl/instrumentkit/util"
)

// ErrConfiguration is generated when an SR830 cannot be set up for its channel
var ErrConfiguration = errors.New("sr830 configuration invalid")

// ConfigurationError is generated when the output interface cannot be chosen
type ConfigurationError struct {
	Kind comm.Kind
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("no OUTX interface is known for a %s channel, set Config.OutputInterface", e.Kind)
}

// Unwrap returns ErrConfiguration
func (e ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// FreqSource is the reference source
type FreqSource int

const (
	// External reference input
	External FreqSource = iota
	// Internal oscillator
	Internal
)

func (f FreqSource) String() string {
	switch f {
	case External:
		return "external"
	case Internal:
		return "internal"
	default:
		return "FreqSource(" + strconv.Itoa(int(f)) + ")"
	}
}

// Coupling is the input coupling
type Coupling int

const (
	AC Coupling = iota
	DC
)

func (c Coupling) String() string {
	switch c {
	case AC:
		return "ac"
	case DC:
		return "dc"
	default:
		return "Coupling(" + strconv.Itoa(int(c)) + ")"
	}
}

// BufferMode is what the data buffer does when it fills
type BufferMode int

const (
	// OneShot stops acquiring
	OneShot BufferMode = iota
	// Loop overwrites the oldest points
	Loop
)

func (b BufferMode) String() string {
	switch b {
	case OneShot:
		return "one-shot"
	case Loop:
		return "loop"
	default:
		return "BufferMode(" + strconv.Itoa(int(b)) + ")"
	}
}

// OutputInterface is the interface the SR830 answers queries on, sent as OUTX
type OutputInterface int

const (
	// AutoInterface picks the interface from the kind of channel
	AutoInterface OutputInterface = iota
	// GPIBInterface is OUTX 1
	GPIBInterface
	// SerialInterface is OUTX 2
	SerialInterface
)

// ParseOutputInterface reads "gpib" or "serial" ("rs232"), empty is AutoInterface
func ParseOutputInterface(s string) (OutputInterface, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return AutoInterface, nil
	case "gpib":
		return GPIBInterface, nil
	case "serial", "rs232":
		return SerialInterface, nil
	default:
		return 0, fmt.Errorf("output interface %q not understood, use gpib or serial", s)
	}
}

var outputInterfaceByKind = map[comm.Kind]OutputInterface{
	comm.GPIB:   GPIBInterface,
	comm.USBTMC: GPIBInterface,
	comm.Serial: SerialInterface,
}

// Config holds the optional parts of an SR830's setup
type Config struct {
	// OutputInterface overrides the choice of OUTX command
	OutputInterface OutputInterface

	// Sleep waits out an acquisition, time.Sleep if nil
	Sleep func(time.Duration)

	// Log is the standard logger if nil
	Log logrus.FieldLogger
}

var (
	freqSource = property.Enum[FreqSource]{
		Name: "frequency-source", Set: "FMOD", Members: []FreqSource{External, Internal}}

	frequency = property.Float{
		Name: "frequency", Set: "FREQ", Unit: units.Hertz,
		Domain: property.Range{Min: 0.001, Max: 102000}}

	phase = property.Float{
		Name: "phase", Set: "PHAS", Unit: units.Degree,
		Domain: property.Range{Min: -360, Max: 730, MaxOpen: true}}

	amplitude = property.Float{
		Name: "amplitude", Set: "SLVL", Unit: units.Volt,
		Domain: property.Range{Min: 0.004, Max: 5}}

	inputShieldGround = property.Bool{Name: "input-shield-ground", Set: "IGND"}

	coupling = property.Enum[Coupling]{Name: "coupling", Set: "ICPL", Members: []Coupling{AC, DC}}

	bufferMode = property.Enum[BufferMode]{Name: "buffer-mode", Set: "SEND", Members: []BufferMode{OneShot, Loop}}

	dataTransfer = property.Bool{Name: "data-transfer", Set: "FAST", True: "2", False: "0"}

	offsetRange  = property.Range{Min: -105, Max: 105}
	expandFactor = property.Discrete{1, 10, 100}
)

// pointCountAttempts bounds SPTS? retries, the buffer count reads blank while
// the SR830 is still filling its output queue
const pointCountAttempts = 10

// SR830 is a lock-in amplifier
type SR830 struct {
	ch    comm.Channel
	sleep func(time.Duration)
	log   logrus.FieldLogger
}

// NewSR830 takes exclusive use of ch and tells the SR830 which interface to
// answer on.  A channel of unknown kind needs Config.OutputInterface; without
// it a ConfigurationError is returned and nothing is written.
func NewSR830(ch comm.Channel, cfg Config) (*SR830, error) {
	oi := cfg.OutputInterface
	if oi == AutoInterface {
		kind := comm.KindOf(ch)
		var ok bool
		oi, ok = outputInterfaceByKind[kind]
		if !ok {
			return nil, ConfigurationError{Kind: kind}
		}
	}
	s := &SR830{ch: ch, sleep: cfg.Sleep, log: cfg.Log}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if err := ch.Send("OUTX " + strconv.Itoa(int(oi))); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the channel if it can be closed
func (s *SR830) Close() error {
	if c, ok := s.ch.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Raw sends a command and returns the reply if it is a query
func (s *SR830) Raw(cmd string) (string, error) {
	if strings.Contains(cmd, "?") {
		return s.ch.Query(cmd)
	}
	return "", s.ch.Send(cmd)
}

// GetFrequencySource returns the reference source
func (s *SR830) GetFrequencySource() (FreqSource, error) {
	return freqSource.Read(s.ch)
}

// SetFrequencySource sets the reference source
func (s *SR830) SetFrequencySource(f FreqSource) error {
	return freqSource.Write(s.ch, f)
}

// GetFrequency returns the reference frequency in Hz
func (s *SR830) GetFrequency() (units.Quantity, error) {
	return frequency.Read(s.ch)
}

// SetFrequency sets the reference frequency, bare values are Hz
func (s *SR830) SetFrequency(q units.Quantity) error {
	return frequency.Write(s.ch, q)
}

// GetPhase returns the reference phase in degrees
func (s *SR830) GetPhase() (units.Quantity, error) {
	return phase.Read(s.ch)
}

// SetPhase sets the reference phase, bare values are degrees.
// The SR830 accepts -360 <= phase < 730.
func (s *SR830) SetPhase(q units.Quantity) error {
	return phase.Write(s.ch, q)
}

// GetAmplitude returns the sine output amplitude in volts peak-to-peak
func (s *SR830) GetAmplitude() (units.Quantity, error) {
	return amplitude.Read(s.ch)
}

// SetAmplitude sets the sine output amplitude, bare values are volts
// peak-to-peak in 0.004 to 5.
func (s *SR830) SetAmplitude(q units.Quantity) error {
	return amplitude.Write(s.ch, q)
}

// GetInputShieldGround returns true if the input shield is grounded
func (s *SR830) GetInputShieldGround() (bool, error) {
	return inputShieldGround.Read(s.ch)
}

// SetInputShieldGround grounds (true) or floats (false) the input shield
func (s *SR830) SetInputShieldGround(b bool) error {
	return inputShieldGround.Write(s.ch, b)
}

// GetCoupling returns the input coupling
func (s *SR830) GetCoupling() (Coupling, error) {
	return coupling.Read(s.ch)
}

// SetCoupling sets the input coupling
func (s *SR830) SetCoupling(c Coupling) error {
	return coupling.Write(s.ch, c)
}

// GetSampleRate returns the buffer sample rate
func (s *SR830) GetSampleRate() (SampleRate, error) {
	return sampleRate.Read(s.ch)
}

// SetSampleRate sets the buffer sample rate
func (s *SR830) SetSampleRate(r SampleRate) error {
	return sampleRate.Write(s.ch, r)
}

// GetBufferMode returns the buffer end mode
func (s *SR830) GetBufferMode() (BufferMode, error) {
	return bufferMode.Read(s.ch)
}

// SetBufferMode sets the buffer end mode
func (s *SR830) SetBufferMode(b BufferMode) error {
	return bufferMode.Write(s.ch, b)
}

// GetDataTransfer returns true if fast data transfer is on
func (s *SR830) GetDataTransfer() (bool, error) {
	return dataTransfer.Read(s.ch)
}

// SetDataTransfer turns fast data transfer on or off
func (s *SR830) SetDataTransfer(b bool) error {
	return dataTransfer.Write(s.ch, b)
}

// NumDataPoints returns the number of points in the data buffer
func (s *SR830) NumDataPoints() (int, error) {
	resp, err := comm.QueryNonEmpty(s.ch, "SPTS?", pointCountAttempts)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, property.DecodeError{Setting: "points", Reply: resp, Err: err}
	}
	return n, nil
}

// Settings returns every typed setting bound to this SR830
func (s *SR830) Settings() []property.Bound {
	all := []property.Setting{
		freqSource, frequency, phase, amplitude, inputShieldGround,
		coupling, sampleRate, bufferMode, dataTransfer,
	}
	out := make([]property.Bound, len(all))
	for i, set := range all {
		out[i] = property.Bound{Setting: set, Transport: s.ch}
	}
	return out
}

// AutoOffset zeroes the offset of X, Y, or R
func (s *SR830) AutoOffset(m Mode) error {
	code, err := autoOffsetCodes.code(m)
	if err != nil {
		return err
	}
	return s.ch.Send("AOFF " + strconv.Itoa(code))
}

// AutoPhase adjusts the reference phase to zero theta
func (s *SR830) AutoPhase() error {
	return s.ch.Send("APHS")
}

// SetOffsetExpand sets the offset, in percent of full scale, and the expand
// factor, 1, 10 or 100, of X, Y, or R
func (s *SR830) SetOffsetExpand(m Mode, offset float64, expand int) error {
	code, err := offsetExpandCodes.code(m)
	if err != nil {
		return err
	}
	if !offsetRange.Contains(offset) {
		return property.ValidationError{Setting: "offset", Value: offset, Domain: offsetRange.String() + " %"}
	}
	idx := expandFactor.Index(float64(expand))
	if idx < 0 {
		return property.ValidationError{Setting: "expand", Value: expand, Domain: expandFactor.String()}
	}
	return s.ch.Send(fmt.Sprintf("OEXP %d,%s,%d", code, strconv.FormatFloat(offset, 'f', -1, 64), idx))
}

// StartScan starts or resumes filling the data buffer
func (s *SR830) StartScan() error {
	return s.ch.Send("STRD")
}

// Pause pauses filling the data buffer
func (s *SR830) Pause() error {
	return s.ch.Send("PAUS")
}

// ClearDataBuffer empties the data buffer
func (s *SR830) ClearDataBuffer() error {
	return s.ch.Send("REST")
}

// DataSnap reads two quantities at the same instant, in the order asked
func (s *SR830) DataSnap(a, b Mode) ([]float64, error) {
	ca, err := snapCodes.code(a)
	if err != nil {
		return nil, err
	}
	cb, err := snapCodes.code(b)
	if err != nil {
		return nil, err
	}
	if ca == cb {
		return nil, property.ValidationError{Setting: "snap", Value: string(b), Domain: "modes other than " + string(a)}
	}
	resp, err := s.ch.Query("SNAP? " + util.IntSliceToCSV([]int{ca, cb}))
	if err != nil {
		return nil, err
	}
	vals, err := util.ParseFloatCSV(resp)
	if err != nil {
		return nil, property.DecodeError{Setting: "snap", Reply: resp, Err: err}
	}
	if len(vals) != 2 {
		return nil, property.DecodeError{Setting: "snap", Reply: resp, Err: fmt.Errorf("expected 2 values, got %d", len(vals))}
	}
	return vals, nil
}

// ReadDataBuffer reads every point in the data buffer of channel 1 or 2
func (s *SR830) ReadDataBuffer(channel Mode) ([]float64, error) {
	code, err := bufferCodes.code(channel)
	if err != nil {
		return nil, err
	}
	n, err := s.NumDataPoints()
	if err != nil {
		return nil, err
	}
	resp, err := s.ch.Query(fmt.Sprintf("TRCA?%d,0,%d", code, n))
	if err != nil {
		return nil, err
	}
	vals, err := util.ParseFloatCSV(resp)
	if err != nil {
		return nil, property.DecodeError{Setting: "buffer", Reply: resp, Err: err}
	}
	return vals, nil
}

// SetChannelDisplay selects what the front panel display of channel 1 or 2
// shows, and what it is divided by.  ratio None shows the display unscaled.
func (s *SR830) SetChannelDisplay(channel, display, ratio Mode) error {
	ch, err := displayChannelCodes.code(channel)
	if err != nil {
		return err
	}
	d, err := displayCodes[ch-1].code(display)
	if err != nil {
		return err
	}
	r, err := ratioCodes[ch-1].code(ratio)
	if err != nil {
		return err
	}
	if mustParse(display) == mustParse(ratio) {
		return property.ValidationError{Setting: "display", Value: string(ratio), Domain: "ratios other than the display"}
	}
	return s.ch.Send("DDEF " + util.IntSliceToCSV([]int{ch, d, r}))
}

// mustParse normalizes a mode already accepted by a modeTable
func mustParse(m Mode) Mode {
	n, _ := ParseMode(string(m))
	return n
}

// Init clears the data buffer, then sets the sample rate and buffer mode.
// Both values are checked before the buffer is cleared.
func (s *SR830) Init(rate SampleRate, mode BufferMode) error {
	rateCmd, err := sampleRate.Encode(rate)
	if err != nil {
		return err
	}
	modeCmd, err := bufferMode.Encode(mode)
	if err != nil {
		return err
	}
	for _, cmd := range []string{"REST", rateCmd, modeCmd} {
		if err := s.ch.Send(cmd); err != nil {
			return err
		}
	}
	return nil
}

// StartDataTransfer turns on fast data transfer and starts the scan
func (s *SR830) StartDataTransfer() error {
	if err := s.SetDataTransfer(true); err != nil {
		return err
	}
	return s.StartScan()
}

// Snapshot reads X, Y, R, theta and the reference frequency, the first four
// in two simultaneous pairs
func (s *SR830) Snapshot() (map[string]float64, error) {
	xy, err := s.DataSnap(X, Y)
	if err != nil {
		return nil, err
	}
	rt, err := s.DataSnap(R, Theta)
	if err != nil {
		return nil, err
	}
	f, err := s.GetFrequency()
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"x": xy[0], "y": xy[1], "r": rt[0], "theta": rt[1], "frequency": f.Magnitude}, nil
}
