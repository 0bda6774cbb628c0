/*Package thorlabs enables working with Thorlabs temperature controllers.

The TC200 speaks key=value assignments and key? queries terminated by a
carriage return.  It echoes every command, follows it with a reply line when
there is something to say, and ends with a ">" prompt.  A channel for a TC200
should frame replies on the prompt, see Terminators.
*/
package thorlabs

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"github.com/nasa-jpl/instrumentkit/comm"
	"github.com/nasa-jpl/instrumentkit/property"
	"github.com/nasa-jpl/instrumentkit/units"
	"github.com/nasa-jpl/instrumentkit/util"
)

const (
	// Terminator ends every command
	Terminator = "\r"

	// Prompt ends every reply
	Prompt = ">"

	// Baud is the TC200's fixed serial rate
	Baud = 115200

	undefinedSentinel = "CMD_NOT_DEFINED"
	invalidSentinel   = "CMD_ARG_INVALID"

	// nameAttempts bounds *idn? retries, the first command after a badly
	// terminated one is often answered CMD_NOT_DEFINED
	nameAttempts = 3
)

// Terminators frame a TC200 conversation: commands end in a carriage return,
// replies in the prompt.  A TC200 starts out with these, see SetTerminators.
var Terminators = comm.Terminators{Tx: Terminator[0], Rx: Prompt[0]}

var (
	// ErrCommandUndefined is generated when the TC200 does not know a command
	ErrCommandUndefined = errors.New("command not defined")

	// ErrArgumentInvalid is generated when the TC200 refuses an argument
	ErrArgumentInvalid = errors.New("command argument invalid")
)

// Outcome classifies a reply
type Outcome int

const (
	// Payload is an accepted command, possibly with a value
	Payload Outcome = iota
	// ArgumentInvalid is the CMD_ARG_INVALID sentinel
	ArgumentInvalid
	// CommandUndefined is the CMD_NOT_DEFINED sentinel
	CommandUndefined
)

func (o Outcome) String() string {
	switch o {
	case Payload:
		return "payload"
	case ArgumentInvalid:
		return "argument invalid"
	case CommandUndefined:
		return "command undefined"
	default:
		return "Outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// Response is a classified reply.  Payload is only meaningful when Outcome is Payload.
type Response struct {
	Outcome Outcome
	Payload string
	Raw     string
}

// RejectedError is generated when the TC200 answers with a sentinel
type RejectedError struct {
	Command string
	Outcome Outcome
	Raw     string
}

func (e RejectedError) Error() string {
	return fmt.Sprintf("tc200 rejected %q: %s", e.Command, e.Outcome)
}

// Is matches the sentinel the rejection carries and property.ErrDecode
func (e RejectedError) Is(target error) bool {
	switch target {
	case property.ErrDecode:
		return true
	case ErrCommandUndefined:
		return e.Outcome == CommandUndefined
	case ErrArgumentInvalid:
		return e.Outcome == ArgumentInvalid
	}
	return false
}

// Classify sorts a raw reply to cmd.  The undefined-command sentinel is
// checked first, then the invalid-argument one; anything else is a payload
// with the echo of cmd and both bytes of term removed.
func Classify(cmd, raw string, term comm.Terminators) Response {
	switch {
	case strings.Contains(raw, undefinedSentinel):
		return Response{Outcome: CommandUndefined, Raw: raw}
	case strings.Contains(raw, invalidSentinel):
		return Response{Outcome: ArgumentInvalid, Raw: raw}
	}
	p := strings.Replace(raw, cmd, "", 1)
	p = strings.ReplaceAll(p, string(term.Tx), "")
	p = strings.ReplaceAll(p, string(term.Rx), "")
	return Response{Outcome: Payload, Payload: strings.TrimSpace(p), Raw: raw}
}

// Err is nil for a payload and a RejectedError otherwise
func (r Response) Err(cmd string) error {
	if r.Outcome == Payload {
		return nil
	}
	return RejectedError{Command: cmd, Outcome: r.Outcome, Raw: r.Raw}
}

// checked is a property.Transport which classifies every reply.  Sets are
// round trips too, so the echo of a set never lingers in the channel.
type checked struct {
	ch   comm.Channel
	term comm.Terminators
	log  logrus.FieldLogger
}

func (c checked) exchange(cmd string) (string, error) {
	raw, err := c.ch.Query(cmd)
	if err != nil {
		return "", err
	}
	resp := Classify(cmd, raw, c.term)
	if err = resp.Err(cmd); err != nil {
		c.log.WithFields(logrus.Fields{"cmd": cmd, "outcome": resp.Outcome}).Warn("tc200 rejected command")
		return "", err
	}
	return resp.Payload, nil
}

func (c checked) Send(cmd string) error {
	_, err := c.exchange(cmd)
	return err
}

func (c checked) Query(cmd string) (string, error) {
	return c.exchange(cmd)
}

// Mode is the output mode
type Mode int

const (
	// Normal holds the setpoint
	Normal Mode = iota
	// Cycle runs the programmed temperature cycle
	Cycle
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Cycle:
		return "cycle"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Sensor is the thermistor type used to convert resistance to temperature
type Sensor int

const (
	PTC100 Sensor = iota
	PTC1000
	TH10K
)

func (s Sensor) String() string {
	switch s {
	case PTC100:
		return "ptc100"
	case PTC1000:
		return "ptc1000"
	case TH10K:
		return "th10k"
	default:
		return "Sensor(" + strconv.Itoa(int(s)) + ")"
	}
}

// Status is the stat? bit field
type Status byte

const (
	enableBit     = 0
	modeBit       = 1
	celsiusBit    = 4
	fahrenheitBit = 5
)

// Enabled is true when the heater output is on
func (s Status) Enabled() bool {
	return util.GetBit(byte(s), enableBit)
}

// Mode is the output mode
func (s Status) Mode() Mode {
	if util.GetBit(byte(s), modeBit) {
		return Cycle
	}
	return Normal
}

// Degrees is the display unit, Kelvin when neither the Celsius nor the
// Fahrenheit bit is set
func (s Status) Degrees() units.Unit {
	switch {
	case util.GetBit(byte(s), celsiusBit):
		return units.Celsius
	case util.GetBit(byte(s), fahrenheitBit):
		return units.Fahrenheit
	default:
		return units.Kelvin
	}
}

var (
	modeEnum = property.Enum[Mode]{
		Name: "mode", Set: "mode", Members: []Mode{Normal, Cycle},
		ByName: true, Syntax: property.AssignSyntax{}}

	enableBool = property.Bool{Name: "enable"}

	pGain = property.Int{
		Name: "p", Set: "pvalue", Get: "pid", Domain: property.Range{Min: 1, Max: 250},
		Syntax: property.AssignSyntax{}}.Fielded(0)

	iGain = property.Int{
		Name: "i", Set: "ivalue", Get: "pid", Domain: property.Range{Min: 0, Max: 250},
		Syntax: property.AssignSyntax{}}.Fielded(1)

	dGain = property.Int{
		Name: "d", Set: "dvalue", Get: "pid", Domain: property.Range{Min: 0, Max: 250},
		Syntax: property.AssignSyntax{}}.Fielded(2)

	sensor = property.Enum[Sensor]{
		Name: "sensor", Set: "sns", Members: []Sensor{PTC100, PTC1000, TH10K},
		ByName: true, Syntax: property.AssignSyntax{}}

	beta = property.Int{
		Name: "beta", Set: "beta", Domain: property.Range{Min: 2000, Max: 6000},
		Syntax: property.AssignSyntax{}}

	maxPower = property.Float{
		Name: "max-power", Set: "PMAX", Unit: units.Watt,
		Domain: property.Range{Min: 0.1, Max: 18}, Syntax: property.AssignSyntax{}}

	maxTemperature = property.Float{
		Name: "max-temperature", Set: "TMAX", Unit: units.Celsius,
		Domain: property.Range{Min: 20, Max: 205}, Syntax: property.AssignSyntax{}}

	setpoint = property.Float{
		Name: "temperature-setpoint", Set: "tset", Unit: units.Celsius,
		Domain: property.Range{Min: 20, Max: 205}, Syntax: property.AssignSyntax{}}

	degreeCodes = map[units.Unit]string{
		units.Celsius: "c", units.Fahrenheit: "f", units.Kelvin: "k"}
)

// TC200 is a single channel heater controller
type TC200 struct {
	ch  comm.Channel
	t   checked
	log logrus.FieldLogger
}

// NewTC200 takes exclusive use of ch, which must frame replies on the prompt.
// log is the standard logger if nil.
func NewTC200(ch comm.Channel, log logrus.FieldLogger) *TC200 {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TC200{ch: ch, t: checked{ch: ch, term: Terminators, log: log}, log: log}
}

// Terminators returns the terminator and prompt replies are cleaned of
func (tc *TC200) Terminators() comm.Terminators {
	return tc.t.term
}

// SetTerminators changes the terminator and prompt replies are cleaned of.
// It does not reframe the channel, which must be built with the same bytes.
func (tc *TC200) SetTerminators(term comm.Terminators) {
	tc.t.term = term
}

// NewRemoteTC200 returns a TC200 on a serial port or a TCP serial bridge
func NewRemoteTC200(addr string, isSerial bool, log logrus.FieldLogger) *TC200 {
	term := Terminators
	rd := comm.NewRemoteDevice(addr, isSerial, &term, &serial.Config{Name: addr, Baud: Baud})
	rd.Log = log
	return NewTC200(rd, log)
}

// Close closes the channel if it can be closed
func (tc *TC200) Close() error {
	if c, ok := tc.ch.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CheckCommand sends cmd and classifies the reply
func (tc *TC200) CheckCommand(cmd string) (Response, error) {
	raw, err := tc.ch.Query(cmd)
	if err != nil {
		return Response{}, err
	}
	return Classify(cmd, raw, tc.t.term), nil
}

// Raw sends cmd and returns the payload of the reply
func (tc *TC200) Raw(cmd string) (string, error) {
	return tc.t.Query(cmd)
}

// Name returns the model and firmware version.  CMD_NOT_DEFINED is retried.
func (tc *TC200) Name() (string, error) {
	var err error
	for i := 0; i < nameAttempts; i++ {
		var resp Response
		resp, err = tc.CheckCommand("*idn?")
		if err != nil {
			return "", err
		}
		if resp.Outcome == Payload {
			return resp.Payload, nil
		}
		err = resp.Err("*idn?")
		if resp.Outcome != CommandUndefined {
			break
		}
		tc.log.WithField("attempt", i+1).Debug("tc200 *idn? not defined, retrying")
	}
	return "", err
}

// GetStatus reads the status bits
func (tc *TC200) GetStatus() (Status, error) {
	return readStatus(tc.t)
}

func readStatus(t property.Transport) (Status, error) {
	reply, err := t.Query("stat?")
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil || i < 0 || i > 255 {
		return 0, property.DecodeError{Setting: "status", Reply: reply, Err: err}
	}
	return Status(i), nil
}

// GetMode returns the output mode
func (tc *TC200) GetMode() (Mode, error) {
	st, err := tc.GetStatus()
	return st.Mode(), err
}

// SetMode sets the output mode
func (tc *TC200) SetMode(m Mode) error {
	return modeEnum.Write(tc.t, m)
}

// GetEnable returns true if the heater output is on
func (tc *TC200) GetEnable() (bool, error) {
	st, err := tc.GetStatus()
	return st.Enabled(), err
}

// SetEnable turns the heater output on or off.  ens toggles, so the status
// is read first and ens is only sent on a change.
func (tc *TC200) SetEnable(b bool) error {
	return writeEnable(tc.t, b)
}

func writeEnable(t property.Transport, b bool) error {
	st, err := readStatus(t)
	if err != nil {
		return err
	}
	if st.Enabled() == b {
		return nil
	}
	return t.Send("ens")
}

// GetP returns the proportional gain
func (tc *TC200) GetP() (int, error) {
	return pGain.Read(tc.t)
}

// SetP sets the proportional gain, 1 to 250
func (tc *TC200) SetP(p int) error {
	return pGain.Write(tc.t, p)
}

// GetI returns the integral gain
func (tc *TC200) GetI() (int, error) {
	return iGain.Read(tc.t)
}

// SetI sets the integral gain, 0 to 250
func (tc *TC200) SetI(i int) error {
	return iGain.Write(tc.t, i)
}

// GetD returns the derivative gain
func (tc *TC200) GetD() (int, error) {
	return dGain.Read(tc.t)
}

// SetD sets the derivative gain, 0 to 250
func (tc *TC200) SetD(d int) error {
	return dGain.Write(tc.t, d)
}

// GetDegrees returns the display unit
func (tc *TC200) GetDegrees() (units.Unit, error) {
	st, err := tc.GetStatus()
	return st.Degrees(), err
}

// SetDegrees sets the display unit, units.Celsius, units.Fahrenheit or units.Kelvin
func (tc *TC200) SetDegrees(u units.Unit) error {
	return writeDegrees(tc.t, u)
}

func writeDegrees(t property.Transport, u units.Unit) error {
	code, ok := degreeCodes[u]
	if !ok {
		return property.TypeError{Setting: "degrees", Want: "temperature unit", Got: u.Symbol}
	}
	return t.Send("unit=" + code)
}

// GetSensor returns the thermistor type
func (tc *TC200) GetSensor() (Sensor, error) {
	return sensor.Read(tc.t)
}

// SetSensor sets the thermistor type
func (tc *TC200) SetSensor(s Sensor) error {
	return sensor.Write(tc.t, s)
}

// GetBeta returns the beta value of the thermistor curve
func (tc *TC200) GetBeta() (int, error) {
	return beta.Read(tc.t)
}

// SetBeta sets the beta value of the thermistor curve, 2000 to 6000
func (tc *TC200) SetBeta(b int) error {
	return beta.Write(tc.t, b)
}

// GetMaxPower returns the heater power limit in W
func (tc *TC200) GetMaxPower() (units.Quantity, error) {
	return maxPower.Read(tc.t)
}

// SetMaxPower sets the heater power limit, bare values are W in 0.1 to 18
func (tc *TC200) SetMaxPower(q units.Quantity) error {
	return maxPower.Write(tc.t, q)
}

// GetMaxTemperature returns the temperature limit in degrees C
func (tc *TC200) GetMaxTemperature() (units.Quantity, error) {
	return maxTemperature.Read(tc.t)
}

// SetMaxTemperature sets the temperature limit, bare values are degrees C in 20 to 205
func (tc *TC200) SetMaxTemperature(q units.Quantity) error {
	return maxTemperature.Write(tc.t, q)
}

// GetSetpoint returns the temperature setpoint in degrees C
func (tc *TC200) GetSetpoint() (units.Quantity, error) {
	return setpoint.Read(tc.t)
}

// SetSetpoint sets the temperature setpoint, bare values are degrees C
func (tc *TC200) SetSetpoint(q units.Quantity) error {
	return setpoint.Write(tc.t, q)
}

// GetTemperature returns the measured temperature.  A reply without a unit
// is in the display unit.
func (tc *TC200) GetTemperature() (units.Quantity, error) {
	reply, err := tc.t.Query("tact?")
	if err != nil {
		return units.Quantity{}, err
	}
	q, err := units.Parse(reply)
	if err != nil {
		return units.Quantity{}, property.DecodeError{Setting: "temperature", Reply: reply, Err: err}
	}
	if q.Tagged() {
		return q, nil
	}
	u, err := tc.GetDegrees()
	if err != nil {
		return units.Quantity{}, err
	}
	return units.New(q.Magnitude, u), nil
}

// Settings returns every typed setting bound to this TC200
func (tc *TC200) Settings() []property.Bound {
	all := []property.Setting{
		statusSetting{name: modeEnum.Name, facet: func(s Status) interface{} { return s.Mode() },
			write: modeEnum.WriteAny, parse: modeEnum.Parse},
		statusSetting{name: enableBool.Name, facet: func(s Status) interface{} { return s.Enabled() },
			write: writeEnableAny, parse: enableBool.Parse},
		statusSetting{name: "degrees", facet: func(s Status) interface{} { return s.Degrees() },
			write: writeDegreesAny, parse: parseDegrees},
		pGain, iGain, dGain, sensor, beta, maxPower, maxTemperature, setpoint,
	}
	out := make([]property.Bound, len(all))
	for i, set := range all {
		out[i] = property.Bound{Setting: set, Transport: tc.t}
	}
	return out
}

// statusSetting is read from one facet of stat? and written with its own command
type statusSetting struct {
	name  string
	facet func(Status) interface{}
	write func(property.Transport, interface{}) error
	parse func(string) (interface{}, error)
}

func (s statusSetting) SettingName() string { return s.name }

func (s statusSetting) ReadAny(t property.Transport) (interface{}, error) {
	st, err := readStatus(t)
	if err != nil {
		return nil, err
	}
	return s.facet(st), nil
}

func (s statusSetting) WriteAny(t property.Transport, v interface{}) error { return s.write(t, v) }

func (s statusSetting) Parse(str string) (interface{}, error) { return s.parse(str) }

func writeEnableAny(t property.Transport, v interface{}) error {
	b, ok := v.(bool)
	if !ok {
		return property.TypeError{Setting: enableBool.Name, Want: "bool", Got: v}
	}
	return writeEnable(t, b)
}

func writeDegreesAny(t property.Transport, v interface{}) error {
	u, ok := v.(units.Unit)
	if !ok {
		return property.TypeError{Setting: "degrees", Want: "temperature unit", Got: v}
	}
	return writeDegrees(t, u)
}

func parseDegrees(str string) (interface{}, error) {
	u, err := units.Lookup(str)
	if err != nil {
		return nil, err
	}
	if u.Dim != units.Temperature {
		return nil, property.TypeError{Setting: "degrees", Want: "temperature unit", Got: str}
	}
	return u, nil
}

// Snapshot reads the temperature and setpoint in Celsius and the enable state
func (tc *TC200) Snapshot() (map[string]float64, error) {
	th := Thermal{tc}
	temp, err := th.GetTemperature()
	if err != nil {
		return nil, err
	}
	set, err := th.GetTemperatureSetpoint()
	if err != nil {
		return nil, err
	}
	on, err := tc.GetEnable()
	if err != nil {
		return nil, err
	}
	enabled := 0.
	if on {
		enabled = 1
	}
	return map[string]float64{"temperature": temp, "setpoint": set, "enabled": enabled}, nil
}
