/*Package units tags numeric values with physical units and converts between them.

A Quantity is a magnitude and a Unit.  The zero Unit means "untagged": a bare
number whose unit is implied by whoever consumes it.  Drivers call Assume to
tag a bare number with the unit a setting is expressed in, then In to get the
magnitude the instrument expects on the wire.

Every Unit is scaled against the base units of periph.io/x/conn/v3/physic,
so a Quantity converts to and from the physic types without loss beyond
float64 rounding.
*/
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"periph.io/x/conn/v3/physic"
)

var (
	// ErrIncompatible is generated when converting between units of different dimension
	ErrIncompatible = errors.New("units have different dimensions")

	// ErrUntagged is generated when a conversion is requested of a quantity with no unit
	ErrUntagged = errors.New("quantity has no unit")

	// ErrUnknownUnit is generated by Parse and Lookup for unrecognized symbols
	ErrUnknownUnit = errors.New("unknown unit symbol")
)

// Dimension is the kind of physical quantity a unit measures
type Dimension int

const (
	// Untagged is the dimension of the zero Unit
	Untagged Dimension = iota
	Frequency
	Angle
	Potential
	Power
	Temperature
)

func (d Dimension) String() string {
	switch d {
	case Frequency:
		return "frequency"
	case Angle:
		return "angle"
	case Potential:
		return "electric potential"
	case Power:
		return "power"
	case Temperature:
		return "temperature"
	default:
		return "untagged"
	}
}

// Unit is a unit of measure.  scale is the number of physic base units in
// one of this unit, offset is the base-unit value of this unit's zero.
type Unit struct {
	Symbol string
	Dim    Dimension
	scale  float64
	offset float64
}

func (u Unit) String() string {
	return u.Symbol
}

var (
	Hertz     = Unit{"Hz", Frequency, float64(physic.Hertz), 0}
	KiloHertz = Unit{"kHz", Frequency, float64(physic.KiloHertz), 0}
	MegaHertz = Unit{"MHz", Frequency, float64(physic.MegaHertz), 0}

	Radian = Unit{"rad", Angle, float64(physic.Radian), 0}
	// physic.Degree is rounded to the nanoradian, derive it from pi instead
	Degree = Unit{"deg", Angle, float64(physic.Radian) * math.Pi / 180, 0}

	Volt      = Unit{"V", Potential, float64(physic.Volt), 0}
	MilliVolt = Unit{"mV", Potential, float64(physic.MilliVolt), 0}

	Watt      = Unit{"W", Power, float64(physic.Watt), 0}
	MilliWatt = Unit{"mW", Power, float64(physic.MilliWatt), 0}

	Kelvin     = Unit{"K", Temperature, float64(physic.Kelvin), 0}
	Celsius    = Unit{"degC", Temperature, float64(physic.Kelvin), float64(physic.ZeroCelsius)}
	Fahrenheit = Unit{"degF", Temperature, float64(physic.Kelvin) * 5 / 9, float64(physic.ZeroCelsius) - 32*float64(physic.Kelvin)*5/9}
)

// symbols maps every accepted spelling to its unit
var symbols = map[string]Unit{
	"hz": Hertz, "khz": KiloHertz, "mhz": MegaHertz,
	"rad": Radian, "deg": Degree, "degree": Degree, "degrees": Degree, "°": Degree,
	"v": Volt, "mv": MilliVolt,
	"w": Watt, "mw": MilliWatt,
	"k": Kelvin, "degc": Celsius, "c": Celsius, "°c": Celsius,
	"degf": Fahrenheit, "f": Fahrenheit, "°f": Fahrenheit,
}

// Lookup returns the unit for a symbol, case insensitive.
// mHz and MHz collide after folding; Lookup resolves them to megahertz.
func Lookup(symbol string) (Unit, error) {
	u, ok := symbols[strings.ToLower(strings.TrimSpace(symbol))]
	if !ok {
		return Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, symbol)
	}
	return u, nil
}

// Quantity is a magnitude with an optional unit
type Quantity struct {
	Magnitude float64
	Unit      Unit
}

// Bare returns an untagged quantity
func Bare(v float64) Quantity {
	return Quantity{Magnitude: v}
}

// New returns a quantity tagged with u
func New(v float64, u Unit) Quantity {
	return Quantity{Magnitude: v, Unit: u}
}

// Tagged is true if q carries a unit
func (q Quantity) Tagged() bool {
	return q.Unit.Dim != Untagged
}

// Assume tags q with u if q is untagged.  Tagged quantities are returned as-is,
// they are checked for compatibility at conversion time.
func Assume(q Quantity, u Unit) Quantity {
	if q.Tagged() {
		return q
	}
	return Quantity{Magnitude: q.Magnitude, Unit: u}
}

// In returns the magnitude of q expressed in u
func (q Quantity) In(u Unit) (float64, error) {
	if !q.Tagged() {
		return 0, ErrUntagged
	}
	if q.Unit.Dim != u.Dim {
		return 0, fmt.Errorf("%w: %s is %s, %s is %s", ErrIncompatible, q.Unit.Symbol, q.Unit.Dim, u.Symbol, u.Dim)
	}
	if q.Unit == u {
		return q.Magnitude, nil
	}
	base := q.Magnitude*q.Unit.scale + q.Unit.offset
	return (base - u.offset) / u.scale, nil
}

// Convert returns q expressed in u
func (q Quantity) Convert(u Unit) (Quantity, error) {
	v, err := q.In(u)
	if err != nil {
		return Quantity{}, err
	}
	return New(v, u), nil
}

func (q Quantity) String() string {
	s := strconv.FormatFloat(q.Magnitude, 'g', -1, 64)
	if !q.Tagged() {
		return s
	}
	return s + " " + q.Unit.Symbol
}

// Parse converts a string such as "1000", "1kHz", "5 V", "12.5deg" or "25degC"
// into a Quantity.  A number with no suffix is untagged.
func Parse(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Bare(v), nil
	}
	// frequency, potential and power carry SI prefixes that physic understands
	var (
		f physic.Frequency
		e physic.ElectricPotential
		p physic.Power
	)
	compact := strings.ReplaceAll(s, " ", "")
	switch {
	case strings.HasSuffix(compact, "Hz"):
		if err := f.Set(compact); err == nil {
			return FromFrequency(f), nil
		}
	case strings.HasSuffix(compact, "V"):
		if err := e.Set(compact); err == nil {
			return FromPotential(e), nil
		}
	case strings.HasSuffix(compact, "W"):
		if err := p.Set(compact); err == nil {
			return FromPower(p), nil
		}
	}
	i := strings.IndexFunc(compact, func(r rune) bool {
		return !(unicode.IsDigit(r) || r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E')
	})
	if i <= 0 {
		return Quantity{}, fmt.Errorf("cannot parse %q as a quantity", s)
	}
	// a trailing unit beginning with e would be eaten by the float scan, back off
	for i > 0 && (compact[i-1] == 'e' || compact[i-1] == 'E') {
		i--
	}
	v, err := strconv.ParseFloat(compact[:i], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("cannot parse %q as a quantity: %w", s, err)
	}
	u, err := Lookup(compact[i:])
	if err != nil {
		return Quantity{}, err
	}
	return New(v, u), nil
}

// FromFrequency converts a physic.Frequency to a Quantity in Hz
func FromFrequency(f physic.Frequency) Quantity {
	return New(float64(f)/float64(physic.Hertz), Hertz)
}

// FromPotential converts a physic.ElectricPotential to a Quantity in V
func FromPotential(e physic.ElectricPotential) Quantity {
	return New(float64(e)/float64(physic.Volt), Volt)
}

// FromPower converts a physic.Power to a Quantity in W
func FromPower(p physic.Power) Quantity {
	return New(float64(p)/float64(physic.Watt), Watt)
}

// FromTemperature converts a physic.Temperature to a Quantity in K
func FromTemperature(t physic.Temperature) Quantity {
	return New(float64(t)/float64(physic.Kelvin), Kelvin)
}

// Frequency converts q to a physic.Frequency
func (q Quantity) Frequency() (physic.Frequency, error) {
	v, err := q.In(Hertz)
	return physic.Frequency(math.Round(v * float64(physic.Hertz))), err
}

// Potential converts q to a physic.ElectricPotential
func (q Quantity) Potential() (physic.ElectricPotential, error) {
	v, err := q.In(Volt)
	return physic.ElectricPotential(math.Round(v * float64(physic.Volt))), err
}

// Power converts q to a physic.Power
func (q Quantity) Power() (physic.Power, error) {
	v, err := q.In(Watt)
	return physic.Power(math.Round(v * float64(physic.Watt))), err
}

// Temperature converts q to a physic.Temperature
func (q Quantity) Temperature() (physic.Temperature, error) {
	v, err := q.In(Kelvin)
	return physic.Temperature(math.Round(v * float64(physic.Kelvin))), err
}
