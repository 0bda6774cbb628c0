package property_test

import (
	"errors"
	"math"
	"testing"

	"github.com/nasa-jpl/instrumentkit/property"
	"github.com/nasa-jpl/instrumentkit/units"
)

// recorder remembers every command and answers queries with reply
type recorder struct {
	sent  []string
	reply string
}

func (r *recorder) Send(s string) error {
	r.sent = append(r.sent, s)
	return nil
}

func (r *recorder) Query(s string) (string, error) {
	r.sent = append(r.sent, s)
	return r.reply, nil
}

type coupling int

func (c coupling) String() string {
	if c == 0 {
		return "ac"
	}
	return "dc"
}

var (
	phase = property.Float{
		Name: "phase", Set: "PHAS", Unit: units.Degree,
		Domain: property.Range{Min: -360, Max: 730, MaxOpen: true}}
	beta = property.Int{
		Name: "beta", Set: "beta", Domain: property.Range{Min: 2000, Max: 6000},
		Syntax: property.AssignSyntax{}}
	ground = property.Bool{Name: "ground", Set: "IGND"}
	couple = property.Enum[coupling]{Name: "coupling", Set: "ICPL", Members: []coupling{0, 1}}
)

func TestRangeBoundaries(t *testing.T) {
	r := property.Range{Min: -360, Max: 730, MaxOpen: true}
	tests := []struct {
		in       float64
		expected bool
	}{
		{-360, true},
		{-360.0001, false},
		{729.999, true},
		{730, false},
		{0, true},
	}
	for _, test := range tests {
		if got := r.Contains(test.in); got != test.expected {
			t.Errorf("expected Contains(%v) to be %v, got %v", test.in, test.expected, got)
		}
	}
	if r.String() != "[-360, 730)" {
		t.Errorf("expected [-360, 730), got %s", r.String())
	}
}

func TestFloatEncodeAssumesUnit(t *testing.T) {
	cmd, err := phase.Encode(units.Bare(45))
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "PHAS 45" {
		t.Errorf("expected PHAS 45 got %s", cmd)
	}
}

func TestFloatEncodeConvertsUnit(t *testing.T) {
	cmd, err := phase.Encode(units.New(0.5, units.Radian))
	if err != nil {
		t.Fatal(err)
	}
	// 0.5 rad = 28.6478897565412 deg
	if cmd[:len("PHAS 28.64788975")] != "PHAS 28.64788975" {
		t.Errorf("expected PHAS 28.64788975..., got %s", cmd)
	}
}

func TestFloatEncodeNeverUsesExponent(t *testing.T) {
	f := property.Float{Name: "amplitude", Set: "SLVL", Unit: units.Volt}
	cmd, _ := f.Encode(units.Bare(0.000004))
	if cmd != "SLVL 0.000004" {
		t.Errorf("expected fixed point SLVL 0.000004, got %s", cmd)
	}
}

func TestFloatValidationHappensBeforeIO(t *testing.T) {
	r := &recorder{}
	err := phase.Write(r, units.Bare(730))
	var verr property.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !errors.Is(err, property.ErrValidation) {
		t.Error("expected ValidationError to be ErrValidation")
	}
	if len(r.sent) != 0 {
		t.Errorf("expected no I/O, got %v", r.sent)
	}
}

func TestFloatWrongDimensionIsTypeError(t *testing.T) {
	r := &recorder{}
	err := phase.Write(r, units.New(1, units.Volt))
	if !errors.Is(err, property.ErrType) {
		t.Errorf("expected ErrType, got %v", err)
	}
	if len(r.sent) != 0 {
		t.Errorf("expected no I/O, got %v", r.sent)
	}
}

func TestFloatRefusesNonFiniteWithoutDomain(t *testing.T) {
	r := &recorder{}
	f := property.Float{Name: "frequency", Set: "FREQ", Unit: units.Hertz}
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := f.Write(r, units.Bare(v)); !errors.Is(err, property.ErrValidation) {
			t.Errorf("%v: expected ErrValidation, got %v", v, err)
		}
	}
	parsed, err := f.Parse("NaN")
	if err != nil {
		t.Fatal(err)
	}
	if err = f.WriteAny(r, parsed); !errors.Is(err, property.ErrValidation) {
		t.Errorf("expected parsed NaN refused, got %v", err)
	}
	if len(r.sent) != 0 {
		t.Errorf("expected no I/O, got %v", r.sent)
	}
}

func TestFloatDecodeTagsUnit(t *testing.T) {
	r := &recorder{reply: "12.5\r"}
	q, err := phase.Read(r)
	if err != nil {
		t.Fatal(err)
	}
	if q.Unit != units.Degree || q.Magnitude != 12.5 {
		t.Errorf("expected 12.5 deg, got %v", q)
	}
	if r.sent[0] != "PHAS?" {
		t.Errorf("expected PHAS? got %s", r.sent[0])
	}
}

func TestFloatDecodeGarbage(t *testing.T) {
	_, err := phase.Decode("twelve")
	if !errors.Is(err, property.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestIntAssignSyntax(t *testing.T) {
	cmd, err := beta.Encode(3000)
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "beta=3000" {
		t.Errorf("expected beta=3000 got %s", cmd)
	}
	if beta.QueryCommand() != "beta?" {
		t.Errorf("expected beta? got %s", beta.QueryCommand())
	}
	if _, err := beta.Encode(1999); !errors.Is(err, property.ErrValidation) {
		t.Errorf("expected 1999 to be rejected, got %v", err)
	}
}

func TestIntFielded(t *testing.T) {
	p := property.Int{Name: "i", Set: "ivalue", Get: "pid", Syntax: property.AssignSyntax{}}.Fielded(1)
	v, err := p.Decode("10,20,30")
	if err != nil {
		t.Fatal(err)
	}
	if v != 20 {
		t.Errorf("expected field 1 to be 20, got %d", v)
	}
	if _, err := p.Fielded(3).Decode("10,20,30"); !errors.Is(err, property.ErrDecode) {
		t.Errorf("expected missing field to be ErrDecode, got %v", err)
	}
}

func TestBoolCodes(t *testing.T) {
	fast := property.Bool{Name: "data transfer", Set: "FAST", True: "2", False: "0"}
	if fast.Encode(true) != "FAST 2" {
		t.Errorf("expected FAST 2 got %s", fast.Encode(true))
	}
	if _, err := fast.Decode("1"); !errors.Is(err, property.ErrDecode) {
		t.Errorf("expected unknown code 1 to be ErrDecode, got %v", err)
	}
	if b, _ := ground.Decode("1"); !b {
		t.Error("expected 1 to decode true")
	}
}

func TestEnumRejectsNonMember(t *testing.T) {
	_, err := couple.Encode(coupling(7))
	if !errors.Is(err, property.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestEnumWriteAnyRejectsWrongType(t *testing.T) {
	r := &recorder{}
	err := couple.WriteAny(r, 1)
	if !errors.Is(err, property.ErrType) {
		t.Errorf("expected ErrType for an int, got %v", err)
	}
	err = couple.WriteAny(r, "dc")
	if !errors.Is(err, property.ErrType) {
		t.Errorf("expected ErrType for a string, got %v", err)
	}
	if len(r.sent) != 0 {
		t.Errorf("expected no I/O, got %v", r.sent)
	}
}

func TestEnumDecodeDoesNotCoerce(t *testing.T) {
	if _, err := couple.Decode("2"); !errors.Is(err, property.ErrDecode) {
		t.Errorf("expected 2 to be ErrDecode, got %v", err)
	}
	v, err := couple.Decode("1\n")
	if err != nil || v != 1 {
		t.Errorf("expected dc, got %v %v", v, err)
	}
}

func TestFind(t *testing.T) {
	all := []property.Setting{phase, beta, ground, couple}
	s, ok := property.Find(all, "Coupling")
	if !ok || s.SettingName() != "coupling" {
		t.Errorf("expected to find coupling, got %v %v", s, ok)
	}
	if _, ok := property.Find(all, "nope"); ok {
		t.Error("expected nope not to be found")
	}
}
