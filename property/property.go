/*Package property describes instrument settings as typed codecs.

A setting couples a wire mnemonic with an encoder, a decoder, and a domain of
legal values.  Encoding validates before anything is formatted, so a value
outside of the domain never reaches the instrument.  Decoding parses a reply
and tags it with the setting's unit.

Each set is a single Send and each get is a single Query against a Transport;
drivers with multi-step semantics compose these themselves.
*/
package property

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nasa-jpl/instrumentkit/units"
)

// Transport is the subset of a channel a setting performs I/O over
type Transport interface {
	Send(string) error
	Query(string) (string, error)
}

// Syntax renders the set and query forms of a mnemonic
type Syntax interface {
	SetCommand(mnemonic, arg string) string
	QueryCommand(mnemonic string) string
}

// SpaceSyntax is "FREQ 1000" / "FREQ?"
type SpaceSyntax struct{}

// SetCommand returns "mnemonic arg"
func (SpaceSyntax) SetCommand(mnemonic, arg string) string { return mnemonic + " " + arg }

// QueryCommand returns "mnemonic?"
func (SpaceSyntax) QueryCommand(mnemonic string) string { return mnemonic + "?" }

// AssignSyntax is "beta=3000" / "beta?"
type AssignSyntax struct{}

// SetCommand returns "mnemonic=arg"
func (AssignSyntax) SetCommand(mnemonic, arg string) string { return mnemonic + "=" + arg }

// QueryCommand returns "mnemonic?"
func (AssignSyntax) QueryCommand(mnemonic string) string { return mnemonic + "?" }

func syntaxOrDefault(s Syntax) Syntax {
	if s == nil {
		return SpaceSyntax{}
	}
	return s
}

func getOrSet(get, set string) string {
	if get == "" {
		return set
	}
	return get
}

// Setting is the dynamic face of a codec, used where settings are addressed by name
type Setting interface {
	SettingName() string
	ReadAny(Transport) (interface{}, error)
	WriteAny(Transport, interface{}) error
	// Parse converts human input into the value type WriteAny expects
	Parse(string) (interface{}, error)
}

// Find returns the setting called name, case insensitive
func Find(settings []Setting, name string) (Setting, bool) {
	for _, s := range settings {
		if strings.EqualFold(s.SettingName(), name) {
			return s, true
		}
	}
	return nil, false
}

func parseError(setting, input, want string) error {
	return fmt.Errorf("%s: %q is not %s: %w", setting, input, want, ErrType)
}

// field returns the i'th comma separated field of reply, or the whole reply if i < 0
func field(reply string, i int) (string, bool) {
	reply = strings.TrimSpace(reply)
	if i < 0 {
		return reply, true
	}
	parts := strings.Split(reply, ",")
	if i >= len(parts) {
		return "", false
	}
	return strings.TrimSpace(parts[i]), true
}

// Float is a real-valued setting carried in Unit
type Float struct {
	Name   string
	Set    string // set mnemonic
	Get    string // query mnemonic, Set if empty
	Unit   units.Unit
	Domain Domain // nil is unbounded
	Syntax Syntax
}

// Encode validates q and renders the set command.  Bare values are taken to be in s.Unit.
// NaN and infinities are refused even without a Domain.
func (s Float) Encode(q units.Quantity) (string, error) {
	q = units.Assume(q, s.Unit)
	v, err := q.In(s.Unit)
	if err != nil {
		return "", TypeError{Setting: s.Name, Want: s.Unit.Dim.String(), Got: q}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", ValidationError{Setting: s.Name, Value: q, Domain: "finite numbers"}
	}
	if s.Domain != nil && !s.Domain.Contains(v) {
		return "", ValidationError{Setting: s.Name, Value: q, Domain: s.Domain.String() + " " + s.Unit.Symbol}
	}
	return syntaxOrDefault(s.Syntax).SetCommand(s.Set, formatFloat(v)), nil
}

// Decode parses a reply into a quantity tagged with s.Unit
func (s Float) Decode(reply string) (units.Quantity, error) {
	r := strings.TrimSpace(reply)
	v, err := strconv.ParseFloat(r, 64)
	if err != nil {
		return units.Quantity{}, DecodeError{Setting: s.Name, Reply: reply, Err: err}
	}
	return units.New(v, s.Unit), nil
}

// QueryCommand is the command Read sends
func (s Float) QueryCommand() string {
	return syntaxOrDefault(s.Syntax).QueryCommand(getOrSet(s.Get, s.Set))
}

// Write validates and sends q
func (s Float) Write(t Transport, q units.Quantity) error {
	cmd, err := s.Encode(q)
	if err != nil {
		return err
	}
	return t.Send(cmd)
}

// Read queries and decodes the setting
func (s Float) Read(t Transport) (units.Quantity, error) {
	reply, err := t.Query(s.QueryCommand())
	if err != nil {
		return units.Quantity{}, err
	}
	return s.Decode(reply)
}

// SettingName returns the name of the setting
func (s Float) SettingName() string { return s.Name }

// ReadAny returns a units.Quantity
func (s Float) ReadAny(t Transport) (interface{}, error) { return s.Read(t) }

// WriteAny accepts a units.Quantity, float64, or int
func (s Float) WriteAny(t Transport, v interface{}) error {
	switch x := v.(type) {
	case units.Quantity:
		return s.Write(t, x)
	case float64:
		return s.Write(t, units.Bare(x))
	case int:
		return s.Write(t, units.Bare(float64(x)))
	default:
		return TypeError{Setting: s.Name, Want: "quantity", Got: v}
	}
}

// Parse accepts a bare number or a number with a unit suffix
func (s Float) Parse(str string) (interface{}, error) {
	q, err := units.Parse(str)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	return q, nil
}

// Int is an integer setting.  Use Fielded when the reply carries several
// comma separated values.
type Int struct {
	Name   string
	Set    string
	Get    string
	Domain Domain
	Syntax Syntax

	fielded bool
	field   int
}

// Fielded returns a copy of s which decodes field i of the reply
func (s Int) Fielded(i int) Int {
	s.fielded = true
	s.field = i
	return s
}

// Encode validates v and renders the set command
func (s Int) Encode(v int) (string, error) {
	if s.Domain != nil && !s.Domain.Contains(float64(v)) {
		return "", ValidationError{Setting: s.Name, Value: v, Domain: s.Domain.String()}
	}
	return syntaxOrDefault(s.Syntax).SetCommand(s.Set, strconv.Itoa(v)), nil
}

// Decode parses a reply.  Devices that answer integers as "3000.0" are accepted.
func (s Int) Decode(reply string) (int, error) {
	idx := -1
	if s.fielded {
		idx = s.field
	}
	r, ok := field(reply, idx)
	if !ok {
		return 0, DecodeError{Setting: s.Name, Reply: reply, Err: fmt.Errorf("no field %d", idx)}
	}
	if i, err := strconv.Atoi(r); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(r, 64)
	if err != nil || f != float64(int(f)) {
		return 0, DecodeError{Setting: s.Name, Reply: reply, Err: err}
	}
	return int(f), nil
}

// QueryCommand is the command Read sends
func (s Int) QueryCommand() string {
	return syntaxOrDefault(s.Syntax).QueryCommand(getOrSet(s.Get, s.Set))
}

// Write validates and sends v
func (s Int) Write(t Transport, v int) error {
	cmd, err := s.Encode(v)
	if err != nil {
		return err
	}
	return t.Send(cmd)
}

// Read queries and decodes the setting
func (s Int) Read(t Transport) (int, error) {
	reply, err := t.Query(s.QueryCommand())
	if err != nil {
		return 0, err
	}
	return s.Decode(reply)
}

// SettingName returns the name of the setting
func (s Int) SettingName() string { return s.Name }

// ReadAny returns an int
func (s Int) ReadAny(t Transport) (interface{}, error) { return s.Read(t) }

// WriteAny accepts an int
func (s Int) WriteAny(t Transport, v interface{}) error {
	i, ok := v.(int)
	if !ok {
		return TypeError{Setting: s.Name, Want: "int", Got: v}
	}
	return s.Write(t, i)
}

// Parse accepts a decimal integer
func (s Int) Parse(str string) (interface{}, error) {
	i, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		return nil, parseError(s.Name, str, "an integer")
	}
	return i, nil
}

// Bool is an on/off setting.  True and False are the wire codes, "1" and "0" if empty.
type Bool struct {
	Name   string
	Set    string
	Get    string
	True   string
	False  string
	Syntax Syntax
}

func (s Bool) codes() (string, string) {
	t, f := s.True, s.False
	if t == "" {
		t = "1"
	}
	if f == "" {
		f = "0"
	}
	return t, f
}

// Encode renders the set command
func (s Bool) Encode(v bool) string {
	t, f := s.codes()
	arg := f
	if v {
		arg = t
	}
	return syntaxOrDefault(s.Syntax).SetCommand(s.Set, arg)
}

// Decode parses a reply.  Codes other than True and False are a DecodeError.
func (s Bool) Decode(reply string) (bool, error) {
	t, f := s.codes()
	switch strings.TrimSpace(reply) {
	case t:
		return true, nil
	case f:
		return false, nil
	default:
		return false, DecodeError{Setting: s.Name, Reply: reply}
	}
}

// QueryCommand is the command Read sends
func (s Bool) QueryCommand() string {
	return syntaxOrDefault(s.Syntax).QueryCommand(getOrSet(s.Get, s.Set))
}

// Write sends v
func (s Bool) Write(t Transport, v bool) error {
	return t.Send(s.Encode(v))
}

// Read queries and decodes the setting
func (s Bool) Read(t Transport) (bool, error) {
	reply, err := t.Query(s.QueryCommand())
	if err != nil {
		return false, err
	}
	return s.Decode(reply)
}

// SettingName returns the name of the setting
func (s Bool) SettingName() string { return s.Name }

// ReadAny returns a bool
func (s Bool) ReadAny(t Transport) (interface{}, error) { return s.Read(t) }

// WriteAny accepts a bool
func (s Bool) WriteAny(t Transport, v interface{}) error {
	b, ok := v.(bool)
	if !ok {
		return TypeError{Setting: s.Name, Want: "bool", Got: v}
	}
	return s.Write(t, b)
}

// Parse accepts anything strconv.ParseBool does, plus on/off
func (s Bool) Parse(str string) (interface{}, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(str))
	if err != nil {
		return nil, parseError(s.Name, str, "a boolean")
	}
	return b, nil
}

// Member is an enumerated value with an integer wire code and a name
type Member interface {
	~int
	String() string
}

// Enum is a setting over a closed set of values
type Enum[T Member] struct {
	Name    string
	Set     string
	Get     string
	Members []T
	// ByName sends the member's name instead of its integer code
	ByName bool
	Syntax Syntax
}

func (s Enum[T]) member(v T) bool {
	for _, m := range s.Members {
		if m == v {
			return true
		}
	}
	return false
}

func (s Enum[T]) names() string {
	n := make([]string, len(s.Members))
	for i, m := range s.Members {
		n[i] = m.String()
	}
	return "{" + strings.Join(n, ", ") + "}"
}

// Encode validates membership of v and renders the set command
func (s Enum[T]) Encode(v T) (string, error) {
	if !s.member(v) {
		return "", ValidationError{Setting: s.Name, Value: int(v), Domain: s.names()}
	}
	arg := strconv.Itoa(int(v))
	if s.ByName {
		arg = v.String()
	}
	return syntaxOrDefault(s.Syntax).SetCommand(s.Set, arg), nil
}

// Decode parses a member's integer code, or its name when ByName is set.
// Anything else is a DecodeError.
func (s Enum[T]) Decode(reply string) (T, error) {
	var zero T
	r := strings.TrimSpace(reply)
	if s.ByName {
		for _, m := range s.Members {
			if strings.EqualFold(m.String(), r) {
				return m, nil
			}
		}
	}
	code, err := strconv.Atoi(r)
	if err != nil {
		return zero, DecodeError{Setting: s.Name, Reply: reply, Err: err}
	}
	for _, m := range s.Members {
		if int(m) == code {
			return m, nil
		}
	}
	return zero, DecodeError{Setting: s.Name, Reply: reply, Err: fmt.Errorf("%d is not a member of %s", code, s.names())}
}

// QueryCommand is the command Read sends
func (s Enum[T]) QueryCommand() string {
	return syntaxOrDefault(s.Syntax).QueryCommand(getOrSet(s.Get, s.Set))
}

// Write validates and sends v
func (s Enum[T]) Write(t Transport, v T) error {
	cmd, err := s.Encode(v)
	if err != nil {
		return err
	}
	return t.Send(cmd)
}

// Read queries and decodes the setting
func (s Enum[T]) Read(t Transport) (T, error) {
	reply, err := t.Query(s.QueryCommand())
	if err != nil {
		var zero T
		return zero, err
	}
	return s.Decode(reply)
}

// SettingName returns the name of the setting
func (s Enum[T]) SettingName() string { return s.Name }

// ReadAny returns a T
func (s Enum[T]) ReadAny(t Transport) (interface{}, error) { return s.Read(t) }

// WriteAny accepts only a T.  Integers and strings are a TypeError,
// convert them with Parse first.
func (s Enum[T]) WriteAny(t Transport, v interface{}) error {
	m, ok := v.(T)
	if !ok {
		var zero T
		return TypeError{Setting: s.Name, Want: fmt.Sprintf("%T", zero), Got: v}
	}
	return s.Write(t, m)
}

// Parse accepts a member name, case insensitive
func (s Enum[T]) Parse(str string) (interface{}, error) {
	str = strings.TrimSpace(str)
	for _, m := range s.Members {
		if strings.EqualFold(m.String(), str) {
			return m, nil
		}
	}
	return nil, ValidationError{Setting: s.Name, Value: str, Domain: s.names()}
}

// Bound pairs a setting with the transport it is read and written over
type Bound struct {
	Setting
	Transport Transport
}

// Get reads the setting
func (b Bound) Get() (interface{}, error) {
	return b.ReadAny(b.Transport)
}

// Set writes the setting
func (b Bound) Set(v interface{}) error {
	return b.WriteAny(b.Transport, v)
}

// SetString parses s and writes the result
func (b Bound) SetString(s string) error {
	v, err := b.Parse(s)
	if err != nil {
		return err
	}
	return b.WriteAny(b.Transport, v)
}
