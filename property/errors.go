package property

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is generated when a value falls outside a setting's domain
	ErrValidation = errors.New("value outside of domain")

	// ErrType is generated when a value of the wrong Go type is supplied to a setting
	ErrType = errors.New("value of wrong type")

	// ErrDecode is generated when a device reply cannot be parsed into the setting's type
	ErrDecode = errors.New("reply could not be decoded")
)

// ValidationError describes a value rejected by a domain check.
// No I/O has happened when one is returned.
type ValidationError struct {
	Setting string
	Value   interface{}
	Domain  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %v is outside of %s", e.Setting, e.Value, e.Domain)
}

// Unwrap returns ErrValidation
func (e ValidationError) Unwrap() error {
	return ErrValidation
}

// TypeError describes a value of the wrong type
type TypeError struct {
	Setting string
	Want    string
	Got     interface{}
}

func (e TypeError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %v (%T)", e.Setting, e.Want, e.Got, e.Got)
}

// Unwrap returns ErrType
func (e TypeError) Unwrap() error {
	return ErrType
}

// DecodeError describes a reply that could not be parsed
type DecodeError struct {
	Setting string
	Reply   string
	Err     error
}

func (e DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: cannot decode reply %q", e.Setting, e.Reply)
	}
	return fmt.Sprintf("%s: cannot decode reply %q: %v", e.Setting, e.Reply, e.Err)
}

// Is matches ErrDecode
func (e DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Unwrap returns the underlying parse error, if any
func (e DecodeError) Unwrap() error {
	return e.Err
}
