package enums

import (
	"errors"
	"fmt"
)

// ErrUnknownEnumValue indicates a code or name outside a declared value set.
var ErrUnknownEnumValue = errors.New("unknown enum value")

// UnknownValueError reports which domain type rejected which input.
type UnknownValueError struct {
	// Type is the enum type name (e.g., "ExecutionMode").
	Type string

	// Code is the rejected integer code. Only meaningful when Name is empty.
	Code int

	// Name is the rejected canonical name, when lookup was by name.
	Name string
}

// Error implements the error interface.
func (e *UnknownValueError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %q: %v", e.Type, e.Name, ErrUnknownEnumValue)
	}
	return fmt.Sprintf("%s: %d: %v", e.Type, e.Code, ErrUnknownEnumValue)
}

// Unwrap returns ErrUnknownEnumValue for errors.Is support.
func (e *UnknownValueError) Unwrap() error {
	return ErrUnknownEnumValue
}

// IsUnknownValue returns true if err was produced by a rejected lookup.
func IsUnknownValue(err error) bool {
	return errors.Is(err, ErrUnknownEnumValue)
}
