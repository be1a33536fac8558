package powder

import (
	"errors"
	"fmt"
)

var (
	ErrRouting     = errors.New("material model not found")
	ErrComputation = errors.New("computation error")
	ErrInput       = errors.New("invalid input")
)

// RoutingError means a material could not be mapped to a known group.
type RoutingError struct {
	Material string
}

func (e *RoutingError) Error() string {
	if e.Material == "" {
		return ErrRouting.Error()
	}
	return fmt.Sprintf("%s: %q", ErrRouting, e.Material)
}

func (e *RoutingError) Is(target error) bool { return target == ErrRouting }

// ComputationError reports degenerate arithmetic, e.g. a zero denominator.
type ComputationError struct {
	Field  string
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrComputation, e.Field, e.Reason)
}

func (e *ComputationError) Is(target error) bool { return target == ErrComputation }

// InputError reports a physically impossible sample value.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInput, e.Field, e.Reason)
}

func (e *InputError) Is(target error) bool { return target == ErrInput }
