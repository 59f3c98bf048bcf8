package recommend

import (
	"errors"
	"fmt"
)

// Code identifies a user-visible failure or warning.
type Code string

const (
	CodeNoRoutes           Code = "NO_ROUTES"
	CodeNoRateData         Code = "NO_RATE_DATA"
	CodeProvidersExhausted Code = "PROVIDERS_EXHAUSTED"
	CodeInternal           Code = "INTERNAL"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
)

// ErrValidation marks malformed requests. They are rejected without retries.
var ErrValidation = errors.New("invalid recommendation request")

// Error is a failed recommendation request.
type Error struct {
	Code    Code
	State   State
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	if errors.Is(err, ErrValidation) {
		return CodeValidationFailed
	}
	return CodeInternal
}
