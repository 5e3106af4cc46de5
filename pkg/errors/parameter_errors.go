package errors

import (
	"fmt"
	"math"
)

// Parameter-specific error definitions
var (
	ErrParameterKInvalid       = NewValidationError("K_VALUE_INVALID", "k-anonymity value is invalid")
	ErrParameterLInvalid       = NewValidationError("L_VALUE_INVALID", "l-diversity value is invalid")
	ErrParameterTInvalid       = NewValidationError("T_VALUE_INVALID", "t-closeness value is invalid")
	ErrParameterEpsilonInvalid = NewValidationError("EPSILON_INVALID", "epsilon value is invalid")
	ErrParameterBinsInvalid    = NewValidationError("BINS_INVALID", "histogram bin count is invalid")
)

// ParameterError represents a parameter validation failure with the offending
// value and the accepted range attached.
type ParameterError struct {
	*AppError
	Parameter string      `json:"parameter"`
	Value     interface{} `json:"value"`
	Expected  string      `json:"expected"`
}

// NewParameterError creates a parameter validation error
func NewParameterError(parameter string, value interface{}, expected string) *ParameterError {
	return &ParameterError{
		AppError: &AppError{
			Type:    ErrorTypeValidation,
			Code:    CodeInvalidParameter,
			Message: fmt.Sprintf("parameter %q is invalid: got %v, want %s", parameter, value, expected),
		},
		Parameter: parameter,
		Value:     value,
		Expected:  expected,
	}
}

// CheckK validates a k-anonymity parameter. k must be a positive integer;
// k = 1 is legal and means no anonymity constraint.
func CheckK(k int) error {
	if k < 1 {
		return NewParameterError("k", k, "an integer >= 1")
	}
	return nil
}

// CheckL validates an l-diversity parameter.
func CheckL(l int) error {
	if l < 1 {
		return NewParameterError("l", l, "an integer >= 1")
	}
	return nil
}

// CheckT validates a t-closeness threshold. The distance metric is
// normalized to [0, 1], so t outside (0, 1] can never be satisfied or is
// vacuous.
func CheckT(t float64) error {
	if math.IsNaN(t) || t <= 0 || t > 1 {
		return NewParameterError("t", t, "a value in (0, 1]")
	}
	return nil
}

// CheckEpsilon validates a differential privacy budget. Epsilon must be
// strictly positive and finite.
func CheckEpsilon(epsilon float64) error {
	if math.IsNaN(epsilon) || math.IsInf(epsilon, 0) || epsilon <= 0 {
		return NewParameterError("epsilon", epsilon, "a finite value > 0")
	}
	return nil
}

// CheckFraction validates a parameter constrained to [0, 1], such as a
// suppression threshold.
func CheckFraction(name string, value float64) error {
	if math.IsNaN(value) || value < 0 || value > 1 {
		return NewParameterError(name, value, "a value in [0, 1]")
	}
	return nil
}

// CheckPositiveInt validates a strictly positive integer parameter, such as
// a histogram bin count.
func CheckPositiveInt(name string, value int) error {
	if value < 1 {
		return NewParameterError(name, value, "an integer >= 1")
	}
	return nil
}
