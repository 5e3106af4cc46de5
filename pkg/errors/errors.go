package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Dataset/schema errors
	ErrUnknownColumn      = errors.New("unknown column")
	ErrColumnTypeMismatch = errors.New("column type mismatch")
	ErrEmptyInput         = errors.New("empty input")
	ErrInvalidInputData   = errors.New("invalid input data")
	ErrMissingHeader      = errors.New("missing header row")
	ErrRaggedRow          = errors.New("row length does not match header")

	// Parameter errors
	ErrInvalidK          = errors.New("invalid k: must be at least 1")
	ErrInvalidL          = errors.New("invalid l: must be at least 1")
	ErrInvalidT          = errors.New("invalid t: must be in (0, 1]")
	ErrInvalidEpsilon    = errors.New("invalid epsilon: must be positive")
	ErrInvalidThreshold  = errors.New("invalid threshold: must be between 0 and 1")
	ErrNoQuasiIdentifiers = errors.New("no quasi-identifiers specified")
	ErrNoSensitiveAttributes = errors.New("no sensitive attributes specified")

	// Privacy errors
	ErrPrivacyViolation      = errors.New("privacy violation")
	ErrInsufficientPrivacy   = errors.New("insufficient privacy protection")
	ErrPrivacyBudgetExceeded = errors.New("privacy budget exceeded")
	ErrReidentificationRisk  = errors.New("reidentification risk too high")

	// Access control errors
	ErrUnknownRole      = errors.New("unknown role")
	ErrUnknownUser      = errors.New("unknown user")
	ErrPermissionDenied = errors.New("permission denied")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrConfigurationLoad    = errors.New("failed to load configuration")

	// Internal errors
	ErrInternal       = errors.New("internal error")
	ErrNotImplemented = errors.New("not implemented")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeSchema        ErrorType = "schema"
	ErrorTypePrivacy       ErrorType = "privacy"
	ErrorTypeAccess        ErrorType = "access"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeIO            ErrorType = "io"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewSchemaError creates a schema error for an unknown or mistyped column
func NewSchemaError(code, message string) *AppError {
	return NewAppError(ErrorTypeSchema, code, message)
}

// NewUnknownColumnError creates the canonical error for a column name absent
// from a dataset schema. All engines surface missing columns through this
// rather than silently skipping them.
func NewUnknownColumnError(column string) *AppError {
	return NewSchemaError(CodeUnknownColumn, fmt.Sprintf("unknown column %q", column)).
		WithContext("column", column)
}

// NewPrivacyError creates a privacy error
func NewPrivacyError(code, message string) *AppError {
	return NewAppError(ErrorTypePrivacy, code, message)
}

// NewAccessError creates an access control error
func NewAccessError(code, message string) *AppError {
	return NewAppError(ErrorTypeAccess, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewIOError creates an input/output error
func NewIOError(code, message string) *AppError {
	return NewAppError(ErrorTypeIO, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// ValidationErrorDetail represents detailed validation error information
type ValidationErrorDetail struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Message string                  `json:"message"`
	Errors  []ValidationErrorDetail `json:"errors"`
}

// Error implements the error interface for ValidationErrors
func (ve *ValidationErrors) Error() string {
	return ve.Message
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, code, message string, value interface{}) {
	ve.Errors = append(ve.Errors, ValidationErrorDetail{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
	})
}

// HasErrors checks if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Message: "Validation failed",
		Errors:  make([]ValidationErrorDetail, 0),
	}
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeMissingField     = "MISSING_FIELD"
	CodeOutOfRange       = "OUT_OF_RANGE"

	// Schema error codes
	CodeUnknownColumn      = "UNKNOWN_COLUMN"
	CodeColumnTypeMismatch = "COLUMN_TYPE_MISMATCH"
	CodeDuplicateColumn    = "DUPLICATE_COLUMN"
	CodeRaggedRow          = "RAGGED_ROW"

	// Privacy error codes
	CodePrivacyViolation      = "PRIVACY_VIOLATION"
	CodeInsufficientPrivacy   = "INSUFFICIENT_PRIVACY"
	CodePrivacyBudgetExceeded = "PRIVACY_BUDGET_EXCEEDED"
	CodeReidentificationRisk  = "REIDENTIFICATION_RISK"

	// Access control error codes
	CodeUnknownRole      = "UNKNOWN_ROLE"
	CodeUnknownUser      = "UNKNOWN_USER"
	CodePermissionDenied = "PERMISSION_DENIED"

	// Configuration error codes
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeMissingConfiguration = "MISSING_CONFIGURATION"

	// IO error codes
	CodeFileNotFound = "FILE_NOT_FOUND"
	CodeReadFailed   = "READ_FAILED"
	CodeWriteFailed  = "WRITE_FAILED"

	// Internal error codes
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)
