package errors

import (
	"fmt"
	"log/slog"
	"sort"
)

// ErrorType classifies an AppError. Each type maps to one sentinel.
type ErrorType string

const (
	ErrTypeHardware   ErrorType = "HARDWARE"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeCorrupted  ErrorType = "CORRUPTED"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeLicense    ErrorType = "LICENSE"
)

// AppError is a classified failure. Fields carry diagnostics (paths, machine
// codes, offending input fields) that are logged but never rendered to
// clients.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Fields  map[string]any
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for the error's type, so
// errors.Is(err, ErrPersistence) holds for every STORAGE error.
func (e *AppError) Is(target error) bool {
	sentinel, ok := sentinelByType[e.Type]
	return ok && sentinel == target
}

// With sets a diagnostic field and returns e for chaining
func (e *AppError) With(key string, value any) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// LogValue renders the error as a slog group: type, message, cause and the
// diagnostic fields in key order.
func (e *AppError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", string(e.Type)),
		slog.String("message", e.Message),
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, e.Fields[k]))
	}
	return slog.GroupValue(attrs...)
}

// NewAppError creates an error of the given type
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Cause: cause}
}

// NewStorageError reports a license blob or ledger that could not be read or
// written for reasons other than its content.
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewCorruptedError reports a blob that exists but does not decrypt or decode.
func NewCorruptedError(message string, cause error) *AppError {
	return NewAppError(ErrTypeCorrupted, message, cause)
}

func NewValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewHardwareError is logged by the fingerprint resolver and never returned
// past it.
func NewHardwareError(message string, cause error) *AppError {
	return NewAppError(ErrTypeHardware, message, cause)
}

func NewLicenseError(message string, cause error) *AppError {
	return NewAppError(ErrTypeLicense, message, cause)
}
