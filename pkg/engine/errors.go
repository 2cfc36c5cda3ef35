package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for recovery logic.
type ErrorClass string

const (
	// ErrorClassFatal indicates the engine cannot be used at all.
	// Examples: missing library, unresolved entry point, failed init.
	ErrorClassFatal ErrorClass = "fatal"

	// ErrorClassPermanent indicates input that will never simulate.
	// Examples: malformed analysis config, duplicate request IDs.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassTransient indicates a failure of a single request; the worker
	// moves on to its next request.
	// Examples: rejected command, netlist the engine could not load.
	ErrorClassTransient ErrorClass = "transient"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Request is the simulation request ID that caused the error, if applicable.
	Request string `json:"request,omitempty"`

	// Worker is the worker the error occurred on, or -1.
	Worker int `json:"worker"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	switch {
	case e.Request != "" && e.Worker >= 0:
		return fmt.Sprintf("[%s] %s (request=%s, worker=%d): %s",
			e.Class, e.Message, e.Request, e.Worker, e.unwrapMessage())
	case e.Request != "":
		return fmt.Sprintf("[%s] %s (request=%s): %s",
			e.Class, e.Message, e.Request, e.unwrapMessage())
	case e.Worker >= 0:
		return fmt.Sprintf("[%s] %s (worker=%d): %s",
			e.Class, e.Message, e.Worker, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{
		Class:   class,
		Message: message,
		Worker:  -1,
		Err:     err,
	}
}

// NewFatalError creates a new fatal error.
func NewFatalError(message string, err error) *EngineError {
	return newError(ErrorClassFatal, message, err)
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return newError(ErrorClassPermanent, message, err)
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return newError(ErrorClassTransient, message, err)
}

// WithRequest adds request context to an error.
func (e *EngineError) WithRequest(id string) *EngineError {
	e.Request = id
	return e
}

// WithWorker adds worker context to an error.
func (e *EngineError) WithWorker(worker int) *EngineError {
	e.Worker = worker
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// IsFatal returns true if the error is classified as fatal.
func IsFatal(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassFatal
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeLibraryLoad = "LIBRARY_LOAD_FAILED"
	ErrCodeNetlist     = "NETLIST_FAILED"
	ErrCodeCommand     = "COMMAND_FAILED"
	ErrCodeEngineExit  = "ENGINE_EXIT"
	ErrCodeCancelled   = "CANCELLED"
)
