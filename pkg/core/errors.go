package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, wait_timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches another ExecutionError by code, so errors.Is(err, ErrWaitTimeout)
// holds for copies made by WithCause/WithMessage/WithDetails.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

func (e *ExecutionError) clone() *ExecutionError {
	c := *e
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithMessage returns a copy with msg in place of the default message.
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	c := e.clone()
	c.Message = msg
	return c
}

// WithDetails returns a copy with details merged over the existing ones.
// The receiver's map is never modified.
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	c := e.clone()
	c.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		c.Details[k] = v
	}
	for k, v := range details {
		c.Details[k] = v
	}
	return c
}

// Sentinels, matched with errors.Is by Code.
var (
	ErrElementNotFound = NewExecutionError(ErrCategoryAssertion, "element_not_found", "element not found")
	ErrTextNotFound    = NewExecutionError(ErrCategoryAssertion, "text_not_found", "text not found on screen")
	ErrImageNotFound   = NewExecutionError(ErrCategoryAssertion, "image_not_found", "reference image not found on screen")
	ErrConditionNotMet = NewExecutionError(ErrCategoryAssertion, "condition_not_met", "condition was not met")

	ErrWaitTimeout = NewExecutionError(ErrCategoryTimeout, "wait_timeout", "retry budget exhausted")

	ErrDeviceDisconnected = NewExecutionError(ErrCategoryConnection, "device_disconnected", "device connection lost")
	ErrCommandFailed      = NewExecutionError(ErrCategoryConnection, "command_failed", "device command failed")

	ErrAppNotInstalled = NewExecutionError(ErrCategoryApp, "app_not_installed", "application is not installed")

	ErrMalformedHierarchy = NewExecutionError(ErrCategoryParse, "malformed_hierarchy", "hierarchy document could not be parsed")
	ErrMalformedBounds    = NewExecutionError(ErrCategoryParse, "malformed_bounds", "element bounds could not be parsed")
	ErrInvalidSelector    = NewExecutionError(ErrCategoryParse, "invalid_selector", "invalid selector expression")

	ErrInvalidConfig   = NewExecutionError(ErrCategoryConfig, "invalid_config", "invalid configuration")
	ErrMissingRequired = NewExecutionError(ErrCategoryConfig, "missing_required", "missing required field")
)

// NewExecutionError creates an error without cause or details.
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{Category: category, Code: code, Message: message}
}
