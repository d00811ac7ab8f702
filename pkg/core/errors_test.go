package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionError_Error(t *testing.T) {
	assert.Equal(t, "element not found", ErrElementNotFound.Error())

	err := ErrCommandFailed.WithCause(errors.New("adb: device offline"))
	assert.Equal(t, "device command failed: adb: device offline", err.Error())
}

func TestExecutionError_CopiesLeaveSentinelAlone(t *testing.T) {
	cause := errors.New("exit status 255")

	err := ErrWaitTimeout.
		WithMessage("checkText gave up after 30 attempts").
		WithCause(cause).
		WithDetails(map[string]interface{}{"text": "Login"})

	assert.Equal(t, ErrCategoryTimeout, err.Category)
	assert.Equal(t, "wait_timeout", err.Code)
	assert.Equal(t, "Login", err.Details["text"])
	assert.Same(t, cause, err.Unwrap())

	assert.Equal(t, "retry budget exhausted", ErrWaitTimeout.Message)
	assert.Nil(t, ErrWaitTimeout.Cause)
	assert.Nil(t, ErrWaitTimeout.Details)
}

func TestExecutionError_WithDetailsMerges(t *testing.T) {
	base := ErrElementNotFound.WithDetails(map[string]interface{}{"xpath": "//a", "index": 0})
	next := base.WithDetails(map[string]interface{}{"index": 2})

	assert.Equal(t, map[string]interface{}{"xpath": "//a", "index": 2}, next.Details)
	assert.Equal(t, 0, base.Details["index"])
}

func TestExecutionError_ErrorsIsAndAs(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := fmt.Errorf("tapOn: %w", ErrWaitTimeout.WithMessage("no match").WithCause(cause))

	assert.True(t, errors.Is(wrapped, ErrWaitTimeout))
	assert.True(t, errors.Is(wrapped, cause))
	assert.False(t, errors.Is(wrapped, ErrElementNotFound))
	assert.False(t, errors.Is(wrapped, &ExecutionError{}))

	var ee *ExecutionError
	require.True(t, errors.As(wrapped, &ee))
	assert.Equal(t, "no match", ee.Message)
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		err      *ExecutionError
		category ErrorCategory
		code     string
	}{
		{ErrElementNotFound, ErrCategoryAssertion, "element_not_found"},
		{ErrTextNotFound, ErrCategoryAssertion, "text_not_found"},
		{ErrImageNotFound, ErrCategoryAssertion, "image_not_found"},
		{ErrConditionNotMet, ErrCategoryAssertion, "condition_not_met"},
		{ErrWaitTimeout, ErrCategoryTimeout, "wait_timeout"},
		{ErrDeviceDisconnected, ErrCategoryConnection, "device_disconnected"},
		{ErrCommandFailed, ErrCategoryConnection, "command_failed"},
		{ErrAppNotInstalled, ErrCategoryApp, "app_not_installed"},
		{ErrMalformedHierarchy, ErrCategoryParse, "malformed_hierarchy"},
		{ErrMalformedBounds, ErrCategoryParse, "malformed_bounds"},
		{ErrInvalidSelector, ErrCategoryParse, "invalid_selector"},
		{ErrInvalidConfig, ErrCategoryConfig, "invalid_config"},
		{ErrMissingRequired, ErrCategoryConfig, "missing_required"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}
