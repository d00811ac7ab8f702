package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepStatus(t *testing.T) {
	tests := []struct {
		status  StepStatus
		name    string
		success bool
		failure bool
	}{
		{StatusPending, "pending", false, false},
		{StatusPassed, "passed", true, false},
		{StatusFailed, "failed", false, true},
		{StatusErrored, "errored", false, true},
		{StatusSkipped, "skipped", false, false},
		{StatusWarned, "warned", true, false},
		{StepStatus(99), "unknown", false, false},
		{StepStatus(-1), "unknown", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.status.String())
			assert.Equal(t, tt.success, tt.status.IsSuccess())
			assert.Equal(t, tt.failure, tt.status.IsFailure())
		})
	}
}

func TestStepStatus_ZeroIsPending(t *testing.T) {
	var s StepResult
	assert.Equal(t, StatusPending, s.Status)
}

func TestStatusAndCategory_MarshalByName(t *testing.T) {
	data, err := json.Marshal(map[string]interface{}{
		"status":   StatusWarned,
		"category": ErrCategoryParse,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"warned","category":"parse"}`, string(data))
}

func TestErrorCategory_String(t *testing.T) {
	names := map[ErrorCategory]string{
		ErrCategoryNone:       "none",
		ErrCategoryAssertion:  "assertion",
		ErrCategoryTimeout:    "timeout",
		ErrCategoryConnection: "connection",
		ErrCategoryApp:        "app",
		ErrCategoryConfig:     "config",
		ErrCategoryParse:      "parse",
		ErrorCategory(99):     "unknown",
	}
	for c, want := range names {
		assert.Equal(t, want, c.String())
	}
}
