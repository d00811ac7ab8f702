package core

import (
	"time"
)

// StepResult captures the complete outcome of executing a single flow step
type StepResult struct {
	// Identity
	Index   int    `json:"index"`           // 0-based position in flow
	Command string `json:"command"`         // Step type: tapOn, inputText, etc.
	Label   string `json:"label,omitempty"` // Optional user label

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message string       `json:"message,omitempty"` // Human-readable explanation
	Element *ElementInfo `json:"element,omitempty"` // Element interacted with
	Data    interface{}  `json:"data,omitempty"`    // Step-specific data (shell output, matched condition)

	// Error Details
	Error string `json:"error,omitempty"`

	// Polling
	Attempts int `json:"attempts,omitempty"` // Lookup attempts spent

	// Debug Artifacts
	Attachments []Attachment `json:"attachments,omitempty"` // Screenshots, hierarchy dumps
}

// FlowResult captures the complete outcome of executing a flow
type FlowResult struct {
	// Identity
	Name     string `json:"name"`
	FilePath string `json:"filePath"`
	AppID    string `json:"appId,omitempty"`
	Device   string `json:"device,omitempty"`

	// Status (aggregated from steps)
	Status StepStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Steps []StepResult `json:"steps"`

	// Summary (computed)
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`
	WarnedSteps  int `json:"warnedSteps"`

	// Error info (if flow failed)
	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (f *FlowResult) ComputeSummary() {
	f.TotalSteps = len(f.Steps)
	f.PassedSteps = 0
	f.FailedSteps = 0
	f.SkippedSteps = 0
	f.WarnedSteps = 0

	for _, step := range f.Steps {
		switch step.Status {
		case StatusPassed:
			f.PassedSteps++
		case StatusFailed, StatusErrored:
			f.FailedSteps++
		case StatusSkipped:
			f.SkippedSteps++
		case StatusWarned:
			f.WarnedSteps++
		}
	}
}

// AggregateStatus determines the flow status from step results
// Rules:
// - Any failed/errored step → StatusFailed
// - Otherwise any warned step → StatusWarned
// - Otherwise → StatusPassed
func (f *FlowResult) AggregateStatus() StepStatus {
	warned := false
	for _, step := range f.Steps {
		switch step.Status {
		case StatusFailed, StatusErrored:
			return StatusFailed
		case StatusWarned:
			warned = true
		}
	}
	if warned {
		return StatusWarned
	}
	return StatusPassed
}

// Success returns true if the flow passed (including warned)
func (f *FlowResult) Success() bool {
	return f.Status.IsSuccess()
}
