// Package report renders run results: a report.json document for tooling and
// a console summary for people.
package report

import (
	"time"

	"github.com/devicelab-dev/adbauto/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// FileName is the report file written into the output directory.
const FileName = "report.json"

// Report is the document written to report.json.
type Report struct {
	Version   string            `json:"version"`
	RunID     string            `json:"runId"`
	Status    core.StepStatus   `json:"status"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Duration  int64             `json:"duration"` // milliseconds
	Device    Device            `json:"device"`
	Summary   Summary           `json:"summary"`
	Flows     []core.FlowResult `json:"flows"`
}

// Device identifies the device (or devices) a run used.
type Device struct {
	Serial    string   `json:"serial,omitempty"`
	Model     string   `json:"model,omitempty"`
	OSVersion string   `json:"osVersion,omitempty"`
	SDK       string   `json:"sdk,omitempty"`
	Serials   []string `json:"serials,omitempty"` // parallel runs
}

// Summary contains aggregated counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Warned  int `json:"warned"`
	Skipped int `json:"skipped"`

	Steps StepSummary `json:"steps"`
}

// StepSummary aggregates step counts over all flows.
type StepSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Warned  int `json:"warned"`
	Skipped int `json:"skipped"`
}
