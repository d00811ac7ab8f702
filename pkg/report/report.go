package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/adbauto/pkg/core"
)

// Build assembles a report from flow results.
func Build(flows []core.FlowResult, dev Device, start time.Time, duration time.Duration) *Report {
	r := &Report{
		Version:   Version,
		RunID:     uuid.New().String(),
		StartTime: start,
		EndTime:   start.Add(duration),
		Duration:  duration.Milliseconds(),
		Device:    dev,
		Flows:     flows,
	}
	r.Summary = summarize(flows)
	r.Status = r.Summary.status()
	return r
}

func summarize(flows []core.FlowResult) Summary {
	s := Summary{Total: len(flows)}
	for _, f := range flows {
		switch f.Status {
		case core.StatusPassed:
			s.Passed++
		case core.StatusFailed, core.StatusErrored:
			s.Failed++
		case core.StatusWarned:
			s.Warned++
		case core.StatusSkipped:
			s.Skipped++
		}
		s.Steps.Total += f.TotalSteps
		s.Steps.Passed += f.PassedSteps
		s.Steps.Failed += f.FailedSteps
		s.Steps.Warned += f.WarnedSteps
		s.Steps.Skipped += f.SkippedSteps
	}
	return s
}

func (s Summary) status() core.StepStatus {
	switch {
	case s.Failed > 0:
		return core.StatusFailed
	case s.Warned > 0:
		return core.StatusWarned
	case s.Total > 0 && s.Skipped == s.Total:
		return core.StatusSkipped
	default:
		return core.StatusPassed
	}
}

// WriteJSON writes r to dir/report.json and returns the path.
func WriteJSON(dir string, r *Report) (string, error) {
	if err := ensureDir(dir); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := atomicWriteJSON(path, r); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// atomicWriteJSON writes v to a temp file beside path and renames it into
// place.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
