// Package executor runs parsed flows against a device and collects results.
package executor

import (
	"context"
	"time"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/flow"
)

// RunnerConfig configures the flow runner.
type RunnerConfig struct {
	OutputDir  string              // Attachment directory; empty disables capture
	StopOnFail bool                // Skip remaining flows after the first failure
	Artifacts  core.ArtifactConfig // When and what to capture
	Env        map[string]string   // Variables visible to every flow

	// Live progress callbacks
	OnFlowStart    func(flowIdx, totalFlows int, name, file string)
	OnStepComplete func(idx int, desc string, status core.StepStatus, duration time.Duration, err string)
	OnFlowEnd      func(name string, status core.StepStatus, duration time.Duration)
}

// RunResult contains the outcome of a run.
type RunResult struct {
	Status       core.StepStatus
	TotalFlows   int
	PassedFlows  int
	FailedFlows  int
	WarnedFlows  int
	SkippedFlows int
	Duration     time.Duration
	Flows        []core.FlowResult
}

// Success reports whether no flow failed.
func (r *RunResult) Success() bool {
	return r.FailedFlows == 0
}

// Runner executes flows one after another on a single device.
type Runner struct {
	config RunnerConfig
	auto   *automator.Automator
}

// New creates a new Runner.
func New(a *automator.Automator, cfg RunnerConfig) *Runner {
	return &Runner{config: cfg, auto: a}
}

// Run executes all flows in order.
func (r *Runner) Run(ctx context.Context, flows []flow.Flow) *RunResult {
	start := time.Now()
	results := make([]core.FlowResult, len(flows))

	stop := false
	for i := range flows {
		if stop || ctx.Err() != nil {
			results[i] = skippedFlow(flows[i], r.auto.Serial(), "run stopped")
			continue
		}
		results[i] = r.executeFlow(ctx, r.auto, flows[i], i, len(flows))
		if r.config.StopOnFail && !results[i].Success() {
			stop = true
		}
	}

	return buildRunResult(results, time.Since(start))
}

// executeFlow runs a single flow on a.
func (r *Runner) executeFlow(ctx context.Context, a *automator.Automator, f flow.Flow, flowIdx, totalFlows int) core.FlowResult {
	fr := NewFlowRunner(ctx, f, a, r.config)
	fr.flowIdx = flowIdx
	fr.totalFlows = totalFlows
	return fr.Run()
}

func skippedFlow(f flow.Flow, serial, reason string) core.FlowResult {
	res := core.FlowResult{
		Name:     f.DisplayName(),
		FilePath: f.SourcePath,
		AppID:    f.Config.AppID,
		Device:   serial,
		Status:   core.StatusSkipped,
		Error:    reason,
	}
	for i, step := range f.Steps {
		res.Steps = append(res.Steps, skippedStep(i, step))
	}
	res.ComputeSummary()
	return res
}

// buildRunResult aggregates flow results into a run result.
func buildRunResult(flowResults []core.FlowResult, wallClock time.Duration) *RunResult {
	result := &RunResult{
		TotalFlows: len(flowResults),
		Flows:      flowResults,
		Duration:   wallClock,
	}

	for _, fr := range flowResults {
		switch fr.Status {
		case core.StatusPassed:
			result.PassedFlows++
		case core.StatusWarned:
			result.WarnedFlows++
		case core.StatusFailed, core.StatusErrored:
			result.FailedFlows++
		case core.StatusSkipped:
			result.SkippedFlows++
		}
	}

	switch {
	case result.FailedFlows > 0:
		result.Status = core.StatusFailed
	case result.WarnedFlows > 0:
		result.Status = core.StatusWarned
	case result.SkippedFlows > 0 && result.PassedFlows == 0:
		result.Status = core.StatusSkipped
	default:
		result.Status = core.StatusPassed
	}
	return result
}
