package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/hierarchy"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// outcome is what a step handler reports back to the flow runner.
type outcome struct {
	message  string
	element  *core.ElementInfo
	data     interface{}
	attempts int
	err      error
}

func success(msg string) outcome { return outcome{message: msg} }

func failure(err error) outcome { return outcome{err: err} }

// fromLookup turns a finished lookup into an outcome.
func fromLookup(res core.LookupResult, msg string) outcome {
	out := outcome{message: msg, attempts: res.Attempts}
	if err := res.Error(); err != nil {
		out.err = err
		out.message = ""
	}
	return out
}

// FlowRunner executes a single flow.
type FlowRunner struct {
	ctx        context.Context
	flow       flow.Flow
	auto       *automator.Automator
	config     RunnerConfig
	script     *ScriptEngine
	flowIdx    int // Current flow index (0-based)
	totalFlows int
}

// NewFlowRunner creates a runner for one flow on one device.
func NewFlowRunner(ctx context.Context, f flow.Flow, a *automator.Automator, cfg RunnerConfig) *FlowRunner {
	return &FlowRunner{ctx: ctx, flow: f, auto: a, config: cfg, totalFlows: 1}
}

// Run executes the flow and returns the result.
func (fr *FlowRunner) Run() core.FlowResult {
	result := core.FlowResult{
		Name:      fr.flow.DisplayName(),
		FilePath:  fr.flow.SourcePath,
		AppID:     fr.flow.Config.AppID,
		Device:    fr.auto.Serial(),
		StartTime: time.Now(),
		Steps:     make([]core.StepResult, 0, len(fr.flow.Steps)),
	}

	fr.script = NewScriptEngine()
	defer fr.script.Close()
	fr.script.ImportSystemEnv()
	fr.script.SetDevice(fr.auto)
	if fr.flow.SourcePath != "" {
		fr.script.SetFlowDir(filepath.Dir(fr.flow.SourcePath))
	}
	fr.script.SetVariables(fr.config.Env)
	if fr.flow.Config.AppID != "" {
		fr.script.SetVariable("APP_ID", fr.flow.Config.AppID)
	}
	fr.script.SetVariables(fr.flow.Config.Env)

	if fr.config.OnFlowStart != nil {
		fr.config.OnFlowStart(fr.flowIdx, fr.totalFlows, result.Name, filepath.Base(fr.flow.SourcePath))
	}
	log := logger.WithFields(logrus.Fields{"flow": result.Name, "device": result.Device})
	log.Info("flow started")

	stopped := false
	for i, step := range fr.flow.Steps {
		if stopped {
			result.Steps = append(result.Steps, skippedStep(i, step))
			continue
		}
		if fr.ctx.Err() != nil {
			result.Steps = append(result.Steps, skippedStep(i, step))
			result.Error = "execution cancelled"
			stopped = true
			continue
		}

		sr := fr.executeStep(i, step)
		result.Steps = append(result.Steps, sr)

		if fr.config.OnStepComplete != nil {
			fr.config.OnStepComplete(i, step.Describe(), sr.Status, sr.Duration, sr.Error)
		}

		if sr.Status.IsFailure() {
			result.Error = fmt.Sprintf("step %d (%s): %s", i+1, step.Describe(), sr.Error)
			stopped = true
		}
	}

	result.Duration = time.Since(result.StartTime)
	result.ComputeSummary()
	result.Status = result.AggregateStatus()
	if result.Status == core.StatusPassed && result.Error != "" {
		// cancelled before anything failed
		result.Status = core.StatusSkipped
	}

	log.WithField("status", result.Status.String()).Infof("flow finished in %s", result.Duration)
	if fr.config.OnFlowEnd != nil {
		fr.config.OnFlowEnd(result.Name, result.Status, result.Duration)
	}
	return result
}

// executeStep expands, runs and classifies one step.
func (fr *FlowRunner) executeStep(idx int, step flow.Step) core.StepResult {
	sr := core.StepResult{
		Index:     idx,
		Command:   string(step.Type()),
		Label:     step.Label(),
		StartTime: time.Now(),
	}

	out := fr.dispatch(fr.script.ExpandStep(step))

	sr.Duration = time.Since(sr.StartTime)
	sr.Message = out.message
	sr.Element = out.element
	sr.Data = out.data
	sr.Attempts = out.attempts

	if out.err == nil {
		sr.Status = core.StatusPassed
	} else {
		sr.Error = out.err.Error()
		sr.Status, sr.Category = classify(out.err)
	}

	if fr.config.Artifacts.ShouldCapture(sr.Status) {
		sr.Attachments = fr.captureArtifacts(idx)
	}

	if out.err != nil && step.IsOptional() {
		logger.Warn("optional step %d (%s) failed: %v", idx+1, step.Describe(), out.err)
		sr.Status = core.StatusWarned
	} else if out.err != nil {
		logger.Error("step %d (%s) failed: %v", idx+1, step.Describe(), out.err)
	} else {
		logger.Debug("step %d (%s) passed in %s", idx+1, step.Describe(), sr.Duration)
	}
	return sr
}

// classify maps an error to a step status: lookups that ran out of budget
// fail, everything else (device errors, bad input) errors.
func classify(err error) (core.StepStatus, core.ErrorCategory) {
	var ee *core.ExecutionError
	if !errors.As(err, &ee) {
		return core.StatusErrored, core.ErrCategoryConnection
	}
	switch ee.Category {
	case core.ErrCategoryAssertion, core.ErrCategoryTimeout:
		return core.StatusFailed, ee.Category
	default:
		return core.StatusErrored, ee.Category
	}
}

func skippedStep(idx int, step flow.Step) core.StepResult {
	return core.StepResult{
		Index:   idx,
		Command: string(step.Type()),
		Label:   step.Label(),
		Status:  core.StatusSkipped,
	}
}

// captureArtifacts writes a screenshot and a hierarchy dump for step idx into
// the output directory. Capture failures are logged and dropped.
func (fr *FlowRunner) captureArtifacts(idx int) []core.Attachment {
	if fr.config.OutputDir == "" {
		return nil
	}
	var attachments []core.Attachment

	if fr.config.Artifacts.Screenshot {
		a := core.NewAttachment(core.AttachmentScreenshot, fr.flowIdx, idx)
		if _, err := fr.auto.Vision.CaptureTo(filepath.Join(fr.config.OutputDir, a.Path)); err != nil {
			logger.Warn("capture screenshot for step %d: %v", idx+1, err)
		} else {
			attachments = append(attachments, a)
		}
	}

	if fr.config.Artifacts.UIHierarchy {
		a := core.NewAttachment(core.AttachmentHierarchy, fr.flowIdx, idx)
		opts := hierarchy.DumpOptions{Path: filepath.Join(fr.config.OutputDir, a.Path)}
		if _, err := fr.auto.UI.Dumper.Dump(opts); err != nil {
			logger.Warn("capture hierarchy for step %d: %v", idx+1, err)
		} else {
			attachments = append(attachments, a)
		}
	}

	return attachments
}
