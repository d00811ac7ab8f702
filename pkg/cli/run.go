package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adbauto/pkg/config"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/executor"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/logger"
	"github.com/devicelab-dev/adbauto/pkg/report"
	"github.com/devicelab-dev/adbauto/pkg/validator"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run YAML flow files",
	ArgsUsage: "<flow.yaml | folder>...",
	Description: `Run one or more flows and write report.json to the output directory.

Several serials in --device run every flow once on each device, in parallel.
Attachments go to a subfolder per serial.

Examples:
  adbauto run login.yaml
  adbauto run flows/ -e USER=test --include-tags smoke
  adbauto -s emulator-5554,emulator-5556 run flows/`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Environment variables (KEY=VALUE)",
		},
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only run flows with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Skip flows with these tags",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Report directory (default: <home>/reports/<timestamp>)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Write directly into --output without a timestamp folder",
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip remaining flows after the first failure",
		},
		&cli.StringFlag{
			Name:  "artifacts",
			Usage: "Capture screenshot and hierarchy: on-failure, always or never",
			Value: "on-failure",
		},
	},
	Action: runFlows,
}

func runFlows(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one flow file or folder is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	artifacts, err := parseArtifacts(c.String("artifacts"))
	if err != nil {
		return err
	}
	outputDir, err := resolveOutputDir(c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}

	flows, err := loadFlows(c.App.Writer, c.Args().Slice(), c.StringSlice("include-tags"), c.StringSlice("exclude-tags"))
	if err != nil {
		return err
	}

	// CLI env overrides workspace config env
	env := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		env[k] = v
	}
	for k, v := range parseEnvVars(c.StringSlice("env")) {
		env[k] = v
	}

	runnerCfg := executor.RunnerConfig{
		OutputDir:  outputDir,
		StopOnFail: c.Bool("stop-on-fail"),
		Artifacts:  artifacts,
		Env:        env,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	w := c.App.Writer
	fmt.Fprintf(w, "\n%sSetup%s\n", color(colorBold), color(colorReset))
	fmt.Fprintf(w, "  Flows:  %d\n", len(flows))
	fmt.Fprintf(w, "  Output: %s\n", outputDir)

	serials := parseDevices(c.String("device"))
	var (
		result *executor.RunResult
		dev    report.Device
	)
	if len(serials) > 1 {
		result, dev, err = runParallel(ctx, c, cfg, serials, flows, runnerCfg)
	} else {
		result, dev, err = runSingle(ctx, c, cfg, flows, runnerCfg)
	}
	if err != nil {
		return err
	}

	r := report.Build(result.Flows, dev, time.Now().Add(-result.Duration), result.Duration)
	if len(serials) > 1 {
		// parallel runs print no live progress
		report.PrintSummary(w, r, colorsEnabled)
	} else {
		(&report.Printer{W: w, Colors: colorsEnabled}).Totals(r)
	}

	path, err := report.WriteJSON(outputDir, r)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(w, "\n  Report: %s (run %s)\n", path, r.RunID)
	logger.Info("report written to %s", path)

	if !result.Success() {
		return fmt.Errorf("%d of %d flows failed", result.FailedFlows, result.TotalFlows)
	}
	return nil
}

func runSingle(ctx context.Context, c *cli.Context, cfg *config.Config, flows []flow.Flow, runnerCfg executor.RunnerConfig) (*executor.RunResult, report.Device, error) {
	a, err := connect(cfg)
	if err != nil {
		return nil, report.Device{}, fmt.Errorf("connect: %w", err)
	}

	dev := report.Device{Serial: a.Serial()}
	if info, err := a.Info(); err == nil {
		dev.Model = info.Model
		dev.SDK = info.SDK
	} else {
		logger.Warn("device info: %v", err)
	}
	fmt.Fprintf(c.App.Writer, "  Device: %s %s\n", dev.Serial, dev.Model)
	fmt.Fprintf(c.App.Writer, "\n%sExecution%s\n", color(colorBold), color(colorReset))

	live := &liveOutput{w: c.App.Writer}
	runnerCfg.OnFlowStart = live.flowStart
	runnerCfg.OnStepComplete = live.stepComplete
	runnerCfg.OnFlowEnd = live.flowEnd

	return executor.New(a, runnerCfg).Run(ctx, flows), dev, nil
}

// runParallel connects every serial and runs all flows on each of them.
// Each device gets its own resources directory for dumps and screenshots.
func runParallel(ctx context.Context, c *cli.Context, cfg *config.Config, serials []string, flows []flow.Flow, runnerCfg executor.RunnerConfig) (*executor.RunResult, report.Device, error) {
	workers := make([]executor.DeviceWorker, 0, len(serials))
	for _, serial := range serials {
		devCfg := *cfg
		devCfg.Device.Serial = serial
		devCfg.Resources.Dir = filepath.Join(cfg.Resources.Dir, serial)

		a, err := connect(&devCfg)
		if err != nil {
			return nil, report.Device{}, fmt.Errorf("connect %s: %w", serial, err)
		}
		workers = append(workers, executor.DeviceWorker{Automator: a})
	}

	fmt.Fprintf(c.App.Writer, "  %sParallel:%s %s\n", color(colorCyan), color(colorReset), strings.Join(serials, ", "))
	fmt.Fprintf(c.App.Writer, "\n%sExecution%s\n", color(colorBold), color(colorReset))

	result, err := executor.NewParallelRunner(workers, runnerCfg).Run(ctx, flows)
	if err != nil {
		return nil, report.Device{}, err
	}
	return result, report.Device{Serials: serials}, nil
}

// loadFlows validates every flow up front and reports all problems together.
func loadFlows(w io.Writer, paths, includeTags, excludeTags []string) ([]flow.Flow, error) {
	result := validator.New(includeTags, excludeTags).Validate(paths...)
	if !result.IsValid() {
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  %s✗%s %v\n", color(colorRed), color(colorReset), err)
		}
		return nil, fmt.Errorf("%d flow validation error(s)", len(result.Errors))
	}
	if len(result.Flows) == 0 {
		return nil, fmt.Errorf("no flows to run")
	}

	flows := make([]flow.Flow, len(result.Flows))
	for i, f := range result.Flows {
		flows[i] = *f
	}
	return flows, nil
}

func parseArtifacts(mode string) (core.ArtifactConfig, error) {
	cfg, err := core.ParseArtifactMode(mode)
	if err != nil {
		return cfg, fmt.Errorf("--artifacts: %w", err)
	}
	return cfg, nil
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: <home>/reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = config.GetReportsDir()
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	// Create timestamp-based subfolder
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// parseEnvVars parses KEY=VALUE strings; entries without "=" are ignored.
func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}

// liveOutput prints flow progress as it happens (single device only).
type liveOutput struct {
	w io.Writer
}

func (l *liveOutput) printer() *report.Printer {
	return &report.Printer{W: l.w, Colors: colorsEnabled}
}

func (l *liveOutput) flowStart(flowIdx, totalFlows int, name, file string) {
	w := l.w
	fmt.Fprintf(w, "\n  %s[%d/%d]%s %s%s%s (%s)\n",
		color(colorCyan), flowIdx+1, totalFlows, color(colorReset),
		color(colorBold), name, color(colorReset), file)
	fmt.Fprintln(w, "  "+strings.Repeat("─", 60))
}

func (l *liveOutput) stepComplete(idx int, desc string, status core.StepStatus, duration time.Duration, errMsg string) {
	l.printer().Step(core.StepResult{
		Index:    idx,
		Label:    desc,
		Status:   status,
		Duration: duration,
		Error:    errMsg,
	})
}

func (l *liveOutput) flowEnd(name string, status core.StepStatus, duration time.Duration) {
	w := l.w
	symbol, symbolColor := "✓", colorGreen
	switch status {
	case core.StatusFailed, core.StatusErrored:
		symbol, symbolColor = "✗", colorRed
	case core.StatusSkipped:
		symbol, symbolColor = "-", colorGray
	case core.StatusWarned:
		symbol, symbolColor = "⚠", colorYellow
	}
	fmt.Fprintf(w, "  %s%s%s %s %s%s%s\n",
		color(symbolColor), symbol, color(colorReset), name,
		color(colorGray), report.FormatDuration(duration), color(colorReset))
}
