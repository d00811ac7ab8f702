package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// DeviceWorker is one device running the whole flow list. Each worker's
// automator must write dumps and screenshots to its own directory.
type DeviceWorker struct {
	Automator *automator.Automator
	Cleanup   func()
}

// ParallelRunner runs the same flows on several devices at once.
type ParallelRunner struct {
	workers []DeviceWorker
	config  RunnerConfig
}

// NewParallelRunner creates a parallel runner with multiple device workers.
func NewParallelRunner(workers []DeviceWorker, config RunnerConfig) *ParallelRunner {
	return &ParallelRunner{workers: workers, config: config}
}

// Run executes every flow once per device, devices in parallel. Results are
// grouped by worker in the order the workers were given, flows in order
// within each group. StopOnFail only skips the failing device's remaining
// flows. Attachments land in a per-serial subdirectory of OutputDir.
func (pr *ParallelRunner) Run(ctx context.Context, flows []flow.Flow) (*RunResult, error) {
	if len(pr.workers) == 0 {
		return nil, fmt.Errorf("no workers available")
	}

	start := time.Now()
	perDevice := make([][]core.FlowResult, len(pr.workers))

	var g errgroup.Group
	for i, w := range pr.workers {
		i, w := i, w
		g.Go(func() error {
			if w.Cleanup != nil {
				defer w.Cleanup()
			}
			serial := w.Automator.Serial()

			cfg := pr.config
			if cfg.OutputDir != "" {
				cfg.OutputDir = filepath.Join(pr.config.OutputDir, serial)
			}
			logger.Debug("device %s running %d flows", serial, len(flows))
			res := New(w.Automator, cfg).Run(ctx, flows)

			if cfg.OutputDir != "" {
				prefixAttachments(res.Flows, serial)
			}
			perDevice[i] = res.Flows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]core.FlowResult, 0, len(flows)*len(pr.workers))
	for _, rs := range perDevice {
		results = append(results, rs...)
	}
	return buildRunResult(results, time.Since(start)), nil
}

// prefixAttachments makes attachment paths relative to the shared report
// directory.
func prefixAttachments(results []core.FlowResult, dir string) {
	for i := range results {
		for j := range results[i].Steps {
			atts := results[i].Steps[j].Attachments
			for k := range atts {
				atts[k].Path = filepath.ToSlash(filepath.Join(dir, atts[k].Path))
			}
		}
	}
}
