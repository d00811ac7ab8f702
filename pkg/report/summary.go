package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devicelab-dev/adbauto/pkg/core"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// slowThreshold marks steps worth calling out in the summary.
const slowThreshold = 5 * time.Second

// Printer writes human-readable run output.
type Printer struct {
	W      io.Writer
	Colors bool
}

func (p *Printer) color(c string) string {
	if p.Colors {
		return c
	}
	return ""
}

// PrintSummary prints every flow with its steps, then the totals.
func PrintSummary(w io.Writer, r *Report, colors bool) {
	p := &Printer{W: w, Colors: colors}
	for i, f := range r.Flows {
		p.Flow(i, len(r.Flows), f)
	}
	p.Totals(r)
}

// Flow prints one flow result.
func (p *Printer) Flow(idx, total int, f core.FlowResult) {
	fmt.Fprintf(p.W, "\n  %s[%d/%d]%s %s%s%s - Device: %s\n",
		p.color(colorCyan), idx+1, total, p.color(colorReset),
		p.color(colorBold), f.Name, p.color(colorReset), f.Device)
	fmt.Fprintln(p.W, "  "+strings.Repeat("─", 60))

	for _, s := range f.Steps {
		p.Step(s)
	}

	switch {
	case f.Status.IsSuccess():
		fmt.Fprintf(p.W, "%s✓ %s%s %s%s%s\n",
			p.color(colorGreen), p.color(colorReset), f.Name,
			p.color(colorGray), FormatDuration(f.Duration), p.color(colorReset))
	case f.Status == core.StatusSkipped:
		fmt.Fprintf(p.W, "%s- %s%s (skipped)\n", p.color(colorGray), p.color(colorReset), f.Name)
	default:
		fmt.Fprintf(p.W, "%s✗ %s%s %s%s%s\n",
			p.color(colorRed), p.color(colorReset), f.Name,
			p.color(colorGray), FormatDuration(f.Duration), p.color(colorReset))
	}
}

// Step prints one step line, with the error underneath when it did not pass.
func (p *Printer) Step(s core.StepResult) {
	indent := "    "
	desc := s.Label
	if desc == "" {
		desc = s.Command
	}

	switch s.Status {
	case core.StatusPassed:
		symbol, symbolColor, durColor := "✓", p.color(colorGreen), ""
		if s.Duration >= slowThreshold {
			symbol, symbolColor, durColor = "⚠", p.color(colorYellow), p.color(colorYellow)
		}
		fmt.Fprintf(p.W, "%s%s%s%s %s %s(%s)%s\n",
			indent, symbolColor, symbol, p.color(colorReset),
			desc, durColor, FormatDuration(s.Duration), p.color(colorReset))
	case core.StatusSkipped:
		fmt.Fprintf(p.W, "%s%s-%s %s (skipped)\n", indent, p.color(colorGray), p.color(colorReset), desc)
	case core.StatusWarned:
		fmt.Fprintf(p.W, "%s%s⚠%s %s (%s, optional)\n",
			indent, p.color(colorYellow), p.color(colorReset), desc, FormatDuration(s.Duration))
		p.errorLine(indent, s.Error)
	default:
		fmt.Fprintf(p.W, "%s%s✗%s %s (%s)\n",
			indent, p.color(colorRed), p.color(colorReset), desc, FormatDuration(s.Duration))
		p.errorLine(indent, s.Error)
	}
}

func (p *Printer) errorLine(indent, msg string) {
	if msg == "" {
		return
	}
	fmt.Fprintf(p.W, "%s  %s╰─%s %s\n", indent, p.color(colorGray), p.color(colorReset), msg)
}

// Totals prints step and flow counts.
func (p *Printer) Totals(r *Report) {
	s := r.Summary
	fmt.Fprintln(p.W)
	if s.Steps.Passed > 0 {
		fmt.Fprintf(p.W, "  %s%d steps passing%s (%s)\n",
			p.color(colorGreen), s.Steps.Passed, p.color(colorReset), FormatDuration(time.Duration(r.Duration)*time.Millisecond))
	}
	if s.Steps.Failed > 0 {
		fmt.Fprintf(p.W, "  %s%d steps failing%s\n", p.color(colorRed), s.Steps.Failed, p.color(colorReset))
	}
	if s.Steps.Warned > 0 {
		fmt.Fprintf(p.W, "  %s%d steps warned%s\n", p.color(colorYellow), s.Steps.Warned, p.color(colorReset))
	}
	if s.Steps.Skipped > 0 {
		fmt.Fprintf(p.W, "  %s%d steps skipped%s\n", p.color(colorGray), s.Steps.Skipped, p.color(colorReset))
	}

	statusColor := colorGreen
	if r.Status == core.StatusFailed {
		statusColor = colorRed
	}
	fmt.Fprintf(p.W, "\n  %sFlows: %d passed, %d failed, %d warned, %d skipped of %d%s\n",
		p.color(statusColor), s.Passed, s.Failed, s.Warned, s.Skipped, s.Total, p.color(colorReset))
}

// FormatDuration renders d as 850ms, 2.3s or 1m 5s.
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
