// Package automator bundles the device session, command executor, UI
// introspector, visual locator and input simulator behind one object.
package automator

import (
	"image"

	"github.com/devicelab-dev/adbauto/pkg/checker"
	"github.com/devicelab-dev/adbauto/pkg/command"
	"github.com/devicelab-dev/adbauto/pkg/config"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/device"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/hierarchy"
	"github.com/devicelab-dev/adbauto/pkg/input"
	"github.com/devicelab-dev/adbauto/pkg/logger"
	"github.com/devicelab-dev/adbauto/pkg/poll"
	"github.com/devicelab-dev/adbauto/pkg/vision"
)

// Automator drives one device. Dumps and screenshots go to the paths in
// Config.Resources and are overwritten on every call, so concurrent
// automators need separate resource directories.
type Automator struct {
	Config   *config.Config
	Session  device.Session
	Commands *command.Executor
	Input    *input.Simulator
	UI       *hierarchy.Introspector
	Vision   *vision.Locator
	Poller   *poll.Poller

	checker *checker.Checker
}

// New connects to the configured device.
func New(cfg *config.Config) (*Automator, error) {
	s, err := device.Connect(cfg.Device)
	if err != nil {
		return nil, err
	}
	return NewWithSession(s, cfg), nil
}

// NewWithSession builds an automator over an existing session.
func NewWithSession(s device.Session, cfg *config.Config) *Automator {
	if cfg == nil {
		cfg = config.Default()
	}
	p := poll.New(cfg.Polling.Interval())
	in := input.New(s, cfg.Input)
	ui := hierarchy.NewIntrospector(hierarchy.NewDumper(s, cfg.Resources.DumpPath()), p)

	return &Automator{
		Config:   cfg,
		Session:  s,
		Commands: command.New(s, cfg.Permissions),
		Input:    in,
		UI:       ui,
		Vision:   vision.NewLocator(s, cfg.Resources.ScreenshotPath(), p),
		Poller:   p,
		checker:  checker.New(ui, in),
	}
}

// Serial returns the connected device serial.
func (a *Automator) Serial() string {
	return a.Session.Serial()
}

// Info reads device properties.
func (a *Automator) Info() (device.Info, error) {
	return a.Commands.Info()
}

// Shell runs a raw shell command.
func (a *Automator) Shell(cmd string) (string, error) {
	return a.Commands.Shell(cmd)
}

// OpenLink opens url, in pkg when set.
func (a *Automator) OpenLink(url, pkg string) error {
	return a.Commands.OpenLink(url, pkg)
}

// OpenApp launches pkg.
func (a *Automator) OpenApp(pkg string) error {
	return a.Commands.OpenApp(pkg)
}

// DeleteCache clears pkg's data.
func (a *Automator) DeleteCache(pkg string) error {
	return a.Commands.DeleteCache(pkg)
}

// GrantPermissions grants the configured permissions to pkg.
func (a *Automator) GrantPermissions(pkg string) error {
	return a.Commands.GrantPermissions(pkg)
}

// ListApps returns installed package names.
func (a *Automator) ListApps(flags ...string) ([]string, error) {
	return a.Commands.ListApps(flags...)
}

// Back presses the back key.
func (a *Automator) Back() error {
	return a.Commands.Back()
}

// ScreenCapture writes a screenshot and returns its path and pixels.
func (a *Automator) ScreenCapture() (string, *image.NRGBA, error) {
	img, err := a.Vision.Capture()
	if err != nil {
		return "", nil, err
	}
	return a.Vision.Path, img, nil
}

// ImageCoordinates captures the screen once and returns the center of the
// reference image. threshold <= 0 uses vision.DefaultThreshold.
func (a *Automator) ImageCoordinates(refPath string, threshold float64) (core.Point, core.LookupResult) {
	return a.Vision.Find(refPath, threshold)
}

// Click taps (x, y).
func (a *Automator) Click(x, y int) error {
	return a.Input.Tap(x, y)
}

// ClickImage taps the center of the reference image if it is on screen.
func (a *Automator) ClickImage(refPath string, threshold float64) (bool, core.LookupResult) {
	p, res := a.Vision.Find(refPath, threshold)
	if !res.Found() {
		return false, res
	}
	if err := a.Input.Tap(p.X, p.Y); err != nil {
		return false, core.Failed("tap "+p.String(), err)
	}
	return true, res
}

// Tap waits for the selector and taps the match.
func (a *Automator) Tap(sel flow.Selector, retries int) (*hierarchy.Match, core.LookupResult) {
	if retries <= 0 {
		retries = a.Config.Polling.ClickRetries
	}
	return a.UI.Click(sel, retries, 1, a.Input)
}

// ClickText taps the element whose text equals text.
func (a *Automator) ClickText(text string) (bool, core.LookupResult) {
	_, res := a.Tap(flow.Text(text), 0)
	return res.Found(), res
}

// ClickXPath taps the first match of expr if it is on screen now, without
// waiting.
func (a *Automator) ClickXPath(expr string) (bool, core.LookupResult) {
	return a.UI.ClickXPath(expr, 0, 1, a.Input)
}

// ClickResource taps the element with the resource id. Failures are logged,
// not returned.
func (a *Automator) ClickResource(id string) bool {
	return a.clickLogged(flow.ResourceID(id))
}

// ClickResourceText taps the element matching both resource id and text.
// Failures are logged, not returned.
func (a *Automator) ClickResourceText(id, text string) bool {
	return a.clickLogged(flow.ResourceIDAndText(id, text))
}

func (a *Automator) clickLogged(sel flow.Selector) bool {
	_, res := a.Tap(sel, 0)
	if err := res.Error(); err != nil {
		logger.Error("Error clicking resource %s: %v", sel.Describe(), err)
		return false
	}
	return true
}

// DumpXML writes the current hierarchy and returns its path and document.
func (a *Automator) DumpXML() (string, *hierarchy.Document, error) {
	doc, err := a.UI.Dump()
	if err != nil {
		return "", nil, err
	}
	return doc.Path, doc, nil
}

// FindXML looks expr up in a dump file written earlier. Any failure reads
// as no match.
func (a *Automator) FindXML(expr, path string, index int) ([]core.Point, *hierarchy.Match) {
	doc, err := hierarchy.Load(path)
	if err != nil {
		logger.Debug("find xml: %v", err)
		return nil, nil
	}
	points, match, _ := doc.Find(expr, index)
	return points, match
}

// XMLCoordinates dumps once and returns the top-left of each match of expr.
func (a *Automator) XMLCoordinates(expr string) ([]core.Point, core.LookupResult) {
	return a.UI.Coordinates(expr)
}

// CheckText polls for an element with the exact text. retries <= 0 uses the
// configured text budget.
func (a *Automator) CheckText(text string, retries int) (bool, core.LookupResult) {
	if retries <= 0 {
		retries = a.Config.Polling.TextRetries
	}
	return a.UI.CheckText(text, retries)
}

// CheckTextXML polls for text anywhere in the raw dump.
func (a *Automator) CheckTextXML(text string, retries int) (bool, core.LookupResult) {
	if retries <= 0 {
		retries = a.Config.Polling.TextRetries
	}
	return a.UI.CheckTextXML(text, retries)
}

// ClickXMLCoordinates polls expr and taps match index.
func (a *Automator) ClickXMLCoordinates(expr string, index int) (bool, core.LookupResult) {
	return a.UI.ClickXPath(expr, index, a.Config.Polling.ClickRetries, a.Input)
}

// Scrollable polls expr and taps match index times times.
func (a *Automator) Scrollable(expr string, times, index int) (bool, core.LookupResult) {
	sel := flow.XPath(expr)
	sel.Index = index
	_, res := a.UI.Click(sel, a.Config.Polling.ClickRetries, times, a.Input)
	return res.Found(), res
}

// SendText types text.
func (a *Automator) SendText(text string, opts input.Options) error {
	return a.Input.SendText(text, opts)
}

// Checker returns the element-state checker bound to this automator.
func (a *Automator) Checker() *checker.Checker {
	return a.checker
}
