package flow

import (
	"fmt"
	"strings"
)

// StepType represents the type of step.
type StepType string

// Step type constants.
const (
	// App Management
	StepLaunchApp        StepType = "launchApp"
	StepClearState       StepType = "clearState"
	StepGrantPermissions StepType = "grantPermissions"
	StepOpenLink         StepType = "openLink"

	// Interaction
	StepTapOn      StepType = "tapOn"
	StepTapOnImage StepType = "tapOnImage"
	StepTapOnPoint StepType = "tapOnPoint"
	StepInputText  StepType = "inputText"
	StepBack       StepType = "back"

	// Assertions
	StepAssertVisible StepType = "assertVisible"
	StepWaitFor       StepType = "waitFor"

	// Device
	StepShell          StepType = "shell"
	StepTakeScreenshot StepType = "takeScreenshot"
	StepDumpHierarchy  StepType = "dumpHierarchy"

	// Scripting
	StepRunScript  StepType = "runScript"
	StepEvalScript StepType = "evalScript"
)

// Step is the interface for all flow steps.
type Step interface {
	Type() StepType
	IsOptional() bool
	Label() string
	Describe() string
}

// BaseStep contains common fields for all steps.
type BaseStep struct {
	StepType  StepType `yaml:"-"`
	Optional  bool     `yaml:"optional"`
	StepLabel string   `yaml:"label"`
}

// Type returns the step type.
func (b *BaseStep) Type() StepType { return b.StepType }

// IsOptional returns whether the step is optional.
func (b *BaseStep) IsOptional() bool { return b.Optional }

// Label returns the step label.
func (b *BaseStep) Label() string { return b.StepLabel }

// Describe returns a human-readable description.
func (b *BaseStep) Describe() string { return string(b.StepType) }

// ============================================
// App Management Steps
// ============================================

// LaunchAppStep launches an app.
type LaunchAppStep struct {
	BaseStep         `yaml:",inline"`
	AppID            string `yaml:"appId"`
	ClearState       bool   `yaml:"clearState"`
	GrantPermissions bool   `yaml:"grantPermissions"`
}

// ClearStateStep clears app data.
type ClearStateStep struct {
	BaseStep `yaml:",inline"`
	AppID    string `yaml:"appId"`
}

// GrantPermissionsStep grants the configured runtime permissions.
type GrantPermissionsStep struct {
	BaseStep `yaml:",inline"`
	AppID    string `yaml:"appId"`
}

// OpenLinkStep opens a URL, optionally in a specific package.
type OpenLinkStep struct {
	BaseStep `yaml:",inline"`
	Link     string `yaml:"link"`
	AppID    string `yaml:"appId"`
}

// ============================================
// Interaction Steps
// ============================================

// TapOnStep taps on an element found in the hierarchy.
type TapOnStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Repeat   int      `yaml:"repeat"`  // taps on the same point
	Retries  int      `yaml:"retries"` // 0 = configured default
}

// TapOnImageStep taps the center of a reference image found on screen.
type TapOnImageStep struct {
	BaseStep  `yaml:",inline"`
	Image     string  `yaml:"image"`
	Threshold float64 `yaml:"threshold"` // 0 = vision default
	Retries   int     `yaml:"retries"`
}

// TapOnPointStep taps on specific coordinates.
type TapOnPointStep struct {
	BaseStep `yaml:",inline"`
	X        int `yaml:"x"`
	Y        int `yaml:"y"`
	Repeat   int `yaml:"repeat"`
}

// InputTextStep inputs text.
type InputTextStep struct {
	BaseStep `yaml:",inline"`
	Text     string `yaml:"text"`
	Keyboard string `yaml:"keyboard"` // adb (default) or system
	Slow     *bool  `yaml:"slow"`     // per-character; default true
}

// IsSlow reports whether text is sent one character at a time.
func (s *InputTextStep) IsSlow() bool {
	return s.Slow == nil || *s.Slow
}

// BackStep presses back.
type BackStep struct {
	BaseStep `yaml:",inline"`
}

// ============================================
// Assertion Steps
// ============================================

// AssertVisibleStep waits for an element to be visible.
type AssertVisibleStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Retries  int      `yaml:"retries"`
}

// Condition is a named XPath expression polled by waitFor.
type Condition struct {
	Name  string
	XPath string
}

// WaitForStep polls named conditions and reports the first one that matches.
type WaitForStep struct {
	BaseStep   `yaml:",inline"`
	Conditions []Condition `yaml:"-"` // ordered, decoded by the parser
	Repeat     int         `yaml:"repeat"`
	Index      int         `yaml:"index"`
	Expect     string      `yaml:"expect"` // fail unless this condition matched
	Output     string      `yaml:"output"` // script variable receiving the matched name
}

// ============================================
// Device Steps
// ============================================

// ShellStep runs a raw shell command.
type ShellStep struct {
	BaseStep `yaml:",inline"`
	Command  string `yaml:"command"`
	Output   string `yaml:"output"` // script variable receiving stdout
}

// TakeScreenshotStep takes a screenshot.
type TakeScreenshotStep struct {
	BaseStep `yaml:",inline"`
	Path     string `yaml:"path"`
}

// DumpHierarchyStep writes the UI hierarchy to disk.
type DumpHierarchyStep struct {
	BaseStep   `yaml:",inline"`
	Path       string `yaml:"path"`
	Compressed bool   `yaml:"compressed"`
	MaxDepth   int    `yaml:"maxDepth"`
}

// ============================================
// Scripting Steps
// ============================================

// RunScriptStep runs a script.
type RunScriptStep struct {
	BaseStep `yaml:",inline"`
	Script   string            `yaml:"script"` // Script content or filename (string form)
	File     string            `yaml:"file"`   // Script filename (map form)
	Env      map[string]string `yaml:"env"`
}

// ScriptPath returns the script path (either Script or File field).
func (s *RunScriptStep) ScriptPath() string {
	if s.File != "" {
		return s.File
	}
	return s.Script
}

// EvalScriptStep evaluates JavaScript.
type EvalScriptStep struct {
	BaseStep `yaml:",inline"`
	Script   string `yaml:"script"`
}

// ============================================
// Describe() implementations for detailed output
// ============================================

// Describe returns a human-readable description of the launch app step.
func (s *LaunchAppStep) Describe() string {
	desc := "launchApp"
	if s.AppID != "" {
		desc += ": " + s.AppID
	}
	if s.ClearState {
		desc += " (clearState)"
	}
	return desc
}

// Describe returns a human-readable description of the clear state step.
func (s *ClearStateStep) Describe() string {
	return joinDesc("clearState", s.AppID)
}

// Describe returns a human-readable description of the grant permissions step.
func (s *GrantPermissionsStep) Describe() string {
	return joinDesc("grantPermissions", s.AppID)
}

// Describe returns a human-readable description of the open link step.
func (s *OpenLinkStep) Describe() string {
	return "openLink: " + s.Link
}

// Describe returns a human-readable description of the tap step.
func (s *TapOnStep) Describe() string {
	return "tapOn: " + s.Selector.Describe()
}

// Describe returns a human-readable description of the tap on image step.
func (s *TapOnImageStep) Describe() string {
	return "tapOnImage: " + s.Image
}

// Describe returns a human-readable description of the tap on point step.
func (s *TapOnPointStep) Describe() string {
	return fmt.Sprintf("tapOnPoint: %d,%d", s.X, s.Y)
}

// Describe returns a human-readable description of the input text step.
func (s *InputTextStep) Describe() string {
	return "inputText: \"" + s.Text + "\""
}

// Describe returns a human-readable description of the assert visible step.
func (s *AssertVisibleStep) Describe() string {
	return "assertVisible: " + s.Selector.Describe()
}

// Describe returns a human-readable description of the wait for step.
func (s *WaitForStep) Describe() string {
	names := make([]string, len(s.Conditions))
	for i, c := range s.Conditions {
		names[i] = c.Name
	}
	return "waitFor: " + strings.Join(names, "|")
}

// Describe returns a human-readable description of the shell step.
func (s *ShellStep) Describe() string {
	return "shell: " + s.Command
}

// Describe returns a human-readable description of the run script step.
func (s *RunScriptStep) Describe() string {
	return joinDesc("runScript", s.ScriptPath())
}

func joinDesc(name, arg string) string {
	if arg == "" {
		return name
	}
	return name + ": " + arg
}
