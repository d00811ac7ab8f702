package executor

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/adbauto/pkg/checker"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/hierarchy"
	"github.com/devicelab-dev/adbauto/pkg/input"
)

// dispatch routes a step to its handler.
func (fr *FlowRunner) dispatch(step flow.Step) outcome {
	switch s := step.(type) {
	// App lifecycle
	case *flow.LaunchAppStep:
		return fr.launchApp(s)
	case *flow.ClearStateStep:
		return fr.withAppID(s.AppID, "clearState", func(appID string) outcome {
			if err := fr.auto.DeleteCache(appID); err != nil {
				return failure(err)
			}
			return success("Cleared state of " + appID)
		})
	case *flow.GrantPermissionsStep:
		return fr.withAppID(s.AppID, "grantPermissions", func(appID string) outcome {
			if err := fr.auto.GrantPermissions(appID); err != nil {
				return failure(err)
			}
			return success(fmt.Sprintf("Granted %d permission(s) to %s", len(fr.auto.Commands.Permissions), appID))
		})
	case *flow.OpenLinkStep:
		if err := fr.auto.OpenLink(s.Link, s.AppID); err != nil {
			return failure(err)
		}
		return success("Opened " + s.Link)

	// Interaction
	case *flow.TapOnStep:
		return fr.tapOn(s)
	case *flow.TapOnImageStep:
		return fr.tapOnImage(s)
	case *flow.TapOnPointStep:
		if err := fr.auto.Input.TapTimes(s.X, s.Y, atLeastOne(s.Repeat)); err != nil {
			return failure(err)
		}
		return success(fmt.Sprintf("Tapped (%d,%d)", s.X, s.Y))
	case *flow.InputTextStep:
		return fr.inputText(s)
	case *flow.BackStep:
		if err := fr.auto.Back(); err != nil {
			return failure(err)
		}
		return success("Pressed back")

	// Assertions
	case *flow.AssertVisibleStep:
		return fr.assertVisible(s)
	case *flow.WaitForStep:
		return fr.waitFor(s)

	// Device
	case *flow.ShellStep:
		return fr.shell(s)
	case *flow.TakeScreenshotStep:
		path := s.Path
		if path == "" {
			path = fr.auto.Vision.Path
		}
		img, err := fr.auto.Vision.CaptureTo(path)
		if err != nil {
			return failure(err)
		}
		b := img.Bounds()
		return outcome{message: fmt.Sprintf("Saved %dx%d screenshot to %s", b.Dx(), b.Dy(), path), data: path}
	case *flow.DumpHierarchyStep:
		opts := hierarchy.DumpOptions{Compressed: s.Compressed, MaxDepth: s.MaxDepth, Path: s.Path}
		doc, err := fr.auto.UI.Dumper.Dump(opts)
		if err != nil {
			return failure(err)
		}
		return outcome{message: fmt.Sprintf("Dumped %d bytes to %s", len(doc.Raw), doc.Path), data: doc.Path}

	// Scripting
	case *flow.RunScriptStep:
		return fr.script.ExecuteRunScript(s)
	case *flow.EvalScriptStep:
		return fr.script.ExecuteEvalScript(s)
	}

	return failure(core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported step type %s", step.Type())))
}

// withAppID runs fn with the step's appId, falling back to the flow's.
func (fr *FlowRunner) withAppID(appID, command string, fn func(string) outcome) outcome {
	if appID == "" {
		appID = fr.script.ExpandVariables(fr.flow.Config.AppID)
	}
	if appID == "" {
		return failure(core.ErrMissingRequired.WithMessage(command + " requires appId"))
	}
	return fn(appID)
}

func (fr *FlowRunner) launchApp(s *flow.LaunchAppStep) outcome {
	return fr.withAppID(s.AppID, "launchApp", func(appID string) outcome {
		if s.ClearState {
			if err := fr.auto.DeleteCache(appID); err != nil {
				return failure(err)
			}
		}
		if s.GrantPermissions {
			if err := fr.auto.GrantPermissions(appID); err != nil {
				return failure(err)
			}
		}
		if err := fr.auto.OpenApp(appID); err != nil {
			return failure(err)
		}
		return success("Launched " + appID)
	})
}

func (fr *FlowRunner) tapOn(s *flow.TapOnStep) outcome {
	retries := s.Retries
	if retries <= 0 {
		retries = fr.auto.Config.Polling.ClickRetries
	}

	match, res := fr.auto.UI.Click(s.Selector, retries, atLeastOne(s.Repeat), fr.auto.Input)
	out := fromLookup(res, "Tapped "+s.Selector.Describe())
	if match != nil {
		out.element = match.Element()
	}
	return out
}

func (fr *FlowRunner) tapOnImage(s *flow.TapOnImageStep) outcome {
	ref := fr.script.ResolvePath(s.Image)
	p, res := fr.auto.Vision.Wait(ref, s.Threshold, atLeastOne(s.Retries))
	if !res.Found() {
		if res.Status == core.LookupNotFound {
			return outcome{attempts: res.Attempts, err: core.ErrImageNotFound.WithMessage(fmt.Sprintf("%s: %s", s.Image, res.Reason))}
		}
		return fromLookup(res, "")
	}

	if err := fr.auto.Click(p.X, p.Y); err != nil {
		return failure(err)
	}
	return outcome{
		message:  fmt.Sprintf("Tapped image %s at %s", s.Image, p),
		element:  &core.ElementInfo{Point: p},
		attempts: res.Attempts,
	}
}

func (fr *FlowRunner) inputText(s *flow.InputTextStep) outcome {
	kb, err := input.ParseKeyboard(s.Keyboard)
	if err != nil {
		return failure(core.ErrInvalidConfig.WithCause(err))
	}
	if err := fr.auto.SendText(s.Text, input.Options{Keyboard: kb, Slow: s.IsSlow()}); err != nil {
		return failure(err)
	}
	return success(fmt.Sprintf("Typed %d character(s) via %s keyboard", len([]rune(s.Text)), kb))
}

func (fr *FlowRunner) assertVisible(s *flow.AssertVisibleStep) outcome {
	retries := s.Retries
	if retries <= 0 {
		retries = fr.auto.Config.Polling.TextRetries
	}

	match, res := fr.auto.UI.Wait(s.Selector, retries)
	if res.Status == core.LookupNotFound {
		return outcome{attempts: res.Attempts, err: core.ErrElementNotFound.WithMessage(
			fmt.Sprintf("%s not visible after %d attempt(s)", s.Selector.Describe(), res.Attempts))}
	}
	out := fromLookup(res, s.Selector.Describe()+" is visible")
	if match != nil {
		out.element = match.Element()
	}
	return out
}

// waitFor polls the named conditions. No match is a result, not a failure,
// unless expect names the condition that must win.
func (fr *FlowRunner) waitFor(s *flow.WaitForStep) outcome {
	repeat := s.Repeat
	if repeat <= 0 {
		repeat = fr.auto.Config.Polling.CheckRetries
	}

	name, res := fr.auto.Checker().FirstMatching(s.Conditions, checker.Options{Repeat: repeat, Index: s.Index})
	if s.Output != "" {
		fr.script.SetVariable(s.Output, name)
	}

	out := outcome{message: "Matched " + name, data: name, attempts: res.Attempts}
	switch {
	case res.Status == core.LookupFailed:
		out.err = res.Error()
		out.message = ""
	case s.Expect != "" && name != s.Expect:
		out.err = core.ErrConditionNotMet.WithMessage(fmt.Sprintf("expected %s, got %s", s.Expect, name))
		out.message = ""
	}
	return out
}

func (fr *FlowRunner) shell(s *flow.ShellStep) outcome {
	stdout, err := fr.auto.Shell(s.Command)
	if err != nil {
		return failure(err)
	}
	trimmed := strings.TrimRight(stdout, "\r\n")
	if s.Output != "" {
		fr.script.SetVariable(s.Output, trimmed)
	}
	return outcome{message: "Ran " + s.Command, data: trimmed}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
