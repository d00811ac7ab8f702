package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/jsengine"
)

// envVarPattern matches ALL_CAPS identifiers that look like env variables
var envVarPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9_]{2,})\b`)

// ScriptEngine handles JavaScript execution and variable management.
type ScriptEngine struct {
	js        *jsengine.Engine
	variables map[string]string
	flowDir   string // Directory of current flow (for resolving relative paths)
}

// NewScriptEngine creates a new script engine.
func NewScriptEngine() *ScriptEngine {
	return &ScriptEngine{
		js:        jsengine.New(),
		variables: make(map[string]string),
	}
}

// Close cleans up the script engine.
func (se *ScriptEngine) Close() {
	if se.js != nil {
		se.js.Close()
	}
}

// SetFlowDir sets the current flow directory for relative path resolution.
func (se *ScriptEngine) SetFlowDir(dir string) {
	se.flowDir = dir
}

// SetDevice exposes d to scripts as the device object.
func (se *ScriptEngine) SetDevice(d jsengine.Device) {
	se.js.SetDevice(d)
}

// SetVariable sets a variable in both Go map and JS engine.
func (se *ScriptEngine) SetVariable(name, value string) {
	se.variables[name] = value
	se.js.SetVariable(name, value)
}

// SetVariables sets multiple variables.
func (se *ScriptEngine) SetVariables(vars map[string]string) {
	for k, v := range vars {
		se.SetVariable(k, v)
	}
}

// ImportSystemEnv imports upper-case system environment variables.
func (se *ScriptEngine) ImportSystemEnv() {
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if ok && envVarPattern.FindString(name) == name {
			se.SetVariable(name, value)
		}
	}
}

// GetVariable returns a variable value.
func (se *ScriptEngine) GetVariable(name string) string {
	return se.variables[name]
}

// SyncOutputToVariables copies JS output back to variables.
func (se *ScriptEngine) SyncOutputToVariables() {
	for k, v := range se.js.GetOutput() {
		se.SetVariable(k, fmt.Sprintf("%v", v))
	}
}

// ExpandVariables expands ${expr} and $VAR syntax in text.
func (se *ScriptEngine) ExpandVariables(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}
	return se.expandDollarVars(se.js.ExpandVariables(text))
}

// expandDollarVars expands $VAR syntax (without braces) using stored variables.
func (se *ScriptEngine) expandDollarVars(text string) string {
	// Longest first so $APP_ID wins over $APP.
	names := make([]string, 0, len(se.variables))
	for name := range se.variables {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})

	for _, name := range names {
		text = expandDollarVar(text, name, se.variables[name])
	}
	return text
}

// expandDollarVar replaces $VAR with value, checking word boundaries.
func expandDollarVar(text, name, value string) string {
	pattern := "$" + name
	idx := 0
	for {
		pos := strings.Index(text[idx:], pattern)
		if pos == -1 {
			break
		}
		pos += idx

		endPos := pos + len(pattern)
		if endPos < len(text) && isIdentByte(text[endPos]) {
			idx = endPos
			continue
		}

		text = text[:pos] + value + text[endPos:]
		idx = pos + len(value)
	}
	return text
}

func isIdentByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// RunScript executes a JavaScript script with env visible only to it, then
// copies the output object into the variables.
func (se *ScriptEngine) RunScript(script string, env map[string]string) error {
	expanded := make(map[string]string, len(env))
	for k, v := range env {
		expanded[k] = se.ExpandVariables(v)
	}

	// Undefined env variables read as undefined instead of throwing.
	for _, name := range envVarPattern.FindAllString(script, -1) {
		if _, ok := expanded[name]; !ok {
			se.js.DefineUndefinedIfMissing(name)
		}
	}

	if err := se.js.RunScript(script, expanded); err != nil {
		return err
	}

	se.SyncOutputToVariables()
	return nil
}

// ResolvePath resolves a relative path against the flow directory.
func (se *ScriptEngine) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || se.flowDir == "" {
		return path
	}
	return filepath.Join(se.flowDir, path)
}

// ExecuteRunScript handles runScript step.
func (se *ScriptEngine) ExecuteRunScript(step *flow.RunScriptStep) outcome {
	script := step.ScriptPath()

	if strings.HasSuffix(script, ".js") {
		filePath := se.ResolvePath(script)
		content, err := os.ReadFile(filePath) //#nosec G304 -- script named by the flow
		if err != nil {
			return failure(fmt.Errorf("cannot read script file %s: %w", filePath, err))
		}
		script = string(content)
	}

	if err := se.RunScript(script, step.Env); err != nil {
		return failure(fmt.Errorf("script execution failed: %w", err))
	}
	return success("Script executed successfully")
}

// ExecuteEvalScript handles evalScript step.
func (se *ScriptEngine) ExecuteEvalScript(step *flow.EvalScriptStep) outcome {
	if err := se.RunScript(extractJS(step.Script), nil); err != nil {
		return failure(fmt.Errorf("eval failed: %w", err))
	}
	return success("Eval completed")
}

// extractJS strips a ${...} wrapper if present.
func extractJS(script string) string {
	script = strings.TrimSpace(script)
	if strings.HasPrefix(script, "${") && strings.HasSuffix(script, "}") {
		return script[2 : len(script)-1]
	}
	return script
}

// ExpandStep returns a copy of step with variables expanded in its string
// fields. The parsed flow is left untouched so it can be run again.
func (se *ScriptEngine) ExpandStep(step flow.Step) flow.Step {
	switch s := step.(type) {
	case *flow.LaunchAppStep:
		c := *s
		c.AppID = se.ExpandVariables(c.AppID)
		return &c
	case *flow.ClearStateStep:
		c := *s
		c.AppID = se.ExpandVariables(c.AppID)
		return &c
	case *flow.GrantPermissionsStep:
		c := *s
		c.AppID = se.ExpandVariables(c.AppID)
		return &c
	case *flow.OpenLinkStep:
		c := *s
		c.Link = se.ExpandVariables(c.Link)
		c.AppID = se.ExpandVariables(c.AppID)
		return &c
	case *flow.TapOnStep:
		c := *s
		c.Selector = se.expandSelector(c.Selector)
		return &c
	case *flow.TapOnImageStep:
		c := *s
		c.Image = se.ExpandVariables(c.Image)
		return &c
	case *flow.InputTextStep:
		c := *s
		c.Text = se.ExpandVariables(c.Text)
		return &c
	case *flow.AssertVisibleStep:
		c := *s
		c.Selector = se.expandSelector(c.Selector)
		return &c
	case *flow.WaitForStep:
		c := *s
		c.Conditions = make([]flow.Condition, len(s.Conditions))
		for i, cond := range s.Conditions {
			c.Conditions[i] = flow.Condition{Name: cond.Name, XPath: se.ExpandVariables(cond.XPath)}
		}
		return &c
	case *flow.ShellStep:
		c := *s
		c.Command = se.ExpandVariables(c.Command)
		return &c
	case *flow.TakeScreenshotStep:
		c := *s
		c.Path = se.ExpandVariables(c.Path)
		return &c
	case *flow.DumpHierarchyStep:
		c := *s
		c.Path = se.ExpandVariables(c.Path)
		return &c
	}
	return step
}

// expandSelector expands variables in selector fields.
func (se *ScriptEngine) expandSelector(sel flow.Selector) flow.Selector {
	sel.Text = se.ExpandVariables(sel.Text)
	sel.ResourceID = se.ExpandVariables(sel.ResourceID)
	sel.XPath = se.ExpandVariables(sel.XPath)
	return sel
}
