// Package jsengine evaluates the JavaScript used by flow files: ${...}
// expansion in step fields, runScript and evalScript.
package jsengine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// Device is the slice of the automator exposed to scripts as `device`.
type Device interface {
	Serial() string
	Shell(cmd string) (string, error)
}

// Engine wraps one goja runtime per flow run.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	output    map[string]interface{}
	device    Device
	mu        sync.Mutex
}

// New creates an engine with console, json, output and device globals.
func New() *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
		output:    make(map[string]interface{}),
	}

	e.setupConsole()
	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("output", e.output)
	e.runtime.Set("device", e.deviceObject())
	return e
}

// setupConsole routes console.log/warn/error to the log file.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			log("[js] %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(logger.Info))
	console.Set("warn", makeConsoleFunc(logger.Warn))
	console.Set("error", makeConsoleFunc(logger.Error))
	e.runtime.Set("console", console)
}

// jsonFunc returns the json() helper, parsing a JSON string.
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}

		parse, _ := goja.AssertFunction(e.runtime.Get("JSON").ToObject(e.runtime).Get("parse"))
		result, err := parse(goja.Undefined(), call.Arguments[0])
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return result
	}
}

// deviceObject exposes device.serial and device.shell(cmd).
func (e *Engine) deviceObject() *goja.Object {
	obj := e.runtime.NewObject()

	obj.DefineAccessorProperty("serial", e.runtime.ToValue(func() string {
		if e.device == nil {
			return ""
		}
		return e.device.Serial()
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	obj.Set("shell", func(call goja.FunctionCall) goja.Value {
		if e.device == nil {
			panic(e.runtime.NewGoError(fmt.Errorf("no device attached")))
		}
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("device.shell requires a command"))
		}
		out, err := e.device.Shell(call.Arguments[0].String())
		if err != nil {
			panic(e.runtime.NewGoError(err))
		}
		return e.runtime.ToValue(strings.TrimRight(out, "\r\n"))
	})

	return obj
}

// SetDevice attaches the device used by device.shell.
func (e *Engine) SetDevice(d Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.device = d
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]string) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// GetOutput returns a copy of the output object (values set by scripts)
func (e *Engine) GetOutput() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	source := e.output
	if v := e.runtime.Get("output"); v != nil && !goja.IsUndefined(v) {
		if m, ok := v.Export().(map[string]interface{}); ok {
			source = m
		}
	}

	result := make(map[string]interface{}, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// RunScript runs a script with extra globals visible only to it.
func (e *Engine) RunScript(script string, env map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var restore []func()
	for k, v := range env {
		k := k
		prev := e.runtime.Get(k)
		e.runtime.Set(k, v)
		restore = append(restore, func() {
			if prev == nil {
				e.runtime.GlobalObject().Delete(k)
			} else {
				e.runtime.Set(k, prev)
			}
		})
	}
	defer func() {
		for _, r := range restore {
			r()
		}
	}()

	if _, err := e.runtime.RunString(script); err != nil {
		return fmt.Errorf("JS runtime error: %w", err)
	}
	return nil
}

// ExpandVariables replaces each ${expr} with its value. Expressions that fail
// to evaluate are left untouched, so literal "${" text survives.
func (e *Engine) ExpandVariables(text string) string {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		// Find matching }
		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}

		if depth != 0 {
			start = idx + 2
			continue
		}

		expr := result[idx+2 : end-1]
		value, err := e.EvalString(expr)
		if err != nil {
			logger.Debug("leaving ${%s} unexpanded: %v", expr, err)
			start = end
			continue
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result
}

// DefineUndefinedIfMissing declares name as undefined so scripts can test it
// without a ReferenceError.
func (e *Engine) DefineUndefinedIfMissing(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	val := e.runtime.Get(name)
	if val == nil || goja.IsUndefined(val) {
		if _, exists := e.variables[name]; !exists {
			e.runtime.Set(name, goja.Undefined())
		}
	}
}

// Close detaches the device and interrupts any running script.
func (e *Engine) Close() {
	e.runtime.Interrupt("engine closed")
	e.mu.Lock()
	e.device = nil
	e.mu.Unlock()
}
