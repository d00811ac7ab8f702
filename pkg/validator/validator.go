// Package validator checks flow files before execution. It parses every file
// upfront and reports all problems at once instead of stopping at the first.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/adbauto/pkg/flow"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Step    int // 1-based; 0 when the error is about the whole file
	Message string
}

func (e *ValidationError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("%s: step %d: %s", e.File, e.Step, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Flows that passed the tag filters, in discovery order.
	Flows []*flow.Flow
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Files returns the source path of every accepted flow.
func (r *Result) Files() []string {
	files := make([]string, len(r.Flows))
	for i, f := range r.Flows {
		files[i] = f.SourcePath
	}
	return files
}

// Validator validates flow files.
type Validator struct {
	includeTags []string
	excludeTags []string
}

// New creates a new Validator.
func New(includeTags, excludeTags []string) *Validator {
	return &Validator{
		includeTags: includeTags,
		excludeTags: excludeTags,
	}
}

// Validate validates files and directories. Each file is checked once even
// when several paths reach it.
func (v *Validator) Validate(paths ...string) *Result {
	result := &Result{}
	seen := make(map[string]bool)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("cannot access: %v", err),
			})
			continue
		}

		files := []string{path}
		if info.IsDir() {
			files, err = collectFlowFiles(path)
			if err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    path,
					Message: fmt.Sprintf("failed to scan directory: %v", err),
				})
				continue
			}
		}

		for _, file := range files {
			clean := filepath.Clean(file)
			if seen[clean] {
				continue
			}
			seen[clean] = true
			v.validateFile(file, result)
		}
	}

	return result
}

// collectFlowFiles finds all .yaml/.yml files in a directory, skipping the
// workspace config.
func collectFlowFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if base := filepath.Base(path); base == "config.yaml" || base == "config.yml" {
			return nil
		}
		files = append(files, path)
		return nil
	})

	return files, err
}

func (v *Validator) validateFile(filePath string, result *Result) {
	f, err := flow.ParseFile(filePath)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    filePath,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}

	if !f.MatchesTags(v.includeTags, v.excludeTags) {
		return
	}

	before := len(result.Errors)
	dir := filepath.Dir(filePath)
	for i, step := range f.Steps {
		if msg := checkStep(step, f, dir); msg != "" {
			result.Errors = append(result.Errors, &ValidationError{File: filePath, Step: i + 1, Message: msg})
		}
	}
	if len(result.Errors) == before {
		result.Flows = append(result.Flows, f)
	}
}

// checkStep returns a problem with step, or "" when it looks runnable.
// Values containing ${...} are only known at run time and are not checked.
func checkStep(step flow.Step, f *flow.Flow, dir string) string {
	switch s := step.(type) {
	case *flow.LaunchAppStep:
		return needAppID(s.AppID, f, "launchApp")
	case *flow.ClearStateStep:
		return needAppID(s.AppID, f, "clearState")
	case *flow.GrantPermissionsStep:
		return needAppID(s.AppID, f, "grantPermissions")

	case *flow.TapOnImageStep:
		if s.Threshold < 0 || s.Threshold > 1 {
			return fmt.Sprintf("threshold %.2f out of range 0-1", s.Threshold)
		}
		return needFile(s.Image, dir, "image")

	case *flow.RunScriptStep:
		if path := s.ScriptPath(); strings.HasSuffix(path, ".js") {
			return needFile(path, dir, "script")
		}

	case *flow.WaitForStep:
		if s.Expect == "" {
			return ""
		}
		for _, c := range s.Conditions {
			if c.Name == s.Expect {
				return ""
			}
		}
		return fmt.Sprintf("expect %q names no condition", s.Expect)
	}
	return ""
}

func needAppID(appID string, f *flow.Flow, command string) string {
	if appID == "" && f.Config.AppID == "" {
		return command + " requires appId (on the step or in the flow header)"
	}
	return ""
}

func needFile(path, dir, what string) string {
	if path == "" || strings.Contains(path, "${") {
		return ""
	}
	resolved := resolveFilePath(dir, path)
	if _, err := os.Stat(resolved); err != nil {
		return fmt.Sprintf("%s %s not found", what, resolved)
	}
	return ""
}

// resolveFilePath resolves a file path relative to a base directory.
func resolveFilePath(baseDir, filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(baseDir, filePath)
}
