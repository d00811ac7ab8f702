package config

import (
	"os"
	"path/filepath"
	"sync"
)

// EnvHome overrides the home directory.
const EnvHome = "ADBAUTO_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the adbauto home directory, which holds config.yaml, the
// log file and reports. The first of these wins:
//   - $ADBAUTO_HOME
//   - <home> when the binary lives in <home>/bin
//   - the working directory
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetLogPath returns <home>/adbauto.log.
func GetLogPath() string {
	return filepath.Join(GetHome(), "adbauto.log")
}

// GetReportsDir returns <home>/reports.
func GetReportsDir() string {
	return filepath.Join(GetHome(), "reports")
}

func resolveHome() string {
	if env := os.Getenv(EnvHome); env != "" {
		return env
	}
	if dir, ok := binaryHome(); ok {
		return dir
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func binaryHome() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	bin := filepath.Dir(exe)
	if filepath.Base(bin) != "bin" {
		return "", false
	}
	return filepath.Dir(bin), true
}

// ResetHome drops the cached home so the next GetHome resolves again.
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
