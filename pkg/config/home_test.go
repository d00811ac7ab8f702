package config

import (
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("ADBAUTO_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_FallbackNotEmpty(t *testing.T) {
	ResetHome()
	t.Setenv("ADBAUTO_HOME", "")

	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("ADBAUTO_HOME", "/first")

	first := GetHome()

	// cached: a changed env var is ignored until ResetHome
	t.Setenv("ADBAUTO_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestHomeRelativePaths(t *testing.T) {
	ResetHome()
	t.Setenv("ADBAUTO_HOME", "/test/home")

	if got, want := GetLogPath(), filepath.Join("/test/home", "adbauto.log"); got != want {
		t.Errorf("GetLogPath() = %q, want %q", got, want)
	}
	if got, want := GetReportsDir(), filepath.Join("/test/home", "reports"); got != want {
		t.Errorf("GetReportsDir() = %q, want %q", got, want)
	}
}
