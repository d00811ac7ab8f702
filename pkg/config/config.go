// Package config handles configuration for adbauto.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted by Device.Transport.
const (
	TransportExec   = "exec"   // shell out to the adb binary
	TransportSocket = "socket" // talk to the adb server directly
)

// Default output locations, relative to the working directory.
const (
	DefaultResourcesDir   = "resources"
	DefaultScreenshotName = "screenshot_window_0.png"
	DefaultDumpName       = "window_dump_0.xml"
)

// Default input method components.
const (
	DefaultADBKeyboardIME = "com.android.adbkeyboard/.AdbIME"
	DefaultSystemIME      = "com.android.inputmethod.pinyin/.InputService"
)

// DefaultPermissions is the runtime permission set granted by grantPermissions
// when the config does not provide its own list.
var DefaultPermissions = []string{
	"android.permission.WRITE_EXTERNAL_STORAGE",
	"android.permission.READ_EXTERNAL_STORAGE",
	"android.permission.READ_PHONE_STATE",
	"android.permission.CALL_PHONE",
	"android.permission.ACCESS_FINE_LOCATION",
	"android.permission.ACCESS_COARSE_LOCATION",
	"android.permission.CAMERA",
	"android.permission.READ_CONTACTS",
	"android.permission.WRITE_CONTACTS",
	"android.permission.READ_CALENDAR",
	"android.permission.WRITE_CALENDAR",
	"android.permission.RECORD_AUDIO",
}

// Config represents the workspace configuration (config.yaml).
type Config struct {
	Device    Device    `yaml:"device"`
	Resources Resources `yaml:"resources"`
	Polling   Polling   `yaml:"polling"`
	Input     Input     `yaml:"input"`

	// Permissions granted by grantPermissions. Empty means DefaultPermissions.
	Permissions []string `yaml:"permissions"`

	// Env variables exposed to flow scripts.
	Env map[string]string `yaml:"env"`
}

// Device selects the target device and how to reach it.
type Device struct {
	Serial    string `yaml:"serial"`    // empty = first connected device
	Transport string `yaml:"transport"` // exec (default) or socket
	ADBPath   string `yaml:"adbPath"`   // exec transport; empty = look up in PATH
	Host      string `yaml:"host"`      // socket transport adb server host
	Port      int    `yaml:"port"`      // socket transport adb server port
}

// Resources controls where screenshots and hierarchy dumps are written.
type Resources struct {
	Dir        string `yaml:"dir"`
	Screenshot string `yaml:"screenshot"`
	Dump       string `yaml:"dump"`
}

// Polling controls the fixed-interval retry loops.
type Polling struct {
	IntervalMs   int `yaml:"intervalMs"`
	TextRetries  int `yaml:"textRetries"`  // checkText / checkTextXML
	ClickRetries int `yaml:"clickRetries"` // clickXPath / scrollable
	CheckRetries int `yaml:"checkRetries"` // element-state checker
}

// Input configures the text entry backends.
type Input struct {
	ADBKeyboardIME string `yaml:"adbKeyboardIme"`
	SystemIME      string `yaml:"systemIme"`
	SwitchDelayMs  int    `yaml:"switchDelayMs"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Device.Transport == "" {
		c.Device.Transport = TransportExec
	}
	if c.Device.Host == "" {
		c.Device.Host = "127.0.0.1"
	}
	if c.Device.Port == 0 {
		c.Device.Port = 5037
	}

	if c.Resources.Dir == "" {
		c.Resources.Dir = DefaultResourcesDir
	}
	if c.Resources.Screenshot == "" {
		c.Resources.Screenshot = DefaultScreenshotName
	}
	if c.Resources.Dump == "" {
		c.Resources.Dump = DefaultDumpName
	}

	if c.Polling.IntervalMs == 0 {
		c.Polling.IntervalMs = 500
	}
	if c.Polling.TextRetries == 0 {
		c.Polling.TextRetries = 30
	}
	if c.Polling.ClickRetries == 0 {
		c.Polling.ClickRetries = 15
	}
	if c.Polling.CheckRetries == 0 {
		c.Polling.CheckRetries = 20
	}

	if c.Input.ADBKeyboardIME == "" {
		c.Input.ADBKeyboardIME = DefaultADBKeyboardIME
	}
	if c.Input.SystemIME == "" {
		c.Input.SystemIME = DefaultSystemIME
	}
	if c.Input.SwitchDelayMs == 0 {
		c.Input.SwitchDelayMs = 1000
	}

	if len(c.Permissions) == 0 {
		c.Permissions = append([]string(nil), DefaultPermissions...)
	}
}

// ScreenshotPath returns the file screenshots are written to.
func (r Resources) ScreenshotPath() string {
	return filepath.Join(r.Dir, r.Screenshot)
}

// DumpPath returns the file hierarchy dumps are written to.
func (r Resources) DumpPath() string {
	return filepath.Join(r.Dir, r.Dump)
}

// Interval returns the polling interval as a duration.
func (p Polling) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// SwitchDelay returns the pause after switching input methods.
func (i Input) SwitchDelay() time.Duration {
	return time.Duration(i.SwitchDelayMs) * time.Millisecond
}

// Load loads configuration from a file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	return Default(), nil
}
