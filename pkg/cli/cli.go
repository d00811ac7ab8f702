// Package cli provides the command-line interface for adbauto.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/config"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"s", "serial"},
		Usage:   "Device serial (run accepts a comma-separated list)",
		EnvVars: []string{"ADBAUTO_DEVICE", "ANDROID_SERIAL"},
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config.yaml (default: <home>/config.yaml)",
		EnvVars: []string{"ADBAUTO_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "transport",
		Usage:   "How to reach adb: exec (adb binary) or socket (adb server)",
		EnvVars: []string{"ADBAUTO_TRANSPORT"},
	},
	&cli.StringFlag{
		Name:  "adb-path",
		Usage: "adb binary for the exec transport",
	},
	&cli.StringFlag{
		Name:  "host",
		Usage: "adb server host for the socket transport",
	},
	&cli.IntFlag{
		Name:  "port",
		Usage: "adb server port for the socket transport",
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Write the debug log here",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable debug logging",
		EnvVars: []string{"ADBAUTO_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Commands lists every subcommand.
var Commands = []*cli.Command{
	infoCommand,
	devicesCommand,
	shellCommand,
	openLinkCommand,
	launchCommand,
	clearCommand,
	stopCommand,
	grantCommand,
	appsCommand,
	backCommand,
	screenshotCommand,
	locateCommand,
	tapCommand,
	tapImageCommand,
	tapTextCommand,
	tapXPathCommand,
	tapIDCommand,
	dumpCommand,
	findCommand,
	checkTextCommand,
	typeCommand,
	waitForCommand,
	runCommand,
	serveCommand,
}

// connect opens the automator for a command. Tests replace it.
var connect = automator.New

func newApp() *cli.App {
	return &cli.App{
		Name:    "adbauto",
		Usage:   "Drive Android devices over adb",
		Version: Version,
		Description: `adbauto issues adb shell commands to find UI elements by text, resource id,
XPath or image, tap them, type text and run YAML flows.

Examples:
  adbauto devices
  adbauto -s emulator-5554 tap-text "Settings"
  adbauto wait-for home='//*[@text="Home"]' login='//*[@text="Sign in"]'
  adbauto run flows/ -e USER=test`,
		Flags:    GlobalFlags,
		Commands: Commands,
		Before:   before,
		After:    after,
	}
}

// Execute runs the CLI.
func Execute() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	if c.Bool("no-ansi") {
		colorsEnabled = false
	}

	logPath := c.String("log-file")
	if logPath == "" {
		logPath = config.GetLogPath()
	}
	if err := logger.Init(logPath); err != nil {
		// The log is a debugging aid; commands still work without it.
		fmt.Fprintf(c.App.ErrWriter, "Warning: %v\n", err)
	}
	logger.SetVerbose(c.Bool("verbose"))
	logger.Debug("adbauto %s: %s", Version, strings.Join(os.Args[1:], " "))
	return nil
}

func after(c *cli.Context) error {
	logger.Close()
	return nil
}

// loadConfig reads the workspace config and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(config.GetHome())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if serial := parseDevices(c.String("device"))[0]; serial != "" {
		cfg.Device.Serial = serial
	}
	if c.IsSet("transport") {
		cfg.Device.Transport = c.String("transport")
	}
	if c.IsSet("adb-path") {
		cfg.Device.ADBPath = c.String("adb-path")
	}
	if c.IsSet("host") {
		cfg.Device.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Device.Port = c.Int("port")
	}
	return cfg, nil
}

// withAutomator connects to the selected device and hands it to fn.
func withAutomator(c *cli.Context, fn func(a *automator.Automator) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := connect(cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	logger.Info("Connected to %s", a.Serial())
	return fn(a)
}

// parseDevices splits the --device flag value. It always returns at least
// one element; an empty serial means the first online device.
func parseDevices(deviceFlag string) []string {
	var devices []string
	for _, d := range strings.Split(deviceFlag, ",") {
		if d = strings.TrimSpace(d); d != "" {
			devices = append(devices, d)
		}
	}
	if len(devices) == 0 {
		return []string{""}
	}
	return devices
}

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

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printOK(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s✓%s %s\n", color(colorGreen), color(colorReset), fmt.Sprintf(format, args...))
}

func printMiss(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s✗%s %s\n", color(colorRed), color(colorReset), fmt.Sprintf(format, args...))
}
