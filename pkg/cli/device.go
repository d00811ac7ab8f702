package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/device"
)

var infoCommand = &cli.Command{
	Name:  "info",
	Usage: "Print model, brand, SDK level and screen size of the device",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print as JSON",
		},
	},
	Action: runInfo,
}

var devicesCommand = &cli.Command{
	Name:   "devices",
	Usage:  "List devices visible to adb",
	Action: runDevices,
}

var shellCommand = &cli.Command{
	Name:      "shell",
	Usage:     "Run a shell command on the device",
	ArgsUsage: "<command...>",
	Action:    runShell,
}

var openLinkCommand = &cli.Command{
	Name:      "open-link",
	Usage:     "Open a URL with the VIEW intent",
	ArgsUsage: "<url>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "package",
			Aliases: []string{"p"},
			Usage:   "Open in this package instead of the default handler",
		},
	},
	Action: runOpenLink,
}

var launchCommand = &cli.Command{
	Name:      "launch",
	Usage:     "Launch an app by package name",
	ArgsUsage: "<package>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "clear",
			Usage: "Clear app data first",
		},
		&cli.BoolFlag{
			Name:  "grant",
			Usage: "Grant the configured permissions first",
		},
	},
	Action: runLaunch,
}

var clearCommand = &cli.Command{
	Name:      "clear",
	Usage:     "Clear app data and cache",
	ArgsUsage: "<package>",
	Action:    runClear,
}

var stopCommand = &cli.Command{
	Name:      "stop",
	Usage:     "Force-stop an app",
	ArgsUsage: "<package>",
	Action: func(c *cli.Context) error {
		pkg, err := packageArg(c)
		if err != nil {
			return err
		}
		return withAutomator(c, func(a *automator.Automator) error {
			if err := a.Commands.StopApp(pkg); err != nil {
				return err
			}
			printOK(c.App.Writer, "Stopped %s", pkg)
			return nil
		})
	},
}

var grantCommand = &cli.Command{
	Name:      "grant",
	Usage:     "Grant the configured runtime permissions to an app",
	ArgsUsage: "<package>",
	Action:    runGrant,
}

var appsCommand = &cli.Command{
	Name:  "apps",
	Usage: "List installed packages",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "third-party",
			Aliases: []string{"3"},
			Usage:   "Only third-party packages",
		},
	},
	Action: runApps,
}

var backCommand = &cli.Command{
	Name:   "back",
	Usage:  "Press the back key",
	Action: runBack,
}

func runInfo(c *cli.Context) error {
	return withAutomator(c, func(a *automator.Automator) error {
		info, err := a.Info()
		if err != nil {
			return err
		}

		w := c.App.Writer
		if c.Bool("json") {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		fmt.Fprintf(w, "%sDevice%s %s\n", color(colorBold), color(colorReset), info.Serial)
		fmt.Fprintf(w, "  Brand:    %s\n", info.Brand)
		fmt.Fprintf(w, "  Model:    %s\n", info.Model)
		fmt.Fprintf(w, "  SDK:      %s\n", info.SDK)
		if info.Screen != "" {
			fmt.Fprintf(w, "  Screen:   %s\n", info.Screen)
		}
		fmt.Fprintf(w, "  Emulator: %t\n", info.IsEmulator)
		return nil
	})
}

// listDevices is replaced in tests.
var listDevices = device.List

func runDevices(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	devices, err := listDevices(cfg.Device)
	if err != nil {
		return err
	}

	w := c.App.Writer
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found")
		return nil
	}
	for _, d := range devices {
		stateColor := colorGreen
		if d.State != "device" {
			stateColor = colorYellow
		}
		fmt.Fprintf(w, "%s\t%s%s%s\n", d.Serial, color(stateColor), d.State, color(colorReset))
	}
	return nil
}

func runShell(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("shell command is required")
	}
	cmd := strings.Join(c.Args().Slice(), " ")
	return withAutomator(c, func(a *automator.Automator) error {
		out, err := a.Shell(cmd)
		if err != nil {
			return err
		}
		fmt.Fprint(c.App.Writer, out)
		if out != "" && !strings.HasSuffix(out, "\n") {
			fmt.Fprintln(c.App.Writer)
		}
		return nil
	})
}

func runOpenLink(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one url is required")
	}
	url := c.Args().First()
	return withAutomator(c, func(a *automator.Automator) error {
		if err := a.OpenLink(url, c.String("package")); err != nil {
			return err
		}
		printOK(c.App.Writer, "Opened %s", url)
		return nil
	})
}

func runLaunch(c *cli.Context) error {
	pkg, err := packageArg(c)
	if err != nil {
		return err
	}
	return withAutomator(c, func(a *automator.Automator) error {
		if c.Bool("clear") {
			if err := a.DeleteCache(pkg); err != nil {
				return err
			}
		}
		if c.Bool("grant") {
			if err := a.GrantPermissions(pkg); err != nil {
				return err
			}
		}
		if err := a.OpenApp(pkg); err != nil {
			return err
		}
		printOK(c.App.Writer, "Launched %s", pkg)
		return nil
	})
}

func runClear(c *cli.Context) error {
	pkg, err := packageArg(c)
	if err != nil {
		return err
	}
	return withAutomator(c, func(a *automator.Automator) error {
		if err := a.DeleteCache(pkg); err != nil {
			return err
		}
		printOK(c.App.Writer, "Cleared %s", pkg)
		return nil
	})
}

func runGrant(c *cli.Context) error {
	pkg, err := packageArg(c)
	if err != nil {
		return err
	}
	return withAutomator(c, func(a *automator.Automator) error {
		if err := a.GrantPermissions(pkg); err != nil {
			return err
		}
		printOK(c.App.Writer, "Granted %d permissions to %s", len(a.Config.Permissions), pkg)
		return nil
	})
}

func runApps(c *cli.Context) error {
	var flags []string
	if c.Bool("third-party") {
		flags = append(flags, "-3")
	}
	return withAutomator(c, func(a *automator.Automator) error {
		apps, err := a.ListApps(flags...)
		if err != nil {
			return err
		}
		for _, app := range apps {
			fmt.Fprintln(c.App.Writer, app)
		}
		return nil
	})
}

func runBack(c *cli.Context) error {
	return withAutomator(c, func(a *automator.Automator) error {
		return a.Back()
	})
}

func packageArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("exactly one package name is required")
	}
	return c.Args().First(), nil
}
