package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/checker"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/hierarchy"
	"github.com/devicelab-dev/adbauto/pkg/input"
	"github.com/devicelab-dev/adbauto/pkg/vision"
)

var thresholdFlag = &cli.Float64Flag{
	Name:  "threshold",
	Usage: "Minimum match score (0-1)",
	Value: vision.DefaultThreshold,
}

var screenshotCommand = &cli.Command{
	Name:  "screenshot",
	Usage: "Capture the screen to a PNG file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write here instead of the configured resources path",
		},
	},
	Action: runScreenshot,
}

var locateCommand = &cli.Command{
	Name:      "locate",
	Usage:     "Print the center of a reference image on screen",
	ArgsUsage: "<image.png>",
	Flags: []cli.Flag{
		thresholdFlag,
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Capture attempts before giving up (0 = capture once)",
		},
	},
	Action: runLocate,
}

var tapCommand = &cli.Command{
	Name:      "tap",
	Usage:     "Tap a screen coordinate",
	ArgsUsage: "<x> <y>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "times",
			Usage: "Number of taps",
			Value: 1,
		},
	},
	Action: runTap,
}

var tapImageCommand = &cli.Command{
	Name:      "tap-image",
	Usage:     "Tap the center of a reference image",
	ArgsUsage: "<image.png>",
	Flags: []cli.Flag{
		thresholdFlag,
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Capture attempts before giving up (0 = capture once)",
		},
	},
	Action: runTapImage,
}

var tapTextCommand = &cli.Command{
	Name:      "tap-text",
	Usage:     "Wait for an element with exactly this text and tap it",
	ArgsUsage: "<text>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Dump attempts (0 = configured click budget)",
		},
	},
	Action: runTapText,
}

var tapXPathCommand = &cli.Command{
	Name:      "tap-xpath",
	Usage:     "Tap an element matched by XPath",
	ArgsUsage: "<xpath>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "index",
			Usage: "Which match to tap",
		},
		&cli.BoolFlag{
			Name:  "wait",
			Usage: "Poll until the element appears",
		},
		&cli.IntFlag{
			Name:  "times",
			Usage: "Tap the element this many times (implies --wait)",
			Value: 1,
		},
	},
	Action: runTapXPath,
}

var tapIDCommand = &cli.Command{
	Name:      "tap-id",
	Usage:     "Wait for an element by resource id and tap it",
	ArgsUsage: "<resource-id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "text",
			Usage: "Also require this text",
		},
	},
	Action: runTapID,
}

var dumpCommand = &cli.Command{
	Name:  "dump",
	Usage: "Dump the UI hierarchy to an XML file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write here instead of the configured resources path",
		},
		&cli.BoolFlag{
			Name:  "compressed",
			Usage: "Drop layout-only nodes",
		},
		&cli.IntFlag{
			Name:  "max-depth",
			Usage: "Prune nodes deeper than this (0 = unlimited)",
		},
		&cli.BoolFlag{
			Name:  "print",
			Usage: "Also print the XML",
		},
	},
	Action: runDump,
}

var findCommand = &cli.Command{
	Name:      "find",
	Usage:     "Print the top-left coordinates of XPath matches",
	ArgsUsage: "<xpath>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Search an existing dump instead of dumping the device",
		},
		&cli.IntFlag{
			Name:  "index",
			Usage: "Match described in detail (with --file)",
		},
	},
	Action: runFind,
}

var checkTextCommand = &cli.Command{
	Name:      "check-text",
	Usage:     "Wait for text to appear on screen",
	ArgsUsage: "<text>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "Search the raw dump instead of element text",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Dump attempts (0 = configured text budget)",
		},
	},
	Action: runCheckText,
}

var typeCommand = &cli.Command{
	Name:      "type",
	Usage:     "Type text into the focused field",
	ArgsUsage: "<text>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "keyboard",
			Aliases: []string{"k"},
			Usage:   "Input backend: adb (ADB Keyboard IME) or system",
			Value:   "adb",
		},
		&cli.BoolFlag{
			Name:  "fast",
			Usage: "Send the whole string at once instead of per character",
		},
	},
	Action: runType,
}

var waitForCommand = &cli.Command{
	Name:      "wait-for",
	Usage:     "Print the first of several named XPath conditions to match",
	ArgsUsage: "<name=xpath>...",
	Description: `Conditions are checked in order on every dump. The name of the first
condition with a match is printed; notElement is printed when none matched.

Example:
  adbauto wait-for home='//*[@text="Home"]' login='//*[@resource-id="id/login"]'`,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "repeat",
			Usage: "Dump attempts",
			Value: checker.DefaultRepeat,
		},
		&cli.IntFlag{
			Name:  "index",
			Usage: "Which match counts",
		},
		&cli.BoolFlag{
			Name:  "click",
			Usage: "Tap the matched element",
		},
	},
	Action: runWaitFor,
}

func runScreenshot(c *cli.Context) error {
	return withAutomator(c, func(a *automator.Automator) error {
		var (
			path = c.String("output")
			err  error
		)
		if path != "" {
			_, err = a.Vision.CaptureTo(path)
		} else {
			path, _, err = a.ScreenCapture()
		}
		if err != nil {
			return err
		}
		printOK(c.App.Writer, "Saved screenshot to %s", path)
		return nil
	})
}

func runLocate(c *cli.Context) error {
	ref, err := singleArg(c, "image path")
	if err != nil {
		return err
	}
	return withAutomator(c, func(a *automator.Automator) error {
		var (
			p   core.Point
			res core.LookupResult
		)
		if retries := c.Int("retries"); retries > 0 {
			p, res = a.Vision.Wait(ref, c.Float64("threshold"), retries)
		} else {
			p, res = a.ImageCoordinates(ref, c.Float64("threshold"))
		}
		if !res.Found() {
			printMiss(c.App.Writer, "%s not on screen", ref)
			return res.Error()
		}
		fmt.Fprintf(c.App.Writer, "%d %d\n", p.X, p.Y)
		return nil
	})
}

func runTap(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("x and y are required")
	}
	x, err := strconv.Atoi(c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("invalid x: %w", err)
	}
	y, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("invalid y: %w", err)
	}
	return withAutomator(c, func(a *automator.Automator) error {
		if times := c.Int("times"); times > 1 {
			return a.Input.TapTimes(x, y, times)
		}
		return a.Click(x, y)
	})
}

func runTapImage(c *cli.Context) error {
	ref, err := singleArg(c, "image path")
	if err != nil {
		return err
	}
	return withAutomator(c, func(a *automator.Automator) error {
		threshold := c.Float64("threshold")
		retries := c.Int("retries")
		if retries <= 0 {
			if tapped, res := a.ClickImage(ref, threshold); !tapped {
				printMiss(c.App.Writer, "%s not on screen", ref)
				return res.Error()
			}
			printOK(c.App.Writer, "Tapped %s", ref)
			return nil
		}

		p, res := a.Vision.Wait(ref, threshold, retries)
		if !res.Found() {
			printMiss(c.App.Writer, "%s not on screen", ref)
			return res.Error()
		}
		if err := a.Click(p.X, p.Y); err != nil {
			return err
		}
		printOK(c.App.Writer, "Tapped %s at %s", ref, p)
		return nil
	})
}

func runTapText(c *cli.Context) error {
	text, err := singleArg(c, "text")
	if err != nil {
		return err
	}
	return withAutomator(c, func(a *automator.Automator) error {
		var res core.LookupResult
		if retries := c.Int("retries"); retries > 0 {
			_, res = a.Tap(flow.Text(text), retries)
		} else {
			_, res = a.ClickText(text)
		}
		if !res.Found() {
			printMiss(c.App.Writer, "%q not found", text)
			return res.Error()
		}
		printOK(c.App.Writer, "Tapped %q", text)
		return nil
	})
}

func runTapXPath(c *cli.Context) error {
	expr, err := singleArg(c, "xpath")
	if err != nil {
		return err
	}
	index := c.Int("index")
	return withAutomator(c, func(a *automator.Automator) error {
		var (
			tapped bool
			res    core.LookupResult
		)
		switch {
		case c.Int("times") > 1:
			tapped, res = a.Scrollable(expr, c.Int("times"), index)
		case c.Bool("wait"):
			tapped, res = a.ClickXMLCoordinates(expr, index)
		case index == 0:
			tapped, res = a.ClickXPath(expr)
		default:
			tapped, res = a.UI.ClickXPath(expr, index, 1, a.Input)
		}
		if !tapped {
			printMiss(c.App.Writer, "%s not found", expr)
			return res.Error()
		}
		printOK(c.App.Writer, "Tapped %s", expr)
		return nil
	})
}

func runTapID(c *cli.Context) error {
	id, err := singleArg(c, "resource id")
	if err != nil {
		return err
	}
	text := c.String("text")
	return withAutomator(c, func(a *automator.Automator) error {
		var tapped bool
		if text != "" {
			tapped = a.ClickResourceText(id, text)
		} else {
			tapped = a.ClickResource(id)
		}
		if !tapped {
			printMiss(c.App.Writer, "%s not tapped", id)
			return fmt.Errorf("resource %s not tapped (details in the log)", id)
		}
		printOK(c.App.Writer, "Tapped %s", id)
		return nil
	})
}

func runDump(c *cli.Context) error {
	return withAutomator(c, func(a *automator.Automator) error {
		var (
			doc *hierarchy.Document
			err error
		)
		opts := hierarchy.DumpOptions{
			Compressed: c.Bool("compressed"),
			MaxDepth:   c.Int("max-depth"),
			Path:       c.String("output"),
		}
		if opts == (hierarchy.DumpOptions{}) {
			_, doc, err = a.DumpXML()
		} else {
			doc, err = a.UI.Dumper.Dump(opts)
		}
		if err != nil {
			return err
		}

		if c.Bool("print") {
			fmt.Fprintln(c.App.Writer, strings.TrimSpace(string(doc.Raw)))
			return nil
		}
		printOK(c.App.Writer, "Saved hierarchy to %s", doc.Path)
		return nil
	})
}

func runFind(c *cli.Context) error {
	expr, err := singleArg(c, "xpath")
	if err != nil {
		return err
	}

	// Searching a saved dump needs no device.
	if file := c.String("file"); file != "" {
		doc, err := hierarchy.Load(file)
		if err != nil {
			return err
		}
		index := c.Int("index")
		points, match, res := doc.Find(expr, index)
		if match == nil {
			printMiss(c.App.Writer, "no match for %s in %s", expr, file)
			if err := res.Error(); err != nil {
				return err
			}
			return fmt.Errorf("no match for %s", expr)
		}
		printPoints(c, points)
		el := match.Element()
		fmt.Fprintf(c.App.Writer, "%s[%d]%s %s text=%q id=%q\n",
			color(colorGray), index, color(colorReset), el.Class, el.Text, el.ResourceID)
		return nil
	}

	return withAutomator(c, func(a *automator.Automator) error {
		points, res := a.XMLCoordinates(expr)
		if len(points) == 0 {
			printMiss(c.App.Writer, "no match for %s", expr)
			if err := res.Error(); err != nil {
				return err
			}
			return fmt.Errorf("no match for %s", expr)
		}
		printPoints(c, points)
		return nil
	})
}

func printPoints(c *cli.Context, points []core.Point) {
	for _, p := range points {
		fmt.Fprintf(c.App.Writer, "%d %d\n", p.X, p.Y)
	}
}

func runCheckText(c *cli.Context) error {
	text, err := singleArg(c, "text")
	if err != nil {
		return err
	}
	return withAutomator(c, func(a *automator.Automator) error {
		var (
			found bool
			res   core.LookupResult
		)
		if c.Bool("raw") {
			found, res = a.CheckTextXML(text, c.Int("retries"))
		} else {
			found, res = a.CheckText(text, c.Int("retries"))
		}
		if !found {
			printMiss(c.App.Writer, "%q not on screen", text)
			return res.Error()
		}
		printOK(c.App.Writer, "%q on screen", text)
		return nil
	})
}

func runType(c *cli.Context) error {
	text, err := singleArg(c, "text")
	if err != nil {
		return err
	}
	kb, err := input.ParseKeyboard(c.String("keyboard"))
	if err != nil {
		return err
	}
	return withAutomator(c, func(a *automator.Automator) error {
		return a.SendText(text, input.Options{Keyboard: kb, Slow: !c.Bool("fast")})
	})
}

func runWaitFor(c *cli.Context) error {
	conds, err := parseConditions(c.Args().Slice())
	if err != nil {
		return err
	}
	opts := checker.Options{Repeat: c.Int("repeat"), Index: c.Int("index")}

	return withAutomator(c, func(a *automator.Automator) error {
		name, res := a.Checker().FirstMatching(conds, opts)
		fmt.Fprintln(c.App.Writer, name)
		if name == checker.NotElement {
			return res.Error()
		}
		if !c.Bool("click") {
			return nil
		}

		for _, cond := range conds {
			if cond.Name != name {
				continue
			}
			tapOpts := checker.DefaultOptions()
			tapOpts.Repeat = 1
			tapOpts.Index = opts.Index
			if tapped, res := a.Checker().CheckElement(cond.XPath, tapOpts); !tapped {
				return res.Error()
			}
		}
		return nil
	})
}

// parseConditions turns name=xpath arguments into ordered conditions.
func parseConditions(args []string) ([]flow.Condition, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one name=xpath condition is required")
	}
	conds := make([]flow.Condition, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		name, expr, found := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" || strings.TrimSpace(expr) == "" {
			return nil, fmt.Errorf("invalid condition %q (want name=xpath)", arg)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate condition %q", name)
		}
		seen[name] = true
		conds = append(conds, flow.Condition{Name: name, XPath: expr})
	}
	return conds, nil
}

func singleArg(c *cli.Context, what string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("exactly one %s is required", what)
	}
	return c.Args().First(), nil
}
