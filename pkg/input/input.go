// Package input simulates taps and text entry through shell commands.
package input

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/devicelab-dev/adbauto/pkg/config"
	"github.com/devicelab-dev/adbauto/pkg/device"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// Keyboard selects the text entry backend.
type Keyboard int

const (
	// KeyboardADB broadcasts base64 payloads to the ADB Keyboard IME.
	KeyboardADB Keyboard = iota
	// KeyboardSystem types raw text through `input text`.
	KeyboardSystem
)

// String returns the string representation of Keyboard
func (k Keyboard) String() string {
	if k == KeyboardSystem {
		return "system"
	}
	return "adb"
}

// ParseKeyboard maps "adb"/"" and "system" to a Keyboard.
func ParseKeyboard(s string) (Keyboard, error) {
	switch s {
	case "", "adb":
		return KeyboardADB, nil
	case "system":
		return KeyboardSystem, nil
	}
	return KeyboardADB, fmt.Errorf("unknown keyboard %q", s)
}

// Options controls SendText.
type Options struct {
	Keyboard Keyboard
	Slow     bool // one command per character
}

// Simulator sends input events to a device session.
type Simulator struct {
	Session device.Session
	Config  config.Input
	Sleep   func(time.Duration) // time.Sleep unless replaced in tests
}

// New creates a simulator.
func New(s device.Session, cfg config.Input) *Simulator {
	return &Simulator{Session: s, Config: cfg, Sleep: time.Sleep}
}

// Tap taps (x, y). Coordinates are not checked against the screen size.
func (s *Simulator) Tap(x, y int) error {
	_, err := s.Session.Shell(fmt.Sprintf("input tap %d %d", x, y))
	return err
}

// TapTimes taps the same point times times.
func (s *Simulator) TapTimes(x, y, times int) error {
	for i := 0; i < times; i++ {
		if err := s.Tap(x, y); err != nil {
			return err
		}
	}
	return nil
}

// SendText switches to the chosen IME, waits for it to settle and types text.
func (s *Simulator) SendText(text string, opts Options) error {
	ime := s.Config.ADBKeyboardIME
	if opts.Keyboard == KeyboardSystem {
		ime = s.Config.SystemIME
	}
	if _, err := s.Session.Shell("ime set " + ime); err != nil {
		return fmt.Errorf("switch ime: %w", err)
	}
	s.sleep(s.Config.SwitchDelay())

	chunks := []string{text}
	if opts.Slow {
		chunks = chunks[:0]
		for _, r := range text {
			chunks = append(chunks, string(r))
		}
	}

	logger.Debug("send text: %d command(s) via %s keyboard", len(chunks), opts.Keyboard)
	for _, c := range chunks {
		if _, err := s.Session.Shell(TextCommand(c, opts.Keyboard)); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}
	return nil
}

// TextCommand returns the shell command typing text on the given keyboard.
// The system path wraps text in single quotes only; a quote inside text
// breaks the command.
func TextCommand(text string, k Keyboard) string {
	if k == KeyboardSystem {
		return fmt.Sprintf("input text '%s'", text)
	}
	return "am broadcast -a ADB_INPUT_B64 --es msg " + base64.StdEncoding.EncodeToString([]byte(text))
}

func (s *Simulator) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep == nil {
		time.Sleep(d)
		return
	}
	s.Sleep(d)
}
