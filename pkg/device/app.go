package device

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/adbauto/pkg/core"
)

// Info contains basic device information.
type Info struct {
	Serial     string `json:"serial"`
	Model      string `json:"model"`
	SDK        string `json:"sdk"`
	Brand      string `json:"brand"`
	Screen     string `json:"screen,omitempty"`
	IsEmulator bool   `json:"isEmulator"`
}

// keyCodes maps friendly key names to Android key codes.
var keyCodes = map[string]string{
	"home":        "KEYCODE_HOME",
	"back":        "KEYCODE_BACK",
	"menu":        "KEYCODE_MENU",
	"enter":       "KEYCODE_ENTER",
	"delete":      "KEYCODE_DEL",
	"recent":      "KEYCODE_APP_SWITCH",
	"power":       "KEYCODE_POWER",
	"volume_up":   "KEYCODE_VOLUME_UP",
	"volume_down": "KEYCODE_VOLUME_DOWN",
	"search":      "KEYCODE_SEARCH",
}

// GetInfo reads device properties through the session.
func GetInfo(s Session) (Info, error) {
	info := Info{Serial: s.Serial()}

	model, err := s.Shell("getprop ro.product.model")
	if err != nil {
		return info, err
	}
	info.Model = strings.TrimSpace(model)

	if sdk, err := s.Shell("getprop ro.build.version.sdk"); err == nil {
		info.SDK = strings.TrimSpace(sdk)
	}
	if brand, err := s.Shell("getprop ro.product.brand"); err == nil {
		info.Brand = strings.TrimSpace(brand)
	}
	if size, err := s.Shell("wm size"); err == nil {
		info.Screen = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(size), "Physical size:"))
	}

	// Check if emulator
	qemu, _ := s.Shell("getprop ro.kernel.qemu")
	info.IsEmulator = strings.TrimSpace(qemu) == "1"

	return info, nil
}

// AppStart launches the package's launcher activity.
func AppStart(s Session, pkg string) error {
	out, err := s.Shell(fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg))
	if err != nil {
		return fmt.Errorf("start %s: %w", pkg, err)
	}
	if strings.Contains(out, "No activities found") || strings.Contains(out, "monkey aborted") {
		return core.ErrAppNotInstalled.WithMessage("no launcher activity for " + pkg)
	}
	return nil
}

// AppStop force-stops the package.
func AppStop(s Session, pkg string) error {
	_, err := s.Shell("am force-stop " + pkg)
	return err
}

// AppClear wipes the package's data and cache.
func AppClear(s Session, pkg string) error {
	out, err := s.Shell("pm clear " + pkg)
	if err != nil {
		return fmt.Errorf("clear %s: %w", pkg, err)
	}
	if !strings.Contains(out, "Success") {
		return core.ErrCommandFailed.WithMessage(fmt.Sprintf("pm clear %s: %s", pkg, strings.TrimSpace(out)))
	}
	return nil
}

// AppList returns installed package names, sorted. Extra flags are passed to
// `pm list packages` (e.g. "-3" for third-party only).
func AppList(s Session, flags ...string) ([]string, error) {
	cmd := "pm list packages"
	if len(flags) > 0 {
		cmd += " " + strings.Join(flags, " ")
	}
	out, err := s.Shell(cmd)
	if err != nil {
		return nil, err
	}

	var pkgs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "package:"); ok && name != "" {
			pkgs = append(pkgs, name)
		}
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// Press sends a key event. key is a friendly name ("back", "home") or a raw
// KEYCODE_* / numeric code.
func Press(s Session, key string) error {
	code, ok := keyCodes[strings.ToLower(key)]
	if !ok {
		code = key
	}
	_, err := s.Shell("input keyevent " + code)
	return err
}
