package device

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// AndroidDevice manages an Android device connection via the adb binary.
type AndroidDevice struct {
	serial  string
	adbPath string
}

// ListedDevice is one line of `adb devices`.
type ListedDevice struct {
	Serial string
	State  string
}

// New creates an AndroidDevice for the given serial using adb from PATH.
// If serial is empty, it auto-detects the connected device.
func New(serial string) (*AndroidDevice, error) {
	return NewWithPath(serial, "")
}

// NewWithPath is New with an explicit adb binary (empty = look up in PATH).
func NewWithPath(serial, adbPath string) (*AndroidDevice, error) {
	if adbPath == "" {
		var err error
		adbPath, err = findADB()
		if err != nil {
			return nil, err
		}
	}

	// Auto-detect serial if not provided
	if serial == "" {
		devices, err := listDevices(adbPath)
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		serial, err = firstOnline(devices)
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
	}

	d := &AndroidDevice{
		serial:  serial,
		adbPath: adbPath,
	}

	// Verify device is connected
	if err := d.waitForDevice(5 * time.Second); err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}

	return d, nil
}

// ListDevices returns every device adb knows about.
func ListDevices() ([]ListedDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}
	return listDevices(adbPath)
}

// FirstAvailable connects to the first device in "device" state.
func FirstAvailable() (*AndroidDevice, error) {
	return New("")
}

func listDevices(adbPath string) ([]ListedDevice, error) {
	out, err := exec.Command(adbPath, "devices").Output()
	if err != nil {
		return nil, err
	}
	return parseDevices(string(out)), nil
}

// parseDevices parses `adb devices` output.
func parseDevices(out string) []ListedDevice {
	var devices []ListedDevice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			devices = append(devices, ListedDevice{Serial: parts[0], State: parts[1]})
		}
	}
	return devices
}

func firstOnline(devices []ListedDevice) (string, error) {
	for _, d := range devices {
		if d.State == "device" {
			return d.Serial, nil
		}
	}
	return "", fmt.Errorf("no connected devices found")
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *AndroidDevice) Shell(cmd string) (string, error) {
	return d.adb("shell", cmd)
}

// ShellBytes runs cmd through exec-out so binary output is not mangled.
func (d *AndroidDevice) ShellBytes(cmd string) ([]byte, error) {
	return d.adbBytes("exec-out", cmd)
}

// adb executes an ADB command.
func (d *AndroidDevice) adb(args ...string) (string, error) {
	out, err := d.adbBytes(args...)
	return string(out), err
}

func (d *AndroidDevice) adbBytes(args ...string) ([]byte, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command(d.adbPath, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return nil, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}

	return stdout.Bytes(), nil
}

// waitForDevice waits for the device to be available.
func (d *AndroidDevice) waitForDevice(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.isConnected() {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for device %s", d.serial)
}

// isConnected checks if the device is connected.
func (d *AndroidDevice) isConnected() bool {
	out, err := d.adb("get-state")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "device"
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}
