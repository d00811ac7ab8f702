package device

import (
	"fmt"

	"github.com/electricbubble/gadb"
)

// SocketDevice talks to the adb server over its TCP protocol instead of
// spawning the adb binary for every command.
type SocketDevice struct {
	client gadb.Client
	device gadb.Device
}

// NewSocket connects to the adb server at host:port and selects the device
// with the given serial, or the first listed device when serial is empty.
func NewSocket(host string, port int, serial string) (*SocketDevice, error) {
	client, err := gadb.NewClientWith(host, port)
	if err != nil {
		return nil, fmt.Errorf("adb server %s:%d: %w", host, port, err)
	}

	devices, err := client.DeviceList()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no connected devices found")
	}

	if serial == "" {
		return &SocketDevice{client: client, device: devices[0]}, nil
	}
	for _, d := range devices {
		if d.Serial() == serial {
			return &SocketDevice{client: client, device: d}, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", serial)
}

func listSocketDevices(host string, port int) ([]ListedDevice, error) {
	client, err := gadb.NewClientWith(host, port)
	if err != nil {
		return nil, fmt.Errorf("adb server %s:%d: %w", host, port, err)
	}
	devices, err := client.DeviceList()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	listed := make([]ListedDevice, 0, len(devices))
	for _, d := range devices {
		state, err := d.State()
		if err != nil {
			return nil, fmt.Errorf("state of %s: %w", d.Serial(), err)
		}
		listed = append(listed, ListedDevice{Serial: d.Serial(), State: fmt.Sprint(state)})
	}
	return listed, nil
}

// Serial returns the device serial number.
func (d *SocketDevice) Serial() string {
	return d.device.Serial()
}

// Shell executes a shell command on the device.
func (d *SocketDevice) Shell(cmd string) (string, error) {
	out, err := d.device.RunShellCommand(cmd)
	if err != nil {
		return "", fmt.Errorf("shell %q: %w", cmd, err)
	}
	return out, nil
}

// ShellBytes executes a shell command and returns raw output.
func (d *SocketDevice) ShellBytes(cmd string) ([]byte, error) {
	out, err := d.device.RunShellCommandWithBytes(cmd)
	if err != nil {
		return nil, fmt.Errorf("shell %q: %w", cmd, err)
	}
	return out, nil
}
