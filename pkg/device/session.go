// Package device provides Android device sessions over ADB.
package device

import (
	"fmt"

	"github.com/devicelab-dev/adbauto/pkg/config"
)

// Session is a live handle to one device. Every higher-level operation in
// adbauto is expressed as shell commands issued through it.
type Session interface {
	// Serial returns the device serial number.
	Serial() string

	// Shell runs cmd in the device shell and returns its text output.
	Shell(cmd string) (string, error)

	// ShellBytes runs cmd and returns raw output (screenshots, dumps).
	ShellBytes(cmd string) ([]byte, error)
}

// Connect opens a session using the configured transport.
func Connect(cfg config.Device) (Session, error) {
	switch cfg.Transport {
	case "", config.TransportExec:
		return NewWithPath(cfg.Serial, cfg.ADBPath)
	case config.TransportSocket:
		return NewSocket(cfg.Host, cfg.Port, cfg.Serial)
	default:
		return nil, fmt.Errorf("unknown transport %q (want %s or %s)", cfg.Transport, config.TransportExec, config.TransportSocket)
	}
}

// List returns the devices visible through the configured transport.
func List(cfg config.Device) ([]ListedDevice, error) {
	switch cfg.Transport {
	case "", config.TransportExec:
		if cfg.ADBPath != "" {
			return listDevices(cfg.ADBPath)
		}
		return ListDevices()
	case config.TransportSocket:
		return listSocketDevices(cfg.Host, cfg.Port)
	default:
		return nil, fmt.Errorf("unknown transport %q (want %s or %s)", cfg.Transport, config.TransportExec, config.TransportSocket)
	}
}
