// Package command issues shell commands and app lifecycle actions against a
// device session.
package command

import (
	"errors"
	"fmt"

	"github.com/devicelab-dev/adbauto/pkg/device"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// Executor formats commands and forwards them to the session. It does not
// validate command syntax; session errors come back wrapped.
type Executor struct {
	Session     device.Session
	Permissions []string
}

// New creates an executor granting permissions in GrantPermissions.
func New(s device.Session, permissions []string) *Executor {
	return &Executor{Session: s, Permissions: permissions}
}

// Shell runs cmd and returns its output.
func (e *Executor) Shell(cmd string) (string, error) {
	logger.Debug("shell: %s", cmd)
	out, err := e.Session.Shell(cmd)
	if err != nil {
		return out, fmt.Errorf("shell %q: %w", cmd, err)
	}
	return out, nil
}

// OpenLinkCommand returns the VIEW intent command for url, targeting pkg
// when it is set.
func OpenLinkCommand(url, pkg string) string {
	cmd := "am start -a android.intent.action.VIEW -d " + url
	if pkg != "" {
		cmd += " " + pkg
	}
	return cmd
}

// OpenLink opens url in pkg, or in the default handler when pkg is empty.
func (e *Executor) OpenLink(url, pkg string) error {
	_, err := e.Shell(OpenLinkCommand(url, pkg))
	return err
}

// OpenApp launches pkg's launcher activity.
func (e *Executor) OpenApp(pkg string) error {
	logger.Info("launch %s", pkg)
	return device.AppStart(e.Session, pkg)
}

// StopApp force-stops pkg.
func (e *Executor) StopApp(pkg string) error {
	return device.AppStop(e.Session, pkg)
}

// DeleteCache clears pkg's data and cache.
func (e *Executor) DeleteCache(pkg string) error {
	logger.Info("clear %s", pkg)
	return device.AppClear(e.Session, pkg)
}

// GrantPermissions grants every configured permission to pkg, one command
// per permission. A permission the app does not declare fails on the device
// without stopping the rest; all failures come back joined.
func (e *Executor) GrantPermissions(pkg string) error {
	var errs []error
	for _, perm := range e.Permissions {
		if _, err := e.Shell(fmt.Sprintf("pm grant %s %s", pkg, perm)); err != nil {
			logger.Warn("grant %s: %v", perm, err)
			errs = append(errs, err)
		}
	}
	logger.Info("granted %d of %d permissions to %s", len(e.Permissions)-len(errs), len(e.Permissions), pkg)
	return errors.Join(errs...)
}

// ListApps returns installed package names.
func (e *Executor) ListApps(flags ...string) ([]string, error) {
	return device.AppList(e.Session, flags...)
}

// Back presses the back key.
func (e *Executor) Back() error {
	return device.Press(e.Session, "back")
}

// Press sends a key event by name or code.
func (e *Executor) Press(key string) error {
	return device.Press(e.Session, key)
}

// Info reads device properties.
func (e *Executor) Info() (device.Info, error) {
	return device.GetInfo(e.Session)
}
