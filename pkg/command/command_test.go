package command

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/adbauto/pkg/config"
	"github.com/devicelab-dev/adbauto/pkg/device/mock"
)

func TestShell_ForwardsOutput(t *testing.T) {
	s := mock.New()
	s.Responses["echo"] = "hi\n"
	e := New(s, nil)

	out, err := e.Shell("echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
	assert.Equal(t, []string{"echo hi"}, s.Commands())
}

func TestShell_PropagatesError(t *testing.T) {
	s := mock.New()
	s.Err = errors.New("device offline")
	e := New(s, nil)

	_, err := e.Shell("echo hi")
	assert.ErrorIs(t, err, s.Err)
}

func TestOpenLink(t *testing.T) {
	s := mock.New()
	e := New(s, nil)

	require.NoError(t, e.OpenLink("https://example.com", ""))
	require.NoError(t, e.OpenLink("myapp://home", "com.example.app"))

	assert.Equal(t, []string{
		"am start -a android.intent.action.VIEW -d https://example.com",
		"am start -a android.intent.action.VIEW -d myapp://home com.example.app",
	}, s.Commands())
}

func TestGrantPermissions_Default(t *testing.T) {
	s := mock.New()
	e := New(s, config.Default().Permissions)

	require.NoError(t, e.GrantPermissions("com.example.app"))

	cmds := s.Commands()
	require.Len(t, cmds, 12)
	assert.Equal(t, "pm grant com.example.app android.permission.WRITE_EXTERNAL_STORAGE", cmds[0])
	assert.Equal(t, "pm grant com.example.app android.permission.RECORD_AUDIO", cmds[11])
}

func TestGrantPermissions_Configured(t *testing.T) {
	s := mock.New()
	e := New(s, []string{"android.permission.POST_NOTIFICATIONS"})

	require.NoError(t, e.GrantPermissions("com.example.app"))
	assert.Equal(t, []string{"pm grant com.example.app android.permission.POST_NOTIFICATIONS"}, s.Commands())
}

func TestGrantPermissions_Offline(t *testing.T) {
	s := mock.New()
	s.Err = errors.New("offline")
	e := New(s, config.DefaultPermissions)

	err := e.GrantPermissions("com.example.app")
	assert.ErrorIs(t, err, s.Err)
	assert.Len(t, s.Commands(), len(config.DefaultPermissions))
}

func TestGrantPermissions_UndeclaredPermissionDoesNotStopRest(t *testing.T) {
	undeclared := errors.New("exit status 255")
	s := mock.New()
	s.Handler = func(cmd string) ([]byte, error) {
		if strings.HasSuffix(cmd, "android.permission.CALL_PHONE") {
			return nil, undeclared
		}
		return nil, nil
	}
	e := New(s, config.DefaultPermissions)

	err := e.GrantPermissions("com.example.app")
	require.Error(t, err)
	assert.ErrorIs(t, err, undeclared)
	assert.Contains(t, err.Error(), "CALL_PHONE")

	cmds := s.Commands()
	require.Len(t, cmds, 12)
	assert.Equal(t, "pm grant com.example.app android.permission.RECORD_AUDIO", cmds[11])
}

func TestLifecycle(t *testing.T) {
	s := mock.New()
	s.Responses["pm clear"] = "Success"
	s.Responses["pm list packages"] = "package:b\npackage:a\n"
	e := New(s, nil)

	require.NoError(t, e.OpenApp("com.example"))
	require.NoError(t, e.StopApp("com.example"))
	require.NoError(t, e.DeleteCache("com.example"))
	require.NoError(t, e.Back())

	apps, err := e.ListApps()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, apps)

	assert.Equal(t, []string{
		"monkey -p com.example -c android.intent.category.LAUNCHER 1",
		"am force-stop com.example",
		"pm clear com.example",
		"input keyevent KEYCODE_BACK",
		"pm list packages",
	}, s.Commands())
}

func TestInfo(t *testing.T) {
	s := mock.New()
	s.Responses["getprop ro.product.model"] = "Pixel"
	e := New(s, nil)

	info, err := e.Info()
	require.NoError(t, err)
	assert.Equal(t, "Pixel", info.Model)
	assert.Equal(t, "mock-device", info.Serial)
}
