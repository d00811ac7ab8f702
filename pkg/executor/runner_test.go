package executor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/adbauto/pkg/automator"
	"github.com/devicelab-dev/adbauto/pkg/config"
	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/device/mock"
	"github.com/devicelab-dev/adbauto/pkg/flow"
)

const settingsScreen = `<?xml version="1.0"?>
<hierarchy rotation="0">
  <node text="" class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
    <node text="Settings" resource-id="com.example:id/title" class="android.widget.TextView" bounds="[40,100][400,160]"/>
    <node text="Wi-Fi" resource-id="com.example:id/item" class="android.widget.TextView" bounds="[40,300][1040,380]"/>
    <node text="Bluetooth" resource-id="com.example:id/item" class="android.widget.TextView" bounds="[40,400][1040,480]"/>
  </node>
</hierarchy>`

func newTestAutomator(t *testing.T, serial string) (*automator.Automator, *mock.Session) {
	t.Helper()
	cfg := config.Default()
	cfg.Resources.Dir = filepath.Join(t.TempDir(), "resources")
	cfg.Polling.ClickRetries = 2
	cfg.Polling.TextRetries = 2
	cfg.Polling.CheckRetries = 2
	cfg.Permissions = []string{"android.permission.CAMERA"}

	s := mock.New()
	s.SerialID = serial
	s.Responses["uiautomator dump"] = settingsScreen
	s.Responses["pm clear"] = "Success"
	s.Responses["monkey -p"] = "Events injected: 1"

	a := automator.NewWithSession(s, cfg)
	a.Poller.Sleep = func(time.Duration) {}
	a.Input.Sleep = func(time.Duration) {}
	return a, s
}

func parseFlow(t *testing.T, src string) flow.Flow {
	t.Helper()
	f, err := flow.Parse([]byte(src), filepath.Join(t.TempDir(), "flow.yaml"))
	require.NoError(t, err)
	return *f
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestRunner_AllPassed(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	f := parseFlow(t, `appId: com.example.settings
name: Open Wi-Fi
---
- launchApp:
    clearState: true
    grantPermissions: true
- tapOn: Wi-Fi
- tapOn:
    id: com.example:id/item
    index: 1
- back
`)

	result := New(a, RunnerConfig{}).Run(context.Background(), []flow.Flow{f})

	require.Len(t, result.Flows, 1)
	fr := result.Flows[0]
	assert.Equal(t, core.StatusPassed, fr.Status)
	assert.Equal(t, "Open Wi-Fi", fr.Name)
	assert.Equal(t, "emulator-5554", fr.Device)
	assert.Equal(t, 4, fr.PassedSteps)
	assert.True(t, result.Success())

	assert.Equal(t, 1, s.Count("pm clear com.example.settings"))
	assert.Equal(t, 1, s.Count("pm grant com.example.settings android.permission.CAMERA"))
	assert.Equal(t, 1, s.Count("monkey -p com.example.settings"))
	assert.Equal(t, 1, s.Count("input tap 40 300"))
	assert.Equal(t, 1, s.Count("input tap 40 400"))
	assert.Equal(t, 1, s.Count("input keyevent KEYCODE_BACK"))

	require.NotNil(t, fr.Steps[1].Element)
	assert.Equal(t, "Wi-Fi", fr.Steps[1].Element.Text)
}

func TestRunner_FailureSkipsRemainingSteps(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	f := parseFlow(t, `appId: com.example.settings
---
- assertVisible: Airplane mode
- back
`)

	result := New(a, RunnerConfig{}).Run(context.Background(), []flow.Flow{f})
	fr := result.Flows[0]

	assert.Equal(t, core.StatusFailed, fr.Status)
	assert.Equal(t, core.StatusFailed, fr.Steps[0].Status)
	assert.Equal(t, core.ErrCategoryAssertion, fr.Steps[0].Category)
	assert.Equal(t, 2, fr.Steps[0].Attempts)
	assert.Equal(t, core.StatusSkipped, fr.Steps[1].Status)
	assert.Contains(t, fr.Error, "Airplane mode")
	assert.Equal(t, 0, s.Count("input keyevent"))
	assert.False(t, result.Success())
}

func TestRunner_OptionalStepWarns(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	f := parseFlow(t, `appId: com.example.settings
---
- tapOn:
    text: Airplane mode
    optional: true
- tapOn: Bluetooth
`)

	result := New(a, RunnerConfig{}).Run(context.Background(), []flow.Flow{f})
	fr := result.Flows[0]

	assert.Equal(t, core.StatusWarned, fr.Steps[0].Status)
	assert.Equal(t, core.StatusPassed, fr.Steps[1].Status)
	assert.Equal(t, core.StatusWarned, fr.Status)
	assert.Equal(t, 1, fr.WarnedSteps)
	assert.Equal(t, 1, s.Count("input tap 40 400"))
	assert.True(t, result.Success())
}

func TestRunner_StopOnFail(t *testing.T) {
	a, _ := newTestAutomator(t, "emulator-5554")
	failing := parseFlow(t, "appId: a\n---\n- assertVisible: Nope\n")
	passing := parseFlow(t, "appId: a\n---\n- back\n")

	result := New(a, RunnerConfig{StopOnFail: true}).Run(context.Background(), []flow.Flow{failing, passing})

	assert.Equal(t, 1, result.FailedFlows)
	assert.Equal(t, 1, result.SkippedFlows)
	assert.Equal(t, core.StatusSkipped, result.Flows[1].Status)
	assert.Equal(t, core.StatusFailed, result.Status)
}

func TestRunner_CancelledContext(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	f := parseFlow(t, "appId: a\n---\n- back\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := New(a, RunnerConfig{}).Run(ctx, []flow.Flow{f})

	assert.Equal(t, core.StatusSkipped, result.Flows[0].Status)
	assert.Empty(t, s.Commands())
}

func TestRunner_ExpandsVariables(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	s.Responses["getprop ro.product.model"] = "Pixel 7\n"
	f := parseFlow(t, `appId: com.example.settings
env:
  TARGET: Bluetooth
---
- tapOn: ${TARGET}
- shell:
    command: getprop ro.product.model
    output: MODEL
- inputText:
    text: ${MODEL}
    keyboard: system
    slow: false
- openLink: https://example.com/$APP_ID
`)

	result := New(a, RunnerConfig{}).Run(context.Background(), []flow.Flow{f})
	fr := result.Flows[0]

	require.Equal(t, core.StatusPassed, fr.Status, fr.Error)
	assert.Equal(t, 1, s.Count("input tap 40 400"))
	assert.Equal(t, "Pixel 7", fr.Steps[1].Data)
	assert.Equal(t, 1, s.Count("input text 'Pixel 7'"))
	assert.Equal(t, 1, s.Count("am start -a android.intent.action.VIEW -d https://example.com/com.example.settings"))

	// The parsed flow still carries the template.
	tap := f.Steps[0].(*flow.TapOnStep)
	assert.Equal(t, "${TARGET}", tap.Selector.Text)
}

func TestRunner_WaitFor(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	f := parseFlow(t, `appId: com.example.settings
---
- waitFor:
    conditions:
      login: //node[@text='Login']
      home: //node[@text='Settings']
    output: SCREEN
- shell: echo ${SCREEN}
- waitFor:
    conditions:
      login: //node[@text='Login']
    expect: login
`)

	result := New(a, RunnerConfig{}).Run(context.Background(), []flow.Flow{f})
	fr := result.Flows[0]

	assert.Equal(t, core.StatusPassed, fr.Steps[0].Status)
	assert.Equal(t, "home", fr.Steps[0].Data)
	assert.Equal(t, 1, s.Count("echo home"))

	assert.Equal(t, core.StatusFailed, fr.Steps[2].Status)
	assert.Equal(t, "notElement", fr.Steps[2].Data)
	assert.Contains(t, fr.Steps[2].Error, "expected login")
}

func TestRunner_DeviceErrorIsErrored(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	s.Err = errors.New("device offline")
	f := parseFlow(t, "appId: a\n---\n- tapOn: Wi-Fi\n")

	result := New(a, RunnerConfig{}).Run(context.Background(), []flow.Flow{f})
	step := result.Flows[0].Steps[0]

	assert.Equal(t, core.StatusErrored, step.Status)
	assert.Equal(t, core.StatusFailed, result.Flows[0].Status)
	assert.Contains(t, step.Error, "device offline")
}

func TestRunner_CapturesArtifactsOnFailure(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	s.Responses["screencap -p"] = string(pngBytes(t, 40, 30))
	out := t.TempDir()
	f := parseFlow(t, "appId: a\n---\n- back\n- assertVisible: Nope\n")

	cfg := RunnerConfig{OutputDir: out, Artifacts: core.DefaultArtifactConfig()}
	result := New(a, cfg).Run(context.Background(), []flow.Flow{f})
	steps := result.Flows[0].Steps

	assert.Empty(t, steps[0].Attachments)
	require.Len(t, steps[1].Attachments, 2)
	assert.Equal(t, core.AttachmentScreenshot, steps[1].Attachments[0].Name)
	assert.Equal(t, core.AttachmentHierarchy, steps[1].Attachments[1].Name)

	for _, att := range steps[1].Attachments {
		_, err := os.Stat(filepath.Join(out, att.Path))
		assert.NoError(t, err, att.Path)
	}
}

func TestRunner_ScreenshotAndDumpSteps(t *testing.T) {
	a, s := newTestAutomator(t, "emulator-5554")
	s.Responses["screencap -p"] = string(pngBytes(t, 20, 10))
	dir := t.TempDir()
	shot := filepath.Join(dir, "shot.png")
	dump := filepath.Join(dir, "ui.xml")

	f := parseFlow(t, "appId: a\n---\n- takeScreenshot: "+shot+"\n- dumpHierarchy:\n    path: "+dump+"\n    maxDepth: 1\n")
	result := New(a, RunnerConfig{}).Run(context.Background(), []flow.Flow{f})
	require.Equal(t, core.StatusPassed, result.Flows[0].Status, result.Flows[0].Error)

	img, err := imaging.Open(shot)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	raw, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "FrameLayout")
	assert.NotContains(t, string(raw), "Wi-Fi")
}

func TestRunner_Callbacks(t *testing.T) {
	a, _ := newTestAutomator(t, "emulator-5554")
	f := parseFlow(t, "appId: a\nname: cb\n---\n- back\n- back\n")

	var started, ended []string
	var steps []core.StepStatus
	cfg := RunnerConfig{
		OnFlowStart: func(idx, total int, name, file string) {
			started = append(started, name)
		},
		OnStepComplete: func(idx int, desc string, status core.StepStatus, d time.Duration, err string) {
			steps = append(steps, status)
		},
		OnFlowEnd: func(name string, status core.StepStatus, d time.Duration) {
			ended = append(ended, name+":"+status.String())
		},
	}
	New(a, cfg).Run(context.Background(), []flow.Flow{f})

	assert.Equal(t, []string{"cb"}, started)
	assert.Equal(t, []core.StepStatus{core.StatusPassed, core.StatusPassed}, steps)
	assert.Equal(t, []string{"cb:passed"}, ended)
}

func TestParallelRunner_EveryFlowOnEveryDevice(t *testing.T) {
	a1, s1 := newTestAutomator(t, "device-1")
	a2, s2 := newTestAutomator(t, "device-2")

	var flows []flow.Flow
	for i := 0; i < 3; i++ {
		flows = append(flows, parseFlow(t, "appId: a\n---\n- tapOn: Wi-Fi\n"))
	}

	cleaned := 0
	workers := []DeviceWorker{
		{Automator: a1, Cleanup: func() { cleaned++ }},
		{Automator: a2},
	}
	result, err := NewParallelRunner(workers, RunnerConfig{}).Run(context.Background(), flows)
	require.NoError(t, err)

	assert.Equal(t, 6, result.TotalFlows)
	assert.Equal(t, 6, result.PassedFlows)
	assert.Equal(t, 3, s1.Count("input tap"))
	assert.Equal(t, 3, s2.Count("input tap"))
	assert.Equal(t, 1, cleaned)

	var devices []string
	for _, fr := range result.Flows {
		devices = append(devices, fr.Device)
	}
	assert.Equal(t, []string{"device-1", "device-1", "device-1", "device-2", "device-2", "device-2"}, devices)
}

func TestParallelRunner_StopOnFailIsPerDevice(t *testing.T) {
	a1, _ := newTestAutomator(t, "device-1")
	a2, s2 := newTestAutomator(t, "device-2")
	s2.Responses["uiautomator dump"] = strings.Replace(settingsScreen, "Wi-Fi", "Ethernet", 1)

	flows := []flow.Flow{
		parseFlow(t, "appId: a\n---\n- assertVisible: Wi-Fi\n"),
		parseFlow(t, "appId: a\n---\n- back\n"),
	}
	workers := []DeviceWorker{{Automator: a1}, {Automator: a2}}
	result, err := NewParallelRunner(workers, RunnerConfig{StopOnFail: true}).Run(context.Background(), flows)
	require.NoError(t, err)

	require.Len(t, result.Flows, 4)
	assert.Equal(t, core.StatusPassed, result.Flows[0].Status)
	assert.Equal(t, core.StatusPassed, result.Flows[1].Status)
	assert.Equal(t, core.StatusFailed, result.Flows[2].Status)
	assert.Equal(t, core.StatusSkipped, result.Flows[3].Status)
	assert.Equal(t, 0, s2.Count("input keyevent"))
}

func TestParallelRunner_AttachmentsPerDevice(t *testing.T) {
	out := t.TempDir()
	var workers []DeviceWorker
	for _, serial := range []string{"device-1", "device-2"} {
		a, s := newTestAutomator(t, serial)
		s.Responses["screencap -p"] = string(pngBytes(t, 20, 10))
		workers = append(workers, DeviceWorker{Automator: a})
	}
	f := parseFlow(t, "appId: a\n---\n- assertVisible: Nope\n")

	cfg := RunnerConfig{OutputDir: out, Artifacts: core.DefaultArtifactConfig()}
	result, err := NewParallelRunner(workers, cfg).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	require.Len(t, result.Flows, 2)

	for i, serial := range []string{"device-1", "device-2"} {
		atts := result.Flows[i].Steps[0].Attachments
		require.NotEmpty(t, atts)
		assert.Equal(t, serial+"/flow-001-step-001-screenshot.png", atts[0].Path)
		assert.FileExists(t, filepath.Join(out, atts[0].Path))
	}
}

func TestParallelRunner_NoWorkers(t *testing.T) {
	_, err := NewParallelRunner(nil, RunnerConfig{}).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	status, cat := classify(core.ErrWaitTimeout)
	assert.Equal(t, core.StatusFailed, status)
	assert.Equal(t, core.ErrCategoryTimeout, cat)

	status, cat = classify(core.ErrAppNotInstalled.WithMessage("x"))
	assert.Equal(t, core.StatusErrored, status)
	assert.Equal(t, core.ErrCategoryApp, cat)

	status, _ = classify(errors.New("boom"))
	assert.Equal(t, core.StatusErrored, status)
}
