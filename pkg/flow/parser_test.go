package flow

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_SimpleFlow(t *testing.T) {
	yaml := `
- tapOn: "Login"
- inputText: "username"
- tapOn:
    id: com.app:id/submit
    retries: 5
- back
`
	flow, err := Parse([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(flow.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(flow.Steps))
	}

	tap, ok := flow.Steps[0].(*TapOnStep)
	if !ok {
		t.Fatalf("expected TapOnStep, got %T", flow.Steps[0])
	}
	if tap.Selector.Kind != ByText || tap.Selector.Text != "Login" {
		t.Errorf("unexpected selector %+v", tap.Selector)
	}

	input, ok := flow.Steps[1].(*InputTextStep)
	if !ok {
		t.Fatalf("expected InputTextStep, got %T", flow.Steps[1])
	}
	if input.Text != "username" || !input.IsSlow() {
		t.Errorf("unexpected input step %+v", input)
	}

	tap2 := flow.Steps[2].(*TapOnStep)
	if tap2.Selector.Kind != ByResourceID || tap2.Selector.ResourceID != "com.app:id/submit" {
		t.Errorf("unexpected selector %+v", tap2.Selector)
	}
	if tap2.Retries != 5 {
		t.Errorf("expected retries=5, got %d", tap2.Retries)
	}

	if flow.Steps[3].Type() != StepBack {
		t.Errorf("expected back, got %s", flow.Steps[3].Type())
	}
}

func TestParse_WithConfig(t *testing.T) {
	yaml := `
appId: com.example.app
name: Login Test
tags:
  - smoke
env:
  USERNAME: testuser
---
- launchApp
- grantPermissions
- openLink:
    link: https://example.com/${USERNAME}
    appId: com.android.chrome
`
	flow, err := Parse([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if flow.Config.AppID != "com.example.app" {
		t.Errorf("expected appId=com.example.app, got %q", flow.Config.AppID)
	}
	if flow.DisplayName() != "Login Test" {
		t.Errorf("expected name=Login Test, got %q", flow.DisplayName())
	}
	if flow.Config.Env["USERNAME"] != "testuser" {
		t.Errorf("expected env USERNAME=testuser, got %v", flow.Config.Env)
	}
	if len(flow.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(flow.Steps))
	}

	link := flow.Steps[2].(*OpenLinkStep)
	if link.AppID != "com.android.chrome" || !strings.Contains(link.Link, "${USERNAME}") {
		t.Errorf("unexpected openLink %+v", link)
	}
}

func TestParse_AllStepTypes(t *testing.T) {
	yaml := `
- launchApp:
    appId: com.example
    clearState: true
- clearState: com.example
- tapOnImage:
    image: images/ok.png
    threshold: 0.95
- tapOnPoint: "100,200"
- tapOnPoint:
    x: 5
    y: 6
    repeat: 3
- inputText:
    text: hello
    keyboard: system
    slow: false
- assertVisible:
    xpath: //*[@text='Home']
    optional: true
- shell:
    command: getprop ro.product.model
    output: model
- takeScreenshot: shots/home.png
- dumpHierarchy:
    compressed: true
    maxDepth: 5
- evalScript: ${output.x = 1}
- runScript:
    file: scripts/setup.js
    env:
      A: b
`
	flow, err := Parse([]byte(yaml), "all.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []StepType{
		StepLaunchApp, StepClearState, StepTapOnImage, StepTapOnPoint, StepTapOnPoint,
		StepInputText, StepAssertVisible, StepShell, StepTakeScreenshot,
		StepDumpHierarchy, StepEvalScript, StepRunScript,
	}
	if len(flow.Steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(flow.Steps))
	}
	for i, st := range want {
		if flow.Steps[i].Type() != st {
			t.Errorf("step %d: expected %s, got %s", i, st, flow.Steps[i].Type())
		}
	}

	if !flow.Steps[0].(*LaunchAppStep).ClearState {
		t.Error("expected clearState on launchApp")
	}
	if img := flow.Steps[2].(*TapOnImageStep); img.Threshold != 0.95 {
		t.Errorf("expected threshold 0.95, got %v", img.Threshold)
	}
	if p := flow.Steps[3].(*TapOnPointStep); p.X != 100 || p.Y != 200 {
		t.Errorf("expected 100,200 got %d,%d", p.X, p.Y)
	}
	if p := flow.Steps[4].(*TapOnPointStep); p.Repeat != 3 {
		t.Errorf("expected repeat 3, got %d", p.Repeat)
	}
	in := flow.Steps[5].(*InputTextStep)
	if in.Keyboard != "system" || in.IsSlow() {
		t.Errorf("unexpected input step %+v", in)
	}
	av := flow.Steps[6].(*AssertVisibleStep)
	if !av.IsOptional() || av.Selector.Kind != ByXPath {
		t.Errorf("unexpected assertVisible %+v", av)
	}
	if sh := flow.Steps[7].(*ShellStep); sh.Output != "model" {
		t.Errorf("expected output=model, got %q", sh.Output)
	}
	if d := flow.Steps[9].(*DumpHierarchyStep); !d.Compressed || d.MaxDepth != 5 {
		t.Errorf("unexpected dump step %+v", d)
	}
	if rs := flow.Steps[11].(*RunScriptStep); rs.ScriptPath() != "scripts/setup.js" || rs.Env["A"] != "b" {
		t.Errorf("unexpected runScript %+v", rs)
	}
}

func TestParse_WaitForKeepsOrder(t *testing.T) {
	yaml := `
- waitFor:
    conditions:
      login: //*[@text='Login']
      home: //*[@resource-id='com.app:id/home']
      error: //*[@text='Error']
    repeat: 10
    expect: home
    output: screen
`
	flow, err := Parse([]byte(yaml), "wait.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := flow.Steps[0].(*WaitForStep)
	names := []string{}
	for _, c := range w.Conditions {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "login,home,error" {
		t.Errorf("conditions out of order: %v", names)
	}
	if w.Repeat != 10 || w.Expect != "home" || w.Output != "screen" {
		t.Errorf("unexpected waitFor %+v", w)
	}
	if w.Describe() != "waitFor: login|home|error" {
		t.Errorf("Describe() = %q", w.Describe())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "", "empty flow file"},
		{"unknown scalar", "- swipeLeft", "unknown step type: swipeLeft"},
		{"unknown mapping", "- swipe: {direction: UP}", "unknown step type"},
		{"not a mapping", "- [1, 2]", "step must be a mapping"},
		{"bad selector", "- tapOn:\n    retries: 2", "selector needs"},
		{"bad point", "- tapOnPoint: abc", "invalid point"},
		{"bad keyboard", "- inputText:\n    text: x\n    keyboard: qwerty", "unknown keyboard"},
		{"waitFor without conditions", "- waitFor:\n    repeat: 2", "conditions mapping"},
		{"openLink without link", "- openLink:\n    appId: x", "requires link"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "bad.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseError_Format(t *testing.T) {
	e := &ParseError{Path: "a.yaml", Line: 3, Message: "boom"}
	if e.Error() != "a.yaml:3: boom" {
		t.Errorf("got %q", e.Error())
	}
	e.Line = 0
	if e.Error() != "a.yaml: boom" {
		t.Errorf("got %q", e.Error())
	}
}

func TestSplitYAMLDocuments_MultilineScript(t *testing.T) {
	content := `appId: x
---
- evalScript: |
    var a = 1;
    ---
    var b = 2;
- back
`
	parts := splitYAMLDocuments(content)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if !strings.Contains(parts[1], "var b = 2;") {
		t.Errorf("multiline block was split: %q", parts[1])
	}
}

func TestFlow_MatchesTags(t *testing.T) {
	f := &Flow{Config: Config{Tags: []string{"smoke", "login"}}}

	tests := []struct {
		name             string
		include, exclude []string
		want             bool
	}{
		{"no filters", nil, nil, true},
		{"include hit", []string{"checkout", "smoke"}, nil, true},
		{"include miss", []string{"checkout"}, nil, false},
		{"exclude hit", nil, []string{"login"}, false},
		{"exclude wins over include", []string{"smoke"}, []string{"login"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.MatchesTags(tt.include, tt.exclude); got != tt.want {
				t.Errorf("MatchesTags(%v, %v) = %v, want %v", tt.include, tt.exclude, got, tt.want)
			}
		})
	}

	untagged := &Flow{}
	if untagged.MatchesTags([]string{"smoke"}, nil) {
		t.Error("untagged flow matched an include filter")
	}
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read file") {
		t.Errorf("expected read error, got %v", err)
	}
}
