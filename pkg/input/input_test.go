package input

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/adbauto/pkg/config"
	"github.com/devicelab-dev/adbauto/pkg/device/mock"
)

func newTestSimulator() (*Simulator, *mock.Session, *[]time.Duration) {
	s := mock.New()
	cfg := config.Default().Input
	sim := New(s, cfg)
	var sleeps []time.Duration
	sim.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return sim, s, &sleeps
}

func TestTap(t *testing.T) {
	sim, s, _ := newTestSimulator()

	require.NoError(t, sim.Tap(540, 1200))
	require.NoError(t, sim.Tap(-10, 99999))
	assert.Equal(t, []string{"input tap 540 1200", "input tap -10 99999"}, s.Commands())
}

func TestTapTimes(t *testing.T) {
	sim, s, _ := newTestSimulator()

	require.NoError(t, sim.TapTimes(1, 2, 3))
	assert.Equal(t, 3, s.Count("input tap 1 2"))

	s.Reset()
	require.NoError(t, sim.TapTimes(1, 2, 0))
	assert.Empty(t, s.Commands())
}

func TestSendText_ADBKeyboard(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		slow  bool
		sends []string
	}{
		{
			name:  "batch",
			text:  "hello",
			slow:  false,
			sends: []string{"am broadcast -a ADB_INPUT_B64 --es msg aGVsbG8="},
		},
		{
			name: "slow",
			text: "hé",
			slow: true,
			sends: []string{
				"am broadcast -a ADB_INPUT_B64 --es msg aA==",
				"am broadcast -a ADB_INPUT_B64 --es msg w6k=",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, s, sleeps := newTestSimulator()

			require.NoError(t, sim.SendText(tt.text, Options{Keyboard: KeyboardADB, Slow: tt.slow}))

			want := append([]string{"ime set com.android.adbkeyboard/.AdbIME"}, tt.sends...)
			assert.Equal(t, want, s.Commands())
			assert.Equal(t, []time.Duration{time.Second}, *sleeps)
		})
	}
}

func TestSendText_SystemKeyboard(t *testing.T) {
	sim, s, _ := newTestSimulator()

	require.NoError(t, sim.SendText("ab", Options{Keyboard: KeyboardSystem, Slow: true}))
	assert.Equal(t, []string{
		"ime set com.android.inputmethod.pinyin/.InputService",
		"input text 'a'",
		"input text 'b'",
	}, s.Commands())

	s.Reset()
	require.NoError(t, sim.SendText("a b", Options{Keyboard: KeyboardSystem}))
	assert.Equal(t, []string{
		"ime set com.android.inputmethod.pinyin/.InputService",
		"input text 'a b'",
	}, s.Commands())
}

func TestSendText_InvocationCounts(t *testing.T) {
	text := "password123"
	for _, k := range []Keyboard{KeyboardADB, KeyboardSystem} {
		sim, s, _ := newTestSimulator()
		require.NoError(t, sim.SendText(text, Options{Keyboard: k, Slow: true}))
		assert.Equal(t, 1+len(text), len(s.Commands()), "slow %s", k)

		sim, s, _ = newTestSimulator()
		require.NoError(t, sim.SendText(text, Options{Keyboard: k}))
		assert.Equal(t, 2, len(s.Commands()), "batch %s", k)
	}
}

func TestSendText_CustomIME(t *testing.T) {
	sim, s, sleeps := newTestSimulator()
	sim.Config.ADBKeyboardIME = "com.example/.Ime"
	sim.Config.SwitchDelayMs = 250

	require.NoError(t, sim.SendText("x", Options{}))
	assert.Equal(t, "ime set com.example/.Ime", s.Commands()[0])
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, *sleeps)
}

func TestSendText_Errors(t *testing.T) {
	sim, s, sleeps := newTestSimulator()
	s.Err = errors.New("offline")

	err := sim.SendText("x", Options{})
	assert.ErrorIs(t, err, s.Err)
	assert.Empty(t, *sleeps)
}

func TestParseKeyboard(t *testing.T) {
	k, err := ParseKeyboard("")
	require.NoError(t, err)
	assert.Equal(t, KeyboardADB, k)

	k, err = ParseKeyboard("system")
	require.NoError(t, err)
	assert.Equal(t, KeyboardSystem, k)

	_, err = ParseKeyboard("qwerty")
	assert.Error(t, err)
}
