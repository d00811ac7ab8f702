package vision

import (
	"bytes"
	"errors"
	"image"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/device/mock"
	"github.com/devicelab-dev/adbauto/pkg/poll"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func newTestLocator(t *testing.T, s *mock.Session) (*Locator, *int) {
	t.Helper()
	sleeps := 0
	p := poll.New(500 * time.Millisecond)
	p.Sleep = func(time.Duration) { sleeps++ }
	return NewLocator(s, filepath.Join(t.TempDir(), "resources", "screenshot_window_0.png"), p), &sleeps
}

func TestLocator_CaptureWritesFile(t *testing.T) {
	r := rand.New(rand.NewSource(10))
	screen := noise(r, 40, 30)

	s := mock.New()
	s.Responses[ScreencapCommand] = "WARNING: linker: unused DT entry\n" + string(encodePNG(t, screen))
	l, _ := newTestLocator(t, s)

	img, err := l.Capture()
	require.NoError(t, err)
	assert.Equal(t, screen.Pix, img.Pix)
	assert.FileExists(t, l.Path)

	reloaded, err := LoadImage(l.Path)
	require.NoError(t, err)
	assert.Equal(t, screen.Pix, reloaded.Pix)
}

func TestLocator_CaptureErrors(t *testing.T) {
	s := mock.New()
	s.Responses[ScreencapCommand] = "not a png"
	l, _ := newTestLocator(t, s)

	_, err := l.Capture()
	assert.ErrorIs(t, err, core.ErrCommandFailed)

	s.Err = errors.New("offline")
	_, err = l.Capture()
	assert.ErrorIs(t, err, s.Err)
}

func TestLocator_Find(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	ref := noise(r, 16, 10)
	refPath := filepath.Join(t.TempDir(), "button.png")
	require.NoError(t, imaging.Save(ref, refPath))

	s := mock.New()
	s.Responses[ScreencapCommand] = string(encodePNG(t, imaging.Paste(noise(r, 120, 90), ref, image.Pt(33, 44))))
	l, _ := newTestLocator(t, s)

	p, res := l.Find(refPath, 0)
	require.True(t, res.Found(), res.Reason)
	assert.Equal(t, core.Point{X: 41, Y: 49}, p)

	_, res = l.Find(filepath.Join(t.TempDir(), "missing.png"), 0)
	assert.Equal(t, core.LookupFailed, res.Status)
}

func TestLocator_WaitPolls(t *testing.T) {
	r := rand.New(rand.NewSource(12))
	ref := noise(r, 12, 12)
	refPath := filepath.Join(t.TempDir(), "icon.png")
	require.NoError(t, imaging.Save(ref, refPath))

	without := encodePNG(t, noise(r, 80, 60))
	with := encodePNG(t, imaging.Paste(noise(r, 80, 60), ref, image.Pt(3, 4)))

	captures := 0
	s := mock.New()
	s.Handler = func(cmd string) ([]byte, error) {
		captures++
		if captures >= 3 {
			return with, nil
		}
		return without, nil
	}
	l, sleeps := newTestLocator(t, s)

	p, res := l.Wait(refPath, DefaultThreshold, 5)
	require.True(t, res.Found())
	assert.Equal(t, core.Point{X: 9, Y: 10}, p)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2, *sleeps)

	captures = -100
	_, res = l.Wait(refPath, DefaultThreshold, 4)
	assert.False(t, res.Found())
	assert.Equal(t, 4, res.Attempts)
}
