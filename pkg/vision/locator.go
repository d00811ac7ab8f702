package vision

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/device"
	"github.com/devicelab-dev/adbauto/pkg/logger"
	"github.com/devicelab-dev/adbauto/pkg/poll"
)

// ScreencapCommand captures the screen as PNG on stdout.
const ScreencapCommand = "screencap -p"

// Locator captures screenshots and finds reference images in them.
type Locator struct {
	Session device.Session
	Path    string // screenshot file, overwritten on each capture; empty = memory only
	Poller  *poll.Poller
}

// NewLocator creates a locator writing screenshots to path.
func NewLocator(s device.Session, path string, p *poll.Poller) *Locator {
	return &Locator{Session: s, Path: path, Poller: p}
}

// Capture takes a screenshot, writes it to the locator path and returns it.
func (l *Locator) Capture() (*image.NRGBA, error) {
	return l.CaptureTo(l.Path)
}

// CaptureTo is Capture writing to path instead.
func (l *Locator) CaptureTo(path string) (*image.NRGBA, error) {
	data, err := l.Session.ShellBytes(ScreencapCommand)
	if err != nil {
		return nil, fmt.Errorf("screencap: %w", err)
	}
	// Some devices print warnings before the PNG signature.
	if i := bytes.Index(data, []byte("\x89PNG")); i > 0 {
		data = data[i:]
	}

	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, core.ErrCommandFailed.WithMessage("screencap returned no image").WithCause(err)
	}
	img := imaging.Clone(decoded)

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := imaging.Save(img, path); err != nil {
			return nil, fmt.Errorf("save screenshot: %w", err)
		}
	}

	logger.Debug("screenshot %dx%d -> %s", img.Bounds().Dx(), img.Bounds().Dy(), path)
	return img, nil
}

// LoadImage opens an image file as NRGBA.
func LoadImage(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return imaging.Clone(img), nil
}

// Find captures the screen once and locates the reference image at refPath.
func (l *Locator) Find(refPath string, threshold float64) (core.Point, core.LookupResult) {
	ref, err := LoadImage(refPath)
	if err != nil {
		return core.Point{}, core.Failed("reference image", err)
	}
	return l.FindImage(ref, threshold)
}

// FindImage captures the screen once and locates ref.
func (l *Locator) FindImage(ref *image.NRGBA, threshold float64) (core.Point, core.LookupResult) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	shot, err := l.Capture()
	if err != nil {
		return core.Point{}, core.Failed("screenshot", err)
	}

	m, err := Search(shot, ref, threshold)
	if err != nil {
		return core.Point{}, core.Malformed("template match", err)
	}
	if !m.OK {
		logger.Debug("image not found: best %.4f at %d,%d (threshold %.4f)", m.Score, m.At.X, m.At.Y, threshold)
		return core.Point{}, core.NotFound(fmt.Sprintf("no match >= %.2f (best %.4f)", threshold, m.Score))
	}

	tb := ref.Bounds()
	p := core.Point{X: m.At.X + tb.Dx()/2, Y: m.At.Y + tb.Dy()/2}
	return p, core.Found(fmt.Sprintf("score %.4f at %s", m.Score, p))
}

// Wait polls Find until the reference image appears.
func (l *Locator) Wait(refPath string, threshold float64, retries int) (core.Point, core.LookupResult) {
	ref, err := LoadImage(refPath)
	if err != nil {
		return core.Point{}, core.Failed("reference image", err)
	}

	var found core.Point
	res := l.Poller.Until(retries, func(int) core.LookupResult {
		p, r := l.FindImage(ref, threshold)
		found = p
		return r
	})
	if !res.Found() {
		return core.Point{}, res
	}
	return found, res
}
