// Package vision locates a reference image inside a device screenshot using
// normalized cross-correlation (TM_CCOEFF_NORMED over the RGB channels).
package vision

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"sort"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/adbauto/pkg/core"
)

// DefaultThreshold is the minimum score counted as a match.
const DefaultThreshold = 0.99

// ScoreMap holds one score per candidate top-left position, row-major.
type ScoreMap struct {
	Width  int // img width - tmpl width + 1
	Height int // img height - tmpl height + 1
	Scores []float64
}

// At returns the score for the window whose top-left corner is (x, y).
func (m *ScoreMap) At(x, y int) float64 {
	return m.Scores[y*m.Width+x]
}

// First returns the first position in row-major order scoring at least
// threshold.
func (m *ScoreMap) First(threshold float64) (image.Point, bool) {
	for i, s := range m.Scores {
		if s >= threshold {
			return image.Pt(i%m.Width, i/m.Width), true
		}
	}
	return image.Point{}, false
}

// Max returns the best scoring position.
func (m *ScoreMap) Max() (image.Point, float64) {
	best, at := math.Inf(-1), 0
	for i, s := range m.Scores {
		if s > best {
			best, at = s, i
		}
	}
	return image.Pt(at%m.Width, at/m.Width), best
}

// plane is one image flattened to RGB bytes without alpha.
type plane struct {
	w, h int
	pix  []uint8 // len w*h*3
}

func toPlane(img *image.NRGBA) plane {
	b := img.Bounds()
	p := plane{w: b.Dx(), h: b.Dy()}
	p.pix = make([]uint8, p.w*p.h*3)
	for y := 0; y < p.h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < p.w; x++ {
			copy(p.pix[(y*p.w+x)*3:], row[x*4:x*4+3])
		}
	}
	return p
}

// integral holds per-channel summed-area tables of values and squares, one
// row and column larger than the image.
type integral struct {
	w   int // image width + 1
	sum [3][]int64
	sq  [3][]int64
}

func newIntegral(p plane) *integral {
	w, h := p.w+1, p.h+1
	in := &integral{w: w}
	for c := 0; c < 3; c++ {
		in.sum[c] = make([]int64, w*h)
		in.sq[c] = make([]int64, w*h)
	}
	for y := 1; y < h; y++ {
		var rowSum, rowSq [3]int64
		for x := 1; x < w; x++ {
			px := p.pix[((y-1)*p.w+(x-1))*3:]
			for c := 0; c < 3; c++ {
				v := int64(px[c])
				rowSum[c] += v
				rowSq[c] += v * v
				in.sum[c][y*w+x] = in.sum[c][(y-1)*w+x] + rowSum[c]
				in.sq[c][y*w+x] = in.sq[c][(y-1)*w+x] + rowSq[c]
			}
		}
	}
	return in
}

// window returns the per-channel sum and sum of squares of the w*h window at (x, y).
func (in *integral) window(x, y, w, h int) (sum, sq [3]int64) {
	a, b := y*in.w+x, y*in.w+x+w
	c, d := (y+h)*in.w+x, (y+h)*in.w+x+w
	for ch := 0; ch < 3; ch++ {
		sum[ch] = in.sum[ch][d] - in.sum[ch][b] - in.sum[ch][c] + in.sum[ch][a]
		sq[ch] = in.sq[ch][d] - in.sq[ch][b] - in.sq[ch][c] + in.sq[ch][a]
	}
	return sum, sq
}

func checkSizes(ib, tb image.Rectangle) error {
	if tb.Dx() == 0 || tb.Dy() == 0 {
		return fmt.Errorf("empty template")
	}
	if tb.Dx() > ib.Dx() || tb.Dy() > ib.Dy() {
		return fmt.Errorf("template %dx%d larger than image %dx%d", tb.Dx(), tb.Dy(), ib.Dx(), ib.Dy())
	}
	return nil
}

// templateStats returns the pixel count, per-channel sums and the summed
// variance term of t.
func templateStats(t plane) (n float64, tSum [3]int64, tVar float64) {
	n = float64(t.w * t.h)
	for c := 0; c < 3; c++ {
		var s, sq int64
		for i := c; i < len(t.pix); i += 3 {
			v := int64(t.pix[i])
			s += v
			sq += v * v
		}
		tSum[c] = s
		tVar += float64(sq) - float64(s)*float64(s)/n
	}
	return n, tSum, tVar
}

// MatchTemplate scores every placement of tmpl inside img. Rows are scored in
// parallel; the call returns once all rows are done.
func MatchTemplate(img, tmpl *image.NRGBA) (*ScoreMap, error) {
	if err := checkSizes(img.Bounds(), tmpl.Bounds()); err != nil {
		return nil, err
	}

	src, t := toPlane(img), toPlane(tmpl)
	in := newIntegral(src)
	n, tSum, tVar := templateStats(t)

	m := &ScoreMap{Width: src.w - t.w + 1, Height: src.h - t.h + 1}
	m.Scores = make([]float64, m.Width*m.Height)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for y := 0; y < m.Height; y++ {
		y := y
		g.Go(func() error {
			row := m.Scores[y*m.Width : (y+1)*m.Width]
			for x := range row {
				cross := crossTerm(src, t, x, y)
				wSum, wSq := in.window(x, y, t.w, t.h)
				row[x] = ncc(cross, wSum, wSq, n, tSum, tVar)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func crossTerm(src, t plane, x, y int) (cross [3]int64) {
	for ty := 0; ty < t.h; ty++ {
		srow := src.pix[((y+ty)*src.w+x)*3 : ((y+ty)*src.w+x+t.w)*3]
		trow := t.pix[ty*t.w*3 : (ty+1)*t.w*3]
		for i := 0; i < len(trow); i += 3 {
			cross[0] += int64(srow[i]) * int64(trow[i])
			cross[1] += int64(srow[i+1]) * int64(trow[i+1])
			cross[2] += int64(srow[i+2]) * int64(trow[i+2])
		}
	}
	return cross
}

func ncc(cross, wSum, wSq [3]int64, n float64, tSum [3]int64, tVar float64) float64 {
	var num, wVar float64
	for c := 0; c < 3; c++ {
		num += float64(cross[c]) - float64(tSum[c])*float64(wSum[c])/n
		wVar += float64(wSq[c]) - float64(wSum[c])*float64(wSum[c])/n
	}

	const eps = 1e-9
	if tVar < eps || wVar < eps {
		// Flat inputs have no correlation to normalize; only two flat
		// patches of the same color count as a match.
		if tVar < eps && wVar < eps && tSum == wSum {
			return 1
		}
		return 0
	}

	s := num / math.Sqrt(tVar*wVar)
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// verifier scores single placements at full size without building a score map.
type verifier struct {
	src, t     plane
	n          float64
	tSum       [3]int64
	tVar       float64
	maxX, maxY int
}

func newVerifier(img, tmpl *image.NRGBA) *verifier {
	v := &verifier{src: toPlane(img), t: toPlane(tmpl)}
	v.n, v.tSum, v.tVar = templateStats(v.t)
	v.maxX, v.maxY = v.src.w-v.t.w, v.src.h-v.t.h
	return v
}

func (v *verifier) score(at image.Point) float64 {
	var wSum, wSq [3]int64
	for ty := 0; ty < v.t.h; ty++ {
		srow := v.src.pix[((at.Y+ty)*v.src.w+at.X)*3 : ((at.Y+ty)*v.src.w+at.X+v.t.w)*3]
		for i := 0; i < len(srow); i += 3 {
			for c := 0; c < 3; c++ {
				p := int64(srow[i+c])
				wSum[c] += p
				wSq[c] += p * p
			}
		}
	}
	return ncc(crossTerm(v.src, v.t, at.X, at.Y), wSum, wSq, v.n, v.tSum, v.tVar)
}

const (
	// minCoarseSide is the shortest template side the coarse pass shrinks to.
	minCoarseSide = 8
	// maxCoarseFactor bounds the shrink factor, and with it the number of
	// grid phases scanned.
	maxCoarseFactor = 8
	// coarseSlack lowers the threshold a coarse placement needs to be
	// verified at full size.
	coarseSlack = 0.1
)

// Match is the outcome of Search. When OK is false, At and Score describe the
// best placement seen.
type Match struct {
	At    image.Point
	Score float64
	OK    bool
}

// Search returns the first placement of tmpl in img, in row-major order,
// scoring at least threshold.
//
// Templates large enough to shrink are matched coarse to fine: both images
// are box-filtered down by a factor k once per grid phase, so every
// full-size placement lines up with exactly one coarse placement, and the
// coarse placements within coarseSlack of threshold are then scored at full
// size. Smaller templates are scored exhaustively.
func Search(img, tmpl *image.NRGBA, threshold float64) (Match, error) {
	ib, tb := img.Bounds(), tmpl.Bounds()
	if err := checkSizes(ib, tb); err != nil {
		return Match{}, err
	}

	k := min(tb.Dx(), tb.Dy()) / minCoarseSide
	if k > maxCoarseFactor {
		k = maxCoarseFactor
	}
	if k < 2 {
		m, err := MatchTemplate(img, tmpl)
		if err != nil {
			return Match{}, err
		}
		if at, ok := m.First(threshold); ok {
			return Match{At: at, Score: m.At(at.X, at.Y), OK: true}, nil
		}
		at, best := m.Max()
		return Match{At: at, Score: best}, nil
	}

	ctw, cth := tb.Dx()/k*k, tb.Dy()/k*k
	ctmpl := imaging.Resize(tmpl.SubImage(image.Rect(tb.Min.X, tb.Min.Y, tb.Min.X+ctw, tb.Min.Y+cth)), ctw/k, cth/k, imaging.Box)

	full := newVerifier(img, tmpl)
	var (
		hits       []image.Point
		bestCoarse = math.Inf(-1)
		bestAt     image.Point
	)
	for py := 0; py < k; py++ {
		for px := 0; px < k; px++ {
			cw, ch := (ib.Dx()-px)/k*k, (ib.Dy()-py)/k*k
			if cw < ctw || ch < cth {
				continue
			}
			region := image.Rect(ib.Min.X+px, ib.Min.Y+py, ib.Min.X+px+cw, ib.Min.Y+py+ch)
			coarse := imaging.Resize(img.SubImage(region), cw/k, ch/k, imaging.Box)

			m, err := MatchTemplate(coarse, ctmpl)
			if err != nil {
				return Match{}, err
			}
			for i, s := range m.Scores {
				at := image.Pt(i%m.Width*k+px, i/m.Width*k+py)
				if at.X > full.maxX || at.Y > full.maxY {
					continue
				}
				if s > bestCoarse {
					bestCoarse, bestAt = s, at
				}
				if s >= threshold-coarseSlack {
					hits = append(hits, at)
				}
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Y != hits[j].Y {
			return hits[i].Y < hits[j].Y
		}
		return hits[i].X < hits[j].X
	})
	best := Match{At: bestAt, Score: full.score(bestAt)}
	for _, at := range hits {
		s := full.score(at)
		if s >= threshold {
			return Match{At: at, Score: s, OK: true}, nil
		}
		if s > best.Score {
			best = Match{At: at, Score: s}
		}
	}
	return best, nil
}

// Locate returns the center of the first placement of tmpl in img scoring at
// least threshold, scanning row by row.
func Locate(img, tmpl *image.NRGBA, threshold float64) (core.Point, bool) {
	m, err := Search(img, tmpl, threshold)
	if err != nil || !m.OK {
		return core.Point{}, false
	}
	tb := tmpl.Bounds()
	return core.Point{X: m.At.X + tb.Dx()/2, Y: m.At.Y + tb.Dy()/2}, true
}
