// Package hierarchy dumps the on-screen UI tree as XML and answers element
// lookups against it.
package hierarchy

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/antchfx/xmlquery"

	"github.com/devicelab-dev/adbauto/pkg/core"
)

var boundsPattern = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// ParseRect parses Android bounds "[x1,y1][x2,y2]".
func ParseRect(s string) (core.Bounds, bool) {
	m := boundsPattern.FindStringSubmatch(s)
	if m == nil {
		return core.Bounds{}, false
	}

	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return core.Bounds{}, false
		}
		v[i] = n
	}
	return core.Bounds{X: v[0], Y: v[1], Width: v[2] - v[0], Height: v[3] - v[1]}, true
}

// ParseBounds returns the top-left corner of Android bounds "[x1,y1][x2,y2]".
// Anything else yields false.
func ParseBounds(s string) (core.Point, bool) {
	b, ok := ParseRect(s)
	if !ok {
		return core.Point{}, false
	}
	return b.TopLeft(), true
}

// Document is one parsed hierarchy dump.
type Document struct {
	Raw  []byte // XML as written to Path
	Path string // empty when never written to disk
	root *xmlquery.Node
}

// Match is an element picked out of a document.
type Match struct {
	Point core.Point
	Node  *xmlquery.Node
}

// Element describes the matched node.
func (m *Match) Element() *core.ElementInfo {
	if m == nil {
		return nil
	}
	return &core.ElementInfo{
		ResourceID: m.Node.SelectAttr("resource-id"),
		Text:       m.Node.SelectAttr("text"),
		Class:      m.Node.SelectAttr("class"),
		Point:      m.Point,
	}
}

// Parse parses raw hierarchy XML. Leading noise before the XML prolog (as
// printed by some uiautomator builds) is dropped.
func Parse(raw []byte) (*Document, error) {
	start := bytes.Index(raw, []byte("<?xml"))
	if start < 0 {
		start = bytes.Index(raw, []byte("<hierarchy"))
	}
	if start < 0 {
		return nil, core.ErrMalformedHierarchy.WithMessage("no hierarchy in dump output")
	}
	raw = raw[start:]

	root, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, core.ErrMalformedHierarchy.WithCause(err)
	}
	return &Document{Raw: raw, root: root}, nil
}

// Load parses a previously written dump.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path) //#nosec G304 -- dump path from config
	if err != nil {
		return nil, fmt.Errorf("read hierarchy %s: %w", path, err)
	}
	doc, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Contains reports whether text occurs anywhere in the raw dump.
func (d *Document) Contains(text string) bool {
	return bytes.Contains(d.Raw, []byte(text))
}

// Nodes evaluates an XPath expression. Compile and evaluation failures,
// including panics from the evaluator, come back as errors.
func (d *Document) Nodes(expr string) (nodes []*xmlquery.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			nodes, err = nil, fmt.Errorf("evaluate %q: %v", expr, r)
		}
	}()
	return xmlquery.QueryAll(d.root, expr)
}

// Coordinates returns the top-left corner of every node matching expr, in
// document order. A bad expression or any node with missing or malformed
// bounds makes the whole result empty and Malformed.
func (d *Document) Coordinates(expr string) ([]core.Point, core.LookupResult) {
	points, _, res := d.match(expr)
	return points, res
}

// Find is Coordinates plus the node at index, when there is one.
func (d *Document) Find(expr string, index int) ([]core.Point, *Match, core.LookupResult) {
	points, nodes, res := d.match(expr)
	if !res.Found() || index < 0 || index >= len(nodes) {
		return points, nil, res
	}
	return points, &Match{Point: points[index], Node: nodes[index]}, res
}

func (d *Document) match(expr string) ([]core.Point, []*xmlquery.Node, core.LookupResult) {
	nodes, err := d.Nodes(expr)
	if err != nil {
		return nil, nil, core.Malformed("xpath "+expr, err)
	}
	if len(nodes) == 0 {
		return nil, nil, core.NotFound("no element matches " + expr)
	}

	points := make([]core.Point, 0, len(nodes))
	for _, n := range nodes {
		raw := n.SelectAttr("bounds")
		p, ok := ParseBounds(raw)
		if !ok {
			return nil, nil, core.Malformed("bounds of "+expr, core.ErrMalformedBounds.WithMessage(fmt.Sprintf("bounds %q", raw)))
		}
		points = append(points, p)
	}
	return points, nodes, core.Found(fmt.Sprintf("%d element(s) match %s", len(points), expr))
}
