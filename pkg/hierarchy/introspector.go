package hierarchy

import (
	"errors"
	"fmt"

	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/poll"
)

// Tapper taps a screen coordinate.
type Tapper interface {
	Tap(x, y int) error
}

// Introspector runs lookups against fresh dumps. Every attempt takes exactly
// one dump; nothing is cached between attempts.
type Introspector struct {
	Dumper  *Dumper
	Poller  *poll.Poller
	Options DumpOptions
}

// NewIntrospector creates an introspector.
func NewIntrospector(d *Dumper, p *poll.Poller) *Introspector {
	return &Introspector{Dumper: d, Poller: p}
}

// Dump takes one dump with the introspector's options.
func (in *Introspector) Dump() (*Document, error) {
	return in.Dumper.Dump(in.Options)
}

// Snapshot takes one dump, classifying a failure as Malformed (unparsable
// output) or Failed (session error).
func (in *Introspector) Snapshot() (*Document, core.LookupResult) {
	doc, err := in.Dump()
	if err == nil {
		return doc, core.Found("dumped")
	}
	if errors.Is(err, core.ErrMalformedHierarchy) {
		return nil, core.Malformed("hierarchy dump", err)
	}
	return nil, core.Failed("hierarchy dump", err)
}

// Coordinates dumps once and returns the top-left corner of each match.
func (in *Introspector) Coordinates(expr string) ([]core.Point, core.LookupResult) {
	doc, res := in.Snapshot()
	if doc == nil {
		return nil, res
	}
	return doc.Coordinates(expr)
}

// Lookup dumps once and resolves the selector.
func (in *Introspector) Lookup(sel flow.Selector) ([]core.Point, *Match, core.LookupResult) {
	doc, res := in.Snapshot()
	if doc == nil {
		return nil, nil, res
	}
	return doc.Find(sel.ToXPath(), sel.Index)
}

// Wait polls the selector until an element at sel.Index exists.
func (in *Introspector) Wait(sel flow.Selector, retries int) (*Match, core.LookupResult) {
	var match *Match
	res := in.Poller.Until(retries, func(int) core.LookupResult {
		points, m, r := in.Lookup(sel)
		if r.Found() && m == nil {
			return core.NotFound(fmt.Sprintf("index %d out of range (%d matches) for %s", sel.Index, len(points), sel.Describe()))
		}
		match = m
		return r
	})
	if !res.Found() {
		return nil, res
	}
	return match, res
}

// CheckText polls until an element's text equals text.
func (in *Introspector) CheckText(text string, retries int) (bool, core.LookupResult) {
	_, res := in.Wait(flow.Text(text), retries)
	return res.Found(), res
}

// CheckTextXML polls until text occurs anywhere in the raw dump.
func (in *Introspector) CheckTextXML(text string, retries int) (bool, core.LookupResult) {
	res := in.Poller.Until(retries, func(int) core.LookupResult {
		doc, r := in.Snapshot()
		if doc == nil {
			return r
		}
		if doc.Contains(text) {
			return core.Found(fmt.Sprintf("%q in dump", text))
		}
		return core.NotFound(fmt.Sprintf("%q not in dump", text))
	})
	return res.Found(), res
}

// Click polls the selector and taps the chosen match times times. With
// times below 1 it only waits for the match.
func (in *Introspector) Click(sel flow.Selector, retries, times int, tap Tapper) (*Match, core.LookupResult) {
	match, res := in.Wait(sel, retries)
	if match == nil {
		return nil, res
	}
	for i := 0; i < times; i++ {
		if err := tap.Tap(match.Point.X, match.Point.Y); err != nil {
			r := core.Failed("tap "+match.Point.String(), err)
			r.Attempts = res.Attempts
			return match, r
		}
	}
	return match, res
}

// ClickXPath polls expr and taps match index once.
func (in *Introspector) ClickXPath(expr string, index, retries int, tap Tapper) (bool, core.LookupResult) {
	sel := flow.XPath(expr)
	sel.Index = index
	_, res := in.Click(sel, retries, 1, tap)
	return res.Found(), res
}
