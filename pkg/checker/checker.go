// Package checker polls the UI hierarchy for named conditions.
package checker

import (
	"fmt"

	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/hierarchy"
)

// NotElement is returned by FirstMatching when no condition matched.
const NotElement = "notElement"

// DefaultRepeat is the attempt budget when Options.Repeat is zero.
const DefaultRepeat = 20

// Options controls a check.
type Options struct {
	Repeat int // attempts; 0 = DefaultRepeat
	Index  int // which match counts
	Click  bool
}

// DefaultOptions checks the first match and taps it.
func DefaultOptions() Options {
	return Options{Repeat: DefaultRepeat, Click: true}
}

// Checker layers condition polling over an introspector.
type Checker struct {
	Introspector *hierarchy.Introspector
	Tapper       hierarchy.Tapper
}

// New creates a checker.
func New(in *hierarchy.Introspector, tap hierarchy.Tapper) *Checker {
	return &Checker{Introspector: in, Tapper: tap}
}

func (o Options) repeat() int {
	if o.Repeat <= 0 {
		return DefaultRepeat
	}
	return o.Repeat
}

// FirstMatching dumps once per attempt and checks conditions in order,
// returning the name of the first whose XPath has a match at opts.Index. It
// returns NotElement once the budget is spent.
func (c *Checker) FirstMatching(conds []flow.Condition, opts Options) (string, core.LookupResult) {
	name := NotElement
	res := c.Introspector.Poller.Until(opts.repeat(), func(int) core.LookupResult {
		doc, r := c.Introspector.Snapshot()
		if doc == nil {
			return r
		}

		last := core.NotFound("no condition matched")
		for _, cond := range conds {
			_, match, r := doc.Find(cond.XPath, opts.Index)
			if match != nil {
				name = cond.Name
				return core.Found("condition " + cond.Name)
			}
			if r.Status == core.LookupMalformed {
				last = r
			}
		}
		return last
	})
	if !res.Found() {
		return NotElement, res
	}
	return name, res
}

// CheckElement polls xpath until a match exists at opts.Index, tapping it
// when opts.Click is set.
func (c *Checker) CheckElement(xpath string, opts Options) (bool, core.LookupResult) {
	sel := flow.XPath(xpath)
	sel.Index = opts.Index

	if !opts.Click {
		_, res := c.Introspector.Wait(sel, opts.repeat())
		return res.Found(), res
	}
	if c.Tapper == nil {
		return false, core.Failed("check element", fmt.Errorf("no tapper configured"))
	}
	_, res := c.Introspector.Click(sel, opts.repeat(), 1, c.Tapper)
	return res.Found(), res
}
