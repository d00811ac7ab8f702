// Package poll runs a check repeatedly at a fixed interval until it succeeds
// or the attempt budget is spent.
package poll

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// DefaultInterval is the pause between attempts.
const DefaultInterval = 500 * time.Millisecond

// Poller retries a check with a fixed pause between attempts.
type Poller struct {
	Interval time.Duration
	Sleep    func(time.Duration) // time.Sleep unless replaced in tests
}

// New creates a Poller sleeping interval between attempts.
func New(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{Interval: interval, Sleep: time.Sleep}
}

// Until runs check up to attempts times (at least once). It returns as soon as
// check reports Found, or immediately on Failed since a broken device will not
// recover by waiting. NotFound and Malformed results are retried. The returned
// result carries the number of attempts made. There is no sleep after the
// final attempt.
func (p *Poller) Until(attempts int, check func(attempt int) core.LookupResult) core.LookupResult {
	delays := p.schedule(attempts)

	var last core.LookupResult
	for i := 1; ; i++ {
		last = check(i)
		last.Attempts = i

		switch last.Status {
		case core.LookupFound:
			return last
		case core.LookupFailed:
			logger.Warn("poll aborted on attempt %d: %s: %v", i, last.Reason, last.Err)
			return last
		case core.LookupMalformed:
			logger.Debug("poll attempt %d malformed: %s: %v", i, last.Reason, last.Err)
		}

		next := delays.NextBackOff()
		if next == backoff.Stop {
			break
		}
		p.Pause(next)
	}

	logger.Debug("poll gave up after %d attempts: %s", last.Attempts, last.Reason)
	return last
}

// schedule yields one interval between each pair of attempts and stops
// after the last one.
func (p *Poller) schedule(attempts int) backoff.BackOff {
	if attempts <= 1 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(attempts-1))
}

// Pause sleeps one interval.
func (p *Poller) Pause(d time.Duration) {
	if p.Sleep == nil {
		time.Sleep(d)
		return
	}
	p.Sleep(d)
}
