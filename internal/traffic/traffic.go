// Package traffic keeps per-second outcome counts for recent hub requests.
// Health uses them to decide overloaded (rate-limit denials) and degraded
// (error rate) states.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one handled request.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Denied
)

// Retention is the longest window a Window can answer for.
const Retention = 5 * time.Minute

const slots = int(Retention / time.Second)

// Counts are outcome totals over a window.
type Counts struct {
	Success int
	Errors  int
	Denied  int
}

// Total includes denials.
func (c Counts) Total() int { return c.Success + c.Errors + c.Denied }

type slot struct {
	sec    int64
	counts Counts
}

// Window is a ring of one-second slots covering Retention.
type Window struct {
	mu   sync.Mutex
	now  func() time.Time
	ring [slots]slot
}

// New returns a Window reading time from now (time.Now when nil).
func New(now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{now: now}
}

// Add records n outcomes of kind o at the current second.
func (w *Window) Add(o Outcome, n int) {
	if n <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	sec := w.now().Unix()
	s := &w.ring[sec%int64(slots)]
	if s.sec != sec {
		*s = slot{sec: sec}
	}
	switch o {
	case Success:
		s.counts.Success += n
	case Failure:
		s.counts.Errors += n
	case Denied:
		s.counts.Denied += n
	}
}

// Counts sums the slots of the last d, rounded up to whole seconds and capped
// at Retention.
func (w *Window) Counts(d time.Duration) Counts {
	span := int64((d + time.Second - 1) / time.Second)
	if span > int64(slots) {
		span = int64(slots)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	nowSec := w.now().Unix()
	var c Counts
	for i := range w.ring {
		s := w.ring[i]
		if age := nowSec - s.sec; age >= 0 && age < span {
			c.Success += s.counts.Success
			c.Errors += s.counts.Errors
			c.Denied += s.counts.Denied
		}
	}
	return c
}

// Reset clears every slot.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ring = [slots]slot{}
}

var global = New(nil)

func RecordSuccess() { global.Add(Success, 1) }

func RecordError() { global.Add(Failure, 1) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { global.Add(Denied, 1) }

// RecordSuccessN and RecordErrorN inject synthetic load in testing mode.
func RecordSuccessN(n int) { global.Add(Success, n) }

func RecordErrorN(n int) { global.Add(Failure, n) }

// RequestCount returns all outcomes, denials included, within window.
func RequestCount(window time.Duration) int { return global.Counts(window).Total() }

func DenialCount(window time.Duration) int { return global.Counts(window).Denied }

// ErrorRate returns errors and successes+errors within window. Denials are
// not part of the error rate.
func ErrorRate(window time.Duration) (errors, total int) {
	c := global.Counts(window)
	return c.Errors, c.Errors + c.Success
}

// Reset clears the process-wide window. For tests only.
func Reset() { global.Reset() }
