// Package looper runs callbacks one at a time on a single goroutine and
// schedules delayed, removable messages against an injectable clock.
//
// Every mutation of watch face or publisher state happens on a looper, so
// the state itself needs no locks.
package looper

import (
	"context"
	"sync"
	"time"
)

// Timer is a pending clock callback.
type Timer interface {
	Stop() bool
}

// Clock is the time source for delayed messages.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Looper is an unbounded FIFO of funcs drained by one goroutine.
type Looper struct {
	clock Clock

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
}

// New returns a Looper using clock, or the wall clock when clock is nil.
func New(clock Clock) *Looper {
	if clock == nil {
		clock = RealClock()
	}
	return &Looper{clock: clock, wake: make(chan struct{}, 1)}
}

// Clock returns the looper's clock.
func (l *Looper) Clock() Clock { return l.clock }

// Post queues fn. It reports false once the looper has stopped.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Dispatch is Post shaped as a datalayer.Dispatcher.
func (l *Looper) Dispatch(fn func()) bool { return l.Post(fn) }

// Sync posts fn and waits for it to finish, or for ctx to end.
func (l *Looper) Sync(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs queued funcs on the calling goroutine until the queue is empty
// and returns how many ran. Tests use it to step a looper without Run.
func (l *Looper) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
		n++
	}
}

// Run drains the queue until ctx is done. Queued funcs that have not started
// when ctx ends are dropped, and later Posts are refused.
func (l *Looper) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.queue = nil
			l.mu.Unlock()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Stopped reports whether Run has returned.
func (l *Looper) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}
