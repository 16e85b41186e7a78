package ingest

import (
	"context"
	"sync"
)

type call struct {
	done chan struct{}
	err  error
}

// group coalesces concurrent runs for the same key. A waiter whose ctx ends
// returns early; the run itself continues for the others.
type group struct {
	mu       sync.Mutex
	inFlight map[string]*call
}

func newGroup() *group {
	return &group{inFlight: make(map[string]*call)}
}

// Do runs fn unless a run for key is in flight, in which case it waits for
// that run's result.
func (g *group) Do(ctx context.Context, key string, fn func() error) error {
	g.mu.Lock()
	if c, ok := g.inFlight[key]; ok {
		g.mu.Unlock()
		return wait(ctx, c)
	}
	c := &call{done: make(chan struct{})}
	g.inFlight[key] = c
	g.mu.Unlock()

	go func() {
		c.err = fn()
		g.mu.Lock()
		delete(g.inFlight, key)
		g.mu.Unlock()
		close(c.done)
	}()
	return wait(ctx, c)
}

func wait(ctx context.Context, c *call) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
