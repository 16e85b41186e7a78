package surface

import (
	"fmt"
	"sync"
	"time"
)

// Zones broadcasts the device time zone. It implements watchface.TimeZones.
type Zones struct {
	mu   sync.Mutex
	loc  *time.Location
	next int
	subs map[int]func(*time.Location)
}

func NewZones(loc *time.Location) *Zones {
	if loc == nil {
		loc = time.Local
	}
	return &Zones{loc: loc, subs: make(map[int]func(*time.Location))}
}

func (z *Zones) Current() *time.Location {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.loc
}

// Register calls fn on every Set until the returned func is called.
func (z *Zones) Register(fn func(*time.Location)) func() {
	z.mu.Lock()
	defer z.mu.Unlock()
	id := z.next
	z.next++
	z.subs[id] = fn
	return func() {
		z.mu.Lock()
		delete(z.subs, id)
		z.mu.Unlock()
	}
}

// Set changes the zone and notifies subscribers outside the lock.
func (z *Zones) Set(loc *time.Location) {
	z.mu.Lock()
	z.loc = loc
	fns := make([]func(*time.Location), 0, len(z.subs))
	for _, fn := range z.subs {
		fns = append(fns, fn)
	}
	z.mu.Unlock()
	for _, fn := range fns {
		fn(loc)
	}
}

// SetName loads an IANA zone name and applies it.
func (z *Zones) SetName(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("load time zone %q: %w", name, err)
	}
	z.Set(loc)
	return nil
}
