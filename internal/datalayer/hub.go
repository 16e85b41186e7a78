package datalayer

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/observability"
)

type itemKey struct {
	node string
	path string
}

// subscription queues events in store order. One goroutine at a time drains
// the queue, so a subscriber sees changes in the order the hub applied them.
type subscription struct {
	node    string
	deliver func([]DataEvent)

	mu       sync.Mutex
	queue    []DataEvent
	draining bool
	closed   bool
}

func (s *subscription) enqueue(ev DataEvent) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()
}

// drain delivers queued events until the queue is empty. When another
// goroutine is already draining it returns at once and that goroutine picks
// up the new events.
func (s *subscription) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 && !s.closed {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.deliver([]DataEvent{ev})
		if ev.Type == EventChanged {
			observability.DataEventsDeliveredTotal.WithLabelValues(observability.PathLabel(ev.Item.Path)).Inc()
		}
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
}

// Hub stores the latest item per (node, path) and fans changes out to the
// subscribers of every other node. Safe for concurrent use. Deliver functions
// are called outside the lock, one at a time per subscriber, in store order.
// They may write back to the hub.
type Hub struct {
	mu     sync.Mutex
	items  map[itemKey]DataMap
	subs   map[int]*subscription
	nextID int
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		items:  make(map[itemKey]DataMap),
		subs:   make(map[int]*subscription),
		logger: logger,
	}
}

// Put stores data at (node, path). When the stored payload is identical the
// call succeeds with changed=false and no event is delivered.
func (h *Hub) Put(node, path string, data DataMap) (DataItem, bool, error) {
	if err := ValidateNode(node); err != nil {
		observability.DataItemsPutTotal.WithLabelValues("invalid", "error").Inc()
		return DataItem{}, false, err
	}
	if err := ValidatePath(path); err != nil {
		observability.DataItemsPutTotal.WithLabelValues("invalid", "error").Inc()
		return DataItem{}, false, err
	}
	item := DataItem{Node: node, Path: path, Data: data.Clone()}
	key := itemKey{node: node, path: path}
	label := observability.PathLabel(path)

	h.mu.Lock()
	if prev, ok := h.items[key]; ok && prev.Equal(item.Data) {
		h.mu.Unlock()
		observability.DataItemsPutTotal.WithLabelValues(label, "unchanged").Inc()
		h.logger.Debug("data item unchanged, not delivered", zap.String("uri", item.URI()))
		return item, false, nil
	}
	h.items[key] = item.Data
	targets := h.enqueueLocked(node, func() DataEvent {
		// Each subscriber gets its own copy of the payload.
		return DataEvent{Type: EventChanged, Item: DataItem{Node: item.Node, Path: item.Path, Data: item.Data.Clone()}}
	})
	h.mu.Unlock()

	observability.DataItemsPutTotal.WithLabelValues(label, "changed").Inc()
	h.logger.Debug("data item changed", zap.String("uri", item.URI()), zap.Int("subscribers", len(targets)))
	for _, s := range targets {
		s.drain()
	}
	return item, true, nil
}

// Delete removes (node, path) and notifies other nodes. Deleting a missing item is a no-op.
func (h *Hub) Delete(node, path string) bool {
	key := itemKey{node: node, path: path}
	h.mu.Lock()
	if _, ok := h.items[key]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.items, key)
	targets := h.enqueueLocked(node, func() DataEvent {
		return DataEvent{Type: EventDeleted, Item: DataItem{Node: node, Path: path}}
	})
	h.mu.Unlock()

	h.logger.Debug("data item deleted", zap.String("uri", "wear://"+node+path), zap.Int("subscribers", len(targets)))
	for _, s := range targets {
		s.drain()
	}
	return true
}

// enqueueLocked queues an event for every subscriber not on node. Queuing
// under h.mu fixes the delivery order to the store order.
func (h *Hub) enqueueLocked(node string, event func() DataEvent) []*subscription {
	targets := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s.node != node {
			s.enqueue(event())
			targets = append(targets, s)
		}
	}
	return targets
}

// Items returns the current items stored at path across all nodes, ordered by node.
func (h *Hub) Items(path string) []DataItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []DataItem
	for k, v := range h.items {
		if k.path == path {
			out = append(out, DataItem{Node: k.node, Path: k.path, Data: v.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// Subscribe registers deliver for changes written by nodes other than node.
// The returned function cancels the subscription and is safe to call twice.
func (h *Hub) Subscribe(node string, deliver func([]DataEvent)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	sub := &subscription{node: node, deliver: deliver}
	h.subs[id] = sub
	n := len(h.subs)
	h.mu.Unlock()
	observability.DataLayerSubscribers.Set(float64(n))

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.close()
			h.mu.Lock()
			delete(h.subs, id)
			n := len(h.subs)
			h.mu.Unlock()
			observability.DataLayerSubscribers.Set(float64(n))
		})
	}
}
