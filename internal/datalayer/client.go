package datalayer

import (
	"sync"

	"go.uber.org/zap"
)

type pendingPut struct {
	path     string
	data     DataMap
	callback func(PutResult)
}

// listenerSet is the listener bookkeeping shared by client implementations.
type listenerSet struct {
	mu        sync.Mutex
	listeners []DataListener
}

func (s *listenerSet) add(l DataListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners {
		if existing == l {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

func (s *listenerSet) remove(l DataListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *listenerSet) snapshot() []DataListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DataListener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

// notify hands events to every listener on the dispatcher.
func (s *listenerSet) notify(dispatch Dispatcher, events []DataEvent) {
	dispatch(func() {
		for _, l := range s.snapshot() {
			l.OnDataChanged(events)
		}
	})
}

// LocalClient attaches a node to an in-process Hub.
type LocalClient struct {
	hub       *Hub
	node      string
	dispatch  Dispatcher
	callbacks ConnectionCallbacks
	logger    *zap.Logger
	listeners listenerSet

	mu        sync.Mutex
	connected bool
	cancelSub func()
	pending   []pendingPut
}

// NewLocalClient creates a client for node on hub. callbacks may be nil.
func NewLocalClient(hub *Hub, node string, dispatch Dispatcher, callbacks ConnectionCallbacks, logger *zap.Logger) *LocalClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalClient{
		hub:       hub,
		node:      node,
		dispatch:  dispatch,
		callbacks: callbacks,
		logger:    logger.With(zap.String("node", node)),
	}
}

func (c *LocalClient) NodeID() string {
	return c.node
}

// Connect subscribes to the hub, flushes held puts and reports OnConnected.
// Connecting a connected client does nothing.
func (c *LocalClient) Connect() {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return
	}
	if err := ValidateNode(c.node); err != nil {
		c.mu.Unlock()
		if c.callbacks != nil {
			c.dispatch(func() { c.callbacks.OnFailed(err) })
		}
		return
	}
	c.connected = true
	c.cancelSub = c.hub.Subscribe(c.node, func(events []DataEvent) {
		c.listeners.notify(c.dispatch, events)
	})
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if c.callbacks != nil {
		c.dispatch(c.callbacks.OnConnected)
	}
	for _, p := range pending {
		c.put(p)
	}
}

// Disconnect cancels the hub subscription. Held puts stay queued.
func (c *LocalClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	if c.cancelSub != nil {
		c.cancelSub()
		c.cancelSub = nil
	}
}

func (c *LocalClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PutDataItem writes data at path in this node's namespace. The callback, if
// any, receives the result on the dispatcher.
func (c *LocalClient) PutDataItem(path string, data DataMap, callback func(PutResult)) {
	p := pendingPut{path: path, data: data.Clone(), callback: callback}
	c.mu.Lock()
	if !c.connected {
		c.pending = append(c.pending, p)
		c.mu.Unlock()
		c.logger.Debug("put held until connected", zap.String("path", path))
		return
	}
	c.mu.Unlock()
	c.put(p)
}

func (c *LocalClient) put(p pendingPut) {
	item, changed, err := c.hub.Put(c.node, p.path, p.data)
	if p.callback == nil {
		return
	}
	result := PutResult{Item: item, Changed: changed, Err: err}
	c.dispatch(func() { p.callback(result) })
}

func (c *LocalClient) AddListener(l DataListener) {
	c.listeners.add(l)
}

func (c *LocalClient) RemoveListener(l DataListener) {
	c.listeners.remove(l)
}
