package looper

import (
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when posting to a stopped looper.
var ErrStopped = errors.New("looper stopped")

type message struct {
	code  int
	timer Timer
}

// Handler delivers coded messages to a callback on its looper. Close is the
// cancellation token: after it, no message is delivered and the callback
// reference is dropped.
type Handler struct {
	looper *Looper

	mu      sync.Mutex
	handle  func(code int)
	pending map[*message]struct{}
}

// NewHandler binds handle to l.
func NewHandler(l *Looper, handle func(code int)) *Handler {
	return &Handler{looper: l, handle: handle, pending: make(map[*message]struct{})}
}

// SendEmptyMessage queues code for immediate delivery.
func (h *Handler) SendEmptyMessage(code int) bool {
	return h.SendEmptyMessageDelayed(code, 0)
}

// SendEmptyMessageDelayed delivers code after delay. It reports false when the
// handler is closed.
func (h *Handler) SendEmptyMessageDelayed(code int, delay time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handle == nil {
		return false
	}
	m := &message{code: code}
	h.pending[m] = struct{}{}
	if delay <= 0 {
		if !h.looper.Post(func() { h.deliver(m) }) {
			delete(h.pending, m)
			return false
		}
		return true
	}
	m.timer = h.looper.Clock().AfterFunc(delay, func() {
		h.looper.Post(func() { h.deliver(m) })
	})
	return true
}

func (h *Handler) deliver(m *message) {
	h.mu.Lock()
	if _, ok := h.pending[m]; !ok || h.handle == nil {
		h.mu.Unlock()
		return
	}
	delete(h.pending, m)
	fn := h.handle
	h.mu.Unlock()
	fn(m.code)
}

// HasMessages reports whether a message with code is pending.
func (h *Handler) HasMessages(code int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for m := range h.pending {
		if m.code == code {
			return true
		}
	}
	return false
}

// RemoveMessages cancels every pending message with code.
func (h *Handler) RemoveMessages(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for m := range h.pending {
		if m.code == code {
			h.cancel(m)
		}
	}
}

func (h *Handler) cancel(m *message) {
	if m.timer != nil {
		m.timer.Stop()
	}
	delete(h.pending, m)
}

// Close cancels all pending messages and releases the callback.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for m := range h.pending {
		h.cancel(m)
	}
	h.handle = nil
}
