package mux

import "sync"

// Holder is the process-wide slot for the active Multiplexer. Consumers get
// it injected rather than reaching for a package global, so tests can build
// isolated holders.
type Holder struct {
	mu      sync.Mutex
	factory func() *Multiplexer
	current *Multiplexer
}

// NewHolder creates an empty holder that builds instances with factory.
func NewHolder(factory func() *Multiplexer) *Holder {
	return &Holder{factory: factory}
}

// Get returns the current instance, creating it on first use.
func (h *Holder) Get() *Multiplexer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		h.current = h.factory()
	}
	return h.current
}

// Reset closes the current instance, if any, and clears the slot. The next
// Get builds a fresh one with no stale listeners.
func (h *Holder) Reset() {
	h.mu.Lock()
	old := h.current
	h.current = nil
	h.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Loaded reports whether an instance exists.
func (h *Holder) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}
