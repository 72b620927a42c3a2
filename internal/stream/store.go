package stream

import (
	"sort"
	"sync"
)

// Store manages the named buffers belonging to one connection session,
// e.g. "cpu", "memory", "disk/0" or "network/1".
type Store struct {
	mu      sync.RWMutex
	size    int
	buffers map[string]*Buffer
}

// NewStore creates a store whose buffers hold size samples each.
func NewStore(size int) *Store {
	if size <= 0 {
		size = DefaultCapacity
	}
	return &Store{
		size:    size,
		buffers: make(map[string]*Buffer),
	}
}

// Push appends a sample to the named buffer, creating it if needed.
func (s *Store) Push(name string, value float64, fields map[string]float64, labels map[string]string) Sample {
	return s.getOrCreate(name).Push(value, fields, labels)
}

// Buffer returns the named buffer, or nil if nothing was pushed to it yet.
func (s *Store) Buffer(name string) *Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffers[name]
}

// Values returns up to n most recent values of the named buffer.
func (s *Store) Values(name string, n int) []float64 {
	b := s.Buffer(name)
	if b == nil {
		return nil
	}
	return b.Values(n)
}

// Latest returns the newest sample of the named buffer.
func (s *Store) Latest(name string) (Sample, bool) {
	b := s.Buffer(name)
	if b == nil {
		return Sample{}, false
	}
	return b.Latest()
}

// Names returns the buffer names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.buffers))
	for name := range s.buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capacity returns the per-buffer capacity.
func (s *Store) Capacity() int {
	return s.size
}

// ResetAll clears every buffer and rewinds their counters.
func (s *Store) ResetAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.buffers {
		b.Reset()
	}
}

// getOrCreate returns the named buffer, creating it if needed.
func (s *Store) getOrCreate(name string) *Buffer {
	s.mu.RLock()
	b, ok := s.buffers[name]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buffers[name]; ok {
		return b
	}
	b = NewBuffer(s.size)
	s.buffers[name] = b
	return b
}
