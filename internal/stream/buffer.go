// Package stream holds the bounded time-series buffers that feed sparklines.
package stream

import (
	"sync"
	"time"
)

// DefaultCapacity is the default number of samples retained per stream.
const DefaultCapacity = 60

// Sample is one normalized measurement. Seq is a logical timestamp: it starts
// at 0 for a fresh buffer and increases by one per sample, independent of wall
// clock. Samples are treated as immutable; the maps are copied on insert and
// must not be modified by readers.
type Sample struct {
	Seq      int64
	Value    float64
	Fields   map[string]float64
	Labels   map[string]string
	Received time.Time
}

// Buffer is a fixed-capacity ring of samples. When full, the oldest sample is
// overwritten. Safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	data  []Sample
	head  int
	count int
	size  int
	next  int64
}

// NewBuffer creates a buffer holding up to size samples.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultCapacity
	}
	return &Buffer{
		data: make([]Sample, size),
		size: size,
	}
}

// Push appends a sample and returns it with its assigned sequence number.
func (b *Buffer) Push(value float64, fields map[string]float64, labels map[string]string) Sample {
	s := Sample{
		Value:    value,
		Fields:   copyFields(fields),
		Labels:   copyLabels(labels),
		Received: time.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s.Seq = b.next
	b.next++

	b.data[b.head] = s
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	return s
}

// Last returns up to n most recent samples in arrival order (oldest first).
func (b *Buffer) Last(n int) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastLocked(n)
}

// Snapshot returns every retained sample in arrival order.
func (b *Buffer) Snapshot() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastLocked(b.count)
}

// Values returns up to n most recent values in arrival order, ready for a sparkline.
func (b *Buffer) Values(n int) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	samples := b.lastLocked(n)
	if samples == nil {
		return nil
	}
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}

// Latest returns the most recent sample.
func (b *Buffer) Latest() (Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return Sample{}, false
	}
	return b.data[(b.head-1+b.size)%b.size], true
}

// Len returns the number of retained samples.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.size
}

// NextSeq returns the sequence number the next sample will receive.
func (b *Buffer) NextSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.next
}

// Reset drops every sample and rewinds the sequence counter to 0.
// Only an explicit stream restart should call this; reconnects keep history.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.data {
		b.data[i] = Sample{}
	}
	b.head = 0
	b.count = 0
	b.next = 0
}

// lastLocked returns the last n samples in chronological order.
// Must be called with b.mu held.
func (b *Buffer) lastLocked(n int) []Sample {
	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]Sample, n)

	// head points to the next write position, so the newest sample is at head-1
	start := (b.head - n + b.size) % b.size
	for i := 0; i < n; i++ {
		result[i] = b.data[(start+i)%b.size]
	}
	return result
}

func copyFields(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyLabels(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
