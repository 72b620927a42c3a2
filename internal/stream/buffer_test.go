package stream

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuffer(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{"default size", 0, DefaultCapacity},
		{"negative size", -1, DefaultCapacity},
		{"custom size", 100, 100},
		{"small size", 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.size)
			assert.Equal(t, tt.expected, b.Cap())
			assert.Zero(t, b.Len())
			assert.Zero(t, b.NextSeq())
		})
	}
}

func TestBufferPush(t *testing.T) {
	b := NewBuffer(10)

	s := b.Push(42, map[string]float64{"cores": 8}, map[string]string{"host": "a"})
	assert.Equal(t, int64(0), s.Seq)
	assert.Equal(t, 42.0, s.Value)
	assert.Equal(t, 8.0, s.Fields["cores"])
	assert.False(t, s.Received.IsZero())

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, s.Seq, latest.Seq)
	assert.Equal(t, 1, b.Len())
}

func TestBufferCopiesMaps(t *testing.T) {
	b := NewBuffer(3)
	fields := map[string]float64{"x": 1}
	b.Push(1, fields, nil)
	fields["x"] = 99

	latest, _ := b.Latest()
	assert.Equal(t, 1.0, latest.Fields["x"])
	assert.Nil(t, latest.Labels)
}

func TestBufferOverflowKeepsMostRecent(t *testing.T) {
	b := NewBuffer(5)

	for i := 0; i < 8; i++ {
		b.Push(float64(i), nil, nil)
	}

	assert.Equal(t, 5, b.Len())
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, b.Values(5))

	snap := b.Snapshot()
	require.Len(t, snap, 5)
	assert.Equal(t, int64(3), snap[0].Seq)
	assert.Equal(t, int64(7), snap[4].Seq)
}

func TestBufferLastFewerThanRequested(t *testing.T) {
	b := NewBuffer(10)
	b.Push(1, nil, nil)
	b.Push(2, nil, nil)

	assert.Equal(t, []float64{1, 2}, b.Values(100))
	assert.Equal(t, []float64{2}, b.Values(1))
	assert.Nil(t, b.Values(0))
	assert.Nil(t, NewBuffer(3).Values(3))
	assert.Nil(t, NewBuffer(3).Snapshot())
}

// Property: for any sequence of pushes, the buffer never exceeds capacity and
// holds exactly the most recent N values in arrival order, with strictly
// increasing sequence numbers starting at 0.
func TestBufferBoundedProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 50; trial++ {
		capacity := 1 + rng.Intn(20)
		pushes := rng.Intn(100)
		b := NewBuffer(capacity)

		var all []float64
		for i := 0; i < pushes; i++ {
			v := rng.Float64() * 100
			all = append(all, v)
			s := b.Push(v, nil, nil)
			require.Equal(t, int64(i), s.Seq)
			require.LessOrEqual(t, b.Len(), capacity)
		}

		want := all
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}

		snap := b.Snapshot()
		require.Len(t, snap, len(want))
		for i, s := range snap {
			assert.Equal(t, want[i], s.Value)
			if i > 0 {
				assert.Equal(t, snap[i-1].Seq+1, s.Seq)
			}
		}
	}
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer(4)
	for i := 0; i < 6; i++ {
		b.Push(float64(i), nil, nil)
	}
	require.Equal(t, int64(6), b.NextSeq())

	b.Reset()

	assert.Zero(t, b.Len())
	assert.Zero(t, b.NextSeq())
	_, ok := b.Latest()
	assert.False(t, ok)

	s := b.Push(10, nil, nil)
	assert.Equal(t, int64(0), s.Seq)
	assert.Equal(t, []float64{10}, b.Values(4))
}

func TestBufferConcurrentAccess(t *testing.T) {
	b := NewBuffer(16)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Push(float64(j), nil, nil)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), b.NextSeq())
	assert.Equal(t, 16, b.Len())
}
