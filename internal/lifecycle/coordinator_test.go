package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/nodewatch/internal/logger"
)

type countingCloser struct {
	mu      sync.Mutex
	calls   int
	intents []bool
}

func (c *countingCloser) Close(intentional bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.intents = append(c.intents, intentional)
}

func (c *countingCloser) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCoordinator_Triggers(t *testing.T) {
	tests := []struct {
		name    string
		trigger func(c *Coordinator) int
		closed  []string
	}{
		{
			name:    "unmount closes the component's bindings",
			trigger: func(c *Coordinator) int { return c.Unmount("cpu-page") },
			closed:  []string{"cpu"},
		},
		{
			name:    "navigate closes bindings of other routes",
			trigger: func(c *Coordinator) int { return c.Navigate("/memory") },
			closed:  []string{"cpu"},
		},
		{
			name:    "unload closes everything",
			trigger: func(c *Coordinator) int { return c.Unload() },
			closed:  []string{"cpu", "memory", "sidebar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			closers := map[string]*countingCloser{
				"cpu":     {},
				"memory":  {},
				"sidebar": {},
			}
			c.Bind("cpu-page", "/cpu", closers["cpu"])
			c.Bind("memory-page", "/memory", closers["memory"])
			c.Bind("sidebar", "", closers["sidebar"])

			n := tt.trigger(c)
			assert.Equal(t, len(tt.closed), n)
			assert.Equal(t, 3-len(tt.closed), c.Active())

			for name, closer := range closers {
				want := 0
				for _, closed := range tt.closed {
					if closed == name {
						want = 1
					}
				}
				assert.Equal(t, want, closer.count(), name)
			}
		})
	}
}

func TestCoordinator_ClosesExactlyOnceAcrossTriggers(t *testing.T) {
	c := New(nil)
	closer := &countingCloser{}
	c.Bind("cpu-page", "/cpu", closer)

	c.Unmount("cpu-page")
	c.Navigate("/disk")
	c.Unload()

	assert.Equal(t, 1, closer.count())
	assert.Equal(t, []bool{true}, closer.intents)
}

func TestCoordinator_BindIsIdempotent(t *testing.T) {
	c := New(nil)
	closer := &countingCloser{}

	a := c.Bind("cpu-page", "/cpu", closer)
	b := c.Bind("cpu-page", "/cpu", closer)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Active())

	// Function closers are never deduplicated.
	c.Bind("cpu-page", "/cpu", CloserFunc(func(bool) {}))
	c.Bind("cpu-page", "/cpu", CloserFunc(func(bool) {}))
	assert.Equal(t, 3, c.Active())

	c.Unload()
	assert.Equal(t, 1, closer.count())
}

func TestBinding_Release(t *testing.T) {
	c := New(nil)
	closer := &countingCloser{}
	b := c.Bind("cpu-page", "/cpu", closer)

	b.Release()
	assert.Equal(t, 0, c.Active())

	c.Unmount("cpu-page")
	c.Unload()
	b.Close()
	assert.Equal(t, 0, closer.count())
}

func TestBinding_Close(t *testing.T) {
	c := New(nil)
	closer := &countingCloser{}
	b := c.Bind("cpu-page", "/cpu", closer)

	b.Close()
	b.Close()
	c.Unload()

	assert.Equal(t, 1, closer.count())
	assert.Equal(t, 0, c.Active())
}

func TestCoordinator_NavigateTracksRoute(t *testing.T) {
	c := New(nil)
	assert.Equal(t, "", c.Route())
	c.Navigate("/wifi")
	assert.Equal(t, "/wifi", c.Route())
}

func TestCoordinator_PanickingCloserContained(t *testing.T) {
	log := logger.NewBufferLogger()
	c := New(log)
	after := &countingCloser{}

	c.Bind("a", "", CloserFunc(func(bool) { panic("boom") }))
	c.Bind("b", "", after)

	assert.Equal(t, 2, c.Unload())
	assert.Equal(t, 1, after.count())
	assert.True(t, log.Contains("error", "panicked"))
}

func TestCoordinator_WatchSignalsUnloadsOnCancel(t *testing.T) {
	c := New(nil)
	closer := &countingCloser{}
	c.Bind("sidebar", "", closer)

	ctx, cancel := context.WithCancel(context.Background())
	done, stop := c.WatchSignals(ctx)
	defer stop()

	cancel()
	select {
	case <-done.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not finish")
	}
	assert.Equal(t, 1, closer.count())
}

func TestCoordinator_WatchSignalsStop(t *testing.T) {
	c := New(nil)
	closer := &countingCloser{}
	c.Bind("sidebar", "", closer)

	done, stop := c.WatchSignals(context.Background())
	stop()
	stop()

	require.Eventually(t, func() bool { return done.Err() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, closer.count())
	assert.Equal(t, 1, c.Active())
}
