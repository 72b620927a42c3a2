// Package lifecycle ties stream teardown to the events that end a view:
// the owning component unmounting, navigation to another route, and the
// whole process unloading. Each binding is closed at most once, whichever
// trigger fires first.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"reflect"
	"sort"
	"sync"
	"syscall"

	"github.com/rileyhilliard/nodewatch/internal/logger"
)

// Closer is anything torn down with an intent flag, such as a session or a
// subscription.
type Closer interface {
	Close(intentional bool)
}

// CloserFunc adapts a function to Closer.
type CloserFunc func(intentional bool)

// Close calls f.
func (f CloserFunc) Close(intentional bool) {
	f(intentional)
}

// Coordinator tracks bindings between closers and the components and routes
// that own them.
type Coordinator struct {
	log logger.Logger

	mu       sync.Mutex
	route    string
	bindings map[int]*Binding
	nextID   int
}

// Binding is one registered closer.
type Binding struct {
	c         *Coordinator
	id        int
	component string
	route     string
	closer    Closer
	once      sync.Once
}

// New creates a Coordinator.
func New(log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Noop()
	}
	return &Coordinator{log: log, bindings: make(map[int]*Binding)}
}

// Bind registers closer for component on route. An empty route means the
// binding survives navigation and only ends on unmount or unload. Binding
// the same closer to the same component and route twice returns the
// existing binding.
func (c *Coordinator) Bind(component, route string, closer Closer) *Binding {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range c.bindings {
		if b.component == component && b.route == route && sameCloser(b.closer, closer) {
			return b
		}
	}

	c.nextID++
	b := &Binding{c: c, id: c.nextID, component: component, route: route, closer: closer}
	c.bindings[b.id] = b
	return b
}

// sameCloser compares closers without panicking on uncomparable types.
func sameCloser(a, b Closer) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

// Route returns the current route.
func (c *Coordinator) Route() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route
}

// Unmount closes every binding owned by component.
func (c *Coordinator) Unmount(component string) int {
	return c.fire("unmount "+component, func(b *Binding) bool {
		return b.component == component
	})
}

// Navigate makes route current and closes bindings tied to any other route.
func (c *Coordinator) Navigate(route string) int {
	c.mu.Lock()
	c.route = route
	c.mu.Unlock()

	return c.fire("navigate "+route, func(b *Binding) bool {
		return b.route != "" && b.route != route
	})
}

// Unload closes everything.
func (c *Coordinator) Unload() int {
	return c.fire("unload", func(*Binding) bool { return true })
}

// Active returns the number of live bindings.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bindings)
}

func (c *Coordinator) fire(trigger string, match func(*Binding) bool) int {
	c.mu.Lock()
	var matched []*Binding
	for id, b := range c.bindings {
		if match(b) {
			matched = append(matched, b)
			delete(c.bindings, id)
		}
	}
	c.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	for _, b := range matched {
		b.closeOnce()
	}
	if len(matched) > 0 {
		c.log.Debug("%s: closed %d stream(s)", trigger, len(matched))
	}
	return len(matched)
}

// WatchSignals unloads on SIGINT/SIGTERM or when ctx ends. The returned
// context is cancelled once unloading is done; stop detaches the watcher
// without unloading.
func (c *Coordinator) WatchSignals(ctx context.Context) (done context.Context, stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	out, cancel := context.WithCancel(context.Background())
	quit := make(chan struct{})
	var once sync.Once

	go func() {
		defer cancel()
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			c.log.Debug("received %s", sig)
		case <-ctx.Done():
		case <-quit:
			return
		}
		c.Unload()
	}()

	return out, func() { once.Do(func() { close(quit) }) }
}

// Release deregisters the binding without closing it, for owners that have
// already torn the stream down themselves.
func (b *Binding) Release() {
	b.c.mu.Lock()
	delete(b.c.bindings, b.id)
	b.c.mu.Unlock()
	b.once.Do(func() {})
}

// Close deregisters the binding and closes it now.
func (b *Binding) Close() {
	b.c.mu.Lock()
	delete(b.c.bindings, b.id)
	b.c.mu.Unlock()
	b.closeOnce()
}

func (b *Binding) closeOnce() {
	b.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				b.c.log.Error("closing %s/%s panicked: %v", b.component, b.route, r)
			}
		}()
		b.closer.Close(true)
	})
}
