package mux

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/nodewatch/internal/session"
	"github.com/rileyhilliard/nodewatch/internal/transport"
)

type fakeConn struct {
	url    string
	inbox  chan []byte
	drops  chan *transport.CloseError
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case ce := <-c.drops:
		return nil, ce
	case <-c.closed:
		return nil, &transport.CloseError{Code: transport.CloseNormal, Clean: true}
	}
}

func (c *fakeConn) WriteMessage([]byte) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, url string) (transport.Conn, error) {
	c := &fakeConn{
		url:    url,
		inbox:  make(chan []byte, 16),
		drops:  make(chan *transport.CloseError, 1),
		closed: make(chan struct{}),
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) all() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

type fakeTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(_ time.Duration, fn func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// collector records sidebar or subscriber updates keyed by stream.
type collector struct {
	mu        sync.Mutex
	values    map[string]float64
	connected []bool
	errs      []error
}

func newCollector() *collector {
	return &collector{values: make(map[string]float64)}
}

func (c *collector) handlers() session.Handlers {
	return session.Handlers{
		OnData: func(u session.Update) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.values[u.Stream] = u.Sample.Value
		},
		OnConnectivity: func(ok bool) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.connected = append(c.connected, ok)
		},
		OnError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.errs = append(c.errs, err)
		},
	}
}

func (c *collector) snapshot() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *collector) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.connected) > 0 && c.connected[len(c.connected)-1]
}
