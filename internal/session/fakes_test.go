package session

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/nodewatch/internal/transport"
)

// fakeConn is an in-memory socket. Frames pushed with send are returned by
// ReadMessage; drop simulates the server closing the socket.
type fakeConn struct {
	inbox  chan []byte
	drops  chan *transport.CloseError
	closed chan struct{}
	// hold, when non-nil, keeps ReadMessage blocked after Close until it is
	// closed, simulating a slow teardown.
	hold chan struct{}

	once    sync.Once
	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 16),
		drops:  make(chan *transport.CloseError, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) send(frame string) {
	c.inbox <- []byte(frame)
}

func (c *fakeConn) drop(code int, clean bool) {
	c.drops <- &transport.CloseError{Code: code, Clean: clean}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case ce := <-c.drops:
		return nil, ce
	case <-c.closed:
		if c.hold != nil {
			<-c.hold
		}
		return nil, &transport.CloseError{Code: transport.CloseNormal, Clean: true}
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

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

func (c *fakeConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

// fakeDialer hands out fakeConns and records every dialed URL.
type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	// gate, when non-nil, blocks Dial until closed.
	gate chan struct{}
	// fail, when non-nil, is returned instead of a connection.
	fail error
	// prepare customizes each new connection.
	prepare func(*fakeConn)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	gate, fail := d.gate, d.fail
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	c := newFakeConn()
	if d.prepare != nil {
		d.prepare(c)
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// fakeClock collects timers so tests decide when they fire.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// active returns the number of timers that are neither stopped nor fired.
func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// fire runs every active timer and returns how many ran.
func (c *fakeClock) fire() int {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()

	n := 0
	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = true
		t.mu.Unlock()
		if run {
			t.fn()
			n++
		}
	}
	return n
}

// recorder captures subscriber callbacks.
type recorder struct {
	mu           sync.Mutex
	updates      []Update
	errs         []error
	connectivity []bool
	states       []State
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnData: func(u Update) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, u)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnConnectivity: func(connected bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connectivity = append(r.connectivity, connected)
		},
		OnState: func(s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
	}
}

func (r *recorder) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recorder) errList() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) connectivityEvents() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.connectivity...)
}

func (r *recorder) lastConnectivity() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.connectivity) == 0 {
		return false, false
	}
	return r.connectivity[len(r.connectivity)-1], true
}
