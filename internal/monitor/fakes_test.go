package monitor

import (
	"context"
	"strings"
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

func newFakeConn(url string) *fakeConn {
	return &fakeConn{
		url:    url,
		inbox:  make(chan []byte, 16),
		drops:  make(chan *transport.CloseError, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) send(frame string) {
	c.inbox <- []byte(frame)
}

func (c *fakeConn) drop(code int) {
	c.drops <- &transport.CloseError{Code: code, Clean: true}
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
	c := newFakeConn(url)
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

// latest returns the most recent connection whose URL contains fragment.
func (d *fakeDialer) latest(fragment string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.conns) - 1; i >= 0; i-- {
		if strings.Contains(d.conns[i].url, fragment) {
			return d.conns[i]
		}
	}
	return nil
}

// stubTimer never fires; retries stay pending so tests can observe them.
type stubTimer struct{}

func (stubTimer) Stop() bool { return true }

func neverFire(time.Duration, func()) session.Timer {
	return stubTimer{}
}
