package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Defaults for WebSocketDialer.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout      = 60 * time.Second
	writeTimeout            = 10 * time.Second
	readBufferSize          = 4096
	writeBufferSize         = 1024
)

// WebSocketDialer dials WebSocket endpoints.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// ReadTimeout is how long a socket may stay silent before it is
	// treated as dead. Zero disables the deadline.
	ReadTimeout time.Duration
	// Header is sent with the handshake request.
	Header http.Header
}

// NewWebSocketDialer returns a dialer with the given timeouts, substituting
// defaults for zero values.
func NewWebSocketDialer(handshake, read time.Duration) *WebSocketDialer {
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}
	if read <= 0 {
		read = DefaultReadTimeout
	}
	return &WebSocketDialer{HandshakeTimeout: handshake, ReadTimeout: read}
}

// Dial opens a socket to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		ReadBufferSize:   readBufferSize,
		WriteBufferSize:  writeBufferSize,
	}

	ws, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return nil, err
	}

	return Wrap(ws, d.ReadTimeout), nil
}

// HandshakeError is returned when the server answered the upgrade request
// with a non-101 status.
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake rejected (HTTP %d): %v", e.Status, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// IsAuthStatus reports whether the handshake was rejected for credentials.
func (e *HandshakeError) IsAuthStatus() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// wsConn adapts a gorilla connection to Conn.
type wsConn struct {
	ws          *websocket.Conn
	readTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Wrap adapts an established gorilla connection. Both the client dialer and
// the agent server use it so the two sides share deadline handling.
func Wrap(ws *websocket.Conn, readTimeout time.Duration) Conn {
	c := &wsConn{ws: ws, readTimeout: readTimeout}
	ws.SetPingHandler(func(data string) error {
		c.extendDeadline()
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	ws.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	return c
}

func (c *wsConn) extendDeadline() {
	if c.readTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

// ReadMessage returns the next text or binary frame.
func (c *wsConn) ReadMessage() ([]byte, error) {
	c.extendDeadline()
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, translate(err)
	}
	return data, nil
}

// WriteMessage sends one text frame.
func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and releases the socket.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(CloseNormal, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// CloseWithCode sends a close frame with code and reason, then releases the
// socket. Used by the agent to reject credentials.
func CloseWithCode(conn Conn, code int, reason string) error {
	if c, ok := conn.(*wsConn); ok {
		var err error
		c.closeOnce.Do(func() {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			err = c.ws.Close()
		})
		return err
	}
	return conn.Close()
}

// translate maps gorilla read errors onto CloseError.
func translate(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{
			Code:   ce.Code,
			Reason: ce.Text,
			Clean:  ce.Code != websocket.CloseAbnormalClosure,
			Err:    err,
		}
	}
	return &CloseError{Code: CloseAbnormal, Err: err}
}
