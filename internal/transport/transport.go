// Package transport provides the bidirectional message socket used by
// sessions. The Conn and Dialer interfaces keep sessions testable; the
// WebSocket implementation is backed by gorilla/websocket.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Close codes with special meaning to the client.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseNoStatus        = 1005
	CloseAbnormal        = 1006
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseUnauthorized    = 4001
	CloseForbidden       = 4003
)

// Conn is one open socket. ReadMessage blocks until a data frame arrives or
// the socket closes; on closure it returns a *CloseError.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// CloseError describes how a socket closed.
// Clean is true when the peer sent a close frame.
type CloseError struct {
	Code   int
	Reason string
	Clean  bool
	Err    error
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("socket closed (%d): %s", e.Code, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("socket closed (%d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("socket closed (%d)", e.Code)
}

func (e *CloseError) Unwrap() error {
	return e.Err
}

// AsCloseError extracts the close details from err. Errors that carry no close
// frame are reported as an abnormal, unclean closure.
func AsCloseError(err error) *CloseError {
	if err == nil {
		return nil
	}
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce
	}
	return &CloseError{Code: CloseAbnormal, Err: err}
}

// IsAuthFailure reports whether code signals a rejected credential.
func IsAuthFailure(code int) bool {
	switch code {
	case ClosePolicyViolation, CloseUnauthorized, CloseForbidden:
		return true
	}
	return false
}

// IsNormal reports whether code is an orderly shutdown.
func IsNormal(code int) bool {
	return code == CloseNormal || code == CloseGoingAway
}
