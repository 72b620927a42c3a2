package session

import (
	"net/url"
	"path"
)

// Endpoint identifies one logical stream on a telemetry source.
type Endpoint struct {
	Scheme string // ws or wss
	Host   string // host[:port]
	Domain string // metric family; defaults to Topic
	Topic  string
	NodeID string
}

// EndpointKey identifies a distinct physical connection.
type EndpointKey struct {
	Host   string
	Topic  string
	NodeID string
}

func (k EndpointKey) String() string {
	return k.Host + "/" + k.Topic + "/" + k.NodeID
}

// Key returns the connection identity of e.
func (e Endpoint) Key() EndpointKey {
	return EndpointKey{Host: e.Host, Topic: e.Topic, NodeID: e.NodeID}
}

// URL builds scheme://host/<domain>/ws/<topic>/<nodeId>?token=<token>.
func (e Endpoint) URL(token string) string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "ws"
	}
	domain := e.Domain
	if domain == "" {
		domain = e.Topic
	}

	u := url.URL{
		Scheme: scheme,
		Host:   e.Host,
		Path:   "/" + path.Join(domain, "ws", e.Topic, e.NodeID),
	}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

// String renders e without a credential, for logs.
func (e Endpoint) String() string {
	return e.URL("")
}
