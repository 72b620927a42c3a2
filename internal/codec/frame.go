// Package codec turns loosely-typed telemetry frames into fixed-shape records.
//
// Every inbound frame is classified first (ParseFrame) and then, if it carries
// metrics, handed to a Decoder. Nothing in this package panics on bad input:
// malformed frames produce a *DecodeError that callers log and drop.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies a frame independent of its category.
type Kind int

const (
	// KindMetrics carries a category payload to decode.
	KindMetrics Kind = iota
	// KindPing is a protocol keepalive; answer with PongFrame.
	KindPing
	// KindPong is a keepalive reply; ignored.
	KindPong
	// KindError is a server-reported fault.
	KindError
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindMetrics:
		return "metrics"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Category names a metric family. It doubles as the URL domain segment.
type Category string

const (
	CategoryCPU        Category = "cpu"
	CategoryMemory     Category = "memory"
	CategoryDisk       Category = "disk"
	CategoryNetwork    Category = "network"
	CategoryEthernet   Category = "ethernet"
	CategoryWifi       Category = "wifi"
	CategoryMinigraphs Category = "minigraphs"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryCPU,
	CategoryMemory,
	CategoryDisk,
	CategoryNetwork,
	CategoryEthernet,
	CategoryWifi,
	CategoryMinigraphs,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Frame is a classified inbound message.
type Frame struct {
	Kind      Kind
	Type      string
	Category  Category // set for KindMetrics
	Message   string   // set for KindError
	Timestamp string
	Data      gjson.Result
}

// DecodeError reports a frame or payload that could not be understood.
type DecodeError struct {
	Reason string
	Type   string
}

func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("decode %s: %s", e.Type, e.Reason)
	}
	return "decode: " + e.Reason
}

const defaultServerError = "unknown server error"

// ParseFrame validates and classifies a raw frame.
//
// Metrics frames are typed "<category>_metrics" or "<category>_data". Their
// payload is read from "data"; when "data" is absent the top-level object is
// used instead, since some sources inline the fields.
func ParseFrame(raw []byte) (Frame, error) {
	if !gjson.ValidBytes(raw) {
		return Frame{}, &DecodeError{Reason: "malformed JSON"}
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Frame{}, &DecodeError{Reason: "frame is not a JSON object"}
	}

	typ := root.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return Frame{}, &DecodeError{Reason: "missing frame type"}
	}

	f := Frame{
		Type:      typ.Str,
		Timestamp: root.Get("timestamp").String(),
		Data:      root.Get("data"),
	}

	switch f.Type {
	case "ping":
		f.Kind = KindPing
		return f, nil
	case "pong":
		f.Kind = KindPong
		return f, nil
	case "error":
		f.Kind = KindError
		f.Message = serverMessage(root)
		return f, nil
	}

	category, ok := metricsCategory(f.Type)
	if !ok {
		return Frame{}, &DecodeError{Type: f.Type, Reason: "unrecognized frame type"}
	}

	f.Kind = KindMetrics
	f.Category = category
	if !f.Data.Exists() || f.Data.Type == gjson.Null {
		f.Data = root
	}
	if !f.Data.IsObject() && !f.Data.IsArray() {
		return Frame{}, &DecodeError{Type: f.Type, Reason: "payload is not an object"}
	}
	return f, nil
}

// metricsCategory extracts the category from "<category>_metrics" / "<category>_data".
func metricsCategory(typ string) (Category, bool) {
	var prefix string
	switch {
	case strings.HasSuffix(typ, "_metrics"):
		prefix = strings.TrimSuffix(typ, "_metrics")
	case strings.HasSuffix(typ, "_data"):
		prefix = strings.TrimSuffix(typ, "_data")
	default:
		return "", false
	}
	c := Category(strings.ToLower(prefix))
	return c, c.Valid()
}

// serverMessage finds the human-readable text of an error frame.
func serverMessage(root gjson.Result) string {
	for _, path := range []string{"message", "data.message", "data.error", "error"} {
		if r := root.Get(path); r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return strings.TrimSpace(r.Str)
		}
	}
	return defaultServerError
}

type outbound struct {
	Type string `json:"type"`
}

// PongFrame returns the keepalive reply. It is the only frame a client sends.
func PongFrame() []byte {
	b, _ := json.Marshal(outbound{Type: "pong"})
	return b
}
