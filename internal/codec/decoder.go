package codec

import (
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// Record is one normalized measurement destined for a stream buffer.
// Stream names the buffer: the category for single-valued payloads
// ("cpu", "memory") or "<category>/<index>" for per-device payloads.
type Record struct {
	Stream   string
	Category Category
	Value    float64
	Fields   map[string]float64
	Labels   map[string]string
}

// Decoder turns a metrics frame into records.
type Decoder interface {
	Decode(f Frame) ([]Record, error)
}

// lastKnown remembers the previous values of one stream for defaulting.
type lastKnown struct {
	value  float64
	fields map[string]float64
	labels map[string]string
}

// CategoryDecoder decodes one category. It remembers the last known value of
// every field per stream so partial payloads keep earlier readings instead of
// dropping to zero.
type CategoryDecoder struct {
	category Category
	schema   *schema

	mu   sync.Mutex
	prev map[string]*lastKnown
}

// NewDecoder returns a decoder for a concrete category. Minigraphs is an
// aggregate and has no decoder here.
func NewDecoder(c Category) (*CategoryDecoder, error) {
	s, ok := schemas[c]
	if !ok {
		return nil, &DecodeError{Type: string(c), Reason: "no decoder for category"}
	}
	return &CategoryDecoder{
		category: c,
		schema:   s,
		prev:     make(map[string]*lastKnown),
	}, nil
}

// Category returns the decoder's category.
func (d *CategoryDecoder) Category() Category {
	return d.category
}

// Decode decodes a classified metrics frame.
func (d *CategoryDecoder) Decode(f Frame) ([]Record, error) {
	if f.Kind != KindMetrics {
		return nil, &DecodeError{Type: f.Type, Reason: "not a metrics frame"}
	}
	return d.DecodeData(f.Data)
}

// DecodeData decodes a payload: an object, an object holding a device list,
// or a bare array of devices.
func (d *CategoryDecoder) DecodeData(data gjson.Result) ([]Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if data.IsArray() {
		return d.decodeList(data.Array()), nil
	}
	if !data.IsObject() {
		return nil, &DecodeError{Type: string(d.category), Reason: "payload is not an object"}
	}

	for _, key := range d.schema.lists {
		if list := data.Get(key); list.IsArray() {
			return d.decodeList(list.Array()), nil
		}
	}

	return []Record{d.decodeItem(string(d.category), data)}, nil
}

// decodeList decodes per-device items. Items that are not objects are skipped.
// Must be called with d.mu held.
func (d *CategoryDecoder) decodeList(items []gjson.Result) []Record {
	records := make([]Record, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			continue
		}
		records = append(records, d.decodeItem(fmt.Sprintf("%s/%d", d.category, i), item))
	}
	return records
}

// decodeItem maps one object onto a Record, defaulting missing fields to the
// previous known value for the stream, or zero on the first sample.
// Must be called with d.mu held.
func (d *CategoryDecoder) decodeItem(stream string, item gjson.Result) Record {
	prev := d.prev[stream]
	if prev == nil {
		prev = &lastKnown{}
	}

	fields := make(map[string]float64, len(d.schema.fields))
	for _, f := range d.schema.fields {
		if v, ok := lookupNumber(item, f.aliases); ok {
			fields[f.name] = v
			continue
		}
		fields[f.name] = prev.fields[f.name]
	}

	value, ok := lookupNumber(item, d.schema.value.aliases)
	if !ok && d.schema.derive != nil {
		value, ok = d.schema.derive(fields)
	}
	if !ok {
		value = prev.value
	}

	var labels map[string]string
	for _, l := range d.schema.labels {
		v, ok := lookupLabel(item, l.aliases)
		if !ok {
			v, ok = prev.labels[l.name]
		}
		if ok {
			if labels == nil {
				labels = make(map[string]string, len(d.schema.labels))
			}
			labels[l.name] = v
		}
	}

	d.prev[stream] = &lastKnown{value: value, fields: fields, labels: labels}

	return Record{
		Stream:   stream,
		Category: d.category,
		Value:    value,
		Fields:   copyFloatMap(fields),
		Labels:   copyStringMap(labels),
	}
}

// Router dispatches frames to a decoder per category, creating concrete
// category decoders on first use. Aggregate decoders are registered explicitly.
type Router struct {
	mu       sync.Mutex
	decoders map[Category]Decoder
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{decoders: make(map[Category]Decoder)}
}

// Register installs d for category c, replacing any existing decoder.
func (r *Router) Register(c Category, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[c] = d
}

// Decode routes f to the decoder for its category.
func (r *Router) Decode(f Frame) ([]Record, error) {
	if f.Kind != KindMetrics {
		return nil, &DecodeError{Type: f.Type, Reason: "not a metrics frame"}
	}

	r.mu.Lock()
	d, ok := r.decoders[f.Category]
	if !ok {
		cd, err := NewDecoder(f.Category)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		d = cd
		r.decoders[f.Category] = d
	}
	r.mu.Unlock()

	return d.Decode(f)
}

func copyFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
