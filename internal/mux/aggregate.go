package mux

import (
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/rileyhilliard/nodewatch/internal/codec"
)

// aggregateKeys lists where each category may appear in a sidebar frame.
var aggregateKeys = []struct {
	category codec.Category
	keys     []string
	scalar   string // field a bare number is mapped to
}{
	{codec.CategoryCPU, []string{"cpu", "cpu_usage", "cpu_percent"}, "usage"},
	{codec.CategoryMemory, []string{"memory", "mem", "memory_usage", "memory_percent"}, "percent"},
	{codec.CategoryDisk, []string{"disks", "disk", "disk_usage"}, "percent"},
	{codec.CategoryNetwork, []string{"interfaces", "network", "networks", "net"}, "download_speed"},
}

// AggregateDecoder splits a minigraphs frame into per-category records:
// "cpu", "memory", "disk/<i>" and "network/<i>". Each category keeps its own
// defaulting memory, so a frame missing a section leaves that section's
// buffers at their last value rather than zero.
type AggregateDecoder struct {
	decoders map[codec.Category]*codec.CategoryDecoder
}

// NewAggregateDecoder creates a decoder for the sidebar topic.
func NewAggregateDecoder() *AggregateDecoder {
	a := &AggregateDecoder{decoders: make(map[codec.Category]*codec.CategoryDecoder)}
	for _, k := range aggregateKeys {
		d, err := codec.NewDecoder(k.category)
		if err != nil {
			// Every aggregate category has a schema.
			panic(err)
		}
		a.decoders[k.category] = d
	}
	return a
}

// Decode implements codec.Decoder.
func (a *AggregateDecoder) Decode(f codec.Frame) ([]codec.Record, error) {
	if f.Kind != codec.KindMetrics {
		return nil, &codec.DecodeError{Type: f.Type, Reason: "not a metrics frame"}
	}
	if !f.Data.IsObject() {
		return nil, &codec.DecodeError{Type: f.Type, Reason: "aggregate payload is not an object"}
	}

	var records []codec.Record
	found := false
	for _, k := range aggregateKeys {
		section, ok := firstPresent(f.Data, k.keys)
		if !ok {
			continue
		}
		found = true

		data := section
		if !section.IsObject() && !section.IsArray() {
			n, ok := codec.Number(section)
			if !ok {
				continue
			}
			data = gjson.Parse(`{"` + k.scalar + `":` + strconv.FormatFloat(n, 'g', -1, 64) + `}`)
		}

		recs, err := a.decoders[k.category].DecodeData(data)
		if err != nil {
			continue
		}
		records = append(records, recs...)
	}

	if !found {
		return nil, &codec.DecodeError{Type: f.Type, Reason: "aggregate frame has no known sections"}
	}
	return records, nil
}

func firstPresent(data gjson.Result, keys []string) (gjson.Result, bool) {
	for _, key := range keys {
		if r := data.Get(key); r.Exists() && r.Type != gjson.Null {
			return r, true
		}
	}
	return gjson.Result{}, false
}
