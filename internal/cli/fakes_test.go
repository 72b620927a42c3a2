package cli

import (
	"bytes"
	"context"
	"sync"

	"github.com/rileyhilliard/nodewatch/internal/agent"
	"github.com/rileyhilliard/nodewatch/internal/codec"
)

// fakeSampler serves fixed payloads so agent-backed tests are deterministic.
type fakeSampler struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSampler) Sample(_ context.Context, category codec.Category) (agent.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	switch category {
	case codec.CategoryCPU:
		return agent.Payload{"usage": 10.0 + float64(f.calls), "cores": 8}, nil
	case codec.CategoryMemory:
		return agent.Payload{"percent": 40.0}, nil
	default:
		return agent.Payload{}, nil
	}
}

func (f *fakeSampler) Disks(_ context.Context) ([]agent.DiskInfo, error) {
	return []agent.DiskInfo{{Index: 0, Device: "/dev/sda1", Mountpoint: "/"}}, nil
}

// syncBuffer is a bytes.Buffer safe to read while stream goroutines write.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
