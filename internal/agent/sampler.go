package agent

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/rileyhilliard/nodewatch/internal/codec"
)

// Payload is the "data" object of one metrics frame.
type Payload map[string]interface{}

// DiskInfo is one entry of the disk list endpoint.
type DiskInfo struct {
	Index      int     `json:"index"`
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	Fstype     string  `json:"fstype,omitempty"`
	Total      float64 `json:"total"`
}

// Sampler produces metric payloads for the agent.
type Sampler interface {
	Sample(ctx context.Context, category codec.Category) (Payload, error)
	Disks(ctx context.Context) ([]DiskInfo, error)
}

// HostSampler reads metrics from the local host. Rates (disk and network
// throughput) are computed against the previous call.
type HostSampler struct {
	now func() time.Time

	mu       sync.Mutex
	lastDisk map[string]disk.IOCountersStat
	diskAt   time.Time
	lastNet  map[string]psnet.IOCountersStat
	netAt    time.Time
}

// NewHostSampler creates a sampler for the local host.
func NewHostSampler() *HostSampler {
	return &HostSampler{now: time.Now}
}

// Sample returns the payload for category.
func (h *HostSampler) Sample(ctx context.Context, category codec.Category) (Payload, error) {
	switch category {
	case codec.CategoryCPU:
		return h.cpu(ctx)
	case codec.CategoryMemory:
		return h.memory(ctx)
	case codec.CategoryDisk:
		disks, err := h.disks(ctx)
		if err != nil {
			return nil, err
		}
		return Payload{"disks": disks}, nil
	case codec.CategoryNetwork:
		return h.network(ctx, anyInterface)
	case codec.CategoryEthernet:
		return h.network(ctx, isEthernet)
	case codec.CategoryWifi:
		return h.network(ctx, isWifi)
	case codec.CategoryMinigraphs:
		return h.minigraphs(ctx)
	default:
		return nil, &codec.DecodeError{Type: string(category), Reason: "unknown category"}
	}
}

func (h *HostSampler) cpu(ctx context.Context) (Payload, error) {
	percent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	p := Payload{"usage": 0.0}
	if len(percent) > 0 {
		p["usage"] = round(percent[0])
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		p["cores"] = cores
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		p["load_avg"] = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	if info, err := cpu.InfoWithContext(ctx); err == nil && len(info) > 0 {
		p["frequency"] = info[0].Mhz
	}
	return p, nil
}

func (h *HostSampler) memory(ctx context.Context) (Payload, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	p := Payload{
		"percent":   round(vm.UsedPercent),
		"total":     vm.Total,
		"used":      vm.Used,
		"available": vm.Available,
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		p["swap_percent"] = round(swap.UsedPercent)
	}
	return p, nil
}

func (h *HostSampler) disks(ctx context.Context) ([]Payload, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Mountpoint < parts[j].Mountpoint })

	counters, _ := disk.IOCountersWithContext(ctx)
	now := h.now()

	h.mu.Lock()
	elapsed := now.Sub(h.diskAt).Seconds()
	prev := h.lastDisk
	h.lastDisk = counters
	h.diskAt = now
	h.mu.Unlock()

	out := make([]Payload, 0, len(parts))
	for _, part := range parts {
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			continue
		}
		p := Payload{
			"device":     part.Device,
			"mountpoint": part.Mountpoint,
			"percent":    round(usage.UsedPercent),
			"total":      usage.Total,
			"used":       usage.Used,
			"free":       usage.Free,
		}
		name := filepath.Base(part.Device)
		if cur, ok := counters[name]; ok {
			if old, ok := prev[name]; ok {
				p["read_speed"] = rate(old.ReadBytes, cur.ReadBytes, elapsed)
				p["write_speed"] = rate(old.WriteBytes, cur.WriteBytes, elapsed)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (h *HostSampler) network(ctx context.Context, keep func(string) bool) (Payload, error) {
	ifaces, err := h.interfaces(ctx, keep)
	if err != nil {
		return nil, err
	}
	return Payload{"interfaces": ifaces}, nil
}

func (h *HostSampler) interfaces(ctx context.Context, keep func(string) bool) ([]Payload, error) {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].Name < counters[j].Name })
	now := h.now()

	h.mu.Lock()
	elapsed := now.Sub(h.netAt).Seconds()
	prev := h.lastNet
	h.lastNet = make(map[string]psnet.IOCountersStat, len(counters))
	for _, c := range counters {
		h.lastNet[c.Name] = c
	}
	h.netAt = now
	h.mu.Unlock()

	out := make([]Payload, 0, len(counters))
	for _, c := range counters {
		if !keep(c.Name) {
			continue
		}
		p := Payload{
			"interface":      c.Name,
			"bytes_recv":     c.BytesRecv,
			"bytes_sent":     c.BytesSent,
			"download_speed": 0.0,
			"upload_speed":   0.0,
		}
		if old, ok := prev[c.Name]; ok {
			p["download_speed"] = rate(old.BytesRecv, c.BytesRecv, elapsed)
			p["upload_speed"] = rate(old.BytesSent, c.BytesSent, elapsed)
		}
		out = append(out, p)
	}
	return out, nil
}

func (h *HostSampler) minigraphs(ctx context.Context) (Payload, error) {
	p := Payload{}
	if c, err := h.cpu(ctx); err == nil {
		p["cpu"] = c["usage"]
	}
	if m, err := h.memory(ctx); err == nil {
		p["memory"] = m["percent"]
	}
	if d, err := h.disks(ctx); err == nil {
		p["disks"] = d
	}
	if n, err := h.interfaces(ctx, anyInterface); err == nil {
		p["interfaces"] = n
	}
	return p, nil
}

// Disks lists mounted partitions for the disk list endpoint.
func (h *HostSampler) Disks(ctx context.Context) ([]DiskInfo, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Mountpoint < parts[j].Mountpoint })

	out := make([]DiskInfo, 0, len(parts))
	for i, part := range parts {
		d := DiskInfo{Index: i, Device: part.Device, Mountpoint: part.Mountpoint, Fstype: part.Fstype}
		if usage, err := disk.UsageWithContext(ctx, part.Mountpoint); err == nil {
			d.Total = float64(usage.Total)
		}
		out = append(out, d)
	}
	return out, nil
}

// rate returns bytes per second between two counter readings. Counter
// resets and the first reading yield zero.
func rate(prev, cur uint64, elapsed float64) float64 {
	if elapsed <= 0 || cur < prev {
		return 0
	}
	return round(float64(cur-prev) / elapsed)
}

func round(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func anyInterface(name string) bool {
	return name != "lo" && !strings.HasPrefix(name, "lo0")
}

func isEthernet(name string) bool {
	return strings.HasPrefix(name, "eth") || strings.HasPrefix(name, "en")
}

func isWifi(name string) bool {
	return strings.HasPrefix(name, "wl") || strings.HasPrefix(name, "wlan")
}
