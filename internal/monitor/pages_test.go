package monitor

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rileyhilliard/nodewatch/internal/credential"
	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/rileyhilliard/nodewatch/internal/session"
	"github.com/rileyhilliard/nodewatch/internal/stream"
)

func TestDeriveStatus(t *testing.T) {
	idle := session.New(session.Endpoint{Host: "h", Topic: "cpu", NodeID: "n"}, session.Options{
		Credential: credential.Static("tok"),
		Dialer:     &fakeDialer{},
	})
	boom := stderrors.New("boom")

	tests := []struct {
		name    string
		enabled bool
		s       *session.Session
		err     error
		want    Status
	}{
		{"disabled wins", false, idle, boom, StatusPaused},
		{"no session", true, nil, nil, StatusDisconnected},
		{"no session with error", true, nil, boom, StatusError},
		{"idle session", true, idle, nil, StatusDisconnected},
		{"idle session with error", true, idle, boom, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveStatus(tt.enabled, tt.s, tt.err))
		})
	}
}

func TestStatusDetail(t *testing.T) {
	authErr := errors.New(errors.ErrAuth, "Server rejected the credential", "Check the token")

	tests := []struct {
		name       string
		status     Status
		err        error
		wantDetail string
		wantHint   string
	}{
		{"live", StatusLive, nil, "", ""},
		{"connecting", StatusConnecting, nil, "", ""},
		{"reconnecting", StatusReconnecting, nil, "retrying in 3s", ""},
		{"reconnecting after error", StatusReconnecting, authErr, "retrying in 3s: Server rejected the credential", ""},
		{"error with suggestion", StatusError, authErr, "Server rejected the credential", "Check the token"},
		{"plain error", StatusError, stderrors.New("socket reset\nmore"), "socket reset", "press r to retry"},
		{"error without cause", StatusError, nil, "stream failed", "press r to retry"},
		{"disconnected", StatusDisconnected, nil, "", "press r to reconnect"},
		{"paused", StatusPaused, nil, "monitoring is off", "press m to resume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detail, hint := statusDetail(tt.status, tt.err, "3s")
			assert.Equal(t, tt.wantDetail, detail)
			assert.Equal(t, tt.wantHint, hint)
		})
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "live", StatusLive.String())
	assert.Equal(t, "paused", StatusPaused.String())
	assert.Equal(t, "disconnected", Status(99).String())
}

func TestPage_Route(t *testing.T) {
	for _, p := range DefaultPages {
		assert.Equal(t, "/"+string(p.Category), p.Route())
		assert.True(t, p.Category.Valid())
		assert.NotNil(t, p.Unit)
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{512, "512 B/s"},
		{2048, "2.0 KB/s"},
		{5 * 1024 * 1024, "5.0 MB/s"},
		{3 * 1024 * 1024 * 1024, "3.0 GB/s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRate(tt.in))
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 GB", formatBytes(2*1024*1024*1024))
}

func TestFormatField(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want string
	}{
		{"swap_percent", 12.34, "12.3%"},
		{"total", 1024, "1.0 KB"},
		{"bytes_recv", 100, "100 B"},
		{"read_speed", 2048, "2.0 KB/s"},
		{"upload", 10, "10 B/s"},
		{"cores", 8, "8"},
		{"load_1", 1.5, "1.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatField(tt.name, tt.v))
		})
	}
}

func TestRenderFields(t *testing.T) {
	s := stream.Sample{Fields: map[string]float64{"cores": 4, "load_1": 0.5}}
	assert.Equal(t, "cores 4  load_1 0.50", renderFields(s))
	assert.Empty(t, renderFields(stream.Sample{}))
}

func TestStreamLabel(t *testing.T) {
	s := stream.Sample{Labels: map[string]string{"device": "sda1", "mountpoint": "/data"}}
	assert.Equal(t, "/data", streamLabel("disk/0", s))
	assert.Equal(t, "", streamLabel("eth0", stream.Sample{Labels: map[string]string{"interface": "eth0"}}))
}

func TestDiskIndex(t *testing.T) {
	assert.Equal(t, 2, diskIndex("disk/2"))
	assert.Equal(t, -1, diskIndex("disk/x"))
	assert.Equal(t, -1, diskIndex("network/0"))
}

func TestSidebarOrder(t *testing.T) {
	in := []string{"disk/0", "memory", "network/0", "cpu", "disk/1"}
	assert.Equal(t, []string{"cpu", "memory", "disk/0", "disk/1", "network/0"}, sidebarOrder(in))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "abc", truncate("abc", 0))
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, ColorHealthy, StatusColor(StatusLive))
	assert.Equal(t, ColorCritical, StatusColor(StatusError))
	assert.Equal(t, ColorWarning, StatusColor(StatusReconnecting))
	assert.Equal(t, ColorTextMuted, StatusColor(StatusPaused))
}

func TestMetricColor(t *testing.T) {
	assert.Equal(t, ColorHealthy, MetricColor(10))
	assert.Equal(t, ColorWarning, MetricColor(75))
	assert.Equal(t, ColorCritical, MetricColor(95))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "▰▰▱▱", ProgressBar(4, 50))
	assert.Equal(t, "▰▰▰▰", ProgressBar(4, 150))
	assert.Equal(t, "▱", ProgressBar(0, -5))
}
