package monitor

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounds(t *testing.T) {
	tests := []struct {
		name          string
		data          []float64
		scale         Scale
		wantMin       float64
		wantMax       float64
		wantIsPercent bool
	}{
		{"empty auto", nil, ScaleAuto, 0, 100, true},
		{"percentage data", []float64{10, 50, 90}, ScaleAuto, 0, 100, true},
		{"out of range data", []float64{-50, 200, 500}, ScaleAuto, -50, 500, false},
		{"forced percent", []float64{1000}, ScalePercent, 0, 100, true},
		{"zero based rates", []float64{200, 800}, ScaleZeroBased, 0, 800, false},
		{"empty zero based", nil, ScaleZeroBased, 0, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minVal, maxVal, isPercent := bounds(tt.data, tt.scale)
			assert.Equal(t, tt.wantMin, minVal)
			assert.Equal(t, tt.wantMax, maxVal)
			assert.Equal(t, tt.wantIsPercent, isPercent)
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	assert.InDelta(t, 0.5, normalizeValue(50, 0, 100), 0.001)
	assert.InDelta(t, 0, normalizeValue(0, 0, 100), 0.001)
	assert.InDelta(t, 1, normalizeValue(100, 0, 100), 0.001)
	assert.InDelta(t, 0.5, normalizeValue(7, 7, 7), 0.001, "flat range sits mid-height")
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		val, max, want int
	}{
		{5, 10, 5},
		{10, 10, 10},
		{15, 10, 10},
		{-5, 10, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampInt(tt.val, tt.max))
	}
}

func TestResampleData(t *testing.T) {
	tests := []struct {
		name   string
		data   []float64
		target int
		want   []float64
	}{
		{"same size", []float64{1, 2, 3}, 3, []float64{1, 2, 3}},
		{"downsample keeps peaks", []float64{1, 9, 2, 3, 8, 1}, 3, []float64{9, 3, 8}},
		{"upsample interpolates", []float64{0, 10}, 3, []float64{0, 5, 10}},
		{"single value fills", []float64{4}, 3, []float64{4, 4, 4}},
		{"empty", nil, 3, nil},
		{"zero target", []float64{1}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resampleData(tt.data, tt.target))
		})
	}
}

func TestRenderBrailleGraph_Dimensions(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	out := RenderBrailleGraph(data, 8, 3, ScalePercent, ColorGraph)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Equal(t, 8, lipgloss.Width(line))
	}
}

func TestRenderBrailleGraph_RightAligned(t *testing.T) {
	out := RenderBrailleGraph([]float64{100, 100}, 4, 1, ScalePercent, ColorGraph)
	runes := []rune(out)
	require.Len(t, runes, 4)

	assert.Equal(t, brailleBase, runes[0], "older columns stay empty")
	assert.Equal(t, rune(0x28FF), runes[3], "latest column is full")
}

func TestRenderBrailleGraph_Empty(t *testing.T) {
	assert.Empty(t, RenderBrailleGraph([]float64{1}, 0, 2, ScaleAuto, ColorGraph))
	out := RenderBrailleGraph(nil, 3, 1, ScaleAuto, ColorGraph)
	assert.Equal(t, strings.Repeat(string(brailleBase), 3), out)
}

func TestRenderMiniSparkline(t *testing.T) {
	assert.Equal(t, "▁▄█", RenderMiniSparkline([]float64{0, 50, 100}, 3, ScalePercent))
	assert.Equal(t, "▁█", RenderMiniSparkline([]float64{100, 800}, 2, ScaleZeroBased))
	assert.Empty(t, RenderMiniSparkline(nil, 5, ScaleAuto))
	assert.Len(t, []rune(RenderMiniSparkline(make([]float64, 50), 10, ScaleAuto)), 10)
}

func TestRenderColoredSparkline(t *testing.T) {
	assert.Empty(t, RenderColoredSparkline(nil, 4, ScaleAuto))
	assert.Contains(t, RenderColoredSparkline([]float64{0, 100}, 2, ScalePercent), "▁")
}
