package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Graphs take the plain []float64 a stream buffer hands out. Braille cells
// hold a 2x4 dot matrix, so each character plots two samples at four levels
// per row:
//
//	Row 0:   ⠁ ⠈   (dots 1, 4)
//	Row 1:   ⠂ ⠐   (dots 2, 5)
//	Row 2:   ⠄ ⠠   (dots 3, 6)
//	Row 3:   ⡀ ⢀   (dots 7, 8)

const brailleBase = '⠀'

var sparklineBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// brailleDots maps [row][col] to the bit offset of that dot.
var brailleDots = [4][2]uint8{
	{0, 3},
	{1, 4},
	{2, 5},
	{6, 7},
}

// Scale fixes the vertical range of a graph.
type Scale int

const (
	// ScaleAuto uses 0-100 when all values fit, otherwise the data range.
	ScaleAuto Scale = iota
	// ScalePercent always uses 0-100.
	ScalePercent
	// ScaleZeroBased uses 0 to the data maximum. Suited to rates.
	ScaleZeroBased
)

// bounds returns the vertical range for data under scale. The flag reports
// whether values are percentages, which enables threshold coloring.
func bounds(data []float64, scale Scale) (minVal, maxVal float64, isPercentage bool) {
	if scale == ScalePercent {
		return 0, 100, true
	}
	if len(data) == 0 {
		return 0, 100, scale == ScaleAuto
	}

	minVal, maxVal = data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	if scale == ScaleZeroBased {
		if minVal > 0 {
			minVal = 0
		}
		return minVal, maxVal, false
	}

	if maxVal <= 100 && minVal >= 0 {
		return 0, 100, true
	}
	return minVal, maxVal, false
}

func normalizeValue(val, minVal, maxVal float64) float64 {
	if maxVal > minVal {
		return (val - minVal) / (maxVal - minVal)
	}
	return 0.5
}

func clampInt(val, maxVal int) int {
	if val < 0 {
		return 0
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// RenderBrailleGraph plots data right-aligned into a width x height braille
// grid. Percentage data is colored per column by threshold; anything else
// uses color.
func RenderBrailleGraph(data []float64, width, height int, scale Scale, color lipgloss.Color) string {
	if width <= 0 || height <= 0 {
		return ""
	}

	minVal, maxVal, isPercentage := bounds(data, scale)
	totalDots := height * 4
	targetPoints := width * 2

	points := data
	if len(points) > targetPoints {
		points = resampleData(points, targetPoints)
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = brailleBase
		}
	}
	colMax := make([]float64, width)
	offset := targetPoints - len(points)

	for i, val := range points {
		col := (i + offset) / 2
		if col >= width {
			continue
		}
		if val > colMax[col] {
			colMax[col] = val
		}
		sub := (i + offset) % 2
		dots := clampInt(int(normalizeValue(val, minVal, maxVal)*float64(totalDots)), totalDots)
		for dot := 0; dot < dots; dot++ {
			row := height - 1 - dot/4
			grid[row][col] |= rune(1 << brailleDots[3-dot%4][sub])
		}
	}

	lines := make([]string, 0, height)
	for _, row := range grid {
		var b strings.Builder
		for col, ch := range row {
			c := color
			if isPercentage {
				c = MetricColor(colMax[col])
			}
			b.WriteString(lipgloss.NewStyle().Foreground(c).Render(string(ch)))
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// RenderMiniSparkline renders one row of block characters.
func RenderMiniSparkline(data []float64, width int, scale Scale) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}

	minVal, maxVal, _ := bounds(data, scale)
	points := data
	if len(points) > width {
		points = resampleData(points, width)
	}

	var b strings.Builder
	for _, val := range points {
		idx := clampInt(int(normalizeValue(val, minVal, maxVal)*float64(len(sparklineBlocks)-1)), len(sparklineBlocks)-1)
		b.WriteRune(sparklineBlocks[idx])
	}
	return b.String()
}

// RenderColoredSparkline colors a mini sparkline by its latest value when
// the data is a percentage, otherwise with the graph color.
func RenderColoredSparkline(data []float64, width int, scale Scale) string {
	line := RenderMiniSparkline(data, width, scale)
	if line == "" {
		return line
	}
	_, _, isPercentage := bounds(data, scale)
	color := ColorGraph
	if isPercentage {
		color = MetricColor(data[len(data)-1])
	}
	return lipgloss.NewStyle().Foreground(color).Render(line)
}

// resampleData fits data into targetSize points. Downsampling keeps the
// maximum of each bucket so spikes survive; upsampling interpolates.
func resampleData(data []float64, targetSize int) []float64 {
	if len(data) == 0 || targetSize <= 0 {
		return nil
	}
	if len(data) == targetSize {
		return data
	}

	result := make([]float64, targetSize)
	if len(data) == 1 {
		for i := range result {
			result[i] = data[0]
		}
		return result
	}

	if len(data) > targetSize {
		bucket := float64(len(data)) / float64(targetSize)
		for i := 0; i < targetSize; i++ {
			start := int(float64(i) * bucket)
			end := int(float64(i+1) * bucket)
			if end > len(data) {
				end = len(data)
			}
			if start >= end {
				start = end - 1
			}
			maxVal := data[start]
			for j := start + 1; j < end; j++ {
				if data[j] > maxVal {
					maxVal = data[j]
				}
			}
			result[i] = maxVal
		}
		return result
	}

	scale := float64(len(data)-1) / float64(targetSize-1)
	for i := 0; i < targetSize; i++ {
		pos := float64(i) * scale
		idx := int(pos)
		frac := pos - float64(idx)
		if idx >= len(data)-1 {
			result[i] = data[len(data)-1]
		} else {
			result[i] = data[idx]*(1-frac) + data[idx+1]*frac
		}
	}
	return result
}
