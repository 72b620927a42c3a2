package monitor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/nodewatch/internal/stream"
)

// Layout constants
const (
	defaultWidth   = 100
	sidebarWidth   = 30
	minMainWidth   = 40
	graphHeight    = 2
	sidebarSpark   = 14
	maxSidebarRows = 8
)

// renderDashboard renders the complete dashboard view.
func (m Model) renderDashboard() string {
	if m.showHelp {
		return m.renderHelpOverlay()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), m.renderPage())
	return strings.Join([]string{m.renderHeader(), body, m.renderFooter()}, "\n")
}

func (m Model) totalWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}
	return m.width
}

func (m Model) mainWidth() int {
	w := m.totalWidth() - sidebarWidth - 5
	if w < minMainWidth {
		w = minMainWidth
	}
	return w
}

// renderHeader renders the title, node and page tabs.
func (m Model) renderHeader() string {
	title := TitleStyle.Render("nodewatch")
	node := LabelStyle.Render(" | " + m.node)

	monitoring := lipgloss.NewStyle().Foreground(ColorHealthy).Render(" | monitoring on")
	if !m.mux.MonitoringEnabled() {
		monitoring = lipgloss.NewStyle().Foreground(ColorWarning).Render(" | monitoring off")
	}

	tabs := make([]string, 0, len(m.pages))
	for i, p := range m.pages {
		label := fmt.Sprintf("%d %s", i+1, p.Title)
		if i == m.current {
			tabs = append(tabs, TabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, TabStyle.Render(label))
		}
	}

	return HeaderStyle.Render(title+node+monitoring) + "\n" + strings.Join(tabs, "")
}

// renderStatus renders a glyph and label for st.
func (m Model) renderStatus(st Status) string {
	style := lipgloss.NewStyle().Foreground(StatusColor(st))
	switch st {
	case StatusConnecting:
		return style.Render(m.ConnectingSpinner() + " " + m.ConnectingText())
	case StatusLive:
		return style.Render(GlyphLive + " live")
	case StatusReconnecting:
		return style.Render(GlyphReconnecting + " reconnecting")
	case StatusError:
		return style.Render(GlyphError + " error")
	case StatusPaused:
		return style.Render(GlyphPaused + " paused")
	default:
		return style.Render(GlyphDisconnected + " disconnected")
	}
}

// renderStatusDetail renders the explanation line under a status, if any.
func (m Model) renderStatusDetail(st Status, err error, width int) string {
	detail, hint := statusDetail(st, err, m.retryDelay.String())
	var parts []string
	if detail != "" {
		parts = append(parts, LabelStyle.Render(truncate(detail, width)))
	}
	if hint != "" {
		parts = append(parts, SuggestionStyle.Render(truncate(hint, width)))
	}
	return strings.Join(parts, "\n")
}

// renderSidebar renders the mini-graphs fed by the aggregate stream.
func (m Model) renderSidebar() string {
	inner := sidebarWidth - 4
	st := m.SidebarStatus()

	lines := []string{
		TitleStyle.Render("Overview"),
		m.renderStatus(st),
	}
	if detail := m.renderStatusDetail(st, m.side.err(), inner); detail != "" {
		lines = append(lines, detail)
	}
	lines = append(lines, "")

	s := m.mux.SidebarSession()
	if s == nil || len(s.Store().Names()) == 0 {
		lines = append(lines, MutedStyle.Render("no samples yet"))
		return SidebarStyle.Width(sidebarWidth).Render(strings.Join(lines, "\n"))
	}

	store := s.Store()
	names := sidebarOrder(store.Names())
	if len(names) > maxSidebarRows {
		names = names[:maxSidebarRows]
	}
	for _, name := range names {
		latest, _ := store.Latest(name)
		scale := ScalePercent
		value := formatPercent(latest.Value)
		if strings.HasPrefix(name, "network") {
			scale = ScaleZeroBased
			value = FormatRate(latest.Value)
		}
		label := lipgloss.NewStyle().Width(10).Render(LabelStyle.Render(name))
		spark := RenderColoredSparkline(store.Values(name, sidebarSpark), sidebarSpark, scale)
		lines = append(lines, label+spark)
		lines = append(lines, strings.Repeat(" ", 10)+ValueStyle.Render(value))
	}

	return SidebarStyle.Width(sidebarWidth).Render(strings.Join(lines, "\n"))
}

// sidebarOrder puts cpu and memory first, then disks and interfaces.
func sidebarOrder(names []string) []string {
	rank := func(n string) int {
		switch {
		case n == "cpu":
			return 0
		case n == "memory":
			return 1
		case strings.HasPrefix(n, "disk"):
			return 2
		default:
			return 3
		}
	}
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}

// renderPage renders the current detail page.
func (m Model) renderPage() string {
	width := m.mainWidth()
	page := m.CurrentPage()
	st := m.PageStatus()

	var b strings.Builder
	b.WriteString(SectionHeader(page.Title, m.renderStatus(st), width-2))
	b.WriteString("\n")
	if detail := m.renderStatusDetail(st, m.page.err(), width-4); detail != "" {
		b.WriteString(detail)
		b.WriteString("\n")
	}

	if m.page == nil || m.page.sub == nil {
		return PanelStyle.Width(width).Render(b.String())
	}

	store := m.page.sub.Session().Store()
	names := store.Names()
	if len(names) == 0 {
		if st == StatusLive || st == StatusConnecting {
			b.WriteString(MutedStyle.Render("waiting for the first sample"))
		}
		return PanelStyle.Width(width).Render(b.String())
	}

	graphWidth := width - 6
	for _, name := range names {
		latest, ok := store.Latest(name)
		if !ok {
			continue
		}
		b.WriteString("\n")
		b.WriteString(m.renderStreamTitle(name, latest, page))
		b.WriteString("\n")
		b.WriteString(RenderBrailleGraph(store.Values(name, graphWidth*2), graphWidth, graphHeight, page.Scale, ColorGraph))
		b.WriteString("\n")
		if fields := renderFields(latest); fields != "" {
			b.WriteString(MutedStyle.Render(truncate(fields, width-4)))
			b.WriteString("\n")
		}
	}

	return PanelStyle.Width(width).Render(b.String())
}

// renderStreamTitle renders "name  label  value" for one stream.
func (m Model) renderStreamTitle(name string, latest stream.Sample, page Page) string {
	label := streamLabel(name, latest)
	if d, ok := m.disks[diskIndex(name)]; ok {
		label = strings.TrimSpace(d.Device + " " + d.Mountpoint)
	}

	value := page.Unit(latest.Value)
	valueStyle := ValueStyle
	if page.Scale == ScalePercent {
		valueStyle = MetricStyle(latest.Value).Bold(true)
	}

	out := LabelStyle.Render(name)
	if label != "" {
		out += MutedStyle.Render("  " + label)
	}
	return out + "  " + valueStyle.Render(value)
}

// streamLabel picks the most descriptive label a sample carries.
func streamLabel(name string, s stream.Sample) string {
	for _, key := range []string{"mountpoint", "interface", "device"} {
		if v := s.Labels[key]; v != "" && v != name {
			return v
		}
	}
	return ""
}

// diskIndex returns i for a "disk/<i>" stream name, or -1.
func diskIndex(name string) int {
	rest, ok := strings.CutPrefix(name, "disk/")
	if !ok {
		return -1
	}
	i, err := strconv.Atoi(rest)
	if err != nil {
		return -1
	}
	return i
}

// renderFields renders auxiliary fields in name order.
func renderFields(s stream.Sample) string {
	if len(s.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+formatField(k, s.Fields[k]))
	}
	return strings.Join(parts, "  ")
}

func formatField(name string, v float64) string {
	switch {
	case strings.HasSuffix(name, "percent"):
		return formatPercent(v)
	case name == "total" || name == "used" || name == "free" || name == "available" ||
		strings.HasPrefix(name, "bytes_"):
		return formatBytes(v)
	case strings.HasSuffix(name, "_speed") || name == "upload":
		return FormatRate(v)
	case v == float64(int64(v)):
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-1 {
		r = r[:width-1]
	}
	return string(r) + "…"
}

// renderFooter renders the keyboard hints.
func (m Model) renderFooter() string {
	hints := []string{
		"q quit",
		"r restart",
		"m monitoring",
		"tab page",
		"? help",
	}
	return FooterStyle.Render(strings.Join(hints, " | "))
}
