package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/nodewatch/internal/codec"
	"github.com/rileyhilliard/nodewatch/internal/config"
	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/rileyhilliard/nodewatch/internal/lifecycle"
	"github.com/rileyhilliard/nodewatch/internal/logger"
	"github.com/rileyhilliard/nodewatch/internal/monitor"
	"github.com/rileyhilliard/nodewatch/internal/mux"
	"github.com/rileyhilliard/nodewatch/internal/session"
)

// TailOptions holds options for the tail command.
type TailOptions struct {
	Topic   string
	Count   int           // Exit after this many samples; 0 runs until interrupted
	Stats   time.Duration // Print registry stats at this interval; 0 disables
	NoColor bool
}

var tailOpts TailOptions

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print samples from one stream as lines",
	Long: `Subscribe to one metric stream and print every sample, connectivity
change and error as a line. Useful for scripting and for checking a
telemetry source without the dashboard.

Topics: cpu, memory, disk, network, ethernet, wifi, minigraphs.

Examples:
  nodewatch tail
  nodewatch tail --topic disk --count 10
  nodewatch tail --topic network --stats 10s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return tailCommand(ctx, cfg, tailOpts, cmd.OutOrStdout())
	},
}

func init() {
	tailCmd.Flags().StringVar(&tailOpts.Topic, "topic", string(codec.CategoryMinigraphs), "stream topic to follow")
	tailCmd.Flags().IntVarP(&tailOpts.Count, "count", "n", 0, "exit after this many samples")
	tailCmd.Flags().DurationVar(&tailOpts.Stats, "stats", 0, "print stream stats at this interval (e.g. 10s)")
	tailCmd.Flags().BoolVar(&tailOpts.NoColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(tailCmd)
}

// tailCommand follows one stream until ctx ends, a signal arrives or Count
// samples have been printed.
func tailCommand(ctx context.Context, cfg *config.Config, opts TailOptions, out io.Writer) error {
	topic := codec.Category(strings.ToLower(strings.TrimSpace(opts.Topic)))
	if !topic.Valid() {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown topic '%s'", opts.Topic),
			"Use one of: cpu, memory, disk, network, ethernet, wifi, minigraphs")
	}

	log := logger.NewEnvLogger("[tail]")
	holder := newHolder(cfg, log)
	defer holder.Reset()
	registry := holder.Get()

	return follow(ctx, registry, lifecycle.New(log), cfg.Node, topic, opts, newLinePrinter(out, opts.NoColor))
}

// follow subscribes to topic on node and prints until done.
func follow(ctx context.Context, registry *mux.Multiplexer, coord *lifecycle.Coordinator, node string, topic codec.Category, opts TailOptions, p *linePrinter) error {
	done, stop := coord.WatchSignals(ctx)
	defer stop()

	enough := make(chan struct{})
	var once sync.Once
	var seen int
	var mu sync.Mutex

	sub, err := registry.Subscribe(registry.Endpoint(string(topic), node), session.Handlers{
		OnData: func(u session.Update) {
			p.sample(u)
			if opts.Count <= 0 {
				return
			}
			mu.Lock()
			seen++
			reached := seen >= opts.Count
			mu.Unlock()
			if reached {
				once.Do(func() { close(enough) })
			}
		},
		OnError:        p.err,
		OnConnectivity: p.connectivity,
	})
	if err != nil {
		return err
	}
	coord.Bind("tail", "", sub)

	var statsC <-chan time.Time
	if opts.Stats > 0 {
		ticker := time.NewTicker(opts.Stats)
		defer ticker.Stop()
		statsC = ticker.C
	}

	for {
		select {
		case <-done.Done():
			return nil
		case <-enough:
			coord.Unload()
			return nil
		case <-statsC:
			p.stats(registry.Stats())
		}
	}
}

var (
	tailTimeStyle  = lipgloss.NewStyle().Foreground(monitor.ColorTextMuted)
	tailNameStyle  = lipgloss.NewStyle().Foreground(monitor.ColorAccent).Width(14)
	tailValueStyle = lipgloss.NewStyle().Foreground(monitor.ColorTextPrimary).Bold(true).Width(12).Align(lipgloss.Right)
	tailFieldStyle = lipgloss.NewStyle().Foreground(monitor.ColorTextSecondary)
	tailOKStyle    = lipgloss.NewStyle().Foreground(monitor.ColorHealthy)
	tailWarnStyle  = lipgloss.NewStyle().Foreground(monitor.ColorWarning)
	tailErrStyle   = lipgloss.NewStyle().Foreground(monitor.ColorCritical)
)

// linePrinter writes one line per event. Callbacks arrive from stream
// goroutines, so writes are serialized.
type linePrinter struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *lipgloss.Renderer
	now      func() time.Time
}

func newLinePrinter(out io.Writer, noColor bool) *linePrinter {
	r := lipgloss.NewRenderer(out)
	if noColor || !isTerminalWriter(out) {
		r.SetColorProfile(termenv.Ascii)
	}
	return &linePrinter{out: out, renderer: r, now: time.Now}
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return termenv.NewOutput(f).Profile != termenv.Ascii
}

func (p *linePrinter) style(s lipgloss.Style) lipgloss.Style {
	return s.Renderer(p.renderer)
}

func (p *linePrinter) line(parts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts := p.style(tailTimeStyle).Render(p.now().Format("15:04:05"))
	fmt.Fprintln(p.out, strings.TrimRight(ts+" "+strings.Join(parts, " "), " "))
}

func (p *linePrinter) sample(u session.Update) {
	value := fmt.Sprintf("%.1f%%", u.Sample.Value)
	if isRateStream(u) {
		value = monitor.FormatRate(u.Sample.Value)
	}
	p.line(
		p.style(tailNameStyle).Render(u.Stream),
		p.style(tailValueStyle).Render(value),
		p.style(tailFieldStyle).Render(formatFields(u.Sample.Fields)),
	)
}

func (p *linePrinter) connectivity(connected bool) {
	if connected {
		p.line(p.style(tailOKStyle).Render(monitor.GlyphLive + " connected"))
		return
	}
	p.line(p.style(tailWarnStyle).Render(monitor.GlyphDisconnected + " disconnected"))
}

func (p *linePrinter) err(err error) {
	msg := errors.Summarize(err)
	var e *errors.Error
	if stderrors.As(err, &e) && e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	p.line(p.style(tailErrStyle).Render(monitor.GlyphError + " " + msg))
}

func (p *linePrinter) stats(st mux.Stats) {
	state := "on"
	if !st.Enabled {
		state = "off"
	}
	p.line(p.style(tailFieldStyle).Render(fmt.Sprintf(
		"stats monitoring=%s sessions=%d shared=%d subscriptions=%d pending_retries=%d",
		state, st.Sessions, st.SharedSessions, st.Subscriptions, st.PendingRetries)))
}

// isRateStream reports whether u carries a throughput rather than a percentage.
func isRateStream(u session.Update) bool {
	switch u.Category {
	case codec.CategoryNetwork, codec.CategoryEthernet, codec.CategoryWifi:
		return true
	}
	return strings.HasPrefix(u.Stream, "network")
}

// formatFields renders auxiliary fields as sorted key=value pairs.
func formatFields(fields map[string]float64) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if v == float64(int64(v)) {
			parts = append(parts, fmt.Sprintf("%s=%d", k, int64(v)))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%.2f", k, v))
		}
	}
	return strings.Join(parts, " ")
}
