package cli

import (
	"context"
	stderrors "errors"
	"io"
	stdlog "log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/nodewatch/internal/config"
	"github.com/rileyhilliard/nodewatch/internal/credential"
	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/rileyhilliard/nodewatch/internal/inventory"
	"github.com/rileyhilliard/nodewatch/internal/lifecycle"
	"github.com/rileyhilliard/nodewatch/internal/logger"
	"github.com/rileyhilliard/nodewatch/internal/monitor"
)

const debugLogFile = "nodewatch-debug.log"

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live metrics dashboard for one node",
	Long: `Open an interactive dashboard with an overview sidebar and one detail
page per metric domain (CPU, memory, disk, network, ethernet, Wi-Fi).

The sidebar shares a single stream for the node; each detail page opens its
own stream, which is closed when you switch away.

Keyboard shortcuts:
  q / Ctrl+C      Quit
  r               Restart streams and clear graphs
  m               Toggle monitoring on or off
  tab / l / →     Next page
  S-tab / h / ←   Previous page
  1-9             Jump to page
  ?               Show help

Set NODEWATCH_DEBUG=1 to write a debug log to ` + debugLogFile + `.

Examples:
  nodewatch watch
  nodewatch watch --node web-1 --host metrics.internal:7070`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return watchCommand(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchCommand runs the dashboard until the user quits or a signal arrives.
func watchCommand(ctx context.Context, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New(errors.ErrConfig,
			"watch needs an interactive terminal",
			"Use 'nodewatch tail' for piped or non-interactive output.")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// The alt screen owns the terminal; send log output to a file or nowhere.
	if os.Getenv(logger.DebugEnv) != "" {
		f, err := tea.LogToFile(debugLogFile, "nodewatch")
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot open debug log "+debugLogFile,
				"Check write permissions in the current directory")
		}
		defer f.Close()
	} else {
		stdlog.SetOutput(io.Discard)
		defer stdlog.SetOutput(os.Stderr)
	}

	log := logger.NewEnvLogger("[watch]")
	holder := newHolder(cfg, log)
	defer holder.Reset()
	registry := holder.Get()

	coord := lifecycle.New(log)
	done, stop := coord.WatchSignals(ctx)
	defer stop()

	model := monitor.NewModel(monitor.Options{
		Mux:         registry,
		Coordinator: coord,
		Node:        cfg.Node,
		Inventory:   inventory.NewClient(cfg.APIBaseURL(), credential.FromConfig(cfg.Credential), inventory.DefaultTimeout),
		RetryDelay:  cfg.Stream.ReconnectDelay,
		Logger:      log,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(done))
	_, err := p.Run()
	coord.Unload()
	if err != nil && !stderrors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "Dashboard exited unexpectedly")
	}
	return nil
}
