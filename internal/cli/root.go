package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/nodewatch/internal/config"
	"github.com/rileyhilliard/nodewatch/internal/credential"
	"github.com/rileyhilliard/nodewatch/internal/logger"
	"github.com/rileyhilliard/nodewatch/internal/mux"
	"github.com/rileyhilliard/nodewatch/internal/transport"
)

// Global flags
var (
	cfgFile  string
	nodeFlag string
	hostFlag string
)

var rootCmd = &cobra.Command{
	Use:   "nodewatch",
	Short: "Live system metrics streamed over WebSocket",
	Long: `nodewatch streams CPU, memory, disk and network metrics from a telemetry
source and renders them as live graphs in the terminal.

Run 'nodewatch agent' on a machine to serve its metrics, then point
'nodewatch watch' or 'nodewatch tail' at it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .nodewatch.yaml or ~/.config/nodewatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeFlag, "node", "", "node id to monitor")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "telemetry source as host[:port]")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if isUnknownCommandError(err) {
			fmt.Fprintf(os.Stderr, "%s\nRun 'nodewatch --help' for usage.\n", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// isUnknownCommandError reports whether cobra rejected the command line itself.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag")
}

// loadConfig resolves the config file, applies flag overrides and validates
// the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, nodeFlag, hostFlag)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies non-empty flag values over the loaded config.
func applyOverrides(cfg *config.Config, node, host string) {
	if node = strings.TrimSpace(node); node != "" {
		cfg.Node = node
	}
	if host = strings.TrimSpace(host); host != "" {
		cfg.Server.Host = host
	}
}

// newMultiplexer builds the stream registry described by cfg.
func newMultiplexer(cfg *config.Config, log logger.Logger) *mux.Multiplexer {
	return mux.New(mux.Options{
		Scheme:       cfg.Server.Scheme,
		Host:         cfg.Server.Host,
		Credential:   credential.FromConfig(cfg.Credential),
		Dialer:       transport.NewWebSocketDialer(cfg.Stream.HandshakeTimeout, cfg.Stream.ReadTimeout),
		BufferSize:   cfg.Stream.BufferSize,
		RetryDelay:   cfg.Stream.ReconnectDelay,
		MaxAttempts:  cfg.Stream.MaxAttempts,
		SharedTopics: cfg.Stream.SharedTopics,
		Disabled:     !cfg.Monitoring.Enabled,
		Logger:       log,
	})
}

// newHolder returns a slot that builds the registry on first use.
func newHolder(cfg *config.Config, log logger.Logger) *mux.Holder {
	return mux.NewHolder(func() *mux.Multiplexer {
		return newMultiplexer(cfg, log)
	})
}
