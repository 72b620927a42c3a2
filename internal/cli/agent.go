package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/nodewatch/internal/agent"
	"github.com/rileyhilliard/nodewatch/internal/config"
	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/rileyhilliard/nodewatch/internal/logger"
)

// Agent command flags
var (
	agentListenFlag   string
	agentIntervalFlag time.Duration
	agentTokenFlag    string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve this machine's metrics over WebSocket",
	Long: `Run a telemetry agent that samples this machine and serves the
metrics over the same WebSocket protocol 'watch' and 'tail' consume.

Routes:
  GET /{domain}/ws/{topic}/{node}?token=...   metric stream
  GET /disk_list/{node}                      disk inventory
  GET /health                                liveness

When a token is configured, streams with a wrong token are closed with
code 1008 and disk_list answers 401.

Examples:
  nodewatch agent
  nodewatch agent --listen 127.0.0.1:7070 --node web-1
  nodewatch agent --interval 2s --token s3cret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(cfgFile)
		if err != nil {
			return err
		}
		applyAgentOverrides(&cfg.Agent, agentListenFlag, nodeFlag, agentTokenFlag, agentIntervalFlag)
		if err := config.ValidateAgent(cfg.Agent); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return agentCommand(ctx, cfg.Agent)
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentListenFlag, "listen", "", "address to listen on (default from config, ':7070')")
	agentCmd.Flags().DurationVar(&agentIntervalFlag, "interval", 0, "sample interval (e.g. 1s, 500ms)")
	agentCmd.Flags().StringVar(&agentTokenFlag, "token", "", "require this token on every request")
	rootCmd.AddCommand(agentCmd)
}

// applyAgentOverrides copies set flags over the agent section.
func applyAgentOverrides(a *config.AgentConfig, listen, node, token string, interval time.Duration) {
	if listen = strings.TrimSpace(listen); listen != "" {
		a.Listen = listen
	}
	if node = strings.TrimSpace(node); node != "" {
		a.Node = node
	}
	if token != "" {
		a.Token = token
	}
	if interval > 0 {
		a.Interval = interval
	}
}

// agentCommand serves until interrupted.
func agentCommand(ctx context.Context, cfg config.AgentConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.NewEnvLogger("[agent]")
	srv := agent.New(agent.Options{
		Node:         cfg.Node,
		Token:        cfg.Token,
		Interval:     cfg.Interval,
		PingInterval: cfg.PingInterval,
		Logger:       log,
	})

	if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
		return errors.WrapWithCode(err, errors.ErrServer,
			fmt.Sprintf("Agent could not serve on %s", cfg.Listen),
			"Check that the address is free, or pick another with --listen")
	}
	return nil
}
