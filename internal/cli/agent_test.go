package cli

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"github.com/rileyhilliard/nodewatch/internal/config"
	"github.com/rileyhilliard/nodewatch/internal/errors"
)

func TestApplyAgentOverrides(t *testing.T) {
	tests := []struct {
		name     string
		listen   string
		node     string
		token    string
		interval time.Duration
		want     config.AgentConfig
	}{
		{
			name: "no flags keep config",
			want: config.DefaultConfig().Agent,
		},
		{
			name:     "all flags",
			listen:   "127.0.0.1:9000",
			node:     "web-1",
			token:    "s3cret",
			interval: 2 * time.Second,
			want: config.AgentConfig{
				Listen:       "127.0.0.1:9000",
				Node:         "web-1",
				Interval:     2 * time.Second,
				PingInterval: 30 * time.Second,
				Token:        "s3cret",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := config.DefaultConfig().Agent
			applyAgentOverrides(&a, tt.listen, tt.node, tt.token, tt.interval)
			assert.Equal(t, tt.want, a)
		})
	}
}

func TestAgentCommand_StopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig().Agent
	cfg.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- agentCommand(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestAgentCommand_BadAddress(t *testing.T) {
	cfg := config.DefaultConfig().Agent
	cfg.Listen = "256.0.0.1:http-nope"

	err := agentCommand(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrServer))
}

func TestWatchCommand_RequiresTerminal(t *testing.T) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		t.Skip("stdout is a terminal")
	}

	err := watchCommand(context.Background(), config.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive terminal")
}
