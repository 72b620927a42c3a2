package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/nodewatch/internal/errors"
)

// Reconnect delay bounds. The observed telemetry clients use 3-5s; anything
// outside this window either hammers the server or looks like a hang.
const (
	MinReconnectDelay = time.Second
	MaxReconnectDelay = time.Minute
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but nodewatch only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Grab the latest nodewatch release")
	}

	if err := validateServer(cfg.Server); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'server' section in your .nodewatch.yaml.")
	}

	if err := validateNodeID("node", cfg.Node); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Pass --node or set 'node' in your .nodewatch.yaml.")
	}

	if err := validateStream(cfg.Stream); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'stream' section in your .nodewatch.yaml.")
	}

	return nil
}

// ValidateAgent checks the agent section. Only the agent command needs it.
func ValidateAgent(agent AgentConfig) error {
	if strings.TrimSpace(agent.Listen) == "" {
		return errors.New(errors.ErrConfig,
			"agent.listen is empty",
			"Set something like ':7070' or '127.0.0.1:7070'.")
	}
	if err := validateNodeID("agent.node", agent.Node); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'agent' section in your .nodewatch.yaml.")
	}
	if agent.Interval < 100*time.Millisecond {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("agent.interval %v is too short", agent.Interval),
			"Minimum interval is 100ms.")
	}
	if agent.PingInterval <= 0 {
		return errors.New(errors.ErrConfig,
			"agent.ping_interval must be positive",
			"Try something like '30s'.")
	}
	return nil
}

// validateServer checks the telemetry source location.
func validateServer(s ServerConfig) error {
	if s.Scheme != "ws" && s.Scheme != "wss" {
		return fmt.Errorf("server.scheme '%s' isn't valid - use 'ws' or 'wss'", s.Scheme)
	}
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("server.host is empty - nodewatch needs somewhere to connect")
	}
	if strings.ContainsAny(s.Host, "/ \t?#") {
		return fmt.Errorf("server.host '%s' should be host[:port] without a path", s.Host)
	}
	if s.APIBase != "" && !strings.HasPrefix(s.APIBase, "http://") && !strings.HasPrefix(s.APIBase, "https://") {
		return fmt.Errorf("server.api_base '%s' must start with http:// or https://", s.APIBase)
	}
	return nil
}

// validateNodeID makes sure a node id can be used as a URL path segment.
func validateNodeID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s is empty", field)
	}
	if strings.ContainsAny(id, "/?# \t\n") {
		return fmt.Errorf("%s '%s' can't contain slashes, spaces, '?' or '#'", field, id)
	}
	return nil
}

// validateStream checks buffer and reconnection settings.
func validateStream(s StreamConfig) error {
	if s.BufferSize <= 0 {
		return fmt.Errorf("stream.buffer_size must be positive, got %d", s.BufferSize)
	}
	if s.ReconnectDelay < MinReconnectDelay || s.ReconnectDelay > MaxReconnectDelay {
		return fmt.Errorf("stream.reconnect_delay %v is outside %v..%v", s.ReconnectDelay, MinReconnectDelay, MaxReconnectDelay)
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("stream.max_attempts can't be negative - use 0 to retry forever")
	}
	if s.ReadTimeout < 0 {
		return fmt.Errorf("stream.read_timeout can't be negative - use 0 to disable it")
	}
	if s.HandshakeTimeout < 0 {
		return fmt.Errorf("stream.handshake_timeout can't be negative")
	}
	for _, topic := range s.SharedTopics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("stream.shared_topics has an empty entry - remove it")
		}
	}
	return nil
}
