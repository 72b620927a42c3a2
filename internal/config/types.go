package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .nodewatch.yaml configuration file.
type Config struct {
	Version    int              `yaml:"version" mapstructure:"version"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Node       string           `yaml:"node" mapstructure:"node"`
	Credential CredentialConfig `yaml:"credential" mapstructure:"credential"`
	Stream     StreamConfig     `yaml:"stream" mapstructure:"stream"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Agent      AgentConfig      `yaml:"agent" mapstructure:"agent"`
}

// ServerConfig locates the telemetry source.
type ServerConfig struct {
	// Scheme is "ws" or "wss".
	Scheme string `yaml:"scheme" mapstructure:"scheme"`

	// Host is host[:port] of the telemetry source.
	Host string `yaml:"host" mapstructure:"host"`

	// APIBase is the base URL for REST metadata calls (disk enumeration).
	// Derived from Scheme and Host when empty.
	APIBase string `yaml:"api_base" mapstructure:"api_base"`
}

// CredentialConfig tells the credential provider where to find the bearer token.
// Sources are tried in order: Token, TokenEnv, TokenFile.
type CredentialConfig struct {
	Token     string `yaml:"token,omitempty" mapstructure:"token"`
	TokenEnv  string `yaml:"token_env,omitempty" mapstructure:"token_env"`
	TokenFile string `yaml:"token_file,omitempty" mapstructure:"token_file"`
}

// StreamConfig controls session behavior.
type StreamConfig struct {
	// BufferSize is the number of samples retained per metric stream.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size"`

	// ReconnectDelay is the fixed delay between a drop and the retry.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" mapstructure:"reconnect_delay"`

	// MaxAttempts caps consecutive failed retries. 0 retries forever.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// ReadTimeout closes a connection that has been silent this long.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" mapstructure:"handshake_timeout"`

	// SharedTopics are multiplexed: one socket per (host, topic, node) for all consumers.
	SharedTopics []string `yaml:"shared_topics" mapstructure:"shared_topics"`
}

// MonitoringConfig holds the process-wide monitoring switch.
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// AgentConfig configures the bundled telemetry agent.
type AgentConfig struct {
	Listen       string        `yaml:"listen" mapstructure:"listen"`
	Node         string        `yaml:"node" mapstructure:"node"`
	Interval     time.Duration `yaml:"interval" mapstructure:"interval"`
	PingInterval time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	Token        string        `yaml:"token,omitempty" mapstructure:"token"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Server: ServerConfig{
			Scheme: "ws",
			Host:   "localhost:7070",
		},
		Node: "local",
		Credential: CredentialConfig{
			TokenEnv: "NODEWATCH_TOKEN",
		},
		Stream: StreamConfig{
			BufferSize:       60,
			ReconnectDelay:   3 * time.Second,
			MaxAttempts:      0,
			ReadTimeout:      60 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			SharedTopics:     []string{"minigraphs"},
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
		},
		Agent: AgentConfig{
			Listen:       ":7070",
			Node:         "local",
			Interval:     time.Second,
			PingInterval: 30 * time.Second,
		},
	}
}

// APIBaseURL returns the REST base URL, deriving it from the socket scheme when unset.
func (c *Config) APIBaseURL() string {
	if c.Server.APIBase != "" {
		return c.Server.APIBase
	}
	scheme := "http"
	if c.Server.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + c.Server.Host
}

// IsShared reports whether topic is multiplexed.
func (c *Config) IsShared(topic string) bool {
	for _, t := range c.Stream.SharedTopics {
		if t == topic {
			return true
		}
	}
	return false
}
