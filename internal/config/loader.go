package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".nodewatch.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/nodewatch"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix is the prefix for environment overrides (NODEWATCH_SERVER_HOST, ...).
	EnvPrefix = "NODEWATCH"
)

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'nodewatch init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .nodewatch.yaml in current directory
// 3. .nodewatch.yaml in parent directories (stops at home)
// 4. ~/.config/nodewatch/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	home, _ := os.UserHomeDir()
	dir := cwd
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir || (home != "" && dir == home) {
			break
		}
		dir = parent
	}

	if home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault loads config from the found path, or returns defaults (with
// environment overrides applied) if no file exists.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return parseConfig(newViper(), "")
	}

	return Load(path)
}

// newViper returns a viper instance with defaults and env overrides wired up.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		source := "the environment"
		if path != "" {
			source = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+source)
	}

	cfg.Credential.TokenFile = ExpandTilde(cfg.Credential.TokenFile)

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("server.scheme", d.Server.Scheme)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.api_base", d.Server.APIBase)
	v.SetDefault("node", d.Node)
	v.SetDefault("credential.token", d.Credential.Token)
	v.SetDefault("credential.token_env", d.Credential.TokenEnv)
	v.SetDefault("credential.token_file", d.Credential.TokenFile)
	v.SetDefault("stream.buffer_size", d.Stream.BufferSize)
	v.SetDefault("stream.reconnect_delay", d.Stream.ReconnectDelay)
	v.SetDefault("stream.max_attempts", d.Stream.MaxAttempts)
	v.SetDefault("stream.read_timeout", d.Stream.ReadTimeout)
	v.SetDefault("stream.handshake_timeout", d.Stream.HandshakeTimeout)
	v.SetDefault("stream.shared_topics", d.Stream.SharedTopics)
	v.SetDefault("monitoring.enabled", d.Monitoring.Enabled)
	v.SetDefault("agent.listen", d.Agent.Listen)
	v.SetDefault("agent.node", d.Agent.Node)
	v.SetDefault("agent.interval", d.Agent.Interval)
	v.SetDefault("agent.ping_interval", d.Agent.PingInterval)
	v.SetDefault("agent.token", d.Agent.Token)
}

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax.
func ExpandTilde(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}

	return path
}
