package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rileyhilliard/nodewatch/internal/config"
	"github.com/rileyhilliard/nodewatch/internal/credential"
	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/rileyhilliard/nodewatch/internal/inventory"
	"github.com/rileyhilliard/nodewatch/internal/monitor"
)

const probeTimeout = 5 * time.Second

// InitOptions holds options for the init command.
type InitOptions struct {
	Host           string // Telemetry source host[:port]
	Scheme         string // ws or wss
	Node           string // Node id to monitor
	TokenEnv       string // Environment variable holding the token
	Dir            string // Directory to write the config into; defaults to "."
	Overwrite      bool   // Overwrite existing config without asking
	NonInteractive bool   // Skip prompts, use flags/env/defaults
	SkipProbe      bool   // Skip the connection check
	Out            io.Writer
}

// initFile is the subset of Config that init writes.
type initFile struct {
	Version    int                     `yaml:"version"`
	Server     config.ServerConfig     `yaml:"server"`
	Node       string                  `yaml:"node"`
	Credential config.CredentialConfig `yaml:"credential"`
	Monitoring config.MonitoringConfig `yaml:"monitoring"`
}

var initOpts InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .nodewatch.yaml configuration",
	Long: `Create a .nodewatch.yaml file in the current directory.

Prompts for the telemetry source, node id and where the token lives, then
checks the source answers before saving.

Non-interactive mode is used when --non-interactive is set, when
NODEWATCH_NON_INTERACTIVE is set, or when CI is set. Values come from
flags first, then NODEWATCH_SERVER_HOST and NODEWATCH_NODE.

Examples:
  nodewatch init
  nodewatch init --host metrics.internal:7070 --node web-1
  nodewatch init --non-interactive --skip-probe --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initOpts
		opts.Host = hostFlag
		opts.Node = nodeFlag
		opts.Out = cmd.OutOrStdout()
		return Init(mergeInitOptions(opts))
	},
}

func init() {
	initCmd.Flags().StringVar(&initOpts.Scheme, "scheme", "", "socket scheme, ws or wss")
	initCmd.Flags().StringVar(&initOpts.TokenEnv, "token-env", "", "environment variable holding the token")
	initCmd.Flags().BoolVarP(&initOpts.Overwrite, "force", "f", false, "overwrite existing config")
	initCmd.Flags().BoolVar(&initOpts.NonInteractive, "non-interactive", false, "skip prompts")
	initCmd.Flags().BoolVar(&initOpts.SkipProbe, "skip-probe", false, "do not check the telemetry source")
	rootCmd.AddCommand(initCmd)
}

// initDefaults holds values picked up from the environment.
type initDefaults struct {
	Host           string
	Node           string
	NonInteractive bool
}

func getInitDefaults() initDefaults {
	return initDefaults{
		Host:           os.Getenv(config.EnvPrefix + "_SERVER_HOST"),
		Node:           os.Getenv(config.EnvPrefix + "_NODE"),
		NonInteractive: os.Getenv(config.EnvPrefix+"_NON_INTERACTIVE") != "" || os.Getenv("CI") != "",
	}
}

// mergeInitOptions fills empty options from the environment. Flags win.
func mergeInitOptions(opts InitOptions) InitOptions {
	d := getInitDefaults()
	if opts.Host == "" {
		opts.Host = d.Host
	}
	if opts.Node == "" {
		opts.Node = d.Node
	}
	if d.NonInteractive {
		opts.NonInteractive = true
	}
	return opts
}

var (
	initOKStyle   = lipgloss.NewStyle().Foreground(monitor.ColorHealthy)
	initFailStyle = lipgloss.NewStyle().Foreground(monitor.ColorCritical)
)

// Init writes a new .nodewatch.yaml.
func Init(opts InitOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	configPath := filepath.Join(dir, config.ConfigFileName)

	if _, err := os.Stat(configPath); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("There's already a config file at %s", configPath),
				"Use --force to overwrite it")
		}

		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Scheme != "" {
		cfg.Server.Scheme = opts.Scheme
	}
	if opts.Node != "" {
		cfg.Node = opts.Node
	}
	if opts.TokenEnv != "" {
		cfg.Credential.TokenEnv = opts.TokenEnv
	}

	if !opts.NonInteractive {
		if err := promptConfig(cfg); err != nil {
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}

	if !opts.SkipProbe {
		if err := probeSource(cfg, out); err != nil {
			if opts.NonInteractive || !confirmSaveAnyway() {
				return err
			}
		}
	}

	data, err := yaml.Marshal(initFile{
		Version:    cfg.Version,
		Server:     cfg.Server,
		Node:       cfg.Node,
		Credential: cfg.Credential,
		Monitoring: cfg.Monitoring,
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to generate config",
			"This shouldn't happen - please report this bug")
	}

	header := `# nodewatch configuration
# Run 'nodewatch watch' for the dashboard or 'nodewatch tail' for line output.
# Stream tuning (buffer_size, reconnect_delay, max_attempts) lives under 'stream'.

`
	if err := os.WriteFile(configPath, []byte(header+string(data)), 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to write config file: %s", configPath),
			"Check directory permissions")
	}

	fmt.Fprintf(out, "%s Created %s\n\n", initOKStyle.Render("✓"), configPath)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  nodewatch agent   - Serve this machine's metrics")
	fmt.Fprintln(out, "  nodewatch watch   - Open the dashboard")
	fmt.Fprintln(out, "  nodewatch tail    - Print samples as lines")
	return nil
}

// promptConfig asks for the values init writes, prefilled from cfg.
func promptConfig(cfg *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telemetry source").
				Description("host:port of the agent or metrics server").
				Placeholder("localhost:7070").
				Value(&cfg.Server.Host).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("host is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Scheme").
				Options(
					huh.NewOption("ws (plain)", "ws"),
					huh.NewOption("wss (TLS)", "wss"),
				).
				Value(&cfg.Server.Scheme),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Node id").
				Description("The node whose metrics you want to watch").
				Value(&cfg.Node).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("node id is required")
					}
					if strings.ContainsAny(s, " /?#") {
						return fmt.Errorf("node id cannot contain spaces or URL separators")
					}
					return nil
				}),
			huh.NewInput().
				Title("Token variable").
				Description("Environment variable that holds the access token (leave empty for none)").
				Value(&cfg.Credential.TokenEnv),
		),
	)

	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or use --non-interactive")
	}
	return nil
}

// probeSource asks the source for the node's disk list to prove it is
// reachable and accepts the credential.
func probeSource(cfg *config.Config, out io.Writer) error {
	fmt.Fprintf(out, "Checking %s ... ", cfg.APIBaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	client := inventory.NewClient(cfg.APIBaseURL(), credential.FromConfig(cfg.Credential), probeTimeout)
	if _, err := client.Disks(ctx, cfg.Node); err != nil {
		fmt.Fprintln(out, initFailStyle.Render("failed"))
		fmt.Fprintf(out, "%s %s\n", initFailStyle.Render("✗"), errors.Summarize(err))
		return err
	}
	fmt.Fprintln(out, initOKStyle.Render("ok"))
	return nil
}

func confirmSaveAnyway() bool {
	var save bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save config anyway? (You can fix the connection later)").
				Value(&save),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return save
}
