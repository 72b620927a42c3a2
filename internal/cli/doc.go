// Package cli implements the nodewatch command-line interface.
//
// # Command Structure
//
//	nodewatch watch       - Interactive dashboard (requires a terminal)
//	nodewatch tail        - One line per sample, connectivity change or error
//	nodewatch agent       - Serve this machine's metrics over WebSocket
//	nodewatch init        - Create .nodewatch.yaml
//	nodewatch version     - Build information
//	nodewatch completion  - Shell completion scripts
//
// # Flag Handling
//
// Global flags (--config, --node, --host) live on the root command and
// override the loaded config for every subcommand. loadConfig resolves the
// file, applies those overrides and validates the result; the agent command
// validates only its own section.
//
// Commands that consume streams build one mux.Multiplexer from the config
// and register what they open with a lifecycle.Coordinator, so SIGINT and
// SIGTERM close every socket with a normal close code before exit.
package cli
