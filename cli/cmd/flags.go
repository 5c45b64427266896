// Package cmd provides CLI commands for the syncbridge binary.
package cmd

import (
	"github.com/urfave/cli/v2"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// configFlags are the flags that resolve a config.Config. Every flag
// overrides the matching config file key only when set explicitly.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to syncbridge.yaml"},
		&cli.StringFlag{Name: "env-file", Usage: "Dotenv file loaded before the config is read", Value: ".env"},
		&cli.StringFlag{Name: "listen", Usage: "Data listener address"},
		&cli.StringFlag{Name: "host", Usage: "Synchronous host: http or fasthttp"},
		&cli.StringFlag{Name: "app", Usage: "Built-in application: echo, hello, stream"},
		&cli.StringFlag{Name: "app-command", Usage: "Run the application out of process (one child per request)"},
		&cli.IntFlag{Name: "workers", Usage: "Concurrent handler invocations"},
		&cli.IntFlag{Name: "queue-depth", Usage: "Requests that may wait for a worker"},
		&cli.StringFlag{Name: "max-body-size", Usage: "Request body cap (e.g. 10MiB)"},
		&cli.StringFlag{Name: "read-chunk-size", Usage: "Largest single body read (e.g. 64KiB)"},
		&cli.IntFlag{Name: "stream-buffer", Usage: "Response chunks buffered per request"},
		&cli.StringFlag{Name: "metrics-listen", Usage: "Address for /metrics and /debug/stats (empty disables)"},
		&cli.DurationFlag{Name: "shutdown-timeout", Usage: "Grace period for in-flight requests on shutdown"},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: json or console"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
	}
}
