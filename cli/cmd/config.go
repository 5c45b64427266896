package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/syncbridge/cli/config"
	"github.com/pithecene-io/syncbridge/cli/render"
)

// ConfigCommand prints the configuration serve would run with.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  "Show the resolved configuration (file, env and flags)",
		Flags:  append(ReadOnlyFlags(), configFlags()...),
		Action: configAction,
	}
}

func configAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for config command", 1)
	}

	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	return r.Render(cfg)
}

// loadEnvFile loads a dotenv file into the process environment. A missing
// file is not an error; variables already set are not overwritten.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot load env file %q: %w", path, err)
	}
	return nil
}

// resolveConfig layers defaults, the config file and explicitly set flags,
// then validates the result.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	if err := loadEnvFile(c.String("env-file")); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("app") {
		cfg.App = c.String("app")
	}
	if c.IsSet("app-command") {
		cfg.AppCommand = c.String("app-command")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("queue-depth") {
		cfg.QueueDepth = c.Int("queue-depth")
	}
	if c.IsSet("max-body-size") {
		n, err := config.ParseByteSize(c.String("max-body-size"))
		if err != nil {
			return nil, fmt.Errorf("--max-body-size: %w", err)
		}
		cfg.MaxBodySize = n
	}
	if c.IsSet("read-chunk-size") {
		n, err := config.ParseByteSize(c.String("read-chunk-size"))
		if err != nil {
			return nil, fmt.Errorf("--read-chunk-size: %w", err)
		}
		cfg.ReadChunkSize = n
	}
	if c.IsSet("stream-buffer") {
		cfg.StreamBuffer = c.Int("stream-buffer")
	}
	if c.IsSet("metrics-listen") {
		cfg.MetricsListen = c.String("metrics-listen")
	}
	if c.IsSet("shutdown-timeout") {
		cfg.ShutdownTimeout = config.Duration{Duration: c.Duration("shutdown-timeout")}
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
