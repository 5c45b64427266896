package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/syncbridge/cli/reader"
	"github.com/pithecene-io/syncbridge/cli/render"
	"github.com/pithecene-io/syncbridge/cli/tui"
)

// DefaultStatsAddr is where stats looks for a server when --addr is not set.
const DefaultStatsAddr = "127.0.0.1:9100"

// StatsCommand returns the stats command.
// Stats reads a running server's metrics listener; it never starts one.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show request, failure and pool statistics of a running server",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Metrics listener of the server (host:port or URL)",
				Value:   DefaultStatsAddr,
				EnvVars: []string{"SYNCBRIDGE_METRICS_ADDR"},
			},
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "TUI refresh interval",
				Value: tui.DefaultRefresh,
			},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	rd := reader.NewHTTPReader(c.String("addr"))
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStats, &tui.StatsFeed{Reader: rd, Interval: c.Duration("refresh")})
	}

	stats, err := fetchStats(c.Context, rd)
	if err != nil {
		return cli.Exit(err.Error(), exitServeError)
	}
	return r.Render(stats)
}

func fetchStats(ctx context.Context, rd reader.Reader) (*reader.Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, reader.DefaultTimeout)
	defer cancel()

	stats, err := rd.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats unavailable: %w", err)
	}
	return stats, nil
}
