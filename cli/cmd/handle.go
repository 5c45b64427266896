package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/syncbridge/apps"
	"github.com/pithecene-io/syncbridge/procapp"
)

// HandleCommand runs one request of a built-in application over the frame
// protocol on stdin/stdout. It is the child side of app_command, so
//
//	syncbridge serve --app-command "syncbridge handle --app echo"
//
// serves echo out of process.
func HandleCommand() *cli.Command {
	return &cli.Command{
		Name:   "handle",
		Usage:  "Handle one framed request on stdin/stdout (child side of --app-command)",
		Hidden: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "app", Usage: "Built-in application: echo, hello, stream", Value: "hello"},
		},
		Action: handleAction,
	}
}

func handleAction(c *cli.Context) error {
	app, err := apps.Lookup(c.String("app"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stdout carries frames; errors go to stderr, which the parent captures.
	if err := procapp.ServeChild(ctx, app, os.Stdin, os.Stdout); err != nil {
		return cli.Exit(err.Error(), exitServeError)
	}
	return nil
}
