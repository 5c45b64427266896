package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/syncbridge/cli/render"
	"github.com/pithecene-io/syncbridge/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version             string `json:"version" yaml:"version"`
	Commit              string `json:"commit" yaml:"commit"`
	ProtocolVersion     string `json:"protocol_version" yaml:"protocol_version"`
	ProtocolSpecVersion string `json:"protocol_spec_version" yaml:"protocol_spec_version"`
}

// VersionCommand returns the version command.
// It must not contact a running server.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(newVersionResponse(commit))
	}
}

func newVersionResponse(commit string) VersionResponse {
	return VersionResponse{
		Version:             types.Version,
		Commit:              commit,
		ProtocolVersion:     types.ProtocolVersion,
		ProtocolSpecVersion: types.ProtocolSpecVersion,
	}
}
