// Package cli wires the sasctl commands together.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/sas-client/internal/cli/config"
	"github.com/coral-mesh/sas-client/internal/cli/helpers"
	"github.com/coral-mesh/sas-client/internal/cli/listen"
	"github.com/coral-mesh/sas-client/internal/cli/load"
	"github.com/coral-mesh/sas-client/internal/cli/report"
	"github.com/coral-mesh/sas-client/pkg/version"
)

// NewRootCmd builds the sasctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &helpers.Options{}

	rootCmd := &cobra.Command{
		Use:   "sasctl",
		Short: "sasctl - Service Assurance Server client tool",
		Long: `Report trace events and markers to a Service Assurance Server (SAS).

Commands:
- event, marker: report a single message on a new or existing trail
- load: report from many goroutines through one connection
- listen: run a mock SAS server that prints what it receives
- config: create and inspect the sasctl config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.AddFlags(rootCmd)

	rootCmd.AddCommand(report.NewEventCmd(opts))
	rootCmd.AddCommand(report.NewMarkerCmd(opts))
	rootCmd.AddCommand(load.NewLoadCmd(opts))
	rootCmd.AddCommand(listen.NewListenCmd(opts))
	rootCmd.AddCommand(config.NewConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("sasctl version %s\n", version.Version)
			cmd.Printf("Protocol version: %s\n", version.ProtocolVersion)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
