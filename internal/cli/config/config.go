// Package config implements the sasctl config command family.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/sas-client/internal/cli/helpers"
	sasconfig "github.com/coral-mesh/sas-client/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd(opts *helpers.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sasctl configuration",
		Long: `Manage sasctl configuration.

Settings are resolved in this order (highest first):
  1. Command line flags (--address, --log-level)
  2. SAS_* environment variables
  3. The config file (--config, default ~/.sas/sasctl.yaml)
  4. Built-in defaults

Environment Variables:
  SAS_CONFIG_DIR   Override config directory (default: ~/.sas)
  SAS_ADDRESS      SAS server address
  SAS_SYSTEM_NAME  System name sent in the handshake
  SAS_LOG_LEVEL    Log level`,
	}

	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newViewCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	return cmd
}

func configPath(opts *helpers.Options) string {
	if opts.ConfigPath != "" {
		return opts.ConfigPath
	}
	return sasconfig.NewLoader().Path()
}

func newInitCmd(opts *helpers.Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Long: `Write a config file populated with defaults: the host name as system name
and a freshly generated UUID as resource identifier.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(opts)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			cfg := sasconfig.Default()
			if opts.Address != "" {
				cfg.Connection.Address = opts.Address
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := sasconfig.NewLoader().Save(path, cfg); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newViewCmd(opts *helpers.Options) *cobra.Command {
	var format string
	formats := []helpers.OutputFormat{helpers.FormatYAML, helpers.FormatJSON}

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, formats); err != nil {
				return err
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			return formatter.Format(cfg, cmd.OutOrStdout())
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatYAML, formats)
	return cmd
}

func newValidateCmd(opts *helpers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.LoadConfig(); err != nil {
				return err
			}
			cmd.Printf("Configuration %s is valid\n", configPath(opts))
			return nil
		},
	}
}
