// Package helpers holds flag, config and output plumbing shared by the
// sasctl commands.
package helpers

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/sas-client/internal/config"
	"github.com/coral-mesh/sas-client/internal/logging"
	"github.com/coral-mesh/sas-client/pkg/sas"
)

// Options are the global flags every command sees.
type Options struct {
	ConfigPath string
	Address    string
	LogLevel   string
}

// AddFlags registers the global flags as persistent flags on cmd.
func (o *Options) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.ConfigPath, "config", "", "Config file (default ~/.sas/sasctl.yaml, or $SAS_CONFIG_DIR/sasctl.yaml)")
	flags.StringVar(&o.Address, "address", "", "SAS server address, host[:port] (overrides config)")
	flags.StringVar(&o.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
}

// LoadConfig loads the config file and applies the flag overrides.
func (o *Options) LoadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Address != "" {
		cfg.Connection.Address = o.Address
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return cfg, cfg.Validate()
}

// Logger builds the command logger, writing to w.
func Logger(cfg *config.Config, w io.Writer, component string) zerolog.Logger {
	return logging.NewWithComponent(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: w,
	}, component)
}

// NewClient creates a SAS client whose diagnostics go to logger.
func NewClient(cfg *config.Config, logger zerolog.Logger) (*sas.Client, error) {
	return sas.New(cfg.SASConfig(sas.LogToZerolog(logger)))
}
