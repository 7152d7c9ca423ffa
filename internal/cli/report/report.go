// Package report implements the sasctl event and marker commands, which
// send a single message and wait for it to be written.
package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/sas-client/internal/cli/helpers"
	"github.com/coral-mesh/sas-client/internal/wire"
	"github.com/coral-mesh/sas-client/pkg/sas"
)

// Result describes a reported message.
type Result struct {
	Kind     string `header:"KIND" json:"kind" yaml:"kind"`
	Trail    uint64 `header:"TRAIL" json:"trail" yaml:"trail"`
	ID       string `header:"ID" json:"id" yaml:"id"`
	Instance uint32 `header:"INSTANCE" json:"instance" yaml:"instance"`
	Scope    string `header:"SCOPE" json:"scope,omitempty" yaml:"scope,omitempty"`
	Static   int    `header:"STATIC" json:"static_params" yaml:"static_params"`
	Var      int    `header:"VAR" json:"var_params" yaml:"var_params"`
	Address  string `header:"SERVER" json:"server" yaml:"server"`
}

var formats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatYAML}

type messageFlags struct {
	trail    uint64
	id       uint32
	instance uint32
	static   []string
	vars     []string
	timeout  time.Duration
	format   string
}

func (f *messageFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Uint64Var(&f.trail, "trail", 0, "Trail ID (0 allocates a new trail)")
	flags.Uint32Var(&f.id, "id", 0, "Message ID, decimal or 0x-prefixed hex")
	flags.Uint32Var(&f.instance, "instance", 0, "Instance ID")
	flags.StringSliceVar(&f.static, "static", nil, "Static parameters (comma-separated 32-bit values)")
	flags.StringSliceVar(&f.vars, "var", nil, "Variable parameters (comma-separated strings)")
	flags.DurationVar(&f.timeout, "timeout", 10*time.Second, "How long to wait for delivery")
	helpers.AddFormatFlag(cmd, &f.format, helpers.FormatTable, formats)
	_ = cmd.MarkFlagRequired("id")
}

// fill adds the parameters from the flags to m.
func (f *messageFlags) fill(m *sas.Message) error {
	for _, s := range f.static {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid static parameter %q: %w", s, err)
		}
		m.AddStaticParam(uint32(v))
	}
	for _, s := range f.vars {
		m.AddVarParamString(s)
	}
	if static, variable := m.Rejected(); static+variable > 0 {
		return fmt.Errorf("too many parameters: at most %d static and %d variable", sas.MaxStaticParams, sas.MaxVarParams)
	}
	return nil
}

// NewEventCmd creates the event command.
func NewEventCmd(opts *helpers.Options) *cobra.Command {
	var f messageFlags

	cmd := &cobra.Command{
		Use:   "event",
		Short: "Report a single event",
		Long: `Connect to the SAS server, report one event and wait until it is written.

Only the low 24 bits of --id are used; the server sees 0x0F in the top byte.`,
		Example: `  sasctl event --id 0x000001 --static 42
  sasctl event --trail 17 --id 0x10 --var "INVITE sip:bob@example.com"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(f.format, formats); err != nil {
				return err
			}
			return send(cmd, opts, &f, "event", func(c *sas.Client, trail sas.TrailID) (*sas.Message, func()) {
				e := sas.NewEvent(trail, f.id, f.instance)
				return &e.Message, func() { c.ReportEvent(e) }
			})
		},
	}
	f.register(cmd)
	return cmd
}

// NewMarkerCmd creates the marker command.
func NewMarkerCmd(opts *helpers.Options) *cobra.Command {
	var (
		f     messageFlags
		scope string
	)

	cmd := &cobra.Command{
		Use:   "marker",
		Short: "Report a single marker",
		Long:  `Connect to the SAS server, report one marker and wait until it is written.`,
		Example: `  sasctl marker --trail 17 --id 0x010C0001 --var a84b4c76e66710 --scope trace
  sasctl marker --id 0x01000006 --var 6505550000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(f.format, formats); err != nil {
				return err
			}
			sc, err := wire.ParseScope(scope)
			if err != nil {
				return err
			}
			return send(cmd, opts, &f, "marker", func(c *sas.Client, trail sas.TrailID) (*sas.Message, func()) {
				m := sas.NewMarker(trail, f.id, f.instance)
				return &m.Message, func() { c.ReportMarker(m, sc) }
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&scope, "scope", "none", "Marker scope: none, branch or trace")
	_ = cmd.RegisterFlagCompletionFunc("scope", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"none", "branch", "trace"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// build creates the message for a trail and returns it with the call
// that reports it.
type build func(c *sas.Client, trail sas.TrailID) (*sas.Message, func())

func send(cmd *cobra.Command, opts *helpers.Options, f *messageFlags, kind string, b build) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	logger := helpers.Logger(cfg, cmd.ErrOrStderr(), "sasctl")

	client, err := helpers.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	trail := sas.TrailID(f.trail)
	if trail == 0 {
		trail = client.NewTrail(f.instance)
	}

	msg, report := b(client, trail)
	if err := f.fill(msg); err != nil {
		return err
	}
	report()

	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()
	if err := client.Flush(ctx); err != nil {
		return fmt.Errorf("%s not delivered to %s: %w", kind, client.Address(), err)
	}
	if client.Stats().Dropped > 0 {
		return fmt.Errorf("%s dropped: write to %s failed", kind, client.Address())
	}

	static, variable := len(f.static), len(f.vars)
	res := Result{
		Kind:     kind,
		Trail:    trail,
		ID:       fmt.Sprintf("0x%08X", msg.ID()),
		Instance: msg.Instance(),
		Static:   static,
		Var:      variable,
		Address:  client.Address(),
	}
	if kind == "marker" {
		res.Scope = cmd.Flag("scope").Value.String()
	}

	formatter, err := helpers.NewFormatter(helpers.OutputFormat(f.format))
	if err != nil {
		return err
	}
	if f.format == string(helpers.FormatTable) {
		return formatter.Format([]Result{res}, cmd.OutOrStdout())
	}
	return formatter.Format(res, cmd.OutOrStdout())
}
