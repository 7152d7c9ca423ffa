// Package load implements sasctl load, which reports events from many
// goroutines through one client to exercise the delivery path.
package load

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/coral-mesh/sas-client/internal/cli/helpers"
	"github.com/coral-mesh/sas-client/pkg/sas"
)

// Options configures a load run.
type Options struct {
	// Count is the total number of events across all workers.
	Count int
	// Concurrency is the number of reporting goroutines.
	Concurrency int
	// Rate caps events per second across all workers. Zero is unlimited.
	Rate float64
	// Params is the number of static parameters per event.
	Params int
	// EventID is the event ID reported.
	EventID uint32
}

// Summary is the outcome of a load run.
type Summary struct {
	Workers    int     `header:"WORKERS" json:"workers" yaml:"workers"`
	Reported   int     `header:"REPORTED" json:"reported" yaml:"reported"`
	Sent       uint64  `header:"SENT" json:"sent" yaml:"sent"`
	Dropped    uint64  `header:"DROPPED" json:"dropped" yaml:"dropped"`
	Connects   uint64  `header:"CONNECTS" json:"connects" yaml:"connects"`
	Duration   string  `header:"DURATION" json:"duration" yaml:"duration"`
	Throughput float64 `header:"MSG/S" json:"messages_per_second" yaml:"messages_per_second"`
}

var formats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatYAML}

// NewLoadCmd creates the load command.
func NewLoadCmd(opts *helpers.Options) *cobra.Command {
	var (
		o       Options
		timeout time.Duration
		format  string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Report events concurrently to load a SAS server",
		Long: `Start --concurrency workers that share one SAS client. Each worker opens a
trail, reports a start marker, its share of --count events and an end marker.

The command waits for every message to be written before printing a summary.`,
		Example: `  sasctl load --count 10000 --concurrency 8
  sasctl load --count 600 --rate 100 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, formats); err != nil {
				return err
			}
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

			start := time.Now()
			reported, err := Run(cmd.Context(), client, o)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := client.Flush(ctx); err != nil {
				return fmt.Errorf("messages still queued after %s: %w", timeout, err)
			}
			elapsed := time.Since(start)

			stats := client.Stats()
			summary := Summary{
				Workers:    o.Concurrency,
				Reported:   reported,
				Sent:       stats.Sent,
				Dropped:    stats.Dropped,
				Connects:   stats.Connects,
				Duration:   elapsed.Round(time.Millisecond).String(),
				Throughput: float64(stats.Sent) / elapsed.Seconds(),
			}

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			if format == string(helpers.FormatTable) {
				return formatter.Format([]Summary{summary}, cmd.OutOrStdout())
			}
			return formatter.Format(summary, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&o.Count, "count", 1000, "Total events to report")
	flags.IntVar(&o.Concurrency, "concurrency", defaultConcurrency(), "Reporting goroutines (default: logical CPUs)")
	flags.Float64Var(&o.Rate, "rate", 0, "Maximum events per second (0 for unlimited)")
	flags.IntVar(&o.Params, "params", 2, "Static parameters per event")
	flags.Uint32Var(&o.EventID, "id", 0x000001, "Event ID")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for delivery after reporting")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, formats)
	return cmd
}

func defaultConcurrency() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 4
	}
	return n
}

// Run reports o.Count events from o.Concurrency goroutines and returns
// the number of messages reported, markers included.
func Run(ctx context.Context, client *sas.Client, o Options) (int, error) {
	if o.Count < 0 || o.Concurrency < 1 {
		return 0, fmt.Errorf("count must be non-negative and concurrency positive")
	}
	if o.Params < 0 || o.Params > sas.MaxStaticParams {
		return 0, fmt.Errorf("params must be between 0 and %d", sas.MaxStaticParams)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if o.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.Rate), 1)
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := range o.Concurrency {
		share := o.Count / o.Concurrency
		if w < o.Count%o.Concurrency {
			share++
		}
		g.Go(func() error {
			return worker(ctx, client, limiter, o, uint32(w), share)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return o.Count + 2*o.Concurrency, nil
}

func worker(ctx context.Context, client *sas.Client, limiter *rate.Limiter, o Options, w uint32, n int) error {
	trail := client.NewTrail(w)
	client.ReportMarker(sas.NewMarker(trail, sas.MarkerIDStart, w), sas.ScopeNone)

	for i := range n {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		e := sas.NewEvent(trail, o.EventID, uint32(i))
		for p := range o.Params {
			e.AddStaticParam(uint32(p))
		}
		client.ReportEvent(e)
	}

	client.ReportMarker(sas.NewMarker(trail, sas.MarkerIDEnd, w), sas.ScopeNone)
	return nil
}
