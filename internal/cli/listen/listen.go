// Package listen implements sasctl listen, a mock SAS server that prints
// every frame it receives.
package listen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/sas-client/internal/cli/helpers"
	"github.com/coral-mesh/sas-client/internal/sasserver"
	"github.com/coral-mesh/sas-client/internal/wire"
)

// Line is the JSON form of one received frame.
type Line struct {
	Conn     int       `json:"conn"`
	Received time.Time `json:"received"`
	Type     string    `json:"type"`
	Sent     time.Time `json:"sent"`
	Trail    uint64    `json:"trail"`
	ID       string    `json:"id"`
	Instance uint32    `json:"instance"`
	Scope    string    `json:"scope,omitempty"`
	Static   []uint32  `json:"static"`
	Var      []string  `json:"var"`
	Digest   string    `json:"digest"`
}

// NewLine converts a server record for printing.
func NewLine(r sasserver.Record) Line {
	f := r.Frame
	l := Line{
		Conn:     r.Conn,
		Received: r.Received,
		Type:     wire.TypeName(f.Type),
		Sent:     f.Timestamp,
		Trail:    f.Message.Trail,
		ID:       fmt.Sprintf("0x%08X", f.Message.ID),
		Instance: f.Message.Instance,
		Static:   f.Message.Static,
		Var:      make([]string, len(f.Message.Var)),
		Digest:   fmt.Sprintf("%016x", r.Digest),
	}
	if f.Type == wire.TypeMarker {
		l.Scope = f.Scope.String()
	}
	if l.Static == nil {
		l.Static = []uint32{}
	}
	for i, v := range f.Message.Var {
		l.Var[i] = string(v)
	}
	return l
}

// printer writes one JSON object per line.
type printer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newPrinter(w io.Writer) *printer {
	return &printer{enc: json.NewEncoder(w)}
}

func (p *printer) print(r sasserver.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(NewLine(r))
}

// NewListenCmd creates the listen command.
func NewListenCmd(opts *helpers.Options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a mock SAS server",
		Long: `Run a mock SAS server that accepts client connections, checks the init
handshake and prints every event and marker as one JSON object per line.

Connections and handshakes are logged to stderr. Stop with Ctrl-C.`,
		Example: `  sasctl listen --addr :6761
  sasctl listen --addr 127.0.0.1:7000 | jq .trail`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Listen.Address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := helpers.Logger(cfg, cmd.ErrOrStderr(), "sasctl")
			return Run(ctx, sasserver.New(logger), addr, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :6761)")
	return cmd
}

// Run serves on addr until ctx ends, printing frames to out.
func Run(ctx context.Context, srv *sasserver.Server, addr string, out io.Writer) error {
	p := newPrinter(out)
	srv.OnFrame(p.print)
	if err := srv.Start(addr); err != nil {
		return err
	}

	<-ctx.Done()
	return srv.Close()
}
