package sas

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coral-mesh/sas-client/internal/connection"
	"github.com/coral-mesh/sas-client/internal/constants"
	"github.com/coral-mesh/sas-client/internal/logging"
	"github.com/coral-mesh/sas-client/internal/queue"
	"github.com/coral-mesh/sas-client/internal/retry"
	"github.com/coral-mesh/sas-client/internal/trail"
	"github.com/coral-mesh/sas-client/internal/wire"
)

// TrailID identifies a trail. IDs are unique within the process.
type TrailID = trail.ID

// ErrInvalidConfig is returned by New and Init for unusable settings.
var ErrInvalidConfig = errors.New("invalid SAS configuration")

// trails is shared by every Client so IDs never repeat within a process.
var trails = trail.NewGenerator(1)

// Dialer opens the connection to the server. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config configures a Client.
type Config struct {
	// SystemName, SystemType and ResourceIdentifier identify this system
	// to the server. Each is required and at most 255 bytes.
	SystemName         string
	SystemType         string
	ResourceIdentifier string

	// Address is the server as host or host:port. The port defaults to
	// 6761.
	Address string

	// LogCallback receives diagnostics. Nil discards them.
	LogCallback LogCallback

	// QueueCapacity bounds the frames waiting to be sent. Defaults to 1000.
	QueueCapacity int

	// SendTimeout bounds each socket write. Defaults to 30s.
	SendTimeout time.Duration

	// DialTimeout bounds each connection attempt. Defaults to 10s.
	DialTimeout time.Duration

	// ReconnectInterval is the wait after the first failed connection
	// attempt. It doubles on each further failure up to
	// MaxReconnectInterval. Both default to 10s, giving a fixed cadence.
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration

	// Dialer overrides how connections are opened. When set, the address
	// is not resolved up front.
	Dialer Dialer
}

// Stats is a snapshot of client counters.
type Stats struct {
	// State is the connection state: disconnected, connecting, connected
	// or shutdown.
	State      string
	QueueDepth int

	Queued          uint64
	Sent            uint64
	Dropped         uint64
	Discarded       uint64
	EncodeFailures  uint64
	RejectedParams  uint64
	Connects        uint64
	ConnectFailures uint64
}

// Client reports messages over one SAS connection. It is safe for
// concurrent use.
type Client struct {
	address string
	log     logging.Logger
	queue   *queue.Queue
	conn    *connection.Manager

	encodeFailures atomic.Uint64
	rejectedParams atomic.Uint64

	closeOnce sync.Once
}

// New validates cfg, starts the connection writer and returns the client.
// The connection is established in the background.
func New(cfg Config) (*Client, error) {
	if err := validateIdentity(cfg); err != nil {
		return nil, err
	}
	cfg = withDefaults(cfg)

	address, err := normalizeAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	if cfg.Dialer == nil {
		if err := resolve(address, cfg.DialTimeout); err != nil {
			return nil, err
		}
	}

	log := logging.NewLogger(cfg.LogCallback, "sas")
	q := queue.New(cfg.QueueCapacity)

	connCfg := connection.Config{
		Address: address,
		Hello: wire.Hello{
			SystemName:         cfg.SystemName,
			SystemType:         cfg.SystemType,
			ResourceIdentifier: cfg.ResourceIdentifier,
			Version:            constants.ProtocolVersion,
		},
		SendTimeout: cfg.SendTimeout,
		DialTimeout: cfg.DialTimeout,
		Reconnect: retry.Config{
			InitialBackoff: cfg.ReconnectInterval,
			MaxBackoff:     cfg.MaxReconnectInterval,
		},
		Logger: log.With("sas.connection"),
	}
	if cfg.Dialer != nil {
		connCfg.Dialer = cfg.Dialer
	}

	c := &Client{
		address: address,
		log:     log,
		queue:   q,
		conn:    connection.New(connCfg, q),
	}
	c.conn.Start()

	log.Statusf("SAS client %s (%s, %s) reporting to %s",
		cfg.SystemName, cfg.SystemType, cfg.ResourceIdentifier, address)
	return c, nil
}

// Close stops the writer and closes the connection. Frames not yet sent
// are discarded. Reports made after Close are dropped. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		s := c.Stats()
		c.log.Statusf("SAS client closed: %d sent, %d dropped, %d discarded",
			s.Sent, s.Dropped, s.Discarded)
	})
	return err
}

// Flush waits until every frame queued so far has been written or
// dropped, or ctx ends.
func (c *Client) Flush(ctx context.Context) error {
	target := c.queue.Stats().Pushed
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		cs := c.conn.Stats()
		if cs.FramesSent+cs.FramesDropped+c.queue.Stats().Discarded >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Address returns the normalized server address.
func (c *Client) Address() string {
	return c.address
}

// NewTrail allocates a trail ID. instance is only logged.
func (c *Client) NewTrail(instance uint32) TrailID {
	id := trails.Next()
	c.log.Debugf("Allocated trail %d for instance %d", id, instance)
	return id
}

// ReportEvent encodes e and queues it for sending. It blocks only while
// the queue is full.
func (c *Client) ReportEvent(e *Event) {
	if e == nil {
		return
	}
	c.report("event", &e.Message, func(ts time.Time) ([]byte, error) {
		return wire.EncodeEvent(e.wire(), ts)
	})
}

// ReportMarker encodes m with the given scope and queues it for sending.
func (c *Client) ReportMarker(m *Marker, scope Scope) {
	if m == nil {
		return
	}
	c.report("marker", &m.Message, func(ts time.Time) ([]byte, error) {
		return wire.EncodeMarker(m.wire(), scope, ts)
	})
}

func (c *Client) report(kind string, m *Message, encode func(time.Time) ([]byte, error)) {
	if static, variable := m.Rejected(); static+variable > 0 {
		c.rejectedParams.Add(uint64(static + variable))
		c.log.Errorf("%s 0x%08X on trail %d exceeded parameter limits: %d static and %d variable parameters rejected",
			kind, m.id, m.trail, static, variable)
	}

	frame, err := encode(time.Now())
	if err != nil {
		c.encodeFailures.Add(1)
		c.log.Errorf("Failed to encode %s 0x%08X on trail %d, dropped: %v", kind, m.id, m.trail, err)
		return
	}

	if err := c.queue.Push(context.Background(), frame); err != nil {
		c.log.Warningf("Dropping %s 0x%08X on trail %d: %v", kind, m.id, m.trail, err)
		return
	}
	c.log.Debugf("Queued %s 0x%08X on trail %d (%d bytes)", kind, m.id, m.trail, len(frame))
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	qs := c.queue.Stats()
	cs := c.conn.Stats()
	return Stats{
		State:           cs.State.String(),
		QueueDepth:      qs.Depth,
		Queued:          qs.Pushed,
		Sent:            cs.FramesSent,
		Dropped:         cs.FramesDropped,
		Discarded:       qs.Discarded,
		EncodeFailures:  c.encodeFailures.Load(),
		RejectedParams:  c.rejectedParams.Load(),
		Connects:        cs.Connects,
		ConnectFailures: cs.ConnectFailures,
	}
}

func validateIdentity(cfg Config) error {
	fields := []struct {
		name, value string
	}{
		{"system name", cfg.SystemName},
		{"system type", cfg.SystemType},
		{"resource identifier", cfg.ResourceIdentifier},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, f.name)
		}
		if len(f.value) > constants.MaxIdentityLength {
			return fmt.Errorf("%w: %s is %d bytes (max %d)",
				ErrInvalidConfig, f.name, len(f.value), constants.MaxIdentityLength)
		}
	}
	return nil
}

func withDefaults(cfg Config) Config {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = constants.DefaultQueueCapacity
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = constants.DefaultSendTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = constants.DefaultDialTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = constants.DefaultReconnectInterval
	}
	if cfg.MaxReconnectInterval < cfg.ReconnectInterval {
		cfg.MaxReconnectInterval = max(cfg.ReconnectInterval, constants.DefaultMaxReconnectInterval)
	}
	return cfg
}

// normalizeAddress returns address as host:port, adding the default SAS
// port when none is given.
func normalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host = strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
		port = constants.DefaultSASPort
	}
	if host == "" {
		return "", fmt.Errorf("%w: address %q has no host", ErrInvalidConfig, address)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", fmt.Errorf("%w: address %q has invalid port %q", ErrInvalidConfig, address, port)
	}
	return net.JoinHostPort(host, port), nil
}

func resolve(address string, timeout time.Duration) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return fmt.Errorf("%w: cannot resolve %q: %v", ErrInvalidConfig, host, err)
	}
	return nil
}
