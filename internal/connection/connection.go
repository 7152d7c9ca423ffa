// Package connection owns the single socket to the SAS server.
//
// A Manager runs one writer goroutine that connects, sends the init
// handshake, and then drains the delivery queue onto the socket. Any
// connect or write failure sends the writer back to connecting after the
// reconnect backoff. A frame whose write fails is dropped, not requeued, so
// each frame is delivered at most once.
//
// The socket is only ever used from the writer goroutine. Close cancels the
// writer's context, which also closes the socket to interrupt a write in
// progress, closes the queue, and waits for the writer to exit.
package connection

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coral-mesh/sas-client/internal/constants"
	"github.com/coral-mesh/sas-client/internal/logging"
	"github.com/coral-mesh/sas-client/internal/queue"
	"github.com/coral-mesh/sas-client/internal/retry"
	"github.com/coral-mesh/sas-client/internal/wire"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateShutdown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config configures a Manager.
type Config struct {
	// Address is the SAS server as host:port.
	Address string

	// Hello identifies this system in the init handshake. Its timestamp is
	// set on every connect.
	Hello wire.Hello

	// SendTimeout bounds each frame write. Defaults to 30s.
	SendTimeout time.Duration

	// DialTimeout bounds each connection attempt. Defaults to 10s.
	DialTimeout time.Duration

	// Reconnect sets the delay between failed connection attempts.
	// MaxRetries is ignored: the writer retries until Close.
	Reconnect retry.Config

	// Dialer defaults to a net.Dialer.
	Dialer Dialer

	// Logger receives connection diagnostics.
	Logger logging.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats is a snapshot of connection counters.
type Stats struct {
	State           State
	FramesSent      uint64
	FramesDropped   uint64
	Connects        uint64
	ConnectFailures uint64
}

// Manager runs the writer loop for one SAS connection.
type Manager struct {
	cfg   Config
	queue *queue.Queue
	log   logging.Logger

	state           atomic.Int32
	framesSent      atomic.Uint64
	framesDropped   atomic.Uint64
	connects        atomic.Uint64
	connectFailures atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
}

// New creates a Manager that drains q. Call Start to begin connecting.
func New(cfg Config, q *queue.Queue) *Manager {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = constants.DefaultSendTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = constants.DefaultDialTimeout
	}
	if cfg.Reconnect.InitialBackoff <= 0 {
		cfg.Reconnect.InitialBackoff = constants.DefaultReconnectInterval
	}
	if cfg.Reconnect.MaxBackoff <= 0 {
		cfg.Reconnect.MaxBackoff = constants.DefaultMaxReconnectInterval
	}
	cfg.Reconnect.MaxRetries = 0
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:    cfg,
		queue:  q,
		log:    cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the writer goroutine. Calling it more than once has no
// effect.
func (m *Manager) Start() {
	if m.ctx.Err() != nil || !m.started.CompareAndSwap(false, true) {
		return
	}
	m.setState(StateConnecting)
	go m.run()
}

// Close shuts the connection down and waits for the writer to exit.
// Frames still queued are discarded. Safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.log.Statusf("Shutting down SAS connection to %s", m.cfg.Address)
		m.cancel()
		m.queue.Close()
		if m.started.Load() {
			<-m.done
		}
		m.setState(StateShutdown)
	})
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns a snapshot of the connection counters.
func (m *Manager) Stats() Stats {
	return Stats{
		State:           m.State(),
		FramesSent:      m.framesSent.Load(),
		FramesDropped:   m.framesDropped.Load(),
		Connects:        m.connects.Load(),
		ConnectFailures: m.connectFailures.Load(),
	}
}

func (m *Manager) setState(s State) {
	if old := State(m.state.Swap(int32(s))); old != s {
		m.log.Debugf("SAS connection %s -> %s", old, s)
	}
}

// link is a connected socket plus the hook that closes it on shutdown.
// Once watched, ctx ends when the server closes its side.
type link struct {
	conn   net.Conn
	stop   func() bool
	ctx    context.Context
	cancel context.CancelFunc
	reader chan struct{}
}

// watch reads and discards anything the server sends so that a peer close
// is noticed while the writer is idle.
func (l *link) watch() {
	go func() {
		defer close(l.reader)
		defer l.cancel()
		_, _ = io.Copy(io.Discard, l.conn)
	}()
}

func (l *link) close() {
	l.stop()
	l.cancel()
	_ = l.conn.Close()
	if l.reader != nil {
		<-l.reader
	}
}

func (m *Manager) run() {
	defer close(m.done)

	for {
		l, err := m.connectWithRetry()
		if err != nil {
			// Only a canceled context ends the retry loop.
			return
		}

		m.serve(l)
		l.close()

		if m.ctx.Err() != nil {
			return
		}
		select {
		case <-m.queue.Done():
			return
		default:
		}
		m.setState(StateConnecting)
	}
}

// connectWithRetry dials until a connection completes its handshake or
// the manager is closed.
func (m *Manager) connectWithRetry() (*link, error) {
	var l *link
	err := retry.Do(m.ctx, m.cfg.Reconnect, func() error {
		m.setState(StateConnecting)
		var err error
		l, err = m.connect()
		if err != nil {
			if m.ctx.Err() != nil {
				return m.ctx.Err()
			}
			m.connectFailures.Add(1)
			m.setState(StateDisconnected)
			m.log.Warningf("Failed to connect to SAS %s, retrying in %s: %v",
				m.cfg.Address, retry.Backoff(m.cfg.Reconnect, 1), err)
			return err
		}
		return nil
	}, func(error) bool {
		return m.ctx.Err() == nil
	})
	return l, err
}

// connect dials the server and sends the init handshake.
func (m *Manager) connect() (*link, error) {
	dialCtx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
	defer cancel()

	conn, err := m.cfg.Dialer.DialContext(dialCtx, "tcp", m.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	linkCtx, linkCancel := context.WithCancel(m.ctx)
	l := &link{
		conn:   conn,
		stop:   context.AfterFunc(m.ctx, func() { _ = conn.Close() }),
		ctx:    linkCtx,
		cancel: linkCancel,
	}

	hello := m.cfg.Hello
	hello.Timestamp = m.cfg.Now()
	frame, err := wire.EncodeInit(hello)
	if err != nil {
		l.close()
		return nil, fmt.Errorf("encode init: %w", err)
	}
	if err := m.write(conn, frame); err != nil {
		l.close()
		return nil, fmt.Errorf("send init: %w", err)
	}

	l.reader = make(chan struct{})
	l.watch()

	m.connects.Add(1)
	m.setState(StateConnected)
	m.log.Statusf("Connected to SAS %s", m.cfg.Address)
	return l, nil
}

// serve writes queued frames until a write fails, the server hangs up, the
// queue closes or the manager is closed.
func (m *Manager) serve(l *link) {
	for {
		frame, ok := m.queue.Pop(l.ctx)
		if !ok {
			if m.ctx.Err() == nil && l.ctx.Err() != nil {
				m.setState(StateDisconnected)
				m.log.Warningf("SAS %s closed the connection, reconnecting", m.cfg.Address)
			}
			return
		}

		if err := m.write(l.conn, frame); err != nil {
			m.framesDropped.Add(1)
			if m.ctx.Err() != nil {
				m.log.Debugf("Write of %d byte frame interrupted by shutdown", len(frame))
				return
			}
			m.setState(StateDisconnected)
			m.log.Errorf("Failed to send %d byte frame to SAS %s, frame dropped, reconnecting: %v",
				len(frame), m.cfg.Address, err)
			return
		}
		m.framesSent.Add(1)
	}
}

// write sends the whole frame under the send timeout.
func (m *Manager) write(conn net.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(m.cfg.SendTimeout)); err != nil {
		return err
	}
	n, err := conn.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}
