// Package sasserver implements a minimal SAS endpoint that accepts client
// connections, checks the init handshake and decodes every frame that
// follows. It backs the sasctl listen command and the client tests.
package sasserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	sErrors "github.com/coral-mesh/sas-client/internal/errors"
	"github.com/coral-mesh/sas-client/internal/wire"
)

// Record is one frame received after a successful handshake.
type Record struct {
	// Conn numbers connections in accept order, starting at 1.
	Conn     int
	Received time.Time
	Frame    *wire.Frame
	Raw      []byte
	// Digest is the xxh3 hash of Raw, used to spot duplicate deliveries.
	Digest uint64
}

// Server is a mock SAS server.
type Server struct {
	logger   zerolog.Logger
	listener net.Listener
	addr     string

	mu      sync.Mutex
	hellos  []wire.Hello
	records []Record
	conns   map[net.Conn]struct{}
	nextID  int
	changed chan struct{}
	onFrame func(Record)
	closed  bool

	wg sync.WaitGroup
}

// New creates a server. Nothing listens until Start.
func New(logger zerolog.Logger) *Server {
	return &Server{
		logger:  logger.With().Str("component", "sas-server").Logger(),
		conns:   make(map[net.Conn]struct{}),
		changed: make(chan struct{}),
	}
}

// OnFrame registers fn to run for every decoded frame. It must be set
// before Start.
func (s *Server) OnFrame(fn func(Record)) {
	s.onFrame = fn
}

// Start listens on addr (use "127.0.0.1:0" for an ephemeral port) and
// serves connections in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(listener)

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("SAS server started")
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close stops accepting, drops every connection and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.DropConnections()
	s.wg.Wait()
	s.logger.Info().Msg("SAS server stopped")
	return err
}

// DropConnections closes every live client connection while continuing
// to accept new ones.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		sErrors.DeferClose(s.logger, c, "failed to close client connection")
	}
}

// Hellos returns the init handshakes received so far.
func (s *Server) Hellos() []wire.Hello {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Hello, len(s.hellos))
	copy(out, s.hellos)
	return out
}

// Records returns the frames received so far.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// WaitForRecords blocks until at least n frames have arrived or ctx ends.
func (s *Server) WaitForRecords(ctx context.Context, n int) ([]Record, error) {
	return waitLoop(ctx, s, func() bool { return len(s.records) >= n }, s.Records)
}

// WaitForHellos blocks until at least n handshakes have arrived or ctx ends.
func (s *Server) WaitForHellos(ctx context.Context, n int) ([]wire.Hello, error) {
	return waitLoop(ctx, s, func() bool { return len(s.hellos) >= n }, s.Hellos)
}

// waitLoop polls ready under the lock, sleeping on the change channel.
func waitLoop[T any](ctx context.Context, s *Server, ready func() bool, snapshot func() []T) ([]T, error) {
	for {
		s.mu.Lock()
		ok := ready()
		changed := s.changed
		s.mu.Unlock()
		if ok {
			return snapshot(), nil
		}
		select {
		case <-ctx.Done():
			return snapshot(), ctx.Err()
		case <-changed:
		}
	}
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error().Err(err).Msg("Accept failed")
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			sErrors.DeferClose(s.logger, conn, "failed to close late connection")
			return
		}
		s.nextID++
		id := s.nextID
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(id, conn)
	}
}

func (s *Server) handle(id int, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		sErrors.DeferClose(s.logger, conn, "failed to close client connection")
	}()

	logger := s.logger.With().Int("conn", id).Str("remote", conn.RemoteAddr().String()).Logger()
	r := bufio.NewReader(conn)

	raw, err := wire.ReadFrame(r)
	if err != nil {
		logger.Warn().Err(err).Msg("Connection closed before handshake")
		return
	}
	hello, err := wire.DecodeInit(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid handshake, dropping connection")
		return
	}
	logger.Info().
		Str("system_name", hello.SystemName).
		Str("system_type", hello.SystemType).
		Str("resource_id", hello.ResourceIdentifier).
		Str("version", hello.Version).
		Msg("Client connected")
	s.append(func() { s.hellos = append(s.hellos, *hello) })

	for {
		raw, err := wire.ReadFrame(r)
		if err != nil {
			if sErrors.IsClosed(err) {
				logger.Info().Msg("Client disconnected")
			} else {
				logger.Warn().Err(err).Msg("Read failed")
			}
			return
		}

		frame, err := wire.Decode(raw)
		if err != nil {
			logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Undecodable frame")
			continue
		}

		rec := Record{
			Conn:     id,
			Received: time.Now(),
			Frame:    frame,
			Raw:      raw,
			Digest:   xxh3.Hash(raw),
		}
		logger.Debug().
			Uint8("type", frame.Type).
			Uint64("trail", frame.Message.Trail).
			Str("id", fmt.Sprintf("0x%08X", frame.Message.ID)).
			Uint32("instance", frame.Message.Instance).
			Str("digest", fmt.Sprintf("%016x", rec.Digest)).
			Msg("Frame received")

		s.append(func() { s.records = append(s.records, rec) })
		if s.onFrame != nil {
			s.onFrame(rec)
		}
	}
}

// append mutates state under the lock and wakes waiters.
func (s *Server) append(fn func()) {
	s.mu.Lock()
	fn()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}
