package sas

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/sas-client/internal/sasserver"
	"github.com/coral-mesh/sas-client/internal/testutil"
	"github.com/coral-mesh/sas-client/internal/wire"
)

type logEntry struct {
	level LogLevel
	msg   string
}

// logRecorder is a LogCallback that keeps every message.
type logRecorder struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *logRecorder) callback(level LogLevel, _ string, _ int, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, logEntry{level: level, msg: fmt.Sprintf(format, args...)})
}

func (r *logRecorder) find(level LogLevel, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.level == level && strings.Contains(e.msg, substr) {
			return true
		}
	}
	return false
}

func startServer(t *testing.T) *sasserver.Server {
	t.Helper()
	srv := sasserver.New(testutil.NewTestLogger(t))
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func testClient(t *testing.T, address string, cb LogCallback) *Client {
	t.Helper()
	c, err := New(Config{
		SystemName:           "sprout-1",
		SystemType:           "sprout",
		ResourceIdentifier:   "org.projectclearwater.20151201",
		Address:              address,
		LogCallback:          cb,
		ReconnectInterval:    20 * time.Millisecond,
		MaxReconnectInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_InvalidConfig(t *testing.T) {
	valid := Config{
		SystemName:         "sprout",
		SystemType:         "sip-router",
		ResourceIdentifier: "10.0.0.1",
		Address:            "127.0.0.1",
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing system name", func(c *Config) { c.SystemName = "" }},
		{"missing system type", func(c *Config) { c.SystemType = "" }},
		{"missing resource identifier", func(c *Config) { c.ResourceIdentifier = "" }},
		{"oversized system name", func(c *Config) { c.SystemName = strings.Repeat("s", 256) }},
		{"missing address", func(c *Config) { c.Address = "" }},
		{"empty host", func(c *Config) { c.Address = ":6761" }},
		{"bad port", func(c *Config) { c.Address = "127.0.0.1:http" }},
		{"port out of range", func(c *Config) { c.Address = "127.0.0.1:70000" }},
		{"unresolvable host", func(c *Config) { c.Address = "sas.invalid" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			c, err := New(cfg)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.2", "10.0.0.2:6761"},
		{"10.0.0.2:7000", "10.0.0.2:7000"},
		{"sas.example.com", "sas.example.com:6761"},
		{" sas.example.com:6761 ", "sas.example.com:6761"},
		{"::1", "[::1]:6761"},
		{"[::1]", "[::1]:6761"},
		{"[::1]:7000", "[::1]:7000"},
	}
	for _, tt := range tests {
		got, err := normalizeAddress(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestClient_ReportsEventAndMarker(t *testing.T) {
	srv := startServer(t)
	c := testClient(t, srv.Addr(), testutil.LogCallback(t))

	ctx, cancel := testutil.NewTestContext()
	defer cancel()

	before := time.Now().Truncate(time.Millisecond)
	trail := c.NewTrail(0)

	e := NewEvent(trail, 0x000010, 2)
	e.AddStaticParam(486).AddVarParamString("INVITE sip:bob@example.com SIP/2.0")
	c.ReportEvent(e)

	m := NewMarker(trail, MarkerIDSIPCallID, 0)
	m.AddVarParamString("a84b4c76e66710@pc33.example.com")
	c.ReportMarker(m, ScopeTrace)

	records, err := srv.WaitForRecords(ctx, 2)
	require.NoError(t, err)

	ev := records[0].Frame
	assert.Equal(t, wire.TypeEvent, ev.Type)
	assert.Equal(t, trail, ev.Message.Trail)
	assert.Equal(t, uint32(0x0F000010), ev.Message.ID)
	assert.Equal(t, uint32(2), ev.Message.Instance)
	assert.Equal(t, []uint32{486}, ev.Message.Static)
	assert.Equal(t, [][]byte{[]byte("INVITE sip:bob@example.com SIP/2.0")}, ev.Message.Var)
	assert.False(t, ev.Timestamp.Before(before))

	mk := records[1].Frame
	assert.Equal(t, wire.TypeMarker, mk.Type)
	assert.Equal(t, ScopeTrace, mk.Scope)
	assert.Equal(t, MarkerIDSIPCallID, mk.Message.ID)

	hellos := srv.Hellos()
	require.Len(t, hellos, 1)
	assert.Equal(t, "sprout-1", hellos[0].SystemName)
	assert.Equal(t, "sprout", hellos[0].SystemType)
	assert.Equal(t, "org.projectclearwater.20151201", hellos[0].ResourceIdentifier)
	assert.Equal(t, "v0.1", hellos[0].Version)

	require.Eventually(t, func() bool { return c.Stats().Sent == 2 }, 5*time.Second, 5*time.Millisecond)
	stats := c.Stats()
	assert.Equal(t, "connected", stats.State)
	assert.Equal(t, uint64(2), stats.Queued)
	assert.Equal(t, uint64(1), stats.Connects)
}

func TestClient_RejectedParamsAreLogged(t *testing.T) {
	srv := startServer(t)
	rec := &logRecorder{}
	c := testClient(t, srv.Addr(), rec.callback)

	e := NewEvent(c.NewTrail(0), 1, 0)
	for i := range MaxStaticParams + 1 {
		e.AddStaticParam(uint32(i))
	}
	c.ReportEvent(e)

	ctx, cancel := testutil.NewTestContext()
	defer cancel()
	records, err := srv.WaitForRecords(ctx, 1)
	require.NoError(t, err)

	assert.Len(t, records[0].Frame.Message.Static, MaxStaticParams)
	assert.True(t, rec.find(LogLevelError, "1 static and 0 variable parameters rejected"))
	assert.Equal(t, uint64(1), c.Stats().RejectedParams)
}

func TestClient_ConcurrentProducers(t *testing.T) {
	srv := startServer(t)
	c := testClient(t, srv.Addr(), DiscardLogs)

	const producers, perProducer = 8, 50
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trail := c.NewTrail(uint32(p))
			for i := range perProducer {
				e := NewEvent(trail, 1, uint32(i))
				c.ReportEvent(e)
			}
		}()
	}
	wg.Wait()

	ctx, cancel := testutil.NewTestContext()
	defer cancel()
	records, err := srv.WaitForRecords(ctx, producers*perProducer)
	require.NoError(t, err)

	// Each producer's events arrive in the order it reported them.
	next := make(map[uint64]uint32)
	for _, r := range records {
		msg := r.Frame.Message
		assert.Equal(t, next[msg.Trail], msg.Instance, "trail %d", msg.Trail)
		next[msg.Trail] = msg.Instance + 1
	}
	assert.Len(t, next, producers)
}

func TestClient_ReconnectsAfterServerRestart(t *testing.T) {
	srv := startServer(t)
	c := testClient(t, srv.Addr(), testutil.LogCallback(t))

	ctx, cancel := testutil.NewTestContext()
	defer cancel()

	trail := c.NewTrail(0)
	c.ReportEvent(NewEvent(trail, 1, 0))
	_, err := srv.WaitForRecords(ctx, 1)
	require.NoError(t, err)

	srv.DropConnections()
	_, err = srv.WaitForHellos(ctx, 2)
	require.NoError(t, err)

	c.ReportEvent(NewEvent(trail, 2, 0))
	records, err := srv.WaitForRecords(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0F000002), records[1].Frame.Message.ID)
	assert.Equal(t, 2, records[1].Conn)
	assert.NotEqual(t, records[0].Digest, records[1].Digest)
}

func TestClient_CloseDiscardsAndIgnoresLateReports(t *testing.T) {
	// Nothing listens here, so frames stay queued.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	rec := &logRecorder{}
	c := testClient(t, addr, rec.callback)
	trail := c.NewTrail(0)
	for i := range 5 {
		c.ReportEvent(NewEvent(trail, uint32(i), 0))
	}

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	c.ReportEvent(NewEvent(trail, 99, 0))

	stats := c.Stats()
	assert.Equal(t, "shutdown", stats.State)
	assert.Equal(t, uint64(5), stats.Discarded)
	assert.Zero(t, stats.Sent)
	assert.True(t, rec.find(LogLevelWarning, "Dropping event 0x0F000063"))
}

// pipeDialer connects the client to an in-memory server.
type pipeDialer struct {
	conns chan net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	client, server := net.Pipe()
	select {
	case d.conns <- server:
		return client, nil
	case <-ctx.Done():
		return nil, errors.Join(ctx.Err(), client.Close(), server.Close())
	}
}

func TestClient_CustomDialerSkipsResolution(t *testing.T) {
	d := &pipeDialer{conns: make(chan net.Conn, 1)}
	c, err := New(Config{
		SystemName:         "sprout",
		SystemType:         "sip-router",
		ResourceIdentifier: "10.0.0.1",
		Address:            "sas.invalid",
		LogCallback:        DiscardLogs,
		Dialer:             d,
	})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Equal(t, "sas.invalid:6761", c.Address())

	var server net.Conn
	select {
	case server = <-d.conns:
	case <-time.After(5 * time.Second):
		t.Fatal("client never dialed")
	}
	defer func() { _ = server.Close() }()

	raw, err := wire.ReadFrame(server)
	require.NoError(t, err)
	hello, err := wire.DecodeInit(raw)
	require.NoError(t, err)
	assert.Equal(t, "sprout", hello.SystemName)
}

func TestNewTrail_UniqueAcrossClients(t *testing.T) {
	srv := startServer(t)
	a := testClient(t, srv.Addr(), DiscardLogs)
	b := testClient(t, srv.Addr(), DiscardLogs)

	seen := make(map[TrailID]bool)
	for range 100 {
		for _, id := range []TrailID{a.NewTrail(0), b.NewTrail(0), NewTrail(0)} {
			assert.False(t, seen[id], "trail %d issued twice", id)
			seen[id] = true
		}
	}
}

func TestClient_Flush(t *testing.T) {
	srv := startServer(t)
	c := testClient(t, srv.Addr(), DiscardLogs)

	ctx, cancel := testutil.NewTestContext()
	defer cancel()

	trail := c.NewTrail(0)
	for i := range 20 {
		c.ReportEvent(NewEvent(trail, uint32(i), 0))
	}
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, uint64(20), c.Stats().Sent)
}

func TestClient_FlushTimesOutWithoutServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := testClient(t, addr, DiscardLogs)
	c.ReportEvent(NewEvent(c.NewTrail(0), 1, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Flush(ctx), context.DeadlineExceeded)
}
