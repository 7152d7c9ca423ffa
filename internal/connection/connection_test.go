package connection

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/sas-client/internal/logging"
	"github.com/coral-mesh/sas-client/internal/queue"
	"github.com/coral-mesh/sas-client/internal/retry"
	"github.com/coral-mesh/sas-client/internal/sasserver"
	"github.com/coral-mesh/sas-client/internal/testutil"
	"github.com/coral-mesh/sas-client/internal/wire"
)

var errReset = errors.New("connection reset by peer")

// fakeConn records writes and fails the failAt'th write (1-based).
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	failAt int

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(failAt int) *fakeConn {
	return &fakeConn{failAt: failAt, closed: make(chan struct{})}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	if len(c.writes)+1 == c.failAt {
		c.failAt = -1
		return 0, errReset
	}
	c.writes = append(c.writes, bytes.Clone(p))
	return len(p), nil
}

func (c *fakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeConn) Read([]byte) (int, error) {
	<-c.closed
	return 0, io.EOF
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

// fakeDialer hands out connections from next, one call at a time.
type fakeDialer struct {
	mu    sync.Mutex
	calls int
	next  func(call int) (net.Conn, error)
}

func (d *fakeDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.next(call)
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testConfig(t *testing.T, dialer Dialer) Config {
	return Config{
		Address: "sas.test:6761",
		Hello: wire.Hello{
			SystemName:         "sprout-1",
			SystemType:         "sprout",
			ResourceIdentifier: "org.projectclearwater.20151201",
			Version:            "v0.1",
		},
		SendTimeout: time.Second,
		DialTimeout: time.Second,
		Reconnect: retry.Config{
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     10 * time.Millisecond,
		},
		Dialer: dialer,
		Logger: logging.NewLogger(testutil.LogCallback(t), "connection"),
	}
}

func eventFrame(t *testing.T, trail uint64) []byte {
	t.Helper()
	frame, err := wire.EncodeEvent(&wire.Message{Trail: trail, ID: 0x0F000001}, time.UnixMilli(1700000000000))
	require.NoError(t, err)
	return frame
}

func TestManager_DropsFrameOnWriteFailureAndReconnects(t *testing.T) {
	// Write 1 is the handshake, 2 is frame A, 3 (frame B) fails.
	first := newFakeConn(3)
	second := newFakeConn(0)
	dialer := &fakeDialer{next: func(call int) (net.Conn, error) {
		if call == 1 {
			return first, nil
		}
		return second, nil
	}}

	q := queue.New(10)
	m := New(testConfig(t, dialer), q)
	m.Start()
	defer func() { _ = m.Close() }()

	ctx := context.Background()
	a, b, c := eventFrame(t, 1), eventFrame(t, 2), eventFrame(t, 3)
	require.NoError(t, q.Push(ctx, a))
	require.NoError(t, q.Push(ctx, b))

	require.Eventually(t, func() bool { return m.Stats().FramesDropped == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.Stats().Connects == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, q.Push(ctx, c))
	require.Eventually(t, func() bool { return len(second.Written()) == 2 }, 2*time.Second, 5*time.Millisecond)

	firstWrites := first.Written()
	require.Len(t, firstWrites, 2)
	assert.Equal(t, a, firstWrites[1])

	secondWrites := second.Written()
	typ, err := wire.PeekType(secondWrites[0])
	require.NoError(t, err)
	assert.Equal(t, wire.TypeInit, typ, "every connection starts with a handshake")
	assert.Equal(t, c, secondWrites[1])

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.FramesSent)
	assert.Equal(t, uint64(1), stats.FramesDropped)
	assert.Equal(t, StateConnected, stats.State)
}

func TestManager_RetriesFailedConnects(t *testing.T) {
	conn := newFakeConn(0)
	dialer := &fakeDialer{next: func(call int) (net.Conn, error) {
		if call <= 2 {
			return nil, errors.New("connection refused")
		}
		return conn, nil
	}}

	q := queue.New(10)
	m := New(testConfig(t, dialer), q)
	m.Start()
	defer func() { _ = m.Close() }()

	require.NoError(t, q.Push(context.Background(), eventFrame(t, 7)))
	require.Eventually(t, func() bool { return m.Stats().FramesSent == 1 }, 2*time.Second, 5*time.Millisecond)

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.ConnectFailures)
	assert.Equal(t, uint64(1), stats.Connects)
	assert.Equal(t, 3, dialer.Calls())
}

func TestManager_FailedHandshakeCountsAsConnectFailure(t *testing.T) {
	dialer := &fakeDialer{next: func(call int) (net.Conn, error) {
		if call == 1 {
			return newFakeConn(1), nil
		}
		return newFakeConn(0), nil
	}}

	m := New(testConfig(t, dialer), queue.New(1))
	m.Start()
	defer func() { _ = m.Close() }()

	require.Eventually(t, func() bool { return m.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), m.Stats().ConnectFailures)
	assert.Equal(t, uint64(1), m.Stats().Connects)
}

func TestManager_CloseWhileReconnecting(t *testing.T) {
	dialer := &fakeDialer{next: func(int) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}}
	cfg := testConfig(t, dialer)
	cfg.Reconnect = retry.Config{InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	m := New(cfg, queue.New(1))
	m.Start()
	require.Eventually(t, func() bool { return dialer.Calls() == 1 }, time.Second, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = m.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked during reconnect backoff")
	}
	assert.Equal(t, StateShutdown, m.State())
}

func TestManager_CloseInterruptsBlockedWrite(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = server.Close() }()
	dialer := &fakeDialer{next: func(int) (net.Conn, error) { return client, nil }}

	// Accept the handshake, then stop reading.
	go func() { _, _ = wire.ReadFrame(server) }()

	cfg := testConfig(t, dialer)
	cfg.SendTimeout = time.Hour
	q := queue.New(1)
	m := New(cfg, q)
	m.Start()

	require.NoError(t, q.Push(context.Background(), eventFrame(t, 1)))
	require.Eventually(t, func() bool {
		return m.State() == StateConnected && q.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = m.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not interrupt the blocked write")
	}
	assert.Equal(t, uint64(1), m.Stats().FramesDropped)
	assert.Equal(t, uint64(0), m.Stats().FramesSent)
}

func TestManager_SendTimeout(t *testing.T) {
	var (
		mu      sync.Mutex
		servers []net.Conn
	)
	dialer := &fakeDialer{next: func(int) (net.Conn, error) {
		client, server := net.Pipe()
		mu.Lock()
		servers = append(servers, server)
		mu.Unlock()
		go func() { _, _ = wire.ReadFrame(server) }()
		return client, nil
	}}
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range servers {
			_ = s.Close()
		}
	}()

	cfg := testConfig(t, dialer)
	cfg.SendTimeout = 50 * time.Millisecond
	q := queue.New(1)
	m := New(cfg, q)
	m.Start()
	defer func() { _ = m.Close() }()

	require.NoError(t, q.Push(context.Background(), eventFrame(t, 1)))
	require.Eventually(t, func() bool { return m.Stats().FramesDropped == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return dialer.Calls() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestManager_CloseWithoutStart(t *testing.T) {
	q := queue.New(1)
	m := New(testConfig(t, &fakeDialer{}), q)
	assert.Equal(t, StateDisconnected, m.State())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, StateShutdown, m.State())
	assert.ErrorIs(t, q.Push(context.Background(), []byte{0}), queue.ErrClosed)
}

func TestManager_WithServer(t *testing.T) {
	srv := sasserver.New(testutil.NewTestLogger(t))
	require.NoError(t, srv.Start("127.0.0.1:0"))
	defer func() { _ = srv.Close() }()

	now := time.UnixMilli(1700000000123)
	cfg := testConfig(t, nil)
	cfg.Address = srv.Addr()
	cfg.Now = func() time.Time { return now }

	q := queue.New(10)
	m := New(cfg, q)
	m.Start()
	defer func() { _ = m.Close() }()

	ctx, cancel := testutil.NewTestContext()
	defer cancel()

	for trail := uint64(1); trail <= 3; trail++ {
		require.NoError(t, q.Push(ctx, eventFrame(t, trail)))
	}
	records, err := srv.WaitForRecords(ctx, 3)
	require.NoError(t, err)
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.Frame.Message.Trail)
		assert.Equal(t, 1, rec.Conn)
	}

	hellos := srv.Hellos()
	require.Len(t, hellos, 1)
	assert.Equal(t, "sprout-1", hellos[0].SystemName)
	assert.Equal(t, "sprout", hellos[0].SystemType)
	assert.Equal(t, "v0.1", hellos[0].Version)
	assert.True(t, now.Equal(hellos[0].Timestamp))

	// A dropped connection is re-established with a fresh handshake.
	srv.DropConnections()
	_, err = srv.WaitForHellos(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, q.Push(ctx, eventFrame(t, 4)))
	records, err = srv.WaitForRecords(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), records[3].Frame.Message.Trail)
	assert.Equal(t, 2, records[3].Conn)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "shutdown", StateShutdown.String())
	assert.Equal(t, "state(9)", State(9).String())
}
