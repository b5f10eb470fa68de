package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/relay/internal/state"
	"github.com/OCAP2/relay/pkg/core"
	"github.com/OCAP2/relay/pkg/streaming"
)

var errFakeClosed = errors.New("use of closed connection")

// fakeConn is an in-memory subscriber connection.
type fakeConn struct {
	mu        sync.Mutex
	writes    [][]byte
	failWrite bool

	reads     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte), done: make(chan struct{})}
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errors.New("broken pipe")
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.reads:
		return ws.TextMessage, b, nil
	case <-c.done:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeConn) snapshots(t *testing.T) []core.Snapshot {
	t.Helper()
	var out []core.Snapshot
	for _, b := range c.written() {
		if string(b) == streaming.Pong {
			continue
		}
		s, err := streaming.DecodeSnapshot(b)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, cfg Config) (*Server, *state.Aggregator) {
	t.Helper()

	agg := state.NewAggregator()
	s, err := New(cfg, agg, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("broadcast loop did not stop")
		}
	})
	return s, agg
}

func waitCount(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.SubscriberCount() == n },
		2*time.Second, 5*time.Millisecond, "want %d subscribers", n)
}

func onePlatform(x float64) []core.PlatformState {
	return []core.PlatformState{{ID: 1, Pos: core.Vec2{X: x, Y: 2000}, Alive: true}}
}

func TestServer_JoinWithoutDataSendsNothing(t *testing.T) {
	s, _ := startServer(t, Config{})
	c := newFakeConn()

	s.Attach(c, "test")
	waitCount(t, s, 1)

	assert.Empty(t, c.written())
}

func TestServer_JoinAfterDataGetsImmediatePush(t *testing.T) {
	s, agg := startServer(t, Config{})
	agg.Update(onePlatform(1000), []core.TargetState{{ID: 7, Value: 50}}, 3)

	c := newFakeConn()
	s.Attach(c, "test")

	require.Eventually(t, func() bool { return len(c.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	snap := c.snapshots(t)[0]
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, "status_report", snap.MessageKind)
	assert.Len(t, snap.Platforms, 1)
	assert.Len(t, snap.Targets, 1)
	assert.NotNil(t, snap.Timestamp)
}

func TestServer_UpdatePushesToAll(t *testing.T) {
	s, agg := startServer(t, Config{})
	a, b := newFakeConn(), newFakeConn()
	s.Attach(a, "a")
	s.Attach(b, "b")
	waitCount(t, s, 2)

	agg.Update(onePlatform(1000), nil, 1)

	for _, c := range []*fakeConn{a, b} {
		require.Eventually(t, func() bool { return len(c.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, 1000.0, c.snapshots(t)[0].Platforms[0].Pos.X)
	}
}

func TestServer_NonFiniteReportStillPushed(t *testing.T) {
	s, agg := startServer(t, Config{})
	early := newFakeConn()
	s.Attach(early, "early")
	waitCount(t, s, 1)

	agg.Update([]core.PlatformState{{ID: 1, HitProb: math.NaN(), Pos: core.Vec2{X: math.Inf(1)}}}, nil, 1)
	require.Eventually(t, func() bool { return len(early.written()) == 1 }, 2*time.Second, 5*time.Millisecond)

	late := newFakeConn()
	s.Attach(late, "late")
	require.Eventually(t, func() bool { return len(late.written()) == 1 }, 2*time.Second, 5*time.Millisecond)

	for _, c := range []*fakeConn{early, late} {
		snap := c.snapshots(t)[0]
		assert.Equal(t, uint64(1), snap.Seq)
		require.Len(t, snap.Platforms, 1)
		assert.Zero(t, snap.Platforms[0].HitProb)
		assert.Zero(t, snap.Platforms[0].Pos.X)
	}
}

func TestServer_FailedSubscriberPruned(t *testing.T) {
	s, agg := startServer(t, Config{})
	good, bad := newFakeConn(), newFakeConn()
	bad.failWrite = true
	s.Attach(good, "good")
	s.Attach(bad, "bad")
	waitCount(t, s, 2)

	agg.Update(onePlatform(1000), nil, 1)

	waitCount(t, s, 1)
	assert.True(t, bad.isClosed())
	require.Eventually(t, func() bool { return len(good.written()) == 1 }, 2*time.Second, 5*time.Millisecond)

	agg.Update(onePlatform(2000), nil, 2)

	require.Eventually(t, func() bool { return len(good.written()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.SubscriberCount())
	assert.Empty(t, bad.written())
}

func TestServer_PushCarriesLatestSnapshot(t *testing.T) {
	s, agg := startServer(t, Config{})
	c := newFakeConn()
	s.Attach(c, "c")
	waitCount(t, s, 1)

	for i := 1; i <= 10; i++ {
		agg.Update(onePlatform(float64(i)), nil, float64(i))
	}

	require.Eventually(t, func() bool {
		snaps := c.snapshots(t)
		return len(snaps) > 0 && snaps[len(snaps)-1].Seq == 10
	}, 2*time.Second, 5*time.Millisecond)

	var last uint64
	for _, snap := range c.snapshots(t) {
		assert.Greater(t, snap.Seq, last)
		last = snap.Seq
	}
}

func TestServer_PingPong(t *testing.T) {
	s, _ := startServer(t, Config{})
	c := newFakeConn()
	s.Attach(c, "c")
	waitCount(t, s, 1)

	c.reads <- []byte("ping")
	c.reads <- []byte("hello")

	require.Eventually(t, func() bool { return len(c.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "pong", string(c.written()[0]))
	assert.Equal(t, 1, s.SubscriberCount())
}

func TestServer_DisconnectLeaves(t *testing.T) {
	s, agg := startServer(t, Config{})
	c := newFakeConn()
	s.Attach(c, "c")
	waitCount(t, s, 1)

	c.Close()
	waitCount(t, s, 0)

	agg.Update(onePlatform(1), nil, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.written())
}

func TestServer_NoSubscribersIsNoop(t *testing.T) {
	s, agg := startServer(t, Config{})

	agg.Update(onePlatform(1), nil, 1)
	agg.Update(onePlatform(2), nil, 2)

	c := newFakeConn()
	s.Attach(c, "late")
	require.Eventually(t, func() bool { return len(c.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), c.snapshots(t)[0].Seq)
}

func TestServer_ShutdownClosesSubscribers(t *testing.T) {
	agg := state.NewAggregator()
	s, err := New(Config{}, agg, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	c := newFakeConn()
	s.Attach(c, "c")
	waitCount(t, s, 1)

	cancel()
	require.NoError(t, <-done)

	assert.True(t, c.isClosed())
	assert.Equal(t, 0, s.SubscriberCount())

	late := newFakeConn()
	s.Attach(late, "late")
	assert.True(t, late.isClosed())
}

func TestSubscriber_WriteAfterClose(t *testing.T) {
	sub := &subscriber{conn: newFakeConn()}
	sub.close()

	err := sub.write([]byte("x"))
	assert.ErrorIs(t, err, ErrSubscriberUnreachable)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readText(t *testing.T, c *ws.Conn) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, ws.TextMessage, typ)
	return string(msg)
}

func TestServer_WebsocketEndToEnd(t *testing.T) {
	s, agg := startServer(t, Config{Secret: "s3cret"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	agg.Update(onePlatform(1000), []core.TargetState{{ID: 7, Pos: core.Vec2{X: 3000, Y: 4000}, Value: 50}}, 1)

	conn, _, err := ws.DefaultDialer.Dial(wsURL(srv)+"?secret=s3cret", nil)
	require.NoError(t, err)
	defer conn.Close()

	snap, err := streaming.DecodeSnapshot([]byte(readText(t, conn)))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, 3000.0, snap.Targets[0].Pos.X)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("ping")))
	for readText(t, conn) != "pong" {
	}

	agg.Update(onePlatform(1500), nil, 2)

	for snap.Seq != 2 {
		snap, err = streaming.DecodeSnapshot([]byte(readText(t, conn)))
		require.NoError(t, err)
	}
	assert.Equal(t, 1500.0, snap.Platforms[0].Pos.X)
	assert.Empty(t, snap.Targets)
}

func TestServer_RejectsWrongSecret(t *testing.T) {
	s, _ := startServer(t, Config{Secret: "s3cret"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for _, q := range []string{"", "?secret=nope"} {
		_, resp, err := ws.DefaultDialer.Dial(wsURL(srv)+q, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, 0, s.SubscriberCount())
}

func TestServer_ClientCloseLeaves(t *testing.T) {
	s, _ := startServer(t, Config{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	waitCount(t, s, 1)

	conn.Close()
	waitCount(t, s, 0)
}

func TestServer_ListenFailureIsTransportFault(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	agg := state.NewAggregator()
	s, err := New(Config{Address: ln.Addr().String()}, agg, discardLogger())
	require.NoError(t, err)

	err = s.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportFault)
}
