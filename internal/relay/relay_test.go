package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/OCAP2/relay/internal/planner"
	"github.com/OCAP2/relay/internal/state"
	"github.com/OCAP2/relay/internal/transport"
	"github.com/OCAP2/relay/pkg/core"
	"github.com/OCAP2/relay/pkg/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	relay  *Relay
	agg    *state.Aggregator
	pipe   *transport.Pipe
	cancel context.CancelFunc
	done   chan error
}

func startRelay(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		agg:  state.NewAggregator(),
		pipe: transport.NewPipe(),
		done: make(chan error, 1),
	}

	var err error
	h.relay, err = New(h.pipe, h.agg, opts)
	require.NoError(t, err)

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	go func() { h.done <- h.relay.Run(ctx) }()

	t.Cleanup(func() {
		h.cancel()
		select {
		case err := <-h.done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("relay did not stop")
		}
	})
	return h
}

func (h *harness) request(t *testing.T, raw []byte) core.Reply {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := h.pipe.Request(ctx, raw)
	require.NoError(t, err)

	rep, err := wire.DecodeReply(b)
	require.NoError(t, err)
	return rep
}

func statusReport() core.Frame {
	return core.Frame{Body: &core.StatusReport{
		Timestamp: 12.5,
		Platforms: []core.PlatformState{{
			ID: 1, Role: core.RoleAntiArmor, Pos: core.Vec2{X: 1000, Y: 2000},
			Alive: true, HitProb: 0.8, MaxTargets: 2, Quantity: 1,
			Ammo:        core.AmmoState{Missile: 4},
			TargetTypes: []int32{1, 2},
		}},
		Targets: []core.TargetState{{
			ID: 7, Kind: core.TargetArmor, Pos: core.Vec2{X: 3000, Y: 4000},
			Alive: true, Value: 50,
		}},
	}}
}

func TestRelay_StatusReportUpdatesSnapshot(t *testing.T) {
	h := startRelay(t, Options{})
	f := statusReport()

	rep := h.request(t, wire.EncodeFrame(f))

	assert.Equal(t, core.StatusOK, rep.Status)
	assert.Empty(t, rep.Assignment)
	assert.Zero(t, rep.TTLSec)

	snap := h.agg.Snapshot()
	require.True(t, snap.HasData())
	assert.Equal(t, "status_report", snap.MessageKind)
	assert.Equal(t, 12.5, snap.SimTime)
	sr := f.Body.(*core.StatusReport)
	assert.Equal(t, sr.Platforms, snap.Platforms)
	assert.Equal(t, sr.Targets, snap.Targets)
}

func TestRelay_PlanRequest(t *testing.T) {
	h := startRelay(t, Options{})

	rep := h.request(t, wire.EncodeFrame(core.Frame{Body: &core.PlanRequest{
		Platforms: []core.PlatformState{{ID: 1}, {ID: 2}},
		Targets:   []core.TargetState{{ID: 1}, {ID: 2}, {ID: 3}},
		Reason:    "periodic",
	}}))

	assert.Equal(t, core.StatusOK, rep.Status)
	assert.Equal(t, uint32(2), rep.NPlatforms)
	assert.Equal(t, uint32(3), rep.NTargets)
	assert.Equal(t, map[uint32]uint32{}, rep.Assignment)
	assert.Equal(t, 2.0, rep.TTLSec)
	assert.True(t, rep.Stats.IsValid)
}

func TestRelay_PlanTTLConfigurable(t *testing.T) {
	h := startRelay(t, Options{PlanTTL: 4.5})

	rep := h.request(t, wire.EncodeFrame(core.Frame{Body: &core.PlanRequest{}}))

	assert.Equal(t, 4.5, rep.TTLSec)
}

func TestRelay_NonStatusFramesLeaveSnapshot(t *testing.T) {
	h := startRelay(t, Options{})
	h.request(t, wire.EncodeFrame(statusReport()))
	before := h.agg.Snapshot()

	frames := []core.Frame{
		{Body: &core.PlanRequest{Platforms: []core.PlatformState{{ID: 9}}}},
		{Body: &core.EntityKilled{EntityID: 7, KillerID: 1, IsTarget: true}},
		{Body: &core.Damage{EntityID: 7, AttackerID: 1, Amount: 0.3}},
		{Body: &core.Fired{ShooterID: 1, Weapon: "missile", TargetID: 7}},
	}
	for _, f := range frames {
		rep := h.request(t, wire.EncodeFrame(f))
		assert.Equal(t, core.StatusOK, rep.Status, core.Classify(f).String())
	}

	assert.Equal(t, before, h.agg.Snapshot())
}

func TestRelay_EmptyBuffer(t *testing.T) {
	h := startRelay(t, Options{})
	before := h.agg.Snapshot()

	rep := h.request(t, []byte{})

	assert.Equal(t, core.StatusError, rep.Status)
	assert.Contains(t, rep.ErrorMsg, "decode failed")
	assert.False(t, rep.Stats.IsValid)
	assert.Equal(t, before, h.agg.Snapshot())
}

func TestRelay_UnknownVariant(t *testing.T) {
	h := startRelay(t, Options{})

	// Field 15, varint 1: structurally valid, no known variant.
	rep := h.request(t, []byte{0x78, 0x01})

	assert.Equal(t, core.StatusError, rep.Status)
	assert.Equal(t, "Unknown message type", rep.ErrorMsg)
}

func TestRelay_SurvivesGarbage(t *testing.T) {
	h := startRelay(t, Options{})

	inputs := [][]byte{
		{0xff, 0xff, 0xff},
		{0x0a, 0x05, 0x01},
		{0x00},
		[]byte("not a frame at all"),
	}
	for _, in := range inputs {
		rep := h.request(t, in)
		assert.Equal(t, core.StatusError, rep.Status)
		assert.NotEmpty(t, rep.ErrorMsg)
	}

	rep := h.request(t, wire.EncodeFrame(statusReport()))
	assert.Equal(t, core.StatusOK, rep.Status)

	s := h.relay.Stats()
	assert.Equal(t, uint64(5), s.Requests)
	assert.Equal(t, uint64(1), s.ByKind["status_report"])
}

func TestRelay_OneReplyPerRequestInOrder(t *testing.T) {
	h := startRelay(t, Options{})

	for i := 1; i <= 20; i++ {
		rep := h.request(t, wire.EncodeFrame(core.Frame{Body: &core.PlanRequest{
			Platforms: make([]core.PlatformState, i),
		}}))
		require.Equal(t, uint32(i), rep.NPlatforms)
	}

	s := h.relay.Stats()
	assert.Equal(t, uint64(20), s.Requests)
	assert.Eventually(t, func() bool { return h.relay.Stats().Replies == 20 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(20), s.ByKind["plan_request"])
}

type failingSolver struct{}

func (failingSolver) Solve(context.Context, planner.Problem) (planner.Result, error) {
	return planner.Result{}, errors.New("solver unavailable")
}

func TestRelay_SolverErrorBecomesErrorReply(t *testing.T) {
	h := startRelay(t, Options{Solver: failingSolver{}})

	rep := h.request(t, wire.EncodeFrame(core.Frame{Body: &core.PlanRequest{}}))

	assert.Equal(t, core.StatusError, rep.Status)
	assert.Contains(t, rep.ErrorMsg, "solver unavailable")
	assert.Equal(t, uint64(1), h.relay.Stats().HandlerFailures)
}

type panickingSolver struct{}

func (panickingSolver) Solve(context.Context, planner.Problem) (planner.Result, error) {
	panic("boom")
}

func TestRelay_HandlerPanicBecomesErrorReply(t *testing.T) {
	h := startRelay(t, Options{Solver: panickingSolver{}})

	rep := h.request(t, wire.EncodeFrame(core.Frame{Body: &core.PlanRequest{}}))
	assert.Equal(t, core.StatusError, rep.Status)
	assert.Contains(t, rep.ErrorMsg, "boom")

	rep = h.request(t, wire.EncodeFrame(statusReport()))
	assert.Equal(t, core.StatusOK, rep.Status)
}

func TestRelay_StateIdleBetweenRequests(t *testing.T) {
	h := startRelay(t, Options{})

	h.request(t, wire.EncodeFrame(statusReport()))

	assert.Eventually(t, func() bool { return h.relay.State() == Idle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "processing", Processing.String())
}

func TestRelay_CancelStopsPromptly(t *testing.T) {
	pipe := transport.NewPipe()
	r, err := New(pipe, state.NewAggregator(), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRelay_OverZMQ(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ep := "tcp://" + ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := transport.ListenZMQ(ctx, ep)
	require.NoError(t, err)
	agg := state.NewAggregator()
	r, err := New(srv, agg, Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cli, err := transport.DialZMQ(context.Background(), ep)
	require.NoError(t, err)
	defer cli.Close()

	request := func(raw []byte) core.Reply {
		t.Helper()
		reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer reqCancel()
		b, err := cli.Request(reqCtx, raw)
		require.NoError(t, err)
		rep, err := wire.DecodeReply(b)
		require.NoError(t, err)
		return rep
	}

	rep := request(nil)
	assert.Equal(t, core.StatusError, rep.Status)
	assert.Contains(t, rep.ErrorMsg, "decode failed")

	rep = request(wire.EncodeFrame(statusReport()))
	assert.Equal(t, core.StatusOK, rep.Status)
	assert.Equal(t, uint64(1), agg.Seq())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// faultyTransport fails on the configured operation.
type faultyTransport struct {
	mu       sync.Mutex
	failRecv bool
	closed   bool
}

var errSocket = errors.New("socket reset")

func (f *faultyTransport) Recv(context.Context) ([]byte, error) {
	if f.failRecv {
		return nil, errSocket
	}
	return wire.EncodeFrame(statusReport()), nil
}

func (f *faultyTransport) Send(context.Context, []byte) error {
	return errSocket
}

func (f *faultyTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestRelay_TransportFaultIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		failRecv bool
		replies  uint64
	}{
		{"recv", true, 0},
		{"send", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &faultyTransport{failRecv: tt.failRecv}
			r, err := New(tr, state.NewAggregator(), Options{})
			require.NoError(t, err)

			err = r.Run(context.Background())

			assert.ErrorIs(t, err, ErrTransportFault)
			assert.ErrorIs(t, err, errSocket)
			assert.Contains(t, err.Error(), tt.name)
			assert.Equal(t, tt.replies, r.Stats().Replies)
		})
	}
}

func TestRelay_HandleDirect(t *testing.T) {
	r, err := New(transport.NewPipe(), state.NewAggregator(), Options{})
	require.NoError(t, err)

	rep := r.Handle(context.Background(), nil)
	assert.Equal(t, "Protobuf decode failed", rep.ErrorMsg)
	assert.Equal(t, uint64(1), r.Stats().DecodeFailures)
}
