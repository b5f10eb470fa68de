// Package relay runs the ingestion loop: receive one request, decode and
// classify it, apply it, send exactly one reply, repeat.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/relay/internal/dispatcher"
	"github.com/OCAP2/relay/internal/planner"
	"github.com/OCAP2/relay/internal/reply"
	"github.com/OCAP2/relay/internal/state"
	"github.com/OCAP2/relay/internal/transport"
	"github.com/OCAP2/relay/pkg/core"
	"github.com/OCAP2/relay/pkg/wire"
)

// ErrTransportFault wraps socket-level failures that end Run.
var ErrTransportFault = errors.New("transport fault")

// Logger is the structured event sink. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// State of the ingestion loop.
type State int32

const (
	Idle State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// Stats are cumulative counters since start.
type Stats struct {
	Requests        uint64            `json:"requests"`
	Replies         uint64            `json:"replies"`
	DecodeFailures  uint64            `json:"decodeFailures"`
	UnknownVariants uint64            `json:"unknownVariants"`
	HandlerFailures uint64            `json:"handlerFailures"`
	ByKind          map[string]uint64 `json:"byKind"`
}

// Options configure a Relay. Zero values select defaults.
type Options struct {
	Solver  planner.Solver
	PlanTTL float64
	Logger  Logger
}

// Relay is the ingestion loop. It is the only writer of the aggregator.
type Relay struct {
	tr      transport.Transport
	agg     *state.Aggregator
	disp    *dispatcher.Dispatcher
	solver  planner.Solver
	planTTL float64
	log     Logger
	now     func() time.Time

	state           atomic.Int32
	requests        atomic.Uint64
	replies         atomic.Uint64
	decodeFailures  atomic.Uint64
	unknownVariants atomic.Uint64
	handlerFailures atomic.Uint64
	byKind          [core.KindFired + 1]atomic.Uint64

	requestCounter metric.Int64Counter
	decodeCounter  metric.Int64Counter
	duration       metric.Float64Histogram
}

// New wires a Relay over tr that writes status reports into agg.
func New(tr transport.Transport, agg *state.Aggregator, opts Options) (*Relay, error) {
	r := &Relay{
		tr:      tr,
		agg:     agg,
		solver:  opts.Solver,
		planTTL: opts.PlanTTL,
		log:     opts.Logger,
		now:     time.Now,
	}
	if r.solver == nil {
		r.solver = planner.Stub{}
	}
	if r.planTTL <= 0 {
		r.planTTL = reply.DefaultPlanTTL
	}
	if r.log == nil {
		r.log = nopLogger{}
	}

	if err := r.initMetrics(); err != nil {
		return nil, err
	}

	d, err := dispatcher.New(r.log)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	d.Register(core.KindStatusReport, r.handleStatusReport, dispatcher.Logged())
	d.Register(core.KindPlanRequest, r.handlePlanRequest, dispatcher.Logged())
	d.Register(core.KindEntityKilled, r.handleEvent)
	d.Register(core.KindDamage, r.handleEvent)
	d.Register(core.KindFired, r.handleEvent)
	r.disp = d

	return r, nil
}

func (r *Relay) initMetrics() error {
	m := meter()

	var err error

	r.requestCounter, err = m.Int64Counter(
		"relay.requests",
		metric.WithDescription("Requests received, by message kind"),
	)
	if err != nil {
		return fmt.Errorf("creating request counter: %w", err)
	}

	r.decodeCounter, err = m.Int64Counter(
		"relay.decode_failures",
		metric.WithDescription("Requests that failed to decode"),
	)
	if err != nil {
		return fmt.Errorf("creating decode failure counter: %w", err)
	}

	r.duration, err = m.Float64Histogram(
		"relay.request.duration",
		metric.WithDescription("Time from request receipt to reply ready"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating duration histogram: %w", err)
	}

	return nil
}

// Run serves requests until ctx is cancelled or the transport fails.
// Cancellation closes the transport and returns nil without flushing a
// reply in flight.
func (r *Relay) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { r.tr.Close() })
	defer stop()

	r.log.Info("ingestion loop started")
	for {
		r.state.Store(int32(Idle))

		raw, err := r.tr.Recv(ctx)
		if err != nil {
			return r.fault(ctx, "recv", err)
		}

		r.state.Store(int32(Processing))
		rep := r.Handle(ctx, raw)

		if err := r.tr.Send(ctx, wire.EncodeReply(rep)); err != nil {
			return r.fault(ctx, "send", err)
		}
		r.replies.Add(1)
	}
}

func (r *Relay) fault(ctx context.Context, op string, err error) error {
	r.state.Store(int32(Idle))
	if ctx.Err() != nil {
		r.log.Info("ingestion loop stopped")
		return nil
	}
	r.log.Error("transport failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrTransportFault, op, err)
}

// Handle turns one raw request into its reply. It never fails: decode
// errors, unknown variants, handler errors and handler panics all become
// error replies.
func (r *Relay) Handle(ctx context.Context, raw []byte) (rep core.Reply) {
	start := r.now()
	r.requests.Add(1)

	kind := core.KindUnknown
	defer func() {
		if p := recover(); p != nil {
			r.handlerFailures.Add(1)
			r.log.Error("handler panicked", "kind", kind, "panic", p)
			rep = reply.Failure(fmt.Sprintf("internal error: %v", p), r.now())
		}
		attrs := metric.WithAttributes(attribute.String("kind", kind.String()))
		r.requestCounter.Add(ctx, 1, attrs)
		r.duration.Record(ctx, r.now().Sub(start).Seconds(), attrs)
	}()

	frame, err := wire.DecodeFrame(raw)
	if err != nil {
		r.decodeFailures.Add(1)
		r.decodeCounter.Add(ctx, 1)
		r.log.Warn("decode failed", "error", err)
		return reply.DecodeFailed(r.now())
	}

	kind = core.Classify(frame)
	r.byKind[kind].Add(1)

	if kind == core.KindUnknown {
		r.unknownVariants.Add(1)
		r.log.Warn("unknown message type", "bytes", len(raw))
		return reply.UnknownVariant(r.now())
	}

	rep, err = r.disp.Dispatch(ctx, dispatcher.Event{
		Kind:     kind,
		Frame:    frame,
		Size:     len(raw),
		Received: start,
	})
	if err != nil {
		r.handlerFailures.Add(1)
		return reply.Failure(err.Error(), r.now())
	}
	return rep
}

func (r *Relay) handleStatusReport(_ context.Context, e dispatcher.Event) (core.Reply, error) {
	sr := e.Frame.Body.(*core.StatusReport)

	snap, changed := r.agg.Update(sr.Platforms, sr.Targets, sr.Timestamp)
	r.log.Debug("snapshot updated",
		"seq", snap.Seq,
		"platforms", len(snap.Platforms),
		"targets", len(snap.Targets),
		"changed", changed,
	)

	return reply.Ack(r.now()), nil
}

func (r *Relay) handlePlanRequest(ctx context.Context, e dispatcher.Event) (core.Reply, error) {
	req := e.Frame.Body.(*core.PlanRequest)

	res, err := r.solver.Solve(ctx, planner.Problem{
		Platforms: req.Platforms,
		Targets:   req.Targets,
		Reason:    req.Reason,
	})
	if err != nil {
		return core.Reply{}, fmt.Errorf("solve: %w", err)
	}

	r.log.Info("plan requested",
		"reason", req.Reason,
		"platforms", len(req.Platforms),
		"targets", len(req.Targets),
		"assigned", len(res.Assignment),
	)
	return reply.Plan(req, res, r.planTTL, r.now()), nil
}

func (r *Relay) handleEvent(_ context.Context, e dispatcher.Event) (core.Reply, error) {
	switch ev := e.Frame.Body.(type) {
	case *core.EntityKilled:
		r.log.Info("entity killed", "entity", ev.EntityID, "killer", ev.KillerID, "target", ev.IsTarget)
	case *core.Damage:
		r.log.Debug("damage", "entity", ev.EntityID, "attacker", ev.AttackerID, "amount", ev.Amount)
	case *core.Fired:
		r.log.Debug("fired", "shooter", ev.ShooterID, "weapon", ev.Weapon, "target", ev.TargetID)
	}
	return reply.Ack(r.now()), nil
}

// State reports whether the loop is waiting for or handling a request.
func (r *Relay) State() State {
	return State(r.state.Load())
}

// Stats returns a copy of the counters.
func (r *Relay) Stats() Stats {
	s := Stats{
		Requests:        r.requests.Load(),
		Replies:         r.replies.Load(),
		DecodeFailures:  r.decodeFailures.Load(),
		UnknownVariants: r.unknownVariants.Load(),
		HandlerFailures: r.handlerFailures.Load(),
		ByKind:          make(map[string]uint64, len(core.Kinds)),
	}
	for _, k := range core.Kinds {
		s.ByKind[k.String()] = r.byKind[k].Load()
	}
	return s
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
