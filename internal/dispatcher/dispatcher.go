package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/relay/pkg/core"
)

// Event is one classified inbound frame.
type Event struct {
	Kind     core.Kind
	Frame    core.Frame
	Size     int
	Received time.Time
}

// HandlerFunc processes an event and returns the reply for its requester.
type HandlerFunc func(context.Context, Event) (core.Reply, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to the handler registered for their kind.
// Handlers run synchronously on the caller's goroutine; the request/reply
// transport needs the reply before it can accept the next request.
type Dispatcher struct {
	handlers map[core.Kind]HandlerFunc
	logger   Logger

	processed metric.Int64Counter
	failed    metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[core.Kind]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Total events whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given kind with optional configuration.
// Registering a kind twice replaces the earlier handler.
func (d *Dispatcher) Register(kind core.Kind, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := d.withMetrics(kind, h)

	if cfg.logged {
		handler = d.withLogging(kind, handler)
	}

	d.handlers[kind] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (core.Reply, error) {
	h, ok := d.handlers[e.Kind]
	if !ok {
		return core.Reply{}, fmt.Errorf("no handler for kind: %s", e.Kind)
	}
	return h(ctx, e)
}

// HasHandler returns true if a handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind core.Kind) bool {
	_, ok := d.handlers[kind]
	return ok
}

func (d *Dispatcher) withMetrics(kind core.Kind, h HandlerFunc) HandlerFunc {
	kindAttr := metric.WithAttributes(attribute.String("kind", kind.String()))

	return func(ctx context.Context, e Event) (core.Reply, error) {
		r, err := h(ctx, e)
		if err != nil {
			d.failed.Add(ctx, 1, kindAttr)
		} else {
			d.processed.Add(ctx, 1, kindAttr)
		}
		return r, err
	}
}

func (d *Dispatcher) withLogging(kind core.Kind, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (core.Reply, error) {
		start := time.Now()
		d.logger.Debug("handling event", "kind", kind, "bytes", e.Size)

		r, err := h(ctx, e)

		if err != nil {
			d.logger.Error("event failed", "kind", kind, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "kind", kind, "status", r.Status, "duration", time.Since(start))
		}

		return r, err
	}
}
