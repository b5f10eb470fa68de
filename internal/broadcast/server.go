// Package broadcast pushes the latest snapshot to every connected
// websocket subscriber. One run loop owns the subscriber set.
package broadcast

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/relay/internal/state"
	"github.com/OCAP2/relay/pkg/streaming"
)

const (
	DefaultPath      = "/ws"
	DefaultWriteWait = 5 * time.Second
)

// Logger interface for pluggable logging. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds broadcast server configuration.
type Config struct {
	Address   string
	Path      string
	WriteWait time.Duration
	// Secret, when set, must match the ?secret= query parameter.
	Secret string
}

// Server fans snapshots out to subscribers.
type Server struct {
	cfg      Config
	agg      *state.Aggregator
	log      Logger
	upgrader ws.Upgrader

	join  chan *subscriber
	leave chan *subscriber
	quit  chan struct{}

	nextID atomic.Uint64
	count  atomic.Int64

	subscribers metric.Int64ObservableGauge
	pushes      metric.Int64Counter
	pruned      metric.Int64Counter
}

// New creates a server reading snapshots from agg.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(cfg Config, agg *state.Aggregator, logger Logger) (*Server, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = DefaultWriteWait
	}

	s := &Server{
		cfg: cfg,
		agg: agg,
		log: logger,
		upgrader: ws.Upgrader{
			// Observers are dashboards served from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		join:  make(chan *subscriber),
		leave: make(chan *subscriber),
		quit:  make(chan struct{}),
	}

	m := meter()

	var err error

	s.subscribers, err = m.Int64ObservableGauge(
		"broadcast.subscribers",
		metric.WithDescription("Current number of connected subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating subscriber gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(s.subscribers, s.count.Load())
			return nil
		},
		s.subscribers,
	)
	if err != nil {
		return nil, fmt.Errorf("registering subscriber callback: %w", err)
	}

	s.pushes, err = m.Int64Counter(
		"broadcast.pushes",
		metric.WithDescription("Snapshot frames written to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating push counter: %w", err)
	}

	s.pruned, err = m.Int64Counter(
		"broadcast.pruned",
		metric.WithDescription("Subscribers removed after a failed push"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pruned counter: %w", err)
	}

	return s, nil
}

// SubscriberCount returns the number of subscribers in the set.
func (s *Server) SubscriberCount() int {
	return int(s.count.Load())
}

// Handler upgrades requests to websocket subscribers.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Secret != "" {
			got := r.URL.Query().Get("secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		s.Attach(conn, r.RemoteAddr)
	})
}

// Attach adds a connection to the subscriber set and starts its reader.
// It blocks until the run loop accepts the subscriber; after shutdown the
// connection is closed instead.
func (s *Server) Attach(conn Conn, remote string) {
	sub := &subscriber{
		id:        s.nextID.Add(1),
		remote:    remote,
		conn:      conn,
		writeWait: s.cfg.WriteWait,
	}

	select {
	case s.join <- sub:
	case <-s.quit:
		sub.close()
		return
	}

	go s.readLoop(sub)
}

// readLoop answers liveness probes until the connection fails, then
// reports the subscriber as gone.
func (s *Server) readLoop(sub *subscriber) {
	for {
		_, msg, err := sub.conn.ReadMessage()
		if err != nil {
			select {
			case s.leave <- sub:
			case <-s.quit:
			}
			return
		}
		if streaming.IsPing(msg) {
			if err := sub.write([]byte(streaming.Pong)); err != nil {
				s.log.Debug("pong failed", "subscriber", sub.id, "error", err)
			}
			continue
		}
		s.log.Debug("ignoring subscriber message", "subscriber", sub.id, "bytes", len(msg))
	}
}

// Run owns the subscriber set until ctx is cancelled. On return every
// subscriber is closed; pending pushes are not flushed. Run must be
// called at most once.
func (s *Server) Run(ctx context.Context) error {
	watch := s.agg.Watch()
	defer s.agg.Unwatch(watch)

	subs := make(map[*subscriber]struct{})
	defer func() {
		close(s.quit)
		for sub := range subs {
			sub.close()
		}
		s.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case sub := <-s.join:
			subs[sub] = struct{}{}
			s.count.Store(int64(len(subs)))
			s.log.Info("subscriber joined", "subscriber", sub.id, "remote", sub.remote, "subscribers", len(subs))

			if snap := s.agg.Snapshot(); snap.HasData() {
				s.push(ctx, subs, []*subscriber{sub})
			}

		case sub := <-s.leave:
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				sub.close()
				s.count.Store(int64(len(subs)))
				s.log.Info("subscriber left", "subscriber", sub.id, "subscribers", len(subs))
			}

		case <-watch:
			if len(subs) == 0 {
				continue
			}
			targets := make([]*subscriber, 0, len(subs))
			for sub := range subs {
				targets = append(targets, sub)
			}
			s.push(ctx, subs, targets)
		}
	}
}

// push writes the current snapshot to targets, then sweeps every target
// that failed out of subs.
func (s *Server) push(ctx context.Context, subs map[*subscriber]struct{}, targets []*subscriber) {
	payload, err := streaming.EncodeSnapshot(s.agg.Snapshot())
	if err != nil {
		s.log.Error("snapshot encode failed", "error", err)
		return
	}

	var failed []*subscriber
	for _, sub := range targets {
		if err := sub.write(payload); err != nil {
			s.log.Debug("push failed", "subscriber", sub.id, "error", err)
			failed = append(failed, sub)
			continue
		}
		s.pushes.Add(ctx, 1)
	}

	for _, sub := range failed {
		delete(subs, sub)
		sub.close()
	}
	if len(failed) > 0 {
		s.pruned.Add(ctx, int64(len(failed)))
		s.count.Store(int64(len(subs)))
		s.log.Info("pruned subscribers", "pruned", len(failed), "subscribers", len(subs))
	}
}

// ListenAndServe serves the upgrade endpoint and runs the fan-out loop
// until ctx is cancelled or the listener fails. Shutdown is abrupt.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s.Handler())

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %w", ErrTransportFault, s.cfg.Address, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
		cancel()
	}()

	s.log.Info("broadcast server listening", "address", ln.Addr().String(), "path", s.cfg.Path)

	runErr := s.Run(runCtx)
	_ = srv.Close()

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%w: %w", ErrTransportFault, err)
	}
	return runErr
}
