// Package monitor samples relay health on an interval and publishes it to
// a status file, the database and InfluxDB. Sampling never touches
// snapshot history; it reads counters only.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"gorm.io/datatypes"

	"github.com/OCAP2/relay/internal/model"
	"github.com/OCAP2/relay/internal/relay"
	"github.com/OCAP2/relay/pkg/core"
)

// Measurement is the influx measurement name for samples.
const Measurement = "relay_performance"

// RelaySource exposes the ingestion loop's counters.
type RelaySource interface {
	Stats() relay.Stats
	State() relay.State
}

// SnapshotSource exposes the current snapshot.
type SnapshotSource interface {
	Snapshot() core.Snapshot
}

// SubscriberSource exposes the broadcast subscriber count.
type SubscriberSource interface {
	SubscriberCount() int
}

// PerformanceStore persists samples. *database.Manager satisfies it.
type PerformanceStore interface {
	InsertPerformance(*model.RelayPerformance) error
}

// PointWriter exports samples. *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(*influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service. Store and
// Points are optional.
type Dependencies struct {
	Relay       RelaySource
	Snapshots   SnapshotSource
	Subscribers SubscriberSource
	Store       PerformanceStore
	Points      PointWriter
	Logger      *slog.Logger
	StatusFile  string
	Interval    time.Duration
}

// Status is one sample.
type Status struct {
	Time        time.Time   `json:"time"`
	State       string      `json:"state"`
	Stats       relay.Stats `json:"stats"`
	Subscribers int         `json:"subscribers"`
	SnapshotSeq uint64      `json:"snapshotSeq"`
	LastUpdate  *time.Time  `json:"lastUpdate"`
	Platforms   int         `json:"platforms"`
	Targets     int         `json:"targets"`
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu        sync.RWMutex
	isRunning bool
	last      Status
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Last returns the most recent sample.
func (s *Service) Last() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Sample reads the current counters.
func (s *Service) Sample(now time.Time) Status {
	snap := s.deps.Snapshots.Snapshot()
	st := Status{
		Time:        now.UTC(),
		State:       s.deps.Relay.State().String(),
		Stats:       s.deps.Relay.Stats(),
		SnapshotSeq: snap.Seq,
		LastUpdate:  snap.Timestamp,
		Platforms:   len(snap.Platforms),
		Targets:     len(snap.Targets),
	}
	if s.deps.Subscribers != nil {
		st.Subscribers = s.deps.Subscribers.SubscriberCount()
	}
	return st
}

// Performance converts a sample to its database row.
func (st Status) Performance() (*model.RelayPerformance, error) {
	byKind, err := json.Marshal(st.Stats.ByKind)
	if err != nil {
		return nil, fmt.Errorf("encoding per-kind counts: %w", err)
	}
	return &model.RelayPerformance{
		Time:            st.Time,
		State:           st.State,
		Requests:        st.Stats.Requests,
		Replies:         st.Stats.Replies,
		DecodeFailures:  st.Stats.DecodeFailures,
		UnknownVariants: st.Stats.UnknownVariants,
		HandlerFailures: st.Stats.HandlerFailures,
		RequestsByKind:  datatypes.JSON(byKind),
		Subscribers:     st.Subscribers,
		SnapshotSeq:     st.SnapshotSeq,
		Platforms:       st.Platforms,
		Targets:         st.Targets,
	}, nil
}

// Point converts a sample to an influx point.
func (st Status) Point() *influxdb2_write.Point {
	fields := map[string]interface{}{
		"requests":         int64(st.Stats.Requests),
		"replies":          int64(st.Stats.Replies),
		"decode_failures":  int64(st.Stats.DecodeFailures),
		"unknown_variants": int64(st.Stats.UnknownVariants),
		"handler_failures": int64(st.Stats.HandlerFailures),
		"subscribers":      int64(st.Subscribers),
		"snapshot_seq":     int64(st.SnapshotSeq),
		"platforms":        int64(st.Platforms),
		"targets":          int64(st.Targets),
	}
	for kind, n := range st.Stats.ByKind {
		fields["kind_"+kind] = int64(n)
	}
	return influxdb2_write.NewPoint(Measurement, map[string]string{"state": st.State}, fields, st.Time)
}

// WriteStatusFile replaces path with st rendered as indented JSON. The
// write goes through a temp file so readers never see a partial file.
func WriteStatusFile(path string, st Status) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*")
	if err != nil {
		return fmt.Errorf("creating status file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Tick takes one sample and publishes it. Publish failures are logged.
func (s *Service) Tick(now time.Time) Status {
	logger := s.deps.Logger
	st := s.Sample(now)

	s.mu.Lock()
	s.last = st
	s.mu.Unlock()

	if s.deps.StatusFile != "" {
		if err := WriteStatusFile(s.deps.StatusFile, st); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	if s.deps.Store != nil {
		perf, err := st.Performance()
		if err == nil {
			err = s.deps.Store.InsertPerformance(perf)
		}
		if err != nil {
			logger.Error("Error writing perf model to database", "error", err)
		}
	}

	if s.deps.Points != nil {
		if err := s.deps.Points.WritePoint(st.Point()); err != nil {
			logger.Error("Error writing perf point to InfluxDB", "error", err)
		}
	}

	return st
}

// Run samples every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}
