package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"golang.org/x/sync/errgroup"

	"github.com/OCAP2/relay/internal/broadcast"
	"github.com/OCAP2/relay/internal/config"
	"github.com/OCAP2/relay/internal/database"
	"github.com/OCAP2/relay/internal/influx"
	"github.com/OCAP2/relay/internal/logging"
	"github.com/OCAP2/relay/internal/monitor"
	intOtel "github.com/OCAP2/relay/internal/otel"
	"github.com/OCAP2/relay/internal/planner"
	"github.com/OCAP2/relay/internal/relay"
	"github.com/OCAP2/relay/internal/state"
	"github.com/OCAP2/relay/internal/transport"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion loop and the broadcast server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Relay())
		},
	}

	flags := cmd.Flags()
	flags.String("ingest", "", "ingestion endpoint, e.g. tcp://*:5555")
	flags.String("listen", "", "broadcast listen address, e.g. :8765")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("ingest.endpoint", flags.Lookup("ingest"))
	_ = viper.BindPFlag("broadcast.address", flags.Lookup("listen"))
	_ = viper.BindPFlag("logLevel", flags.Lookup("log-level"))

	return cmd
}

// services holds everything serve starts, so shutdown can unwind it.
type services struct {
	logs    *logging.SlogManager
	logger  *slog.Logger
	zl      zerolog.Logger
	otel    *intOtel.Provider
	db      *database.Manager
	influx  *influx.Manager
	logFile io.WriteCloser
}

func serve(ctx context.Context, cfg config.Settings) error {
	svc := &services{logs: logging.NewSlogManager()}
	defer svc.shutdown()

	svc.setupLogging(ctx, cfg)
	logger := svc.logger
	logger.Info("Starting up...", "version", CurrentVersion, "buildDate", BuildDate)

	agg := state.NewAggregator()

	tr, err := transport.ListenZMQ(ctx, cfg.Ingest.Endpoint)
	if err != nil {
		return err
	}
	logger.Info("Listening for simulation requests", "endpoint", cfg.Ingest.Endpoint)

	rl, err := relay.New(tr, agg, relay.Options{
		Solver:  planner.Stub{},
		PlanTTL: cfg.PlanTTL,
		Logger:  componentLogger(logger, "relay"),
	})
	if err != nil {
		_ = tr.Close()
		return fmt.Errorf("failed to create relay: %w", err)
	}

	srv, err := broadcast.New(broadcast.Config{
		Address:   cfg.Broadcast.Address,
		Path:      cfg.Broadcast.Path,
		WriteWait: cfg.Broadcast.WriteWait,
		Secret:    cfg.Broadcast.Secret,
	}, agg, componentLogger(logger, "broadcast"))
	if err != nil {
		_ = tr.Close()
		return fmt.Errorf("failed to create broadcast server: %w", err)
	}

	svc.logs.SetContextProvider(func() []slog.Attr {
		return []slog.Attr{
			slog.Uint64("snapshotSeq", agg.Seq()),
			slog.Int("subscribers", srv.SubscriberCount()),
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rl.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if cfg.Monitor.Enabled {
		deps := monitor.Dependencies{
			Relay:       rl,
			Snapshots:   agg,
			Subscribers: srv,
			Logger:      componentLogger(logger, "monitor"),
			StatusFile:  cfg.Monitor.StatusFile,
			Interval:    cfg.Monitor.Interval,
		}
		if db := svc.connectDB(cfg); db != nil {
			deps.Store = db
		}
		if ix := svc.connectInflux(ctx, cfg); ix != nil {
			deps.Points = ix
		}
		mon := monitor.NewService(deps)
		g.Go(func() error { return mon.Run(gctx) })
	}

	err = g.Wait()
	if err != nil {
		logger.Error("Relay stopped", "error", err)
		return err
	}
	logger.Info("Relay stopped")
	return nil
}

// componentLogger tags records from one subsystem. log.format only picks
// the file encoding; every subsystem logs through the same handlers.
func componentLogger(base *slog.Logger, component string) *slog.Logger {
	return base.With("component", component)
}

func (s *services) setupLogging(ctx context.Context, cfg config.Settings) {
	path := logging.LogFilePath(cfg.LogsDir, logging.ServiceName, SessionStartTime)
	file := logging.NewRotatingFile(path)
	s.logFile = file

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	s.zl = zerolog.New(file).Level(lvl).With().Timestamp().Str("service", logging.ServiceName).Logger()

	var provider *sdklog.LoggerProvider
	if cfg.OTel.Enabled {
		p, err := intOtel.New(ctx, intOtel.Config{
			Enabled:        true,
			ServiceName:    cfg.OTel.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   cfg.OTel.BatchTimeout,
			LogWriter:      file,
			Endpoint:       cfg.OTel.Endpoint,
			Insecure:       cfg.OTel.Insecure,
			MetricInterval: cfg.OTel.MetricInterval,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize OTel provider: %v\n", err)
		} else {
			s.otel = p
			provider = p.LoggerProvider()
		}
	}

	s.logs.Setup(logging.Output{
		Console:  os.Stdout,
		File:     file,
		Format:   cfg.LogFormat,
		Level:    cfg.LogLevel,
		Provider: provider,
	})
	s.logger = s.logs.Logger()
	s.logger.Info("Logging to file", "path", path)
}

// connectDB returns nil when storage is disabled or unusable.
func (s *services) connectDB(cfg config.Settings) *database.Manager {
	m := database.NewManager(s.zl.With().Str("component", "database").Logger(), cfg.Storage, cfg.DB)
	if err := m.Connect(); err != nil {
		if !errors.Is(err, database.ErrDisabled) {
			s.logger.Error("Failed to connect to database", "error", err)
		}
		return nil
	}
	if err := m.Setup(cfg.Ingest.Endpoint, cfg.Broadcast.Address); err != nil {
		s.logger.Error("Failed to set up database", "error", err)
		_ = m.Close()
		return nil
	}
	s.db = m
	return m
}

// connectInflux returns nil when influx is disabled or unusable.
func (s *services) connectInflux(ctx context.Context, cfg config.Settings) *influx.Manager {
	backup := filepath.Join(cfg.LogsDir,
		fmt.Sprintf("influx_backup.%s.lp.gz", SessionStartTime.Format("20060102_150405")))
	m := influx.NewManager(s.zl.With().Str("component", "influx").Logger(), cfg.Influx, backup)
	if err := m.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			s.logger.Error("Failed to connect to InfluxDB", "error", err)
		}
		return nil
	}
	s.influx = m
	return m
}

func (s *services) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.influx != nil {
		if err := s.influx.Close(); err != nil {
			s.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", "error", err)
		}
	}
	_ = s.logs.Flush(ctx)
	if s.otel != nil {
		_ = s.otel.Shutdown(ctx)
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}
