package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Log output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ServiceName names the process in log records and OTel scopes.
const ServiceName = "relay"

// Output describes where the process logger writes. Every field is
// optional; with none set records are dropped.
type Output struct {
	// Console receives human-readable text regardless of Format.
	Console io.Writer
	// File receives records in Format.
	File     io.Writer
	Format   string
	Level    string
	Provider *sdklog.LoggerProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger      *slog.Logger
	base        slog.Handler
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// Setup (re)builds the logger from out. Loggers handed out earlier keep
// writing to their old sinks.
func (m *SlogManager) Setup(out Output) {
	opts := &slog.HandlerOptions{Level: parseLevel(out.Level), ReplaceAttr: utcTime}

	var handlers []slog.Handler
	if out.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(out.Console, opts))
	}
	if out.File != nil {
		if out.Format == FormatJSON {
			handlers = append(handlers, slog.NewJSONHandler(out.File, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out.File, opts))
		}
	}
	if out.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(out.Provider)))
	}

	m.logProvider = out.Provider
	m.base = NewMultiHandler(handlers...)
	m.logger = slog.New(m.base)
	m.logger.Debug("Logging initialized", "level", opts.Level, "format", out.Format)
}

// SetContextProvider adds provider's attributes to every record logged
// from now on. A later call replaces the provider rather than stacking.
func (m *SlogManager) SetContextProvider(provider ContextProvider) {
	base := m.base
	if base == nil {
		base = slog.Default().Handler()
	}
	m.logger = slog.New(NewContextHandler(base, provider))
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
