package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/OCAP2/relay/internal/config"
	"github.com/OCAP2/relay/internal/model"
)

// Storage types.
const (
	TypeNone     = "none"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// ErrDisabled is returned by Connect when storage.type is none.
var ErrDisabled = errors.New("database storage disabled")

// ProtocolVersion is recorded with each relay start.
const ProtocolVersion = "1"

// Manager handles database connections and operations.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	Logger          zerolog.Logger

	storage config.StorageConfig
	pg      config.DBConfig
	info    model.RelayInfo
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger, storage config.StorageConfig, pg config.DBConfig) *Manager {
	return &Manager{
		Logger:  log,
		storage: storage,
		pg:      pg,
	}
}

// Connect opens the configured database. A Postgres connection that fails
// falls back to the SQLite file so samples are still kept.
func (m *Manager) Connect() error {
	var err error

	switch m.storage.Type {
	case "", TypeNone:
		return ErrDisabled
	case TypeSQLite:
		m.ShouldSaveLocal = true
		m.DB, err = m.GetSqliteDB(m.storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("failed to open SQLite DB: %w", err)
		}
	case TypePostgres:
		m.DB, err = m.GetPostgresDB()
		if err == nil {
			err = ping(m.DB)
		}
		if err != nil {
			m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
			m.ShouldSaveLocal = true
			m.DB, err = m.GetSqliteDB(m.storage.SQLite.Path)
			if err != nil {
				return fmt.Errorf("failed to get local SQLite DB: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown storage type %q", m.storage.Type)
	}

	m.SqlDB, err = m.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := m.SqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}

	if !m.ShouldSaveLocal {
		m.SqlDB.SetMaxOpenConns(10)
	}

	m.IsValid = true
	m.Logger.Info().Str("dialect", m.DB.Dialector.Name()).Msg("Connected to database")
	return nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetPostgresDB returns a connection to the Postgres database.
func (m *Manager) GetPostgresDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		m.pg.Host, m.pg.Port, m.pg.Username, m.pg.Password, m.pg.Database,
	)

	m.Logger.Debug().Str("host", m.pg.Host).Str("database", m.pg.Database).Msg("Connecting to Postgres DB")

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB returns a connection to a SQLite database file.
// If path is empty, uses an in-memory database.
func (m *Manager) GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if path != "" {
		m.Logger.Info().Str("path", path).Msg("Using local SQLite DB")
	} else {
		m.Logger.Info().Msg("Using in-memory SQLite DB")
	}
	return db, nil
}

// Setup migrates tables and records this relay start.
func (m *Manager) Setup(ingestEndpoint, broadcastAddr string) error {
	m.Logger.Info().Msg("Migrating schema")
	if err := m.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	hostname, _ := os.Hostname()
	m.info = model.RelayInfo{
		Hostname:        hostname,
		IngestEndpoint:  ingestEndpoint,
		BroadcastAddr:   broadcastAddr,
		ProtocolVersion: ProtocolVersion,
	}
	if err := m.DB.Create(&m.info).Error; err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to create relay_info entry: %w", err)
	}

	m.Logger.Info().Uint("relayInfoId", m.info.ID).Msg("Database setup complete")
	return nil
}

// InsertPerformance stores one monitor sample tagged with this relay start.
func (m *Manager) InsertPerformance(perf *model.RelayPerformance) error {
	if !m.IsValid {
		return errors.New("database not connected")
	}
	perf.RelayInfoID = m.info.ID
	return m.DB.Create(perf).Error
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	m.IsValid = false
	return m.SqlDB.Close()
}
