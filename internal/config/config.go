package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "relay.cfg.json"

// EnvPrefix prefixes environment overrides: RELAY_INGEST_ENDPOINT and so on.
const EnvPrefix = "RELAY"

// IngestConfig holds request/reply transport settings
type IngestConfig struct {
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
}

// BroadcastConfig holds subscriber push-channel settings
type BroadcastConfig struct {
	Address   string        `json:"address" mapstructure:"address"`
	Path      string        `json:"path" mapstructure:"path"`
	WriteWait time.Duration `json:"writeWait" mapstructure:"writeWait"`
	Secret    string        `json:"secret" mapstructure:"secret"`
}

// MonitorConfig holds operator status monitor settings
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// SQLiteConfig holds SQLite storage settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// StorageConfig selects where monitor samples are persisted
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"` // none, sqlite, postgres
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`

	// MetricInterval is how often counters are exported. Zero disables metric export.
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
}

// Settings is the whole configuration.
type Settings struct {
	LogLevel  string
	LogsDir   string
	LogFormat string
	PlanTTL   float64
	Ingest    IngestConfig
	Broadcast BroadcastConfig
	Monitor   MonitorConfig
	Storage   StorageConfig
	DB        DBConfig
	Influx    InfluxConfig
	OTel      OTelConfig
}

// Load reads configuration from the JSON file in configDir and sets default
// values. A missing file is not an error: defaults and environment
// overrides apply.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./relaylogs")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("ingest.endpoint", "tcp://*:5555")

	viper.SetDefault("broadcast.address", ":8765")
	viper.SetDefault("broadcast.path", "/ws")
	viper.SetDefault("broadcast.writeWait", "5s")
	viper.SetDefault("broadcast.secret", "")

	viper.SetDefault("plan.ttlSec", 2.0)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "5s")
	viper.SetDefault("monitor.statusFile", "./relay_status.json")

	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.sqlite.path", "./relay.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "relay")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "relay-metrics")
	viper.SetDefault("influx.bucket", "relay_performance")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "relay")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metricInterval", "30s")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetIngestConfig returns the ingestion transport configuration.
func GetIngestConfig() IngestConfig {
	return IngestConfig{Endpoint: viper.GetString("ingest.endpoint")}
}

// GetBroadcastConfig returns the broadcast server configuration.
func GetBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		Address:   viper.GetString("broadcast.address"),
		Path:      viper.GetString("broadcast.path"),
		WriteWait: viper.GetDuration("broadcast.writeWait"),
		Secret:    viper.GetString("broadcast.secret"),
	}
}

// GetMonitorConfig returns the status monitor configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetStorageConfig returns the storage configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:   viper.GetString("storage.type"),
		SQLite: SQLiteConfig{Path: viper.GetString("storage.sqlite.path")},
	}
}

// GetDBConfig returns the Postgres configuration.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),

		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// Relay returns every section at once.
func Relay() Settings {
	return Settings{
		LogLevel:  viper.GetString("logLevel"),
		LogsDir:   viper.GetString("logsDir"),
		LogFormat: viper.GetString("log.format"),
		PlanTTL:   viper.GetFloat64("plan.ttlSec"),
		Ingest:    GetIngestConfig(),
		Broadcast: GetBroadcastConfig(),
		Monitor:   GetMonitorConfig(),
		Storage:   GetStorageConfig(),
		DB:        GetDBConfig(),
		Influx:    GetInfluxConfig(),
		OTel:      GetOTelConfig(),
	}
}
