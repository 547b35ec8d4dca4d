// Package config loads persistarrows.cfg.json through viper and exposes
// typed views of each section.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "persistarrows.cfg.json"

// EngineConfig holds the core timing and correlation settings.
type EngineConfig struct {
	Grace             time.Duration
	MaxAge            time.Duration
	CleanupEveryTicks int
	HealthThreshold   float64
	SourceKind        string
	RequestTTL        time.Duration
}

// MemoryConfig holds in-memory/JSON journal settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds in-memory sqlite journal settings.
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// WebSocketConfig holds streaming journal settings.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// JournalConfig selects and configures the lifecycle journal backend.
type JournalConfig struct {
	Type          string
	FlushInterval time.Duration
	BufferSize    int
	Memory        MemoryConfig
	SQLite        SQLiteConfig
	Postgres      DBConfig
	WebSocket     WebSocketConfig
}

// InfluxConfig holds the stats sink settings.
type InfluxConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Protocol  string
	Token     string
	Org       string
	Bucket    string
	BackupDir string
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled  bool
	Address  string
	Facility string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// MonitorConfig holds the status file settings.
type MonitorConfig struct {
	Enabled    bool
	StatusFile string
	Interval   time.Duration
}

// SetDefaults registers every default value. Load calls it; tests that do
// not read a file may call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("tracking.graceMs", 2000)
	viper.SetDefault("tracking.maxAge", "5m")
	viper.SetDefault("tracking.cleanupEveryTicks", 100)
	viper.SetDefault("impact.healthThreshold", 10.0)
	viper.SetDefault("impact.sourceKind", "area_effect_cloud")
	viper.SetDefault("respawn.requestTTLMs", 5000)

	viper.SetDefault("journal.type", "memory")
	viper.SetDefault("journal.flushInterval", "1s")
	viper.SetDefault("journal.bufferSize", 10000)
	viper.SetDefault("journal.memory.outputDir", "./journal")
	viper.SetDefault("journal.memory.compressOutput", true)
	viper.SetDefault("journal.sqlite.path", "./journal/persistarrows.db")
	viper.SetDefault("journal.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "persistarrows")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("websocket.url", "")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "persistarrows")
	viper.SetDefault("influx.bucket", "persistarrows")
	viper.SetDefault("influx.backupDir", "./logs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
	viper.SetDefault("graylog.facility", "persistarrows")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "persistarrows")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.statusFile", "./logs/persistarrows.status.json")
	viper.SetDefault("monitor.interval", "5s")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Watch calls onLevel with the new logLevel whenever the config file changes.
func Watch(onLevel func(level string)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onLevel(viper.GetString("logLevel"))
	})
	viper.WatchConfig()
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

func GetEngineConfig() EngineConfig {
	return EngineConfig{
		Grace:             time.Duration(viper.GetInt("tracking.graceMs")) * time.Millisecond,
		MaxAge:            viper.GetDuration("tracking.maxAge"),
		CleanupEveryTicks: viper.GetInt("tracking.cleanupEveryTicks"),
		HealthThreshold:   viper.GetFloat64("impact.healthThreshold"),
		SourceKind:        viper.GetString("impact.sourceKind"),
		RequestTTL:        time.Duration(viper.GetInt("respawn.requestTTLMs")) * time.Millisecond,
	}
}

func GetJournalConfig() JournalConfig {
	return JournalConfig{
		Type:          viper.GetString("journal.type"),
		FlushInterval: viper.GetDuration("journal.flushInterval"),
		BufferSize:    viper.GetInt("journal.bufferSize"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("journal.memory.outputDir"),
			CompressOutput: viper.GetBool("journal.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("journal.sqlite.path"),
			DumpInterval: viper.GetDuration("journal.sqlite.dumpInterval"),
		},
		Postgres: GetDBConfig(),
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("websocket.url"),
			Secret: viper.GetString("websocket.secret"),
		},
	}
}

func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
		SSLMode:  viper.GetString("db.sslmode"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled:  viper.GetBool("graylog.enabled"),
		Address:  viper.GetString("graylog.address"),
		Facility: viper.GetString("graylog.facility"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		StatusFile: viper.GetString("monitor.statusFile"),
		Interval:   viper.GetDuration("monitor.interval"),
	}
}
