package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"tracking": { "graceMs": 1500 },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 1500, viper.GetInt("tracking.graceMs"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "persistarrows", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("journal.type"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "persistarrows", viper.GetString("otel.serviceName"))
	assert.Equal(t, true, viper.GetBool("otel.insecure"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetEngineConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetEngineConfig()
	assert.Equal(t, 2000*time.Millisecond, cfg.Grace)
	assert.Equal(t, 5*time.Minute, cfg.MaxAge)
	assert.Equal(t, 100, cfg.CleanupEveryTicks)
	assert.Equal(t, 10.0, cfg.HealthThreshold)
	assert.Equal(t, "area_effect_cloud", cfg.SourceKind)
	assert.Equal(t, 5000*time.Millisecond, cfg.RequestTTL)
}

func TestGetEngineConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"tracking": { "graceMs": 500, "maxAge": "1m", "cleanupEveryTicks": 20 },
		"impact": { "healthThreshold": 4, "sourceKind": "magic" },
		"respawn": { "requestTTLMs": 250 }
	}`)))

	cfg := GetEngineConfig()
	assert.Equal(t, 500*time.Millisecond, cfg.Grace)
	assert.Equal(t, time.Minute, cfg.MaxAge)
	assert.Equal(t, 20, cfg.CleanupEveryTicks)
	assert.Equal(t, 4.0, cfg.HealthThreshold)
	assert.Equal(t, "magic", cfg.SourceKind)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTTL)
}

func TestGetJournalConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetJournalConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, time.Second, cfg.FlushInterval)
	assert.Equal(t, 10000, cfg.BufferSize)
	assert.Equal(t, "./journal", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
}

func TestGetJournalConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"journal": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "path": "/tmp/j.db", "dumpInterval": "10m" }
		},
		"websocket": { "url": "ws://localhost:5000/ingest", "secret": "s3cret" }
	}`)))

	jc := GetJournalConfig()
	assert.Equal(t, "sqlite", jc.Type)
	assert.Equal(t, "/tmp/out", jc.Memory.OutputDir)
	assert.Equal(t, false, jc.Memory.CompressOutput)
	assert.Equal(t, "/tmp/j.db", jc.SQLite.Path)
	assert.Equal(t, 10*time.Minute, jc.SQLite.DumpInterval)
	assert.Equal(t, "ws://localhost:5000/ingest", jc.WebSocket.URL)
	assert.Equal(t, "s3cret", jc.WebSocket.Secret)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"metricInterval": "10s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, 10*time.Second, oc.MetricInterval)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxGraylogMonitor_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "persistarrows", ic.Bucket)

	gc := GetGraylogConfig()
	assert.Equal(t, "persistarrows", gc.Facility)

	mc := GetMonitorConfig()
	assert.False(t, mc.Enabled)
	assert.Equal(t, 5*time.Second, mc.Interval)
}

func TestWatch_ReportsLevelChange(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := writeConfig(t, `{"logLevel": "info"}`)
	require.NoError(t, Load(dir))

	levels := make(chan string, 4)
	Watch(func(level string) {
		select {
		case levels <- level:
		default:
		}
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"logLevel": "debug"}`), 0644))

	select {
	case lvl := <-levels:
		assert.Equal(t, "debug", lvl)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not reported")
	}
}
