// Package influx writes engine stats and lifecycle counts as InfluxDB
// points, falling back to a gzip line-protocol file when the server is down.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/pkg/core"
	"github.com/rs/zerolog"
)

const (
	MeasurementStats     = "persistarrows_stats"
	MeasurementLifecycle = "persistarrows_lifecycle"

	backupFileName = "persistarrows_influx_backup.lp.gz"
	retentionDays  = 90
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx.enabled is false")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger) *Manager {
	dir := cfg.BackupDir
	if dir == "" {
		dir = "."
	}
	return &Manager{
		cfg:        cfg,
		Logger:     log.With().Str("component", "influx").Logger(),
		BackupPath: filepath.Join(dir, backupFileName),
	}
}

func (m *Manager) serverURL() string {
	return fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
}

// Connect pings the server and prepares the bucket. When the server is not
// reachable every point goes to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.serverURL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("url", m.serverURL()).Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

// UseBackup switches the manager to the backup file without contacting a server.
func (m *Manager) UseBackup() error {
	return m.openBackup()
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.IsValid = false
	if m.BackupWriter != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.BackupPath), 0755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	m.Logger.Warn().Msg("InfluxDB client unavailable, using backup writer")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	org, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		org, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: 60 * 60 * 24 * retentionDays,
	})
	if err != nil {
		m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
		return err
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
	m.Logger.Debug().Msg("InfluxDB writer initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// StatsPoint builds the periodic stats point for a session.
func StatsPoint(session core.Session, s core.Stats) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementStats,
		map[string]string{
			"host":    session.Host,
			"session": session.ID.String(),
		},
		map[string]any{
			"tick":       int64(s.Tick),
			"tracked":    s.Tracked,
			"pending":    s.Pending,
			"persistent": s.Persistent,
			"candidates": s.Candidates,
			"scheduled":  int64(s.Scheduled),
			"respawned":  int64(s.Respawned),
			"expired":    int64(s.Expired),
			"failed":     int64(s.Failed),
			"cleaned":    int64(s.Cleaned),
		},
		s.At,
	)
}

// LifecyclePoint builds one counter point per lifecycle event.
func LifecyclePoint(session core.Session, e core.LifecycleEvent) *influxdb2_write.Point {
	tags := map[string]string{
		"session": session.ID.String(),
		"kind":    string(e.Kind),
	}
	if e.World != "" {
		tags["world"] = string(e.World)
	}
	return influxdb2.NewPoint(MeasurementLifecycle, tags,
		map[string]any{
			"count":      1,
			"projectile": e.ProjectileID.String(),
		},
		e.At,
	)
}

// ParseMetric turns a host metric command into a point. Args are the
// measurement name followed by "tag::name::value" and
// "field::type::name::value" entries, type being string, int or float.
func ParseMetric(data []string) (*influxdb2_write.Point, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("metric needs a measurement and at least one field")
	}
	point := influxdb2_write.NewPointWithMeasurement(data[0])

	fields := 0
	for _, entry := range data[1:] {
		parts := strings.Split(entry, "::")
		switch {
		case parts[0] == "tag" && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])
		case parts[0] == "field" && len(parts) >= 4:
			name, value := parts[2], parts[3]
			switch parts[1] {
			case "string":
				point.AddField(name, value)
			case "int":
				intVal, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("error converting field value '%s' to int: %w", value, err)
				}
				point.AddField(name, intVal)
			case "float":
				floatVal, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("error converting field value '%s' to float: %w", value, err)
				}
				point.AddField(name, floatVal)
			default:
				return nil, fmt.Errorf("unknown field type %q", parts[1])
			}
			fields++
		}
	}
	if fields == 0 {
		return nil, fmt.Errorf("metric %s has no fields", data[0])
	}
	return point, nil
}
