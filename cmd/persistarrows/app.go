package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/internal/database"
	"github.com/persistarrows/extension/internal/dispatcher"
	"github.com/persistarrows/extension/internal/engine"
	"github.com/persistarrows/extension/internal/influx"
	"github.com/persistarrows/extension/internal/journal"
	"github.com/persistarrows/extension/internal/logging"
	"github.com/persistarrows/extension/internal/monitor"
	intOtel "github.com/persistarrows/extension/internal/otel"
	"github.com/persistarrows/extension/internal/simhost"
	"github.com/persistarrows/extension/pkg/core"
	"github.com/persistarrows/extension/pkg/hostabi"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// CommandMetric forwards a custom influx point from the host.
const CommandMetric = ":METRIC:"

// appOptions selects the host and clock an app runs against.
type appOptions struct {
	ConfigDir string
	HostName  string
	Worlds    []core.WorldRef
	Now       func() time.Time
}

// app owns every long-lived component of one session.
type app struct {
	session core.Session

	logs    *logging.SlogManager
	logger  *slog.Logger
	logFile *os.File
	closers []io.Closer

	otel       *intOtel.Provider
	recorder   *journal.Recorder
	influx     *influx.Manager
	engine     atomic.Pointer[engine.Service]
	dispatcher *dispatcher.Dispatcher
	bridge     *hostabi.Bridge
	monitor    *monitor.Service
	host       *simhost.Host
}

func newApp(opts appOptions) (*app, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &app{
		session: core.Session{
			ID:        uuid.New(),
			Host:      opts.HostName,
			Version:   CurrentExtensionVersion,
			StartedAt: opts.Now(),
		},
		logs: logging.NewSlogManager(),
	}

	a.logs.Setup(nil, "info", nil)
	a.logger = a.logs.Logger()

	configLoaded := true
	if err := config.Load(opts.ConfigDir); err != nil {
		configLoaded = false
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	}

	a.setupLogging()
	if configLoaded {
		config.Watch(a.logs.SetLevel)
	}

	if err := a.setupJournal(opts.Now()); err != nil {
		a.Close()
		return nil, err
	}
	a.setupInflux()

	a.host = simhost.NewHost(opts.Worlds...)
	svc, err := engine.New(engine.Options{
		Config:  config.GetEngineConfig(),
		Spawner: a.host,
		Sink:    core.EventSinkFunc(a.recordEvent),
		Logger:  a.logger.With("component", "engine"),
		Now:     opts.Now,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	a.engine.Store(svc)
	svc.OnStats(a.recordStats)

	if err := a.setupBridge(svc); err != nil {
		a.Close()
		return nil, err
	}

	if a.recorder != nil {
		if err := a.recorder.Start(&a.session); err != nil {
			a.logger.Error("Failed to start journal, continuing without it", "error", err)
			_ = a.recorder.Close()
			a.recorder = nil
		}
	}

	a.setupMonitor(svc, opts.Now)

	a.logger.Info("Session started",
		"session", a.session.ID, "host", a.session.Host, "version", CurrentExtensionVersion, "build", BuildDate)
	return a, nil
}

// setupLogging re-creates the logger with the session log file, OTel and
// Graylog outputs from config.
func (a *app) setupLogging() {
	f, logPath, err := logging.OpenLogFile(config.GetString("logsDir"), ExtensionName, a.session.StartedAt)
	if err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "path", logPath)
	} else {
		a.logFile = f
	}

	var logWriter io.Writer
	if a.logFile != nil {
		logWriter = a.logFile
	}

	otelCfg := config.GetOTelConfig()
	a.otel, err = intOtel.New(intOtel.FromConfig(otelCfg, CurrentExtensionVersion, logWriter))
	if err != nil {
		a.logger.Error("Failed to initialize OTel provider", "error", err)
	} else if otelCfg.Enabled {
		a.otel.SetGlobal()
		a.logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint, "metricInterval", otelCfg.MetricInterval)
	}

	var setupOpts []logging.SetupOption
	setupOpts = append(setupOpts, logging.WithContext(a.logContext))

	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address, gl.Facility)
		if err != nil {
			a.logger.Error("Failed to connect to Graylog", "error", err, "address", gl.Address)
		} else {
			setupOpts = append(setupOpts, logging.WithGraylog(w))
			a.closers = append(a.closers, w)
		}
	}

	var provider *sdklog.LoggerProvider
	if a.otel != nil {
		provider = a.otel.LoggerProvider()
	}
	a.logs.Setup(logWriter, config.GetString("logLevel"), provider, setupOpts...)
	a.logger = a.logs.Logger()
	if a.logFile != nil {
		a.logger.Info("Logging to file", "path", logPath)
	}
}

func (a *app) logContext() []slog.Attr {
	if svc := a.engine.Load(); svc != nil {
		return svc.LogContext()
	}
	return nil
}

func (a *app) setupJournal(start time.Time) error {
	cfg := config.GetJournalConfig()
	if cfg.Type == "sqlite" && !strings.HasSuffix(cfg.SQLite.Path, ".db") {
		cfg.SQLite.Path = filepath.Join(cfg.SQLite.Path, database.BackupName(ExtensionName, start))
	}

	backend, err := journal.NewBackend(cfg, a.logger.With("component", "journal"))
	if err != nil {
		return fmt.Errorf("failed to create journal backend: %w", err)
	}
	if backend == nil {
		a.logger.Info("Journal disabled")
		return nil
	}
	a.recorder = journal.NewRecorder(backend, cfg.FlushInterval, cfg.BufferSize, a.logger.With("component", "journal"))
	a.logger.Info("Journal backend initialized", "type", cfg.Type)
	return nil
}

func (a *app) setupInflux() {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return
	}

	var out io.Writer = os.Stderr
	if a.logFile != nil {
		out = a.logFile
	}
	zl := zerolog.New(out).With().Timestamp().Logger()

	m := influx.NewManager(cfg, zl)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		a.logger.Error("Failed to connect to InfluxDB", "error", err)
		if err := m.UseBackup(); err != nil {
			a.logger.Error("Failed to open InfluxDB backup file", "error", err)
			return
		}
	}
	a.influx = m
}

func (a *app) setupBridge(svc *engine.Service) error {
	d, err := dispatcher.New(logging.NewDispatcherLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	svc.RegisterHandlers(d)

	if a.influx != nil {
		d.Register(CommandMetric, func(e dispatcher.Event) (any, error) {
			point, err := influx.ParseMetric(e.Args)
			if err != nil {
				return nil, err
			}
			return nil, a.influx.WritePoint(point)
		}, dispatcher.Buffered(1000), dispatcher.Logged())
	}

	a.dispatcher = d
	a.bridge = hostabi.NewBridge(CurrentExtensionVersion, BuildDate)
	a.bridge.SetDispatcher(d)
	a.logger.Info("Dispatcher initialized", "commands", d.Commands())
	return nil
}

func (a *app) setupMonitor(svc *engine.Service, now func() time.Time) {
	cfg := config.GetMonitorConfig()
	if !cfg.Enabled {
		return
	}
	a.monitor = monitor.NewService(monitor.Dependencies{
		Stats:      svc,
		Session:    a.session,
		Journal:    a.journalState,
		StatusFile: cfg.StatusFile,
		Interval:   cfg.Interval,
		Logger:     a.logger.With("component", "monitor"),
		Now:        now,
	})
	if err := a.monitor.Start(); err != nil {
		a.logger.Error("Failed to start status monitor", "error", err)
		a.monitor = nil
	}
}

func (a *app) journalState() monitor.JournalState {
	if a.recorder == nil {
		return monitor.JournalState{}
	}
	return monitor.JournalState{
		Pending: a.recorder.Pending(),
		Written: a.recorder.Written(),
		Dropped: a.recorder.Dropped(),
	}
}

// recordEvent fans lifecycle events out to the journal and influx.
func (a *app) recordEvent(e core.LifecycleEvent) {
	if a.recorder != nil {
		a.recorder.Record(e)
	}
	if a.influx != nil {
		if err := a.influx.WritePoint(influx.LifecyclePoint(a.session, e)); err != nil {
			a.logger.Debug("Failed to write lifecycle point", "error", err)
		}
	}
}

func (a *app) recordStats(s core.Stats) {
	if a.recorder != nil {
		a.recorder.RecordStats(s)
	}
	if a.influx != nil {
		if err := a.influx.WritePoint(influx.StatsPoint(a.session, s)); err != nil {
			a.logger.Debug("Failed to write stats point", "error", err)
		}
	}
}

// Close stops every component in reverse start order and flushes telemetry.
func (a *app) Close() error {
	var errs []error

	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if svc := a.engine.Load(); svc != nil {
		a.recordStats(svc.Stats())
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close influx: %w", err))
		}
	}

	a.logger.Info("Session ended", "session", a.session.ID)

	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown otel: %w", err))
		}
		cancel()
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return errors.Join(errs...)
}
