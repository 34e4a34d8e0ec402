package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/timetrack/internal/config"
	"github.com/eliteGoblin/focusd/timetrack/internal/daemon"
	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
	"github.com/eliteGoblin/focusd/timetrack/internal/focus"
	"github.com/eliteGoblin/focusd/timetrack/internal/idle"
	"github.com/eliteGoblin/focusd/timetrack/internal/infra"
	"github.com/eliteGoblin/focusd/timetrack/internal/policy"
	"github.com/eliteGoblin/focusd/timetrack/internal/pomodoro"
	"github.com/eliteGoblin/focusd/timetrack/internal/schedule"
	"github.com/eliteGoblin/focusd/timetrack/internal/usecase"
)

// app is the fully wired daemon.
type app struct {
	cfg      *config.Config
	paths    infra.Paths
	logger   *zap.Logger
	registry *infra.FileRegistry
	store    *infra.SnapshotStore // nil when snapshots are disabled
	notifier *infra.NotifySend
	manager  *usecase.Manager
	server   *daemon.Server
}

func buildApp(cfg *config.Config, paths infra.Paths, logger *zap.Logger) (*app, error) {
	clock := schedule.NewRealClock()
	runner := &infra.ExecRunner{}
	pm := infra.NewProcessManager()

	a := &app{
		cfg:      cfg,
		paths:    paths,
		logger:   logger,
		registry: infra.NewFileRegistry(paths.Registry),
		notifier: infra.NewNotifySend(runner, infra.DefaultNotifyTimeout, logger.Named("notify")),
	}

	var store domain.SnapshotStore
	if cfg.Daemon.Snapshots {
		s, err := infra.OpenSnapshotStore(paths.SnapshotDB, infra.NewFileKeyProvider(paths.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		a.store = s
		store = s
	}

	focusCfg := cfg.Focus()
	idleGate := idle.NewGate(infra.NewXPrintIdle(runner), focusCfg.ProbeTimeout, logger.Named("idle"))
	workingList := policy.LoadWorkingList(cfg.WorkingListPath(), logger.Named("policy"))

	tracker := focus.NewTracker(
		focusCfg,
		workingList,
		idleGate,
		infra.NewXProp(runner, pm, logger.Named("xprop")),
		a.notifier,
		clock,
		logger.Named("focus"),
	)
	engine := pomodoro.NewEngine(cfg.PomodoroConfig(), idleGate, a.notifier, clock, logger.Named("pomodoro"))

	a.manager = usecase.NewManager(cfg.Manager(), tracker, engine, store, a.notifier, clock, logger.Named("manager"))
	a.server = daemon.NewServer(daemon.ServerConfig{
		SocketPath: cfg.Daemon.SocketPath,
		BufferSize: daemon.DefaultServerConfig().BufferSize,
	}, a.manager, logger.Named("server"))
	return a, nil
}

// pruneSnapshots drops snapshots older than the configured retention.
func (a *app) pruneSnapshots(now time.Time) {
	retention := a.cfg.SnapshotRetention()
	if a.store == nil || retention <= 0 {
		return
	}
	removed, err := a.store.Prune(now.Add(-retention))
	if err != nil {
		a.logger.Warn("failed to prune snapshots", zap.Error(err))
		return
	}
	if removed > 0 {
		a.logger.Info("pruned snapshots", zap.Int64("removed", removed))
	}
}

// close tears down everything buildApp opened.
func (a *app) close() {
	a.manager.Close()
	a.notifier.Wait()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close snapshot store", zap.Error(err))
		}
	}
	if err := a.registry.Clear(); err != nil {
		a.logger.Warn("failed to clear registry", zap.Error(err))
	}
}

func createLogger(cfg *config.Config, paths infra.Paths, foreground bool) *zap.Logger {
	level, err := zap.ParseAtomicLevel(cfg.Daemon.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = level
	logConfig.OutputPaths = []string{paths.LogPath}
	logConfig.ErrorOutputPaths = []string{paths.LogPath}
	if foreground {
		logConfig.OutputPaths = append(logConfig.OutputPaths, "stderr")
		logConfig.ErrorOutputPaths = append(logConfig.ErrorOutputPaths, "stderr")
	}
	logConfig.EncoderConfig.TimeKey = "time"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := logConfig.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
		logger.Warn("file logging unavailable", zap.String("path", paths.LogPath), zap.Error(err))
	}
	return logger.With(zap.Int("pid", os.Getpid()))
}
