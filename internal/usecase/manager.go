// Package usecase contains application business logic.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
	"github.com/eliteGoblin/focusd/timetrack/internal/schedule"
)

const reportTitle = "Working hour report"

// ErrUnknownCommand is returned by Handle for commands it does not know.
var ErrUnknownCommand = errors.New("unknown command")

// ManagerConfig holds coordinator configuration.
type ManagerConfig struct {
	ReportEachHour bool // Arm the hourly report on run
}

// DefaultManagerConfig returns default coordinator configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{ReportEachHour: true}
}

// Manager fans commands out to the focus tracker and the Pomodoro timer
// and owns the hourly report timer.
type Manager struct {
	config   ManagerConfig
	focus    domain.FocusTracker
	pomo     domain.PomodoroTimer
	store    domain.SnapshotStore // optional
	notifier domain.Notifier
	clock    schedule.Clock
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	reportTimer schedule.Timer
	reportGen   uint64
	closed      bool
}

// NewManager creates a coordinator. store may be nil to disable snapshots.
func NewManager(
	config ManagerConfig,
	focus domain.FocusTracker,
	pomo domain.PomodoroTimer,
	store domain.SnapshotStore,
	notifier domain.Notifier,
	clock schedule.Clock,
	logger *zap.Logger,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:   config,
		focus:    focus,
		pomo:     pomo,
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	focus.SetRolloverHook(m.onRollover)
	return m
}

// Handle dispatches a named command with its optional argument tokens.
// Only report returns a Report.
func (m *Manager) Handle(cmd string, args []string) (*domain.Report, error) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}

	switch cmd {
	case "run":
		target, err := domain.ParseTarget(arg)
		if err != nil {
			return nil, err
		}
		m.Run(target)
		return nil, nil
	case "stop":
		target, err := domain.ParseTarget(arg)
		if err != nil {
			return nil, err
		}
		m.Stop(target)
		return nil, nil
	case "report":
		kind, err := domain.ParseReportKind(arg)
		if err != nil {
			m.logger.Warn("wrong report argument", zap.String("kind", arg))
			return nil, err
		}
		rep, err := m.Report(kind)
		if err != nil {
			return nil, err
		}
		return &rep, nil
	case "reset":
		m.Reset()
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// Run starts the targeted subsystems on their own goroutines and arms the
// hourly report.
func (m *Manager) Run(target domain.Target) {
	if target.Includes(domain.TargetFocus) {
		m.spawn(func(ctx context.Context) {
			if err := m.focus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("focus tracking ended", zap.Error(err))
			}
		})
	}
	if target.Includes(domain.TargetPomodoro) {
		m.spawn(func(ctx context.Context) { m.pomo.Run(ctx) })
	}
	if m.config.ReportEachHour {
		m.mu.Lock()
		m.armReportLocked()
		m.mu.Unlock()
	}
}

// Stop stops the targeted subsystems and cancels the hourly report until the
// next run, whatever the target.
func (m *Manager) Stop(target domain.Target) {
	if target.Includes(domain.TargetFocus) {
		m.focus.Stop()
	}
	if target.Includes(domain.TargetPomodoro) {
		m.pomo.Stop()
	}
	m.mu.Lock()
	m.cancelReportLocked()
	m.mu.Unlock()
}

// Reset clears focus accounting and restarts a running Pomodoro cycle.
func (m *Manager) Reset() {
	m.focus.Reset()
	m.pomo.Reset(m.ctx)
	m.logger.Info("reset")
}

// Report builds the combined report, notifies the focus summary and logs
// the payload.
func (m *Manager) Report(kind domain.ReportKind) (domain.Report, error) {
	focus, err := m.focus.Report(kind)
	if err != nil {
		return domain.Report{}, fmt.Errorf("failed to build focus report: %w", err)
	}
	rep := domain.Report{
		GeneratedAt: m.clock.Now(),
		Focus:       focus,
		Pomodoro:    m.pomo.Report(),
	}

	m.notifier.Notify(reportTitle, FormatFocus(focus))
	m.logger.Info("report",
		zap.String("kind", string(kind)),
		zap.Any("focus", rep.Focus),
		zap.Any("pomodoro", rep.Pomodoro))
	return rep, nil
}

// ReportArmed reports whether the hourly report timer is armed.
func (m *Manager) ReportArmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reportTimer != nil
}

// Close stops both subsystems, waits for their goroutines and stores a
// final snapshot.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelReportLocked()
	m.mu.Unlock()

	m.focus.Stop()
	m.pomo.Stop()
	m.cancel()
	m.wg.Wait()

	focus, err := m.focus.Report(domain.ReportAll)
	if err != nil {
		return
	}
	if focus.Total > 0 {
		m.saveSnapshot(domain.SnapshotShutdown, domain.Report{
			GeneratedAt: m.clock.Now(),
			Focus:       focus,
			Pomodoro:    m.pomo.Report(),
		})
	}
}

func (m *Manager) spawn(fn func(ctx context.Context)) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
}

func (m *Manager) armReportLocked() {
	if m.closed || m.reportTimer != nil {
		return
	}
	m.reportGen++
	gen := m.reportGen
	delay := schedule.UntilNextHour(m.clock.Now())
	m.reportTimer = m.clock.AfterFunc(delay, func() { m.onReportTimer(gen) })
	m.logger.Debug("hourly report armed", zap.Duration("in", delay))
}

func (m *Manager) cancelReportLocked() {
	if m.reportTimer != nil {
		m.reportTimer.Stop()
		m.reportTimer = nil
	}
	m.reportGen++
}

func (m *Manager) onReportTimer(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.reportGen {
		m.mu.Unlock()
		return
	}
	m.reportTimer = nil
	m.mu.Unlock()

	rep, err := m.Report(domain.ReportAll)
	if err != nil {
		m.logger.Warn("hourly report failed", zap.Error(err))
	} else {
		m.saveSnapshot(domain.SnapshotHourly, rep)
	}

	m.mu.Lock()
	if gen == m.reportGen {
		m.armReportLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) onRollover(finished domain.FocusReport) {
	m.saveSnapshot(domain.SnapshotRollover, domain.Report{
		GeneratedAt: m.clock.Now(),
		Focus:       finished,
		Pomodoro:    m.pomo.Report(),
	})
}

func (m *Manager) saveSnapshot(reason domain.SnapshotReason, rep domain.Report) {
	if m.store == nil {
		return
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		m.logger.Warn("failed to encode snapshot", zap.Error(err))
		return
	}
	snap := domain.Snapshot{
		TakenAt: rep.GeneratedAt,
		Reason:  reason,
		Total:   rep.Focus.Total,
		Working: rep.Focus.Working,
		Playing: rep.Focus.Playing,
		Payload: payload,
	}
	if err := m.store.Save(snap); err != nil {
		m.logger.Warn("failed to save snapshot",
			zap.String("reason", string(reason)),
			zap.Error(err))
		return
	}
	m.logger.Info("snapshot saved", zap.String("reason", string(reason)))
}
