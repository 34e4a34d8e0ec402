// Package pomodoro runs the work/rest cycle.
package pomodoro

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
	"github.com/eliteGoblin/focusd/timetrack/internal/schedule"
)

const notifyTitle = "Pomodoro timer"

// Phase is the coarse engine state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResting
	PhaseWorking
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return string(domain.PomodoroIdle)
	case PhaseResting:
		return string(domain.PomodoroResting)
	case PhaseWorking:
		return string(domain.PomodoroWorking)
	default:
		return "unknown"
	}
}

// State is the engine state. Round is meaningful only while working.
type State struct {
	Phase Phase
	Round int
}

// Config holds the cycle configuration.
type Config struct {
	RoundsPerSession int           // 0 means sessions never end
	WorkingTime      time.Duration // Length of a working round
	RestInSession    time.Duration // Rest between rounds of a session
	RestAfterSession time.Duration // Rest after the last round of a session
	IdleThreshold    time.Duration // Idle longer than this aborts the cycle
}

// DefaultConfig returns default cycle configuration.
func DefaultConfig() Config {
	return Config{
		RoundsPerSession: 0,
		WorkingTime:      50 * time.Minute,
		RestInSession:    10 * time.Minute,
		RestAfterSession: 0,
		IdleThreshold:    120 * time.Second,
	}
}

// Engine is the Pomodoro state machine. At most one phase timer is armed
// at any time; callbacks from a cancelled cycle are discarded.
type Engine struct {
	config   Config
	idle     domain.IdleSource
	notifier domain.Notifier
	clock    schedule.Clock
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	nextRound int // round to start when the current rest ends
	gen       uint64
	timer     schedule.Timer
	armedAt   time.Time
	phaseLen  time.Duration
}

// NewEngine creates an idle engine.
func NewEngine(config Config, idle domain.IdleSource, notifier domain.Notifier, clock schedule.Clock, logger *zap.Logger) *Engine {
	return &Engine{
		config:   config,
		idle:     idle,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run starts a cycle at round 0. No-op unless idle.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	if e.state.Phase != PhaseIdle {
		e.mu.Unlock()
		return
	}
	e.gen++
	gen := e.gen
	e.state = State{Phase: PhaseWorking}
	e.nextRound = 0
	e.mu.Unlock()

	e.logger.Info("pomodoro started",
		zap.Int("rounds_per_session", e.config.RoundsPerSession),
		zap.Duration("working_time", e.config.WorkingTime))
	e.startRound(ctx, gen)
}

// Stop cancels the cycle. No-op if idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state.Phase == PhaseIdle {
		e.mu.Unlock()
		return
	}
	e.stopLocked()
	e.mu.Unlock()

	e.notifier.Notify(notifyTitle, "Stop working")
	e.logger.Info("pomodoro stopped")
}

func (e *Engine) stopLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.state = State{Phase: PhaseIdle}
	e.nextRound = 0
	e.phaseLen = 0
	e.gen++
}

// Reset stops the engine and, if a cycle was running, restarts it from round 0.
func (e *Engine) Reset(ctx context.Context) {
	wasRunning := e.State().Phase != PhaseIdle
	e.Stop()
	if wasRunning {
		e.Run(ctx)
	}
}

// Round returns the working round, or RoundsPerSession when not working.
func (e *Engine) Round() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roundLocked()
}

func (e *Engine) roundLocked() int {
	if e.state.Phase == PhaseWorking {
		return e.state.Round
	}
	return e.config.RoundsPerSession
}

// Report describes the current phase.
func (e *Engine) Report() domain.PomodoroReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	rep := domain.PomodoroReport{State: domain.PomodoroState(e.state.Phase.String())}
	if e.state.Phase == PhaseIdle {
		return rep
	}
	rep.Round = e.roundLocked()
	if !e.armedAt.IsZero() {
		rep.Elapsed = e.clock.Now().Sub(e.armedAt)
		if remaining := e.phaseLen - rep.Elapsed; remaining > 0 {
			rep.Remaining = remaining
		}
	}
	return rep
}

func (e *Engine) startRound(ctx context.Context, gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.state.Phase != PhaseWorking {
		e.mu.Unlock()
		return
	}
	round := e.state.Round
	e.mu.Unlock()

	e.notifier.Notify(notifyTitle,
		fmt.Sprintf("Start working. Round %d for %s mins", round, minutes(e.config.WorkingTime)))
	e.arm(ctx, gen, e.config.WorkingTime, e.startResting)
}

func (e *Engine) startResting(ctx context.Context, gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.state.Phase != PhaseWorking {
		e.mu.Unlock()
		return
	}
	current := e.state.Round
	next := current + 1

	var rest time.Duration
	var message string
	if e.config.RoundsPerSession != 0 && next%e.config.RoundsPerSession == 0 {
		rest = e.config.RestAfterSession
		message = "Session done."
		next = 0
	} else {
		rest = e.config.RestInSession
		message = fmt.Sprintf("Round %d done.", current)
	}
	e.state = State{Phase: PhaseResting}
	e.nextRound = next
	e.timer = nil
	e.mu.Unlock()

	e.notifier.Notify(notifyTitle,
		fmt.Sprintf("Start resting. %s Resting for %s mins.", message, minutes(rest)))
	e.arm(ctx, gen, rest, e.endResting)
}

func (e *Engine) endResting(ctx context.Context, gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.state.Phase != PhaseResting {
		e.mu.Unlock()
		return
	}
	e.state = State{Phase: PhaseWorking, Round: e.nextRound}
	e.timer = nil
	e.mu.Unlock()

	e.startRound(ctx, gen)
}

// arm schedules next after d, unless the user has been idle too long, in
// which case the cycle is aborted.
func (e *Engine) arm(ctx context.Context, gen uint64, d time.Duration, next func(context.Context, uint64)) {
	idleFor, err := e.idle.IdleTime(ctx)
	if err != nil {
		e.logger.Warn("idle probe failed, arming anyway", zap.Error(err))
	}

	e.mu.Lock()
	if e.gen != gen || e.state.Phase == PhaseIdle {
		e.mu.Unlock()
		return
	}
	if err == nil && idleFor > e.config.IdleThreshold {
		e.stopLocked()
		e.mu.Unlock()
		e.notifier.Notify(notifyTitle, "Idle for a long time. Stop working")
		e.logger.Info("pomodoro aborted", zap.Duration("idle", idleFor))
		return
	}
	e.armedAt = e.clock.Now()
	e.phaseLen = d
	e.timer = e.clock.AfterFunc(d, func() { next(context.Background(), gen) })
	phase := e.state.Phase
	e.mu.Unlock()

	e.logger.Debug("pomodoro phase armed", zap.Stringer("phase", phase), zap.Duration("duration", d))
}

// minutes renders d the way the configuration states it.
func minutes(d time.Duration) string {
	return strconv.FormatFloat(d.Minutes(), 'f', -1, 64)
}

// Ensure Engine implements domain.PomodoroTimer.
var _ domain.PomodoroTimer = (*Engine)(nil)
