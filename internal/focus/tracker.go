package focus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
	"github.com/eliteGoblin/focusd/timetrack/internal/schedule"
)

const notifyTitle = "Focus tracker"

// State is the tracker lifecycle state.
type State int

const (
	StateIdle State = iota
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// Config holds tracker configuration.
type Config struct {
	SampleInterval    time.Duration // Time between foreground samples
	IdleThreshold     time.Duration // Idle longer than this records the Idle sentinel
	IdleLongThreshold time.Duration // Idle longer than this confirms a day rollover
	DayBoundaryHour   int           // Local hour at which a new day is requested
	ProbeTimeout      time.Duration // Bound on a single foreground probe
}

// DefaultConfig returns default tracker configuration.
func DefaultConfig() Config {
	return Config{
		SampleInterval:    5 * time.Second,
		IdleThreshold:     180 * time.Second,
		IdleLongThreshold: 30 * time.Minute,
		DayBoundaryHour:   7,
		ProbeTimeout:      2 * time.Second,
	}
}

// Tracker samples the foreground window at a fixed interval and feeds the
// elapsed time into an Accumulator. Only one sampling loop runs at a time.
type Tracker struct {
	config     Config
	acc        *Accumulator
	classifier domain.Classifier
	idle       domain.IdleSource
	foreground domain.ForegroundProbe
	notifier   domain.Notifier
	clock      schedule.Clock
	logger     *zap.Logger

	mu           sync.Mutex
	state        State
	gen          uint64 // bumped on every start/stop; stale loops and timers compare against it
	stopCh       chan struct{}
	sessionStart time.Time
	lastSampleAt time.Time
	dayTimer     schedule.Timer
	newDay       bool
	onRollover   func(domain.FocusReport)
}

// NewTracker creates an idle tracker.
func NewTracker(
	config Config,
	classifier domain.Classifier,
	idle domain.IdleSource,
	foreground domain.ForegroundProbe,
	notifier domain.Notifier,
	clock schedule.Clock,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		config:     config,
		acc:        NewAccumulator(),
		classifier: classifier,
		idle:       idle,
		foreground: foreground,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
		state:      StateIdle,
	}
}

// SetRolloverHook registers fn to receive the finished day's report when a
// day rollover resets the accounting. fn runs on the sampling goroutine.
func (t *Tracker) SetRolloverHook(fn func(domain.FocusReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRollover = fn
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run starts tracking and blocks in the sampling loop until Stop is called
// or ctx is canceled. It returns immediately if already tracking.
func (t *Tracker) Run(ctx context.Context) error {
	gen, stop, ok := t.begin()
	if !ok {
		return nil
	}
	t.notifier.Notify(notifyTitle, "start tracking focus")
	t.logger.Info("focus tracking started", zap.Duration("interval", t.config.SampleInterval))

	ticker := t.clock.NewTicker(t.config.SampleInterval)
	defer ticker.Stop()

	for {
		t.sample(ctx, gen)

		select {
		case <-ctx.Done():
			t.stopGeneration(gen)
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C():
		}
	}
}

func (t *Tracker) begin() (uint64, <-chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateTracking {
		return 0, nil, false
	}
	now := t.clock.Now()
	t.gen++
	t.state = StateTracking
	t.sessionStart = now
	t.lastSampleAt = now
	t.stopCh = make(chan struct{})
	t.armDayBoundaryLocked(now)
	return t.gen, t.stopCh, true
}

func (t *Tracker) armDayBoundaryLocked(now time.Time) {
	gen := t.gen
	at := schedule.NextDailyAt(now, t.config.DayBoundaryHour)
	t.dayTimer = t.clock.AfterFunc(at.Sub(now), func() { t.onDayBoundary(gen) })
}

func (t *Tracker) onDayBoundary(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen || t.state != StateTracking {
		return
	}
	t.newDay = true
	t.armDayBoundaryLocked(t.clock.Now())
	t.logger.Info("start a new day")
}

// RequestNewDay asks the sampling loop to reset once the user has been
// away longer than the long idle threshold.
func (t *Tracker) RequestNewDay() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.newDay = true
}

// Stop ends tracking. Accumulated time is kept.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	t.mu.Unlock()

	t.notifier.Notify(notifyTitle, "stop tracking focus")
	t.logger.Info("focus tracking stopped")
}

func (t *Tracker) stopGeneration(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	t.mu.Unlock()

	t.notifier.Notify(notifyTitle, "stop tracking focus")
	t.logger.Info("focus tracking stopped", zap.String("reason", "shutdown"))
}

func (t *Tracker) stopLocked() {
	close(t.stopCh)
	t.stopCh = nil
	if t.dayTimer != nil {
		t.dayTimer.Stop()
		t.dayTimer = nil
	}
	t.sessionStart = time.Time{}
	t.state = StateIdle
	t.gen++
}

// Reset clears the accumulated time without changing the session state.
func (t *Tracker) Reset() {
	t.acc.Reset()
	t.logger.Info("focus accounting reset")
}

// Report returns the focus report for kind. Summary behaves as all without
// the per-class breakdown.
func (t *Tracker) Report(kind domain.ReportKind) (domain.FocusReport, error) {
	base := kind
	switch kind {
	case domain.ReportAll, domain.ReportWorking, domain.ReportPlaying:
	case domain.ReportSummary:
		base = domain.ReportAll
	default:
		return domain.FocusReport{}, fmt.Errorf("%w: %q", domain.ErrInvalidReportKind, kind)
	}

	rep := t.acc.Report(base)
	if kind == domain.ReportSummary {
		rep.Kind = domain.ReportSummary
		rep.Targets = nil
	}

	t.mu.Lock()
	if t.state == StateTracking {
		start := t.sessionStart
		rep.SessionStart = &start
	}
	t.mu.Unlock()
	return rep, nil
}

// sample runs one loop iteration for generation gen.
func (t *Tracker) sample(ctx context.Context, gen uint64) {
	if t.consumeNewDay(ctx, gen) {
		return
	}

	w := t.activeWindow(ctx)
	working := t.classifier.IsWorking(w.Class, w.Title)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen || t.state != StateTracking {
		return
	}
	now := t.clock.Now()
	elapsed := now.Sub(t.lastSampleAt)
	t.lastSampleAt = now
	t.acc.Track(w.Class, w.Title, elapsed, working)

	t.logger.Debug("sample",
		zap.String("class", w.Class),
		zap.String("title", w.Title),
		zap.Duration("elapsed", elapsed),
		zap.Bool("working", working))
}

// consumeNewDay handles a pending day rollover. It returns true when the
// accounting was reset in place of a regular sample.
func (t *Tracker) consumeNewDay(ctx context.Context, gen uint64) bool {
	t.mu.Lock()
	pending := t.newDay
	t.mu.Unlock()
	if !pending {
		return false
	}

	idleFor, err := t.idle.IdleTime(ctx)
	if err != nil {
		t.logger.Warn("cannot confirm day rollover, keeping it pending", zap.Error(err))
		return false
	}
	if idleFor <= t.config.IdleLongThreshold {
		t.mu.Lock()
		t.newDay = false
		t.mu.Unlock()
		t.logger.Info("getting back to work, day rollover abandoned", zap.Duration("idle", idleFor))
		return false
	}

	t.rollover(gen)
	return true
}

func (t *Tracker) rollover(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	finished := t.acc.Report(domain.ReportAll)
	start := t.sessionStart
	finished.SessionStart = &start
	t.acc.Reset()
	t.sessionStart = now
	t.lastSampleAt = now
	hook := t.onRollover
	t.mu.Unlock()

	if finished.Total > 0 {
		t.logger.Info("new day, focus accounting reset",
			zap.Duration("working", finished.Working),
			zap.Duration("playing", finished.Playing))
		if hook != nil {
			hook(finished)
		}
	}
}

// activeWindow returns the sampled foreground, substituting sentinels for
// idleness and probe failures.
func (t *Tracker) activeWindow(ctx context.Context) domain.Window {
	idleFor, err := t.idle.IdleTime(ctx)
	if err != nil {
		t.logger.Debug("idle time unavailable, sampling as unknown", zap.Error(err))
		return domain.UnknownWindow
	}
	if idleFor > t.config.IdleThreshold {
		return domain.IdleWindow
	}

	probeCtx := ctx
	if t.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, t.config.ProbeTimeout)
		defer cancel()
	}
	w, err := t.foreground.ActiveWindow(probeCtx)
	if err != nil {
		t.logger.Debug("foreground probe failed", zap.Error(err))
		return domain.UnknownWindow
	}
	if w.Class == "" {
		w.Class = domain.UnknownKey
	}
	if w.Title == "" {
		w.Title = domain.UnknownKey
	}
	return w
}

// Ensure Tracker implements domain.FocusTracker.
var _ domain.FocusTracker = (*Tracker)(nil)
