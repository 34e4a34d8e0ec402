package domain

import (
	"context"
	"time"
)

// IdleSource reports how long the user has been inactive.
// Implementation: xprintidle (X11 screensaver extension).
type IdleSource interface {
	// IdleTime returns the time since the last keyboard/mouse input.
	IdleTime(ctx context.Context) (time.Duration, error)
}

// ForegroundProbe identifies the window currently receiving input.
// Implementation: xprop, with gopsutil PID lookup as class fallback.
type ForegroundProbe interface {
	// ActiveWindow returns the foreground window class and title.
	ActiveWindow(ctx context.Context) (Window, error)
}

// Notifier delivers a message to the user. Best effort, never blocks.
type Notifier interface {
	Notify(title, message string)
}

// Classifier decides whether a foreground target counts as working time.
type Classifier interface {
	IsWorking(class, title string) bool
}

// ProcessManager handles OS process queries.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Name returns the executable name of a PID.
	Name(pid int) (string, error)
}

// DaemonRegistry publishes the running daemon for the CLI.
// Implementation: JSON file in the data directory.
type DaemonRegistry interface {
	// Register records the current daemon.
	Register(info DaemonInfo) error

	// Get returns the registered daemon, or nil if none.
	Get() (*DaemonInfo, error)

	// Clear removes the registration.
	Clear() error

	// Path returns the registry file path.
	Path() string
}

// SnapshotStore persists reports across restarts.
// Implementation: SQLCipher encrypted SQLite database.
type SnapshotStore interface {
	// Save stores a snapshot.
	Save(s Snapshot) error

	// Recent returns up to limit snapshots, newest first.
	Recent(limit int) ([]Snapshot, error)

	// Prune deletes snapshots taken before the cutoff.
	Prune(before time.Time) (int64, error)

	// Close releases the database connection.
	Close() error
}

// KeyProvider abstracts the source of the snapshot encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// FocusTracker attributes foreground time to working or playing.
// Implementation: focus.Tracker.
type FocusTracker interface {
	// Run tracks until Stop is called or ctx is canceled.
	Run(ctx context.Context) error
	Stop()
	Reset()
	Report(kind ReportKind) (FocusReport, error)

	// SetRolloverHook receives the finished day's report on a day rollover.
	SetRolloverHook(fn func(FocusReport))
}

// PomodoroTimer runs the work/rest cycle.
// Implementation: pomodoro.Engine.
type PomodoroTimer interface {
	Run(ctx context.Context)
	Stop()
	Reset(ctx context.Context)
	Report() PomodoroReport
}

// AutostartManager starts the daemon with the user's graphical session.
// Implementation: systemd user unit.
type AutostartManager interface {
	// Install writes and enables the unit running `serve` with args.
	Install(ctx context.Context, execPath string, args ...string) error

	// Uninstall disables and removes the unit.
	Uninstall(ctx context.Context) error

	// IsInstalled checks if the unit is present.
	IsInstalled() bool

	// NeedsUpdate reports whether an installed unit differs from the expected one.
	NeedsUpdate(execPath string, args ...string) bool

	// Path returns the unit file path.
	Path() string
}
