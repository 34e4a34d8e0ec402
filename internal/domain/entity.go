// Package domain contains core business entities and interfaces.
// This is the innermost layer - no external dependencies.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel foreground keys.
const (
	// IdleKey is recorded when the user has been idle longer than the threshold.
	IdleKey = "Idle"
	// UnknownKey is recorded when the foreground cannot be determined.
	UnknownKey = "Unknown"
)

var (
	// ErrInvalidReportKind is returned for report kinds outside the allowed set.
	ErrInvalidReportKind = errors.New("invalid report kind")
	// ErrInvalidTarget is returned for run/stop targets other than all, focus or pomo.
	ErrInvalidTarget = errors.New("invalid target")
)

// Window identifies the foreground target.
type Window struct {
	Class string
	Title string
}

// IdleWindow is the sentinel pair used while the user is away.
var IdleWindow = Window{Class: IdleKey, Title: IdleKey}

// UnknownWindow is the sentinel pair used when probing fails.
var UnknownWindow = Window{Class: UnknownKey, Title: UnknownKey}

// ReportKind selects which part of the focus accounting is reported.
type ReportKind string

const (
	ReportAll     ReportKind = "all"
	ReportWorking ReportKind = "working"
	ReportPlaying ReportKind = "playing"
	ReportSummary ReportKind = "summary"
)

// ParseReportKind maps a command argument to a ReportKind.
// An empty argument means ReportAll.
func ParseReportKind(s string) (ReportKind, error) {
	switch k := ReportKind(s); k {
	case "":
		return ReportAll, nil
	case ReportAll, ReportWorking, ReportPlaying, ReportSummary:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReportKind, s)
	}
}

// Target selects which subsystem a run/stop command applies to.
type Target string

const (
	TargetAll      Target = "all"
	TargetFocus    Target = "focus"
	TargetPomodoro Target = "pomo"
)

// ParseTarget maps a command argument to a Target. Empty means TargetAll.
func ParseTarget(s string) (Target, error) {
	switch t := Target(s); t {
	case "":
		return TargetAll, nil
	case TargetAll, TargetFocus, TargetPomodoro:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, s)
	}
}

// Includes reports whether t covers the other (non-all) target.
func (t Target) Includes(other Target) bool {
	return t == TargetAll || t == other
}

// TargetReport is the per-class slice of a focus report.
type TargetReport struct {
	Total   time.Duration
	Details map[string]time.Duration
}

// SinceReport holds time accumulated since the previous all-kind report.
type SinceReport struct {
	Working time.Duration
	Playing time.Duration
}

// FocusReport is the result of a focus report. Which fields are meaningful
// depends on Kind:
//   - all:     Total, Working, Playing, SinceReport, Targets
//   - summary: Total, Working, Playing, SinceReport
//   - working: Working, Targets (working time only)
//   - playing: Playing, Targets (playing time only)
type FocusReport struct {
	Kind         ReportKind
	SessionStart *time.Time
	Total        time.Duration
	Working      time.Duration
	Playing      time.Duration
	SinceReport  *SinceReport
	Targets      map[string]TargetReport
}

// MarshalJSON renders durations as seconds and flattens per-class entries
// next to the totals. Fixed keys win over a class with the same name.
func (r FocusReport) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Targets)+6)
	for class, t := range r.Targets {
		details := make(map[string]float64, len(t.Details))
		for title, d := range t.Details {
			details[title] = d.Seconds()
		}
		out[class] = map[string]any{"total": t.Total.Seconds(), "details": details}
	}
	switch r.Kind {
	case ReportAll, ReportSummary:
		out["total"] = r.Total.Seconds()
		out["working"] = r.Working.Seconds()
		out["playing"] = r.Playing.Seconds()
	case ReportWorking:
		out["working"] = r.Working.Seconds()
	case ReportPlaying:
		out["playing"] = r.Playing.Seconds()
	}
	if r.SinceReport != nil {
		out["workingSinceReport"] = r.SinceReport.Working.Seconds()
		out["playingSinceReport"] = r.SinceReport.Playing.Seconds()
	}
	if r.SessionStart != nil {
		out["sessionStart"] = r.SessionStart.Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON. The kind is inferred from which
// totals are present; summary reads back as all.
func (r *FocusReport) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := FocusReport{}
	var since SinceReport
	var hasTotal, hasWorking, hasPlaying, hasSince bool
	for key, value := range raw {
		var err error
		switch key {
		case "total":
			hasTotal = true
			out.Total, err = secondsValue(value)
		case "working":
			hasWorking = true
			out.Working, err = secondsValue(value)
		case "playing":
			hasPlaying = true
			out.Playing, err = secondsValue(value)
		case "workingSinceReport":
			hasSince = true
			since.Working, err = secondsValue(value)
		case "playingSinceReport":
			hasSince = true
			since.Playing, err = secondsValue(value)
		case "sessionStart":
			var s string
			if err = json.Unmarshal(value, &s); err == nil {
				var t time.Time
				if t, err = time.Parse(time.RFC3339, s); err == nil {
					out.SessionStart = &t
				}
			}
		default:
			var target struct {
				Total   float64            `json:"total"`
				Details map[string]float64 `json:"details"`
			}
			if err = json.Unmarshal(value, &target); err == nil {
				if out.Targets == nil {
					out.Targets = make(map[string]TargetReport)
				}
				tr := TargetReport{
					Total:   seconds(target.Total),
					Details: make(map[string]time.Duration, len(target.Details)),
				}
				for title, d := range target.Details {
					tr.Details[title] = seconds(d)
				}
				out.Targets[key] = tr
			}
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	if hasSince {
		out.SinceReport = &since
	}

	switch {
	case hasTotal:
		out.Kind = ReportAll
	case hasWorking && !hasPlaying:
		out.Kind = ReportWorking
	case hasPlaying && !hasWorking:
		out.Kind = ReportPlaying
	default:
		out.Kind = ReportAll
	}
	*r = out
	return nil
}

func secondsValue(raw json.RawMessage) (time.Duration, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return seconds(v), nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// PomodoroState is the coarse state shown in reports.
type PomodoroState string

const (
	PomodoroIdle    PomodoroState = "idle"
	PomodoroResting PomodoroState = "resting"
	PomodoroWorking PomodoroState = "working"
)

// PomodoroReport describes the Pomodoro cycle. Round, Elapsed and Remaining
// are only meaningful when State is not idle.
type PomodoroReport struct {
	State     PomodoroState
	Round     int
	Elapsed   time.Duration
	Remaining time.Duration
}

// MarshalJSON omits phase details for an idle timer.
func (r PomodoroReport) MarshalJSON() ([]byte, error) {
	out := map[string]any{"state": r.State}
	if r.State != PomodoroIdle {
		out["round"] = r.Round
		out["elapsed"] = r.Elapsed.Round(time.Second).String()
		out["remaining"] = r.Remaining.Round(time.Second).String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (r *PomodoroReport) UnmarshalJSON(data []byte) error {
	var raw struct {
		State     PomodoroState `json:"state"`
		Round     int           `json:"round"`
		Elapsed   string        `json:"elapsed"`
		Remaining string        `json:"remaining"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := PomodoroReport{State: raw.State, Round: raw.Round}
	var err error
	if raw.Elapsed != "" {
		if out.Elapsed, err = time.ParseDuration(raw.Elapsed); err != nil {
			return fmt.Errorf("field \"elapsed\": %w", err)
		}
	}
	if raw.Remaining != "" {
		if out.Remaining, err = time.ParseDuration(raw.Remaining); err != nil {
			return fmt.Errorf("field \"remaining\": %w", err)
		}
	}
	*r = out
	return nil
}

// Report combines both subsystems' reports.
type Report struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Focus       FocusReport    `json:"focus"`
	Pomodoro    PomodoroReport `json:"pomodoro"`
}

// Reply is what the command server sends back to a client that waits.
type Reply struct {
	OK     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
	Report *Report `json:"report,omitempty"`
}

// SnapshotReason says why a snapshot was taken.
type SnapshotReason string

const (
	SnapshotHourly   SnapshotReason = "hourly"
	SnapshotRollover SnapshotReason = "rollover"
	SnapshotShutdown SnapshotReason = "shutdown"
)

// Snapshot is a persisted report. Payload holds the JSON-encoded Report.
type Snapshot struct {
	ID      string
	TakenAt time.Time
	Reason  SnapshotReason
	Total   time.Duration
	Working time.Duration
	Playing time.Duration
	Payload []byte
}

// DaemonInfo is what a running daemon publishes about itself.
type DaemonInfo struct {
	PID        int       `json:"pid"`
	SocketPath string    `json:"socket_path"`
	StartedAt  time.Time `json:"started_at"`
	Version    string    `json:"version,omitempty"`
}
