package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

const startLayout = "01/02 15:04:05"

// FormatDuration renders d as "DDD HHH MMm SSs", dropping leading zero
// units. Zero or negative durations render as "-".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "-"
	}
	days := secs / 86400
	hours := secs / 3600 % 24
	mins := secs % 3600 / 60
	s := secs % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%02dD %02dH %02dm %02ds", days, hours, mins, s)
	case hours > 0:
		return fmt.Sprintf("%02dH %02dm %02ds", hours, mins, s)
	case mins > 0:
		return fmt.Sprintf("%02dm %02ds", mins, s)
	default:
		return fmt.Sprintf("%02ds", s)
	}
}

// FormatFocus renders the notification body for a focus report.
func FormatFocus(r domain.FocusReport) string {
	var lines []string
	if r.SessionStart != nil {
		lines = append(lines, "Starting     :  "+r.SessionStart.Format(startLayout))
	}
	if r.Kind == domain.ReportAll || r.Kind == domain.ReportSummary {
		lines = append(lines, "Total   time :  "+FormatDuration(r.Total))
	}
	if r.Kind != domain.ReportPlaying {
		line := "Working time :  " + FormatDuration(r.Working)
		if r.SinceReport != nil {
			line += " (" + FormatDuration(r.SinceReport.Working) + ")"
		}
		lines = append(lines, line)
	}
	if r.Kind != domain.ReportWorking {
		line := "Playing time :  " + FormatDuration(r.Playing)
		if r.SinceReport != nil {
			line += " (" + FormatDuration(r.SinceReport.Playing) + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// FormatPomodoro renders a one-line Pomodoro summary.
func FormatPomodoro(r domain.PomodoroReport) string {
	if r.State == domain.PomodoroIdle {
		return string(r.State)
	}
	return fmt.Sprintf("%s, round %d, %s left", r.State, r.Round, FormatDuration(r.Remaining))
}
