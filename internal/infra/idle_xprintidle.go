package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// XPrintIdle implements domain.IdleSource with xprintidle, which prints the
// X11 screensaver idle time in milliseconds.
type XPrintIdle struct {
	runner CommandRunner
}

// NewXPrintIdle creates an idle source backed by runner.
func NewXPrintIdle(runner CommandRunner) *XPrintIdle {
	return &XPrintIdle{runner: runner}
}

// IdleTime returns the time since the last keyboard/mouse input.
func (x *XPrintIdle) IdleTime(ctx context.Context) (time.Duration, error) {
	out, err := x.runner.Output(ctx, "xprintidle")
	if err != nil {
		return 0, fmt.Errorf("failed to query idle time: %w", err)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse idle time %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Ensure XPrintIdle implements domain.IdleSource.
var _ domain.IdleSource = (*XPrintIdle)(nil)
