package infra

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// ErrNoActiveWindow is returned when the window manager reports no focus.
var ErrNoActiveWindow = errors.New("no active window")

var (
	activeWindowRe = regexp.MustCompile(`_NET_ACTIVE_WINDOW\(WINDOW\): window id # (0x[0-9a-fA-F]+)`)
	wmClassRe      = regexp.MustCompile(`^WM_CLASS\([^)]*\) = (.+), (.+)$`)
	wmNameRe       = regexp.MustCompile(`^(_NET_WM_NAME|WM_NAME)\(([^)]+)\) = (.+)$`)
	wmPIDRe        = regexp.MustCompile(`^_NET_WM_PID\(CARDINAL\) = (\d+)$`)
)

// XProp implements domain.ForegroundProbe with xprop. When the window has
// no WM_CLASS the owning process name (via _NET_WM_PID) is used instead.
type XProp struct {
	runner    CommandRunner
	processes domain.ProcessManager
	logger    *zap.Logger
}

// NewXProp creates a foreground probe.
func NewXProp(runner CommandRunner, processes domain.ProcessManager, logger *zap.Logger) *XProp {
	return &XProp{
		runner:    runner,
		processes: processes,
		logger:    logger,
	}
}

// ActiveWindow returns the foreground window class and title.
func (x *XProp) ActiveWindow(ctx context.Context) (domain.Window, error) {
	root, err := x.runner.Output(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return domain.Window{}, fmt.Errorf("failed to query active window: %w", err)
	}
	m := activeWindowRe.FindSubmatch(root)
	if m == nil {
		return domain.Window{}, ErrNoActiveWindow
	}
	id := string(m[1])
	if v, err := strconv.ParseUint(strings.TrimPrefix(id, "0x"), 16, 64); err != nil || v == 0 {
		return domain.Window{}, ErrNoActiveWindow
	}

	props, err := x.runner.Output(ctx, "xprop", "-id", id, "WM_CLASS", "_NET_WM_NAME", "WM_NAME", "_NET_WM_PID")
	if err != nil {
		return domain.Window{}, fmt.Errorf("failed to query window %s: %w", id, err)
	}

	w, pid := parseWindowProps(string(props))
	if w.Class == "" && pid > 0 {
		if name, err := x.processes.Name(pid); err == nil {
			w.Class = name
		} else {
			x.logger.Debug("class fallback failed", zap.Int("pid", pid), zap.Error(err))
		}
	}
	if w.Class == "" {
		return domain.Window{}, fmt.Errorf("window %s: no class", id)
	}
	// An untitled window keeps its class; the caller substitutes the title.
	return w, nil
}

// parseWindowProps extracts the WM_CLASS class part and the window title.
// _NET_WM_NAME wins over WM_NAME.
func parseWindowProps(out string) (domain.Window, int) {
	var (
		w       domain.Window
		wmName  string
		netName string
		pid     int
	)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if m := wmClassRe.FindStringSubmatch(line); m != nil {
			w.Class = unquote(m[2])
			continue
		}
		if m := wmNameRe.FindStringSubmatch(line); m != nil {
			switch m[2] {
			case "STRING", "COMPOUND_TEXT", "UTF8_STRING":
			default:
				continue
			}
			if m[1] == "_NET_WM_NAME" {
				netName = unquote(m[3])
			} else {
				wmName = unquote(m[3])
			}
			continue
		}
		if m := wmPIDRe.FindStringSubmatch(line); m != nil {
			pid, _ = strconv.Atoi(m[1])
		}
	}
	w.Title = netName
	if w.Title == "" {
		w.Title = wmName
	}
	return w, pid
}

func unquote(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), `"`), `"`)
}

// Ensure XProp implements domain.ForegroundProbe.
var _ domain.ForegroundProbe = (*XProp)(nil)
