package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

func TestXPrintIdle(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		err     error
		want    time.Duration
		wantErr string
	}{
		{name: "milliseconds", output: "93250\n", want: 93250 * time.Millisecond},
		{name: "zero", output: "0", want: 0},
		{name: "garbage", output: "could not open display", wantErr: "failed to parse idle time"},
		{name: "command fails", err: errors.New("exit status 1"), wantErr: "failed to query idle time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newMockCommandRunner()
			if tt.err != nil {
				runner.fail("xprintidle", tt.err)
			} else {
				runner.on("xprintidle", tt.output)
			}

			got, err := NewXPrintIdle(runner).IdleTime(context.Background())

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

const (
	rootQuery   = "xprop -root _NET_ACTIVE_WINDOW"
	windowQuery = "xprop -id 0x4a00003 WM_CLASS _NET_WM_NAME WM_NAME _NET_WM_PID"
)

func TestXProp_ActiveWindow(t *testing.T) {
	tests := []struct {
		name    string
		root    string
		props   string
		names   map[int]string
		want    domain.Window
		wantErr bool
	}{
		{
			name: "class part and net name",
			root: "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x4a00003\n",
			props: `WM_CLASS(STRING) = "navigator", "Firefox"
_NET_WM_NAME(UTF8_STRING) = "Go Playground - Mozilla Firefox"
WM_NAME(STRING) = "Go Playground - Mozilla Firefox (legacy)"
_NET_WM_PID(CARDINAL) = 4242
`,
			want: domain.Window{Class: "Firefox", Title: "Go Playground - Mozilla Firefox"},
		},
		{
			name: "falls back to WM_NAME",
			root: "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x4a00003\n",
			props: `WM_CLASS(STRING) = "code", "Code"
_NET_WM_NAME:  not found.
WM_NAME(COMPOUND_TEXT) = "main.go - focusd"
`,
			want: domain.Window{Class: "Code", Title: "main.go - focusd"},
		},
		{
			name: "unsupported name type ignored",
			root: "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x4a00003\n",
			props: `WM_CLASS(STRING) = "xterm", "XTerm"
WM_NAME(ATOM) = "weird"
`,
			want: domain.Window{Class: "XTerm"},
		},
		{
			name: "window without a title keeps its class",
			root: "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x4a00003\n",
			props: `WM_CLASS(STRING) = "alacritty", "Alacritty"
_NET_WM_NAME:  not found.
WM_NAME:  not found.
`,
			want: domain.Window{Class: "Alacritty"},
		},
		{
			name: "missing class uses process name",
			root: "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x4a00003\n",
			props: `WM_CLASS:  not found.
_NET_WM_NAME(UTF8_STRING) = "Steam"
_NET_WM_PID(CARDINAL) = 4242
`,
			names: map[int]string{4242: "steamwebhelper"},
			want:  domain.Window{Class: "steamwebhelper", Title: "Steam"},
		},
		{
			name: "missing class and unknown process",
			root: "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x4a00003\n",
			props: `WM_CLASS:  not found.
_NET_WM_NAME(UTF8_STRING) = "Steam"
_NET_WM_PID(CARDINAL) = 4242
`,
			wantErr: true,
		},
		{
			name:    "no focused window",
			root:    "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x0\n",
			wantErr: true,
		},
		{
			name:    "no window manager support",
			root:    "_NET_ACTIVE_WINDOW:  not found.\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newMockCommandRunner()
			runner.on(rootQuery, tt.root)
			if tt.props != "" {
				runner.on(windowQuery, tt.props)
			}
			pm := newMockProcessManager()
			for pid, name := range tt.names {
				pm.names[pid] = name
			}

			got, err := NewXProp(runner, pm, zap.NewNop()).ActiveWindow(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestXProp_RootQueryFails(t *testing.T) {
	runner := newMockCommandRunner()
	runner.fail(rootQuery, errors.New("unable to open display"))

	_, err := NewXProp(runner, newMockProcessManager(), zap.NewNop()).ActiveWindow(context.Background())

	assert.ErrorContains(t, err, "failed to query active window")
	assert.Equal(t, []string{rootQuery}, runner.callLog())
}

func TestXProp_NoActiveWindowSentinel(t *testing.T) {
	runner := newMockCommandRunner()
	runner.on(rootQuery, "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x0\n")

	_, err := NewXProp(runner, newMockProcessManager(), zap.NewNop()).ActiveWindow(context.Background())

	assert.ErrorIs(t, err, ErrNoActiveWindow)
	assert.Len(t, runner.callLog(), 1, "window properties are not queried")
}

func TestNotifySend(t *testing.T) {
	runner := newMockCommandRunner()
	runner.on("notify-send Pomodoro timer Stop working", "")
	n := NewNotifySend(runner, time.Second, zap.NewNop())

	n.Notify("Pomodoro timer", "Stop working")
	n.Wait()

	assert.Equal(t, []string{"notify-send Pomodoro timer Stop working"}, runner.callLog())
}

func TestNotifySend_FailureIsAbsorbed(t *testing.T) {
	runner := newMockCommandRunner()
	runner.fail("notify-send Focus tracker start tracking focus", errors.New("no notification daemon"))
	n := NewNotifySend(runner, 0, zap.NewNop())

	assert.NotPanics(t, func() {
		n.Notify("Focus tracker", "start tracking focus")
		n.Wait()
	})
	assert.Equal(t, DefaultNotifyTimeout, n.timeout)
}
