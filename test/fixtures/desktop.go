// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
	"github.com/eliteGoblin/focusd/timetrack/internal/policy"
)

// FakeDesktop stands in for the X11 idle source and foreground probe.
type FakeDesktop struct {
	mu      sync.Mutex
	window  domain.Window
	idle    time.Duration
	idleErr error
	probes  int
}

// NewFakeDesktop creates a desktop whose foreground is window.
func NewFakeDesktop(window domain.Window) *FakeDesktop {
	return &FakeDesktop{window: window}
}

// SetWindow changes the foreground window.
func (d *FakeDesktop) SetWindow(class, title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = domain.Window{Class: class, Title: title}
}

// SetIdle changes the reported idle time.
func (d *FakeDesktop) SetIdle(idle time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idle = idle
}

// FailIdle makes idle queries fail with err (nil to recover).
func (d *FakeDesktop) FailIdle(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idleErr = err
}

// Probes returns how many foreground probes were made.
func (d *FakeDesktop) Probes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probes
}

// IdleTime implements domain.IdleSource.
func (d *FakeDesktop) IdleTime(ctx context.Context) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle, d.idleErr
}

// ActiveWindow implements domain.ForegroundProbe.
func (d *FakeDesktop) ActiveWindow(ctx context.Context) (domain.Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probes++
	return d.window, nil
}

// RecordingNotifier keeps every notification as "title: message".
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

// Notify implements domain.Notifier.
func (n *RecordingNotifier) Notify(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, title+": "+message)
}

// Messages returns a copy of the recorded notifications.
func (n *RecordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// WriteWorkingList writes rules as working.json under dir and returns its path.
func WriteWorkingList(dir string, rules ...policy.Rule) (string, error) {
	data, err := json.MarshalIndent(rules, "", "\t")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "working.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

var (
	_ domain.IdleSource      = (*FakeDesktop)(nil)
	_ domain.ForegroundProbe = (*FakeDesktop)(nil)
	_ domain.Notifier        = (*RecordingNotifier)(nil)
)
