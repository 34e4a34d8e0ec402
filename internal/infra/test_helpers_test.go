package infra

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	names       map[int]string
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) Name(pid int) (string, error) {
	name, ok := m.names[pid]
	if !ok {
		return "", fmt.Errorf("process %d not found", pid)
	}
	return name, nil
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// mockCommandRunner returns canned output keyed by the full command line.
type mockCommandRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (m *mockCommandRunner) on(cmdline, output string) {
	m.outputs[cmdline] = output
}

func (m *mockCommandRunner) fail(cmdline string, err error) {
	m.errs[cmdline] = err
}

func (m *mockCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := m.Output(ctx, name, args...)
	return err
}

func (m *mockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmdline)
	if err := m.errs[cmdline]; err != nil {
		return nil, err
	}
	out, ok := m.outputs[cmdline]
	if !ok {
		return nil, fmt.Errorf("unexpected command %q", cmdline)
	}
	return []byte(out), nil
}

func (m *mockCommandRunner) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
