package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// DefaultUnitName is the systemd user unit timetrackd installs.
const DefaultUnitName = "timetrackd.service"

// systemd user unit template; the daemon follows the graphical session
// because every probe needs the X display.
const userUnitTemplate = `[Unit]
Description=timetrackd working hour tracker
PartOf=graphical-session.target
After=graphical-session.target

[Service]
Type=simple
ExecStart={{.ExecutablePath}} serve{{range .Args}} {{.}}{{end}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy=graphical-session.target
`

type unitConfig struct {
	ExecutablePath string
	Args           []string
}

// SystemdUnit implements domain.AutostartManager with a systemd user unit.
type SystemdUnit struct {
	runner   CommandRunner
	unitDir  string
	unitName string
}

// NewSystemdUnit creates a manager for the unit in
// $XDG_CONFIG_HOME/systemd/user (default ~/.config/systemd/user).
func NewSystemdUnit(runner CommandRunner) *SystemdUnit {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = ExpandHome("~/.config")
	}
	return NewSystemdUnitIn(runner, filepath.Join(configHome, "systemd", "user"))
}

// NewSystemdUnitIn creates a manager for the unit in unitDir.
func NewSystemdUnitIn(runner CommandRunner, unitDir string) *SystemdUnit {
	return &SystemdUnit{
		runner:   runner,
		unitDir:  unitDir,
		unitName: DefaultUnitName,
	}
}

// Path returns the unit file path.
func (s *SystemdUnit) Path() string {
	return filepath.Join(s.unitDir, s.unitName)
}

func (s *SystemdUnit) render(execPath string, args []string) ([]byte, error) {
	tmpl, err := template.New("unit").Parse(userUnitTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, unitConfig{ExecutablePath: execPath, Args: args}); err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the unit for execPath (serve args appended) and enables it.
// Reinstalling with different content rewrites the unit.
func (s *SystemdUnit) Install(ctx context.Context, execPath string, args ...string) error {
	if err := os.MkdirAll(s.unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}
	content, err := s.render(execPath, args)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(), content, 0644); err != nil {
		return fmt.Errorf("failed to write unit: %w", err)
	}

	if err := s.runner.Run(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return s.runner.Run(ctx, "systemctl", "--user", "enable", s.unitName)
}

// Uninstall disables and removes the unit.
func (s *SystemdUnit) Uninstall(ctx context.Context) error {
	// Disable first (ignore errors if never enabled)
	_ = s.runner.Run(ctx, "systemctl", "--user", "disable", s.unitName)

	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove unit: %w", err)
	}
	return s.runner.Run(ctx, "systemctl", "--user", "daemon-reload")
}

// IsInstalled checks if the unit file exists.
func (s *SystemdUnit) IsInstalled() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// NeedsUpdate checks if the unit exists but differs from what Install writes.
func (s *SystemdUnit) NeedsUpdate(execPath string, args ...string) bool {
	if !s.IsInstalled() {
		return false // Doesn't exist, needs install not update
	}
	current, err := os.ReadFile(s.Path())
	if err != nil {
		return true
	}
	expected, err := s.render(execPath, args)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Ensure SystemdUnit implements domain.AutostartManager.
var _ domain.AutostartManager = (*SystemdUnit)(nil)
