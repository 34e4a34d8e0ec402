// Package config loads the daemon configuration file and environment overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/timetrack/internal/focus"
	"github.com/eliteGoblin/focusd/timetrack/internal/infra"
	"github.com/eliteGoblin/focusd/timetrack/internal/pomodoro"
	"github.com/eliteGoblin/focusd/timetrack/internal/usecase"
)

// Environment variables consulted after the config file.
const (
	EnvConfig   = "TIMETRACK_CONFIG"
	EnvSocket   = "TIMETRACK_SOCKET"
	EnvDataDir  = "TIMETRACK_DATA_DIR"
	EnvLogLevel = "TIMETRACK_LOG_LEVEL"
)

// DefaultPath is used when neither a flag nor TIMETRACK_CONFIG names a file.
const DefaultPath = "timetracker.conf"

// Pomodoro is the pomodoro section. Times are minutes, thresholds seconds.
type Pomodoro struct {
	RoundPerSession      int     `yaml:"round_per_session" json:"round_per_session"`
	RestTimeInSession    float64 `yaml:"rest_time_in_session" json:"rest_time_in_session"`
	RestTimeAfterSession float64 `yaml:"rest_time_after_session" json:"rest_time_after_session"`
	WorkingTime          float64 `yaml:"working_time" json:"working_time"`
	IdleThreshold        float64 `yaml:"idle_threshold" json:"idle_threshold"`
}

// FocusTracker is the focustracker section. Times are seconds.
type FocusTracker struct {
	Duration          float64 `yaml:"duration" json:"duration"`
	IdleThreshold     float64 `yaml:"idle_threshold" json:"idle_threshold"`
	IdleLongThreshold float64 `yaml:"idle_long_threshold" json:"idle_long_threshold"`
	WorkingList       string  `yaml:"working_list" json:"working_list"`
	DayBoundaryHour   int     `yaml:"day_boundary_hour" json:"day_boundary_hour"`
	ProbeTimeout      float64 `yaml:"probe_timeout" json:"probe_timeout"`
}

// Daemon is the daemon section.
type Daemon struct {
	SocketPath            string `yaml:"socket_path" json:"socket_path"`
	DataDir               string `yaml:"data_dir" json:"data_dir"`
	ReportEachHour        bool   `yaml:"report_each_hour" json:"report_each_hour"`
	Snapshots             bool   `yaml:"snapshots" json:"snapshots"`
	SnapshotRetentionDays int    `yaml:"snapshot_retention_days" json:"snapshot_retention_days"`
	LogLevel              string `yaml:"log_level" json:"log_level"`
}

// Config is the full daemon configuration.
type Config struct {
	Pomodoro     Pomodoro     `yaml:"pomodoro" json:"pomodoro"`
	FocusTracker FocusTracker `yaml:"focustracker" json:"focustracker"`
	Daemon       Daemon       `yaml:"daemon" json:"daemon"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-" json:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pomodoro: Pomodoro{
			RoundPerSession:      0,
			RestTimeInSession:    10,
			RestTimeAfterSession: 0,
			WorkingTime:          50,
			IdleThreshold:        120,
		},
		FocusTracker: FocusTracker{
			Duration:          5,
			IdleThreshold:     180,
			IdleLongThreshold: 1800,
			WorkingList:       "working.json",
			DayBoundaryHour:   7,
			ProbeTimeout:      2,
		},
		Daemon: Daemon{
			SocketPath:            "/tmp/timetracker.socket",
			DataDir:               "~/.timetrack",
			ReportEachHour:        true,
			Snapshots:             true,
			SnapshotRetentionDays: 30,
			LogLevel:              "info",
		},
	}
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ResolvePath picks the configuration file: the explicit path, then
// TIMETRACK_CONFIG, then DefaultPath.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfig)); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads the configuration at path over the defaults. Keys absent from
// the file keep their defaults. A missing or malformed file is logged and
// the defaults are used. Environment overrides are applied last.
func Load(path string, logger *zap.Logger) (*Config, error) {
	cfg := Default()
	path = ResolvePath(path)

	data, err := os.ReadFile(path)
	switch {
	case err != nil:
		logger.Warn("config file unavailable, using defaults",
			zap.String("path", path),
			zap.Error(err))
	default:
		parsed := Default()
		if err := decode(data, parsed); err != nil {
			logger.Warn("config file malformed, using defaults",
				zap.String("path", path),
				zap.Error(err))
		} else {
			cfg = parsed
			cfg.Path = path
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses JSON documents with encoding/json, which accepts tab
// indentation, and everything else as YAML.
func decode(data []byte, cfg *Config) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return json.Unmarshal(trimmed, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvSocket)); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		c.Daemon.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Daemon.LogLevel = v
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	nonNegative := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, v))
		}
	}

	if c.Pomodoro.RoundPerSession < 0 {
		errs = append(errs, fmt.Errorf("pomodoro.round_per_session must not be negative, got %d", c.Pomodoro.RoundPerSession))
	}
	nonNegative("pomodoro.rest_time_in_session", c.Pomodoro.RestTimeInSession)
	nonNegative("pomodoro.rest_time_after_session", c.Pomodoro.RestTimeAfterSession)
	nonNegative("pomodoro.idle_threshold", c.Pomodoro.IdleThreshold)
	if c.Pomodoro.WorkingTime <= 0 {
		errs = append(errs, fmt.Errorf("pomodoro.working_time must be positive, got %v", c.Pomodoro.WorkingTime))
	}

	if c.FocusTracker.Duration <= 0 {
		errs = append(errs, fmt.Errorf("focustracker.duration must be positive, got %v", c.FocusTracker.Duration))
	}
	nonNegative("focustracker.idle_threshold", c.FocusTracker.IdleThreshold)
	nonNegative("focustracker.idle_long_threshold", c.FocusTracker.IdleLongThreshold)
	nonNegative("focustracker.probe_timeout", c.FocusTracker.ProbeTimeout)
	if h := c.FocusTracker.DayBoundaryHour; h < 0 || h > 23 {
		errs = append(errs, fmt.Errorf("focustracker.day_boundary_hour must be within 0..23, got %d", h))
	}

	if c.Daemon.SocketPath == "" {
		errs = append(errs, errors.New("daemon.socket_path must not be empty"))
	}
	if c.Daemon.SnapshotRetentionDays < 0 {
		errs = append(errs, fmt.Errorf("daemon.snapshot_retention_days must not be negative, got %d", c.Daemon.SnapshotRetentionDays))
	}
	if _, err := zap.ParseAtomicLevel(c.Daemon.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("daemon.log_level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// WorkingListPath returns the working list location. Relative paths are
// resolved against the config file's directory.
func (c *Config) WorkingListPath() string {
	p := infra.ExpandHome(c.FocusTracker.WorkingList)
	if filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}

// DataDir returns the expanded data directory.
func (c *Config) DataDir() string {
	return infra.ExpandHome(c.Daemon.DataDir)
}

// SnapshotRetention returns how long snapshots are kept. Zero keeps them forever.
func (c *Config) SnapshotRetention() time.Duration {
	return time.Duration(c.Daemon.SnapshotRetentionDays) * 24 * time.Hour
}

// Focus converts the focustracker section.
func (c *Config) Focus() focus.Config {
	return focus.Config{
		SampleInterval:    seconds(c.FocusTracker.Duration),
		IdleThreshold:     seconds(c.FocusTracker.IdleThreshold),
		IdleLongThreshold: seconds(c.FocusTracker.IdleLongThreshold),
		DayBoundaryHour:   c.FocusTracker.DayBoundaryHour,
		ProbeTimeout:      seconds(c.FocusTracker.ProbeTimeout),
	}
}

// PomodoroConfig converts the pomodoro section.
func (c *Config) PomodoroConfig() pomodoro.Config {
	return pomodoro.Config{
		RoundsPerSession: c.Pomodoro.RoundPerSession,
		WorkingTime:      minutes(c.Pomodoro.WorkingTime),
		RestInSession:    minutes(c.Pomodoro.RestTimeInSession),
		RestAfterSession: minutes(c.Pomodoro.RestTimeAfterSession),
		IdleThreshold:    seconds(c.Pomodoro.IdleThreshold),
	}
}

// Manager converts the daemon section.
func (c *Config) Manager() usecase.ManagerConfig {
	return usecase.ManagerConfig{ReportEachHour: c.Daemon.ReportEachHour}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func minutes(v float64) time.Duration {
	return time.Duration(v * float64(time.Minute))
}
