package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// FileRegistry implements domain.DaemonRegistry with a JSON file in the
// data directory. Writers serialize on a flock'd sidecar file.
type FileRegistry struct {
	path string
}

// NewFileRegistry creates a registry at path.
func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

// Path returns the registry file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register records the running daemon, replacing any previous entry.
func (r *FileRegistry) Register(info domain.DaemonInfo) error {
	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	return r.atomicWrite(data)
}

// Get returns the registered daemon, or nil if none.
func (r *FileRegistry) Get() (*domain.DaemonInfo, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var info domain.DaemonInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return &info, nil
}

// Clear removes the registration. Clearing an empty registry is not an error.
func (r *FileRegistry) Clear() error {
	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove registry: %w", err)
	}
	return nil
}

func (r *FileRegistry) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		lockFile.Close()
	}, nil
}

// atomicWrite writes the registry via a per-process temp file and rename.
func (r *FileRegistry) atomicWrite(data []byte) error {
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}

// LiveDaemon returns the registered daemon if its process is still running.
// A stale registration is reported as nil.
func LiveDaemon(reg domain.DaemonRegistry, pm domain.ProcessManager) (*domain.DaemonInfo, error) {
	info, err := reg.Get()
	if err != nil || info == nil {
		return nil, err
	}
	if !pm.IsRunning(info.PID) {
		return nil, nil
	}
	return info, nil
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
