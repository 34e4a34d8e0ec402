// Package infra implements infrastructure concerns (desktop probes, notifier,
// process, registry, snapshot storage).
package infra

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	logFileName      = "timetrackd.log"
	registryFileName = "daemon.json"
	snapshotDBName   = "snapshots.db"
)

// Paths holds the files the daemon keeps in its data directory.
type Paths struct {
	DataDir    string // Where the log, registry, snapshots and key live
	LogPath    string
	Registry   string
	SnapshotDB string
	KeyFile    string
}

// NewPaths lays out the data directory.
func NewPaths(dataDir string) Paths {
	dataDir = ExpandHome(dataDir)
	return Paths{
		DataDir:    dataDir,
		LogPath:    filepath.Join(dataDir, logFileName),
		Registry:   filepath.Join(dataDir, registryFileName),
		SnapshotDB: filepath.Join(dataDir, snapshotDBName),
		KeyFile:    filepath.Join(dataDir, keyFileName),
	}
}

// Ensure creates the data directory with owner-only permissions.
func (p Paths) Ensure() error {
	return os.MkdirAll(p.DataDir, 0700)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
