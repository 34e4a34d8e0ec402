package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

// SnapshotStore implements domain.SnapshotStore using a SQLCipher
// encrypted SQLite database.
type SnapshotStore struct {
	db     *sql.DB
	dbPath string
}

// NewSnapshotStore opens (or creates) the encrypted snapshot database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewSnapshotStore(dbPath string, key []byte) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key surfaces later, at table creation.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &SnapshotStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *SnapshotStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		taken_at INTEGER NOT NULL,
		reason TEXT NOT NULL,
		total_ns INTEGER NOT NULL,
		working_ns INTEGER NOT NULL,
		playing_ns INTEGER NOT NULL,
		payload BLOB
	);

	CREATE INDEX IF NOT EXISTS snapshots_taken_at ON snapshots (taken_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores a snapshot. An empty ID is replaced with a random UUID.
func (s *SnapshotStore) Save(snap domain.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO snapshots (id, taken_at, reason, total_ns, working_ns, playing_ns, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.TakenAt.UnixNano(), string(snap.Reason),
		int64(snap.Total), int64(snap.Working), int64(snap.Playing), snap.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots, newest first. A non-positive limit
// returns all of them.
func (s *SnapshotStore) Recent(limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, taken_at, reason, total_ns, working_ns, playing_ns, payload
		FROM snapshots ORDER BY taken_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		var (
			snap                    domain.Snapshot
			takenAt                 int64
			reason                  string
			total, working, playing int64
		)
		if err := rows.Scan(&snap.ID, &takenAt, &reason, &total, &working, &playing, &snap.Payload); err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
		snap.TakenAt = time.Unix(0, takenAt)
		snap.Reason = domain.SnapshotReason(reason)
		snap.Total = time.Duration(total)
		snap.Working = time.Duration(working)
		snap.Playing = time.Duration(playing)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Prune deletes snapshots taken before the cutoff and returns how many went.
func (s *SnapshotStore) Prune(before time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM snapshots WHERE taken_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return result.RowsAffected()
}

// Path returns the database file path.
func (s *SnapshotStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// OpenSnapshotStore loads (or generates) the key from provider and opens
// the store at dbPath.
func OpenSnapshotStore(dbPath string, provider domain.KeyProvider) (*SnapshotStore, error) {
	key, err := EnsureKey(provider)
	if err != nil {
		return nil, err
	}
	return NewSnapshotStore(dbPath, key)
}

// Ensure SnapshotStore implements domain.SnapshotStore.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
