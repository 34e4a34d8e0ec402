package infra

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyProvider(t *testing.T) {
	tests := []struct {
		name   string
		testFn func(t *testing.T, provider *FileKeyProvider)
	}{
		{
			name: "KeyExists returns false when no key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				assert.False(t, provider.KeyExists())
			},
		},
		{
			name: "StoreKey writes an owner-only file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)

				require.NoError(t, provider.StoreKey(key))

				assert.True(t, provider.KeyExists())
				info, err := os.Stat(provider.Path())
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			},
		},
		{
			name: "GetKey returns stored key",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))

				retrieved, err := provider.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, retrieved)
			},
		},
		{
			name: "GetKey tolerates a trailing newline",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				encoded := base64.StdEncoding.EncodeToString(key) + "\n"
				require.NoError(t, os.WriteFile(provider.Path(), []byte(encoded), 0600))

				retrieved, err := provider.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, retrieved)
			},
		},
		{
			name: "GetKey rejects a world-readable key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))
				require.NoError(t, os.Chmod(provider.Path(), 0644))

				_, err = provider.GetKey()
				assert.ErrorContains(t, err, "permissions")
			},
		},
		{
			name: "GetKey returns error when no key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				_, err := provider.GetKey()
				assert.Error(t, err)
			},
		},
		{
			name: "GetKey rejects a truncated key",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				encoded := base64.StdEncoding.EncodeToString([]byte("short"))
				require.NoError(t, os.WriteFile(provider.Path(), []byte(encoded), 0600))

				_, err := provider.GetKey()
				assert.ErrorContains(t, err, "invalid key size")
			},
		},
		{
			name: "StoreKey rejects wrong key size",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				err := provider.StoreKey([]byte("tooshort"))
				assert.ErrorContains(t, err, "invalid key size")
			},
		},
		{
			name: "StoreKey creates directory if missing",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				provider.keyPath = filepath.Join(filepath.Dir(provider.keyPath), "sub", "dir", keyFileName)

				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))
				assert.True(t, provider.KeyExists())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewFileKeyProvider(filepath.Join(t.TempDir(), keyFileName))
			tt.testFn(t, provider)
		})
	}
}

func TestEnsureKey(t *testing.T) {
	provider := NewFileKeyProvider(filepath.Join(t.TempDir(), keyFileName))

	first, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Len(t, first, keySize)

	second, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Equal(t, first, second, "existing key is reused")
}

func TestNewPaths(t *testing.T) {
	p := NewPaths("/var/lib/timetrack")

	assert.Equal(t, "/var/lib/timetrack", p.DataDir)
	assert.Equal(t, "/var/lib/timetrack/timetrackd.log", p.LogPath)
	assert.Equal(t, "/var/lib/timetrack/daemon.json", p.Registry)
	assert.Equal(t, "/var/lib/timetrack/snapshots.db", p.SnapshotDB)
	assert.Equal(t, "/var/lib/timetrack/.snapshot.key", p.KeyFile)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".timetrack"), ExpandHome("~/.timetrack"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/tmp/x", ExpandHome("/tmp/x"))
	assert.Equal(t, "~other/x", ExpandHome("~other/x"))
	assert.Equal(t, "rel/x", ExpandHome("rel/x"))
}
