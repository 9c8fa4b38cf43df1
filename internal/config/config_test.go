package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCHSYNC_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8788", cfg.Addr)
	assert.Equal(t, "127.0.0.1:9050", cfg.BridgeAddr)
	assert.Equal(t, "redis", cfg.Store)
	assert.Equal(t, 60*time.Second, cfg.BridgeTimeout)
	assert.Empty(t, cfg.NetlistDir)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schsync.yaml")
	file := "addr: \":9000\"\nstore: memory\nbridgeTimeout: 5s\njournalDir: /var/lib/schsync\nnetlistDir: /tmp/netlists\n"
	require.NoError(t, os.WriteFile(path, []byte(file), 0o600))
	t.Setenv("SCHSYNC_CONFIG", path)
	t.Setenv("SCHSYNC_ADDR", ":9100")
	t.Setenv("SCHSYNC_JOURNAL_DIR", "")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.BridgeTimeout)
	assert.Empty(t, cfg.JournalDir, "an empty env value disables the journal")
	assert.Equal(t, "/tmp/netlists", cfg.NetlistDir)
	assert.True(t, cfg.MinioUseSSL)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("SCHSYNC_CONFIG", "")
	t.Setenv("SCHSYNC_STORE", "badger")
	_, err := Load()
	assert.Error(t, err)
}
