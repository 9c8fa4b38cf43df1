package store

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrations, err := MigrationsFS("")
	require.NoError(t, err)
	entries, err := fs.ReadDir(migrations, ".")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		require.False(t, byVersion[version][direction], "duplicate %s migration file for version %s", direction, version)
		byVersion[version][direction] = true
	}

	require.NotEmpty(t, byVersion, "no migrations discovered")
	for version, dirs := range byVersion {
		assert.True(t, dirs["up"] && dirs["down"], "version %s must include both up and down files", version)
	}
}

func TestMigrationsFSReadsDirectory(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	migrations, err := MigrationsFS(dir)
	require.NoError(t, err)
	files, err := migrationFiles(migrations, ".up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.True(t, strings.HasPrefix(files[0], "0001_"), "expected 0001 first, got %v", files)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SCHSYNC_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SCHSYNC_TEST_DATABASE_URL is not set")
	}
	conn, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	conn := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	migrations, err := MigrationsFS("")
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, conn, migrations), "up migrations (pass 1)")
	require.NoError(t, RollbackMigrations(ctx, conn, migrations), "down migrations")
	require.NoError(t, ApplyMigrations(ctx, conn, migrations), "up migrations (pass 2)")
}

func TestPostgresKVRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	migrations, err := MigrationsFS("")
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, conn, migrations))

	kv := NewPostgresKV(conn)
	key := "test_kv:" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = kv.Delete(ctx, key) })

	require.NoError(t, kv.Set(ctx, key, []byte(`{"version":1}`)))
	value, ok, err := kv.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(value), `"version"`)

	keys, err := kv.Keys(ctx, "test_kv:")
	require.NoError(t, err)
	assert.NotEmpty(t, keys)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\_b\%c\\`, escapeLike(`a_b%c\`))
}
