package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, Migrate(d))
	require.NoError(t, Migrate(d))
}

func TestMigrateSeedsRoles(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, Migrate(d))

	var total, defaults int
	require.NoError(t, d.QueryRow(`SELECT COUNT(1) FROM roles`).Scan(&total))
	require.NoError(t, d.QueryRow(`SELECT COUNT(1) FROM roles WHERE is_default = TRUE`).Scan(&defaults))
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, defaults)

	var adminPerms int
	require.NoError(t, d.QueryRow(`SELECT permissions FROM roles WHERE name = 'Administrator'`).Scan(&adminPerms))
	assert.Equal(t, 0xFF, adminPerms)
}

func TestRebind(t *testing.T) {
	sqlite := &DB{dialect: SQLite}
	pg := &DB{dialect: Postgres}

	q := `SELECT id FROM users WHERE email = ? AND username = ?`
	assert.Equal(t, q, sqlite.Rebind(q))
	assert.Equal(t, `SELECT id FROM users WHERE email = $1 AND username = $2`, pg.Rebind(q))
	assert.Equal(t, `SELECT 1`, pg.Rebind(`SELECT 1`))
}
