package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/skillswap/chainledger/internal/logger"
	"github.com/skillswap/chainledger/pkg/config"
	"github.com/stretchr/testify/require"
)

const testMigration = `
-- +migrate Down
DROP TABLE IF EXISTS test_rows;

-- +migrate Up
CREATE TABLE test_rows (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	tx_hash TEXT,
	owner   TEXT NOT NULL
);
`

func setupTestDB(t *testing.T, journal string) *sql.DB {
	t.Helper()

	dbConfig := config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		JournalMode: journal,
	}
	dbConfig.ApplyDefaults()

	sqlDB, err := NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return sqlDB
}

func TestNewSQLiteDBFromConfig_JournalModes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		journalMode string
		expected    string
	}{
		{name: "WAL", journalMode: "WAL", expected: "wal"},
		{name: "NonWAL", journalMode: "TRUNCATE", expected: "truncate"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			db := setupTestDB(t, tc.journalMode)

			var mode string
			require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
			require.Equal(t, tc.expected, mode)

			var foreignKeys int
			require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
			require.Equal(t, 1, foreignKeys)
		})
	}
}

func TestRunMigrationsDB(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t, "WAL")
	log := logger.NewNopLogger()
	migrations := []Migration{{ID: "001_test.sql", SQL: testMigration}}

	require.NoError(t, RunMigrationsDB(log, db, migrations))
	// second run is a no-op
	require.NoError(t, RunMigrationsDB(log, db, migrations))

	_, err := db.Exec("INSERT INTO test_rows (owner) VALUES (?)", "0x0")
	require.NoError(t, err)

	require.NoError(t, RunMigrationsDBExtended(log, db, migrations, migrate.Down, NoLimitMigrations))

	_, err = db.Exec("INSERT INTO test_rows (owner) VALUES (?)", "0x0")
	require.Error(t, err)
}

func TestRunMigrationsDB_MissingSeparator(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t, "WAL")
	err := RunMigrationsDB(logger.NewNopLogger(), db, []Migration{
		{ID: "broken.sql", SQL: "CREATE TABLE broken (id INTEGER);"},
	})
	require.ErrorContains(t, err, "missing '-- +migrate Up' separator")
}

func TestNewSQLiteDBFromConfig_PragmasOnEveryConnection(t *testing.T) {
	t.Parallel()

	dbConfig := config.DatabaseConfig{
		Path:               filepath.Join(t.TempDir(), "pragmas.db"),
		Synchronous:        "FULL",
		CacheSize:          -4096,
		MaxOpenConnections: 4,
		MaxIdleConnections: 4,
	}
	dbConfig.ApplyDefaults()

	db, err := NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	conns := make([]*sql.Conn, 0, dbConfig.MaxOpenConnections)
	for range dbConfig.MaxOpenConnections {
		conn, err := db.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)
	}

	for i, conn := range conns {
		var synchronous, cacheSize int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&synchronous))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA cache_size").Scan(&cacheSize))
		require.Equal(t, 2, synchronous, "connection %d", i) // FULL
		require.Equal(t, -4096, cacheSize, "connection %d", i)
		require.NoError(t, conn.Close())
	}
}
