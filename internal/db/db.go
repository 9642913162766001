package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/skillswap/chainledger/pkg/config"
)

const driverName = "sqlite3"

// NewSQLiteDB opens a SQLite database with the ledger's default connection settings.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	cfg := config.DatabaseConfig{Path: dbPath}
	cfg.ApplyDefaults()

	return NewSQLiteDBFromConfig(cfg)
}

// NewSQLiteDBFromConfig creates a new SQLite DB with the given configuration.
// Every pragma travels in the DSN so the driver applies it to each pooled connection.
// Foreign keys are always enabled; event_participants rows cascade with their event.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=%s&_busy_timeout=%d&_synchronous=%s&_cache_size=%d",
		cfg.Path,
		cfg.JournalMode,
		cfg.BusyTimeout,
		cfg.Synchronous,
		cfg.CacheSize,
	)

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
