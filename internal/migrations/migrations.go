package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/skillswap/chainledger/internal/db"
	"github.com/skillswap/chainledger/internal/logger"
)

//go:embed 001_ledger.sql
var mig001 string

// All returns the ledger schema migrations in application order.
func All() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_ledger.sql",
			SQL: mig001,
		},
	}
}

// RunMigrations brings the ledger database at dbPath up to date.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, All())
}

// RunMigrationsDB brings an already open ledger database up to date.
func RunMigrationsDB(log *logger.Logger, sqlDB *sql.DB) error {
	return db.RunMigrationsDB(log, sqlDB, All())
}
