package db

import (
	"database/sql"
	"fmt"
	"strings"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/skillswap/chainledger/internal/logger"
)

const (
	UpMarker          = "-- +migrate Up"
	DownMarker        = "-- +migrate Down"
	NoLimitMigrations = 0 // indicate that there is no limit on the number of migrations to run
)

// Migration is one embedded SQL file with a Down section followed by an Up section.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes.
func RunMigrations(dbPath string, migrations []Migration) error {
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error creating DB %w", err)
	}
	defer db.Close()

	return RunMigrationsDB(logger.GetDefaultLogger(), db, migrations)
}

// RunMigrationsDB applies every pending Up migration on an open database.
func RunMigrationsDB(log *logger.Logger, db *sql.DB, migrations []Migration) error {
	return RunMigrationsDBExtended(log, db, migrations, migrate.Up, NoLimitMigrations)
}

// RunMigrationsDBExtended is an extended version of RunMigrationsDB that allows
// dir: can be migrate.Up or migrate.Down
// maxMigrations: Will apply at most `max` migrations. Pass 0 for no limit
func RunMigrationsDBExtended(log *logger.Logger,
	db *sql.DB,
	migrations []Migration,
	dir migrate.MigrationDirection,
	maxMigrations int) error {
	source := &migrate.MemoryMigrationSource{Migrations: make([]*migrate.Migration, 0, len(migrations))}

	ids := make([]string, 0, len(migrations))
	for _, m := range migrations {
		parsed, err := parseMigration(m)
		if err != nil {
			MigrationFailuresInc()
			return err
		}

		source.Migrations = append(source.Migrations, parsed)
		ids = append(ids, m.ID)
	}

	list := strings.Join(ids, ", ")
	log.Debugf("running migrations: (max %d/%d) migrations: %s", maxMigrations, len(ids), list)

	applied, err := migrate.ExecMax(db, driverName, source, dir, maxMigrations)
	if err != nil {
		MigrationFailuresInc()
		return fmt.Errorf("error executing migration (max %d/%d) migrations: %s. Err: %w",
			maxMigrations, len(ids), list, err)
	}

	MigrationsAppliedAdd(applied)
	log.Infof("successfully ran %d migrations from migrations: %s", applied, list)

	return nil
}

// parseMigration splits the file on the Up marker; everything before it,
// minus the Down marker, is the Down section.
func parseMigration(m Migration) (*migrate.Migration, error) {
	down, up, found := strings.Cut(m.SQL, UpMarker)
	if !found {
		return nil, fmt.Errorf("migration %s missing '%s' separator", m.ID, UpMarker)
	}

	if _, after, ok := strings.Cut(down, DownMarker); ok {
		down = after
	}

	return &migrate.Migration{
		Id:   m.ID,
		Up:   []string{strings.TrimSpace(up)},
		Down: []string{strings.TrimSpace(down)},
	}, nil
}
