package db

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	migrationsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainledger_migrations_applied_total",
			Help: "Total number of schema migrations applied",
		},
	)

	migrationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainledger_migration_failures_total",
			Help: "Total number of failed migration runs",
		},
	)
)

func MigrationsAppliedAdd(n int) {
	migrationsApplied.Add(float64(n))
}

func MigrationFailuresInc() {
	migrationFailures.Inc()
}
