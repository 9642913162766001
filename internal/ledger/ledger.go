package ledger

import (
	"context"
	"fmt"

	"github.com/skillswap/chainledger/internal/ledger/mongo"
	"github.com/skillswap/chainledger/internal/ledger/sqlite"
	"github.com/skillswap/chainledger/internal/logger"
	"github.com/skillswap/chainledger/pkg/config"
	pkgledger "github.com/skillswap/chainledger/pkg/ledger"
)

// Open returns the configured ledger backend.
func Open(ctx context.Context, cfg config.LedgerConfig, log *logger.Logger) (pkgledger.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return sqlite.New(cfg.DB, log)
	case config.BackendMongo:
		return mongo.New(ctx, cfg.Mongo, log)
	default:
		return nil, fmt.Errorf("unsupported ledger backend %q", cfg.Backend)
	}
}
