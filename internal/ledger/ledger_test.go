package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/skillswap/chainledger/internal/ledger/sqlite"
	"github.com/skillswap/chainledger/internal/logger"
	"github.com/skillswap/chainledger/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := config.LedgerConfig{
		DB: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "ledger.db")},
	}
	cfg.ApplyDefaults()

	store, err := Open(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	defer store.Close()

	require.IsType(t, &sqlite.Store{}, store)

	_, ok, err := store.Watermark(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.LedgerConfig{Backend: "postgres"}, nil)
	require.ErrorContains(t, err, `unsupported ledger backend "postgres"`)
}
