package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillswap/chainledger/internal/common"
	"github.com/skillswap/chainledger/internal/contracts"
	"github.com/skillswap/chainledger/internal/indexer"
	"github.com/skillswap/chainledger/internal/ledger"
	"github.com/skillswap/chainledger/internal/logger"
	"github.com/skillswap/chainledger/internal/metrics"
	"github.com/skillswap/chainledger/internal/rpc"
	"github.com/spf13/cobra"
)

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), banner, version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if startBlock != "" {
		block, err := common.ParseUint64orHex(&startBlock)
		if err != nil {
			return fmt.Errorf("invalid --start-block %q: %w", startBlock, err)
		}
		cfg.Indexer.StartBlock = block
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewComponentLoggerFromConfig(common.ComponentIndexer, cfg.Logging)
	defer log.Close() //nolint:errcheck

	registry, err := contracts.NewRegistry(cfg.Contracts)
	if err != nil {
		return fmt.Errorf("failed to build contract registry: %w", err)
	}
	logger.NewComponentLoggerFromConfig(common.ComponentRegistry, cfg.Logging).
		Infow("contract registry built", "contracts", registry.Len())

	log.Infow("connecting to node", "rpc_url", cfg.Chain.RPCURL, "finality", cfg.Chain.Finality)
	chain, err := rpc.NewClient(ctx, cfg.Chain,
		logger.NewComponentLoggerFromConfig(common.ComponentChainRPC, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer chain.Close()

	store, err := ledger.Open(ctx, cfg.Ledger,
		logger.NewComponentLoggerFromConfig(common.ComponentLedger, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnw("failed to close ledger", "error", err)
		}
	}()

	idx, err := indexer.New(indexer.ConfigFromIndexer(cfg.Indexer), chain, store, registry, log)
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics,
			func() any { return idx.Status() },
			logger.NewComponentLoggerFromConfig(common.ComponentMetrics, cfg.Logging),
		)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd
			defer cancel()
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				log.Warnw("failed to stop metrics server", "error", err)
			}
		}()
	}

	if err := idx.Start(ctx); err != nil {
		return fmt.Errorf("failed to start indexer: %w", err)
	}
	metrics.ComponentHealthSet(common.ComponentIndexer, true)

	<-idx.Done()
	idx.Stop()

	if err := idx.Err(); err != nil {
		metrics.ComponentHealthSet(common.ComponentIndexer, false)
		if errors.Is(err, indexer.ErrRetriesExhausted) {
			log.Errorw("indexer gave up, restart required", "status", idx.Status(), "error", err)
		}
		return err
	}

	log.Infow("indexer stopped", "last_processed_block", idx.Status().Cursor)

	return nil
}
