package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/skillswap/chainledger/internal/common"
	"github.com/skillswap/chainledger/internal/ledger"
	"github.com/skillswap/chainledger/internal/logger"
	pkgledger "github.com/skillswap/chainledger/pkg/ledger"
	"github.com/spf13/cobra"
)

const queryTimeout = 30 * time.Second

var (
	queryContract string
	queryEvent    string
	queryTx       string
	queryAddress  string
	queryPage     int
	queryLimit    int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query stored events by contract, transaction or participant address",
	Example: `  indexer events --contract sessionManager --event SessionCompleted --page 2
  indexer events --tx 0x5c50...
  indexer events --address 0xcfa9...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, store pkgledger.Store) error {
			switch {
			case queryTx != "":
				if len(ethcommon.FromHex(queryTx)) != ethcommon.HashLength {
					return fmt.Errorf("invalid transaction hash %q", queryTx)
				}
				events, err := store.EventsByTransaction(ctx, ethcommon.HexToHash(queryTx))
				if err != nil {
					return err
				}
				return printJSON(cmd, events)

			case queryAddress != "":
				if !ethcommon.IsHexAddress(queryAddress) {
					return fmt.Errorf("invalid address %q", queryAddress)
				}
				events, err := store.EventsByAddress(ctx, ethcommon.HexToAddress(queryAddress), queryLimit)
				if err != nil {
					return err
				}
				return printJSON(cmd, events)

			case queryContract != "":
				page, err := store.EventsByContract(ctx, pkgledger.ContractQuery{
					ContractName: queryContract,
					EventName:    queryEvent,
					Page:         queryPage,
					Limit:        queryLimit,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, struct {
					pkgledger.Page
					Pages int64 `json:"pages"`
				}{Page: page, Pages: page.Pages()})

			default:
				return errors.New("one of --contract, --tx or --address is required")
			}
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-contract event counts and the saved watermark",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, store pkgledger.Store) error {
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		})
	},
}

func init() {
	eventsCmd.Flags().StringVar(&queryContract, "contract", "", "logical contract name")
	eventsCmd.Flags().StringVar(&queryEvent, "event", "", "event name filter (with --contract)")
	eventsCmd.Flags().StringVar(&queryTx, "tx", "", "transaction hash")
	eventsCmd.Flags().StringVar(&queryAddress, "address", "", "participant address")
	eventsCmd.Flags().IntVar(&queryPage, "page", 1, "page number (with --contract)")
	eventsCmd.Flags().IntVar(&queryLimit, "limit", pkgledger.DefaultPageSize, "maximum number of events")
	eventsCmd.MarkFlagsMutuallyExclusive("contract", "tx", "address")
}

// withLedger opens the configured ledger for a read-only query.
func withLedger(fn func(ctx context.Context, store pkgledger.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	store, err := ledger.Open(ctx, cfg.Ledger, logger.NewComponentLoggerFromConfig(common.ComponentLedger, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}
