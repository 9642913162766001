package rpc

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/skillswap/chainledger/internal/contracts"
)

// ChainClient is the indexer's view of the remote node.
// Implementations perform no retries; every failure is returned to the caller.
type ChainClient interface {
	// CurrentHeight returns the number of the chain head selected by the configured finality.
	CurrentHeight(ctx context.Context) (uint64, error)

	// BlockTimestamp returns the timestamp of the given block.
	BlockTimestamp(ctx context.Context, block uint64) (time.Time, error)

	// LogsInRange returns the binding's logs in [from, to], decoded against its schema
	// and ordered by (BlockNumber, LogIndex). Logs that fail to decode carry DecodeErr.
	LogsInRange(ctx context.Context, binding *contracts.Binding, from, to uint64) ([]RawLog, error)

	// Close releases the underlying connection.
	Close()
}

// RawLog is a log entry together with its decoded event.
type RawLog struct {
	Address     common.Address
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	TxIndex     uint
	LogIndex    uint

	// EventName is the schema's name for the event; empty when topic0 is unknown.
	EventName string
	// Inputs are the event's ABI inputs in declaration order.
	Inputs abi.Arguments
	// Values holds decoded arguments keyed by input name.
	Values map[string]any

	// DecodeErr is set when the log could not be decoded against the schema.
	DecodeErr error
}
