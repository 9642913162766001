package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/skillswap/chainledger/pkg/value"
)

// DefaultPageSize is used when a query does not specify a limit.
const DefaultPageSize = 50

// MaxPageSize caps every query limit.
const MaxPageSize = 1000

// ContractEvent is one decoded log as persisted in the ledger.
// (TransactionHash, LogIndex) identifies it uniquely.
type ContractEvent struct {
	ContractName     string         `json:"contractName"`
	ContractAddress  common.Address `json:"contractAddress"`
	EventName        string         `json:"eventName"`
	BlockNumber      uint64         `json:"blockNumber"`
	BlockHash        common.Hash    `json:"blockHash"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	TransactionIndex uint           `json:"transactionIndex"`
	LogIndex         uint           `json:"logIndex"`
	Args             value.Map      `json:"args"`
	Timestamp        time.Time      `json:"timestamp"`
	Processed        bool           `json:"processed"`

	// Participants are the lower-cased addresses found in Args.
	Participants []string `json:"participants,omitempty"`
}

// Key returns the idempotency key of the event.
func (e *ContractEvent) Key() string {
	return fmt.Sprintf("%s#%d", e.TransactionHash.Hex(), e.LogIndex)
}

// ContractQuery selects events of one contract, newest first.
type ContractQuery struct {
	ContractName string
	// EventName optionally restricts results to one event.
	EventName string
	// Page is 1-based.
	Page  int
	Limit int
}

// Normalize applies paging defaults and bounds.
func (q ContractQuery) Normalize() ContractQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	q.Limit = ClampLimit(q.Limit)
	return q
}

// Offset returns the number of records skipped before the page.
func (q ContractQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// ClampLimit maps non-positive limits to DefaultPageSize and caps at MaxPageSize.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return min(limit, MaxPageSize)
}

// Page is one page of query results.
type Page struct {
	Events []*ContractEvent `json:"events"`
	Total  int64            `json:"total"`
	Page   int              `json:"page"`
	Limit  int              `json:"limit"`
}

// Pages returns the number of pages needed for Total records.
func (p Page) Pages() int64 {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + int64(p.Limit) - 1) / int64(p.Limit)
}

// ContractStats summarizes the events stored for one contract.
type ContractStats struct {
	ContractName string `json:"contractName"`
	Events       int64  `json:"events"`
	MinBlock     uint64 `json:"minBlock"`
	MaxBlock     uint64 `json:"maxBlock"`
}

// Stats summarizes the whole ledger.
type Stats struct {
	Contracts []ContractStats `json:"contracts"`
	Total     int64           `json:"total"`
	Watermark *uint64         `json:"watermark,omitempty"`
}

// Store is the durable ledger of contract events.
type Store interface {
	// Exists reports whether an event with the given key is stored.
	Exists(ctx context.Context, txHash common.Hash, logIndex uint) (bool, error)

	// MaxBlockNumber returns the highest block number of any stored event.
	MaxBlockNumber(ctx context.Context) (uint64, bool, error)

	// Append stores the event. A duplicate key is not an error; inserted is false.
	Append(ctx context.Context, event *ContractEvent) (inserted bool, err error)

	// Watermark returns the last fully processed block, if one was saved.
	Watermark(ctx context.Context) (uint64, bool, error)

	// SaveWatermark records block as fully processed.
	SaveWatermark(ctx context.Context, block uint64) error

	// EventsByContract returns one page of a contract's events ordered by (block, log index) descending.
	EventsByContract(ctx context.Context, query ContractQuery) (Page, error)

	// EventsByTransaction returns the events of one transaction ordered by log index.
	EventsByTransaction(ctx context.Context, txHash common.Hash) ([]*ContractEvent, error)

	// EventsByAddress returns the newest events that involve the address, across all contracts.
	EventsByAddress(ctx context.Context, address common.Address, limit int) ([]*ContractEvent, error)

	// Stats summarizes the stored events per contract.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the underlying resources.
	Close() error
}

// StoreError wraps a backend failure with the operation that hit it.
// The indexer treats it as retryable at batch level.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err unless it is nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err wraps a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
