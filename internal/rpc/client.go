package rpc

import (
	"cmp"
	"context"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/skillswap/chainledger/internal/contracts"
	"github.com/skillswap/chainledger/internal/logger"
	internaltypes "github.com/skillswap/chainledger/internal/types"
	"github.com/skillswap/chainledger/pkg/config"
	pkgrpc "github.com/skillswap/chainledger/pkg/rpc"
)

const (
	methodBlockNumber = "eth_blockNumber"
	methodGetBlock    = "eth_getBlockByNumber"
	methodGetLogs     = "eth_getLogs"
)

// Compile-time check to ensure Client implements pkgrpc.ChainClient interface.
var _ pkgrpc.ChainClient = (*Client)(nil)

// Client is the go-ethereum backed ChainClient.
type Client struct {
	eth      *ethclient.Client
	rpc      *rpc.Client
	finality internaltypes.BlockFinality
	timeout  time.Duration
	blocks   *lru.Cache[uint64, time.Time]
	log      *logger.Logger
}

// NewClient dials the configured endpoint.
func NewClient(ctx context.Context, cfg config.ChainConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	client, err := NewClientFromRPC(rpcClient, cfg, log)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	return client, nil
}

// NewClientFromRPC wraps an existing go-ethereum RPC client.
func NewClientFromRPC(rpcClient *rpc.Client, cfg config.ChainConfig, log *logger.Logger) (*Client, error) {
	finality, err := internaltypes.ParseBlockFinality(cfg.Finality)
	if err != nil {
		return nil, err
	}

	cacheSize := cfg.BlockCacheSize
	if cacheSize <= 0 {
		cacheSize = 1
	}

	blocks, err := lru.New[uint64, time.Time](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		eth:      ethclient.NewClient(rpcClient),
		rpc:      rpcClient,
		finality: finality,
		timeout:  cfg.RequestTimeout.Duration,
		blocks:   blocks,
		log:      log,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// call runs fn under the per-call timeout, records metrics and wraps any
// failure in a TransportError.
func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	RPCMethodInc(method)
	err := fn(ctx)
	RPCMethodDuration(method, time.Since(start))

	if err != nil {
		RPCMethodError(method, errorType(err))
		return newTransportError(method, err)
	}

	return nil
}

// CurrentHeight returns the head block number for the configured finality.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	if c.finality == internaltypes.FinalityLatest {
		var height uint64
		err := c.call(ctx, methodBlockNumber, func(ctx context.Context) error {
			var err error
			height, err = c.eth.BlockNumber(ctx)
			return err
		})
		return height, err
	}

	var header *types.Header
	err := c.call(ctx, methodGetBlock, func(ctx context.Context) error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, big.NewInt(int64(c.finality.BlockTag())))
		if err == nil && header == nil {
			err = ethereum.NotFound
		}
		return err
	})
	if err != nil {
		return 0, err
	}

	return header.Number.Uint64(), nil
}

// BlockTimestamp returns the block's timestamp in UTC, served from cache when possible.
func (c *Client) BlockTimestamp(ctx context.Context, block uint64) (time.Time, error) {
	if ts, ok := c.blocks.Get(block); ok {
		BlockCacheHitInc()
		return ts, nil
	}
	BlockCacheMissInc()

	var header *types.Header
	err := c.call(ctx, methodGetBlock, func(ctx context.Context) error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
		if err == nil && header == nil {
			err = ethereum.NotFound
		}
		return err
	})
	if err != nil {
		return time.Time{}, err
	}

	ts := time.Unix(int64(header.Time), 0).UTC() //nolint:gosec
	c.blocks.Add(block, ts)

	return ts, nil
}

// LogsInRange fetches and decodes the binding's logs in [from, to].
func (c *Client) LogsInRange(
	ctx context.Context, binding *contracts.Binding, from, to uint64,
) ([]pkgrpc.RawLog, error) {
	if from > to {
		return nil, nil
	}

	logs, err := c.filterLogs(ctx, binding, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]pkgrpc.RawLog, 0, len(logs))
	for i := range logs {
		log := &logs[i]
		if log.Removed {
			continue
		}
		out = append(out, c.decode(binding, log))
	}

	slices.SortStableFunc(out, func(a, b pkgrpc.RawLog) int {
		if n := cmp.Compare(a.BlockNumber, b.BlockNumber); n != 0 {
			return n
		}
		return cmp.Compare(a.LogIndex, b.LogIndex)
	})

	return out, nil
}

// filterLogs runs eth_getLogs, splitting the range when the node refuses
// to return that many results.
func (c *Client) filterLogs(ctx context.Context, binding *contracts.Binding, from, to uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{binding.Address()},
	}

	var logs []types.Log
	err := c.call(ctx, methodGetLogs, func(ctx context.Context) error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	if err == nil {
		return logs, nil
	}

	tooMany, msg := IsTooManyResultsError(err)
	if !tooMany || from >= to {
		return nil, err
	}

	mid := from + (to-from)/2 //nolint:mnd
	if _, suggestedTo, ok := ParseSuggestedBlockRange(msg); ok && suggestedTo >= from && suggestedTo < to {
		mid = suggestedTo
	}

	RangeSplitInc()
	c.log.Debugw("splitting log query",
		"contract", binding.Name(),
		"from", from,
		"to", to,
		"split_at", mid,
	)

	left, err := c.filterLogs(ctx, binding, from, mid)
	if err != nil {
		return nil, err
	}

	right, err := c.filterLogs(ctx, binding, mid+1, to)
	if err != nil {
		return nil, err
	}

	return append(left, right...), nil
}

func (c *Client) decode(binding *contracts.Binding, log *types.Log) pkgrpc.RawLog {
	raw := pkgrpc.RawLog{
		Address:     log.Address,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
	}

	event, values, err := binding.Decode(log)
	if event != nil {
		raw.EventName = event.RawName
		raw.Inputs = event.Inputs
	}

	if err != nil {
		var topic common.Hash
		if len(log.Topics) > 0 {
			topic = log.Topics[0]
		}
		raw.DecodeErr = &DecodeError{TxHash: log.TxHash, LogIndex: log.Index, Topic: topic, Err: err}
		return raw
	}

	raw.Values = values
	return raw
}
