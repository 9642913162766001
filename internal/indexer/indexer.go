package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skillswap/chainledger/internal/backoff"
	"github.com/skillswap/chainledger/internal/contracts"
	"github.com/skillswap/chainledger/internal/logger"
	"github.com/skillswap/chainledger/internal/metrics"
	"github.com/skillswap/chainledger/internal/normalize"
	"github.com/skillswap/chainledger/pkg/config"
	"github.com/skillswap/chainledger/pkg/ledger"
	pkgrpc "github.com/skillswap/chainledger/pkg/rpc"
	"golang.org/x/sync/errgroup"
)

// ErrRetriesExhausted is returned by Err when the loop stopped because
// consecutive failed batches exceeded the backoff policy's MaxAttempts.
var ErrRetriesExhausted = errors.New("indexer retries exhausted")

// errStopping aborts an iteration interrupted by Stop.
var errStopping = errors.New("indexer stopping")

// Config holds the loop parameters.
type Config struct {
	StartBlock   uint64
	BatchSize    uint64
	IdleInterval time.Duration
	BatchDelay   time.Duration
	Backoff      backoff.Policy
}

// ConfigFromIndexer converts the indexer configuration section.
func ConfigFromIndexer(cfg config.IndexerConfig) Config {
	return Config{
		StartBlock:   cfg.StartBlock,
		BatchSize:    cfg.BatchSize,
		IdleInterval: cfg.IdleInterval.Duration,
		BatchDelay:   cfg.BatchDelay.Duration,
		Backoff:      backoff.FromConfig(cfg.Backoff),
	}
}

// Indexer keeps the ledger in sync with the registered contracts' logs.
// A single background goroutine owns the cursor and the failure counter.
type Indexer struct {
	cfg      Config
	chain    pkgrpc.ChainClient
	store    ledger.Store
	registry *contracts.Registry
	log      *logger.Logger

	// delay and sleep are replaced in tests
	delay func(attempt int) time.Duration
	sleep func(ctx context.Context, d time.Duration) bool

	// lifecycle guards Start and Stop against each other
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.RWMutex
	status Status
	err    error
}

// New creates an Idle indexer.
func New(
	cfg Config,
	chain pkgrpc.ChainClient,
	store ledger.Store,
	registry *contracts.Registry,
	log *logger.Logger,
) (*Indexer, error) {
	if chain == nil {
		return nil, errors.New("chain client is required")
	}
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if registry == nil || registry.Len() == 0 {
		return nil, errors.New("at least one contract binding is required")
	}
	if cfg.BatchSize == 0 {
		return nil, errors.New("batch size must be greater than 0")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	i := &Indexer{
		cfg:      cfg,
		chain:    chain,
		store:    store,
		registry: registry,
		log:      log,
		delay:    cfg.Backoff.Delay,
		sleep:    sleepContext,
		status:   Status{State: StateIdle, UpdatedAt: time.Now().UTC()},
	}

	metrics.IndexerStateSet(StateIdle.String(), stateNames())

	return i, nil
}

// Start recovers the cursor from the ledger and launches the loop.
// It is a no-op while the loop is running; after Stopped it is a fresh restart.
// Cancelling ctx has the same effect as Stop.
func (i *Indexer) Start(ctx context.Context) error {
	i.lifecycle.Lock()
	defer i.lifecycle.Unlock()

	if state := i.Status().State; state == StateRunning || state == StateBackoff {
		return nil
	}

	cursor, err := i.recoverCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover cursor: %w", err)
	}

	if i.cancel != nil {
		i.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.done = make(chan struct{})

	i.mu.Lock()
	i.err = nil
	i.status = Status{Cursor: cursor}
	i.mu.Unlock()

	metrics.LastProcessedBlockSet(cursor)
	i.setState(StateRunning, nil)

	i.log.Infow("indexer started",
		"cursor", cursor,
		"contracts", i.registry.Len(),
		"batch_size", i.cfg.BatchSize,
	)

	go i.run(runCtx, i.done, cursor)

	return nil
}

// Stop signals the loop and waits for it to exit. The loop observes the
// signal at its next suspension point. Stopping an Idle or Stopped indexer is a no-op.
func (i *Indexer) Stop() {
	i.lifecycle.Lock()
	defer i.lifecycle.Unlock()

	if i.cancel == nil {
		return
	}

	i.cancel()
	<-i.done
	i.cancel = nil
}

// Done is closed when the current run ends. It is nil before the first Start.
func (i *Indexer) Done() <-chan struct{} {
	i.lifecycle.Lock()
	defer i.lifecycle.Unlock()

	return i.done
}

// Err returns why the last run ended: nil after Stop, ErrRetriesExhausted
// (wrapping the last failure) after too many failed batches.
func (i *Indexer) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.err
}

// Status returns a snapshot of the loop state.
func (i *Indexer) Status() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.status
}

// recoverCursor returns the last fully processed block: the saved watermark,
// else one below the highest stored event, else one below the start block.
func (i *Indexer) recoverCursor(ctx context.Context) (uint64, error) {
	floor := i.cfg.StartBlock
	if floor > 0 {
		floor--
	}

	watermark, ok, err := i.store.Watermark(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return max(watermark, floor), nil
	}

	maxBlock, ok, err := i.store.MaxBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if ok && maxBlock > 0 {
		// the highest block may be partially written
		return max(maxBlock-1, floor), nil
	}

	return floor, nil
}

func (i *Indexer) run(ctx context.Context, done chan struct{}, cursor uint64) {
	defer close(done)

	failures := 0
	for {
		if ctx.Err() != nil {
			i.finish(nil)
			return
		}

		next, err := i.iterate(ctx, cursor)
		if err == nil {
			// only a completed batch clears the failure streak; idle polls do not
			if next != cursor {
				if failures > 0 {
					failures = 0
					i.resetFailures()
				}

				cursor = next
				i.recordProgress(cursor)

				if !i.sleep(ctx, i.cfg.BatchDelay) {
					i.finish(nil)
					return
				}
			}
			continue
		}

		if errors.Is(err, errStopping) || ctx.Err() != nil {
			i.log.Debugw("iteration interrupted by stop", "cursor", cursor)
			i.finish(nil)
			return
		}

		failures++
		metrics.BatchFailureInc()
		metrics.ConsecutiveFailuresSet(failures)

		i.mu.Lock()
		i.status.Failures = failures
		i.mu.Unlock()

		if i.cfg.Backoff.Exhausted(failures) {
			err = fmt.Errorf("%w: %d consecutive failures: %w", ErrRetriesExhausted, failures, err)
			i.log.Errorw("indexer stopped, retries exhausted",
				"cursor", cursor,
				"failures", failures,
				"error", err,
			)
			i.finish(err)
			return
		}

		wait := i.delay(failures)
		i.log.Warnw("batch failed, backing off",
			"cursor", cursor,
			"attempt", failures,
			"delay", wait,
			"error", err,
		)

		i.setState(StateBackoff, err)

		if !i.sleep(ctx, wait) {
			i.finish(nil)
			return
		}

		i.setState(StateRunning, err)
	}
}

// iterate runs one loop iteration and returns the new cursor.
// An unchanged cursor with a nil error means there was nothing to scan.
func (i *Indexer) iterate(ctx context.Context, cursor uint64) (uint64, error) {
	height, err := i.chain.CurrentHeight(context.WithoutCancel(ctx))
	if err != nil {
		return cursor, err
	}

	metrics.ChainHeightSet(height)
	i.mu.Lock()
	i.status.ChainHeight = height
	i.mu.Unlock()

	if height <= cursor {
		i.log.Debugw("no new blocks", "cursor", cursor, "height", height)
		if !i.sleep(ctx, i.cfg.IdleInterval) {
			return cursor, errStopping
		}
		return cursor, nil
	}

	from := cursor + 1
	to := min(height, cursor+i.cfg.BatchSize)

	if err := i.processBatch(ctx, from, to); err != nil {
		return cursor, err
	}

	return to, nil
}

// processBatch scans [from, to] for every contract concurrently and saves the
// watermark once all of them completed.
func (i *Indexer) processBatch(ctx context.Context, from, to uint64) error {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	stored := make([]int, i.registry.Len())
	for n, binding := range i.registry.All() {
		g.Go(func() error {
			count, err := i.processContract(gctx, binding, from, to)
			stored[n] = count
			if err != nil {
				return fmt.Errorf("contract %s: %w", binding.Name(), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return errStopping
		}
		return err
	}

	// a stop that arrived while the last fetch was in flight abandons the batch
	if ctx.Err() != nil {
		return errStopping
	}

	if err := i.store.SaveWatermark(context.WithoutCancel(ctx), to); err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}

	total := 0
	for _, n := range stored {
		total += n
	}

	metrics.BatchProcessingTimeLog(time.Since(start))
	metrics.BlocksProcessedAdd(to - from + 1)

	i.log.Infow("batch processed",
		"from_block", from,
		"to_block", to,
		"events_stored", total,
		"duration", time.Since(start),
	)

	return nil
}

// processContract writes the binding's logs in [from, to] in (block, log index) order.
// It returns the number of newly stored events.
func (i *Indexer) processContract(
	ctx context.Context, binding *contracts.Binding, from, to uint64,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	logs, err := i.chain.LogsInRange(context.WithoutCancel(ctx), binding, from, to)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, raw := range logs {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		if raw.DecodeErr != nil {
			metrics.DecodeFailureInc(binding.Name())
			i.log.Warnw("skipping undecodable log",
				"contract", binding.Name(),
				"block", raw.BlockNumber,
				"tx_hash", raw.TxHash.Hex(),
				"log_index", raw.LogIndex,
				"error", raw.DecodeErr,
			)
			continue
		}

		inserted, err := i.storeLog(ctx, binding, raw)
		if err != nil {
			return stored, err
		}
		if inserted {
			stored++
		}
	}

	return stored, nil
}

func (i *Indexer) storeLog(ctx context.Context, binding *contracts.Binding, raw pkgrpc.RawLog) (bool, error) {
	noCancel := context.WithoutCancel(ctx)

	exists, err := i.store.Exists(noCancel, raw.TxHash, raw.LogIndex)
	if err != nil {
		return false, err
	}
	if exists {
		metrics.EventDuplicateInc(binding.Name())
		return false, nil
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	timestamp, err := i.chain.BlockTimestamp(noCancel, raw.BlockNumber)
	if err != nil {
		return false, err
	}

	event := &ledger.ContractEvent{
		ContractName:     binding.Name(),
		ContractAddress:  binding.Address(),
		EventName:        raw.EventName,
		BlockNumber:      raw.BlockNumber,
		BlockHash:        raw.BlockHash,
		TransactionHash:  raw.TxHash,
		TransactionIndex: raw.TxIndex,
		LogIndex:         raw.LogIndex,
		Args:             normalize.Args(raw.Inputs, raw.Values),
		Timestamp:        timestamp,
		Processed:        false,
		Participants:     normalize.Participants(raw.Inputs, raw.Values),
	}

	inserted, err := i.store.Append(noCancel, event)
	if err != nil {
		return false, err
	}

	if inserted {
		metrics.EventStoredInc(binding.Name(), raw.EventName)
		i.log.Debugw("event stored",
			"contract", binding.Name(),
			"event", raw.EventName,
			"block", raw.BlockNumber,
			"key", event.Key(),
		)
	} else {
		metrics.EventDuplicateInc(binding.Name())
	}

	return inserted, nil
}

func (i *Indexer) recordProgress(cursor uint64) {
	i.mu.Lock()
	i.status.Cursor = cursor
	i.status.UpdatedAt = time.Now().UTC()
	i.mu.Unlock()

	metrics.LastProcessedBlockSet(cursor)
}

func (i *Indexer) resetFailures() {
	i.mu.Lock()
	i.status.Failures = 0
	i.status.LastError = ""
	i.mu.Unlock()

	metrics.ConsecutiveFailuresSet(0)
}

func (i *Indexer) setState(state State, lastErr error) {
	i.mu.Lock()
	i.status.State = state
	if lastErr != nil {
		i.status.LastError = lastErr.Error()
	}
	i.status.UpdatedAt = time.Now().UTC()
	i.mu.Unlock()

	metrics.IndexerStateSet(state.String(), stateNames())
}

// finish moves the loop to Stopped. err is nil for a requested stop.
func (i *Indexer) finish(err error) {
	i.mu.Lock()
	i.err = err
	i.mu.Unlock()

	i.setState(StateStopped, err)

	if err == nil {
		i.log.Info("indexer stopped")
	}
}

// sleepContext waits for d and reports false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
