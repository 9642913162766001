package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
	internalcommon "github.com/skillswap/chainledger/internal/common"
	"github.com/skillswap/chainledger/internal/db"
	"github.com/skillswap/chainledger/internal/logger"
	"github.com/skillswap/chainledger/internal/metrics"
	"github.com/skillswap/chainledger/internal/migrations"
	"github.com/skillswap/chainledger/pkg/config"
	"github.com/skillswap/chainledger/pkg/ledger"
	"github.com/skillswap/chainledger/pkg/value"
)

const backendName = "sqlite"

// eventColumns lists the contract_events columns mapped by dbEvent.
var eventColumns = []string{
	"id", "contract_name", "contract_address", "event_name", "block_number", "block_hash",
	"tx_hash", "tx_index", "log_index", "args", "block_timestamp", "processed",
}

// Compile-time check to ensure Store implements ledger.Store interface.
var _ ledger.Store = (*Store)(nil)

// Store is the SQLite backed ledger.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// dbEvent is the contract_events row.
type dbEvent struct {
	ID              int64          `meddler:"id,pk"`
	ContractName    string         `meddler:"contract_name"`
	ContractAddress common.Address `meddler:"contract_address,address"`
	EventName       string         `meddler:"event_name"`
	BlockNumber     uint64         `meddler:"block_number"`
	BlockHash       common.Hash    `meddler:"block_hash,hash"`
	TxHash          common.Hash    `meddler:"tx_hash,hash"`
	TxIndex         uint           `meddler:"tx_index"`
	LogIndex        uint           `meddler:"log_index"`
	Args            string         `meddler:"args"`
	Timestamp       int64          `meddler:"block_timestamp"`
	Processed       bool           `meddler:"processed"`
}

type contractStats struct {
	ContractName string `meddler:"contract_name"`
	Events       int64  `meddler:"events"`
	MinBlock     uint64 `meddler:"min_block"`
	MaxBlock     uint64 `meddler:"max_block"`
}

type participant struct {
	EventID int64  `meddler:"event_id"`
	Address string `meddler:"address"`
}

// New opens the SQLite ledger described by cfg and migrates it.
func New(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	sqlDB, err := db.NewSQLiteDBFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := migrations.RunMigrationsDB(log.WithComponent(internalcommon.ComponentMigrations), sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	log.Infow("sqlite ledger opened", "path", cfg.Path, "journal_mode", cfg.JournalMode)

	return NewFromDB(sqlDB, log), nil
}

// NewFromDB wraps an already migrated database.
func NewFromDB(sqlDB *sql.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Store{db: sqlDB, log: log}
}

// observe records query metrics and wraps err as a ledger.StoreError.
func observe(op string, start time.Time, err error) error {
	metrics.DBQueryInc(backendName, op)
	metrics.DBQueryDuration(backendName, op, time.Since(start))

	if err != nil {
		metrics.DBErrorsInc(backendName, op)
		return ledger.NewStoreError(op, err)
	}

	return nil
}

// Exists reports whether (txHash, logIndex) is stored.
func (s *Store) Exists(ctx context.Context, txHash common.Hash, logIndex uint) (bool, error) {
	start := time.Now()

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM contract_events WHERE tx_hash = ? AND log_index = ? LIMIT 1`,
		txHash.Hex(), logIndex,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, observe("exists", start, nil)
	}
	if err != nil {
		return false, observe("exists", start, err)
	}

	return true, observe("exists", start, nil)
}

// MaxBlockNumber returns the highest stored block number.
func (s *Store) MaxBlockNumber(ctx context.Context) (uint64, bool, error) {
	start := time.Now()

	var maxBlock sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(block_number) FROM contract_events`).Scan(&maxBlock); err != nil {
		return 0, false, observe("max_block", start, err)
	}

	if !maxBlock.Valid {
		return 0, false, observe("max_block", start, nil)
	}

	return uint64(maxBlock.Int64), true, observe("max_block", start, nil) //nolint:gosec
}

// Append inserts the event and its participants in one transaction.
// A duplicate (tx_hash, log_index) leaves the ledger untouched and reports inserted=false.
func (s *Store) Append(ctx context.Context, event *ledger.ContractEvent) (inserted bool, err error) {
	start := time.Now()
	defer func() {
		err = observe("append", start, err)
	}()

	args, err := value.Marshal(event.Args)
	if err != nil {
		return false, fmt.Errorf("failed to encode args: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	row := toDBEvent(event, string(args))

	res, err := tx.ExecContext(ctx, `
		INSERT INTO contract_events (
			contract_name, contract_address, event_name, block_number, block_hash,
			tx_hash, tx_index, log_index, args, block_timestamp, processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		row.ContractName, row.ContractAddress.Hex(), row.EventName, row.BlockNumber, row.BlockHash.Hex(),
		row.TxHash.Hex(), row.TxIndex, row.LogIndex, row.Args, row.Timestamp, row.Processed,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	eventID, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	for _, addr := range event.Participants {
		if err := meddler.Insert(tx, "event_participants", &participant{EventID: eventID, Address: addr}); err != nil {
			return false, fmt.Errorf("failed to insert participant %s: %w", addr, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// Watermark returns the saved last processed block.
func (s *Store) Watermark(ctx context.Context) (uint64, bool, error) {
	start := time.Now()

	var block uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_processed_block FROM sync_state WHERE id = 1`,
	).Scan(&block)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, observe("watermark", start, nil)
	}
	if err != nil {
		return 0, false, observe("watermark", start, err)
	}

	return block, true, observe("watermark", start, nil)
}

// SaveWatermark upserts the single sync_state row.
func (s *Store) SaveWatermark(ctx context.Context, block uint64) error {
	start := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_processed_block, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			last_processed_block = excluded.last_processed_block,
			updated_at = CURRENT_TIMESTAMP`,
		block,
	)

	return observe("save_watermark", start, err)
}

// EventsByContract returns one page of the contract's events, newest first.
func (s *Store) EventsByContract(ctx context.Context, query ledger.ContractQuery) (ledger.Page, error) {
	start := time.Now()
	query = query.Normalize()

	where := "contract_name = ?"
	params := []any{query.ContractName}
	if query.EventName != "" {
		where += " AND event_name = ?"
		params = append(params, query.EventName)
	}

	page := ledger.Page{Page: query.Page, Limit: query.Limit}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contract_events WHERE "+where, params...,
	).Scan(&page.Total); err != nil {
		return ledger.Page{}, observe("events_by_contract", start, err)
	}

	events, err := s.queryEvents(ctx, fmt.Sprintf(
		"SELECT %s FROM contract_events WHERE %s ORDER BY block_number DESC, log_index DESC LIMIT ? OFFSET ?",
		columns(""), where,
	), append(params, query.Limit, query.Offset())...)
	if err != nil {
		return ledger.Page{}, observe("events_by_contract", start, err)
	}

	page.Events = events
	return page, observe("events_by_contract", start, nil)
}

// EventsByTransaction returns the transaction's events by log index.
func (s *Store) EventsByTransaction(ctx context.Context, txHash common.Hash) ([]*ledger.ContractEvent, error) {
	start := time.Now()

	events, err := s.queryEvents(ctx, fmt.Sprintf(
		"SELECT %s FROM contract_events WHERE tx_hash = ? ORDER BY log_index ASC", columns(""),
	), txHash.Hex())

	return events, observe("events_by_transaction", start, err)
}

// EventsByAddress returns the newest events that list address as a participant.
func (s *Store) EventsByAddress(
	ctx context.Context, address common.Address, limit int,
) ([]*ledger.ContractEvent, error) {
	start := time.Now()

	events, err := s.queryEvents(ctx, fmt.Sprintf(`
		SELECT %s FROM contract_events e
		JOIN event_participants p ON p.event_id = e.id
		WHERE p.address = ?
		ORDER BY e.block_number DESC, e.log_index DESC
		LIMIT ?`, columns("e.")),
		internalcommon.ToLowerWithTrim(address.Hex()), ledger.ClampLimit(limit),
	)

	return events, observe("events_by_address", start, err)
}

// Stats summarizes the ledger per contract.
func (s *Store) Stats(ctx context.Context) (ledger.Stats, error) {
	start := time.Now()

	var rows []*contractStats
	if err := meddler.QueryAll(s.db, &rows, `
		SELECT contract_name,
		       COUNT(*) AS events,
		       MIN(block_number) AS min_block,
		       MAX(block_number) AS max_block
		FROM contract_events
		GROUP BY contract_name
		ORDER BY contract_name`,
	); err != nil {
		return ledger.Stats{}, observe("stats", start, err)
	}

	stats := ledger.Stats{Contracts: make([]ledger.ContractStats, 0, len(rows))}
	for _, r := range rows {
		stats.Contracts = append(stats.Contracts, ledger.ContractStats{
			ContractName: r.ContractName,
			Events:       r.Events,
			MinBlock:     r.MinBlock,
			MaxBlock:     r.MaxBlock,
		})
		stats.Total += r.Events
	}

	if err := observe("stats", start, nil); err != nil {
		return ledger.Stats{}, err
	}

	watermark, ok, err := s.Watermark(ctx)
	if err != nil {
		return ledger.Stats{}, err
	}
	if ok {
		stats.Watermark = &watermark
	}

	return stats, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]*ledger.ContractEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []*dbEvent
	if err := meddler.QueryAll(s.db, &rows, query, args...); err != nil {
		return nil, err
	}

	participants, err := s.participants(ctx, rows)
	if err != nil {
		return nil, err
	}

	events := make([]*ledger.ContractEvent, 0, len(rows))
	for _, r := range rows {
		event, err := fromDBEvent(r)
		if err != nil {
			return nil, err
		}
		event.Participants = participants[r.ID]
		events = append(events, event)
	}

	return events, nil
}

// participants loads the participant addresses of rows keyed by event id.
func (s *Store) participants(ctx context.Context, rows []*dbEvent) (map[int64][]string, error) {
	out := make(map[int64][]string, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]any, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var found []*participant
	if err := meddler.QueryAll(s.db, &found, fmt.Sprintf(
		"SELECT event_id, address FROM event_participants WHERE event_id IN (%s) ORDER BY event_id, rowid",
		placeholders(len(ids)),
	), ids...); err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	for _, p := range found {
		out[p.EventID] = append(out[p.EventID], p.Address)
	}

	return out, ctx.Err()
}

func toDBEvent(e *ledger.ContractEvent, args string) *dbEvent {
	return &dbEvent{
		ContractName:    e.ContractName,
		ContractAddress: e.ContractAddress,
		EventName:       e.EventName,
		BlockNumber:     e.BlockNumber,
		BlockHash:       e.BlockHash,
		TxHash:          e.TransactionHash,
		TxIndex:         e.TransactionIndex,
		LogIndex:        e.LogIndex,
		Args:            args,
		Timestamp:       e.Timestamp.Unix(),
		Processed:       e.Processed,
	}
}

func fromDBEvent(r *dbEvent) (*ledger.ContractEvent, error) {
	args, err := value.UnmarshalMap([]byte(r.Args))
	if err != nil {
		return nil, fmt.Errorf("event %s#%d: failed to decode args: %w", r.TxHash.Hex(), r.LogIndex, err)
	}

	return &ledger.ContractEvent{
		ContractName:     r.ContractName,
		ContractAddress:  r.ContractAddress,
		EventName:        r.EventName,
		BlockNumber:      r.BlockNumber,
		BlockHash:        r.BlockHash,
		TransactionHash:  r.TxHash,
		TransactionIndex: r.TxIndex,
		LogIndex:         r.LogIndex,
		Args:             args,
		Timestamp:        time.Unix(r.Timestamp, 0).UTC(),
		Processed:        r.Processed,
	}, nil
}

func columns(prefix string) string {
	cols := make([]string, len(eventColumns))
	for i, c := range eventColumns {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
