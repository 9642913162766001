package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/skillswap/chainledger/internal/common"
	"github.com/skillswap/chainledger/internal/logger"
	"github.com/skillswap/chainledger/internal/metrics"
	"github.com/skillswap/chainledger/pkg/config"
	"github.com/skillswap/chainledger/pkg/ledger"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	backendName = "mongo"

	// stateCollection holds the single watermark document.
	stateCollection = "sync_state"
	watermarkID     = "watermark"
)

// Compile-time check to ensure Store implements ledger.Store interface.
var _ ledger.Store = (*Store)(nil)

// Store is the MongoDB backed ledger.
type Store struct {
	client *driver.Client
	events *driver.Collection
	state  *driver.Collection
	log    *logger.Logger
}

type eventDoc struct {
	ContractName     string    `bson:"contractName"`
	ContractAddress  string    `bson:"contractAddress"`
	EventName        string    `bson:"eventName"`
	BlockNumber      int64     `bson:"blockNumber"`
	BlockHash        string    `bson:"blockHash"`
	TransactionHash  string    `bson:"transactionHash"`
	TransactionIndex int64     `bson:"transactionIndex"`
	LogIndex         int64     `bson:"logIndex"`
	Args             bson.D    `bson:"args"`
	Timestamp        time.Time `bson:"timestamp"`
	Processed        bool      `bson:"processed"`
	Participants     []string  `bson:"participants"`
	CreatedAt        time.Time `bson:"createdAt"`
}

type stateDoc struct {
	ID                 string    `bson:"_id"`
	LastProcessedBlock int64     `bson:"lastProcessedBlock"`
	UpdatedAt          time.Time `bson:"updatedAt"`
}

type statsDoc struct {
	ContractName string `bson:"_id"`
	Events       int64  `bson:"events"`
	MinBlock     int64  `bson:"minBlock"`
	MaxBlock     int64  `bson:"maxBlock"`
}

// New connects to MongoDB and ensures the ledger indexes exist.
func New(ctx context.Context, cfg *config.MongoConfig, log *logger.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("mongo configuration is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Duration)
	defer cancel()

	client, err := driver.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout.Duration))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	database := client.Database(cfg.Database)
	store := NewFromCollections(database.Collection(cfg.Collection), database.Collection(stateCollection), log)
	store.client = client

	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Infow("mongo ledger opened", "database", cfg.Database, "collection", cfg.Collection)

	return store, nil
}

// NewFromCollections wraps existing collections. Indexes are not created.
func NewFromCollections(events, state *driver.Collection, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Store{events: events, state: state, log: log}
}

// EnsureIndexes creates the unique event key and the query indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.events.Indexes().CreateMany(ctx, []driver.IndexModel{
		{
			Keys:    bson.D{{Key: "transactionHash", Value: 1}, {Key: "logIndex", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_tx_log"),
		},
		{
			Keys: bson.D{
				{Key: "contractName", Value: 1},
				{Key: "blockNumber", Value: -1},
				{Key: "logIndex", Value: -1},
			},
			Options: options.Index().SetName("contract_block"),
		},
		{
			Keys:    bson.D{{Key: "contractName", Value: 1}, {Key: "eventName", Value: 1}},
			Options: options.Index().SetName("contract_event"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "blockNumber", Value: -1}},
			Options: options.Index().SetName("participants_block"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger indexes: %w", err)
	}

	return nil
}

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

	n, err := s.events.CountDocuments(ctx, keyFilter(txHash, logIndex), options.Count().SetLimit(1))
	if err != nil {
		return false, observe("exists", start, err)
	}

	return n > 0, observe("exists", start, nil)
}

// MaxBlockNumber returns the highest stored block number.
func (s *Store) MaxBlockNumber(ctx context.Context) (uint64, bool, error) {
	start := time.Now()

	var doc struct {
		BlockNumber int64 `bson:"blockNumber"`
	}
	err := s.events.FindOne(ctx, bson.D{},
		options.FindOne().
			SetSort(bson.D{{Key: "blockNumber", Value: -1}}).
			SetProjection(bson.D{{Key: "blockNumber", Value: 1}}),
	).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return 0, false, observe("max_block", start, nil)
	}
	if err != nil {
		return 0, false, observe("max_block", start, err)
	}

	return uint64(doc.BlockNumber), true, observe("max_block", start, nil) //nolint:gosec
}

// Append inserts the event. The unique (transactionHash, logIndex) index turns
// a repeated append into inserted=false.
func (s *Store) Append(ctx context.Context, event *ledger.ContractEvent) (bool, error) {
	start := time.Now()

	_, err := s.events.InsertOne(ctx, toEventDoc(event))
	if driver.IsDuplicateKeyError(err) {
		return false, observe("append", start, nil)
	}
	if err != nil {
		return false, observe("append", start, err)
	}

	return true, observe("append", start, nil)
}

// Watermark returns the saved last processed block.
func (s *Store) Watermark(ctx context.Context) (uint64, bool, error) {
	start := time.Now()

	var doc stateDoc
	err := s.state.FindOne(ctx, bson.D{{Key: "_id", Value: watermarkID}}).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return 0, false, observe("watermark", start, nil)
	}
	if err != nil {
		return 0, false, observe("watermark", start, err)
	}

	return uint64(doc.LastProcessedBlock), true, observe("watermark", start, nil) //nolint:gosec
}

// SaveWatermark upserts the watermark document.
func (s *Store) SaveWatermark(ctx context.Context, block uint64) error {
	start := time.Now()

	_, err := s.state.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: watermarkID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "lastProcessedBlock", Value: int64(block)}, //nolint:gosec
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
		options.Update().SetUpsert(true),
	)

	return observe("save_watermark", start, err)
}

// EventsByContract returns one page of the contract's events, newest first.
func (s *Store) EventsByContract(ctx context.Context, query ledger.ContractQuery) (ledger.Page, error) {
	start := time.Now()
	query = query.Normalize()

	filter := bson.D{{Key: "contractName", Value: query.ContractName}}
	if query.EventName != "" {
		filter = append(filter, bson.E{Key: "eventName", Value: query.EventName})
	}

	total, err := s.events.CountDocuments(ctx, filter)
	if err != nil {
		return ledger.Page{}, observe("events_by_contract", start, err)
	}

	events, err := s.find(ctx, filter, options.Find().
		SetSort(newestFirst()).
		SetSkip(int64(query.Offset())).
		SetLimit(int64(query.Limit)),
	)
	if err != nil {
		return ledger.Page{}, observe("events_by_contract", start, err)
	}

	return ledger.Page{
		Events: events,
		Total:  total,
		Page:   query.Page,
		Limit:  query.Limit,
	}, observe("events_by_contract", start, nil)
}

// EventsByTransaction returns the transaction's events by log index.
func (s *Store) EventsByTransaction(ctx context.Context, txHash common.Hash) ([]*ledger.ContractEvent, error) {
	start := time.Now()

	events, err := s.find(ctx,
		bson.D{{Key: "transactionHash", Value: txHash.Hex()}},
		options.Find().SetSort(bson.D{{Key: "logIndex", Value: 1}}),
	)

	return events, observe("events_by_transaction", start, err)
}

// EventsByAddress returns the newest events that list address as a participant.
func (s *Store) EventsByAddress(
	ctx context.Context, address common.Address, limit int,
) ([]*ledger.ContractEvent, error) {
	start := time.Now()

	events, err := s.find(ctx,
		bson.D{{Key: "participants", Value: internalcommon.ToLowerWithTrim(address.Hex())}},
		options.Find().SetSort(newestFirst()).SetLimit(int64(ledger.ClampLimit(limit))),
	)

	return events, observe("events_by_address", start, err)
}

// Stats summarizes the ledger per contract.
func (s *Store) Stats(ctx context.Context) (ledger.Stats, error) {
	start := time.Now()

	cursor, err := s.events.Aggregate(ctx, driver.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$contractName"},
			{Key: "events", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "minBlock", Value: bson.D{{Key: "$min", Value: "$blockNumber"}}},
			{Key: "maxBlock", Value: bson.D{{Key: "$max", Value: "$blockNumber"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return ledger.Stats{}, observe("stats", start, err)
	}

	var rows []statsDoc
	if err := cursor.All(ctx, &rows); err != nil {
		return ledger.Stats{}, observe("stats", start, err)
	}

	stats := ledger.Stats{Contracts: make([]ledger.ContractStats, 0, len(rows))}
	for _, r := range rows {
		stats.Contracts = append(stats.Contracts, ledger.ContractStats{
			ContractName: r.ContractName,
			Events:       r.Events,
			MinBlock:     uint64(r.MinBlock), //nolint:gosec
			MaxBlock:     uint64(r.MaxBlock), //nolint:gosec
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

// Close disconnects the client, if the store owns one.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.client.Disconnect(ctx)
}

func (s *Store) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]*ledger.ContractEvent, error) {
	cursor, err := s.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var docs []eventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	events := make([]*ledger.ContractEvent, 0, len(docs))
	for i := range docs {
		events = append(events, fromEventDoc(&docs[i]))
	}

	return events, nil
}

func keyFilter(txHash common.Hash, logIndex uint) bson.D {
	return bson.D{
		{Key: "transactionHash", Value: txHash.Hex()},
		{Key: "logIndex", Value: int64(logIndex)},
	}
}

func newestFirst() bson.D {
	return bson.D{{Key: "blockNumber", Value: -1}, {Key: "logIndex", Value: -1}}
}

func toEventDoc(e *ledger.ContractEvent) *eventDoc {
	participants := e.Participants
	if participants == nil {
		participants = []string{}
	}

	return &eventDoc{
		ContractName:     e.ContractName,
		ContractAddress:  e.ContractAddress.Hex(),
		EventName:        e.EventName,
		BlockNumber:      int64(e.BlockNumber), //nolint:gosec
		BlockHash:        e.BlockHash.Hex(),
		TransactionHash:  e.TransactionHash.Hex(),
		TransactionIndex: int64(e.TransactionIndex),
		LogIndex:         int64(e.LogIndex),
		Args:             toBSONDoc(e.Args),
		Timestamp:        e.Timestamp.UTC(),
		Processed:        e.Processed,
		Participants:     participants,
		CreatedAt:        time.Now().UTC(),
	}
}

func fromEventDoc(d *eventDoc) *ledger.ContractEvent {
	var participants []string
	if len(d.Participants) > 0 {
		participants = d.Participants
	}

	return &ledger.ContractEvent{
		ContractName:     d.ContractName,
		ContractAddress:  common.HexToAddress(d.ContractAddress),
		EventName:        d.EventName,
		BlockNumber:      uint64(d.BlockNumber), //nolint:gosec
		BlockHash:        common.HexToHash(d.BlockHash),
		TransactionHash:  common.HexToHash(d.TransactionHash),
		TransactionIndex: uint(d.TransactionIndex), //nolint:gosec
		LogIndex:         uint(d.LogIndex),         //nolint:gosec
		Args:             fromBSONDoc(d.Args),
		Timestamp:        d.Timestamp.UTC(),
		Processed:        d.Processed,
		Participants:     participants,
	}
}
