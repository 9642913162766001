package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/skillswap/chainledger/internal/common"
	"github.com/skillswap/chainledger/internal/logger"
	"github.com/skillswap/chainledger/internal/types"
)

const (
	// BackendSQLite stores the ledger in a local SQLite database
	BackendSQLite = "sqlite"

	// BackendMongo stores the ledger in a MongoDB collection
	BackendMongo = "mongo"
)

// Config represents the complete configuration for the event ledger indexer.
type Config struct {
	// Chain contains the RPC endpoint configuration
	Chain ChainConfig `yaml:"chain" json:"chain" toml:"chain"`

	// Contracts lists the contracts whose events are captured
	Contracts []ContractConfig `yaml:"contracts" json:"contracts" toml:"contracts"`

	// Indexer contains the scan loop configuration
	Indexer IndexerConfig `yaml:"indexer" json:"indexer" toml:"indexer"`

	// Ledger contains the event ledger storage configuration
	Ledger LedgerConfig `yaml:"ledger" json:"ledger" toml:"ledger"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics and operator status configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ChainConfig represents the configuration of the remote node.
type ChainConfig struct {
	// RPCURL is the JSON-RPC endpoint URL. Environment variables are expanded.
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// RequestTimeout bounds every individual RPC call
	RequestTimeout internalcommon.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`

	// Finality selects which head is treated as the current height: "latest", "safe" or "finalized"
	Finality string `yaml:"finality" json:"finality" toml:"finality"`

	// BlockCacheSize is the number of block timestamps kept in memory
	BlockCacheSize int `yaml:"block_cache_size" json:"block_cache_size" toml:"block_cache_size"`
}

// ApplyDefaults sets default values for optional chain configuration fields.
func (c *ChainConfig) ApplyDefaults() {
	if c.RequestTimeout.Duration == 0 {
		c.RequestTimeout = internalcommon.NewDuration(30 * time.Second) //nolint:mnd
	}
	if c.Finality == "" {
		c.Finality = types.FinalityLatest.String()
	}
	if c.BlockCacheSize == 0 {
		c.BlockCacheSize = 1024
	}
}

// ContractConfig represents one logical contract and its event schema.
type ContractConfig struct {
	// Name is the logical contract name stored with every event (e.g. "mentorRegistry")
	Name string `yaml:"name" json:"name" toml:"name"`

	// Address is the on-chain contract address
	Address string `yaml:"address" json:"address" toml:"address"`

	// ABIPath points to an ABI JSON file (plain ABI array or a build artifact with an "abi" field)
	ABIPath string `yaml:"abi_path,omitempty" json:"abi_path,omitempty" toml:"abi_path,omitempty"`

	// Events lists human-readable event signatures
	// Format: "event Transfer(address indexed from, address indexed to, uint256 value)"
	Events []string `yaml:"events,omitempty" json:"events,omitempty" toml:"events,omitempty"`
}

// IndexerConfig configures the scan loop.
type IndexerConfig struct {
	// StartBlock is the first block scanned when the ledger is empty
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// BatchSize is the number of blocks scanned per batch
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// IdleInterval is the wait when no new blocks exist
	IdleInterval internalcommon.Duration `yaml:"idle_interval" json:"idle_interval" toml:"idle_interval"`

	// BatchDelay is the pause between two successful batches
	BatchDelay internalcommon.Duration `yaml:"batch_delay" json:"batch_delay" toml:"batch_delay"`

	// Backoff configures retries of failed batches
	Backoff BackoffConfig `yaml:"backoff" json:"backoff" toml:"backoff"`
}

// ApplyDefaults sets default values for optional indexer configuration fields.
func (i *IndexerConfig) ApplyDefaults() {
	if i.BatchSize == 0 {
		i.BatchSize = 100
	}
	if i.IdleInterval.Duration == 0 {
		i.IdleInterval = internalcommon.NewDuration(5 * time.Second) //nolint:mnd
	}
	if i.BatchDelay.Duration == 0 {
		i.BatchDelay = internalcommon.NewDuration(1 * time.Second)
	}
	i.Backoff.ApplyDefaults()
}

// BackoffConfig represents exponential backoff configuration for failed batches.
type BackoffConfig struct {
	// Base is the delay before the first retry; each further retry doubles it
	Base internalcommon.Duration `yaml:"base" json:"base" toml:"base"`

	// MaxAttempts is the number of consecutive failures tolerated before the indexer stops
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`
}

// ApplyDefaults sets default values for backoff configuration.
func (b *BackoffConfig) ApplyDefaults() {
	if b.Base.Duration == 0 {
		b.Base = internalcommon.NewDuration(5 * time.Second) //nolint:mnd
	}
	if b.MaxAttempts == 0 {
		b.MaxAttempts = 10
	}
}

// LedgerConfig selects and configures the ledger backend.
type LedgerConfig struct {
	// Backend is "sqlite" or "mongo"
	Backend string `yaml:"backend" json:"backend" toml:"backend"`

	// DB configures the SQLite backend
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Mongo configures the MongoDB backend
	Mongo *MongoConfig `yaml:"mongo,omitempty" json:"mongo,omitempty" toml:"mongo,omitempty"`
}

// ApplyDefaults sets default values for optional ledger configuration fields.
func (l *LedgerConfig) ApplyDefaults() {
	if l.Backend == "" {
		l.Backend = BackendSQLite
	}
	if l.Backend == BackendSQLite {
		l.DB.ApplyDefaults()
	}
	if l.Mongo != nil {
		l.Mongo.ApplyDefaults()
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	// NORMAL provides a good balance between safety and performance
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// Validate checks the SQLite settings.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}

	if !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// MongoConfig represents MongoDB connection settings.
type MongoConfig struct {
	// URI is the MongoDB connection string. Environment variables are expanded.
	URI string `yaml:"uri" json:"uri" toml:"uri"`

	// Database is the database name
	Database string `yaml:"database" json:"database" toml:"database"`

	// Collection holds the ledger records
	Collection string `yaml:"collection" json:"collection" toml:"collection"`

	// Timeout bounds connection and individual operations
	Timeout internalcommon.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
}

// ApplyDefaults sets default values for optional MongoDB fields.
func (m *MongoConfig) ApplyDefaults() {
	if m.Database == "" {
		m.Database = "chainledger"
	}
	if m.Collection == "" {
		m.Collection = "contractevents"
	}
	if m.Timeout.Duration == 0 {
		m.Timeout = internalcommon.NewDuration(10 * time.Second) //nolint:mnd
	}
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - indexer: Scan loop orchestration
	//   - chain-rpc: Remote node access
	//   - registry: Contract bindings
	//   - ledger: Event ledger storage
	//   - migrations: Schema migrations
	//   - metrics: Metrics and status server
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[internalcommon.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := internalcommon.AllComponents[internalcommon.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[internalcommon.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if l == nil {
		return "info"
	}
	if level, ok := l.ComponentLevels[component]; ok {
		return internalcommon.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l == nil || l.DefaultLevel == "" {
		return "info"
	}
	return internalcommon.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l != nil && l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Chain.ApplyDefaults()
	c.Indexer.ApplyDefaults()
	c.Ledger.ApplyDefaults()

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}

	if _, err := types.ParseBlockFinality(c.Chain.Finality); err != nil {
		return fmt.Errorf("chain.finality: %w", err)
	}

	if c.Chain.BlockCacheSize < 0 {
		return fmt.Errorf("chain.block_cache_size must not be negative")
	}

	if c.Indexer.BatchSize == 0 {
		return fmt.Errorf("indexer.batch_size must be greater than zero")
	}

	if c.Indexer.Backoff.MaxAttempts < 1 {
		return fmt.Errorf("indexer.backoff.max_attempts must be at least 1")
	}

	switch c.Ledger.Backend {
	case BackendSQLite:
		if err := c.Ledger.DB.Validate(); err != nil {
			return fmt.Errorf("ledger.db: %w", err)
		}
	case BackendMongo:
		if c.Ledger.Mongo == nil || c.Ledger.Mongo.URI == "" {
			return fmt.Errorf("ledger.mongo.uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be one of: %s, %s", BackendSQLite, BackendMongo)
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if len(c.Contracts) == 0 {
		return fmt.Errorf("at least one contract must be configured")
	}

	names := make(map[string]bool, len(c.Contracts))
	for i, contract := range c.Contracts {
		if contract.Name == "" {
			return fmt.Errorf("contract[%d]: name is required", i)
		}

		if names[contract.Name] {
			return fmt.Errorf("contract[%d]: duplicate contract name '%s'", i, contract.Name)
		}
		names[contract.Name] = true

		if !common.IsHexAddress(contract.Address) {
			return fmt.Errorf("contract[%d] (%s): invalid address '%s'", i, contract.Name, contract.Address)
		}

		if contract.ABIPath == "" && len(contract.Events) == 0 {
			return fmt.Errorf("contract[%d] (%s): abi_path or events is required", i, contract.Name)
		}
	}

	return nil
}
