package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skillswap/chainledger/pkg/config"
	"github.com/stretchr/testify/require"
)

const testRPCURL = "https://erpc.apothem.network"

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("XDC_RPC_URL", testRPCURL)

	cfg, err := LoadFromYAML("../../config.example.yaml")
	require.NoError(t, err)

	validateConfig(t, cfg, "YAML")
	require.Len(t, cfg.Contracts, 5)
	require.Equal(t, config.BackendSQLite, cfg.Ledger.Backend)
}

func TestLoadFromJSON(t *testing.T) {
	t.Setenv("XDC_RPC_URL", testRPCURL)

	cfg, err := LoadFromJSON("../../config.example.json")
	require.NoError(t, err)

	validateConfig(t, cfg, "JSON")
	require.Equal(t, "./abis/ReputationSystem.json", cfg.Contracts[1].ABIPath)
}

func TestLoadFromTOML(t *testing.T) {
	t.Setenv("XDC_RPC_URL", testRPCURL)

	cfg, err := LoadFromTOML("../../config.example.toml")
	require.NoError(t, err)

	validateConfig(t, cfg, "TOML")
	require.Equal(t, config.BackendMongo, cfg.Ledger.Backend)
	require.NotNil(t, cfg.Ledger.Mongo)
	require.Equal(t, "contractevents", cfg.Ledger.Mongo.Collection)
	require.Equal(t, 10*time.Second, cfg.Ledger.Mongo.Timeout.Duration)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("XDC_RPC_URL", testRPCURL)

	for _, path := range []string{
		"../../config.example.yaml",
		"../../config.example.json",
		"../../config.example.toml",
	} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			cfg, err := LoadFromFile(path)
			require.NoError(t, err)
			validateConfig(t, cfg, "auto-detected "+filepath.Ext(path))
		})
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	_, err := LoadFromFile("config.txt")
	require.ErrorContains(t, err, "unsupported config file format")
}

func TestLoadFromFile_MissingEnvFailsValidation(t *testing.T) {
	t.Setenv("XDC_RPC_URL", "")

	_, err := LoadFromFile("../../config.example.yaml")
	require.ErrorContains(t, err, "chain.rpc_url is required")
}

func TestLoadFromYAML_ExpandsEnvironment(t *testing.T) {
	t.Setenv("LEDGER_TEST_RPC", "http://localhost:8545")
	t.Setenv("LEDGER_TEST_DB", "/tmp/ledger-test.db")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chain:
  rpc_url: ${LEDGER_TEST_RPC}
contracts:
  - name: mentorRegistry
    address: "0xcfa935f28fff8f33ee08d6fdeed91b66aff6236e"
    events:
      - "event MentorDeactivated(address indexed mentorAddress)"
ledger:
  db:
    path: ${LEDGER_TEST_DB}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	require.Equal(t, "/tmp/ledger-test.db", cfg.Ledger.DB.Path)

	// defaults for everything left out
	require.Equal(t, uint64(100), cfg.Indexer.BatchSize)
	require.Equal(t, 5*time.Second, cfg.Indexer.IdleInterval.Duration)
	require.Equal(t, time.Second, cfg.Indexer.BatchDelay.Duration)
	require.Equal(t, 5*time.Second, cfg.Indexer.Backoff.Base.Duration)
	require.Equal(t, 10, cfg.Indexer.Backoff.MaxAttempts)
}

func TestLoadFromYAML_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chain:
  rpc_url: http://localhost:8545
  request_timeout: soon
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadFromFile(path)
	require.ErrorContains(t, err, "failed to parse YAML config")
}

func TestLoadFromFile_IndexerDurations(t *testing.T) {
	files := map[string]string{
		"config.yaml": `
chain:
  rpc_url: http://localhost:8545
  request_timeout: 2s
contracts:
  - name: sessionManager
    address: "0x74996f530fe88776d2ecef1fe301e523c55b61e5"
    events: ["event SessionCompleted(uint256 indexed sessionId)"]
indexer:
  idle_interval: 750ms
  batch_delay: 0s
  backoff:
    base: 1m30s
    max_attempts: 3
ledger:
  db:
    path: ./ledger.db
`,
		"config.json": `{
  "chain": {"rpc_url": "http://localhost:8545", "request_timeout": "2s"},
  "contracts": [{
    "name": "sessionManager",
    "address": "0x74996f530fe88776d2ecef1fe301e523c55b61e5",
    "events": ["event SessionCompleted(uint256 indexed sessionId)"]
  }],
  "indexer": {"idle_interval": "750ms", "batch_delay": "0s", "backoff": {"base": "90s", "max_attempts": 3}},
  "ledger": {"db": {"path": "./ledger.db"}}
}`,
		"config.toml": `
[chain]
rpc_url = "http://localhost:8545"
request_timeout = "2s"

[[contracts]]
name = "sessionManager"
address = "0x74996f530fe88776d2ecef1fe301e523c55b61e5"
events = ["event SessionCompleted(uint256 indexed sessionId)"]

[indexer]
idle_interval = "750ms"
batch_delay = "0s"

[indexer.backoff]
base = "1.5m"
max_attempts = 3

[ledger.db]
path = "./ledger.db"
`,
	}

	dir := t.TempDir()
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			cfg, err := LoadFromFile(path)
			require.NoError(t, err)

			require.Equal(t, 2*time.Second, cfg.Chain.RequestTimeout.Duration)
			require.Equal(t, 750*time.Millisecond, cfg.Indexer.IdleInterval.Duration)
			require.Equal(t, 90*time.Second, cfg.Indexer.Backoff.Base.Duration)
			require.Equal(t, 3, cfg.Indexer.Backoff.MaxAttempts)
			// an explicit zero is indistinguishable from unset and takes the default
			require.Equal(t, time.Second, cfg.Indexer.BatchDelay.Duration)
		})
	}
}

// validateConfig checks that the loaded config has expected values
func validateConfig(t *testing.T, cfg *config.Config, format string) {
	t.Helper()

	require.Equal(t, testRPCURL, cfg.Chain.RPCURL, "[%s] chain.rpc_url should be expanded", format)
	require.NotZero(t, cfg.Chain.RequestTimeout.Duration, "[%s] chain.request_timeout should be set", format)
	require.NotEmpty(t, cfg.Chain.Finality, "[%s] chain.finality should have default value applied", format)

	require.NotZero(t, cfg.Indexer.BatchSize, "[%s] indexer.batch_size should not be zero", format)
	require.NotZero(t, cfg.Indexer.Backoff.MaxAttempts, "[%s] indexer.backoff.max_attempts should not be zero", format)

	if cfg.Ledger.Backend == config.BackendSQLite {
		require.NotEmpty(t, cfg.Ledger.DB.Path, "[%s] ledger.db.path should not be empty", format)
		require.NotEmpty(t, cfg.Ledger.DB.JournalMode, "[%s] ledger.db.journal_mode should have default value", format)
		require.NotEmpty(t, cfg.Ledger.DB.Synchronous, "[%s] ledger.db.synchronous should have default value", format)
	}

	require.NotEmpty(t, cfg.Contracts, "[%s] there should be at least one contract configured", format)
	for i, contract := range cfg.Contracts {
		require.NotEmpty(t, contract.Name, "[%s] contract[%d].name should not be empty", format, i)
		require.NotEmpty(t, contract.Address, "[%s] contract[%d].address should not be empty", format, i)
		require.True(t, contract.ABIPath != "" || len(contract.Events) > 0,
			"[%s] contract[%d] should have a schema source", format, i)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &config.Config{
		Chain: config.ChainConfig{RPCURL: "https://test.com"},
		Ledger: config.LedgerConfig{
			DB: config.DatabaseConfig{Path: "./test.db"},
		},
		Logging: &config.LoggingConfig{},
		Metrics: &config.MetricsConfig{},
	}

	cfg.ApplyDefaults()

	require.Equal(t, "latest", cfg.Chain.Finality)
	require.Equal(t, 30*time.Second, cfg.Chain.RequestTimeout.Duration)
	require.Equal(t, 1024, cfg.Chain.BlockCacheSize)
	require.Equal(t, config.BackendSQLite, cfg.Ledger.Backend)
	require.Equal(t, "WAL", cfg.Ledger.DB.JournalMode)
	require.Equal(t, "NORMAL", cfg.Ledger.DB.Synchronous)
	require.Equal(t, 5000, cfg.Ledger.DB.BusyTimeout)
	require.Equal(t, 25, cfg.Ledger.DB.MaxOpenConnections)
	require.Equal(t, "info", cfg.Logging.DefaultLevel)
	require.Equal(t, ":9090", cfg.Metrics.ListenAddress)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestConfigValidation(t *testing.T) {
	validContracts := func() []config.ContractConfig {
		return []config.ContractConfig{
			{
				Name:    "mentorshipToken",
				Address: "0x3bc607852393dcc75a3fccf0deb1699001d32bbd",
				Events:  []string{"event Transfer(address indexed from, address indexed to, uint256 value)"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(cfg *config.Config) {},
		},
		{
			name:    "missing rpc_url",
			mutate:  func(cfg *config.Config) { cfg.Chain.RPCURL = "" },
			wantErr: "chain.rpc_url is required",
		},
		{
			name:    "invalid finality",
			mutate:  func(cfg *config.Config) { cfg.Chain.Finality = "invalid" },
			wantErr: "chain.finality",
		},
		{
			name:    "no contracts",
			mutate:  func(cfg *config.Config) { cfg.Contracts = nil },
			wantErr: "at least one contract",
		},
		{
			name: "duplicate contract name",
			mutate: func(cfg *config.Config) {
				dup := cfg.Contracts[0]
				dup.Address = "0xcfa935f28fff8f33ee08d6fdeed91b66aff6236e"
				cfg.Contracts = append(cfg.Contracts, dup)
			},
			wantErr: "duplicate contract name",
		},
		{
			name:    "invalid address",
			mutate:  func(cfg *config.Config) { cfg.Contracts[0].Address = "0x1234" },
			wantErr: "invalid address",
		},
		{
			name:    "no schema source",
			mutate:  func(cfg *config.Config) { cfg.Contracts[0].Events = nil },
			wantErr: "abi_path or events is required",
		},
		{
			name:    "unknown backend",
			mutate:  func(cfg *config.Config) { cfg.Ledger.Backend = "postgres" },
			wantErr: "ledger.backend",
		},
		{
			name: "mongo without uri",
			mutate: func(cfg *config.Config) {
				cfg.Ledger.Backend = config.BackendMongo
				cfg.Ledger.Mongo = &config.MongoConfig{}
			},
			wantErr: "ledger.mongo.uri",
		},
		{
			name:    "unknown logging component",
			mutate:  func(cfg *config.Config) { cfg.Logging = &config.LoggingConfig{ComponentLevels: map[string]string{"downloader": "debug"}} },
			wantErr: "unknown component",
		},
		{
			name:    "metrics path without slash",
			mutate:  func(cfg *config.Config) { cfg.Metrics = &config.MetricsConfig{Enabled: true, ListenAddress: ":9090", Path: "metrics"} },
			wantErr: "path must start with '/'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Chain:     config.ChainConfig{RPCURL: "https://test.com"},
				Contracts: validContracts(),
				Ledger: config.LedgerConfig{
					DB: config.DatabaseConfig{Path: "./test.db"},
				},
			}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	// register the variable for restoration, then clear it
	t.Setenv("CHAINLEDGER_DOTENV_RPC", "")
	require.NoError(t, os.Unsetenv("CHAINLEDGER_DOTENV_RPC"))
	t.Setenv("CHAINLEDGER_DOTENV_KEEP", "from-env")

	require.NoError(t, LoadDotEnv(configPath), "a missing .env is not an error")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"CHAINLEDGER_DOTENV_RPC=https://rpc.example\nCHAINLEDGER_DOTENV_KEEP=from-file\n",
	), 0o600))

	require.NoError(t, LoadDotEnv(configPath))
	require.Equal(t, "https://rpc.example", os.Getenv("CHAINLEDGER_DOTENV_RPC"))
	require.Equal(t, "from-env", os.Getenv("CHAINLEDGER_DOTENV_KEEP"))
}
