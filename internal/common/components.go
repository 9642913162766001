package common

const (
	ComponentIndexer    = "indexer"
	ComponentChainRPC   = "chain-rpc"
	ComponentRegistry   = "registry"
	ComponentLedger     = "ledger"
	ComponentMigrations = "migrations"
	ComponentMetrics    = "metrics"
)

var AllComponents = map[string]struct{}{
	ComponentIndexer:    {},
	ComponentChainRPC:   {},
	ComponentRegistry:   {},
	ComponentLedger:     {},
	ComponentMigrations: {},
	ComponentMetrics:    {},
}
