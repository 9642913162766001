package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/skillswap/chainledger/internal/config"
	"github.com/skillswap/chainledger/internal/contracts"
	pkgconfig "github.com/skillswap/chainledger/pkg/config"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         chainledger v%s                ║
║   Contract Event Ledger Indexer           ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
	startBlock string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "chainledger - contract event ledger indexer",
	Long: `chainledger keeps an off-chain ledger of contract events in sync with the chain.
It scans the configured contracts in bounded batches, decodes and normalizes every
event and stores it exactly once, retrying transient failures with exponential backoff.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runIndexer,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the indexer until interrupted",
	RunE:  runIndexer,
}

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List the configured contracts and their events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry, err := contracts.NewRegistry(cfg.Contracts)
		if err != nil {
			return fmt.Errorf("failed to build contract registry: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, b := range registry.All() {
			fmt.Fprintf(out, "%s %s\n", b.Name(), b.Address().Hex())
			for _, name := range b.EventNames() {
				fmt.Fprintf(out, "  - %s\n", name)
			}
		}

		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := &jsonschema.Reflector{FieldNameTag: "json"}
		schema := r.Reflect(&pkgconfig.Config{})

		return printJSON(cmd, schema)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().StringVar(&startBlock, "start-block", "",
			"first block to scan on an empty ledger (decimal or 0x-prefixed hex)")
	}

	rootCmd.AddCommand(runCmd, contractsCmd, eventsCmd, statsCmd, schemaCmd)
}

// loadConfig loads .env next to the config file and then the config itself.
func loadConfig() (*pkgconfig.Config, error) {
	if err := config.LoadDotEnv(configPath); err != nil {
		return nil, err
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
