package cmd

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kmercer/salewatch/internal/config"
	"github.com/kmercer/salewatch/internal/crawler"
	"github.com/kmercer/salewatch/internal/ingest"
	"github.com/kmercer/salewatch/internal/orchestrator"
	"github.com/kmercer/salewatch/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "salewatch",
	Short: "County sheriff sale listing watcher",
	Long: `salewatch crawls county sheriff sale sites, normalizes their listings
into a unified schema, and tracks additions, changes, and removals over time.

Crawls are triggered by change webhooks, manual requests, a recurring
schedule, or directly from the command line.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		// A missing .env is fine; real deployments set the environment.
		_ = godotenv.Load()
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
}

// buildOrchestrator wires the crawl pipeline: one adapter and runner per
// configured source, sharing the stores and the persistent lock table.
func buildOrchestrator(cfg *config.Config, db *sql.DB) (*orchestrator.Orchestrator, *store.RunStore, error) {
	adapters, err := crawler.BuildAdapters(cfg)
	if err != nil {
		return nil, nil, err
	}

	listingStore := store.NewListingStore(db)
	mappingStore := store.NewMappingStore(db)
	runStore := store.NewRunStore(db)
	lockStore := store.NewLockStore(db)

	orc := orchestrator.New(lockStore, cfg.MaxCrawlDuration(), cfg.Webhook.TitlePrefix)
	for _, src := range cfg.Sources {
		adapter, ok := adapters[src.ID]
		if !ok {
			return nil, nil, fmt.Errorf("no adapter built for source %s", src.ID)
		}
		runner := ingest.NewRunner(adapter, listingStore, mappingStore, runStore, cfg.Crawl.MaxErrorRate)
		orc.Register(runner, src.Name)
	}
	return orc, runStore, nil
}
