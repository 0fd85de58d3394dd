package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmercer/salewatch/internal/config"
	"github.com/kmercer/salewatch/internal/ingest"
	"github.com/kmercer/salewatch/internal/model"
	"github.com/kmercer/salewatch/internal/store"
)

var crawlSource string
var crawlAll bool
var crawlFull bool

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run a crawl from the command line",
	Long: `Run one crawl synchronously under the same per-source lock the server
uses, so a CLI crawl never overlaps a webhook-triggered one.

Examples:
  # Crawl one source
  ./salewatch crawl --source essex-nj

  # Crawl every active source
  ./salewatch crawl --all

  # Force detail fetches even for unchanged index rows
  ./salewatch crawl --source essex-nj --full`,
	Run: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVarP(&crawlSource, "source", "s", "", "Source id to crawl")
	crawlCmd.Flags().BoolVar(&crawlAll, "all", false, "Crawl every active source")
	crawlCmd.Flags().BoolVar(&crawlFull, "full", false, "Fetch every detail page, not just changed listings")
}

func runCrawl(cmd *cobra.Command, args []string) {
	if crawlSource == "" && !crawlAll {
		log.Fatal("Either --source or --all is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, shutting down...")
		cancel()
	}()

	db, err := store.NewDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()
	if err := store.InitSchema(initCtx, db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	sourceStore := store.NewSourceStore(db)
	for _, src := range cfg.Sources {
		err := sourceStore.Upsert(ctx, &model.Source{
			ID:       src.ID,
			Name:     src.Name,
			IndexURL: src.IndexURL,
			IDPrefix: src.IDPrefix,
			Active:   src.Active,
		})
		if err != nil {
			log.Fatalf("Failed to sync source %s: %v", src.ID, err)
		}
	}

	orc, _, err := buildOrchestrator(cfg, db)
	if err != nil {
		log.Fatalf("Failed to build crawl pipeline: %v", err)
	}

	var targets []string
	if crawlAll {
		for _, src := range cfg.Sources {
			if src.Active {
				targets = append(targets, src.ID)
			}
		}
		if len(targets) == 0 {
			log.Fatal("No active sources in config")
		}
	} else {
		src := cfg.SourceByID(crawlSource)
		if src == nil {
			log.Fatalf("Unknown source %q", crawlSource)
		}
		targets = []string{crawlSource}
	}

	opts := ingest.RunOptions{
		Trigger:     model.TriggerCLI,
		Incremental: !crawlFull,
	}

	failed := 0
	for _, id := range targets {
		run, err := orc.RunNow(ctx, id, opts)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Crawl cancelled")
				os.Exit(1)
			}
			log.Printf("Crawl failed for %s: %v", id, err)
			failed++
			continue
		}
		if run.Status == model.RunPartial {
			log.Printf("Crawl for %s finished with %d errors", id, run.Errored)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}
