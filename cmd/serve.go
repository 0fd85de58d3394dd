package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"

	"github.com/kmercer/salewatch/internal/config"
	"github.com/kmercer/salewatch/internal/handlers"
	"github.com/kmercer/salewatch/internal/model"
	"github.com/kmercer/salewatch/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the salewatch server",
	Long: `Start the HTTP server that receives change webhooks, accepts manual
crawl triggers, reports status, and runs the recurring crawl schedule
when enabled in config.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Webhook.Secret == "" {
		log.Fatal("WEBHOOK_SECRET (or webhook.secret in config) is required")
	}

	db, err := store.NewDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.InitSchema(ctx, db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Config is the source of truth for sources; the table mirrors it so
	// the scheduler and status page read one place.
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

	orc, runStore, err := buildOrchestrator(cfg, db)
	if err != nil {
		log.Fatalf("Failed to build crawl pipeline: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
	})

	app.Use(logger.New())

	// Routes
	app.Post("/webhooks/change", handlers.WebhookHandler(orc, cfg.Webhook.Secret))
	app.Post("/trigger/:source", handlers.TriggerHandler(orc, cfg.Webhook.Secret))
	app.Get("/status", handlers.StatusHandler(orc, runStore))
	app.Get("/health", handlers.HealthHandler(db))

	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()
	if cfg.Schedule.Enabled {
		go orc.RunScheduler(schedCtx, cfg.ScheduleInterval(), sourceStore)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, shutting down...")
		stopSched()
		if err := app.Shutdown(); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	log.Printf("Starting server on :%d", cfg.App.Port)
	if err := app.Listen(":" + strconv.Itoa(cfg.App.Port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Let in-flight crawls finish and release their locks.
	log.Println("Waiting for running crawls...")
	orc.Wait()
}
