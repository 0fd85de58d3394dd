package cmd

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/kmercer/salewatch/internal/config"
	"github.com/kmercer/salewatch/internal/model"
	"github.com/kmercer/salewatch/internal/normalize"
	"github.com/kmercer/salewatch/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load field and status mappings into the database",
	Long: `Load the per-source field and status mapping tables from a YAML file.

Mappings are declarative data, not code: adding a county means adding its
selector config and seeding its mapping rows. Existing rows for the same
source and raw name are replaced.

Example:
  ./salewatch seed --file mappings.yaml`,
	Run: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "mappings.yaml", "Path to the mappings YAML file")
}

// seedDoc is the on-disk shape of a mappings file.
type seedDoc struct {
	Sources []seedSource `yaml:"sources"`
}

type seedSource struct {
	ID       string       `yaml:"id"`
	Fields   []seedField  `yaml:"fields"`
	Statuses []seedStatus `yaml:"statuses"`
}

type seedField struct {
	Raw       string `yaml:"raw"`
	Unified   string `yaml:"unified"`
	Type      string `yaml:"type"`
	Transform string `yaml:"transform"`
}

type seedStatus struct {
	Raw     string `yaml:"raw"`
	Unified string `yaml:"unified"`
}

func runSeed(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	b, err := os.ReadFile(seedFile)
	if err != nil {
		log.Fatalf("Failed to read mappings file: %v", err)
	}
	var doc seedDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		log.Fatalf("Failed to parse mappings file: %v", err)
	}

	db, err := store.NewDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := store.InitSchema(ctx, db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	mappingStore := store.NewMappingStore(db)

	fieldRows, statusRows := 0, 0
	for _, src := range doc.Sources {
		if src.ID == "" {
			log.Fatal("Mappings file has a source with no id")
		}

		for _, f := range src.Fields {
			if !normalize.KnownUnifiedField(f.Unified) {
				log.Fatalf("Source %s: unknown unified field %q for raw field %q", src.ID, f.Unified, f.Raw)
			}
			dataType := f.Type
			if dataType == "" {
				dataType = model.TypeText
			}
			m := model.FieldMapping{
				SourceID:     src.ID,
				RawField:     f.Raw,
				UnifiedField: f.Unified,
				DataType:     dataType,
				Transform:    f.Transform,
			}
			if err := mappingStore.UpsertFieldMapping(ctx, &m); err != nil {
				log.Fatalf("Failed to seed field mapping: %v", err)
			}
			fieldRows++
		}

		for _, s := range src.Statuses {
			unified := model.UnifiedStatus(s.Unified)
			if !model.ValidStatus(unified) {
				log.Fatalf("Source %s: unknown unified status %q for raw status %q", src.ID, s.Unified, s.Raw)
			}
			m := model.StatusMapping{
				SourceID:  src.ID,
				RawStatus: s.Raw,
				Unified:   unified,
			}
			if err := mappingStore.UpsertStatusMapping(ctx, &m); err != nil {
				log.Fatalf("Failed to seed status mapping: %v", err)
			}
			statusRows++
		}
	}

	log.Printf("Seeded %d field mappings and %d status mappings for %d sources",
		fieldRows, statusRows, len(doc.Sources))
}
