package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
app:
  name: salewatch
webhook:
  title_prefix: "Sheriff Sale Watch"
database:
  url: "postgres://localhost/salewatch"
sources:
  - id: essex-nj
    name: Essex County
    active: true
    index_url: "https://example.com/sales"
    row_selector: "tr"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.App.Port)
	}
	if cfg.MaxCrawlDuration() != 45*time.Minute {
		t.Errorf("MaxCrawlDuration = %v, want 45m", cfg.MaxCrawlDuration())
	}
	if cfg.ScheduleInterval() != 30*time.Minute {
		t.Errorf("ScheduleInterval = %v, want 30m", cfg.ScheduleInterval())
	}
	if cfg.Crawl.MaxErrorRate != 0.25 {
		t.Errorf("MaxErrorRate = %v, want 0.25", cfg.Crawl.MaxErrorRate)
	}

	src := cfg.SourceByID("essex-nj")
	if src == nil {
		t.Fatal("SourceByID returned nil")
	}
	if src.PageStart != 1 || src.MaxPages != 50 {
		t.Errorf("pagination defaults = %d/%d, want 1/50", src.PageStart, src.MaxPages)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://elsewhere/db")
	t.Setenv("WEBHOOK_SECRET", "from-env")
	t.Setenv("PORT", "9090")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://elsewhere/db" {
		t.Errorf("Database.URL = %q, want env override", cfg.Database.URL)
	}
	if cfg.Webhook.Secret != "from-env" {
		t.Errorf("Webhook.Secret = %q, want env override", cfg.Webhook.Secret)
	}
	if cfg.App.Port != 9090 {
		t.Errorf("Port = %d, want env override", cfg.App.Port)
	}
}

func TestLoadRejectsBadSources(t *testing.T) {
	bad := minimalYAML + `
  - id: essex-nj
    name: Duplicate
    index_url: "https://example.com/other"
    row_selector: "tr"
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Error("duplicate source ids should fail validation")
	}

	noURL := `
database:
  url: "postgres://localhost/salewatch"
sources:
  - id: union-nj
    row_selector: "tr"
`
	if _, err := Load(writeConfig(t, noURL)); err == nil {
		t.Error("a source without index_url should fail validation")
	}
}
