package crawler

import (
	"context"
	"fmt"

	"github.com/kmercer/salewatch/internal/config"
)

// RawRecord is one listing as the source presents it: a flat map of raw
// field name to raw value, tagged with its source. No normalization has
// happened yet.
type RawRecord struct {
	SourceID  string
	NativeID  string
	DetailURL string
	Fields    map[string]string
}

// Adapter is the per-source crawl capability. Implementations fetch the
// paginated index and, when the source has one, per-listing detail pages.
type Adapter interface {
	SourceID() string
	// FetchIndex walks the paginated index and returns one raw record per
	// listing, in source pagination order. An error here is fatal for the
	// run; per-row problems surface as missing fields instead.
	FetchIndex(ctx context.Context) ([]RawRecord, error)
	// FetchDetail fetches a listing's detail page and returns the raw
	// detail fields. Only called when HasDetail is true.
	FetchDetail(ctx context.Context, rec *RawRecord) (map[string]string, error)
	HasDetail() bool
}

// BuildAdapters constructs the closed set of source adapters from config,
// keyed by source id.
func BuildAdapters(cfg *config.Config) (map[string]Adapter, error) {
	adapters := make(map[string]Adapter, len(cfg.Sources))
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		a, err := NewSiteAdapter(src, cfg.Crawl)
		if err != nil {
			return nil, fmt.Errorf("failed to build adapter for %s: %w", src.ID, err)
		}
		adapters[src.ID] = a
	}
	return adapters, nil
}
