package orchestrator

import (
	"context"
	"time"

	"github.com/kmercer/salewatch/internal/ingest"
	"github.com/kmercer/salewatch/internal/model"
)

// SourceLister enumerates the active sources a schedule tick crawls.
// *store.SourceStore satisfies it.
type SourceLister interface {
	ListActive(ctx context.Context) ([]model.Source, error)
}

// RunScheduler fires a scheduled trigger for every active source at the
// given interval until ctx is cancelled. Contention is expected and quiet:
// a source still crawling from the last tick is simply skipped.
func (o *Orchestrator) RunScheduler(ctx context.Context, interval time.Duration, sources SourceLister) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Printf("scheduler started, interval %s", interval)

	for {
		select {
		case <-ctx.Done():
			o.logger.Println("scheduler stopped")
			return
		case <-ticker.C:
		}

		active, err := sources.ListActive(ctx)
		if err != nil {
			o.errLogger.Printf("scheduler: failed to list sources: %v", err)
			continue
		}

		for _, src := range active {
			result, err := o.Trigger(ctx, src.ID, ingest.RunOptions{
				Trigger:     model.TriggerSchedule,
				Incremental: true,
			})
			if err != nil {
				o.errLogger.Printf("scheduler: trigger %s: %v", src.ID, err)
				continue
			}
			if result == ResultQueued {
				o.logger.Printf("scheduler: queued crawl for %s", src.ID)
			}
		}
	}
}
