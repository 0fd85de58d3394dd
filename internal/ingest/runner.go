package ingest

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kmercer/salewatch/internal/crawler"
	"github.com/kmercer/salewatch/internal/model"
	"github.com/kmercer/salewatch/internal/normalize"
)

// MappingSource supplies the read-only mapping snapshot a run works from.
type MappingSource interface {
	FieldMappings(ctx context.Context, sourceID string) (map[string]model.FieldMapping, error)
	StatusMappings(ctx context.Context, sourceID string) (map[string]model.UnifiedStatus, error)
}

// RunStore persists the per-run audit rows.
type RunStore interface {
	Start(ctx context.Context, r *model.RunLog) error
	Finish(ctx context.Context, r *model.RunLog) error
}

// RunOptions control one crawl execution.
type RunOptions struct {
	Trigger model.TriggerKind
	Note    string
	// Incremental skips detail fetches for listings whose index-row hash
	// is unchanged from the stored row.
	Incremental bool
}

// Runner executes one source's crawl end to end: index fetch, selective
// detail fetch, normalization, and the upsert engine, summarized into one
// run log row. Per-listing failures are recovered locally; only index
// failure or an excessive error rate aborts the run.
type Runner struct {
	sourceID     string
	adapter      crawler.Adapter
	listings     ListingStore
	mappings     MappingSource
	runs         RunStore
	maxErrorRate float64

	logger    *log.Logger
	errLogger *log.Logger
}

// NewRunner creates a Runner for one source.
func NewRunner(adapter crawler.Adapter, listings ListingStore, mappings MappingSource, runs RunStore, maxErrorRate float64) *Runner {
	return &Runner{
		sourceID:     adapter.SourceID(),
		adapter:      adapter,
		listings:     listings,
		mappings:     mappings,
		runs:         runs,
		maxErrorRate: maxErrorRate,
		logger:       log.New(os.Stdout, "", log.LstdFlags),
		errLogger:    log.New(os.Stderr, "ERROR: ", log.LstdFlags),
	}
}

// SourceID returns the id of the source this runner crawls.
func (r *Runner) SourceID() string { return r.sourceID }

// Run executes one crawl and returns its run log. The returned error is
// non-nil only for fatal outcomes; the run log row is written either way.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*model.RunLog, error) {
	run := &model.RunLog{
		RunID:     uuid.NewString(),
		SourceID:  r.sourceID,
		Trigger:   opts.Trigger,
		Status:    model.RunRunning,
		StartedAt: time.Now(),
	}
	if opts.Note != "" {
		run.Note = sql.NullString{String: opts.Note, Valid: true}
	}
	if err := r.runs.Start(ctx, run); err != nil {
		return run, err
	}

	fatalErr := r.execute(ctx, run, opts)

	now := time.Now()
	run.FinishedAt = sql.NullTime{Time: now, Valid: true}
	switch {
	case fatalErr != nil:
		run.Status = model.RunFailed
	case run.Errored > 0:
		run.Status = model.RunPartial
	default:
		run.Status = model.RunSuccess
	}

	// Finishing the audit row must not be skipped on any exit path; use a
	// fresh context in case the run's own context is already dead.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.runs.Finish(finishCtx, run); err != nil {
		r.errLogger.Printf("[%s] failed to finish run log: %v", run.RunID, err)
	}

	r.printSummary(run)

	if fatalErr != nil {
		r.errLogger.Printf("[%s] run failed for %s: %v", run.RunID, r.sourceID, fatalErr)
	}
	return run, fatalErr
}

func (r *Runner) execute(ctx context.Context, run *model.RunLog, opts RunOptions) error {
	fieldMaps, err := r.mappings.FieldMappings(ctx, r.sourceID)
	if err != nil {
		return err
	}
	statusMaps, err := r.mappings.StatusMappings(ctx, r.sourceID)
	if err != nil {
		return err
	}
	norm := normalize.NewNormalizer(r.sourceID, fieldMaps, statusMaps)

	r.logger.Printf("[%s] fetching index for %s...", run.RunID, r.sourceID)
	records, err := r.adapter.FetchIndex(ctx)
	if err != nil {
		// Index unreachable: fatal, no tombstoning this cycle.
		return err
	}
	run.Found = len(records)
	r.logger.Printf("[%s] found %d listings", run.RunID, run.Found)

	engine := NewEngine(r.listings, r.sourceID)

	for i := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.processRecord(ctx, run, opts, norm, engine, &records[i]); err != nil {
			run.Errored++
			r.errLogger.Printf("[%s] listing %d/%d: %v", run.RunID, i+1, run.Found, err)
		}

		if r.tooManyErrors(run) {
			return errFatalErrorRate(run.Errored, run.Found)
		}
	}

	// Full index coverage achieved: absent listings are genuinely gone
	// from the source, not lost to an error.
	removed, err := engine.FinishTombstones(ctx)
	if err != nil {
		return err
	}
	run.Removed = int(removed)
	run.Conflicts = engine.Conflicts()
	return nil
}

func (r *Runner) processRecord(ctx context.Context, run *model.RunLog, opts RunOptions, norm *normalize.Normalizer, engine *Engine, rec *crawler.RawRecord) error {
	indexHash := HashFields(rec.Fields)

	listing, warnings := norm.Normalize(rec.Fields)
	for _, w := range warnings {
		r.errLogger.Printf("[%s] %s: %v", run.RunID, r.sourceID, w)
	}

	nativeID := rec.NativeID
	existing, err := engine.Lookup(ctx, nativeID, listing.NormalizedAddress)
	if err != nil {
		return err
	}
	if existing != nil {
		// The row is in the index; even if the detail fetch or upsert
		// below fails, it must not be tombstoned this cycle.
		engine.Observe(existing.ID)
	}

	needDetail := r.adapter.HasDetail() &&
		(!opts.Incremental || existing == nil || existing.IndexHash != indexHash)

	detailHash := sql.NullString{}
	if needDetail {
		detailFields, err := r.adapter.FetchDetail(ctx, rec)
		if err != nil {
			// This one listing is skipped; the run goes on.
			return err
		}
		if len(detailFields) > 0 {
			merged := make(map[string]string, len(rec.Fields)+len(detailFields))
			for k, v := range rec.Fields {
				merged[k] = v
			}
			for k, v := range detailFields {
				merged[k] = v
			}
			listing, warnings = norm.Normalize(merged)
			for _, w := range warnings {
				r.errLogger.Printf("[%s] %s: %v", run.RunID, r.sourceID, w)
			}
			detailHash = sql.NullString{String: HashFields(detailFields), Valid: true}
		}
	}

	if nativeID != "" {
		listing.NativeID = sql.NullString{String: nativeID, Valid: true}
	}
	listing.IndexHash = indexHash
	listing.DetailHash = detailHash

	effect, err := engine.Apply(ctx, listing, string(opts.Trigger))
	if err != nil {
		return err
	}
	switch effect {
	case EffectInserted:
		run.Added++
	case EffectUpdated:
		run.Updated++
	default:
		run.Unchanged++
	}
	return nil
}

// tooManyErrors reports whether per-listing failures crossed the fatal
// fraction. Small runs get an absolute floor so one flaky listing out of
// three does not kill the run.
func (r *Runner) tooManyErrors(run *model.RunLog) bool {
	if r.maxErrorRate <= 0 || run.Found == 0 {
		return false
	}
	if run.Errored < 3 {
		return false
	}
	return float64(run.Errored)/float64(run.Found) > r.maxErrorRate
}

func (r *Runner) printSummary(run *model.RunLog) {
	r.logger.Printf("[%s] === Run Summary: %s ===", run.RunID, r.sourceID)
	r.logger.Printf("[%s] Found:     %d", run.RunID, run.Found)
	r.logger.Printf("[%s] Added:     %d", run.RunID, run.Added)
	r.logger.Printf("[%s] Updated:   %d", run.RunID, run.Updated)
	r.logger.Printf("[%s] Unchanged: %d", run.RunID, run.Unchanged)
	r.logger.Printf("[%s] Removed:   %d", run.RunID, run.Removed)
	r.logger.Printf("[%s] Errored:   %d", run.RunID, run.Errored)
	if run.Conflicts > 0 {
		r.logger.Printf("[%s] Conflicts: %d (flagged for review)", run.RunID, run.Conflicts)
	}
	r.logger.Printf("[%s] Status:    %s", run.RunID, run.Status)
}
