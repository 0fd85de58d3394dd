package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kmercer/salewatch/internal/model"
)

// RunStore persists the per-crawl audit log.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Start writes the initial `running` row for a crawl and fills in its ID.
func (s *RunStore) Start(ctx context.Context, r *model.RunLog) error {
	query := `
		INSERT INTO run_logs (run_id, source_id, trigger, note, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		r.RunID, r.SourceID, string(r.Trigger), r.Note, string(r.Status), r.StartedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to start run log for %s: %w", r.SourceID, err)
	}
	return nil
}

// Finish records the counts and terminal status of a completed crawl.
func (s *RunStore) Finish(ctx context.Context, r *model.RunLog) error {
	query := `
		UPDATE run_logs SET
			found = $2, added = $3, updated = $4, unchanged = $5,
			removed = $6, errored = $7, conflicts = $8,
			status = $9, finished_at = $10
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Found, r.Added, r.Updated, r.Unchanged,
		r.Removed, r.Errored, r.Conflicts,
		string(r.Status), r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run log %d: %w", r.ID, err)
	}
	return nil
}

// LastBySource returns the most recent run per source, keyed by source id.
func (s *RunStore) LastBySource(ctx context.Context) (map[string]model.RunLog, error) {
	query := `
		SELECT DISTINCT ON (source_id)
			id, run_id, source_id, trigger, note,
			found, added, updated, unchanged, removed, errored, conflicts,
			status, started_at, finished_at
		FROM run_logs
		ORDER BY source_id, started_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get last runs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.RunLog)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out[r.SourceID] = *r
	}
	return out, rows.Err()
}

// History returns recent runs for one source, newest first.
func (s *RunStore) History(ctx context.Context, sourceID string, limit int) ([]model.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, run_id, source_id, trigger, note,
			found, added, updated, unchanged, removed, errored, conflicts,
			status, started_at, finished_at
		FROM run_logs
		WHERE source_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history for %s: %w", sourceID, err)
	}
	defer rows.Close()

	var runs []model.RunLog
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (*model.RunLog, error) {
	var r model.RunLog
	var trigger, status string
	err := rows.Scan(
		&r.ID, &r.RunID, &r.SourceID, &trigger, &r.Note,
		&r.Found, &r.Added, &r.Updated, &r.Unchanged, &r.Removed, &r.Errored, &r.Conflicts,
		&status, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run log: %w", err)
	}
	r.Trigger = model.TriggerKind(trigger)
	r.Status = model.RunStatus(status)
	return &r, nil
}
