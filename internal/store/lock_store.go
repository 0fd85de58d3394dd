package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kmercer/salewatch/internal/model"
)

// LockStore implements per-source mutual exclusion backed by a shared
// database row, so multiple orchestrator instances cannot race. Acquisition
// is a single conditional statement: the caller immediately learns success
// or contention and never waits.
type LockStore struct {
	db *sql.DB
}

// NewLockStore creates a new LockStore.
func NewLockStore(db *sql.DB) *LockStore {
	return &LockStore{db: db}
}

// Acquire claims the lock for sourceID if it is free, or if it has been
// held longer than maxAge (a stuck crawl that never released). Returns
// true when this caller now holds the lock.
func (s *LockStore) Acquire(ctx context.Context, sourceID string, maxAge time.Duration) (bool, error) {
	query := `
		INSERT INTO source_locks (source_id, held, since)
		VALUES ($1, TRUE, NOW())
		ON CONFLICT (source_id) DO UPDATE SET held = TRUE, since = NOW()
		WHERE source_locks.held = FALSE
		   OR source_locks.since < NOW() - $2::interval
		RETURNING source_id`

	interval := fmt.Sprintf("%d seconds", int(maxAge.Seconds()))
	var claimed string
	err := s.db.QueryRowContext(ctx, query, sourceID, interval).Scan(&claimed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for %s: %w", sourceID, err)
	}
	return true, nil
}

// Release clears the lock. It is safe to call on a lock already released
// (or taken over by a watchdog) and runs on every crawl exit path.
func (s *LockStore) Release(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE source_locks SET held = FALSE WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", sourceID, err)
	}
	return nil
}

// Held returns every lock currently held, with its acquisition time.
func (s *LockStore) Held(ctx context.Context) ([]model.Lock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, held, since FROM source_locks WHERE held = TRUE ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list held locks: %w", err)
	}
	defer rows.Close()

	var locks []model.Lock
	for rows.Next() {
		var l model.Lock
		if err := rows.Scan(&l.SourceID, &l.Held, &l.Since); err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}
