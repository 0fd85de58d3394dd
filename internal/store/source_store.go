package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kmercer/salewatch/internal/model"
)

// SourceStore persists source metadata. Rows are synced from config at
// startup so the database is the single place downstream consumers read
// source state from.
type SourceStore struct {
	db *sql.DB
}

// NewSourceStore creates a new SourceStore.
func NewSourceStore(db *sql.DB) *SourceStore {
	return &SourceStore{db: db}
}

// Upsert inserts or updates a source row.
func (s *SourceStore) Upsert(ctx context.Context, src *model.Source) error {
	query := `
		INSERT INTO sources (id, name, index_url, id_prefix, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			index_url = EXCLUDED.index_url,
			id_prefix = EXCLUDED.id_prefix,
			active = EXCLUDED.active,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query, src.ID, src.Name, src.IndexURL, src.IDPrefix, src.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", src.ID, err)
	}
	return nil
}

// GetByID retrieves a source by id. Returns (nil, nil) when absent.
func (s *SourceStore) GetByID(ctx context.Context, id string) (*model.Source, error) {
	var src model.Source
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, index_url, id_prefix, active FROM sources WHERE id = $1`, id,
	).Scan(&src.ID, &src.Name, &src.IndexURL, &src.IDPrefix, &src.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source %s: %w", id, err)
	}
	return &src, nil
}

// ListActive returns every active source ordered by id.
func (s *SourceStore) ListActive(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, index_url, id_prefix, active FROM sources WHERE active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.IndexURL, &src.IDPrefix, &src.Active); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
