package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kmercer/salewatch/internal/model"
)

// MappingStore reads and maintains the declarative field and status
// mapping tables. The normalizer only ever reads; writes happen through
// the seed command.
type MappingStore struct {
	db *sql.DB
}

// NewMappingStore creates a new MappingStore.
func NewMappingStore(db *sql.DB) *MappingStore {
	return &MappingStore{db: db}
}

// FieldMappings returns all field mappings for a source keyed by raw field name.
func (s *MappingStore) FieldMappings(ctx context.Context, sourceID string) (map[string]model.FieldMapping, error) {
	query := `
		SELECT id, source_id, raw_field, unified_field, data_type, transform
		FROM field_mappings
		WHERE source_id = $1`

	rows, err := s.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get field mappings for %s: %w", sourceID, err)
	}
	defer rows.Close()

	out := make(map[string]model.FieldMapping)
	for rows.Next() {
		var m model.FieldMapping
		if err := rows.Scan(&m.ID, &m.SourceID, &m.RawField, &m.UnifiedField, &m.DataType, &m.Transform); err != nil {
			return nil, fmt.Errorf("failed to scan field mapping: %w", err)
		}
		out[m.RawField] = m
	}
	return out, rows.Err()
}

// StatusMappings returns all status mappings for a source keyed by raw status text.
func (s *MappingStore) StatusMappings(ctx context.Context, sourceID string) (map[string]model.UnifiedStatus, error) {
	query := `
		SELECT raw_status, unified
		FROM status_mappings
		WHERE source_id = $1`

	rows, err := s.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status mappings for %s: %w", sourceID, err)
	}
	defer rows.Close()

	out := make(map[string]model.UnifiedStatus)
	for rows.Next() {
		var raw, unified string
		if err := rows.Scan(&raw, &unified); err != nil {
			return nil, fmt.Errorf("failed to scan status mapping: %w", err)
		}
		out[raw] = model.UnifiedStatus(unified)
	}
	return out, rows.Err()
}

// UpsertFieldMapping inserts or replaces one field mapping row.
func (s *MappingStore) UpsertFieldMapping(ctx context.Context, m *model.FieldMapping) error {
	query := `
		INSERT INTO field_mappings (source_id, raw_field, unified_field, data_type, transform)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id, raw_field) DO UPDATE SET
			unified_field = EXCLUDED.unified_field,
			data_type = EXCLUDED.data_type,
			transform = EXCLUDED.transform
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		m.SourceID, m.RawField, m.UnifiedField, m.DataType, m.Transform,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert field mapping %s/%s: %w", m.SourceID, m.RawField, err)
	}
	return nil
}

// UpsertStatusMapping inserts or replaces one status mapping row.
func (s *MappingStore) UpsertStatusMapping(ctx context.Context, m *model.StatusMapping) error {
	query := `
		INSERT INTO status_mappings (source_id, raw_status, unified)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id, raw_status) DO UPDATE SET
			unified = EXCLUDED.unified
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		m.SourceID, m.RawStatus, string(m.Unified),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert status mapping %s/%q: %w", m.SourceID, m.RawStatus, err)
	}
	return nil
}
