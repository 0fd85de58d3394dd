package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kmercer/salewatch/internal/model"
)

// ListingStore handles database operations for unified listings and their
// append-only status history.
type ListingStore struct {
	db *sql.DB
}

// NewListingStore creates a new ListingStore.
func NewListingStore(db *sql.DB) *ListingStore {
	return &ListingStore{db: db}
}

const listingCols = `
	id, source_id, native_id, sheriff_number, case_number,
	address, normalized_address, street_number, street, unit, city, state, zip,
	plaintiff, defendant, attorney,
	judgment_amount, opening_bid, approx_judgment, estimated_value,
	sale_date, sale_time, status, status_detail, raw_payload,
	index_hash, detail_hash, first_seen_at, last_seen_at,
	is_removed, needs_review, created_at`

func scanListing(row interface{ Scan(...any) error }) (*model.Listing, error) {
	var l model.Listing
	var status string
	err := row.Scan(
		&l.ID, &l.SourceID, &l.NativeID, &l.SheriffNumber, &l.CaseNumber,
		&l.Address, &l.NormalizedAddress, &l.StreetNumber, &l.Street, &l.Unit,
		&l.City, &l.State, &l.Zip,
		&l.Plaintiff, &l.Defendant, &l.Attorney,
		&l.JudgmentAmount, &l.OpeningBid, &l.ApproxJudgment, &l.EstimatedValue,
		&l.SaleDate, &l.SaleTime, &status, &l.StatusDetail, &l.RawPayload,
		&l.IndexHash, &l.DetailHash, &l.FirstSeenAt, &l.LastSeenAt,
		&l.IsRemoved, &l.NeedsReview, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Status = model.UnifiedStatus(status)
	return &l, nil
}

// GetByNativeID retrieves a listing by its source-native identifier.
// Returns (nil, nil) when no row matches.
func (s *ListingStore) GetByNativeID(ctx context.Context, sourceID, nativeID string) (*model.Listing, error) {
	query := `SELECT` + listingCols + ` FROM listings WHERE source_id = $1 AND native_id = $2`
	l, err := scanListing(s.db.QueryRowContext(ctx, query, sourceID, nativeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing by native id %s/%s: %w", sourceID, nativeID, err)
	}
	return l, nil
}

// GetByAddress retrieves a listing by the (source_id, normalized_address)
// fallback identity key. Returns (nil, nil) when no row matches. When the
// same address appears more than once the oldest row wins, matching the
// row first-seen for that address.
func (s *ListingStore) GetByAddress(ctx context.Context, sourceID, normalizedAddress string) (*model.Listing, error) {
	query := `SELECT` + listingCols + ` FROM listings
		WHERE source_id = $1 AND normalized_address = $2
		ORDER BY created_at ASC
		LIMIT 1`
	l, err := scanListing(s.db.QueryRowContext(ctx, query, sourceID, normalizedAddress))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing by address %s/%q: %w", sourceID, normalizedAddress, err)
	}
	return l, nil
}

// GetByID retrieves a listing by primary key. Returns (nil, nil) when absent.
func (s *ListingStore) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	query := `SELECT` + listingCols + ` FROM listings WHERE id = $1`
	l, err := scanListing(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %d: %w", id, err)
	}
	return l, nil
}

// Insert creates a new listing row and fills in its generated ID.
func (s *ListingStore) Insert(ctx context.Context, l *model.Listing) error {
	query := `
		INSERT INTO listings (source_id, native_id, sheriff_number, case_number,
			address, normalized_address, street_number, street, unit, city, state, zip,
			plaintiff, defendant, attorney,
			judgment_amount, opening_bid, approx_judgment, estimated_value,
			sale_date, sale_time, status, status_detail, raw_payload,
			index_hash, detail_hash, first_seen_at, last_seen_at, is_removed, needs_review)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,
			$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		l.SourceID, l.NativeID, l.SheriffNumber, l.CaseNumber,
		l.Address, l.NormalizedAddress, l.StreetNumber, l.Street, l.Unit,
		l.City, l.State, l.Zip,
		l.Plaintiff, l.Defendant, l.Attorney,
		l.JudgmentAmount, l.OpeningBid, l.ApproxJudgment, l.EstimatedValue,
		l.SaleDate, l.SaleTime, string(l.Status), l.StatusDetail, l.RawPayload,
		l.IndexHash, l.DetailHash, l.FirstSeenAt, l.LastSeenAt, l.IsRemoved, l.NeedsReview,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert listing for %s: %w", l.SourceID, err)
	}
	return nil
}

// Update rewrites every normalized field of an existing row. Identity
// columns (id, source_id, first_seen_at, created_at) are never touched.
func (s *ListingStore) Update(ctx context.Context, l *model.Listing) error {
	query := `
		UPDATE listings SET
			native_id = $2, sheriff_number = $3, case_number = $4,
			address = $5, normalized_address = $6,
			street_number = $7, street = $8, unit = $9, city = $10, state = $11, zip = $12,
			plaintiff = $13, defendant = $14, attorney = $15,
			judgment_amount = $16, opening_bid = $17, approx_judgment = $18, estimated_value = $19,
			sale_date = $20, sale_time = $21, status = $22, status_detail = $23, raw_payload = $24,
			index_hash = $25, detail_hash = $26, last_seen_at = $27,
			is_removed = $28, needs_review = $29
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.NativeID, l.SheriffNumber, l.CaseNumber,
		l.Address, l.NormalizedAddress,
		l.StreetNumber, l.Street, l.Unit, l.City, l.State, l.Zip,
		l.Plaintiff, l.Defendant, l.Attorney,
		l.JudgmentAmount, l.OpeningBid, l.ApproxJudgment, l.EstimatedValue,
		l.SaleDate, l.SaleTime, string(l.Status), l.StatusDetail, l.RawPayload,
		l.IndexHash, l.DetailHash, l.LastSeenAt,
		l.IsRemoved, l.NeedsReview,
	)
	if err != nil {
		return fmt.Errorf("failed to update listing %d: %w", l.ID, err)
	}
	return nil
}

// TouchLastSeen advances last_seen_at and clears any tombstone; normalized
// fields are left untouched. A reappearing listing is live again even when
// nothing else about it changed.
func (s *ListingStore) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET last_seen_at = $2, is_removed = FALSE WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch listing %d: %w", id, err)
	}
	return nil
}

// AppendHistory writes one immutable status transition entry.
func (s *ListingStore) AppendHistory(ctx context.Context, e *model.StatusHistoryEntry) error {
	query := `
		INSERT INTO status_history (listing_id, from_status, to_status, source, at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		e.ListingID, string(e.From), string(e.To), e.Source, e.At,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to append history for listing %d: %w", e.ListingID, err)
	}
	return nil
}

// GetHistory retrieves all status transitions for a listing, oldest first.
func (s *ListingStore) GetHistory(ctx context.Context, listingID int64) ([]model.StatusHistoryEntry, error) {
	query := `
		SELECT id, listing_id, from_status, to_status, source, at
		FROM status_history
		WHERE listing_id = $1
		ORDER BY at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for listing %d: %w", listingID, err)
	}
	defer rows.Close()

	var entries []model.StatusHistoryEntry
	for rows.Next() {
		var e model.StatusHistoryEntry
		var from, to string
		if err := rows.Scan(&e.ID, &e.ListingID, &from, &to, &e.Source, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.From = model.UnifiedStatus(from)
		e.To = model.UnifiedStatus(to)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkRemovedExcept tombstones every live listing of a source that is not
// in seen. last_seen_at is deliberately left untouched so it stays frozen
// at the last real observation. Callers must only invoke this after a run
// with full index coverage.
func (s *ListingStore) MarkRemovedExcept(ctx context.Context, sourceID string, seen []int64) (int64, error) {
	query := `
		UPDATE listings SET is_removed = TRUE
		WHERE source_id = $1
		  AND is_removed = FALSE
		  AND NOT (id = ANY($2))`

	res, err := s.db.ExecContext(ctx, query, sourceID, pq.Array(seen))
	if err != nil {
		return 0, fmt.Errorf("failed to tombstone listings for %s: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count tombstoned listings: %w", err)
	}
	return n, nil
}

// SetNeedsReview flags listings whose identity keys disagreed.
func (s *ListingStore) SetNeedsReview(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET needs_review = TRUE WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to flag listings for review: %w", err)
	}
	return nil
}

// CountActive returns the number of live (non-tombstoned) listings per source.
func (s *ListingStore) CountActive(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE source_id = $1 AND is_removed = FALSE`,
		sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count listings for %s: %w", sourceID, err)
	}
	return count, nil
}
