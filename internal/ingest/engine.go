package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kmercer/salewatch/internal/model"
)

// Effect is what applying one observed record did to the store.
type Effect int

const (
	EffectUnchanged Effect = iota
	EffectInserted
	EffectUpdated
)

func (e Effect) String() string {
	switch e {
	case EffectInserted:
		return "inserted"
	case EffectUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// historySourceInitial labels the seed entry written when a listing is
// first observed.
const historySourceInitial = "initial"

// ListingStore is the persistence the engine needs. *store.ListingStore
// satisfies it; tests supply an in-memory fake.
type ListingStore interface {
	GetByNativeID(ctx context.Context, sourceID, nativeID string) (*model.Listing, error)
	GetByAddress(ctx context.Context, sourceID, normalizedAddress string) (*model.Listing, error)
	Insert(ctx context.Context, l *model.Listing) error
	Update(ctx context.Context, l *model.Listing) error
	TouchLastSeen(ctx context.Context, id int64, at time.Time) error
	AppendHistory(ctx context.Context, e *model.StatusHistoryEntry) error
	MarkRemovedExcept(ctx context.Context, sourceID string, seen []int64) (int64, error)
	SetNeedsReview(ctx context.Context, ids ...int64) error
}

// Engine applies normalized records against stored state: insert, update,
// idempotent no-op, and (after full index coverage) tombstoning. One
// Engine instance serves one run of one source.
type Engine struct {
	store    ListingStore
	sourceID string
	now      func() time.Time

	mu        sync.Mutex // serializes same-run upserts defensively
	seen      []int64
	conflicts int
}

// NewEngine creates an engine for one run of one source.
func NewEngine(store ListingStore, sourceID string) *Engine {
	return &Engine{
		store:    store,
		sourceID: sourceID,
		now:      time.Now,
	}
}

// Observe records that a stored row was present in the current index,
// independently of whether its upsert later succeeds. Tombstoning keys on
// absence from the index, so a row whose processing errors out must still
// count as observed.
func (e *Engine) Observe(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, id)
}

// Lookup resolves an identity to its stored row without applying anything.
// The native id, when present, is authoritative; the address key is the
// fallback. Returns (nil, nil) for a first observation.
func (e *Engine) Lookup(ctx context.Context, nativeID, normalizedAddress string) (*model.Listing, error) {
	if nativeID != "" {
		l, err := e.store.GetByNativeID(ctx, e.sourceID, nativeID)
		if err != nil || l != nil {
			return l, err
		}
	}
	if normalizedAddress != "" {
		return e.store.GetByAddress(ctx, e.sourceID, normalizedAddress)
	}
	return nil, nil
}

// Apply upserts one normalized record. historySource labels any status
// transition entry this observation produces.
func (e *Engine) Apply(ctx context.Context, incoming *model.Listing, historySource string) (Effect, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if incoming.SourceID != e.sourceID {
		return EffectUnchanged, fmt.Errorf("record source %q does not match engine source %q", incoming.SourceID, e.sourceID)
	}
	if !incoming.NativeID.Valid && incoming.NormalizedAddress == "" {
		return EffectUnchanged, fmt.Errorf("record has neither native id nor normalized address")
	}

	existing, err := e.resolve(ctx, incoming)
	if err != nil {
		return EffectUnchanged, err
	}

	now := e.now()

	if existing == nil {
		return e.insert(ctx, incoming, now)
	}

	indexUnchanged := existing.IndexHash == incoming.IndexHash
	detailUnchanged := !incoming.DetailHash.Valid ||
		(existing.DetailHash.Valid && existing.DetailHash.String == incoming.DetailHash.String)

	if indexUnchanged && detailUnchanged {
		// Touch also clears a tombstone: courts reinstate sales, and a
		// reappearing listing is live again even when nothing else moved.
		if err := e.store.TouchLastSeen(ctx, existing.ID, now); err != nil {
			return EffectUnchanged, err
		}
		e.seen = append(e.seen, existing.ID)
		return EffectUnchanged, nil
	}

	return e.update(ctx, existing, incoming, now, historySource)
}

// resolve finds the stored row for an incoming record and flags identity
// conflicts. The native id wins; rows are never merged.
func (e *Engine) resolve(ctx context.Context, incoming *model.Listing) (*model.Listing, error) {
	var byNative, byAddr *model.Listing
	var err error

	if incoming.NativeID.Valid {
		byNative, err = e.store.GetByNativeID(ctx, e.sourceID, incoming.NativeID.String)
		if err != nil {
			return nil, err
		}
	}
	if incoming.NormalizedAddress != "" {
		byAddr, err = e.store.GetByAddress(ctx, e.sourceID, incoming.NormalizedAddress)
		if err != nil {
			return nil, err
		}
	}

	if byNative != nil {
		if byAddr != nil && byAddr.ID != byNative.ID {
			// The two identity keys point at different stored rows. The
			// native id wins; both rows go to manual review.
			e.conflicts++
			if err := e.store.SetNeedsReview(ctx, byNative.ID, byAddr.ID); err != nil {
				return nil, err
			}
		}
		return byNative, nil
	}

	if byAddr != nil {
		if incoming.NativeID.Valid && byAddr.NativeID.Valid &&
			byAddr.NativeID.String != incoming.NativeID.String {
			// Same address, different native ids: a distinct sale at the
			// same property. Insert fresh rather than overwrite.
			e.conflicts++
			if err := e.store.SetNeedsReview(ctx, byAddr.ID); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return byAddr, nil
	}

	return nil, nil
}

func (e *Engine) insert(ctx context.Context, incoming *model.Listing, now time.Time) (Effect, error) {
	incoming.FirstSeenAt = now
	incoming.LastSeenAt = now
	incoming.IsRemoved = false

	if err := e.store.Insert(ctx, incoming); err != nil {
		return EffectUnchanged, err
	}

	seed := &model.StatusHistoryEntry{
		ListingID: incoming.ID,
		From:      "",
		To:        incoming.Status,
		Source:    historySourceInitial,
		At:        now,
	}
	if err := e.store.AppendHistory(ctx, seed); err != nil {
		return EffectUnchanged, err
	}

	e.seen = append(e.seen, incoming.ID)
	return EffectInserted, nil
}

func (e *Engine) update(ctx context.Context, existing, incoming *model.Listing, now time.Time, historySource string) (Effect, error) {
	// Identity and provenance carry over from the stored row.
	incoming.ID = existing.ID
	incoming.FirstSeenAt = existing.FirstSeenAt
	incoming.CreatedAt = existing.CreatedAt
	incoming.NeedsReview = existing.NeedsReview

	// A native id, once learned, sticks even if this observation came
	// without one (index row matched by address).
	if !incoming.NativeID.Valid && existing.NativeID.Valid {
		incoming.NativeID = existing.NativeID
	}

	// An incremental run that skipped the detail fetch did not recompute
	// the detail hash; the stored one remains current.
	if !incoming.DetailHash.Valid {
		incoming.DetailHash = existing.DetailHash
	}

	incoming.LastSeenAt = now
	incoming.IsRemoved = false

	if err := e.store.Update(ctx, incoming); err != nil {
		return EffectUnchanged, err
	}

	if incoming.Status != existing.Status {
		entry := &model.StatusHistoryEntry{
			ListingID: existing.ID,
			From:      existing.Status,
			To:        incoming.Status,
			Source:    historySource,
			At:        now,
		}
		if err := e.store.AppendHistory(ctx, entry); err != nil {
			return EffectUnchanged, err
		}
	}

	e.seen = append(e.seen, existing.ID)
	return EffectUpdated, nil
}

// FinishTombstones marks every live listing of the source that this run
// did not observe. It must only be called after a run that covered the
// source's full paginated index; failed or aborted runs skip it so a
// temporarily unseen listing is never conflated with a withdrawn one.
func (e *Engine) FinishTombstones(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.MarkRemovedExcept(ctx, e.sourceID, e.seen)
}

// Conflicts returns how many identity-key disagreements this run hit.
func (e *Engine) Conflicts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conflicts
}
