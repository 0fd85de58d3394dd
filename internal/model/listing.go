package model

import (
	"database/sql"
	"encoding/json"
	"time"
)

// UnifiedStatus is the closed set of sale states every source maps into.
type UnifiedStatus string

const (
	StatusScheduled          UnifiedStatus = "scheduled"
	StatusAdjournedPlaintiff UnifiedStatus = "adjourned_plaintiff"
	StatusAdjournedCourt     UnifiedStatus = "adjourned_court"
	StatusAdjournedDefendant UnifiedStatus = "adjourned_defendant"
	StatusSold               UnifiedStatus = "sold"
	StatusCancelled          UnifiedStatus = "cancelled"
	StatusWithdrawn          UnifiedStatus = "withdrawn"
	StatusUnknown            UnifiedStatus = "unknown"
)

// ValidStatus reports whether s is one of the unified status values.
func ValidStatus(s UnifiedStatus) bool {
	switch s {
	case StatusScheduled, StatusAdjournedPlaintiff, StatusAdjournedCourt,
		StatusAdjournedDefendant, StatusSold, StatusCancelled,
		StatusWithdrawn, StatusUnknown:
		return true
	}
	return false
}

// Listing is one unified auction-sale record. Monetary fields fall into
// three legally distinct categories that are populated independently:
//
//	A (court debt):   JudgmentAmount
//	B (auction floor): OpeningBid
//	C (estimates):    ApproxJudgment, EstimatedValue
//
// A value observed in one category is never copied or derived into another.
type Listing struct {
	ID       int64
	SourceID string

	// NativeID is the source's own stable identifier, when it exposes one.
	// It is authoritative over the address-derived key.
	NativeID sql.NullString

	SheriffNumber sql.NullString
	CaseNumber    sql.NullString

	Address           string
	NormalizedAddress string
	StreetNumber      sql.NullString
	Street            sql.NullString
	Unit              sql.NullString
	City              sql.NullString
	State             sql.NullString
	Zip               sql.NullString

	Plaintiff sql.NullString
	Defendant sql.NullString
	Attorney  sql.NullString

	JudgmentAmount sql.NullFloat64 // category A
	OpeningBid     sql.NullFloat64 // category B
	ApproxJudgment sql.NullFloat64 // category C
	EstimatedValue sql.NullFloat64 // category C

	SaleDate sql.NullTime
	SaleTime sql.NullString

	Status       UnifiedStatus
	StatusDetail sql.NullString

	// RawPayload preserves the source's raw field map verbatim for audit,
	// including fields no mapping row covers.
	RawPayload json.RawMessage

	IndexHash  string
	DetailHash sql.NullString

	FirstSeenAt time.Time
	LastSeenAt  time.Time
	IsRemoved   bool

	// NeedsReview marks rows whose native-id and address identity keys
	// disagreed; resolved by an operator, never merged automatically.
	NeedsReview bool

	CreatedAt time.Time
}

// StatusHistoryEntry is one append-only status transition. Entries are
// never mutated or removed once written.
type StatusHistoryEntry struct {
	ID        int64
	ListingID int64
	From      UnifiedStatus
	To        UnifiedStatus
	Source    string
	At        time.Time
}
