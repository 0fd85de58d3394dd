package normalize

import (
	"database/sql"

	"github.com/kmercer/salewatch/internal/model"
)

// MoneyCategory identifies which of the three legally distinct monetary
// groups a unified field belongs to. Categories are declared here, once,
// so a mapping row can only ever feed one category: cross-category
// contamination is impossible by construction, not by runtime checks.
type MoneyCategory int

const (
	CategoryNone     MoneyCategory = iota
	CategoryDebt                   // A: court/judgment amounts
	CategoryFloor                  // B: auction-floor amounts
	CategoryEstimate               // C: estimated/approximate amounts
)

// unifiedField describes one column of the unified schema that a mapping
// row may target.
type unifiedField struct {
	DataType string
	Category MoneyCategory
	setText  func(l *model.Listing, v string)
	setMoney func(l *model.Listing, v float64)
	setDate  func(l *model.Listing, v sql.NullTime)
}

func textField(set func(l *model.Listing, v string)) unifiedField {
	return unifiedField{DataType: model.TypeText, setText: set}
}

func moneyField(cat MoneyCategory, set func(l *model.Listing, v float64)) unifiedField {
	return unifiedField{DataType: model.TypeMoney, Category: cat, setMoney: set}
}

// unifiedFields is the registry of mapping targets. Address and status are
// not plain targets: they go through dedicated normalization below.
var unifiedFields = map[string]unifiedField{
	"sheriff_number": textField(func(l *model.Listing, v string) { l.SheriffNumber = nullStr(v) }),
	"case_number":    textField(func(l *model.Listing, v string) { l.CaseNumber = nullStr(v) }),
	"plaintiff":      textField(func(l *model.Listing, v string) { l.Plaintiff = nullStr(v) }),
	"defendant":      textField(func(l *model.Listing, v string) { l.Defendant = nullStr(v) }),
	"attorney":       textField(func(l *model.Listing, v string) { l.Attorney = nullStr(v) }),
	"sale_time":      textField(func(l *model.Listing, v string) { l.SaleTime = nullStr(v) }),
	"status_detail":  textField(func(l *model.Listing, v string) { l.StatusDetail = nullStr(v) }),

	"address": textField(func(l *model.Listing, v string) { l.Address = v }),
	"status":  textField(func(l *model.Listing, v string) {}), // resolved via status mappings

	"judgment_amount": moneyField(CategoryDebt, func(l *model.Listing, v float64) {
		l.JudgmentAmount = sql.NullFloat64{Float64: v, Valid: true}
	}),
	"opening_bid": moneyField(CategoryFloor, func(l *model.Listing, v float64) {
		l.OpeningBid = sql.NullFloat64{Float64: v, Valid: true}
	}),
	"approx_judgment": moneyField(CategoryEstimate, func(l *model.Listing, v float64) {
		l.ApproxJudgment = sql.NullFloat64{Float64: v, Valid: true}
	}),
	"estimated_value": moneyField(CategoryEstimate, func(l *model.Listing, v float64) {
		l.EstimatedValue = sql.NullFloat64{Float64: v, Valid: true}
	}),

	"sale_date": {DataType: model.TypeDate, setDate: func(l *model.Listing, v sql.NullTime) {
		l.SaleDate = v
	}},
}

// KnownUnifiedField reports whether name is a valid mapping target.
func KnownUnifiedField(name string) bool {
	_, ok := unifiedFields[name]
	return ok
}

func nullStr(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
