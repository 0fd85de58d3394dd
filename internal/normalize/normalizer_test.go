package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/kmercer/salewatch/internal/model"
)

func essexFieldMaps() map[string]model.FieldMapping {
	fm := func(raw, unified, dataType, transform string) model.FieldMapping {
		return model.FieldMapping{
			SourceID:     "essex-nj",
			RawField:     raw,
			UnifiedField: unified,
			DataType:     dataType,
			Transform:    transform,
		}
	}
	return map[string]model.FieldMapping{
		"Sheriff #":         fm("Sheriff #", "sheriff_number", model.TypeText, model.TransformTrim),
		"Court Case #":      fm("Court Case #", "case_number", model.TypeText, model.TransformStripCase),
		"Sales Date":        fm("Sales Date", "sale_date", model.TypeDate, ""),
		"Opening Bid":       fm("Opening Bid", "opening_bid", model.TypeMoney, ""),
		"Final Judgment":    fm("Final Judgment", "judgment_amount", model.TypeMoney, ""),
		"Approx. Judgment*": fm("Approx. Judgment*", "approx_judgment", model.TypeMoney, ""),
		"Address":           fm("Address", "address", model.TypeText, model.TransformTrim),
		"Status":            fm("Status", "status", model.TypeText, ""),
	}
}

func essexStatusMaps() map[string]model.UnifiedStatus {
	return map[string]model.UnifiedStatus{
		"Scheduled":                     model.StatusScheduled,
		"Adjourned - Plaintiff Request": model.StatusAdjournedPlaintiff,
		"Sold":                          model.StatusSold,
	}
}

func TestNormalizeRow(t *testing.T) {
	n := NewNormalizer("essex-nj", essexFieldMaps(), essexStatusMaps())

	raw := map[string]string{
		"Sheriff #":      "  F-25001234  ",
		"Court Case #":   "Docket No. SWC-F-003456-24",
		"Sales Date":     "03/10/2025",
		"Opening Bid":    "$185,000.00",
		"Final Judgment": "N/A",
		"Address":        "12 Oak St,   Newark, NJ",
		"Status":         "Adjourned - Plaintiff Request",
		"Parcel":         "Block 12 Lot 7", // no mapping row
	}

	l, warnings := n.Normalize(raw)
	if len(warnings) > 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	if got := l.SheriffNumber.String; got != "F-25001234" {
		t.Errorf("SheriffNumber = %q, want %q", got, "F-25001234")
	}
	if got := l.CaseNumber.String; got != "SWC-F-003456-24" {
		t.Errorf("CaseNumber = %q, want %q", got, "SWC-F-003456-24")
	}

	wantDate, _ := time.Parse("2006-01-02", "2025-03-10")
	if !l.SaleDate.Valid || !l.SaleDate.Time.Equal(wantDate) {
		t.Errorf("SaleDate = %+v, want %v", l.SaleDate, wantDate)
	}

	if !l.OpeningBid.Valid || l.OpeningBid.Float64 != 185000.00 {
		t.Errorf("OpeningBid = %+v, want 185000.00", l.OpeningBid)
	}
	if l.JudgmentAmount.Valid {
		t.Errorf("JudgmentAmount should be null for N/A, got %+v", l.JudgmentAmount)
	}

	if l.NormalizedAddress != "12 oak st, newark, nj" {
		t.Errorf("NormalizedAddress = %q, want %q", l.NormalizedAddress, "12 oak st, newark, nj")
	}
	if got := l.City.String; got != "Newark" {
		t.Errorf("City = %q, want %q", got, "Newark")
	}

	if l.Status != model.StatusAdjournedPlaintiff {
		t.Errorf("Status = %q, want %q", l.Status, model.StatusAdjournedPlaintiff)
	}
	if got := l.StatusDetail.String; got != "Adjourned - Plaintiff Request" {
		t.Errorf("StatusDetail = %q, want raw status text", got)
	}

	// Unmapped raw fields survive only in the payload.
	if !strings.Contains(string(l.RawPayload), "Block 12 Lot 7") {
		t.Errorf("RawPayload missing unmapped field: %s", l.RawPayload)
	}
}

func TestMonetaryCategoriesStayDisjoint(t *testing.T) {
	n := NewNormalizer("essex-nj", essexFieldMaps(), essexStatusMaps())

	l, warnings := n.Normalize(map[string]string{
		"Opening Bid":       "$100.00",
		"Final Judgment":    "$200.00",
		"Approx. Judgment*": "$300.00",
	})
	if len(warnings) > 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	if !l.OpeningBid.Valid || l.OpeningBid.Float64 != 100 {
		t.Errorf("OpeningBid = %+v, want 100", l.OpeningBid)
	}
	if !l.JudgmentAmount.Valid || l.JudgmentAmount.Float64 != 200 {
		t.Errorf("JudgmentAmount = %+v, want 200", l.JudgmentAmount)
	}
	if !l.ApproxJudgment.Valid || l.ApproxJudgment.Float64 != 300 {
		t.Errorf("ApproxJudgment = %+v, want 300", l.ApproxJudgment)
	}
	if l.EstimatedValue.Valid {
		t.Errorf("EstimatedValue should be untouched, got %+v", l.EstimatedValue)
	}
}

func TestNormalizeStatusFolding(t *testing.T) {
	n := NewNormalizer("essex-nj", essexFieldMaps(), essexStatusMaps())

	// Capitalization and spacing drift should still resolve.
	l, _ := n.Normalize(map[string]string{"Status": "ADJOURNED -  PLAINTIFF  REQUEST"})
	if l.Status != model.StatusAdjournedPlaintiff {
		t.Errorf("folded status = %q, want %q", l.Status, model.StatusAdjournedPlaintiff)
	}

	// Unmapped text defaults to unknown but keeps the raw detail.
	l, _ = n.Normalize(map[string]string{"Status": "Bankruptcy Stay"})
	if l.Status != model.StatusUnknown {
		t.Errorf("unmapped status = %q, want %q", l.Status, model.StatusUnknown)
	}
	if l.StatusDetail.String != "Bankruptcy Stay" {
		t.Errorf("StatusDetail = %q, want raw text", l.StatusDetail.String)
	}
}

func TestNormalizeWarnsAndContinues(t *testing.T) {
	n := NewNormalizer("essex-nj", essexFieldMaps(), essexStatusMaps())

	l, warnings := n.Normalize(map[string]string{
		"Opening Bid": "contact attorney",
		"Sheriff #":   "F-25009999",
	})
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
	if l.OpeningBid.Valid {
		t.Errorf("OpeningBid should be null after parse failure, got %+v", l.OpeningBid)
	}
	if l.SheriffNumber.String != "F-25009999" {
		t.Errorf("SheriffNumber = %q, rest of record should survive", l.SheriffNumber.String)
	}
}
