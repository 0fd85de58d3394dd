package normalize

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kmercer/salewatch/internal/model"
)

// Normalizer translates one source's raw field maps into unified listings
// using the declarative mapping tables. It holds a read-only snapshot of
// the mappings taken at run start; it never branches on source id.
type Normalizer struct {
	sourceID   string
	fieldMaps  map[string]model.FieldMapping
	statusMaps map[string]model.UnifiedStatus
}

// NewNormalizer creates a Normalizer for one source from its mapping rows.
func NewNormalizer(sourceID string, fieldMaps map[string]model.FieldMapping, statusMaps map[string]model.UnifiedStatus) *Normalizer {
	return &Normalizer{
		sourceID:   sourceID,
		fieldMaps:  fieldMaps,
		statusMaps: statusMaps,
	}
}

// Normalize maps a raw record into a unified Listing. Field-level problems
// (unparsable money/date, unknown mapping target) come back as warnings;
// the rest of the record is still produced. Raw fields with no mapping row
// are preserved only in the raw payload, never promoted to a column.
func (n *Normalizer) Normalize(raw map[string]string) (*model.Listing, []error) {
	l := &model.Listing{
		SourceID: n.sourceID,
		Status:   model.StatusUnknown,
	}
	var warnings []error

	for rawField, rawValue := range raw {
		m, ok := n.fieldMaps[rawField]
		if !ok {
			continue
		}
		field, ok := unifiedFields[m.UnifiedField]
		if !ok {
			warnings = append(warnings, fmt.Errorf("mapping %s/%s targets unknown unified field %q", n.sourceID, rawField, m.UnifiedField))
			continue
		}

		value := applyTransform(rawValue, m.Transform)

		switch field.DataType {
		case model.TypeMoney:
			v, valid, err := ParseMoney(value)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("field %s: %w", rawField, err))
				continue
			}
			if valid {
				field.setMoney(l, v)
			}
		case model.TypeDate:
			t, valid, err := ParseDate(value)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("field %s: %w", rawField, err))
				continue
			}
			if valid {
				field.setDate(l, sql.NullTime{Time: t, Valid: true})
			}
		default:
			if m.UnifiedField == "status" {
				n.applyStatus(l, value)
				continue
			}
			field.setText(l, strings.TrimSpace(value))
		}
	}

	if l.Address != "" {
		l.NormalizedAddress = NormalizeAddress(l.Address)
		parts := ParseAddress(l.Address)
		l.StreetNumber = nullStr(parts.StreetNumber)
		l.Street = nullStr(parts.Street)
		l.Unit = nullStr(parts.Unit)
		l.City = nullStr(parts.City)
		l.State = nullStr(parts.State)
		l.Zip = nullStr(parts.Zip)
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		warnings = append(warnings, fmt.Errorf("failed to encode raw payload: %w", err))
	} else {
		l.RawPayload = payload
	}

	return l, warnings
}

// applyStatus resolves raw status text through the status mapping table.
// An unmapped status defaults to unknown rather than failing, and the raw
// text is always kept as the free-text detail.
func (n *Normalizer) applyStatus(l *model.Listing, raw string) {
	text := strings.TrimSpace(raw)
	if !l.StatusDetail.Valid {
		l.StatusDetail = nullStr(text)
	}

	if unified, ok := n.statusMaps[text]; ok && model.ValidStatus(unified) {
		l.Status = unified
		return
	}
	// Second chance: sites vary capitalization and spacing run to run.
	folded := strings.ToLower(wsRe.ReplaceAllString(text, " "))
	for rawKey, unified := range n.statusMaps {
		if strings.ToLower(wsRe.ReplaceAllString(rawKey, " ")) == folded && model.ValidStatus(unified) {
			l.Status = unified
			return
		}
	}
	l.Status = model.StatusUnknown
}

func applyTransform(v, transform string) string {
	switch transform {
	case model.TransformTrim:
		return strings.TrimSpace(v)
	case model.TransformUpper:
		return strings.ToUpper(strings.TrimSpace(v))
	case model.TransformLower:
		return strings.ToLower(strings.TrimSpace(v))
	case model.TransformStripCase:
		s := strings.TrimSpace(v)
		if i := strings.LastIndexAny(s, " .:#"); i >= 0 && i < len(s)-1 {
			return strings.TrimSpace(s[i+1:])
		}
		return s
	default:
		return v
	}
}
