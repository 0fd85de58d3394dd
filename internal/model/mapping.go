package model

// Field data types a mapping row can declare.
const (
	TypeText  = "text"
	TypeMoney = "money"
	TypeDate  = "date"
)

// Transform rules applied after type coercion.
const (
	TransformNone      = ""
	TransformTrim      = "trim"
	TransformUpper     = "upper"
	TransformLower     = "lower"
	TransformStripCase = "strip_case_prefix" // "Docket No. F-123" -> "F-123"
)

// FieldMapping translates one raw source field into one unified field.
// Rows are maintained by operators and read-only during a run. Because a
// row targets exactly one unified field, a raw value can never land in
// more than one monetary category.
type FieldMapping struct {
	ID           int64
	SourceID     string
	RawField     string
	UnifiedField string
	DataType     string
	Transform    string
}

// StatusMapping translates one raw status text into a unified status.
// Raw text with no row maps to StatusUnknown.
type StatusMapping struct {
	ID        int64
	SourceID  string
	RawStatus string
	Unified   UnifiedStatus
}
