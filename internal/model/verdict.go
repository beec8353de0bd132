package model

import "time"

// FieldStatus is the per-field outcome of an evaluation pass.
type FieldStatus string

const (
	FieldPassed    FieldStatus = "passed"
	FieldAutoFixed FieldStatus = "auto_fixed"
	FieldFailed    FieldStatus = "failed"
	// FieldMissing marks a field with zero content. Distinct from failed:
	// a missing field only blocks verification when it is required and the
	// extraction method claimed to populate it.
	FieldMissing FieldStatus = "missing"
)

// TriState represents a verification outcome that may be unknowable.
type TriState string

const (
	TriTrue    TriState = "true"
	TriFalse   TriState = "false"
	TriUnknown TriState = "unknown"
)

// FieldVerdict is the outcome of evaluating one field.
type FieldVerdict struct {
	Field    string      `json:"field"`
	Status   FieldStatus `json:"status"`
	Original string      `json:"original"`
	// Fixed holds the repaired value when Status is auto_fixed. The original
	// is retained for audit; downstream layers evaluate the fixed value.
	Fixed          string   `json:"fixed,omitempty"`
	Issues         []string `json:"issues,omitempty"`
	SourceVerified TriState `json:"source_verified"`
	// Confidence is this field's multiplier in [0,1], 1.0 when untouched.
	Confidence float64 `json:"confidence"`
}

// Value returns the repaired value when one exists, else the original.
func (v FieldVerdict) Value() string {
	if v.Fixed != "" {
		return v.Fixed
	}
	return v.Original
}

// Detected reports whether the field failed with a concrete, detected
// problem (as opposed to verification merely being incomplete).
func (v FieldVerdict) Detected() bool {
	return v.Status == FieldFailed && len(v.Issues) > 0
}

// GateStatus is the aggregate outcome for a candidate record.
type GateStatus string

const (
	GatePending     GateStatus = "pending"
	GateVerified    GateStatus = "verified"
	GateUnverified  GateStatus = "unverified"
	GateQuarantined GateStatus = "quarantined"
)

// Provenance records where a field value came from and how it was judged.
type Provenance struct {
	Source     string  `json:"source"`
	Evidence   string  `json:"evidence,omitempty"`
	Confidence float64 `json:"confidence"`
}

// GateVerdict aggregates all field verdicts for one candidate record.
type GateVerdict struct {
	ProfileID string                  `json:"profile_id"`
	Status    GateStatus              `json:"status"`
	Fields    map[string]FieldVerdict `json:"fields"`
	// Confidence is the product of all per-field multipliers, floored at 0.
	Confidence  float64               `json:"confidence"`
	Provenance  map[string]Provenance `json:"provenance"`
	JudgeRan    bool                  `json:"judge_ran"`
	EvaluatedAt time.Time             `json:"evaluated_at"`
}

// DetectedFailures returns the verdicts for fields that failed with a
// detected problem, in no particular order.
func (g *GateVerdict) DetectedFailures() []FieldVerdict {
	var out []FieldVerdict
	for _, fv := range g.Fields {
		if fv.Detected() {
			out = append(out, fv)
		}
	}
	return out
}

// StoreRecord is the downstream output for verified and unverified records.
type StoreRecord struct {
	ProfileID          string                `json:"profile_id"`
	Fields             map[string]string     `json:"fields"`
	VerificationStatus GateStatus            `json:"verification_status"`
	Confidence         float64               `json:"confidence"`
	Provenance         map[string]Provenance `json:"provenance"`
}

// RunStats summarizes one gate or retry pass for the caller.
type RunStats struct {
	Verified               int `json:"verified"`
	Unverified             int `json:"unverified"`
	Quarantined            int `json:"quarantined"`
	Resolved               int `json:"resolved,omitempty"`
	StillQuarantined       int `json:"still_quarantined,omitempty"`
	PermanentlyQuarantined int `json:"permanently_quarantined,omitempty"`
	Errors                 int `json:"errors,omitempty"`
}
