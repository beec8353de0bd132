package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// CandidateRecord is one profile's freshly extracted field values plus the
// raw source material they were derived from. Created by an extraction
// method, consumed once by the gate, never mutated.
type CandidateRecord struct {
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name,omitempty"`

	// Fields maps field key to extracted value. An absent key means the
	// extraction method did not attempt the field; an empty value means it
	// attempted and found nothing.
	Fields map[string]string `json:"fields"`

	// RawSourceContent is the raw text the extractor worked from, when any
	// exists. Empty when the record came from a structured API.
	RawSourceContent string `json:"raw_source_content,omitempty"`

	// FieldEvidence maps field key to the quotation the extractor claims
	// supports the value. Only meaningful for free-text fields.
	FieldEvidence map[string]string `json:"field_evidence,omitempty"`

	// ExtractionMethod identifies the method that produced this record.
	ExtractionMethod string `json:"extraction_method"`

	// ContentAsOf is the age of the source material, when known. Consumed by
	// stale-content classification.
	ContentAsOf *time.Time `json:"content_as_of,omitempty"`
}

// Validate checks the upstream contract. A violation here is a programmer
// error in the extraction layer, not a data-quality issue, and aborts loudly.
func (r *CandidateRecord) Validate() error {
	if r.ProfileID == "" {
		return eris.New("model: candidate record missing profile_id")
	}
	if r.ExtractionMethod == "" {
		return eris.Errorf("model: candidate record %s missing extraction_method", r.ProfileID)
	}
	if r.Fields == nil {
		return eris.Errorf("model: candidate record %s has nil fields", r.ProfileID)
	}
	return nil
}

// Evidence returns the claimed supporting quotation for a field, or "".
func (r *CandidateRecord) Evidence(field string) string {
	if r.FieldEvidence == nil {
		return ""
	}
	return r.FieldEvidence[field]
}

// WithFields returns a copy of the record with the given field values merged
// in and the extraction method replaced. Used when a retry re-extracts a
// subset of fields.
func (r *CandidateRecord) WithFields(method string, fields map[string]string, evidence map[string]string) *CandidateRecord {
	merged := &CandidateRecord{
		ProfileID:        r.ProfileID,
		ProfileName:      r.ProfileName,
		Fields:           make(map[string]string, len(r.Fields)),
		RawSourceContent: r.RawSourceContent,
		FieldEvidence:    make(map[string]string, len(r.FieldEvidence)),
		ExtractionMethod: method,
		ContentAsOf:      r.ContentAsOf,
	}
	for k, v := range r.Fields {
		merged.Fields[k] = v
	}
	for k, v := range r.FieldEvidence {
		merged.FieldEvidence[k] = v
	}
	for k, v := range fields {
		merged.Fields[k] = v
	}
	for k, v := range evidence {
		merged.FieldEvidence[k] = v
	}
	return merged
}
