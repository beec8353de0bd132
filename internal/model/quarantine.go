package model

import "time"

// FailureType classifies why a field failed verification.
type FailureType string

const (
	FailureHallucination FailureType = "hallucination"
	FailureMissingData   FailureType = "missing_data"
	FailureFormatError   FailureType = "format_error"
	FailureEmailInvalid  FailureType = "email_invalid"
	FailureStaleContent  FailureType = "stale_content"
)

// QuarantineStatus is the lifecycle state of a quarantined record.
type QuarantineStatus string

const (
	QuarantineActive QuarantineStatus = "quarantined"
	// QuarantinePermanent is terminal: the record exhausted its retry budget
	// and requires manual review. Never auto-retried again.
	QuarantinePermanent QuarantineStatus = "permanently_quarantined"
)

// DefaultMaxRetries is the retry ceiling for quarantined records.
const DefaultMaxRetries = 2

// FieldFailure is one classified per-field failure.
type FieldFailure struct {
	Field          string      `json:"field"`
	Type           FailureType `json:"type"`
	OriginalMethod string      `json:"original_method"`
}

// QuarantineRecord is a withheld candidate record plus everything the retry
// orchestrator needs. It is the only state in the system with a multi-step
// lifecycle; it lives in the durable store between retry attempts.
//
// RetryCount covers all failure types equally, including stale_content:
// staleness is resolved by re-extraction like any other defect, and a
// separate budget would let a record loop forever against a source that
// never refreshes.
type QuarantineRecord struct {
	ID          string           `json:"id"`
	ProfileID   string           `json:"profile_id"`
	ProfileName string           `json:"profile_name,omitempty"`
	Status      QuarantineStatus `json:"status"`

	Record  CandidateRecord `json:"original_data"`
	Verdict GateVerdict     `json:"verdict"`

	Reason            string            `json:"reason"`
	RetryCount        int               `json:"retry_count"`
	MaxRetries        int               `json:"max_retries"`
	Failures          []FieldFailure    `json:"failures"`
	NextStrategies    map[string]string `json:"next_strategies,omitempty"`
	OverallConfidence float64           `json:"overall_confidence"`

	// MethodsTried maps field key to every extraction method attempted for
	// it, including the original. The strategy selector excludes these.
	MethodsTried map[string][]string `json:"methods_tried,omitempty"`

	QuarantinedAt time.Time `json:"quarantined_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanRetry reports whether the record still has retry budget.
func (q *QuarantineRecord) CanRetry() bool {
	return q.Status == QuarantineActive && q.RetryCount < q.MaxRetries
}

// Tried returns the methods already attempted for a field.
func (q *QuarantineRecord) Tried(field string) []string {
	if q.MethodsTried == nil {
		return nil
	}
	return q.MethodsTried[field]
}

// RecordAttempt marks a method as tried for a field.
func (q *QuarantineRecord) RecordAttempt(field, method string) {
	if q.MethodsTried == nil {
		q.MethodsTried = make(map[string][]string)
	}
	for _, m := range q.MethodsTried[field] {
		if m == method {
			return
		}
	}
	q.MethodsTried[field] = append(q.MethodsTried[field], method)
}
