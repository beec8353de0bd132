package model

import "time"

// LearningLogEntry is one immutable retry outcome. Entries are append-only
// and never rewritten; they are the sole input to strategy re-ranking.
type LearningLogEntry struct {
	ID            string        `json:"id"`
	ProfileID     string        `json:"profile_id"`
	Field         string        `json:"field"`
	FieldCategory FieldCategory `json:"field_category"`
	FailureType   FailureType   `json:"failure_type"`
	// FailedMethod is the method whose output failed verification.
	FailedMethod string `json:"failed_method"`
	// RetryMethod is the method attempted in response.
	RetryMethod      string      `json:"retry_method"`
	ResultStatus     FieldStatus `json:"result_status"`
	Resolved         bool        `json:"resolved"`
	ResultConfidence float64     `json:"result_confidence"`
	CreatedAt        time.Time   `json:"created_at"`
}

// MethodStats is the aggregated historical performance of one method for a
// (field category, failure type) pair.
type MethodStats struct {
	FieldCategory FieldCategory `json:"field_category"`
	FailureType   FailureType   `json:"failure_type"`
	Method        string        `json:"method"`
	Attempts      int           `json:"attempts"`
	Resolutions   int           `json:"resolutions"`
}

// SuccessRate returns resolutions / attempts, or 0 with no attempts.
func (s MethodStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Resolutions) / float64(s.Attempts)
}
