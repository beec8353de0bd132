package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
)

// stubJudge lets gate tests script Layer-3 behavior per field.
type stubJudge struct {
	available bool
	err       error
	rejected  map[string]bool
	calls     int
}

func (s *stubJudge) Available() bool { return s.available }

func (s *stubJudge) Verify(_ context.Context, field, _, _ string) (JudgeResult, error) {
	s.calls++
	if s.err != nil {
		return JudgeResult{}, s.err
	}
	if s.rejected[field] {
		return JudgeResult{Passed: false, Score: 10, Reasoning: "implausible"}, nil
	}
	return JudgeResult{Passed: true, Score: 90, Reasoning: "plausible"}, nil
}

func passingJudge() *stubJudge { return &stubJudge{available: true} }

func cleanRecord() *model.CandidateRecord {
	return &model.CandidateRecord{
		ProfileID:        "p1",
		ProfileName:      "Jane Doe",
		ExtractionMethod: "site_crawl",
		Fields: map[string]string{
			"email":   "jane@acme.io",
			"name":    "Jane Doe",
			"seeking": "Looking to meet infrastructure founders",
		},
		RawSourceContent: groundingSource,
		FieldEvidence: map[string]string{
			"seeking": "looking to meet infrastructure founders and early-stage investors",
		},
	}
}

func TestGateVerified(t *testing.T) {
	gate := NewGate(model.DefaultRegistry(), WithJudge(passingJudge()))

	verdict, err := gate.Evaluate(context.Background(), cleanRecord())
	require.NoError(t, err)

	assert.Equal(t, model.GateVerified, verdict.Status)
	assert.True(t, verdict.JudgeRan)
	assert.Equal(t, 1.0, verdict.Confidence)
	assert.Equal(t, model.TriTrue, verdict.Fields["seeking"].SourceVerified)

	prov, ok := verdict.Provenance["seeking"]
	require.True(t, ok)
	assert.Equal(t, "site_crawl", prov.Source)
	assert.NotEmpty(t, prov.Evidence)
}

func TestGateInvalidEmailQuarantines(t *testing.T) {
	judge := passingJudge()
	gate := NewGate(model.DefaultRegistry(), WithJudge(judge))

	rec := cleanRecord()
	rec.Fields["email"] = "notanemail"

	verdict, err := gate.Evaluate(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, model.GateQuarantined, verdict.Status)
	assert.Contains(t, verdict.Fields["email"].Issues, IssueEmailInvalid)
	assert.Equal(t, 0.0, verdict.Confidence)
	assert.False(t, verdict.JudgeRan)
	assert.Zero(t, judge.calls, "failed records must not reach the judge")
}

func TestGateJudgeUnavailableDegradesToUnverified(t *testing.T) {
	gate := NewGate(model.DefaultRegistry(), WithJudge(&stubJudge{available: false}))

	verdict, err := gate.Evaluate(context.Background(), cleanRecord())
	require.NoError(t, err)

	assert.Equal(t, model.GateUnverified, verdict.Status)
	assert.False(t, verdict.JudgeRan)
	assert.Less(t, verdict.Confidence, 1.0)
}

func TestGateJudgeErrorNeverPasses(t *testing.T) {
	judge := &stubJudge{available: true, err: assert.AnError}
	gate := NewGate(model.DefaultRegistry(), WithJudge(judge))

	verdict, err := gate.Evaluate(context.Background(), cleanRecord())
	require.NoError(t, err)

	assert.Equal(t, model.GateUnverified, verdict.Status)
	assert.True(t, verdict.JudgeRan)

	// The error degrades the record without inventing a detected failure.
	for _, fv := range verdict.Fields {
		assert.NotEqual(t, model.FieldFailed, fv.Status)
	}
	assert.Contains(t, verdict.Fields["email"].Issues, IssueJudgeUnavailable)
}

func TestGateJudgeRejectionOfCriticalFieldQuarantines(t *testing.T) {
	judge := &stubJudge{available: true, rejected: map[string]bool{"email": true}}
	gate := NewGate(model.DefaultRegistry(), WithJudge(judge))

	verdict, err := gate.Evaluate(context.Background(), cleanRecord())
	require.NoError(t, err)

	assert.Equal(t, model.GateQuarantined, verdict.Status)
	assert.Contains(t, verdict.Fields["email"].Issues, IssueJudgeRejected)
}

func TestGateNoJudgeConfigured(t *testing.T) {
	gate := NewGate(model.DefaultRegistry())

	verdict, err := gate.Evaluate(context.Background(), cleanRecord())
	require.NoError(t, err)
	assert.Equal(t, model.GateUnverified, verdict.Status)
}

func TestGateFreeTextWithoutSourceUnverified(t *testing.T) {
	gate := NewGate(model.DefaultRegistry(), WithJudge(passingJudge()))

	rec := cleanRecord()
	rec.RawSourceContent = ""
	rec.FieldEvidence = nil

	verdict, err := gate.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, model.GateUnverified, verdict.Status)
	assert.False(t, verdict.JudgeRan)
}

func TestGateRequiredFieldClaimedEmpty(t *testing.T) {
	gate := NewGate(model.DefaultRegistry(), WithJudge(passingJudge()))

	rec := cleanRecord()
	rec.Fields["email"] = ""

	verdict, err := gate.Evaluate(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, model.GateQuarantined, verdict.Status)
	assert.Contains(t, verdict.Fields["email"].Issues, IssueMissing)
}

func TestGateNonCriticalFailureUnverified(t *testing.T) {
	gate := NewGate(model.DefaultRegistry(), WithJudge(passingJudge()))

	rec := cleanRecord()
	rec.Fields["website"] = "not a url at all"

	verdict, err := gate.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, model.GateUnverified, verdict.Status)
}

func TestGateIdempotent(t *testing.T) {
	gate := NewGate(model.DefaultRegistry(), WithJudge(passingJudge()))

	first, err := gate.Evaluate(context.Background(), cleanRecord())
	require.NoError(t, err)
	second, err := gate.Evaluate(context.Background(), cleanRecord())
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Fields, second.Fields)
}

func TestGateContractViolation(t *testing.T) {
	gate := NewGate(model.DefaultRegistry())

	_, err := gate.Evaluate(context.Background(), &model.CandidateRecord{ProfileID: "p1"})
	assert.Error(t, err)
}
