package verify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
)

// IssueMissing marks a required field the extractor claimed to populate but
// left empty. Unlike plain missing, this is a detected problem.
const IssueMissing = "missing"

const (
	confJudgeRejected = 0.50
	// defaultUnverifiedPenalty is applied to the overall confidence of
	// records written downstream without complete verification.
	defaultUnverifiedPenalty = 0.85
)

// Gate orchestrates Layers 1-3 into one verdict per candidate record.
// It has no side effects beyond the returned verdict; persistence is the
// caller's responsibility.
type Gate struct {
	fields            *model.FieldRegistry
	checker           *Checker
	grounder          *Grounder
	judge             Judge
	unverifiedPenalty float64
	nowFunc           func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithJudge attaches a Layer-3 judge. Without one the gate can only produce
// unverified and quarantined outcomes for judge-eligible records.
func WithJudge(j Judge) GateOption {
	return func(g *Gate) { g.judge = j }
}

// WithUnverifiedPenalty overrides the confidence penalty for unverified
// records.
func WithUnverifiedPenalty(p float64) GateOption {
	return func(g *Gate) { g.unverifiedPenalty = p }
}

// WithNow fixes the verdict timestamp for testing.
func WithNow(now func() time.Time) GateOption {
	return func(g *Gate) { g.nowFunc = now }
}

// NewGate creates a verification gate over the given field set.
func NewGate(fields *model.FieldRegistry, opts ...GateOption) *Gate {
	g := &Gate{
		fields:            fields,
		checker:           NewChecker(fields),
		grounder:          NewGrounder(fields),
		unverifiedPenalty: defaultUnverifiedPenalty,
		nowFunc:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate runs one candidate record through all three layers and decides
// verified / unverified / quarantined. The only error returned is an
// upstream contract violation.
func (g *Gate) Evaluate(ctx context.Context, rec *model.CandidateRecord) (*model.GateVerdict, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	// Layer 1. Auto-fixes are applied before later layers see the value.
	verdicts := g.checker.CheckRecord(rec)

	// A required field the extractor attempted but left empty is a detected
	// problem, unlike one it never attempted.
	for key, v := range verdicts {
		spec := g.fields.ByKey(key)
		if spec == nil || !spec.Required || v.Status != model.FieldMissing {
			continue
		}
		if _, claimed := rec.Fields[key]; claimed {
			v.Status = model.FieldFailed
			v.Issues = append(v.Issues, IssueMissing)
			v.Confidence = confFailed
			verdicts[key] = v
		}
	}

	// Layer 2.
	g.grounder.GroundRecord(rec, verdicts)

	incomplete := g.incompleteBeforeJudge(rec, verdicts)

	// Layer 3 runs only when every field survived Layers 1 and 2 and the
	// judge reports itself available.
	judgeRan := false
	if g.allClean(verdicts) && !incomplete {
		if g.judge != nil && g.judge.Available() {
			judgeRan = true
			incomplete = g.runJudge(ctx, rec, verdicts) || incomplete
		} else {
			incomplete = true
		}
	} else if g.judge == nil || !g.judge.Available() {
		incomplete = true
	}

	verdict := &model.GateVerdict{
		ProfileID:   rec.ProfileID,
		Status:      model.GatePending,
		Fields:      verdicts,
		Provenance:  make(map[string]model.Provenance, len(verdicts)),
		JudgeRan:    judgeRan,
		EvaluatedAt: g.nowFunc(),
	}

	confidence := 1.0
	criticalDetected := false
	anyDetected := false
	for key, v := range verdicts {
		confidence *= v.Confidence
		if v.Detected() {
			anyDetected = true
			if spec := g.fields.ByKey(key); spec != nil && spec.Critical {
				criticalDetected = true
			}
		}
		verdict.Provenance[key] = model.Provenance{
			Source:     rec.ExtractionMethod,
			Evidence:   rec.Evidence(key),
			Confidence: v.Confidence,
		}
	}
	if confidence < 0 {
		confidence = 0
	}

	switch {
	case criticalDetected:
		verdict.Status = model.GateQuarantined
	case anyDetected || incomplete:
		verdict.Status = model.GateUnverified
		confidence *= g.unverifiedPenalty
	default:
		verdict.Status = model.GateVerified
	}
	verdict.Confidence = confidence

	zap.L().Debug("gate verdict",
		zap.String("profile_id", rec.ProfileID),
		zap.String("status", string(verdict.Status)),
		zap.Float64("confidence", verdict.Confidence),
	)

	return verdict, nil
}

// allClean reports whether every field passed or was auto-fixed; missing
// unclaimed fields do not count against cleanliness.
func (g *Gate) allClean(verdicts map[string]model.FieldVerdict) bool {
	for _, v := range verdicts {
		if v.Status == model.FieldFailed {
			return false
		}
	}
	return true
}

// incompleteBeforeJudge reports whether verification is already known to be
// incomplete independent of Layer 3: a free-text field that could not be
// grounded, or a required field the extractor never attempted.
func (g *Gate) incompleteBeforeJudge(rec *model.CandidateRecord, verdicts map[string]model.FieldVerdict) bool {
	hasSource := strings.TrimSpace(rec.RawSourceContent) != ""
	for key, v := range verdicts {
		spec := g.fields.ByKey(key)
		if spec == nil {
			continue
		}
		if v.Status == model.FieldMissing && spec.Required {
			return true
		}
		if spec.FreeText() && (v.Status == model.FieldPassed || v.Status == model.FieldAutoFixed) {
			if !hasSource || v.SourceVerified == model.TriUnknown {
				return true
			}
		}
	}
	return false
}

// runJudge verifies each surviving field with the external judge. Returns
// true when any judge call failed, which leaves verification incomplete
// rather than optimistically passed.
func (g *Gate) runJudge(ctx context.Context, rec *model.CandidateRecord, verdicts map[string]model.FieldVerdict) (incomplete bool) {
	contextText := judgeContext(rec)

	for key, v := range verdicts {
		if v.Status != model.FieldPassed && v.Status != model.FieldAutoFixed {
			continue
		}

		result, err := g.judge.Verify(ctx, key, v.Value(), contextText)
		if err != nil {
			// Fail-cautious: an unreachable or unparsable judge never
			// validates a field. The record degrades to unverified.
			zap.L().Warn("judge unavailable, treating field as unconfirmed",
				zap.String("profile_id", rec.ProfileID),
				zap.String("field", key),
				zap.Error(err),
			)
			v.Issues = append(v.Issues, IssueJudgeUnavailable)
			verdicts[key] = v
			incomplete = true
			continue
		}

		if !result.Passed {
			v.Status = model.FieldFailed
			v.Issues = append(v.Issues, IssueJudgeRejected)
			v.Confidence *= confJudgeRejected
			verdicts[key] = v
		}
	}
	return incomplete
}

// judgeContext assembles the context block handed to the judge: the other
// field values plus a bounded slice of the raw source.
func judgeContext(rec *model.CandidateRecord) string {
	var b strings.Builder
	for k, v := range rec.Fields {
		if strings.TrimSpace(v) == "" {
			continue
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	if src := strings.TrimSpace(rec.RawSourceContent); src != "" {
		b.WriteString("\n--- Source excerpt ---\n")
		if len(src) > 4000 {
			src = src[:4000]
		}
		b.WriteString(src)
	}
	return b.String()
}
