package verify

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/textnorm"
)

// Layer-2 tuning. Quotes shorter than minQuoteLen normalized characters are
// too short to meaningfully verify and are skipped as unknown.
const (
	minQuoteLen         = 20
	similarityThreshold = 0.75
	penaltyValueOnly    = 0.10
	penaltyUnsupported  = 0.30
)

// Grounder is Layer 2: confirms claimed quotations actually occur in the raw
// source material. It only applies to free-text fields; identifier fields
// copied from structured sources have nothing to ground.
type Grounder struct {
	fields *model.FieldRegistry
}

// NewGrounder creates a source-grounding verifier.
func NewGrounder(fields *model.FieldRegistry) *Grounder {
	return &Grounder{fields: fields}
}

// GroundRecord verifies every eligible field verdict in place. Fields that
// already failed Layer 1 are left alone; grounding them has no decision
// value.
func (g *Grounder) GroundRecord(rec *model.CandidateRecord, verdicts map[string]model.FieldVerdict) {
	if strings.TrimSpace(rec.RawSourceContent) == "" {
		return
	}
	source := textnorm.Fold(rec.RawSourceContent)

	for key, v := range verdicts {
		spec := g.fields.ByKey(key)
		if spec == nil || !spec.FreeText() {
			continue
		}
		if v.Status != model.FieldPassed && v.Status != model.FieldAutoFixed {
			continue
		}
		verdicts[key] = g.groundField(v, rec.Evidence(key), source)
	}
}

// groundField applies the five-step grounding algorithm to one verdict.
func (g *Grounder) groundField(v model.FieldVerdict, quote, foldedSource string) model.FieldVerdict {
	foldedQuote := textnorm.Fold(quote)
	if len([]rune(foldedQuote)) < minQuoteLen {
		v.SourceVerified = model.TriUnknown
		return v
	}

	// Exact substring after identical normalization: verified, no penalty.
	if strings.Contains(foldedSource, foldedQuote) {
		v.SourceVerified = model.TriTrue
		return v
	}

	// Approximate match against source windows.
	if bestWindowSimilarity(foldedQuote, foldedSource) >= similarityThreshold {
		v.SourceVerified = model.TriTrue
		return v
	}

	// The quote is bogus but the value itself appears verbatim: accept with
	// a small penalty.
	if foldedValue := textnorm.Fold(v.Value()); foldedValue != "" && strings.Contains(foldedSource, foldedValue) {
		v.SourceVerified = model.TriTrue
		v.Confidence *= 1 - penaltyValueOnly
		return v
	}

	v.SourceVerified = model.TriFalse
	v.Status = model.FieldFailed
	v.Issues = append(v.Issues, IssueUnsupportedClaim)
	v.Confidence *= 1 - penaltyUnsupported
	return v
}

// bestWindowSimilarity slides a quote-sized window over the source and
// returns the highest normalized Levenshtein similarity found. Stride is a
// quarter window so near-misses cannot fall between samples.
func bestWindowSimilarity(quote, source string) float64 {
	q := []rune(quote)
	s := []rune(source)

	if len(s) <= len(q) {
		return similarity(quote, source)
	}

	stride := len(q) / 4
	if stride < 1 {
		stride = 1
	}

	best := 0.0
	for i := 0; i+len(q) <= len(s); i += stride {
		sim := similarity(quote, string(s[i:i+len(q)]))
		if sim > best {
			best = sim
			if best >= similarityThreshold {
				return best
			}
		}
	}
	return best
}

// similarity converts Levenshtein distance to a 0..1 score.
func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 && lb == 0 {
		return 1
	}
	max := la
	if lb > max {
		max = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(max)
}
