package classify

import (
	"strings"
	"time"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/verify"
)

// Classifier assigns exactly one failure type to every detected field
// failure of a quarantined verdict. Classification is deterministic: the
// same verdict always yields the same types.
type Classifier struct {
	fields  *model.FieldRegistry
	decay   DecayConfig
	nowFunc func() time.Time
}

// NewClassifier creates a failure classifier.
func NewClassifier(fields *model.FieldRegistry, decay DecayConfig) *Classifier {
	return &Classifier{fields: fields, decay: decay, nowFunc: time.Now}
}

// Classify maps each detected field failure of the verdict to a structured
// failure reason. Non-failed fields produce nothing.
func (c *Classifier) Classify(rec *model.CandidateRecord, verdict *model.GateVerdict) []model.FieldFailure {
	var out []model.FieldFailure
	for key, fv := range verdict.Fields {
		if fv.Status != model.FieldFailed {
			continue
		}
		out = append(out, model.FieldFailure{
			Field:          key,
			Type:           c.classifyField(rec, key, fv),
			OriginalMethod: rec.ExtractionMethod,
		})
	}
	return out
}

// classifyField applies the classification rules in priority order.
func (c *Classifier) classifyField(rec *model.CandidateRecord, key string, fv model.FieldVerdict) model.FailureType {
	// A claim contradicted by the source is a fabrication regardless of
	// anything else about the value.
	if fv.SourceVerified == model.TriFalse {
		return model.FailureHallucination
	}

	// Claimed but empty.
	if strings.TrimSpace(fv.Value()) == "" || hasIssue(fv, verify.IssueMissing) {
		return model.FailureMissingData
	}

	// Format-level rejections.
	if hasIssue(fv, verify.IssueEmailInvalid, verify.IssueSuspiciousValue) {
		if spec := c.fields.ByKey(key); spec != nil && spec.Category == model.CategoryIdentifier {
			return model.FailureEmailInvalid
		}
		return model.FailureFormatError
	}
	if hasIssue(fv, verify.IssueInvalidFormat, verify.IssuePlaceholder, verify.IssueTruncated) {
		return model.FailureFormatError
	}

	// The value survived every mechanical check but was still rejected.
	// If the source material has aged past the decay threshold, distrust
	// the content before distrusting the extractor.
	if rec.ContentAsOf != nil && c.decay.Stale(*rec.ContentAsOf, c.nowFunc()) {
		return model.FailureStaleContent
	}

	return model.FailureHallucination
}

func hasIssue(fv model.FieldVerdict, issues ...string) bool {
	for _, have := range fv.Issues {
		for _, want := range issues {
			if have == want {
				return true
			}
		}
	}
	return false
}
