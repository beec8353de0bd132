// Package verify implements the three-layer verification gate: deterministic
// field checks, source grounding, and the optional model judge.
package verify

import (
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/textnorm"
)

// Issue codes attached to field verdicts.
const (
	IssuePlaceholder      = "placeholder"
	IssueSuspiciousValue  = "suspicious_value"
	IssueFieldSwap        = "field_swap"
	IssueTruncated        = "truncated"
	IssueEncodingRepaired = "encoding_repaired"
	IssueInvalidFormat    = "invalid_format"
	IssueEmailInvalid     = "email_invalid"
	IssueUnsupportedClaim = "unsupported_claim"
	IssueJudgeRejected    = "judge_rejected"
	IssueJudgeUnavailable = "judge_unavailable"
)

// Confidence multipliers applied by Layer 1.
const (
	confAutoFixed  = 0.95
	confSwapped    = 0.90
	confSuspicious = 0.50
	confFailed     = 0.0
)

var (
	emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

	// placeholders are tokens extractors emit instead of admitting defeat.
	placeholders = map[string]bool{
		"n/a": true, "na": true, "-": true, "--": true, "tbd": true,
		"none": true, "null": true, "nil": true, "unknown": true,
		"not available": true, "not found": true,
	}

	// suspiciousLocalParts are role or throwaway mailbox prefixes that are
	// format-valid but not a person's contact address.
	suspiciousLocalParts = []string{
		"noreply", "no-reply", "donotreply", "do-not-reply",
		"test", "admin", "webmaster", "postmaster", "example", "spam",
	}
)

// Checker is Layer 1: rule-based validation with automatic repair.
type Checker struct {
	fields *model.FieldRegistry
}

// NewChecker creates a deterministic checker over the given field set.
func NewChecker(fields *model.FieldRegistry) *Checker {
	return &Checker{fields: fields}
}

// CheckRecord evaluates every attempted field of a record, including
// cross-field swap repair, and returns one verdict per field.
func (c *Checker) CheckRecord(rec *model.CandidateRecord) map[string]model.FieldVerdict {
	verdicts := make(map[string]model.FieldVerdict, len(rec.Fields))

	for key, raw := range rec.Fields {
		spec := c.fields.ByKey(key)
		if spec == nil {
			zap.L().Debug("verify: skipping unknown field",
				zap.String("profile_id", rec.ProfileID),
				zap.String("field", key),
			)
			continue
		}
		verdicts[key] = c.CheckField(*spec, raw)
	}

	// Required fields the extractor claimed to populate but omitted entirely.
	for _, f := range c.fields.Fields {
		if !f.Required {
			continue
		}
		if _, ok := verdicts[f.Key]; !ok {
			verdicts[f.Key] = model.FieldVerdict{
				Field:          f.Key,
				Status:         model.FieldMissing,
				SourceVerified: model.TriUnknown,
				Confidence:     1.0,
			}
		}
	}

	c.repairSwaps(verdicts)
	return verdicts
}

// CheckField evaluates a single field value in isolation.
func (c *Checker) CheckField(spec model.FieldSpec, raw string) model.FieldVerdict {
	v := model.FieldVerdict{
		Field:          spec.Key,
		Status:         model.FieldPassed,
		Original:       raw,
		SourceVerified: model.TriUnknown,
		Confidence:     1.0,
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		v.Status = model.FieldMissing
		return v
	}

	if placeholders[textnorm.Fold(trimmed)] {
		return failed(v, IssuePlaceholder)
	}

	// Encoding repair runs before format checks so a repaired value can
	// still validate.
	value := trimmed
	if repaired := textnorm.RepairEncoding(trimmed); repaired != trimmed {
		value = repaired
		v.Fixed = repaired
		v.Status = model.FieldAutoFixed
		v.Issues = append(v.Issues, IssueEncodingRepaired)
		v.Confidence = confAutoFixed
	}

	switch spec.Category {
	case model.CategoryIdentifier:
		if !emailRe.MatchString(value) {
			return failed(v, IssueEmailInvalid)
		}
		if local := strings.ToLower(strings.SplitN(value, "@", 2)[0]); isSuspiciousLocal(local) {
			v.Status = model.FieldFailed
			v.Issues = append(v.Issues, IssueSuspiciousValue)
			v.Confidence = confSuspicious
			return v
		}
	case model.CategoryURL:
		if !urlShaped(value) {
			return failed(v, IssueInvalidFormat)
		}
	case model.CategoryFreeText:
		if textnorm.LooksTruncated(value) {
			if cut := textnorm.TruncateSafe(value, safeCutLen(value)); cut != value && !textnorm.LooksTruncated(cut) {
				v.Fixed = cut
				v.Status = model.FieldAutoFixed
				v.Issues = append(v.Issues, IssueTruncated)
				v.Confidence = confAutoFixed
			} else {
				return failed(v, IssueTruncated)
			}
		}
	}

	return v
}

// repairSwaps detects a URL-shaped value in the identifier field paired with
// an email-shaped value in a URL field, swaps them, and re-validates both.
func (c *Checker) repairSwaps(verdicts map[string]model.FieldVerdict) {
	for idKey, idV := range verdicts {
		idSpec := c.fields.ByKey(idKey)
		if idSpec == nil || idSpec.Category != model.CategoryIdentifier {
			continue
		}
		if idV.Status != model.FieldFailed || !urlShaped(idV.Original) {
			continue
		}
		for urlKey, urlV := range verdicts {
			urlSpec := c.fields.ByKey(urlKey)
			if urlSpec == nil || urlSpec.Category != model.CategoryURL {
				continue
			}
			if !emailRe.MatchString(strings.TrimSpace(urlV.Original)) {
				continue
			}

			email := strings.TrimSpace(urlV.Original)
			link := strings.TrimSpace(idV.Original)

			reID := c.CheckField(*idSpec, email)
			reURL := c.CheckField(*urlSpec, link)
			if reID.Status == model.FieldFailed || reURL.Status == model.FieldFailed {
				continue
			}

			verdicts[idKey] = swapped(idV, email)
			verdicts[urlKey] = swapped(urlV, link)
			return
		}
	}
}

func swapped(v model.FieldVerdict, fixed string) model.FieldVerdict {
	v.Status = model.FieldAutoFixed
	v.Fixed = fixed
	v.Issues = []string{IssueFieldSwap}
	v.Confidence = confSwapped
	return v
}

func failed(v model.FieldVerdict, issue string) model.FieldVerdict {
	v.Status = model.FieldFailed
	v.Issues = append(v.Issues, issue)
	v.Confidence = confFailed
	return v
}

func isSuspiciousLocal(local string) bool {
	for _, p := range suspiciousLocalParts {
		if local == p || strings.HasPrefix(local, p+".") || strings.HasPrefix(local, p+"+") {
			return true
		}
	}
	return false
}

func urlShaped(s string) bool {
	if !strings.Contains(s, ".") {
		return false
	}
	// An email parses as a URL with userinfo; rule it out first.
	if emailRe.MatchString(s) {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		// Bare domains like example.com/path are still URL-shaped.
		u, err = url.Parse("https://" + s)
		if err != nil {
			return false
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	return strings.Contains(host, ".") && !strings.Contains(host, "@")
}

// safeCutLen picks the truncation window for a trailing-garbage repair: just
// short of the full value so TruncateSafe lands on the last complete unit.
func safeCutLen(s string) int {
	n := len([]rune(s))
	if n <= 1 {
		return n
	}
	return n - 1
}
