package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
)

func TestCheckFieldEmail(t *testing.T) {
	c := NewChecker(model.DefaultRegistry())
	spec := model.FieldSpec{Key: "email", Category: model.CategoryIdentifier, Critical: true, Required: true}

	t.Run("valid", func(t *testing.T) {
		v := c.CheckField(spec, "jane.doe@example.com")
		assert.Equal(t, model.FieldPassed, v.Status)
		assert.Empty(t, v.Issues)
		assert.Equal(t, 1.0, v.Confidence)
	})

	t.Run("not an email", func(t *testing.T) {
		v := c.CheckField(spec, "notanemail")
		assert.Equal(t, model.FieldFailed, v.Status)
		assert.Contains(t, v.Issues, IssueEmailInvalid)
		assert.Equal(t, 0.0, v.Confidence)
	})

	t.Run("placeholder", func(t *testing.T) {
		v := c.CheckField(spec, "N/A")
		assert.Equal(t, model.FieldFailed, v.Status)
		assert.Contains(t, v.Issues, IssuePlaceholder)
	})

	t.Run("suspicious local part", func(t *testing.T) {
		v := c.CheckField(spec, "noreply@bigcorp.com")
		assert.Equal(t, model.FieldFailed, v.Status)
		assert.Contains(t, v.Issues, IssueSuspiciousValue)
		assert.Equal(t, confSuspicious, v.Confidence)
	})

	t.Run("empty", func(t *testing.T) {
		v := c.CheckField(spec, "  ")
		assert.Equal(t, model.FieldMissing, v.Status)
	})
}

func TestCheckFieldURL(t *testing.T) {
	c := NewChecker(model.DefaultRegistry())
	spec := model.FieldSpec{Key: "website", Category: model.CategoryURL}

	for _, tc := range []struct {
		name  string
		value string
		ok    bool
	}{
		{"full url", "https://example.com/about", true},
		{"bare domain", "example.com", true},
		{"bare domain with path", "acme.io/team", true},
		{"email is not a url", "jane@example.com", false},
		{"no dot", "localhost", false},
		{"wrong scheme", "ftp://example.com", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v := c.CheckField(spec, tc.value)
			if tc.ok {
				assert.Equal(t, model.FieldPassed, v.Status)
			} else {
				assert.Equal(t, model.FieldFailed, v.Status)
				assert.Contains(t, v.Issues, IssueInvalidFormat)
			}
		})
	}
}

func TestCheckFieldEncodingRepair(t *testing.T) {
	c := NewChecker(model.DefaultRegistry())
	spec := model.FieldSpec{Key: "title", Category: model.CategoryBasic}

	v := c.CheckField(spec, "VP of Engineering â€“ Platform")
	require.Equal(t, model.FieldAutoFixed, v.Status)
	assert.Contains(t, v.Issues, IssueEncodingRepaired)
	assert.Equal(t, "VP of Engineering - Platform", v.Fixed)
	assert.Equal(t, "VP of Engineering â€“ Platform", v.Original)
	assert.Equal(t, confAutoFixed, v.Confidence)
}

func TestCheckFieldTruncatedFreeText(t *testing.T) {
	c := NewChecker(model.DefaultRegistry())
	spec := model.FieldSpec{Key: "bio", Category: model.CategoryFreeText}

	t.Run("complete prose passes", func(t *testing.T) {
		v := c.CheckField(spec, "Leads platform engineering at a fintech startup.")
		assert.Equal(t, model.FieldPassed, v.Status)
	})

	t.Run("dangling sentence repaired", func(t *testing.T) {
		v := c.CheckField(spec, "Leads platform engineering at a fintech startup focused on data pipelines and")
		require.Equal(t, model.FieldAutoFixed, v.Status)
		assert.Contains(t, v.Issues, IssueTruncated)
		require.NotEmpty(t, v.Fixed)
		assert.Less(t, len(v.Fixed), len(v.Original))
	})
}

func TestCheckRecord(t *testing.T) {
	c := NewChecker(model.DefaultRegistry())

	t.Run("unknown fields skipped", func(t *testing.T) {
		rec := &model.CandidateRecord{
			ProfileID:        "p1",
			ExtractionMethod: "site_crawl",
			Fields:           map[string]string{"favorite_color": "blue", "name": "Jane Doe"},
		}
		verdicts := c.CheckRecord(rec)
		assert.NotContains(t, verdicts, "favorite_color")
		assert.Contains(t, verdicts, "name")
	})

	t.Run("required field absent gets missing verdict", func(t *testing.T) {
		rec := &model.CandidateRecord{
			ProfileID:        "p2",
			ExtractionMethod: "site_crawl",
			Fields:           map[string]string{"name": "Jane Doe"},
		}
		verdicts := c.CheckRecord(rec)
		require.Contains(t, verdicts, "email")
		assert.Equal(t, model.FieldMissing, verdicts["email"].Status)
	})
}

func TestRepairSwaps(t *testing.T) {
	c := NewChecker(model.DefaultRegistry())

	rec := &model.CandidateRecord{
		ProfileID:        "p3",
		ExtractionMethod: "site_crawl",
		Fields: map[string]string{
			"email":   "https://acme.io/team",
			"website": "jane@acme.io",
			"name":    "Jane Doe",
		},
	}
	verdicts := c.CheckRecord(rec)

	email := verdicts["email"]
	require.Equal(t, model.FieldAutoFixed, email.Status)
	assert.Equal(t, "jane@acme.io", email.Fixed)
	assert.Equal(t, []string{IssueFieldSwap}, email.Issues)
	assert.Equal(t, confSwapped, email.Confidence)

	website := verdicts["website"]
	require.Equal(t, model.FieldAutoFixed, website.Status)
	assert.Equal(t, "https://acme.io/team", website.Fixed)
	assert.Equal(t, []string{IssueFieldSwap}, website.Issues)
}

func TestRepairSwapsDeclinesSuspiciousEmail(t *testing.T) {
	c := NewChecker(model.DefaultRegistry())

	// The candidate swap value would fail validation itself; leave both as-is.
	rec := &model.CandidateRecord{
		ProfileID:        "p4",
		ExtractionMethod: "site_crawl",
		Fields: map[string]string{
			"email":   "https://acme.io",
			"website": "noreply@acme.io",
			"name":    "Jane Doe",
		},
	}
	verdicts := c.CheckRecord(rec)

	assert.Equal(t, model.FieldFailed, verdicts["email"].Status)
	assert.NotContains(t, verdicts["email"].Issues, IssueFieldSwap)
}

func TestURLShaped(t *testing.T) {
	assert.True(t, urlShaped("https://example.com"))
	assert.True(t, urlShaped("example.com/a/b"))
	assert.False(t, urlShaped("jane@example.com"))
	assert.False(t, urlShaped("plain text"))
}
