package extractor

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/strategy"
	"github.com/sells-group/verify-cli/pkg/reader"
)

var (
	crawlEmailRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	crawlLinkedInRe = regexp.MustCompile(`https?://(?:www\.)?linkedin\.com/in/[A-Za-z0-9\-_%]+`)
)

// SiteCrawler re-fetches the profile's public pages through the reader API.
// Beyond re-extracting mechanical fields, it refreshes the raw source
// content so free-text claims can be re-grounded against current material.
type SiteCrawler struct {
	client reader.Client
}

// NewSiteCrawler creates the site_crawl method.
func NewSiteCrawler(client reader.Client) *SiteCrawler {
	return &SiteCrawler{client: client}
}

func (s *SiteCrawler) Name() string { return strategy.MethodSiteCrawl }

func (s *SiteCrawler) Extract(ctx context.Context, rec *model.CandidateRecord, fields []string) (*Result, error) {
	target := crawlTarget(rec)
	if target == "" {
		return nil, eris.Errorf("extractor: record %s has no crawlable URL", rec.ProfileID)
	}

	page, err := s.client.Read(ctx, target)
	if err != nil {
		return nil, eris.Wrapf(err, "extractor: crawl %s", target)
	}

	result := &Result{
		Fields:        make(map[string]string),
		Evidence:      make(map[string]string),
		SourceContent: page.Content,
	}

	for _, field := range fields {
		switch field {
		case "email":
			if email := firstPersonalEmail(page.Content); email != "" {
				result.Fields[field] = email
				result.Evidence[field] = "found on " + page.URL
			}
		case "linkedin_url":
			if m := crawlLinkedInRe.FindString(page.Content); m != "" {
				result.Fields[field] = m
				result.Evidence[field] = "found on " + page.URL
			}
		case "website":
			result.Fields[field] = page.URL
		default:
			// Free-text and basic fields are not synthesized here; the
			// refreshed source content alone lets them re-verify.
		}
	}

	zap.L().Debug("site crawl extracted",
		zap.String("profile_id", rec.ProfileID),
		zap.String("url", target),
		zap.Int("fields", len(result.Fields)),
		zap.Int("content_len", len(page.Content)),
	)
	return result, nil
}

// crawlTarget picks the best URL to fetch for a record.
func crawlTarget(rec *model.CandidateRecord) string {
	for _, key := range []string{"website", "linkedin_url"} {
		if u := strings.TrimSpace(rec.Fields[key]); u != "" {
			return u
		}
	}
	return ""
}

// firstPersonalEmail returns the first address on the page that is not an
// obvious role account.
func firstPersonalEmail(content string) string {
	for _, m := range crawlEmailRe.FindAllString(content, 10) {
		local := strings.ToLower(strings.SplitN(m, "@", 2)[0])
		switch {
		case strings.HasPrefix(local, "noreply"), strings.HasPrefix(local, "no-reply"),
			strings.HasPrefix(local, "info"), strings.HasPrefix(local, "support"),
			strings.HasPrefix(local, "hello"), strings.HasPrefix(local, "contact"):
			continue
		}
		return m
	}
	return ""
}
