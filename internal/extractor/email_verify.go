package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/strategy"
	"github.com/sells-group/verify-cli/pkg/emailcheck"
)

// EmailVerifier resolves identifier fields through the contact verification
// API: confirm the existing address if one is present, otherwise look one up
// from the profile name and company domain.
type EmailVerifier struct {
	client emailcheck.Client
}

// NewEmailVerifier creates the email_verify method.
func NewEmailVerifier(client emailcheck.Client) *EmailVerifier {
	return &EmailVerifier{client: client}
}

func (e *EmailVerifier) Name() string { return strategy.MethodEmailVerify }

func (e *EmailVerifier) Extract(ctx context.Context, rec *model.CandidateRecord, fields []string) (*Result, error) {
	result := &Result{
		Fields:   make(map[string]string),
		Evidence: make(map[string]string),
	}

	for _, field := range fields {
		if field != "email" {
			continue
		}

		email, evidence, err := e.resolve(ctx, rec)
		if err != nil {
			return nil, err
		}
		if email == "" {
			zap.L().Debug("email_verify found no deliverable address",
				zap.String("profile_id", rec.ProfileID))
			continue
		}
		result.Fields[field] = email
		result.Evidence[field] = evidence
	}

	return result, nil
}

func (e *EmailVerifier) resolve(ctx context.Context, rec *model.CandidateRecord) (email, evidence string, err error) {
	// Confirm the existing candidate first; a deliverable personal address
	// needs no lookup.
	if candidate := strings.TrimSpace(rec.Fields["email"]); candidate != "" && strings.Contains(candidate, "@") {
		vr, err := e.client.Verify(ctx, candidate)
		if err != nil {
			return "", "", eris.Wrap(err, "extractor: verify candidate email")
		}
		if vr.Deliverable && !vr.RoleAccount && !vr.Disposable {
			return vr.Email, fmt.Sprintf("verified deliverable, score %.2f", vr.Score), nil
		}
	}

	domain := companyDomain(rec)
	if domain == "" || rec.ProfileName == "" {
		return "", "", nil
	}

	lr, err := e.client.Lookup(ctx, rec.ProfileName, domain)
	if err != nil {
		return "", "", eris.Wrap(err, "extractor: lookup email")
	}
	if lr.Email == "" {
		return "", "", nil
	}
	return lr.Email, fmt.Sprintf("lookup at %s, confidence %.2f", domain, lr.Confidence), nil
}

// companyDomain derives a lookup domain from the record's URL fields.
func companyDomain(rec *model.CandidateRecord) string {
	for _, key := range []string{"website", "linkedin_url"} {
		raw := strings.TrimSpace(rec.Fields[key])
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.TrimPrefix(u.Hostname(), "www.")
		// A LinkedIn profile URL names the network, not the company.
		if host == "" || strings.HasSuffix(host, "linkedin.com") {
			continue
		}
		return host
	}
	return ""
}
