// Package emailcheck provides a client for the contact verification API
// used by the email_verify extraction method.
package emailcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/verify-cli/internal/resilience"
)

// Client defines the contact verification operations.
type Client interface {
	// Verify checks deliverability of a single address.
	Verify(ctx context.Context, email string) (*VerifyResult, error)
	// Lookup finds a deliverable address for a person at a domain.
	Lookup(ctx context.Context, name, domain string) (*LookupResult, error)
}

// VerifyResult is the parsed verification response for one address.
type VerifyResult struct {
	Email       string  `json:"email"`
	Deliverable bool    `json:"deliverable"`
	Disposable  bool    `json:"disposable"`
	RoleAccount bool    `json:"role_account"`
	Score       float64 `json:"score"`
}

// LookupResult is a discovered address with its supporting sources.
type LookupResult struct {
	Email      string   `json:"email"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a contact verification client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.emailcheck.io",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Verify(ctx context.Context, email string) (*VerifyResult, error) {
	var result VerifyResult
	endpoint := fmt.Sprintf("%s/v1/verify?email=%s", c.baseURL, url.QueryEscape(email))
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, eris.Wrapf(err, "emailcheck: verify %s", email)
	}
	return &result, nil
}

func (c *httpClient) Lookup(ctx context.Context, name, domain string) (*LookupResult, error) {
	var result LookupResult
	endpoint := fmt.Sprintf("%s/v1/lookup?name=%s&domain=%s",
		c.baseURL, url.QueryEscape(name), url.QueryEscape(domain))
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, eris.Wrapf(err, "emailcheck: lookup %s at %s", name, domain)
	}
	return &result, nil
}

func (c *httpClient) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return eris.Wrap(json.Unmarshal(body, out), "unmarshal response")
}
