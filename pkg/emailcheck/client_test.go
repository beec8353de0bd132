package emailcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/resilience"
)

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/verify", r.URL.Path)
		assert.Equal(t, "jane@acme.io", r.URL.Query().Get("email"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"email":"jane@acme.io","deliverable":true,"score":0.97}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	result, err := c.Verify(context.Background(), "jane@acme.io")
	require.NoError(t, err)
	assert.True(t, result.Deliverable)
	assert.InDelta(t, 0.97, result.Score, 1e-9)
}

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/lookup", r.URL.Path)
		assert.Equal(t, "Jane Doe", r.URL.Query().Get("name"))
		assert.Equal(t, "acme.io", r.URL.Query().Get("domain"))
		w.Write([]byte(`{"email":"jane.doe@acme.io","confidence":0.88,"sources":["acme.io/team"]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	result, err := c.Lookup(context.Background(), "Jane Doe", "acme.io")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@acme.io", result.Email)
	assert.InDelta(t, 0.88, result.Confidence, 1e-9)
}

func TestVerifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Verify(context.Background(), "jane@acme.io")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.True(t, resilience.IsTransient(err), "5xx is retryable")
}
