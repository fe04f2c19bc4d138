package devserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"frintab/internal/core"
	"frintab/internal/gateway"
	"frintab/internal/gateway/httpapi"
	"frintab/internal/gateway/memory"
)

func newTestServer(t *testing.T, opts Options) (*Server, *prometheus.Registry) {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost), memory.WithSigningKey([]byte("test-key")))
	s, err := NewServer(store, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, opts.Registry
}

func TestProbes(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rec := httptest.NewRecorder()
		s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "generated when missing")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestSuspiciousRequestsRejected(t *testing.T) {
	s, reg := newTestServer(t, Options{})

	for _, target := range []string{"/.env", "/api/group/my?q=union%20select", "/wp-admin/"} {
		rec := httptest.NewRecorder()
		s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	var got float64
	for _, mf := range families {
		if mf.GetName() == "frintab_devserver_suspicious_requests_total" {
			got = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), got)
}

func TestWriteRateLimit(t *testing.T) {
	s, reg := newTestServer(t, Options{WriteLimit: 2})

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		s.Handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.NotEqual(t, http.StatusTooManyRequests, post())
	assert.NotEqual(t, http.StatusTooManyRequests, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	// reads are never limited
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	families, err := reg.Gather()
	require.NoError(t, err)
	var limited float64
	for _, mf := range families {
		if mf.GetName() == "frintab_devserver_rate_limited_total" {
			limited = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), limited)
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "clients are limited independently")

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.allow("a"))

	now = now.Add(time.Hour)
	assert.Equal(t, 2, rl.cleanupStaleEntries())
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct peer", "203.0.113.7:1000", "", "203.0.113.7"},
		{"untrusted peer ignores forwarded", "203.0.113.7:1000", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy uses forwarded", "10.0.0.2:1000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"garbage forwarded falls back", "127.0.0.1:1000", "not-an-ip", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, extractClientIP(r))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "frintab_devserver_rate_limited_total")
}

// TestGatewayRoundTrip drives the REST client against the served routes.
func TestGatewayRoundTrip(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Handler)
	defer srv.Close()

	var token string
	client, err := httpapi.New(httpapi.Options{
		BaseURL:    srv.URL + memory.BasePath,
		HTTPClient: srv.Client(),
		Tokens: gateway.TokenFunc(func(context.Context) (string, error) {
			return token, nil
		}),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Register(ctx, "Ani", "ani@example.com", "secret"))
	res, err := client.Login(ctx, core.Credentials{Email: "ani@example.com", Password: "secret"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	token = res.Token

	g, err := client.CreateGroup(ctx, "Kos Bersama")
	require.NoError(t, err)

	_, err = client.RecordTransaction(ctx, gateway.NewTransaction{
		GroupID: g.ID,
		Amount:  decimal.NewFromInt(150000),
		Type:    core.Income,
		Note:    "Gaji",
	})
	require.NoError(t, err)

	page, err := client.GetTransactionPage(ctx, g.ID, 1, 5)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.True(t, decimal.NewFromInt(150000).Equal(page.Group.TotalBalance))

	token = ""
	_, err = client.ListMyGroups(ctx)
	require.ErrorIs(t, err, core.ErrUnauthenticated)
}
