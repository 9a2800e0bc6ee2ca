package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-pricing/internal/catalog"
	"github.com/noah-isme/checkout-pricing/internal/checkout"
	"github.com/noah-isme/checkout-pricing/internal/config"
	"github.com/noah-isme/checkout-pricing/internal/obs"
)

const adminToken = "test-admin"

type testServer struct {
	handler http.Handler
	mr      *miniredis.Miniredis
}

func newTestServer(t *testing.T, cfg config.Config) testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := prometheus.NewRegistry()
	metrics := obs.NewCheckoutMetrics("test", reg)
	logger := zerolog.Nop()
	catalogSvc := catalog.NewService(catalog.ServiceConfig{
		Cache:   catalog.NewCache(client, time.Hour),
		Strict:  cfg.PricingStrict,
		Logger:  logger,
		Metrics: metrics,
	})
	checkoutSvc := &checkout.Service{
		Catalog: catalogSvc,
		Store:   checkout.NewRedisStore(client),
		Strict:  cfg.PricingStrict,
		TTL:     time.Minute,
		Logger:  logger,
		Metrics: metrics,
	}
	cfg.AdminToken = adminToken
	cfg.SecurityHeaders = true
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ScanRateLimitWindow == 0 {
		cfg.ScanRateLimitWindow = time.Minute
	}
	return testServer{
		handler: newRouter(routerDeps{
			cfg:         &cfg,
			logger:      logger,
			catalog:     catalogSvc,
			checkout:    checkoutSvc,
			redis:       client,
			httpMetrics: obs.NewHTTPMetrics("test", nil, reg),
			metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}),
		mr: mr,
	}
}

func (s testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func loadCatalog(t *testing.T, s testServer) {
	t.Helper()
	raw, err := os.ReadFile("../../testdata/catalog.json")
	require.NoError(t, err)
	rec := s.do(t, http.MethodPost, "/api/v1/catalog", string(raw), map[string]string{"Authorization": "Bearer " + adminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func openSession(t *testing.T, s testServer) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/checkouts", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data checkout.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data.ID
}

func TestCheckoutOverHTTP(t *testing.T) {
	s := newTestServer(t, config.Config{ScanRateLimitMax: 100})
	loadCatalog(t, s)

	rec := s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	id := openSession(t, s)
	base := "/api/v1/checkouts/" + id
	for _, sku := range []string{"1983", "4900", "8873", "6732", "0923", "1983", "1983", "1983"} {
		rec := s.do(t, http.MethodPost, base+"/scan", `{"sku":"`+sku+`"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, base+"/close", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var closed struct {
		Data checkout.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	require.EqualValues(t, 3037, closed.Data.Total)
	require.Equal(t, "30.37", closed.Data.Display)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "test_checkout_quotes_total")
	require.Contains(t, rec.Body.String(), `route="/api/v1/checkouts/{sessionID}/scan"`)
}

func TestCatalogWritesNeedAdminToken(t *testing.T) {
	s := newTestServer(t, config.Config{})
	rec := s.do(t, http.MethodPost, "/api/v1/catalog", `[]`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/items", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScanIdempotencyKey(t *testing.T) {
	s := newTestServer(t, config.Config{ScanRateLimitMax: 100})
	loadCatalog(t, s)
	id := openSession(t, s)
	path := "/api/v1/checkouts/" + id + "/scan"
	headers := map[string]string{"Idempotency-Key": "scan-1"}

	rec := s.do(t, http.MethodPost, path, `{"sku":"8873"}`, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, path, `{"sku":"8873"}`, headers)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/checkouts/"+id+"/quote", "", nil)
	var quoted struct {
		Data checkout.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quoted))
	require.EqualValues(t, 249, quoted.Data.Total)
}

func TestScanRateLimit(t *testing.T) {
	s := newTestServer(t, config.Config{ScanRateLimitMax: 2})
	loadCatalog(t, s)
	id := openSession(t, s)
	path := "/api/v1/checkouts/" + id + "/scan"

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, path, `{"sku":"8873"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.do(t, http.MethodPost, path, `{"sku":"8873"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := openSession(t, s)
	rec = s.do(t, http.MethodPost, "/api/v1/checkouts/"+other+"/scan", `{"sku":"8873"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
