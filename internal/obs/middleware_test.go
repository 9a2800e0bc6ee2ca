package obs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/checkout-pricing/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("checkout", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkouts/abc/scan", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/checkouts/{id}/scan"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/checkouts/{id}/scan", "204"))
	require.Equal(t, float64(1), total)
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestCheckoutMetricsReuseRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewCheckoutMetrics("checkout", registry)
	second := obs.NewCheckoutMetrics("checkout", registry)

	first.Scans.WithLabelValues("true").Inc()
	second.Scans.WithLabelValues("true").Inc()
	require.Equal(t, float64(2), testutil.ToFloat64(first.Scans.WithLabelValues("true")))
}

func TestRequestLoggerWritesRouteAndSession(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/api/v1/checkouts/{sessionID}/quote", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkouts/s-1/quote", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "/api/v1/checkouts/{sessionID}/quote", entry["route"])
	require.Equal(t, "s-1", entry["session_id"])
	require.EqualValues(t, 200, entry["status"])
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{1, 2.5, 10}, obs.ParseBucketsCSV("1, 2.5,,-3,x,10"))
	require.Nil(t, obs.ParseBucketsCSV("  "))
}

func TestRequestLoggerPrefersContextSession(t *testing.T) {
	var buf bytes.Buffer
	handler := obs.RequestLogger{Logger: obs.NewLoggerTo(&buf, "json", "info")}.Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	req = req.WithContext(obs.WithSessionID(context.Background(), "ctx-session"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "ctx-session", entry["session_id"])
	require.Equal(t, "error", entry["level"])
	require.Equal(t, "/scan", entry["route"])
}

func TestTracingMiddlewareNamesServerSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(obs.TracingMiddleware)
	r.Post("/api/v1/checkouts/{sessionID}/scan", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, span := tp.Tracer("test").Start(context.Background(), "HTTP POST")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkouts/abc/scan", nil).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "POST /api/v1/checkouts/{sessionID}/scan", ended[0].Name())
	require.Equal(t, codes.Error, ended[0].Status().Code)
	attrs := map[attribute.Key]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	require.Equal(t, "abc", attrs["checkout.session_id"])
	require.Equal(t, "/api/v1/checkouts/{sessionID}/scan", attrs["http.route"])
}
