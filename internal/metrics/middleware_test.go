package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsStatusAndRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.Get("/v1/run", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	before503 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "503"))
	before200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))

	for _, path := range []string{"/readyz", "/v1/run", "/v1/run"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, before503+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "503")))
	// Handlers that never call WriteHeader count as 200.
	require.Equal(t, before200+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
