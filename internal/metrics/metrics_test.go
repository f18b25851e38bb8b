package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAttempt(t *testing.T) {
	before := testutil.ToFloat64(generationAttempts.WithLabelValues("test", OutcomeInvalidJSON))
	ObserveAttempt("test", OutcomeInvalidJSON)
	ObserveAttempt("test", OutcomeInvalidJSON)
	after := testutil.ToFloat64(generationAttempts.WithLabelValues("test", OutcomeInvalidJSON))
	if after-before != 2 {
		t.Errorf("attempt counter grew by %v, want 2", after-before)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/problems/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/problems/{id}", "418"))
	req := httptest.NewRequest(http.MethodGet, "/api/problems/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/problems/{id}", "418"))
	if after-before != 1 {
		t.Errorf("request counter grew by %v, want 1", after-before)
	}
}

func TestHandlerExposesGenerationMetrics(t *testing.T) {
	ObserveFailure("grade", "exhausted")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "mathcoach_generation_failures_total") {
		t.Error("metrics output missing generation failures counter")
	}
}
