package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/services/health"
	"docrecon-backend/internal/shared/config"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterDeps{Config: config.Config{}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected health response %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "batches_submitted_total") {
		t.Fatalf("unexpected metrics response %d", resp.Code)
	}
}

func TestRouterHealthReportsUnavailableDependency(t *testing.T) {
	svc := health.NewService()
	svc.Register("db", func(ctx context.Context) error { return errors.New("down") })
	router := NewRouter(RouterDeps{Health: svc})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestRouterMountsDocumentRoutes(t *testing.T) {
	svc := &documents.Service{Repo: documents.NewMemoryRepo()}
	router := NewRouter(RouterDeps{DocumentHandler: documents.NewHandler(svc)})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
