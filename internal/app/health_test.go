package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, path := range []string{"/api/health", "/health"} {
		rr := env.do(t, http.MethodGet, path, "", nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
		if ok := decode(t, rr)["ok"]; ok != true {
			t.Fatalf("%s: expected ok=true, got %v", path, ok)
		}
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	env := newTestEnv(t, testConfig(), WithReadinessCheck("redis", func(context.Context) error { return nil }))

	rr := env.do(t, http.MethodGet, "/api/ready", "", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	response := decode(t, rr)
	if response["status"] != "ready" {
		t.Fatalf("expected status=ready, got %v", response["status"])
	}
	checks, ok := response["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks object, got %v", response["checks"])
	}
	for _, name := range []string{"database", "redis", "search"} {
		check, ok := checks[name].(map[string]any)
		if !ok || check["status"] != "ok" {
			t.Fatalf("expected %s status=ok, got %v", name, checks[name])
		}
	}
	if checks["search"].(map[string]any)["backend"] != "sql" {
		t.Fatalf("expected sql search backend, got %v", checks["search"])
	}
}

func TestReadyEndpoint_DependencyFailure(t *testing.T) {
	env := newTestEnv(t, testConfig(), WithReadinessCheck("redis", func(context.Context) error {
		return errors.New("connection refused")
	}))

	rr := env.do(t, http.MethodGet, "/api/ready", "", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	response := decode(t, rr)
	if response["ok"] != false || response["status"] != "not_ready" {
		t.Fatalf("unexpected response: %v", response)
	}
	redis := response["checks"].(map[string]any)["redis"].(map[string]any)
	if redis["status"] != "error" || redis["error"] != "connection refused" {
		t.Fatalf("unexpected redis check: %v", redis)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rr := env.do(t, http.MethodGet, "/api/health", "", nil, map[string]string{"X-Request-ID": "req-123"})
	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}

	rr = env.do(t, http.MethodOptions, "/api/pedidos", "", nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header: %v", rr.Header())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}
