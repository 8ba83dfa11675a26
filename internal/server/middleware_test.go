package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"pushdeploy/internal/project"
)

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 2)

	a := rl.GetLimiter("10.0.0.1")
	if a != rl.GetLimiter("10.0.0.1") {
		t.Error("same IP should share a limiter")
	}
	if a == rl.GetLimiter("10.0.0.2") {
		t.Error("different IPs should get separate limiters")
	}

	if !a.Allow() || !a.Allow() {
		t.Fatal("burst should be allowed")
	}
	if a.Allow() {
		t.Error("request beyond burst should be rejected")
	}
	if !rl.GetLimiter("10.0.0.2").Allow() {
		t.Error("other IP should not be affected")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.1:51234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	const limit = 3
	handler := NewRateLimitMiddleware("test", limit, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Different source ports of one host share the budget
	for i := 0; i < limit; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:" + string(rune('1'+i)) + "000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:9999"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after the burst, got %d", rr.Code)
	}
}

func TestRouter_RateLimitedOutsideTestMode(t *testing.T) {
	registry := project.NewRegistry(map[string]*project.Project{"test-project": testProject(t)})
	server := NewServer(registry, &fakeDeployer{}, "projects.yaml", testLogger(), false)
	router := server.Router()

	limited := false
	for i := 0; i < WebhookRateLimit+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook/unknown", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Errorf("expected webhook requests to be rate limited after %d requests", WebhookRateLimit)
	}
}

func TestHTTPServer_WriteTimeoutCoversDeployments(t *testing.T) {
	long := testProject(t)
	long.Commands = [][]string{{"a"}, {"b"}}
	long.CommandTimeout = 10 * time.Minute
	registry := project.NewRegistry(map[string]*project.Project{"long": long})
	server := NewServer(registry, &fakeDeployer{}, "projects.yaml", testLogger(), true)

	srv := server.HTTPServer("127.0.0.1:0")
	if srv.WriteTimeout < 2*long.CommandTimeout {
		t.Errorf("WriteTimeout = %s, shorter than the longest deployment", srv.WriteTimeout)
	}

	// One deployment running and one waiting on the project lock.
	deployment := registry.MaxCommandTimeout()
	if want := 2*deployment + deployMargin; srv.WriteTimeout < want {
		t.Errorf("WriteTimeout = %s, want at least %s for a request waiting on the lock", srv.WriteTimeout, want)
	}

	empty := NewServer(project.NewRegistry(nil), &fakeDeployer{}, "projects.yaml", testLogger(), true)
	if got := empty.HTTPServer(":0").WriteTimeout; got != HTTPWriteTimeout {
		t.Errorf("WriteTimeout = %s, want default %s", got, HTTPWriteTimeout)
	}
}
