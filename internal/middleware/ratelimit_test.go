package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/storefront/internal/session"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)

	if cfg.GeneralRate != rate.Limit(2) {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 || cfg.AuthBurst != 10 {
		t.Errorf("bursts = %d/%d", cfg.GeneralBurst, cfg.AuthBurst)
	}
}

func TestRateLimiter_AuthLimitExceeded_Returns429(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: rate.Limit(100), GeneralBurst: 100,
		AuthRate: rate.Limit(0.5), AuthBurst: 2,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.1:5001"
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q, want 2", w.Header().Get("Retry-After"))
	}
	var body ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestRateLimiter_SeparateClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: rate.Limit(0.001), GeneralBurst: 1,
		AuthRate: rate.Limit(0.001), AuthBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for _, addr := range []string{"192.0.2.1:1", "192.0.2.2:1"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", addr, w.Code)
		}
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
	if rl.AuthLimiterCount() != 0 {
		t.Errorf("AuthLimiterCount = %d, want 0", rl.AuthLimiterCount())
	}
}

func TestRateLimiter_NewSession_KeysByRemoteAddr(t *testing.T) {
	var key string
	handler := NewSessionMiddleware(newTestBackend(t), SessionConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key = clientKey(r, true)
		}),
	)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if key != "ip:192.0.2.9" {
		t.Errorf("key = %q, want ip-based key for a freshly issued session", key)
	}
}

func TestRateLimiter_EstablishedSession_KeysBySessionForGeneralOnly(t *testing.T) {
	backend := newTestBackend(t)
	sid := strings.Repeat("cd", 32)
	backend.Set(context.Background(), sid, session.KeyAccessToken, "a1")

	var generalKey, authKey string
	handler := NewSessionMiddleware(backend, SessionConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			generalKey = clientKey(r, true)
			authKey = clientKey(r, false)
		}),
	)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4000"
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sid})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if generalKey != "sid:"+sid {
		t.Errorf("general key = %q, want sid-based key", generalKey)
	}
	if authKey != "ip:192.0.2.9" {
		t.Errorf("auth key = %q, want ip-based key", authKey)
	}
}

func TestRateLimiter_CookielessLogins_ShareOneBucketPerIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: rate.Limit(100), GeneralBurst: 100,
		AuthRate: rate.Limit(2.0 / 60.0), AuthBurst: 2,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := NewSessionMiddleware(newTestBackend(t), SessionConfig{})(
		rl.AuthMiddleware()(okHandler()),
	)

	limited := 0
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	if limited != 18 {
		t.Errorf("429 responses = %d, want 18", limited)
	}
	if rl.AuthLimiterCount() != 1 {
		t.Errorf("AuthLimiterCount = %d, want 1", rl.AuthLimiterCount())
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: rate.Limit(1), GeneralBurst: 1,
		AuthRate: rate.Limit(1), AuthBurst: 1,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	rl.general.get("ip:192.0.2.1")
	rl.general.limiters["ip:192.0.2.1"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.auth.get("ip:192.0.2.2")

	rl.cleanup()

	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("idle general entry should be evicted")
	}
	if rl.AuthLimiterCount() != 1 {
		t.Errorf("recent auth entry should remain")
	}
}
