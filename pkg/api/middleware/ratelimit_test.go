package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RateLimit(rl)(handler)

	// Burst of 2 is allowed, the third request is throttled.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
		req.RemoteAddr = "10.0.0.1:50000"
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %v, want %v", i+1, w.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("throttled request status = %v, want %v", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("throttled response missing Retry-After header")
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RateLimit(rl)(handler)

	// Exhaust client A's budget.
	reqA := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	reqA.RemoteAddr = "10.0.0.1:50000"
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, reqA)
	if w.Code != http.StatusOK {
		t.Fatalf("client A first request status = %v, want %v", w.Code, http.StatusOK)
	}

	// Client B has its own bucket.
	reqB := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	reqB.RemoteAddr = "10.0.0.2:50000"
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, reqB)
	if w.Code != http.StatusOK {
		t.Errorf("client B status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestRateLimit_SkipsHealthEndpoints(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RateLimit(rl)(handler)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:50000"
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("health request %d status = %v, want %v", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr", "10.0.0.1:50000", "", "10.0.0.1"},
		{"forwarded single", "10.0.0.1:50000", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:50000", "203.0.113.7, 10.0.0.1", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientKey(req); got != tt.want {
				t.Errorf("clientKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
