package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"x-forwarded-for single", "192.168.1.1", "", "", "192.168.1.1"},
		// Only the first entry is the original client.
		{"x-forwarded-for chain", "192.168.1.1, 10.0.0.1, 172.16.0.1", "", "", "192.168.1.1"},
		{"x-forwarded-for spaces", "  192.168.1.1  ,  10.0.0.1  ", "", "", "192.168.1.1"},
		{"x-real-ip", "", "  192.168.1.1  ", "", "192.168.1.1"},
		{"remote addr", "", "", "127.0.0.1:12345", "127.0.0.1:12345"},
		{"x-forwarded-for priority", "192.168.1.1", "10.0.0.1", "127.0.0.1:12345", "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.remoteAddr != "" {
				req.RemoteAddr = tt.remoteAddr
			}
			if got := getIP(req); got != tt.want {
				t.Errorf("getIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newLimiter(t *testing.T, r float64, b int) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRateLimiter(ctx, r, b)
}

func serve(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/commands", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	handler := newLimiter(t, 1, 3).Limit(okHandler())

	for i := 0; i < 3; i++ {
		if rec := serve(handler, "192.168.1.1:12345"); rec.Code != http.StatusOK {
			t.Errorf("Request %d: got status %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	handler := newLimiter(t, 0.1, 2).Limit(okHandler())

	for i := 0; i < 2; i++ {
		serve(handler, "192.168.1.1:12345")
	}

	rec := serve(handler, "192.168.1.1:12345")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Got status %d, want %d (rate limited)", rec.Code, http.StatusTooManyRequests)
	}
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error != "too many requests" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	handler := newLimiter(t, 0.1, 1).Limit(okHandler())

	if rec := serve(handler, "192.168.1.1:12345"); rec.Code != http.StatusOK {
		t.Errorf("First IP first request: got %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := serve(handler, "192.168.1.2:12345"); rec.Code != http.StatusOK {
		t.Errorf("Second IP first request: got %d, want %d", rec.Code, http.StatusOK)
	}
}
