package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterThrottlesByIP(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		IPPerMinute: 60,
		IPBurst:     3,
	})
	h := limiter.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	// A different IP has its own bucket.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other IP status = %d, want 200", rec.Code)
	}
}

func TestRateLimiterThrottlesByDoctor(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		IPPerMinute:     6000,
		IPBurst:         1000,
		DoctorPerMinute: 60,
		DoctorBurst:     2,
	})
	h := limiter.Middleware(okHandler())

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/queue/status?doctor_id=d1&date=2026-03-02", nil)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// Different IPs still share the doctor bucket.
	if code := send("10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", code)
	}
	if code := send("10.0.0.2:1"); code != http.StatusOK {
		t.Fatalf("second status = %d, want 200", code)
	}
	if code := send("10.0.0.3:1"); code != http.StatusTooManyRequests {
		t.Fatalf("third status = %d, want 429", code)
	}
}

func TestRateLimiterReadsDoctorFromBody(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		IPPerMinute:     6000,
		IPBurst:         1000,
		DoctorPerMinute: 60,
		DoctorBurst:     1,
	})

	var seenBody string
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		seenBody = buf.String()
		w.WriteHeader(http.StatusOK)
	}))

	payload := `{"doctor_id":"d1","date":"2026-03-02"}`
	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/queue/actions/call-next", bytes.NewReader([]byte(payload)))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", code)
	}
	// The limiter consumed the body to sniff doctor_id; the handler must still
	// see the full payload.
	if seenBody != payload {
		t.Fatalf("handler saw body %q, want %q", seenBody, payload)
	}
	if code := send("10.0.0.2:1"); code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("clientIP = %q, want 203.0.113.9", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("clientIP = %q, want 10.0.0.1", got)
	}
}
