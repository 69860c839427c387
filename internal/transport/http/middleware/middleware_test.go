package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerMinute: 1, Burst: 2, IdleTTL: time.Minute})
	h := RateLimitMiddleware(rl)(okHandler)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "rate_limited" || body["message"] == "" {
		t.Errorf("unexpected body %v", body)
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("CF-Connecting-IP", "203.0.113.9")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", rec.Code)
	}
	if rl.VisitorCount() != 2 {
		t.Errorf("expected 2 visitors, got %d", rl.VisitorCount())
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cloudflare", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, "9.9.9.9:1", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "2.2.2.2"}, "9.9.9.9:1", "2.2.2.2"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "3.3.3.3, 4.4.4.4"}, "9.9.9.9:1", "3.3.3.3"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"garbage header skipped", map[string]string{"X-Real-IP": "not-an-ip", "X-Forwarded-For": "5.5.5.5"}, "9.9.9.9:1", "5.5.5.5"},
		{"mapped address", map[string]string{"CF-Connecting-IP": "::ffff:6.6.6.6"}, "9.9.9.9:1", "6.6.6.6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func turnstileServer(t *testing.T, success bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("secret") != "s3cret" || r.PostForm.Get("response") == "" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(TurnstileResponse{Success: success, ErrorCodes: []string{"invalid-input-response"}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTurnstileMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		success  bool
		token    string
		skip     bool
		wantCode int
	}{
		{"valid token", true, "tok", false, http.StatusOK},
		{"rejected token", false, "tok", false, http.StatusForbidden},
		{"missing token", true, "", false, http.StatusBadRequest},
		{"skipped", false, "", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := turnstileServer(t, tt.success)
			h := TurnstileMiddleware(&TurnstileConfig{
				SecretKey: "s3cret",
				Skip:      tt.skip,
				VerifyURL: srv.URL,
				Client:    srv.Client(),
			})(okHandler)

			req := httptest.NewRequest(http.MethodPost, "/api/download", nil)
			if tt.token != "" {
				req.Header.Set("X-Turnstile-Token", tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestTurnstileUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := TurnstileMiddleware(&TurnstileConfig{
		SecretKey: "s3cret",
		VerifyURL: srv.URL,
		Client:    srv.Client(),
	})(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/download?turnstile=tok", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestTurnstileVerify_NoSecret(t *testing.T) {
	v := NewTurnstile(&TurnstileConfig{})
	if ok, err := v.Verify(context.Background(), "tok", ""); ok || err == nil {
		t.Errorf("expected error without secret, got %v, %v", ok, err)
	}
}

func TestValidateDownloadRequest(t *testing.T) {
	const url = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

	tests := []struct {
		name      string
		req       domain.DownloadRequest
		wantField string
	}{
		{"audio default quality", domain.DownloadRequest{URL: url, Format: "mp3"}, ""},
		{"audio tier", domain.DownloadRequest{URL: url, Format: "mp3", Quality: "128"}, ""},
		{"video tier", domain.DownloadRequest{URL: url, Format: "mp4", Quality: "720p"}, ""},
		{"empty url", domain.DownloadRequest{Format: "mp3"}, "url"},
		{"foreign url", domain.DownloadRequest{URL: "https://example.com/watch?v=dQw4w9WgXcQ", Format: "mp3"}, "url"},
		{"credentials", domain.DownloadRequest{URL: "https://user@youtube.com/watch?v=dQw4w9WgXcQ", Format: "mp3"}, "url"},
		{"whitespace inside", domain.DownloadRequest{URL: "https://youtu.be/dQw4w9WgXcQ x", Format: "mp3"}, "url"},
		{"unknown format", domain.DownloadRequest{URL: url, Format: "wav"}, "format"},
		{"unknown tier degrades later", domain.DownloadRequest{URL: url, Format: "mp3", Quality: "1080p"}, ""},
		{"kbps suffix", domain.DownloadRequest{URL: url, Format: "mp3", Quality: "192kbps"}, ""},
		{"unknown video tier", domain.DownloadRequest{URL: url, Format: "mp4", Quality: "4k"}, "quality"},
		{"injected quality", domain.DownloadRequest{URL: url, Format: "mp3", Quality: "320;ls"}, "quality"},
		{"oversized quality", domain.DownloadRequest{URL: url, Format: "mp3", Quality: "12345678901"}, "quality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDownloadRequest(&tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, ve.Field)
			}
		})
	}
}
