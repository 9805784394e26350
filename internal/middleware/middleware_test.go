package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"diary-sync-server/internal/config"
	"diary-sync-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessions struct {
	valid string
}

func (s stubSessions) Session(token string) (*domain.SessionResponse, error) {
	if token != s.valid {
		return nil, errors.New("invalid")
	}
	return &domain.SessionResponse{OK: true, ExpiresAt: 42}, nil
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer good", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *domain.SessionResponse
			h := AuthMiddleware(stubSessions{valid: "good"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetSession(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, int64(42), seen.ExpiresAt)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerMinute: 2, Enabled: true})
	h := RateLimiter(l)(http.HandlerFunc(okHandler))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/diary", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Enabled: false})
	h := RateLimiter(l)(http.HandlerFunc(okHandler))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/diary", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_IgnoresForwardedHeadersByDefault(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Enabled: true})
	h := RateLimiter(l)(http.HandlerFunc(okHandler))

	accepted := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/diary", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			accepted++
		}
	}

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, l.size())
}

func TestRateLimiter_TrustedProxy(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Enabled: true, TrustProxy: true})
	h := RateLimiter(l)(http.HandlerFunc(okHandler))

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/diary", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1, 10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
}

func TestLimiter_EvictsIdleBuckets(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Enabled: true, IdleTTL: 5 * time.Minute})
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	for i := 0; i < 50; i++ {
		l.getBucket(fmt.Sprintf("198.51.100.%d", i))
	}
	assert.Equal(t, 50, l.size())

	now = now.Add(4 * time.Minute)
	l.getBucket("10.0.0.1")
	assert.Equal(t, 51, l.size())

	now = now.Add(2 * time.Minute)
	l.getBucket("10.0.0.2")
	assert.Equal(t, 2, l.size(), "buckets idle past the ttl are dropped")
}

func TestLimiter_IdleTTLNeverBelowRefill(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Enabled: true, IdleTTL: time.Second})
	assert.Equal(t, time.Minute, l.idleTTL)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	assert.Equal(t, "192.168.1.5", ClientIP(req, true))

	req.Header.Set("X-Real-IP", "172.16.0.9")
	assert.Equal(t, "172.16.0.9", ClientIP(req, true))
	assert.Equal(t, "192.168.1.5", ClientIP(req, false))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req, true))
	assert.Equal(t, "192.168.1.5", ClientIP(req, false))
}

func TestCORSMiddleware(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: "https://diary.example",
		AllowedMethods: "GET,POST,OPTIONS",
		AllowedHeaders: "Content-Type,Authorization,x-pass",
	}
	h := CORSMiddleware(cfg)(http.HandlerFunc(okHandler))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/diary", nil)
		req.Header.Set("Origin", "https://diary.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "https://diary.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-pass")
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/diary", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/diary", nil)
		req.Header.Set("Origin", "https://diary.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := LoggerMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/diary", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/api/diary", fields["path"])
	assert.Equal(t, "10.1.2.3", fields["remote"])
}

func TestLoggerMiddleware_KeepsResponseController(t *testing.T) {
	h := LoggerMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		w.Write([]byte("data"))
		assert.NoError(t, rc.Flush())
		err := rc.SetWriteDeadline(time.Time{})
		assert.ErrorIs(t, err, http.ErrNotSupported)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diary/stream", nil))

	assert.True(t, rec.Flushed)
}
