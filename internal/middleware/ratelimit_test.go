package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testConfig(limit rate.Limit, burst int) RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            limit,
		Burst:           burst,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, remoteAddr, xff string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/subscribe", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testConfig(rate.Limit(1), 3))
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := doRequest(handler, "10.0.0.1:1234", ""); w.Code != http.StatusOK {
			t.Fatalf("リクエスト%d: status = %d, want 200", i+1, w.Code)
		}
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(testConfig(rate.Limit(0.001), 2))
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	doRequest(handler, "10.0.0.1:1234", "")
	doRequest(handler, "10.0.0.1:1234", "")

	w := doRequest(handler, "10.0.0.1:1234", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーがない")
	}
}

// TestRateLimiter_PerClientIsolation はクライアントごとに独立した
// リミッターが使われることを検証する。
func TestRateLimiter_PerClientIsolation(t *testing.T) {
	rl := NewRateLimiter(testConfig(rate.Limit(0.001), 1))
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	doRequest(handler, "10.0.0.1:1234", "")
	if w := doRequest(handler, "10.0.0.1:1234", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("同一クライアントの超過リクエストが拒否されない: %d", w.Code)
	}

	if w := doRequest(handler, "10.0.0.2:1234", ""); w.Code != http.StatusOK {
		t.Errorf("別クライアントが巻き込まれた: %d", w.Code)
	}

	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount() = %d, want 2", rl.LimiterCount())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{
			name:       "RemoteAddrから抽出",
			remoteAddr: "192.0.2.1:5000",
			want:       "192.0.2.1",
		},
		{
			name:       "X-Forwarded-Forを優先",
			remoteAddr: "10.0.0.1:5000",
			xff:        "203.0.113.7",
			want:       "203.0.113.7",
		},
		{
			name:       "X-Forwarded-Forの先頭エントリ",
			remoteAddr: "10.0.0.1:5000",
			xff:        "203.0.113.7, 10.0.0.2",
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            rate.Limit(1),
		Burst:           1,
		CleanupInterval: time.Millisecond,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())
	doRequest(handler, "10.0.0.1:1234", "")

	rl.mu.Lock()
	rl.limiters["10.0.0.1"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	if rl.LimiterCount() != 0 {
		t.Errorf("期限切れエントリが残っている: %d", rl.LimiterCount())
	}
}
