package httpx_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func fromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(fromIP("192.168.1.1")))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := fromIP("192.168.1.1")
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := fromIP("192.168.1.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestJSONFieldKeyExtractor(t *testing.T) {
	t.Run("reads field and restores body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":" Alice@X.com ","password":"pw"}`))

		require.Equal(t, "alice@x.com", httpx.JSONFieldKeyExtractor("email")(req))

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `"password":"pw"`)
	})

	t.Run("non-string or missing field", func(t *testing.T) {
		for _, body := range []string{`{"email":42}`, `{}`, `not json`, ``} {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			require.Empty(t, httpx.JSONFieldKeyExtractor("email")(req), "body %q", body)
		}
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	extract := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.UserIDKeyExtractor)

	// No authenticated user so only the IP survives
	require.Equal(t, "192.168.1.1", extract(fromIP("192.168.1.1")))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows requests under limit", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 5, Window: time.Second, Burst: 5,
		}, httpx.IPKeyExtractor)(okHandler())

		for i := range 5 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, fromIP("192.168.1.1"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 3, Window: time.Minute, Burst: 3,
		}, httpx.IPKeyExtractor)(okHandler())

		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, fromIP("192.168.1.1"))
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP("192.168.1.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))

		var body httpx.ErrorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, httpx.KindRateLimited, body.Error)
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 2, Window: time.Minute, Burst: 2,
		}, httpx.IPKeyExtractor)(okHandler())

		for range 2 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, fromIP("192.168.1.1"))
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP("192.168.1.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, fromIP("192.168.1.2"))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1, Window: time.Minute, Burst: 1,
		}, func(*http.Request) string { return "" })(okHandler())

		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, fromIP("192.168.1.1"))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestRateLimitByIPAndJSONField(t *testing.T) {
	h := httpx.RateLimitByIPAndJSONField(httpx.RateLimitConfig{
		RequestsPerWindow: 1, Window: time.Minute, Burst: 1,
	}, "email")(okHandler())

	login := func(email string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/login", strings.NewReader(`{"email":"`+email+`"}`))
		req.RemoteAddr = "10.0.0.1:1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, login("a@x.com"))
	require.Equal(t, http.StatusTooManyRequests, login("A@x.com"), "email is case-folded")
	require.Equal(t, http.StatusOK, login("b@x.com"))
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	t.Run("no overrides", func(t *testing.T) {
		require.Equal(t, def, httpx.ParseRateLimitFromEnv("TESTNONE", def))
	})

	t.Run("all overrides", func(t *testing.T) {
		t.Setenv("RATELIMIT_TESTALL_REQUESTS", "50")
		t.Setenv("RATELIMIT_TESTALL_WINDOW_SEC", "10")
		t.Setenv("RATELIMIT_TESTALL_BURST", "7")

		got := httpx.ParseRateLimitFromEnv("TESTALL", def)
		require.Equal(t, httpx.RateLimitConfig{RequestsPerWindow: 50, Window: 10 * time.Second, Burst: 7}, got)
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		t.Setenv("RATELIMIT_TESTBAD_REQUESTS", "abc")
		t.Setenv("RATELIMIT_TESTBAD_WINDOW_SEC", "-1")
		t.Setenv("RATELIMIT_TESTBAD_BURST", "0")

		require.Equal(t, def, httpx.ParseRateLimitFromEnv("TESTBAD", def))
	})
}
