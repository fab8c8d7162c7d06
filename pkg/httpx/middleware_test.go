package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newKeys(t *testing.T) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "test-issuer",
		NumKeys:   1,
	})
	require.NoError(t, err)
	return km
}

func sign(t *testing.T, km *jwtx.KeyManager, typ string, roles []string, now time.Time) string {
	t.Helper()
	token, err := km.Sign(jwtx.NewClaims(jwtx.ClaimsParams{
		Subject:   "user-1",
		TokenType: typ,
		Roles:     roles,
		Issuer:    "test-issuer",
		TTL:       time.Minute,
		Now:       now,
	}))
	require.NoError(t, err)
	return token
}

func call(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler(), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestAuthnMiddleware(t *testing.T) {
	t.Parallel()
	km := newKeys(t)

	var (
		seen   jwtx.Claims
		seenID string
	)
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = httpx.ClaimsFromContext(r.Context())
		seenID, _ = httpx.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), httpx.AuthnMiddleware(km.Verifier))

	t.Run("valid token", func(t *testing.T) {
		rec := call(h, sign(t, km, jwtx.TokenTypeAuthenticated, []string{"staff"}, time.Now()))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []string{"staff"}, seen.Roles)
		require.Equal(t, "user-1", seenID)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := call(h, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		require.Equal(t, httpx.KindTokenInvalid, errorKind(t, rec))
	})

	t.Run("expired", func(t *testing.T) {
		rec := call(h, sign(t, km, jwtx.TokenTypeAuthenticated, nil, time.Now().Add(-time.Hour)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, httpx.KindTokenExpired, errorKind(t, rec))
	})

	t.Run("malformed", func(t *testing.T) {
		rec := call(h, "garbage")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, httpx.KindTokenMalformed, errorKind(t, rec))
	})
}

func TestRequireTokenType(t *testing.T) {
	t.Parallel()
	km := newKeys(t)

	h := httpx.Chain(okHandler(),
		httpx.AuthnMiddleware(km.Verifier),
		httpx.RequireTokenType(jwtx.TokenTypeAuthenticated),
	)

	require.Equal(t, http.StatusOK, call(h, sign(t, km, jwtx.TokenTypeAuthenticated, nil, time.Now())).Code)

	rec := call(h, sign(t, km, jwtx.TokenTypePending, nil, time.Now()))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, httpx.KindTokenInvalid, errorKind(t, rec))
}

func TestRequirePermission(t *testing.T) {
	t.Parallel()
	km := newKeys(t)
	check := func(roles []string, perm string) bool {
		return perm == "users:write" && len(roles) > 0 && roles[0] == "admin"
	}

	h := httpx.Chain(okHandler(),
		httpx.AuthnMiddleware(km.Verifier),
		httpx.RequirePermission(check, "users:write"),
	)

	require.Equal(t, http.StatusOK, call(h, sign(t, km, jwtx.TokenTypeAuthenticated, []string{"admin"}, time.Now())).Code)

	rec := call(h, sign(t, km, jwtx.TokenTypeAuthenticated, []string{"student"}, time.Now()))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
	require.Equal(t, httpx.KindUnauthorized, errorKind(t, rec))
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Email string `json:"email"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com"}`))
	require.NoError(t, httpx.DecodeJSON(req, &dst))
	require.Equal(t, "a@x.com", dst.Email)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.NoError(t, httpx.DecodeJSON(req, &dst))

	for _, body := range []string{`{`, `{"email":1}`, `{} {}`} {
		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		require.Error(t, httpx.DecodeJSON(req, &dst), "body %q", body)
	}
}
