package httpx

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// Error kinds written by the bearer middleware.
const (
	KindTokenExpired   = "token_expired"
	KindTokenMalformed = "token_malformed"
	KindTokenInvalid   = "invalid_token"
	KindUnauthorized   = "unauthorized"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthnMiddleware verifies the bearer token and injects its claims into the
// request context. It does not look at token_type: pair it with
// RequireTokenType on every route.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, KindTokenInvalid, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				kind := TokenErrorKind(err)
				slogx.FromContext(r.Context()).Warn("jwt verify failed", "kind", kind, "err", err)
				writeBearerError(w, kind, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireTokenType rejects tokens whose token_type is not listed. Routes for
// fully authenticated users pass only jwtx.TokenTypeAuthenticated so pending
// tokens never reach them.
func RequireTokenType(allowed ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !slices.Contains(allowed, claims.TokenType) {
				writeBearerError(w, KindTokenInvalid, "token type not accepted here")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenErrorKind classifies a jwtx verification error.
func TokenErrorKind(err error) string {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return KindTokenExpired
	case errors.Is(err, jwtx.ErrMalformed):
		return KindTokenMalformed
	default:
		return KindTokenInvalid
	}
}

// RFC 6750 style bearer error with a JSON body.
func writeBearerError(w http.ResponseWriter, kind, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, kind, desc)
}
