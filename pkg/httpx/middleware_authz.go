package httpx

import (
	"net/http"
)

// PermissionChecker reports whether any of roles grants perm.
type PermissionChecker func(roles []string, perm string) bool

// RequirePermission lets the request through only when the token's roles
// grant perm. Must run after AuthnMiddleware.
func RequirePermission(check PermissionChecker, perm string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !check(claims.Roles, perm) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+perm+`"`)
				WriteError(w, http.StatusForbidden, KindUnauthorized, "missing permission "+perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
