package auth

import (
	"net/http"
)

// RequireAdmin is middleware that requires the caller to hold the admin role.
// Unauthenticated requests get 401, authenticated non-admins get 403.
// Note: This middleware expects RequireAuth to be applied first, as it reads the claims from context.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !claims.IsAdmin() {
				writeError(w, http.StatusForbidden, "admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
