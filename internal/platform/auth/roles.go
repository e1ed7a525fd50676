package auth

import (
	"net/http"
	"strings"
)

// RequireTutor allows the request only if RequireUser already injected
// role=tutor or role=admin into context. Used by creator-facing endpoints
// such as per-course progress rollups.
func RequireTutor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "tutor", "admin":
			next.ServeHTTP(w, r)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	})
}
