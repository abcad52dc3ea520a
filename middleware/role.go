package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// RequireRole admits requests whose principal, attached by [Guard], carries
// one of roles. It must be mounted after Guard.
func RequireRole(roles ...goGuard.Role) func(http.Handler) http.Handler {
	allowed := make(map[goGuard.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := goGuard.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
