// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
)

type ctxKey string

const adminKey ctxKey = "admin"

// AdminKeyHeader carries the operator key on admin requests.
const AdminKeyHeader = "X-Admin-Key"

// AdminKey is a middleware that admits only requests presenting key in the
// X-Admin-Key header. An empty key disables the admin API entirely.
//
// On success it marks the request context as an admin request, see
// IsAdmin.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				http.Error(w, "admin API disabled", http.StatusForbidden)
				return
			}
			got := r.Header.Get(AdminKeyHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, "invalid admin key", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), adminKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsAdmin reports whether AdminKey admitted the request.
func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(adminKey).(bool)
	return ok
}
