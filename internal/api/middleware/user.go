package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

type contextKey string

const userIDKey contextKey = "userId"

// HeaderUserID carries the authenticated user's id, set by the fronting auth layer.
const HeaderUserID = "X-User-ID"

// WithUserID stores the acting user's id in ctx.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFrom returns the acting user's id.
func UserIDFrom(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDKey).(uint)
	return id, ok && id != 0
}

// RequireUser resolves the acting user from the X-User-ID header and rejects
// anonymous requests. It must run behind APIKeyAuth: the header is trusted.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "missing or invalid user id"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uint(id))))
	})
}
