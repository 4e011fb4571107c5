package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/foundrynet/telegram-login-service/internal/http/response"
	"github.com/foundrynet/telegram-login-service/internal/security"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// Auth parses the bearer access token minted by the session endpoint.
func Auth(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				response.Error(w, http.StatusUnauthorized, "missing access token")
				return
			}
			raw := strings.TrimSpace(auth[7:])
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "invalid access token")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}
