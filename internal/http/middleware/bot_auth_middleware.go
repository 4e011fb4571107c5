package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/foundrynet/telegram-login-service/internal/http/response"
	"github.com/foundrynet/telegram-login-service/internal/observability"
)

const botSecretHeader = "X-Bot-Secret"

// BotAuth authenticates that a confirmation call genuinely originates
// from the trusted bot backend via a shared secret header. With no
// secret configured (development only) everything passes.
func BotAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			presented := r.Header.Get(botSecretHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				observability.Audit(r, "bot_auth_rejected")
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
