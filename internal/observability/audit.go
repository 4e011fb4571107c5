package observability

import (
	"log/slog"
	"net/http"
)

// Audit emits a structured audit log line for security-relevant events
// on the login handshake (confirmations, exchanges, rejected callers).
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}
