// Package response writes the handshake's wire formats. The login
// endpoints speak flat JSON shapes consumed by browser clients and the
// bot backend, so errors are {"error": ...} with an optional token
// status rather than a nested envelope.
package response

import (
	"encoding/json"
	"net/http"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// ErrorWithStatus reports a terminal token state alongside the message,
// e.g. {"error": "...", "status": "expired"}.
func ErrorWithStatus(w http.ResponseWriter, status int, message, tokenStatus string) {
	JSON(w, status, map[string]string{"error": message, "status": tokenStatus})
}
