package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/http/middleware"
	"github.com/foundrynet/telegram-login-service/internal/http/response"
	"github.com/foundrynet/telegram-login-service/internal/observability"
	"github.com/foundrynet/telegram-login-service/internal/service"
)

// LoginHandler carries the four server legs of the handshake: token
// registration, the bot-invoked confirmation, the polling exchange, and
// session establishment.
type LoginHandler struct {
	registry *service.TokenRegistry
	exchange *service.ExchangeService
	confirm  *service.ConfirmService
	sessions *service.SessionService
	logger   *slog.Logger
}

func NewLoginHandler(
	registry *service.TokenRegistry,
	exchange *service.ExchangeService,
	confirm *service.ConfirmService,
	sessions *service.SessionService,
	logger *slog.Logger,
) *LoginHandler {
	return &LoginHandler{
		registry: registry,
		exchange: exchange,
		confirm:  confirm,
		sessions: sessions,
		logger:   logger,
	}
}

type createTokenRequest struct {
	Token string `json:"token"`
}

// CreateToken pre-registers a login token before the deep-link handoff.
// Clients may mint their own token or leave it empty for a server-minted
// one. Re-registering is reported as "exists", never as an error.
func (h *LoginHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Token == "" {
		t, err := h.registry.CreateToken()
		if err != nil {
			h.logger.Error("create login token", "error", err)
			response.Error(w, http.StatusInternalServerError, "internal server error")
			return
		}
		response.JSON(w, http.StatusOK, map[string]any{
			"status":     service.RegisterStatusCreated,
			"token":      t.Token,
			"expires_at": t.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}

	status, expiresAt, err := h.registry.RegisterToken(req.Token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			response.Error(w, http.StatusBadRequest, "Invalid token format")
			return
		}
		h.logger.Error("register login token", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"token":      req.Token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// Status answers one poll of the exchange API.
func (h *LoginHandler) Status(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	result, err := h.exchange.CheckStatus(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			response.Error(w, http.StatusBadRequest, "Invalid token format")
			return
		}
		h.logger.Error("check login status", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch result.Status {
	case service.StatusExpired:
		response.ErrorWithStatus(w, http.StatusBadRequest, "Token expired", service.StatusExpired)
	case service.StatusUsed:
		response.ErrorWithStatus(w, http.StatusBadRequest, "Token already used", service.StatusUsed)
	case service.StatusComplete:
		payload := map[string]any{
			"status":  service.StatusComplete,
			"email":   result.Email,
			"user_id": result.UserID,
		}
		if result.SecurePassword != "" {
			payload["secure_password"] = result.SecurePassword
		}
		if result.Telegram != nil {
			payload["telegram_data"] = result.Telegram
		}
		observability.Audit(r, "login_payload_delivered", "user_id", result.UserID)
		response.JSON(w, http.StatusOK, payload)
	default:
		response.JSON(w, http.StatusOK, map[string]string{"status": service.StatusPending})
	}
}

type confirmRequest struct {
	Token     string `json:"token"`
	ChatID    int64  `json:"chat_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Confirm is invoked by the bot backend after a human approved the
// login in the chat. Never returns session credentials, only readiness.
func (h *LoginHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.ChatID == 0 {
		response.Error(w, http.StatusBadRequest, "token and chat_id are required")
		return
	}

	result, err := h.confirm.Confirm(r.Context(), service.ConfirmRequest{
		Token:     req.Token,
		ChatID:    req.ChatID,
		Username:  req.Username,
		FirstName: req.FirstName,
		CallerIP:  callerIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			response.Error(w, http.StatusBadRequest, "Invalid token format")
		case errors.Is(err, service.ErrTokenNotFound):
			response.Error(w, http.StatusBadRequest, "Invalid or expired token")
		case errors.Is(err, service.ErrTokenExpired):
			response.Error(w, http.StatusBadRequest, "Token expired")
		case errors.Is(err, service.ErrTokenAlreadyUsed):
			response.Error(w, http.StatusBadRequest, "Token already used")
		case errors.Is(err, service.ErrRateLimited):
			response.Error(w, http.StatusTooManyRequests, "Too many confirmation attempts")
		default:
			h.logger.Error("confirm login", "error", err)
			response.Error(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	observability.Audit(r, "login_confirmed", "chat_id", result.ChatID, "user_id", result.UserID)
	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "login confirmed",
		"user_id": result.UserID,
		"telegram_data": service.TelegramData{
			ChatID:    result.ChatID,
			Username:  result.Username,
			FirstName: result.FirstName,
		},
	})
}

type establishSessionRequest struct {
	Email          string `json:"email"`
	SecurePassword string `json:"secure_password"`
}

// EstablishSession trades the exchange payload for an access token.
func (h *LoginHandler) EstablishSession(w http.ResponseWriter, r *http.Request) {
	var req establishSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.SecurePassword == "" {
		response.Error(w, http.StatusBadRequest, "email and secure_password are required")
		return
	}

	result, err := h.sessions.Establish(r.Context(), req.Email, req.SecurePassword, r.UserAgent(), callerIP(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("establish session", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	observability.Audit(r, "session_established", "user_id", result.User.PublicID)
	response.JSON(w, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"expires_at":   result.ExpiresAt.UTC().Format(time.RFC3339),
		"user":         userPayload(result.User),
	})
}

// Me returns the authenticated identity behind a bearer token.
func (h *LoginHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "missing access token")
		return
	}
	user, err := h.sessions.UserFromClaims(r.Context(), claims)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Error(w, http.StatusUnauthorized, "invalid session")
			return
		}
		h.logger.Error("resolve current user", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

func userPayload(u *domain.User) map[string]any {
	payload := map[string]any{
		"user_id": u.PublicID,
		"email":   u.Email,
	}
	if u.Profile != nil {
		payload["username"] = u.Profile.Username
		payload["first_name"] = u.Profile.FirstName
	}
	return payload
}

func callerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
