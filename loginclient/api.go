package loginclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Poll statuses returned by the exchange API.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusExpired  = "expired"
	StatusUsed     = "used"
)

// TelegramData is the channel metadata echoed back by the server.
type TelegramData struct {
	ChatID    int64  `json:"chat_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// TokenGrant is the reply to token registration.
type TokenGrant struct {
	Status    string    `json:"status"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusReply is one poll result. Email, UserID, SecurePassword and
// Telegram are set only when Status is "complete".
type StatusReply struct {
	Status         string        `json:"status"`
	Email          string        `json:"email,omitempty"`
	UserID         string        `json:"user_id,omitempty"`
	SecurePassword string        `json:"secure_password,omitempty"`
	Telegram       *TelegramData `json:"telegram_data,omitempty"`
}

// SessionUser is the signed-in identity inside a session grant.
type SessionUser struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// SessionGrant is the reply to session establishment.
type SessionGrant struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        SessionUser `json:"user"`
}

type apiError struct {
	Error  string `json:"error"`
	Status string `json:"status,omitempty"`
}

// APIClient talks to the handshake endpoints under
// /api/v1/auth/telegram on the login service.
type APIClient struct {
	baseURL string
	http    *http.Client
}

type APIOption func(*APIClient)

// WithHTTPClient swaps the underlying client, mainly for tests.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) { a.http = c }
}

func NewAPIClient(baseURL string, opts ...APIOption) *APIClient {
	a := &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateToken pre-registers token; pass "" to let the server mint one.
func (a *APIClient) CreateToken(ctx context.Context, token string) (*TokenGrant, error) {
	body := map[string]string{}
	if token != "" {
		body["token"] = token
	}
	var grant TokenGrant
	if err := a.post(ctx, "/api/v1/auth/telegram/token", body, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// CheckStatus performs one poll. Expired and used come back as regular
// replies, not errors; only malformed tokens and transport failures
// produce an error.
func (a *APIClient) CheckStatus(ctx context.Context, token string) (*StatusReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/api/v1/auth/telegram/status?token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, flowErr(KindInternal, "build status request", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, flowErr(KindTransient, "status poll failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, flowErr(KindTransient, "read status reply", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var reply StatusReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, flowErr(KindTransient, "decode status reply", err)
		}
		return &reply, nil
	case resp.StatusCode == http.StatusBadRequest:
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		// Terminal token states ride on 400 with a status field.
		if apiErr.Status == StatusExpired || apiErr.Status == StatusUsed {
			return &StatusReply{Status: apiErr.Status}, nil
		}
		return nil, flowErr(KindValidation, apiErr.Error, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, flowErr(KindTransient, "poll rate limited", nil)
	default:
		return nil, flowErr(KindTransient, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
}

// EstablishSession trades the exchange payload for an access token.
func (a *APIClient) EstablishSession(ctx context.Context, email, securePassword string) (*SessionGrant, error) {
	var grant SessionGrant
	err := a.post(ctx, "/api/v1/auth/telegram/session", map[string]string{
		"email":           email,
		"secure_password": securePassword,
	}, &grant)
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (a *APIClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return flowErr(KindInternal, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return flowErr(KindInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return flowErr(KindTransient, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return flowErr(KindTransient, "read reply", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(raw, out); err != nil {
			return flowErr(KindTransient, "decode reply", err)
		}
		return nil
	case http.StatusBadRequest:
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		return flowErr(KindValidation, apiErr.Error, nil)
	case http.StatusUnauthorized:
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		return flowErr(KindSessionEstablishment, apiErr.Error, nil)
	case http.StatusTooManyRequests:
		return flowErr(KindRateLimited, "rate limited", nil)
	default:
		return flowErr(KindTransient, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
}
