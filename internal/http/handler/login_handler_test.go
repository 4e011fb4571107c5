package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/http/handler"
	"github.com/foundrynet/telegram-login-service/internal/http/router"
	"github.com/foundrynet/telegram-login-service/internal/repository"
	"github.com/foundrynet/telegram-login-service/internal/security"
	"github.com/foundrynet/telegram-login-service/internal/service"
)

const botSecret = "bot-shared-secret"

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, string, int64) (bool, error) { return true, nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Profile{}, &domain.LoginToken{}, &domain.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := repository.NewLoginTokenRepository(db)
	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	jwtMgr := security.NewJWTManager("login-service", "login-clients", "test-secret-test-secret-test-secret")

	maxAge := 20 * time.Minute
	h := handler.NewLoginHandler(
		service.NewTokenRegistry(tokens, maxAge),
		service.NewExchangeService(tokens, users, log, maxAge),
		service.NewConfirmService(tokens, users, allowAllLimiter{}, nil, log, "", maxAge),
		service.NewSessionService(users, sessions, jwtMgr, time.Hour),
		log,
	)
	srv := httptest.NewServer(router.NewRouter(router.Dependencies{
		LoginHandler:     h,
		JWTManager:       jwtMgr,
		BotWebhookSecret: botSecret,
		CORSOrigins:      []string{"*"},
		APIRateLimitRPM:  10000,
		PollRateLimitRPM: 10000,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body map[string]any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func getJSON(t *testing.T, url string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestCreateTokenServerMinted(t *testing.T) {
	srv := newTestServer(t)
	status, body := postJSON(t, srv.URL+"/api/v1/auth/telegram/token", map[string]any{}, nil)
	if status != http.StatusOK {
		t.Fatalf("status %d: %v", status, body)
	}
	if body["status"] != "created" {
		t.Fatalf("status field = %v, want created", body["status"])
	}
	token, _ := body["token"].(string)
	if len(token) != 48 {
		t.Fatalf("token %q, want 48 chars", token)
	}
	if _, err := time.Parse(time.RFC3339, body["expires_at"].(string)); err != nil {
		t.Fatalf("expires_at not RFC3339: %v", body["expires_at"])
	}
}

func TestCreateTokenIdempotentRegistration(t *testing.T) {
	srv := newTestServer(t)
	token := strings.Repeat("H", 48)

	status, body := postJSON(t, srv.URL+"/api/v1/auth/telegram/token", map[string]any{"token": token}, nil)
	if status != http.StatusOK || body["status"] != "created" {
		t.Fatalf("first register: %d %v", status, body)
	}
	status, body = postJSON(t, srv.URL+"/api/v1/auth/telegram/token", map[string]any{"token": token}, nil)
	if status != http.StatusOK || body["status"] != "exists" {
		t.Fatalf("second register: %d %v", status, body)
	}
}

func TestCreateTokenRejectsMalformed(t *testing.T) {
	srv := newTestServer(t)
	status, body := postJSON(t, srv.URL+"/api/v1/auth/telegram/token", map[string]any{"token": "bad"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", status)
	}
	if body["error"] != "Invalid token format" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestStatusMalformedToken(t *testing.T) {
	srv := newTestServer(t)
	status, body := getJSON(t, srv.URL+"/api/v1/auth/telegram/status?token=zzz", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", status)
	}
	if body["error"] != "Invalid token format" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestStatusPendingBeforeConfirm(t *testing.T) {
	srv := newTestServer(t)
	_, created := postJSON(t, srv.URL+"/api/v1/auth/telegram/token", map[string]any{}, nil)
	token := created["token"].(string)

	status, body := getJSON(t, srv.URL+"/api/v1/auth/telegram/status?token="+token, nil)
	if status != http.StatusOK || body["status"] != "pending" {
		t.Fatalf("status poll: %d %v", status, body)
	}
}

func TestConfirmRequiresBotSecret(t *testing.T) {
	srv := newTestServer(t)
	_, created := postJSON(t, srv.URL+"/api/v1/auth/telegram/token", map[string]any{}, nil)
	token := created["token"].(string)

	payload := map[string]any{"token": token, "chat_id": 100}
	status, _ := postJSON(t, srv.URL+"/api/v1/auth/telegram/confirm", payload, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("missing secret: status %d, want 401", status)
	}
	status, _ = postJSON(t, srv.URL+"/api/v1/auth/telegram/confirm", payload, map[string]string{"X-Bot-Secret": "wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status %d, want 401", status)
	}
}

func TestFullHandshakeWireShapes(t *testing.T) {
	srv := newTestServer(t)
	botHeaders := map[string]string{"X-Bot-Secret": botSecret}

	_, created := postJSON(t, srv.URL+"/api/v1/auth/telegram/token", map[string]any{}, nil)
	token := created["token"].(string)

	// Confirmation reports readiness but never credentials.
	status, confirmBody := postJSON(t, srv.URL+"/api/v1/auth/telegram/confirm", map[string]any{
		"token": token, "chat_id": 12345, "username": "alice", "first_name": "Alice",
	}, botHeaders)
	if status != http.StatusOK {
		t.Fatalf("confirm: %d %v", status, confirmBody)
	}
	if confirmBody["success"] != true {
		t.Fatalf("confirm success = %v", confirmBody["success"])
	}
	if _, leaked := confirmBody["secure_password"]; leaked {
		t.Fatal("confirmation leaked session credentials")
	}
	tg, ok := confirmBody["telegram_data"].(map[string]any)
	if !ok || tg["chat_id"].(float64) != 12345 || tg["username"] != "alice" {
		t.Fatalf("confirm telegram_data: %v", confirmBody["telegram_data"])
	}

	// The winning poll drains the payload.
	status, pollBody := getJSON(t, srv.URL+"/api/v1/auth/telegram/status?token="+token, nil)
	if status != http.StatusOK || pollBody["status"] != "complete" {
		t.Fatalf("winning poll: %d %v", status, pollBody)
	}
	email, _ := pollBody["email"].(string)
	password, _ := pollBody["secure_password"].(string)
	if email == "" || password == "" {
		t.Fatalf("payload incomplete: %v", pollBody)
	}
	if pollBody["user_id"] != confirmBody["user_id"] {
		t.Fatalf("user_id mismatch: %v vs %v", pollBody["user_id"], confirmBody["user_id"])
	}

	// Any further poll sees used.
	status, usedBody := getJSON(t, srv.URL+"/api/v1/auth/telegram/status?token="+token, nil)
	if status != http.StatusBadRequest || usedBody["status"] != "used" {
		t.Fatalf("repeat poll: %d %v", status, usedBody)
	}

	// The payload buys exactly one session.
	status, sessionBody := postJSON(t, srv.URL+"/api/v1/auth/telegram/session", map[string]any{
		"email": email, "secure_password": password,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("session: %d %v", status, sessionBody)
	}
	accessToken, _ := sessionBody["access_token"].(string)
	if accessToken == "" {
		t.Fatalf("no access token: %v", sessionBody)
	}

	status, meBody := getJSON(t, srv.URL+"/api/v1/auth/telegram/me", map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if status != http.StatusOK {
		t.Fatalf("me: %d %v", status, meBody)
	}
	me, _ := meBody["user"].(map[string]any)
	if me["email"] != email {
		t.Fatalf("me email = %v, want %v", me["email"], email)
	}
}

func TestSessionRejectsWrongCredential(t *testing.T) {
	srv := newTestServer(t)
	status, body := postJSON(t, srv.URL+"/api/v1/auth/telegram/session", map[string]any{
		"email": "ghost@telegram.foundrynet.dev", "secure_password": "nope",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401: %v", status, body)
	}
}

func TestMeRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t)
	status, _ := getJSON(t, srv.URL+"/api/v1/auth/telegram/me", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", status)
	}
}

func TestConfirmExpiredTokenWireShape(t *testing.T) {
	srv := newTestServer(t)
	// Registered through the API, then aged out via a max-age of zero is
	// not reachable here; use an unknown-but-well-formed token instead,
	// which the receiver rejects without creating it.
	status, body := postJSON(t, srv.URL+"/api/v1/auth/telegram/confirm", map[string]any{
		"token": strings.Repeat("J", 48), "chat_id": 5,
	}, map[string]string{"X-Bot-Secret": botSecret})
	if status != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", status)
	}
	if body["error"] != "Invalid or expired token" {
		t.Fatalf("error = %v", body["error"])
	}
}
