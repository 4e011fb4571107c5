package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDeepLink(t *testing.T) {
	got := DeepLink("my_login_bot", "abc123")
	want := "https://t.me/my_login_bot?start=abc123"
	if got != want {
		t.Fatalf("deep link = %q, want %q", got, want)
	}
}

func TestLoginApprovedSendsMessage(t *testing.T) {
	var captured struct {
		ChatID    int64  `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	client := NewClient("bot-token").WithAPIBase(srv.URL)
	if err := client.LoginApproved(context.Background(), 42, "Alice"); err != nil {
		t.Fatalf("login approved: %v", err)
	}

	if captured.ChatID != 42 {
		t.Fatalf("chat_id = %d, want 42", captured.ChatID)
	}
	if captured.ParseMode != "HTML" {
		t.Fatalf("parse_mode = %q, want HTML", captured.ParseMode)
	}
	if !strings.Contains(captured.Text, "Alice") {
		t.Fatalf("text does not greet the user: %q", captured.Text)
	}
}

func TestLoginApprovedSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	client := NewClient("bot-token").WithAPIBase(srv.URL)
	err := client.LoginApproved(context.Background(), 42, "")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("error = %v, want api description surfaced", err)
	}
}
