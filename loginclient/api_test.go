package loginclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func apiServer(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAPIClient(srv.URL, WithHTTPClient(srv.Client()))
}

func TestCreateTokenOmitsEmptyToken(t *testing.T) {
	client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/telegram/token" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if _, present := body["token"]; present {
			t.Fatal("empty token should be omitted so the server mints one")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "created", "token": "minted", "expires_at": "2026-01-01T00:00:00Z",
		})
	})

	grant, err := client.CreateToken(context.Background(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if grant.Status != "created" || grant.Token != "minted" {
		t.Fatalf("grant = %+v", grant)
	}
}

func TestCheckStatusMapsTerminalStatesFrom400(t *testing.T) {
	for _, state := range []string{StatusExpired, StatusUsed} {
		client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(apiError{Error: "Invalid or expired token", Status: state})
		})
		reply, err := client.CheckStatus(context.Background(), "tok")
		if err != nil {
			t.Fatalf("%s should be a reply, not an error: %v", state, err)
		}
		if reply.Status != state {
			t.Fatalf("status = %s, want %s", reply.Status, state)
		}
	}
}

func TestCheckStatusMalformedTokenIsValidationError(t *testing.T) {
	client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Error: "Invalid token format"})
	})
	_, err := client.CheckStatus(context.Background(), "zzz")
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation", KindOf(err))
	}
	if !Terminal(err) {
		t.Fatal("validation failures must not be retried")
	}
}

func TestCheckStatusServerErrorsAreTransient(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		})
		_, err := client.CheckStatus(context.Background(), "tok")
		if KindOf(err) != KindTransient {
			t.Fatalf("code %d: kind = %v, want transient", code, KindOf(err))
		}
	}
}

func TestCheckStatusNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := NewAPIClient(srv.URL)
	srv.Close()

	_, err := client.CheckStatus(context.Background(), "tok")
	if KindOf(err) != KindTransient {
		t.Fatalf("kind = %v, want transient", KindOf(err))
	}
}

func TestCheckStatusEscapesToken(t *testing.T) {
	client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "a&b=c" {
			t.Fatalf("token query = %q", got)
		}
		json.NewEncoder(w).Encode(StatusReply{Status: StatusPending})
	})
	if _, err := client.CheckStatus(context.Background(), "a&b=c"); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestEstablishSessionMapsUnauthorized(t *testing.T) {
	client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(apiError{Error: "Invalid credentials"})
	})
	_, err := client.EstablishSession(context.Background(), "a@b.c", "pw")
	if KindOf(err) != KindSessionEstablishment {
		t.Fatalf("kind = %v, want session establishment", KindOf(err))
	}
}

func TestEstablishSessionDecodesGrant(t *testing.T) {
	client := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["email"] != "a@b.c" || body["secure_password"] != "pw" {
			t.Fatalf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "jwt-token",
			"expires_at":   "2026-01-01T00:00:00Z",
			"user":         map[string]any{"user_id": "u1", "email": "a@b.c"},
		})
	})

	grant, err := client.EstablishSession(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if grant.AccessToken != "jwt-token" || grant.User.UserID != "u1" {
		t.Fatalf("grant = %+v", grant)
	}
}
