package security

import (
	"strings"
	"testing"
)

func TestNewLoginTokenShapeAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := NewLoginToken()
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		if len(token) != 48 {
			t.Fatalf("token length %d, want 48: %q", len(token), token)
		}
		if !ValidLoginToken(token) {
			t.Fatalf("minted token fails validation: %q", token)
		}
		if seen[token] {
			t.Fatalf("duplicate token minted: %q", token)
		}
		seen[token] = true
	}
}

func TestValidLoginTokenAcceptsLegacyForm(t *testing.T) {
	legacy := "login_5f2b9c1e-88aa-4c6f-9d43-1f2e3a4b5c6d_1735689600000"
	if !ValidLoginToken(legacy) {
		t.Fatalf("legacy token rejected: %q", legacy)
	}
}

func TestValidLoginTokenRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"short",
		strings.Repeat("A", 47),
		strings.Repeat("A", 49),
		strings.Repeat("A", 47) + "!",
		"login_not-a-uuid_1735689600000",
		"login_5f2b9c1e-88aa-4c6f-9d43-1f2e3a4b5c6d_12",
		"LOGIN_5f2b9c1e-88aa-4c6f-9d43-1f2e3a4b5c6d_1735689600000",
	}
	for _, token := range bad {
		if ValidLoginToken(token) {
			t.Fatalf("malformed token accepted: %q", token)
		}
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	password, err := NewLoginPassword()
	if err != nil {
		t.Fatalf("mint password: %v", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == password {
		t.Fatal("hash equals plaintext")
	}
	if !VerifyPassword(hash, password) {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, password+"x") {
		t.Fatal("wrong password accepted")
	}
}
