package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

// Canonical login tokens are 48 URL-safe characters (36 random bytes,
// base64url without padding). The legacy login_<uuid>_<unix-ms> form is
// still accepted on input for tokens minted before the cutover; new
// tokens are always canonical.
const loginTokenBytes = 36

var (
	canonicalTokenRe = regexp.MustCompile(`^[A-Za-z0-9_-]{48}$`)
	legacyTokenRe    = regexp.MustCompile(`^login_[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}_[0-9]{10,13}$`)
)

// NewLoginToken mints a cryptographically random canonical login token.
func NewLoginToken() (string, error) {
	buf := make([]byte, loginTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate login token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidLoginToken reports whether the token matches an accepted encoding.
func ValidLoginToken(token string) bool {
	return canonicalTokenRe.MatchString(token) || legacyTokenRe.MatchString(token)
}
