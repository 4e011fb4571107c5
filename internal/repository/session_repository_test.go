package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/foundrynet/telegram-login-service/internal/domain"
)

func newSessionRepoForTest(t *testing.T) SessionRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSessionRepository(db)
}

func TestFindActiveByTokenID(t *testing.T) {
	repo := newSessionRepoForTest(t)
	s := &domain.Session{UserID: 1, TokenID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(s); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindActiveByTokenID("jti-1")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got.UserID != 1 {
		t.Fatalf("wrong session: %+v", got)
	}

	if _, err := repo.FindActiveByTokenID("jti-unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown jti error = %v, want ErrSessionNotFound", err)
	}
}

func TestExpiredSessionIsNotActive(t *testing.T) {
	repo := newSessionRepoForTest(t)
	s := &domain.Session{UserID: 2, TokenID: "jti-expired", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := repo.Create(s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.FindActiveByTokenID("jti-expired"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session treated as active: %v", err)
	}
}

func TestRevokeByUserID(t *testing.T) {
	repo := newSessionRepoForTest(t)
	for i, jti := range []string{"jti-a", "jti-b"} {
		s := &domain.Session{UserID: 3, TokenID: jti, ExpiresAt: time.Now().Add(time.Hour)}
		if err := repo.Create(s); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	if err := repo.RevokeByUserID(3, "logout"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	for _, jti := range []string{"jti-a", "jti-b"} {
		if _, err := repo.FindActiveByTokenID(jti); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("session %s still active after revocation", jti)
		}
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	repo := newSessionRepoForTest(t)
	live := &domain.Session{UserID: 4, TokenID: "jti-live", ExpiresAt: time.Now().Add(time.Hour)}
	dead := &domain.Session{UserID: 4, TokenID: "jti-dead", ExpiresAt: time.Now().Add(-time.Hour)}
	for _, s := range []*domain.Session{live, dead} {
		if err := repo.Create(s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	removed, err := repo.CleanupExpired()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if _, err := repo.FindActiveByTokenID("jti-live"); err != nil {
		t.Fatalf("live session swept: %v", err)
	}
}
