package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/repository"
)

func newReposForTest(t *testing.T) (repository.LoginTokenRepository, repository.UserRepository, repository.SessionRepository) {
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
	// sqlite cannot serve concurrent write transactions; a single
	// connection serializes them without weakening the CAS guarantees
	// under test.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return repository.NewLoginTokenRepository(db), repository.NewUserRepository(db), repository.NewSessionRepository(db)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, client
}

type stubLimiter struct {
	allow bool
	err   error
	calls int
	mu    sync.Mutex
}

func (s *stubLimiter) Allow(context.Context, string, int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.allow, s.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	chatIDs []int64
}

func (r *recordingNotifier) LoginApproved(_ context.Context, chatID int64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chatIDs = append(r.chatIDs, chatID)
	return nil
}
