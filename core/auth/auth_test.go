package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"securepatrol/config"
	"securepatrol/core/store"
	"securepatrol/core/utils"
)

func setupAuth(t *testing.T) (*config.AppConfig, store.SessionStore, *store.User) {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "auth.db"), SessionTTL: time.Hour, CSRFKey: "k"}
	logger := utils.NewNopLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	users := store.NewUsersStore(db)
	u := &store.User{Username: "alice", Name: "Alice", PasswordHash: MustHashPassword("correct-horse"), Role: store.RoleSupervisor, Active: true}
	if _, err := users.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return cfg, store.NewSessionsStore(db), u
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(h, "correct-horse"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := CheckPassword(h, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestCSRFBoundToSession(t *testing.T) {
	a, err := GenerateCSRF("key", "s1")
	if err != nil {
		t.Fatalf("csrf: %v", err)
	}
	b, _ := GenerateCSRF("key", "s2")
	if a == b {
		t.Fatalf("tokens for different sessions must differ")
	}
	if !ValidCSRF(a, a, a) {
		t.Fatalf("matching header/cookie/session should validate")
	}
	if ValidCSRF(a, b, a) || ValidCSRF("", "", "") {
		t.Fatalf("mismatched or empty tokens must not validate")
	}
	if _, err := GenerateCSRF("", "s1"); err == nil {
		t.Fatalf("expected error without key")
	}
}

func TestSessionManagerCreateAndDelete(t *testing.T) {
	cfg, sessions, u := setupAuth(t)
	ctx := context.Background()
	sm := NewSessionManager(sessions, cfg, nil)
	sess, err := sm.Create(ctx, u, "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	want, _ := GenerateCSRF(cfg.CSRFKey, sess.ID)
	if sess.CSRFToken != want {
		t.Fatalf("csrf token not derived from key")
	}
	saved, err := sessions.GetSession(ctx, sess.ID)
	if err != nil || saved == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if len(saved.Roles) != 1 || saved.Roles[0] != store.RoleSupervisor {
		t.Fatalf("unexpected roles %v", saved.Roles)
	}
	if err := sm.Refresh(ctx, sess.ID); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := sm.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := sessions.GetSession(ctx, sess.ID); got != nil {
		t.Fatalf("session still present after delete")
	}
}

func TestSweeperRemovesExpired(t *testing.T) {
	cfg, sessions, u := setupAuth(t)
	ctx := context.Background()
	sm := NewSessionManager(sessions, cfg, nil)
	if _, err := sm.Create(ctx, u, "", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	sw := NewSessionSweeper(sessions, "", utils.NewNopLogger())
	if n := sw.Sweep(ctx); n != 0 {
		t.Fatalf("fresh session swept: %d", n)
	}
	sw.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if n := sw.Sweep(ctx); n != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", n)
	}
}

func TestSweeperStartStop(t *testing.T) {
	_, sessions, _ := setupAuth(t)
	ctx, cancel := context.WithCancel(context.Background())
	sw := NewSessionSweeper(sessions, "@every 1h", nil)
	if err := sw.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	sw.Stop()
	bad := NewSessionSweeper(sessions, "not a spec", nil)
	if err := bad.Start(context.Background()); err == nil {
		t.Fatalf("expected invalid cron spec error")
	}
}
