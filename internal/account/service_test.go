package account

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"aiboost/internal/cache"
	"aiboost/internal/core"
	"aiboost/internal/storage"
)

func newTestService(t *testing.T, envKey string) *Service {
	t.Helper()
	store, err := storage.OpenStore(storage.StoreConfig{
		SQLitePath: filepath.Join(t.TempDir(), "accounts.db"),
		Logger:     &core.NopLogger{},
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cacheService := cache.NewCacheService()
	t.Cleanup(cacheService.Stop)

	svc, err := NewService(ServiceConfig{
		Store:     store,
		Cache:     cacheService,
		SecretKey: "unit-test-secret",
		EnvAPIKey: envKey,
		Logger:    &core.NopLogger{},
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "hunter2222")
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if user.PasswordHash == "hunter2222" {
		t.Error("Password must not be stored in the clear")
	}

	session, loggedIn, err := svc.Login(ctx, "alice", "hunter2222")
	if err != nil {
		t.Fatalf("Failed to log in: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Errorf("Expected user %s, got %s", user.ID, loggedIn.ID)
	}
	if session.Token == "" {
		t.Fatal("Expected a session token")
	}

	authed, err := svc.Authenticate(ctx, session.Token)
	if err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}
	if authed.Username != "alice" {
		t.Errorf("Expected alice, got %s", authed.Username)
	}

	// Second lookup hits the session cache.
	authed, err = svc.Authenticate(ctx, session.Token)
	if err != nil {
		t.Fatalf("Failed to authenticate from cache: %v", err)
	}
	if authed.Username != "alice" {
		t.Errorf("Expected alice from cache, got %s", authed.Username)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "", "longenough"); err == nil {
		t.Error("Expected error for too-short username")
	}
	if _, err := svc.Register(ctx, "has space", "", "longenough"); err == nil {
		t.Error("Expected error for username with spaces")
	}
	if _, err := svc.Register(ctx, "valid_name", "", "short"); err == nil {
		t.Error("Expected error for short password")
	}

	if _, err := svc.Register(ctx, "taken", "", "longenough"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if _, err := svc.Register(ctx, "taken", "", "longenough"); !errors.Is(err, core.ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob", "", "password1"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "bob", "wrong-password"); !errors.Is(err, core.ErrBadCredentials) {
		t.Errorf("Expected ErrBadCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "password1"); !errors.Is(err, core.ErrBadCredentials) {
		t.Errorf("Expected ErrBadCredentials for unknown user, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "carol", "", "password1"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	session, _, err := svc.Login(ctx, "carol", "password1")
	if err != nil {
		t.Fatalf("Failed to log in: %v", err)
	}

	if err := svc.Logout(ctx, session.Token); err != nil {
		t.Fatalf("Failed to log out: %v", err)
	}
	if _, err := svc.Authenticate(ctx, session.Token); !errors.Is(err, core.ErrBadSession) {
		t.Errorf("Expected ErrBadSession after logout, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, core.ErrBadSession) {
		t.Errorf("Expected ErrBadSession for empty token, got %v", err)
	}
}

func TestResolveAPIKeyPrecedence(t *testing.T) {
	svc := newTestService(t, "sk-env-fallback")
	ctx := context.Background()

	user, err := svc.Register(ctx, "dave", "", "password1")
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	// No stored key: the server-wide key applies.
	key, err := svc.ResolveAPIKey(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if key != "sk-env-fallback" {
		t.Errorf("Expected env key, got %q", key)
	}

	if err := svc.StoreAPIKey(ctx, user.ID, "sk-stored"); err != nil {
		t.Fatalf("Failed to store key: %v", err)
	}
	key, err = svc.ResolveAPIKey(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if key != "sk-stored" {
		t.Errorf("Expected stored key to beat env key, got %q", key)
	}

	key, err = svc.ResolveAPIKey(ctx, user.ID, "sk-explicit")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if key != "sk-explicit" {
		t.Errorf("Expected explicit key to win, got %q", key)
	}

	if !svc.HasStoredKey(ctx, user.ID) {
		t.Error("Expected HasStoredKey true after storing")
	}
	if err := svc.RemoveAPIKey(ctx, user.ID); err != nil {
		t.Fatalf("Failed to remove key: %v", err)
	}
	if err := svc.RemoveAPIKey(ctx, user.ID); err != nil {
		t.Errorf("Removing an absent key should be a no-op, got %v", err)
	}
	if svc.HasStoredKey(ctx, user.ID) {
		t.Error("Expected HasStoredKey false after removal")
	}
}

func TestResolveAPIKeyNoKey(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	user, err := svc.Register(ctx, "erin", "", "password1")
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if _, err := svc.ResolveAPIKey(ctx, user.ID, ""); !errors.Is(err, core.ErrNoAPIKey) {
		t.Errorf("Expected ErrNoAPIKey, got %v", err)
	}
	if err := svc.StoreAPIKey(ctx, user.ID, "   "); err == nil {
		t.Error("Expected error storing a blank key")
	}
}

func TestEnsureDefaultUser(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	user, err := svc.EnsureDefaultUser(ctx)
	if err != nil {
		t.Fatalf("Failed to ensure default user: %v", err)
	}
	if user.ID != core.DefaultUserID {
		t.Errorf("Expected %s, got %s", core.DefaultUserID, user.ID)
	}

	again, err := svc.EnsureDefaultUser(ctx)
	if err != nil {
		t.Fatalf("Second ensure failed: %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("Expected the same account, got %s", again.ID)
	}

	if _, _, err := svc.Login(ctx, core.DefaultUsername, ""); !errors.Is(err, core.ErrBadCredentials) {
		t.Errorf("Default user must not be loginable, got %v", err)
	}
}
