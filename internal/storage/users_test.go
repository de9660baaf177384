package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"aiboost/internal/core"
)

func TestCreateUserAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &core.User{
		ID:           "user_1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	dup := &core.User{ID: "user_2", Username: "alice", PasswordHash: "hash2", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, core.ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}

	got, err := store.UserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to look up user: %v", err)
	}
	if got.ID != "user_1" || got.Email != "alice@example.com" || !got.IsActive {
		t.Errorf("Unexpected user: %+v", got)
	}
	if !got.LastLogin.IsZero() {
		t.Errorf("Expected zero last login for new user, got %v", got.LastLogin)
	}

	byID, err := store.UserByID(ctx, "user_1")
	if err != nil {
		t.Fatalf("Failed to look up user by id: %v", err)
	}
	if byID.Username != "alice" {
		t.Errorf("Expected alice, got %s", byID.Username)
	}

	if _, err := store.UserByUsername(ctx, "nobody"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserEmptyEmails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &core.User{ID: "user_1", Username: "alice", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, first); err != nil {
		t.Fatalf("Failed to create first user: %v", err)
	}

	// The email column is UNIQUE; users without an email must not collide.
	second := &core.User{ID: "user_2", Username: "bob", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, second); err != nil {
		t.Fatalf("Second user without email should be accepted: %v", err)
	}
	third := &core.User{ID: "user_3", Username: "carol", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, third); err != nil {
		t.Fatalf("Third user without email should be accepted: %v", err)
	}

	got, err := store.UserByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("Failed to look up user: %v", err)
	}
	if got.Email != "" {
		t.Errorf("Expected empty email, got %q", got.Email)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &core.User{ID: "user_1", Username: "alice", Email: "shared@example.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, first); err != nil {
		t.Fatalf("Failed to create first user: %v", err)
	}

	dup := &core.User{ID: "user_2", Username: "bob", Email: "shared@example.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, core.ErrEmailExists) {
		t.Errorf("Expected ErrEmailExists for duplicate email, got %v", err)
	}
}

func TestTouchLastLogin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &core.User{ID: "user_1", Username: "bob", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	if err := store.TouchLastLogin(ctx, "user_1"); err != nil {
		t.Fatalf("Failed to touch last login: %v", err)
	}
	got, _ := store.UserByID(ctx, "user_1")
	if got.LastLogin.IsZero() {
		t.Error("Expected last login timestamp after touch")
	}

	if err := store.TouchLastLogin(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &core.User{ID: "user_1", Username: "carol", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	now := time.Now().UTC()
	session := &core.Session{Token: "tok-valid", UserID: "user_1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	got, err := store.SessionUser(ctx, "tok-valid")
	if err != nil {
		t.Fatalf("Failed to resolve session: %v", err)
	}
	if got.ID != "user_1" {
		t.Errorf("Expected user_1, got %s", got.ID)
	}

	if _, err := store.SessionUser(ctx, "tok-unknown"); !errors.Is(err, core.ErrBadSession) {
		t.Errorf("Expected ErrBadSession for unknown token, got %v", err)
	}

	if err := store.DeleteSession(ctx, "tok-valid"); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	if _, err := store.SessionUser(ctx, "tok-valid"); !errors.Is(err, core.ErrBadSession) {
		t.Errorf("Expected ErrBadSession after logout, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &core.User{ID: "user_1", Username: "dave", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	now := time.Now().UTC()
	expired := &core.Session{Token: "tok-expired", UserID: "user_1", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	if err := store.CreateSession(ctx, expired); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err := store.SessionUser(ctx, "tok-expired"); !errors.Is(err, core.ErrBadSession) {
		t.Errorf("Expected ErrBadSession for expired token, got %v", err)
	}

	var left int
	if err := store.db.QueryRowContext(ctx,
		store.rebind(`SELECT COUNT(*) FROM sessions WHERE token = ?`), "tok-expired").Scan(&left); err != nil {
		t.Fatalf("Failed to count sessions: %v", err)
	}
	if left != 0 {
		t.Error("Expired session should be removed on lookup")
	}
}

func TestSessionInactiveUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &core.User{ID: "user_1", Username: "eve", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	now := time.Now().UTC()
	session := &core.Session{Token: "tok-1", UserID: "user_1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err := store.db.ExecContext(ctx,
		store.rebind(`UPDATE users SET is_active = FALSE WHERE id = ?`), "user_1"); err != nil {
		t.Fatalf("Failed to deactivate user: %v", err)
	}

	if _, err := store.SessionUser(ctx, "tok-1"); !errors.Is(err, core.ErrBadSession) {
		t.Errorf("Expected ErrBadSession for deactivated user, got %v", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &core.User{ID: "user_1", Username: "frank", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	if _, err := store.APIKey(ctx, "user_1", core.ProviderOpenAI); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound before storing a key, got %v", err)
	}

	if err := store.UpsertAPIKey(ctx, "user_1", core.ProviderOpenAI, "ciphertext-1"); err != nil {
		t.Fatalf("Failed to store api key: %v", err)
	}
	got, err := store.APIKey(ctx, "user_1", core.ProviderOpenAI)
	if err != nil {
		t.Fatalf("Failed to load api key: %v", err)
	}
	if got != "ciphertext-1" {
		t.Errorf("Expected ciphertext-1, got %q", got)
	}

	if err := store.UpsertAPIKey(ctx, "user_1", core.ProviderOpenAI, "ciphertext-2"); err != nil {
		t.Fatalf("Failed to replace api key: %v", err)
	}
	got, _ = store.APIKey(ctx, "user_1", core.ProviderOpenAI)
	if got != "ciphertext-2" {
		t.Errorf("Expected replacement to win, got %q", got)
	}

	if err := store.DeleteAPIKey(ctx, "user_1", core.ProviderOpenAI); err != nil {
		t.Fatalf("Failed to delete api key: %v", err)
	}
	if err := store.DeleteAPIKey(ctx, "user_1", core.ProviderOpenAI); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}
