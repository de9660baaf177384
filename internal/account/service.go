package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"aiboost/internal/cache"
	"aiboost/internal/core"
	"aiboost/internal/util"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

const minPasswordLength = 8

// ServiceConfig wires the user service dependencies.
type ServiceConfig struct {
	Store     core.UserStore
	Cache     *cache.CacheService
	SecretKey string
	EnvAPIKey string
	Logger    core.Logger
}

// Service handles registration, login sessions and per-user API keys.
type Service struct {
	store  core.UserStore
	cache  *cache.CacheService
	cipher *keyCipher
	envKey string
	logger core.Logger
}

// NewService creates the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("account service requires a user store")
	}

	cipher, err := newKeyCipher(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("account service: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &core.NopLogger{}
	}

	return &Service{
		store:  cfg.Store,
		cache:  cfg.Cache,
		cipher: cipher,
		envKey: cfg.EnvAPIKey,
		logger: logger,
	}, nil
}

// Register creates a new account. Usernames are 3-32 word characters,
// passwords at least 8 characters.
func (s *Service) Register(ctx context.Context, username, email, password string) (*core.User, error) {
	username = strings.TrimSpace(username)
	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("username must be 3-32 letters, digits or underscores")
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &core.User{
		ID:           util.GenerateRandomID("user"),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("Registered user %s", username)
	return user, nil
}

// Login verifies credentials and opens a session. Unknown users and wrong
// passwords both report ErrBadCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*core.Session, *core.User, error) {
	user, err := s.store.UserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil, core.ErrBadCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, core.ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, core.ErrBadCredentials
	}

	now := time.Now().UTC()
	session := &core.Session{
		Token:     util.GenerateSessionToken(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(core.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, nil, err
	}
	if err := s.store.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("Failed to record login time for %s: %v", user.Username, err)
	}

	if s.cache != nil {
		s.cache.SetSession(session.Token, user, core.SessionCacheTTL)
	}
	s.logger.Info("User %s logged in", user.Username)
	return session, user, nil
}

// Logout closes a session.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.cache != nil {
		s.cache.DeleteSession(token)
	}
	return s.store.DeleteSession(ctx, token)
}

// Authenticate resolves a session token to its user, consulting the session
// cache before the database.
func (s *Service) Authenticate(ctx context.Context, token string) (*core.User, error) {
	if token == "" {
		return nil, core.ErrBadSession
	}

	if s.cache != nil {
		if user, ok := s.cache.GetSession(token); ok {
			return user, nil
		}
	}

	user, err := s.store.SessionUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetSession(token, user, core.SessionCacheTTL)
	}
	return user, nil
}

// StoreAPIKey encrypts and saves the user's OpenAI key.
func (s *Service) StoreAPIKey(ctx context.Context, userID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("api key is empty")
	}

	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return err
	}
	return s.store.UpsertAPIKey(ctx, userID, core.ProviderOpenAI, encrypted)
}

// RemoveAPIKey deletes the user's stored OpenAI key.
func (s *Service) RemoveAPIKey(ctx context.Context, userID string) error {
	err := s.store.DeleteAPIKey(ctx, userID, core.ProviderOpenAI)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	return err
}

// HasStoredKey reports whether the user has an OpenAI key on file.
func (s *Service) HasStoredKey(ctx context.Context, userID string) bool {
	_, err := s.store.APIKey(ctx, userID, core.ProviderOpenAI)
	return err == nil
}

// ResolveAPIKey picks the OpenAI key for a request: an explicit per-request
// key wins, then the user's stored key, then the server-wide key from the
// environment. No key at all reports ErrNoAPIKey.
func (s *Service) ResolveAPIKey(ctx context.Context, userID, explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}

	if userID != "" {
		encrypted, err := s.store.APIKey(ctx, userID, core.ProviderOpenAI)
		switch {
		case err == nil:
			key, err := s.cipher.Decrypt(encrypted)
			if err != nil {
				s.logger.Warn("Stored API key for user %s is unreadable (secret key changed?): %v", userID, err)
			} else {
				return key, nil
			}
		case !errors.Is(err, core.ErrNotFound):
			return "", err
		}
	}

	if s.envKey != "" {
		return s.envKey, nil
	}
	return "", core.ErrNoAPIKey
}

// EnsureDefaultUser creates the shared account used for unauthenticated
// requests. The account has no usable password; it is reachable only by
// omitting a session, never by logging in.
func (s *Service) EnsureDefaultUser(ctx context.Context) (*core.User, error) {
	user, err := s.store.UserByID(ctx, core.DefaultUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(util.GenerateSessionToken()), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("seal default user: %w", err)
	}

	user = &core.User{
		ID:           core.DefaultUserID,
		Username:     core.DefaultUsername,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrUserExists) {
			return s.store.UserByID(ctx, core.DefaultUserID)
		}
		return nil, err
	}

	s.logger.Info("Created default user %s", core.DefaultUsername)
	return user, nil
}
