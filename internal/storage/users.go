package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"aiboost/internal/core"
)

// CreateUser inserts a new account. Duplicate usernames map to ErrUserExists,
// duplicate emails to ErrEmailExists. An absent email is stored as NULL, not
// '': the email column is UNIQUE and two empty strings would collide.
func (s *SQLStore) CreateUser(ctx context.Context, user *core.User) error {
	query := s.rebind(`INSERT INTO users (id, username, email, password_hash, created_at, last_login, is_active)
		VALUES (?, ?, ?, ?, ?, '', TRUE)`)

	email := sql.NullString{String: user.Email, Valid: user.Email != ""}
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Username, email, user.PasswordHash, fmtTime(user.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(strings.ToLower(err.Error()), "email") {
				return core.ErrEmailExists
			}
			return core.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// isUniqueViolation covers both backends without importing driver error
// types: modernc reports "UNIQUE constraint failed: users.<column>", lib/pq
// `duplicate key value violates unique constraint "users_<column>_key"`.
// Both spell out the column name, which CreateUser relies on.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

// UserByUsername looks up an active account by username.
func (s *SQLStore) UserByUsername(ctx context.Context, username string) (*core.User, error) {
	query := s.rebind(`SELECT id, username, email, password_hash, created_at, last_login, is_active
		FROM users WHERE username = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// UserByID looks up an account by id.
func (s *SQLStore) UserByID(ctx context.Context, id string) (*core.User, error) {
	query := s.rebind(`SELECT id, username, email, password_hash, created_at, last_login, is_active
		FROM users WHERE id = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) scanUser(row *sql.Row) (*core.User, error) {
	var user core.User
	var email sql.NullString
	var createdAt, lastLogin string
	err := row.Scan(&user.ID, &user.Username, &email, &user.PasswordHash, &createdAt, &lastLogin, &user.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Email = email.String
	user.CreatedAt = parseTime(createdAt)
	user.LastLogin = parseTime(lastLogin)
	return &user, nil
}

// TouchLastLogin records a successful login.
func (s *SQLStore) TouchLastLogin(ctx context.Context, id string) error {
	query := s.rebind(`UPDATE users SET last_login = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return requireRowAffected(result)
}

// CreateSession stores a login session token.
func (s *SQLStore) CreateSession(ctx context.Context, session *core.Session) error {
	query := s.rebind(`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, session.Token, session.UserID,
		fmtTime(session.CreatedAt), fmtTime(session.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SessionUser resolves a session token to its active user. Expired sessions
// are removed on sight and report ErrBadSession, as do unknown tokens and
// deactivated accounts.
func (s *SQLStore) SessionUser(ctx context.Context, token string) (*core.User, error) {
	query := s.rebind(`SELECT u.id, u.username, u.email, u.password_hash, u.created_at, u.last_login, u.is_active, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ?`)

	var user core.User
	var email sql.NullString
	var createdAt, lastLogin, expiresAt string
	err := s.db.QueryRowContext(ctx, query, token).Scan(&user.ID, &user.Username, &email,
		&user.PasswordHash, &createdAt, &lastLogin, &user.IsActive, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrBadSession
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}

	if parseTime(expiresAt).Before(time.Now()) {
		_ = s.DeleteSession(ctx, token)
		return nil, core.ErrBadSession
	}
	if !user.IsActive {
		return nil, core.ErrBadSession
	}

	user.Email = email.String
	user.CreatedAt = parseTime(createdAt)
	user.LastLogin = parseTime(lastLogin)
	return &user, nil
}

// DeleteSession removes a session token. Missing tokens are not an error.
func (s *SQLStore) DeleteSession(ctx context.Context, token string) error {
	query := s.rebind(`DELETE FROM sessions WHERE token = ?`)
	if _, err := s.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UpsertAPIKey stores or replaces a user's encrypted provider key.
func (s *SQLStore) UpsertAPIKey(ctx context.Context, userID, provider, encryptedKey string) error {
	query := s.rebind(`INSERT INTO user_api_keys (user_id, provider, encrypted_key, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET encrypted_key = excluded.encrypted_key, updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query, userID, provider, encryptedKey, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	return nil
}

// APIKey returns the user's encrypted provider key.
func (s *SQLStore) APIKey(ctx context.Context, userID, provider string) (string, error) {
	query := s.rebind(`SELECT encrypted_key FROM user_api_keys WHERE user_id = ? AND provider = ?`)

	var encrypted string
	err := s.db.QueryRowContext(ctx, query, userID, provider).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load api key: %w", err)
	}
	return encrypted, nil
}

// DeleteAPIKey removes a stored provider key.
func (s *SQLStore) DeleteAPIKey(ctx context.Context, userID, provider string) error {
	query := s.rebind(`DELETE FROM user_api_keys WHERE user_id = ? AND provider = ?`)
	result, err := s.db.ExecContext(ctx, query, userID, provider)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return requireRowAffected(result)
}
