package core

import "time"

// Conversation is a stored chat conversation. Messages and MessageCount are
// populated depending on the query that produced the value.
type Conversation struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Title        string          `json:"title"`
	Preview      string          `json:"preview"`
	ThreadID     string          `json:"thread_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	MessageCount int             `json:"message_count,omitempty"`
	Messages     []StoredMessage `json:"messages,omitempty"`
}

// StoredMessage is a single persisted chat message.
type StoredMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
	TokensUsed     int       `json:"tokens_used"`
	Order          int       `json:"message_order"`
	Metadata       string    `json:"metadata,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// UsageStats summarizes a user's stored activity.
type UsageStats struct {
	Conversations int64     `json:"total_conversations"`
	Messages      int64     `json:"total_messages"`
	Tokens        int64     `json:"total_tokens"`
	FirstActivity time.Time `json:"first_activity,omitempty"`
	LastActivity  time.Time `json:"last_activity,omitempty"`
}

// ConversationExport is the portable conversation exchange format. Messages
// travel at the top level; Conversation carries metadata only.
type ConversationExport struct {
	Version      string          `json:"version"`
	ExportedAt   time.Time       `json:"exported_at"`
	Conversation Conversation    `json:"conversation"`
	Messages     []StoredMessage `json:"messages"`
}

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login,omitempty"`
	IsActive     bool      `json:"is_active"`
}

// Session is a server-side login session.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
