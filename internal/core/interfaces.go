package core

import (
	"context"
	"time"
)

// Logger interface
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Fatal(format string, args ...any)
}

// Cache interface
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, duration time.Duration)
	Stop()
}

// StorageInterface stats persistence interface
type StorageInterface interface {
	SaveStats(stats *RequestStats) error
	LoadStats() (*RequestStats, error)
	Close() error
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, title, preview string) (*Conversation, error)
	GetConversation(ctx context.Context, id, userID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error)
	RenameConversation(ctx context.Context, id, userID, title string) error
	DeleteConversation(ctx context.Context, id, userID string) error
	SetThreadID(ctx context.Context, conversationID, threadID string) error
	AppendMessage(ctx context.Context, msg *StoredMessage) (*StoredMessage, error)
	SearchConversations(ctx context.Context, userID, query string) ([]Conversation, error)
	UsageStats(ctx context.Context, userID string) (*UsageStats, error)
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
	ExportConversation(ctx context.Context, id, userID string) (*ConversationExport, error)
	ImportConversation(ctx context.Context, userID string, export *ConversationExport) (*Conversation, error)
	Close() error
}

// UserStore persists user accounts, sessions and per-user API keys.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	UserByUsername(ctx context.Context, username string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	TouchLastLogin(ctx context.Context, id string) error
	CreateSession(ctx context.Context, session *Session) error
	SessionUser(ctx context.Context, token string) (*User, error)
	DeleteSession(ctx context.Context, token string) error
	UpsertAPIKey(ctx context.Context, userID, provider, encryptedKey string) error
	APIKey(ctx context.Context, userID, provider string) (string, error)
	DeleteAPIKey(ctx context.Context, userID, provider string) error
}

// KeyResolver resolves the OpenAI API key to use for a request.
type KeyResolver interface {
	ResolveAPIKey(ctx context.Context, userID, explicit string) (string, error)
}

// MetricsCollector interface
type MetricsCollector interface {
	RecordHTTPRequest(duration time.Duration)
	RecordHTTPError()
	RecordCacheHit()
	RecordCacheMiss()
	GetQPS() float64
}

// NopLogger empty logger implementation
type NopLogger struct{}

func (*NopLogger) Debug(format string, args ...any) {}
func (*NopLogger) Info(format string, args ...any)  {}
func (*NopLogger) Warn(format string, args ...any)  {}
func (*NopLogger) Error(format string, args ...any) {}
func (*NopLogger) Fatal(format string, args ...any) {}

// NopMetrics empty metrics collector implementation
type NopMetrics struct{}

func (*NopMetrics) RecordHTTPRequest(duration time.Duration) {}
func (*NopMetrics) RecordHTTPError()                         {}
func (*NopMetrics) RecordCacheHit()                          {}
func (*NopMetrics) RecordCacheMiss()                         {}
func (*NopMetrics) GetQPS() float64                          { return 0 }
