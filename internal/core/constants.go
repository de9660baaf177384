package core

import "time"

// HTTP client config constants
const (
	HTTPMaxIdleConns          = 500
	HTTPMaxIdleConnsPerHost   = 100
	HTTPMaxConnsPerHost       = 200
	HTTPIdleConnTimeout       = 600 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPResponseHeaderTimeout = 30 * time.Second
	HTTPExpectContinueTimeout = 5 * time.Second
	HTTPRequestTimeout        = 5 * time.Minute
)

// Cache config constants
const (
	CacheDefaultCapacity = 1000
	CacheCleanupInterval = 5 * time.Minute
	SessionCacheTTL      = 5 * time.Minute
	RoutingCacheTTL      = 10 * time.Minute
	AssistantCacheTTL    = 24 * time.Hour
	CacheKeyVersion      = "v1"
)

// Stats and monitoring constants
const (
	StatsFilePath        = "stats.json"
	MinSaveInterval      = 5 * time.Second
	HistoryBufferSize    = 1000
	HistoryBatchSize     = 100
	HistoryFlushInterval = 100 * time.Millisecond
)

// Assistant run polling constants
const (
	RunPollDeadline    = 60 * time.Second
	RunPollShortDelay  = 500 * time.Millisecond
	RunPollMediumDelay = 1 * time.Second
	RunPollLongDelay   = 2 * time.Second
	RunPollShortPhase  = 3
	RunPollMediumPhase = 10
)

// Session constants
const (
	SessionTTL        = 7 * 24 * time.Hour
	SessionTokenBytes = 32
)

// Response body size limits
const (
	MaxResponseBodySize = 10 * 1024 * 1024
)

// Upload limits
const (
	MaxUploadSizeBytes = 10 * 1024 * 1024
	MaxExtractedRunes  = 50000
)

// Logging config constants
const (
	MaxDebugFilePathLength = 260
)

// File permission constants
const (
	FilePermissionReadWrite = 0644
	DirPermission           = 0755
)

// Time format constants
const (
	TimeFormatDateTime = "2006-01-02 15:04:05"
	TimeFormatCompact  = "20060102_150405"
)

// Default config constants
const (
	DefaultPort              = "8080"
	DefaultGinMode           = "release"
	DefaultRoutingConfigPath = "config/routing.json"
	DefaultSQLitePath        = "data/aiboost.db"
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultRateLimit         = 120
	DefaultCleanupAfterDays  = 30
	CORSMaxAge               = "86400"
)

// HTTP header constants
const (
	ContentTypeJSON     = "application/json"
	ContentTypeHTML     = "text/html; charset=utf-8"
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
	HeaderXAPIKey       = "x-api-key"
	HeaderRequestID     = "X-Request-ID"
	AuthBearerPrefix    = "Bearer "
)

// ID prefix constants
const (
	ConversationIDPrefix = "conv"
	MessageIDPrefix      = "msg"
	ThreadIDPrefix       = "thread_"
)
