package server

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"aiboost/internal/core"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MaxBodySize is the maximum allowed request body size (50MB).
const MaxBodySize = 50 << 20

// userContextKey is where the authenticated user sits in the gin context.
const userContextKey = "aiboost.user"

// requestIDMiddleware tags each request with an ID so log lines from one
// request can be correlated. An inbound X-Request-ID is honored.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(core.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(core.HeaderRequestID, requestID)
		c.Header(core.HeaderRequestID, requestID)
		c.Next()
	}
}

func (s *Server) maxBodySizeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)
		c.Next()
	}
}

type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitorInfo
	rate     int
	cleanup  time.Duration
}

type visitorInfo struct {
	count    int
	lastSeen time.Time
}

func newRateLimiter(ratePerMinute int) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitorInfo),
		rate:     ratePerMinute,
		cleanup:  5 * time.Minute,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, exists := rl.visitors[ip]
	if !exists || time.Since(v.lastSeen) > time.Minute {
		rl.visitors[ip] = &visitorInfo{count: 1, lastSeen: time.Now()}
		return true
	}
	v.count++
	v.lastSeen = time.Now()
	return v.count <= rl.rate
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !s.rateLimiter.allow(ip) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowOrigin := os.Getenv("CORS_ALLOW_ORIGIN")
	if allowOrigin == "" {
		allowOrigin = "*"
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", core.CORSMaxAge)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// sessionToken pulls the bearer token from the Authorization header.
func sessionToken(c *gin.Context) string {
	header := c.GetHeader(core.HeaderAuthorization)
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, core.AuthBearerPrefix)
}

// optionalSessionAuth resolves the session when one is presented; anonymous
// requests proceed as the default user. A token that is presented but
// invalid is still rejected so clients learn their session expired.
func (s *Server) optionalSessionAuth(c *gin.Context) {
	token := sessionToken(c)
	if token == "" {
		c.Set(userContextKey, &core.User{ID: core.DefaultUserID, Username: core.DefaultUsername, IsActive: true})
		c.Next()
		return
	}

	user, err := s.accounts.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
		c.Abort()
		return
	}

	c.Set(userContextKey, user)
	c.Next()
}

// requireSessionAuth rejects requests without a valid login session.
func (s *Server) requireSessionAuth(c *gin.Context) {
	token := sessionToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session token required in Authorization header (Bearer)"})
		c.Abort()
		return
	}

	user, err := s.accounts.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
		c.Abort()
		return
	}

	c.Set(userContextKey, user)
	c.Next()
}

// currentUserID returns the user the request runs as. Middleware always sets
// one, so an absent value means a route was wired without auth middleware.
func currentUserID(c *gin.Context) string {
	if user := currentUserFrom(c); user != nil {
		return user.ID
	}
	return core.DefaultUserID
}

func currentUserFrom(c *gin.Context) *core.User {
	value, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, ok := value.(*core.User)
	if !ok {
		return nil
	}
	return user
}

func (s *Server) isAdminKey(providedKey string) bool {
	providedBytes := []byte(providedKey)
	for validKey := range s.adminKeys {
		validBytes := []byte(validKey)
		if len(providedBytes) == len(validBytes) && subtle.ConstantTimeCompare(providedBytes, validBytes) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) authenticateAdmin(c *gin.Context) {
	if len(s.adminKeys) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no admin API keys configured"})
		c.Abort()
		return
	}

	token := sessionToken(c)
	if token == "" || !s.isAdminKey(token) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin API key required"})
		c.Abort()
		return
	}

	c.Next()
}
