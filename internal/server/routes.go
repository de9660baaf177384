package server

import (
	"embed"
	"net/http"

	"aiboost/internal/metrics"

	"github.com/gin-gonic/gin"
)

// ChatPageHTML holds the embedded browser chat UI.
//
//go:embed static/index.html
var ChatPageHTML embed.FS

func (s *Server) setupRoutes() {
	gin.SetMode(s.ginMode)
	s.router = gin.New()

	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.maxBodySizeMiddleware())
	s.router.Use(s.rateLimitMiddleware())

	// Public routes (no auth)
	s.router.GET("/", s.showChatPage)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/stats", metrics.ShowStatsPage)
	s.router.GET("/api/stats", s.getStatsData)

	// Auth routes
	s.router.POST("/api/auth/register", s.register)
	s.router.POST("/api/auth/login", s.login)

	// Session-optional API: anonymous requests run as the default user.
	api := s.router.Group("/api")
	api.Use(s.optionalSessionAuth)
	{
		api.POST("/chat", s.postChat)
		api.POST("/upload", s.postUpload)
		api.GET("/models", s.listModels)
		api.GET("/usage", s.getUsage)

		api.GET("/conversations", s.listConversations)
		api.GET("/conversations/search", s.searchConversations)
		api.GET("/conversations/:id", s.getConversation)
		api.PUT("/conversations/:id", s.renameConversation)
		api.DELETE("/conversations/:id", s.deleteConversation)
		api.GET("/conversations/:id/export", s.exportConversation)
		api.POST("/conversations/import", s.importConversation)
	}

	// Session-required API: these need a real logged-in identity.
	authed := s.router.Group("/api")
	authed.Use(s.requireSessionAuth)
	{
		authed.POST("/auth/logout", s.logout)
		authed.GET("/auth/me", s.currentUser)
		authed.PUT("/keys", s.putAPIKey)
		authed.DELETE("/keys", s.deleteAPIKey)
	}

	// Admin routes (admin API key required)
	admin := s.router.Group("/api/admin")
	admin.Use(s.authenticateAdmin)
	{
		admin.POST("/cleanup", s.runCleanup)
	}
}

func (s *Server) showChatPage(c *gin.Context) {
	data, err := ChatPageHTML.ReadFile("static/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to load chat page")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}
