package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"aiboost/internal/chat"
	"aiboost/internal/core"
	"aiboost/internal/extract"

	"github.com/gin-gonic/gin"
)

func (s *Server) postChat(c *gin.Context) {
	var req core.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	s.processChat(c, chat.Request{
		UserID:          currentUserID(c),
		ConversationID:  req.ConversationID,
		ThreadID:        req.ThreadID,
		Message:         req.Message,
		ModelPreference: req.ModelPreference,
		APIKey:          req.APIKey,
	})
}

// postUpload accepts a multipart document plus an optional message and runs
// the chat pipeline with the extracted text prepended to the prompt.
func (s *Server) postUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, core.MaxUploadSizeBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}

	text, err := extract.FromUpload(fileHeader.Filename, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.processChat(c, chat.Request{
		UserID:         currentUserID(c),
		ConversationID: c.PostForm("conversation_id"),
		Message:        extract.WrapForPrompt(fileHeader.Filename, text, c.PostForm("message")),
		APIKey:         c.PostForm("api_key"),
	})
}

func (s *Server) processChat(c *gin.Context, req chat.Request) {
	start := time.Now()

	result, err := s.processor.Process(c.Request.Context(), req)
	if err != nil {
		s.respondChatError(c, err)
		return
	}

	s.metricsService.RecordHTTPRequest(time.Since(start))
	c.JSON(http.StatusOK, result)
}

// respondChatError maps pipeline failures onto HTTP statuses: missing keys
// are the caller's problem, exhausted provider chains are upstream's.
func (s *Server) respondChatError(c *gin.Context, err error) {
	s.metricsService.RecordHTTPError()

	var upstream *chat.UpstreamError
	var storeErr *chat.StoreError
	switch {
	case errors.Is(err, core.ErrNoAPIKey):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No OpenAI API key configured. Set one in your profile or pass api_key."})
	case errors.As(err, &upstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": upstream.Message})
	case errors.As(err, &storeErr):
		s.config.Logger.Error("Failed to persist chat exchange: %v", storeErr.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	default:
		if c.Request.Context().Err() != nil {
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "request cancelled"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// listModels exposes the routing tiers so clients can offer a model picker.
func (s *Server) listModels(c *gin.Context) {
	routing := s.config.Routing
	models := gin.H{}
	for _, tier := range []string{core.TierSimple, core.TierComplex, core.TierWebSearch, core.TierFallback} {
		models[tier] = routing.ModelForTier(tier)
	}
	c.JSON(http.StatusOK, gin.H{
		"models": models,
		"settings": gin.H{
			"enable_model_selection": routing.Settings.EnableModelSelection,
			"complexity_threshold":   routing.Settings.ComplexityThreshold,
		},
	})
}

func (s *Server) runCleanup(c *gin.Context) {
	removed, err := s.store.Cleanup(c.Request.Context(), s.config.CleanupAfterDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
