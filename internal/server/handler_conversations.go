package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"aiboost/internal/core"
	"aiboost/internal/util"

	"github.com/gin-gonic/gin"
)

func (s *Server) listConversations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	conversations, err := s.store.ListConversations(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		s.config.Logger.Error("Failed to list conversations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (s *Server) getConversation(c *gin.Context) {
	conv, err := s.store.GetConversation(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}

	// A conversation with a thread but no stored messages (imported, or
	// written by an older build) can still be read back from the thread.
	if len(conv.Messages) == 0 && conv.ThreadID != "" {
		s.restoreFromThread(c, conv)
	}
	c.JSON(http.StatusOK, conv)
}

// restoreFromThread fills in messages from the assistant thread. Best effort:
// a failure leaves the conversation as stored.
func (s *Server) restoreFromThread(c *gin.Context, conv *core.Conversation) {
	ctx := c.Request.Context()
	apiKey, err := s.accounts.ResolveAPIKey(ctx, conv.UserID, "")
	if err != nil {
		return
	}

	history, err := s.assistants.ThreadHistory(ctx, s.clients(apiKey), conv.ThreadID)
	if err != nil {
		s.config.Logger.Warn("Thread restore for %s failed: %v", conv.ID, err)
		return
	}

	for _, msg := range history {
		conv.Messages = append(conv.Messages, core.StoredMessage{
			ConversationID: conv.ID,
			Role:           msg.Role,
			Content:        msg.Content,
		})
	}
}

type renameRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) renameConversation(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	title := util.TruncateRunes(strings.TrimSpace(req.Title), core.TitleMaxRunes)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	if err := s.store.RenameConversation(c.Request.Context(), c.Param("id"), currentUserID(c), title); err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed", "title": title})
}

func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.store.DeleteConversation(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) searchConversations(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	conversations, err := s.store.SearchConversations(c.Request.Context(), currentUserID(c), query)
	if err != nil {
		s.config.Logger.Error("Conversation search failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations, "query": query})
}

func (s *Server) exportConversation(c *gin.Context) {
	export, err := s.store.ExportConversation(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Conversation.ID+`.json"`)
	c.JSON(http.StatusOK, export)
}

func (s *Server) importConversation(c *gin.Context) {
	var export core.ConversationExport
	if err := c.ShouldBindJSON(&export); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid export payload"})
		return
	}

	conv, err := s.store.ImportConversation(c.Request.Context(), currentUserID(c), &export)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) getUsage(c *gin.Context) {
	stats, err := s.store.UsageStats(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.config.Logger.Error("Failed to compute usage stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute usage"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	s.config.Logger.Error("Store operation failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
