package storage

import (
	"context"
	"fmt"
	"time"

	"aiboost/internal/core"
	"aiboost/internal/util"
)

// ExportConversation packages a conversation and its messages for download.
func (s *SQLStore) ExportConversation(ctx context.Context, id, userID string) (*core.ConversationExport, error) {
	conv, err := s.GetConversation(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	messages := conv.Messages
	meta := *conv
	meta.Messages = nil
	if messages == nil {
		messages = []core.StoredMessage{}
	}

	return &core.ConversationExport{
		Version:      core.ExportVersion,
		ExportedAt:   time.Now().UTC(),
		Conversation: meta,
		Messages:     messages,
	}, nil
}

// ImportConversation recreates an exported conversation under userID with
// fresh IDs. Thread bindings are not carried over; the assistant thread
// belongs to the exporting account's API key.
func (s *SQLStore) ImportConversation(ctx context.Context, userID string, export *core.ConversationExport) (*core.Conversation, error) {
	if export == nil {
		return nil, fmt.Errorf("import: empty export")
	}
	if export.Version != core.ExportVersion {
		return nil, fmt.Errorf("import: unsupported export version %q", export.Version)
	}

	title := export.Conversation.Title
	if title == "" {
		title = "Imported conversation"
	}

	conv, err := s.CreateConversation(ctx, userID, title, export.Conversation.Preview)
	if err != nil {
		return nil, err
	}

	messages := export.Messages
	if len(messages) == 0 {
		// Older exports nested messages inside the conversation.
		messages = export.Conversation.Messages
	}

	for i := range messages {
		src := messages[i]
		msg := &core.StoredMessage{
			ID:             util.GenerateTimestampedID(core.MessageIDPrefix),
			ConversationID: conv.ID,
			Role:           src.Role,
			Content:        src.Content,
			Model:          src.Model,
			TokensUsed:     src.TokensUsed,
			Metadata:       src.Metadata,
			Timestamp:      src.Timestamp,
		}
		if _, err := s.AppendMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("import message %d: %w", i+1, err)
		}
	}

	return s.GetConversation(ctx, conv.ID, userID)
}
