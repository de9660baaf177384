package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aiboost/internal/core"
	"aiboost/internal/util"
)

// CreateConversation inserts a new conversation owned by userID.
func (s *SQLStore) CreateConversation(ctx context.Context, userID, title, preview string) (*core.Conversation, error) {
	if userID == "" {
		userID = core.DefaultUserID
	}

	now := time.Now().UTC()
	conv := &core.Conversation{
		ID:        util.GenerateTimestampedID(core.ConversationIDPrefix),
		UserID:    userID,
		Title:     title,
		Preview:   preview,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := s.rebind(`INSERT INTO conversations (id, user_id, title, preview, thread_id, created_at, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, '', ?, ?, FALSE)`)
	if _, err := s.db.ExecContext(ctx, query, conv.ID, conv.UserID, conv.Title, conv.Preview, fmtTime(now), fmtTime(now)); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.logger.Debug("Created conversation %s for user %s", conv.ID, userID)
	return conv, nil
}

// GetConversation returns a conversation with its messages in order.
func (s *SQLStore) GetConversation(ctx context.Context, id, userID string) (*core.Conversation, error) {
	query := s.rebind(`SELECT id, user_id, title, preview, thread_id, created_at, updated_at
		FROM conversations WHERE id = ? AND user_id = ? AND is_deleted = FALSE`)

	var conv core.Conversation
	var threadID sql.NullString
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id, userID).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &conv.Preview, &threadID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	conv.ThreadID = threadID.String
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)

	messages, err := s.conversationMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	conv.MessageCount = len(messages)

	return &conv, nil
}

func (s *SQLStore) conversationMessages(ctx context.Context, conversationID string) ([]core.StoredMessage, error) {
	query := s.rebind(`SELECT id, conversation_id, role, content, model, tokens_used, message_order, metadata, timestamp
		FROM messages WHERE conversation_id = ? ORDER BY message_order ASC`)

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []core.StoredMessage
	for rows.Next() {
		var msg core.StoredMessage
		var model, metadata sql.NullString
		var ts string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &model,
			&msg.TokensUsed, &msg.Order, &metadata, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Model = model.String
		msg.Metadata = metadata.String
		msg.Timestamp = parseTime(ts)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListConversations returns the user's conversations, newest activity first.
func (s *SQLStore) ListConversations(ctx context.Context, userID string, limit int) ([]core.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.rebind(`SELECT c.id, c.user_id, c.title, c.preview, c.thread_id, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		FROM conversations c
		WHERE c.user_id = ? AND c.is_deleted = FALSE
		ORDER BY c.updated_at DESC
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanConversationRows(rows)
}

func scanConversationRows(rows *sql.Rows) ([]core.Conversation, error) {
	var conversations []core.Conversation
	for rows.Next() {
		var conv core.Conversation
		var threadID sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Preview, &threadID,
			&createdAt, &updatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.ThreadID = threadID.String
		conv.CreatedAt = parseTime(createdAt)
		conv.UpdatedAt = parseTime(updatedAt)
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// RenameConversation updates a conversation title.
func (s *SQLStore) RenameConversation(ctx context.Context, id, userID, title string) error {
	query := s.rebind(`UPDATE conversations SET title = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_deleted = FALSE`)

	result, err := s.db.ExecContext(ctx, query, title, fmtTime(time.Now()), id, userID)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return requireRowAffected(result)
}

// DeleteConversation soft-deletes a conversation. Rows stay until Cleanup.
func (s *SQLStore) DeleteConversation(ctx context.Context, id, userID string) error {
	query := s.rebind(`UPDATE conversations SET is_deleted = TRUE, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_deleted = FALSE`)

	result, err := s.db.ExecContext(ctx, query, fmtTime(time.Now()), id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return requireRowAffected(result)
}

// SetThreadID records the assistant thread bound to a conversation.
func (s *SQLStore) SetThreadID(ctx context.Context, conversationID, threadID string) error {
	query := s.rebind(`UPDATE conversations SET thread_id = ? WHERE id = ? AND is_deleted = FALSE`)

	result, err := s.db.ExecContext(ctx, query, threadID, conversationID)
	if err != nil {
		return fmt.Errorf("set thread id: %w", err)
	}
	return requireRowAffected(result)
}

// AppendMessage adds a message to a conversation, assigning the next
// message_order and bumping the conversation's activity timestamp. User
// messages refresh the conversation preview.
func (s *SQLStore) AppendMessage(ctx context.Context, msg *core.StoredMessage) (*core.StoredMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleted bool
	checkQuery := s.rebind(`SELECT is_deleted FROM conversations WHERE id = ?`)
	err = tx.QueryRowContext(ctx, checkQuery, msg.ConversationID).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if deleted {
		return nil, core.ErrNotFound
	}

	stored := *msg
	if stored.ID == "" {
		stored.ID = util.GenerateTimestampedID(core.MessageIDPrefix)
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	orderQuery := s.rebind(`SELECT COALESCE(MAX(message_order), 0) + 1 FROM messages WHERE conversation_id = ?`)
	if err := tx.QueryRowContext(ctx, orderQuery, msg.ConversationID).Scan(&stored.Order); err != nil {
		return nil, fmt.Errorf("next message order: %w", err)
	}

	insertQuery := s.rebind(`INSERT INTO messages (id, conversation_id, role, content, model, tokens_used, message_order, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertQuery, stored.ID, stored.ConversationID, stored.Role,
		stored.Content, stored.Model, stored.TokensUsed, stored.Order, stored.Metadata, fmtTime(stored.Timestamp)); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if stored.Role == core.RoleUser {
		updateQuery := s.rebind(`UPDATE conversations SET updated_at = ?, preview = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, updateQuery, fmtTime(stored.Timestamp),
			util.FirstRunes(stored.Content, core.PreviewMaxRunes), stored.ConversationID); err != nil {
			return nil, fmt.Errorf("update conversation: %w", err)
		}
	} else {
		updateQuery := s.rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, updateQuery, fmtTime(stored.Timestamp), stored.ConversationID); err != nil {
			return nil, fmt.Errorf("update conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return &stored, nil
}

// SearchConversations matches query against titles, previews and message
// content. Case sensitivity follows the backend's LIKE semantics.
func (s *SQLStore) SearchConversations(ctx context.Context, userID, query string) ([]core.Conversation, error) {
	pattern := "%" + query + "%"

	sqlQuery := s.rebind(`SELECT c.id, c.user_id, c.title, c.preview, c.thread_id, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		FROM conversations c
		WHERE c.user_id = ? AND c.is_deleted = FALSE
		AND (c.title LIKE ? OR c.preview LIKE ? OR c.id IN
			(SELECT m.conversation_id FROM messages m WHERE m.content LIKE ?))
		ORDER BY c.updated_at DESC
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, sqlQuery, userID, pattern, pattern, pattern, core.SearchMaxHits)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanConversationRows(rows)
}

// UsageStats aggregates the user's stored activity.
func (s *SQLStore) UsageStats(ctx context.Context, userID string) (*core.UsageStats, error) {
	stats := &core.UsageStats{}

	convQuery := s.rebind(`SELECT COUNT(*), COALESCE(MIN(created_at), ''), COALESCE(MAX(updated_at), '')
		FROM conversations WHERE user_id = ? AND is_deleted = FALSE`)
	var first, last string
	if err := s.db.QueryRowContext(ctx, convQuery, userID).Scan(&stats.Conversations, &first, &last); err != nil {
		return nil, fmt.Errorf("conversation stats: %w", err)
	}
	stats.FirstActivity = parseTime(first)
	stats.LastActivity = parseTime(last)

	msgQuery := s.rebind(`SELECT COUNT(m.id), COALESCE(SUM(m.tokens_used), 0)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = ? AND c.is_deleted = FALSE`)
	if err := s.db.QueryRowContext(ctx, msgQuery, userID).Scan(&stats.Messages, &stats.Tokens); err != nil {
		return nil, fmt.Errorf("message stats: %w", err)
	}

	return stats, nil
}

// Cleanup hard-deletes soft-deleted conversations whose last activity is
// older than the cutoff. Messages go with them via ON DELETE CASCADE.
func (s *SQLStore) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}

	cutoff := fmtTime(time.Now().AddDate(0, 0, -olderThanDays))
	query := s.rebind(`DELETE FROM conversations WHERE is_deleted = TRUE AND updated_at < ?`)

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup conversations: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	if removed > 0 {
		s.logger.Info("Cleanup removed %d deleted conversations older than %d days", removed, olderThanDays)
	}
	return removed, nil
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}
