// Package assistant drives the OpenAI Assistants API flow: one assistant per
// API key, one thread per conversation, runs polled to completion.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"aiboost/internal/cache"
	"aiboost/internal/core"
)

// FlowResult is the outcome of one assistant exchange.
type FlowResult struct {
	Response string
	ThreadID string
	Model    string
}

// FlowMessage is one message restored from a thread.
type FlowMessage struct {
	Role    string
	Content string
}

// Manager caches assistant IDs per API-key fingerprint and runs the thread
// flow. Clients are passed per call because every request may carry a
// different API key.
type Manager struct {
	cache  core.Cache
	logger core.Logger
	mu     sync.Mutex
}

// NewManager creates the assistant manager. Any core.Cache works; nil gets
// the in-process cache service.
func NewManager(cacheService core.Cache, logger core.Logger) *Manager {
	if cacheService == nil {
		cacheService = cache.NewCacheService()
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Manager{cache: cacheService, logger: logger}
}

// ValidThreadID reports whether a stored thread reference can be reused.
func ValidThreadID(id string) bool {
	return strings.HasPrefix(id, core.ThreadIDPrefix)
}

// EnsureAssistant returns the assistant ID for this API key, creating the
// assistant on first use. Concurrent first calls share one creation.
func (m *Manager) EnsureAssistant(ctx context.Context, client *openai.Client, fingerprint string) (string, error) {
	key := cache.AssistantCacheKey(fingerprint)
	if id, ok := m.cachedAssistantID(key); ok {
		return id, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.cachedAssistantID(key); ok {
		return id, nil
	}

	name := core.AssistantName
	instructions := core.ChatSystemPrompt
	created, err := client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        core.AssistantModel,
		Name:         &name,
		Instructions: &instructions,
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}

	m.cache.Set(key, created.ID, core.AssistantCacheTTL)
	m.logger.Info("Created assistant %s", created.ID)
	return created.ID, nil
}

func (m *Manager) cachedAssistantID(key string) (string, bool) {
	if cached, ok := m.cache.Get(key); ok {
		if id, ok := cached.(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// CreateThread opens a fresh conversation thread.
func (m *Manager) CreateThread(ctx context.Context, client *openai.Client) (string, error) {
	thread, err := client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	m.logger.Debug("Created thread %s", thread.ID)
	return thread.ID, nil
}

// AddUserMessage appends the user's message to a thread.
func (m *Manager) AddUserMessage(ctx context.Context, client *openai.Client, threadID, content string) error {
	_, err := client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    core.RoleUser,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// RunAndWait starts a run and polls it to a terminal status. A non-empty
// model overrides the assistant's default for this run only. Early polls are
// tight, later ones back off. The first sleep comes before the first
// retrieve, so a fast-completing run costs one short delay, never a busy
// loop.
func (m *Manager) RunAndWait(ctx context.Context, client *openai.Client, threadID, assistantID, model string) error {
	run, err := client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID, Model: model})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	deadline := time.Now().Add(core.RunPollDeadline)
	for poll := 1; ; poll++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollDelay(poll)):
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("assistant run timed out after %s", core.RunPollDeadline)
		}

		current, err := client.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return fmt.Errorf("retrieve run: %w", err)
		}

		switch current.Status {
		case openai.RunStatusCompleted:
			m.logger.Debug("Run %s completed after %d polls", run.ID, poll)
			return nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired,
			openai.RunStatusIncomplete, openai.RunStatusRequiresAction:
			if current.LastError != nil {
				return fmt.Errorf("assistant run %s: %s (%s)",
					current.Status, current.LastError.Message, current.LastError.Code)
			}
			return fmt.Errorf("assistant run ended with status %s", current.Status)
		}
	}
}

func pollDelay(poll int) time.Duration {
	switch {
	case poll <= core.RunPollShortPhase:
		return core.RunPollShortDelay
	case poll <= core.RunPollMediumPhase:
		return core.RunPollMediumDelay
	default:
		return core.RunPollLongDelay
	}
}

// LatestAssistantReply fetches the newest thread message, which after a
// completed run is the assistant's answer.
func (m *Manager) LatestAssistantReply(ctx context.Context, client *openai.Client, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return "", fmt.Errorf("thread %s has no messages", threadID)
	}

	newest := list.Messages[0]
	if newest.Role != core.RoleAssistant {
		return "", fmt.Errorf("no assistant reply in thread %s", threadID)
	}

	text := messageText(newest)
	if text == "" {
		return "", fmt.Errorf("assistant reply has no text content")
	}
	return text, nil
}

// ThreadHistory returns a thread's messages oldest first.
func (m *Manager) ThreadHistory(ctx context.Context, client *openai.Client, threadID string) ([]FlowMessage, error) {
	order := "asc"
	list, err := client.ListMessage(ctx, threadID, nil, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	history := make([]FlowMessage, 0, len(list.Messages))
	for _, msg := range list.Messages {
		history = append(history, FlowMessage{Role: msg.Role, Content: messageText(msg)})
	}
	return history, nil
}

func messageText(msg openai.Message) string {
	var b strings.Builder
	for _, part := range msg.Content {
		if part.Type != "text" || part.Text == nil {
			continue
		}
		b.WriteString(part.Text.Value)
	}
	return b.String()
}

// Converse runs one full exchange: ensure assistant, ensure thread, add the
// user message, run to completion, read the reply. The model is the routed
// model for this request; empty means the assistant's default.
func (m *Manager) Converse(ctx context.Context, client *openai.Client, fingerprint, threadID, message, model string) (*FlowResult, error) {
	assistantID, err := m.EnsureAssistant(ctx, client, fingerprint)
	if err != nil {
		return nil, err
	}

	if threadID == "" {
		threadID, err = m.CreateThread(ctx, client)
		if err != nil {
			return nil, err
		}
	}

	if err := m.AddUserMessage(ctx, client, threadID, message); err != nil {
		return nil, err
	}
	if err := m.RunAndWait(ctx, client, threadID, assistantID, model); err != nil {
		return nil, err
	}

	reply, err := m.LatestAssistantReply(ctx, client, threadID)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = core.AssistantModel
	}
	return &FlowResult{Response: reply, ThreadID: threadID, Model: model}, nil
}
