// Package chat orchestrates one user message end to end: route the message
// to a model tier, answer it through the web-search, Assistants or Chat
// Completions path, and persist both sides of the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"aiboost/internal/assistant"
	"aiboost/internal/core"
	"aiboost/internal/route"
	"aiboost/internal/sanitize"
	"aiboost/internal/util"
	"aiboost/internal/websearch"
)

// ClientFactory builds an OpenAI client for an API key. Requests may each
// carry a different key, so clients are constructed per call.
type ClientFactory func(apiKey string) *openai.Client

// Recorder receives the outcome of every processed chat request.
type Recorder interface {
	RecordChat(model, tier string, tokens int, duration time.Duration, fallback, webSearch, ok bool)
}

// Request is one chat exchange to process.
type Request struct {
	UserID          string
	ConversationID  string
	ThreadID        string
	Message         string
	ModelPreference string
	APIKey          string
}

// UpstreamError wraps a failure of the whole provider chain. The Message is
// safe to show to end users; Err keeps the last upstream cause.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string { return e.Message }
func (e *UpstreamError) Unwrap() error { return e.Err }

// StoreError wraps a persistence failure that happened after the upstream
// call already succeeded. Callers should report it as a server-side problem
// without leaking storage internals.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string { return e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// ProcessorConfig wires the processor dependencies.
type ProcessorConfig struct {
	Clients    ClientFactory
	Routing    core.RoutingConfig
	Selector   *route.Selector
	Assistants *assistant.Manager
	WebSearch  *websearch.Client
	Store      core.ConversationStore
	Keys       core.KeyResolver
	Metrics    Recorder
	Logger     core.Logger
}

// Processor runs the chat pipeline.
type Processor struct {
	clients    ClientFactory
	routing    core.RoutingConfig
	selector   *route.Selector
	assistants *assistant.Manager
	webSearch  *websearch.Client
	store      core.ConversationStore
	keys       core.KeyResolver
	metrics    Recorder
	logger     core.Logger
}

// NewProcessor creates a chat processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Clients == nil {
		return nil, fmt.Errorf("chat processor requires a client factory")
	}
	if cfg.Selector == nil || cfg.Assistants == nil || cfg.WebSearch == nil {
		return nil, fmt.Errorf("chat processor requires selector, assistant manager and web-search client")
	}
	if cfg.Store == nil || cfg.Keys == nil {
		return nil, fmt.Errorf("chat processor requires a store and a key resolver")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &core.NopLogger{}
	}

	return &Processor{
		clients:    cfg.Clients,
		routing:    cfg.Routing,
		selector:   cfg.Selector,
		assistants: cfg.Assistants,
		webSearch:  cfg.WebSearch,
		store:      cfg.Store,
		keys:       cfg.Keys,
		metrics:    cfg.Metrics,
		logger:     logger,
	}, nil
}

// exchange carries the provider outcome into persistence.
type exchange struct {
	reply     string
	model     string
	tier      string
	webSearch bool
	fallback  bool
}

// Process answers one user message. The provider chain is linear: web search
// when the message asks for fresh information, otherwise Assistants flow,
// then Chat Completions with history, then a minimal legacy call. The first
// success wins; when everything fails the error carries a user-facing
// classification of the last upstream failure.
func (p *Processor) Process(ctx context.Context, req Request) (*core.ChatResult, error) {
	start := time.Now()
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("message is empty")
	}

	apiKey, err := p.keys.ResolveAPIKey(ctx, req.UserID, req.APIKey)
	if err != nil {
		return nil, err
	}

	conv, err := p.ensureConversation(ctx, req, message)
	if err != nil {
		return nil, err
	}

	threadID := conv.ThreadID
	if assistant.ValidThreadID(req.ThreadID) {
		threadID = req.ThreadID
	}
	if !assistant.ValidThreadID(threadID) {
		threadID = ""
	}

	ex, threadID, chainErr := p.runChain(ctx, apiKey, conv, threadID, message, req.ModelPreference)
	if chainErr != nil {
		p.record(ex, 0, time.Since(start), false)
		return nil, chainErr
	}

	if threadID != "" && threadID != conv.ThreadID {
		if err := p.store.SetThreadID(ctx, conv.ID, threadID); err != nil {
			p.logger.Warn("Failed to persist thread %s on conversation %s: %v", threadID, conv.ID, err)
		}
	}

	result, err := p.persistExchange(ctx, conv, message, threadID, ex)
	if err != nil {
		p.record(ex, 0, time.Since(start), false)
		return nil, &StoreError{Err: err}
	}

	p.record(ex, result.EstimatedTokens, time.Since(start), true)
	return result, nil
}

func (p *Processor) record(ex exchange, tokens int, duration time.Duration, ok bool) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordChat(ex.model, ex.tier, tokens, duration, ex.fallback, ex.webSearch, ok)
}

// ensureConversation loads the requested conversation or starts a new one.
// An unknown ID starts a fresh conversation rather than failing, so stale
// client state never blocks chatting.
func (p *Processor) ensureConversation(ctx context.Context, req Request, message string) (*core.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := p.store.GetConversation(ctx, req.ConversationID, req.UserID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		p.logger.Warn("Conversation %s not found for user %s, starting a new one", req.ConversationID, req.UserID)
	}

	title := util.TruncateRunes(message, core.TitleMaxRunes)
	preview := util.FirstRunes(message, core.PreviewMaxRunes)
	return p.store.CreateConversation(ctx, req.UserID, title, preview)
}

// runChain tries the providers in order and returns the first success. The
// returned thread ID is non-empty only when the Assistants flow answered.
func (p *Processor) runChain(ctx context.Context, apiKey string, conv *core.Conversation, threadID, message, preference string) (exchange, string, error) {
	if p.selector.NeedsWebSearch(message) {
		decision := p.selector.WebSearchDecision()
		raw, err := p.webSearch.Search(ctx, apiKey, decision.Model, message)
		if err == nil {
			return exchange{
				reply:     sanitize.FormatWebSearchResponse(raw),
				model:     decision.Model,
				tier:      decision.Tier,
				webSearch: true,
			}, threadID, nil
		}
		p.logger.Warn("Web search failed, falling through to assistant flow: %v", err)
	}

	decision := p.selector.SelectModel(message, preference)
	client := p.clients(apiKey)

	flow, err := p.assistants.Converse(ctx, client, util.Sha1Hex(apiKey), threadID, message, decision.Model)
	if err == nil {
		return exchange{
			reply: sanitize.StripURLs(flow.Response),
			model: flow.Model,
			tier:  decision.Tier,
		}, flow.ThreadID, nil
	}
	if ctx.Err() != nil {
		return exchange{model: decision.Model, tier: decision.Tier}, threadID, ctx.Err()
	}
	p.logger.Warn("Assistant flow failed, falling back to chat completions: %v", err)

	reply, err := p.completionsWithHistory(ctx, client, conv, message, decision.Model)
	if err == nil {
		return exchange{
			reply:    sanitize.StripURLs(reply),
			model:    decision.Model,
			tier:     decision.Tier,
			fallback: true,
		}, threadID, nil
	}
	if ctx.Err() != nil {
		return exchange{model: decision.Model, tier: decision.Tier}, threadID, ctx.Err()
	}
	p.logger.Warn("Chat completions failed, falling back to legacy call: %v", err)

	reply, legacyErr := p.legacyCompletion(ctx, apiKey, message)
	if legacyErr == nil {
		return exchange{
			reply:    sanitize.StripURLs(reply),
			model:    p.routing.Models.Fallback,
			tier:     core.TierFallback,
			fallback: true,
		}, threadID, nil
	}

	last := errors.Join(err, legacyErr)
	failed := exchange{model: decision.Model, tier: decision.Tier, fallback: true}
	return failed, threadID, &UpstreamError{Message: classifyUpstreamError(legacyErr), Err: last}
}

// completionsWithHistory is the stateless fallback: system prompt, the last
// stored exchanges and the new message, sent to the routed model.
func (p *Processor) completionsWithHistory(ctx context.Context, client *openai.Client, conv *core.Conversation, message, model string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: core.ChatSystemPrompt},
	}

	history := conv.Messages
	if keep := core.HistoryMaxTurns * 2; len(history) > keep {
		history = history[len(history)-keep:]
	}
	for _, msg := range history {
		if msg.Role != core.RoleUser && msg.Role != core.RoleAssistant {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   p.routing.Settings.MaxTokens,
		Temperature: float32(p.routing.Settings.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// legacyCompletion is the last resort: a default client and a message-only
// payload against the fallback model, nothing tunable.
func (p *Processor) legacyCompletion(ctx context.Context, apiKey, message string) (string, error) {
	client := openai.NewClient(apiKey)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.routing.Models.Fallback,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		return "", fmt.Errorf("legacy completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("legacy completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// persistExchange stores both sides of the exchange and assembles the result.
func (p *Processor) persistExchange(ctx context.Context, conv *core.Conversation, message, threadID string, ex exchange) (*core.ChatResult, error) {
	userTokens := util.EstimateTokenCount(message)
	replyTokens := util.EstimateTokenCount(ex.reply)

	userMsg, err := p.store.AppendMessage(ctx, &core.StoredMessage{
		ConversationID: conv.ID,
		Role:           core.RoleUser,
		Content:        message,
		TokensUsed:     userTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	metadata, err := util.MarshalJSON(core.MessageMetadata{
		Model:     ex.model,
		Tier:      ex.tier,
		Fallback:  ex.fallback,
		WebSearch: ex.webSearch,
	})
	if err != nil {
		return nil, fmt.Errorf("encode message metadata: %w", err)
	}

	assistantMsg, err := p.store.AppendMessage(ctx, &core.StoredMessage{
		ConversationID: conv.ID,
		Role:           core.RoleAssistant,
		Content:        ex.reply,
		Model:          ex.model,
		TokensUsed:     replyTokens,
		Metadata:       string(metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	return &core.ChatResult{
		Reply:              ex.reply,
		ConversationID:     conv.ID,
		ThreadID:           threadID,
		ModelUsed:          ex.model,
		Tier:               ex.tier,
		WebSearch:          ex.webSearch,
		Fallback:           ex.fallback,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		EstimatedTokens:    userTokens + replyTokens,
		Timestamp:          assistantMsg.Timestamp,
	}, nil
}

// classifyUpstreamError maps the last provider failure to an operator and
// user friendly message, mirroring the error taxonomy of the upstream API.
func classifyUpstreamError(err error) string {
	if err == nil {
		return "Unknown upstream error"
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return "Invalid API key. Please verify your OpenAI API key is correct and active."
		case 429:
			if strings.Contains(strings.ToLower(apiErr.Message), "quota") {
				return "Quota exceeded. Please check your OpenAI account billing."
			}
			return "Rate limit reached. Please try again later."
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "authentication") || strings.Contains(msg, "unauthorized"):
		return "Invalid API key. Please verify your OpenAI API key is correct and active."
	case strings.Contains(msg, "rate limit"):
		return "Rate limit reached. Please try again later."
	case strings.Contains(msg, "quota") || strings.Contains(msg, "billing"):
		return "Quota exceeded. Please check your OpenAI account billing."
	default:
		return fmt.Sprintf("Chat request failed: %v", err)
	}
}
