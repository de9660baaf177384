package core

import "time"

// ChatRequest is the inbound chat API request body.
type ChatRequest struct {
	Message         string `json:"message" binding:"required"`
	ConversationID  string `json:"conversation_id,omitempty"`
	ThreadID        string `json:"thread_id,omitempty"`
	ModelPreference string `json:"model,omitempty"`
	APIKey          string `json:"api_key,omitempty"`
}

// ChatResult is the outbound chat API response body.
type ChatResult struct {
	Reply              string    `json:"response"`
	ConversationID     string    `json:"conversation_id"`
	ThreadID           string    `json:"thread_id,omitempty"`
	ModelUsed          string    `json:"model_used"`
	Tier               string    `json:"tier"`
	WebSearch          bool      `json:"web_search"`
	Fallback           bool      `json:"fallback"`
	UserMessageID      string    `json:"user_message_id,omitempty"`
	AssistantMessageID string    `json:"assistant_message_id,omitempty"`
	EstimatedTokens    int       `json:"estimated_tokens"`
	Timestamp          time.Time `json:"timestamp"`
}

// MessageMetadata is stored alongside assistant messages as JSON.
type MessageMetadata struct {
	Model     string `json:"model,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
	WebSearch bool   `json:"web_search,omitempty"`
}
