// Package websearch calls the OpenAI Responses API with the web_search tool.
// The SDK in use has no Responses surface, so this is a minimal REST client.
package websearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"aiboost/internal/core"
	"aiboost/internal/util"
)

// Client issues Responses API calls over a shared HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     core.Logger
}

// ClientConfig wires the client dependencies.
type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	Logger     core.Logger
}

// NewClient creates a Responses API client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = core.DefaultOpenAIBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, logger: logger}
}

type searchRequest struct {
	Model        string       `json:"model"`
	Input        string       `json:"input"`
	Instructions string       `json:"instructions,omitempty"`
	Tools        []searchTool `json:"tools"`
}

type searchTool struct {
	Type string `json:"type"`
}

type searchResponse struct {
	OutputText string       `json:"output_text"`
	Output     []outputItem `json:"output"`
	Error      *apiError    `json:"error"`
}

type outputItem struct {
	Type    string        `json:"type"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Search asks the model to answer with live web results. The returned text
// still carries inline citation markers for the sanitize stage.
func (c *Client) Search(ctx context.Context, apiKey, model, input string) (string, error) {
	payload := searchRequest{
		Model:        model,
		Input:        input,
		Instructions: core.WebSearchInstructions,
		Tools:        []searchTool{{Type: "web_search"}},
	}
	payloadBytes, err := util.MarshalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	req.Header.Set(core.HeaderAuthorization, core.AuthBearerPrefix+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, core.MaxResponseBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("Responses API status: %d, body size: %d", resp.StatusCode, len(body))

	var parsed searchResponse
	if err := util.UnmarshalJSON(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("web search failed (%d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("web search failed with status %d", resp.StatusCode)
	}

	if text := collectOutputText(&parsed); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("web search returned no output")
}

// collectOutputText prefers the top-level convenience field, falling back to
// walking the output items for message text parts.
func collectOutputText(resp *searchResponse) string {
	if resp.OutputText != "" {
		return resp.OutputText
	}

	var b strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type != "output_text" || part.Text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
