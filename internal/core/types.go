package core

import "time"

// RequestStats holds aggregated request statistics for monitoring.
type RequestStats struct {
	TotalRequests      int64           `json:"total_requests"`
	SuccessfulRequests int64           `json:"successful_requests"`
	FailedRequests     int64           `json:"failed_requests"`
	TotalResponseTime  int64           `json:"total_response_time"`
	CacheHits          int64           `json:"cache_hits"`
	CacheMisses        int64           `json:"cache_misses"`
	LastRequestTime    time.Time       `json:"last_request_time"`
	RequestHistory     []RequestRecord `json:"request_history"`
}

// RequestRecord represents a single chat request's metadata for history tracking.
type RequestRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	ResponseTime int64     `json:"response_time"`
	Model        string    `json:"model"`
	Tier         string    `json:"tier"`
	Tokens       int       `json:"tokens"`
	Fallback     bool      `json:"fallback"`
	WebSearch    bool      `json:"web_search"`
}

// PeriodStats holds computed statistics for a time period.
type PeriodStats struct {
	Requests        int64   `json:"requests"`
	SuccessRate     float64 `json:"successRate"`
	AvgResponseTime int64   `json:"avgResponseTime"`
	QPS             float64 `json:"qps"`
}

// ModelUsage aggregates per-model request counts for the monitoring panel.
type ModelUsage struct {
	Model    string `json:"model"`
	Requests int64  `json:"requests"`
	Failed   int64  `json:"failed"`
	Tokens   int64  `json:"tokens"`
}

// RoutingModels maps each tier to a concrete model name.
type RoutingModels struct {
	Simple    string `json:"simple"`
	Complex   string `json:"complex"`
	WebSearch string `json:"web_search"`
	Fallback  string `json:"fallback"`
}

// RoutingSettings tunes model selection and completion parameters.
type RoutingSettings struct {
	MaxTokens            int     `json:"max_tokens"`
	Temperature          float64 `json:"temperature"`
	EnableModelSelection bool    `json:"enable_model_selection"`
	ComplexityThreshold  int     `json:"complexity_threshold"`
}

// RoutingConfig is the routing.json model selection configuration.
type RoutingConfig struct {
	Models            RoutingModels   `json:"models"`
	Settings          RoutingSettings `json:"settings"`
	ComplexKeywords   []string        `json:"complex_keywords"`
	WebSearchKeywords []string        `json:"web_search_keywords"`
}

// ModelForTier returns the configured model for a tier name.
func (rc *RoutingConfig) ModelForTier(tier string) string {
	switch tier {
	case TierComplex:
		return rc.Models.Complex
	case TierWebSearch:
		return rc.Models.WebSearch
	case TierFallback:
		return rc.Models.Fallback
	default:
		return rc.Models.Simple
	}
}

// DefaultRoutingConfig returns the built-in routing configuration.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Models: RoutingModels{
			Simple:    DefaultSimpleModel,
			Complex:   DefaultComplexModel,
			WebSearch: DefaultWebSearchModel,
			Fallback:  DefaultFallbackModel,
		},
		Settings: RoutingSettings{
			MaxTokens:            DefaultMaxTokens,
			Temperature:          DefaultTemperature,
			EnableModelSelection: true,
			ComplexityThreshold:  DefaultComplexityThreshold,
		},
		ComplexKeywords:   append([]string(nil), DefaultComplexKeywords...),
		WebSearchKeywords: append([]string(nil), DefaultWebSearchKeywords...),
	}
}
