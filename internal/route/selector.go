package route

import (
	"strings"

	"aiboost/internal/cache"
	"aiboost/internal/core"
)

// Decision is the outcome of routing one user message.
type Decision struct {
	Model     string `json:"model"`
	Tier      string `json:"tier"`
	WebSearch bool   `json:"web_search"`
	Reason    string `json:"reason"`
}

// Selector picks a model tier for each message from the routing
// configuration's keyword and length heuristics.
type Selector struct {
	cfg               core.RoutingConfig
	complexKeywords   []string
	webSearchKeywords []string
	questionPatterns  []string
	cache             *cache.CacheService
	metrics           core.MetricsCollector
	logger            core.Logger
}

// NewSelector builds a selector. Keyword lists are lowercased once here so
// per-message matching stays allocation-light. The collector receives a
// hit/miss for every routing-cache lookup.
func NewSelector(cfg core.RoutingConfig, cacheService *cache.CacheService, metrics core.MetricsCollector, logger core.Logger) *Selector {
	if metrics == nil {
		metrics = &core.NopMetrics{}
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Selector{
		cfg:               cfg,
		complexKeywords:   lowerAll(cfg.ComplexKeywords),
		webSearchKeywords: lowerAll(cfg.WebSearchKeywords),
		questionPatterns:  lowerAll(core.ComplexQuestionPatterns),
		cache:             cacheService,
		metrics:           metrics,
		logger:            logger,
	}
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.ToLower(item))
	}
	return out
}

// NeedsWebSearch reports whether the message asks for fresh information.
func (s *Selector) NeedsWebSearch(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range s.webSearchKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SelectModel routes a message to a model tier. Identical message and
// preference pairs are served from the routing cache.
func (s *Selector) SelectModel(message, preference string) Decision {
	var key string
	if s.cache != nil {
		key = cache.RoutingCacheKey(message, preference)
		if cached, ok := s.cache.Get(key); ok {
			if decision, ok := cached.(Decision); ok {
				s.metrics.RecordCacheHit()
				s.logger.Debug("Routing cache hit for %s", cache.TruncateCacheKey(key, 24))
				return decision
			}
		}
		s.metrics.RecordCacheMiss()
	}

	decision := s.decide(message, preference)
	if s.cache != nil {
		s.cache.Set(key, decision, core.RoutingCacheTTL)
	}

	s.logger.Debug("Routed message to %s (%s): %s", decision.Model, decision.Tier, decision.Reason)
	return decision
}

func (s *Selector) decide(message, preference string) Decision {
	if !s.cfg.Settings.EnableModelSelection {
		return Decision{Model: s.cfg.Models.Fallback, Tier: core.TierFallback, Reason: core.ReasonSelectionDisabled}
	}

	// Preference strings pass through unvalidated; a typo surfaces as an
	// upstream model error, not a silent reroute.
	if preference != "" && preference != "auto" {
		return Decision{Model: preference, Tier: core.TierComplex, Reason: core.ReasonUserPreference}
	}

	lower := strings.ToLower(message)
	for _, kw := range s.complexKeywords {
		if strings.Contains(lower, kw) {
			return Decision{Model: s.cfg.Models.Complex, Tier: core.TierComplex, Reason: core.ReasonComplexKeyword}
		}
	}

	if len([]rune(message)) > s.cfg.Settings.ComplexityThreshold {
		return Decision{Model: s.cfg.Models.Complex, Tier: core.TierComplex, Reason: core.ReasonLength}
	}

	for _, pattern := range s.questionPatterns {
		if strings.Contains(lower, pattern) {
			return Decision{Model: s.cfg.Models.Complex, Tier: core.TierComplex, Reason: core.ReasonQuestionPattern}
		}
	}

	return Decision{Model: s.cfg.Models.Simple, Tier: core.TierSimple, Reason: core.ReasonDefault}
}

// WebSearchDecision is the fixed decision for the web-search branch.
func (s *Selector) WebSearchDecision() Decision {
	return Decision{Model: s.cfg.Models.WebSearch, Tier: core.TierWebSearch, WebSearch: true, Reason: core.TierWebSearch}
}
