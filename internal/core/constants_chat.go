package core

// Model tier constants
const (
	TierSimple    = "simple"
	TierComplex   = "complex"
	TierWebSearch = "web_search"
	TierFallback  = "fallback"
)

// Routing reason constants
const (
	ReasonSelectionDisabled = "selection_disabled"
	ReasonUserPreference    = "user_preference"
	ReasonComplexKeyword    = "complex_keyword"
	ReasonLength            = "length"
	ReasonQuestionPattern   = "question_pattern"
	ReasonDefault           = "default"
)

// Role constants
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleSystem    = "system"
)

// Default model tier constants
const (
	DefaultSimpleModel         = "gpt-4o-mini"
	DefaultComplexModel        = "gpt-4o"
	DefaultWebSearchModel      = "gpt-4o"
	DefaultFallbackModel       = "gpt-4"
	DefaultMaxTokens           = 350
	DefaultTemperature         = 0.2
	DefaultComplexityThreshold = 150
)

// Assistant constants
const (
	AssistantName  = "AI BOOST Assistant"
	AssistantModel = DefaultComplexModel
)

// ChatSystemPrompt is the instruction set shared by the assistant and the
// completions fallback path.
const ChatSystemPrompt = "You are AI BOOST, a helpful AI assistant. " +
	"Give clear, accurate and concise answers. When you are not sure about " +
	"something, say so instead of guessing."

// WebSearchInstructions steers web-search responses toward citeable output.
const WebSearchInstructions = "Answer using up-to-date information from the web. " +
	"Cite your sources inline as (domain.tld) markers."

// User and provider constants
const (
	DefaultUserID   = "default_user"
	DefaultUsername = "default"
	ProviderOpenAI  = "openai"
)

// Conversation display constants
const (
	TitleMaxRunes   = 50
	PreviewMaxRunes = 100
	HistoryMaxTurns = 10
	SearchMaxHits   = 20
	ExportVersion   = "1.0"
)

// DefaultComplexKeywords marks messages that deserve the complex model tier.
var DefaultComplexKeywords = []string{
	"analyze", "analysis", "compare", "comparison", "evaluate", "assessment",
	"research", "investigate", "examine", "study", "review", "critique",
	"strategy", "plan", "design", "architect", "structure", "framework",
}

// DefaultWebSearchKeywords marks messages that need fresh information.
var DefaultWebSearchKeywords = []string{
	"current", "latest", "recent", "today", "now", "this week", "this month",
	"this year", "up to date", "breaking", "news", "2025", "market trends",
	"current prices", "recent data", "latest stats",
}

// ComplexQuestionPatterns are question shapes that route to the complex tier
// regardless of keyword hits.
var ComplexQuestionPatterns = []string{
	"how does", "why does", "what are the implications", "explain how",
	"explain why", "what would happen if", "pros and cons",
	"advantages and disadvantages", "step by step", "detailed explanation",
}
