package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aiboost/internal/core"
	"aiboost/internal/util"

	"github.com/bytedance/sonic"
)

// ServerConfig server configuration
type ServerConfig struct {
	Port              string
	GinMode           string
	SecretKey         string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	DatabaseURL       string
	SQLitePath        string
	RoutingConfigPath string
	RateLimit         int
	CleanupAfterDays  int
	AdminAPIKeys      []string

	Routing            core.RoutingConfig
	HTTPClientSettings HTTPClientSettings
	Storage            core.StorageInterface
	Logger             core.Logger
}

// HTTPClientSettings HTTP client configuration
type HTTPClientSettings struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	RequestTimeout      time.Duration
}

// DefaultHTTPClientSettings default HTTP client settings
func DefaultHTTPClientSettings() HTTPClientSettings {
	return HTTPClientSettings{
		MaxIdleConns:        core.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: core.HTTPMaxIdleConnsPerHost,
		MaxConnsPerHost:     core.HTTPMaxConnsPerHost,
		IdleConnTimeout:     core.HTTPIdleConnTimeout,
		TLSHandshakeTimeout: core.HTTPTLSHandshakeTimeout,
		RequestTimeout:      core.HTTPRequestTimeout,
	}
}

// routingFile mirrors core.RoutingConfig with pointer fields so that absent
// settings can be told apart from explicit zero values.
type routingFile struct {
	Models   core.RoutingModels `json:"models"`
	Settings struct {
		MaxTokens            int      `json:"max_tokens"`
		Temperature          *float64 `json:"temperature"`
		EnableModelSelection *bool    `json:"enable_model_selection"`
		ComplexityThreshold  int      `json:"complexity_threshold"`
	} `json:"settings"`
	ComplexKeywords   []string `json:"complex_keywords"`
	WebSearchKeywords []string `json:"web_search_keywords"`
}

// LoadRoutingConfig loads the model routing configuration. A missing file is
// created with defaults; a malformed one falls back to defaults with a warning.
func LoadRoutingConfig(path string, logger core.Logger) core.RoutingConfig {
	defaults := core.DefaultRoutingConfig()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from config, not user input
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := WriteDefaultRoutingConfig(path); writeErr != nil {
				logger.Warn("Could not write default routing config to %s: %v", path, writeErr)
			} else {
				logger.Info("Created default routing config at %s", path)
			}
			return defaults
		}
		logger.Warn("Could not read routing config %s: %v, using defaults", path, err)
		return defaults
	}

	var file routingFile
	if err := sonic.Unmarshal(data, &file); err != nil {
		logger.Warn("Malformed routing config %s: %v, using defaults", path, err)
		return defaults
	}

	cfg := defaults
	if file.Models.Simple != "" {
		cfg.Models.Simple = file.Models.Simple
	}
	if file.Models.Complex != "" {
		cfg.Models.Complex = file.Models.Complex
	}
	if file.Models.WebSearch != "" {
		cfg.Models.WebSearch = file.Models.WebSearch
	}
	if file.Models.Fallback != "" {
		cfg.Models.Fallback = file.Models.Fallback
	}
	if file.Settings.MaxTokens > 0 {
		cfg.Settings.MaxTokens = file.Settings.MaxTokens
	}
	if file.Settings.Temperature != nil && *file.Settings.Temperature >= 0 && *file.Settings.Temperature <= 2 {
		cfg.Settings.Temperature = *file.Settings.Temperature
	}
	if file.Settings.EnableModelSelection != nil {
		cfg.Settings.EnableModelSelection = *file.Settings.EnableModelSelection
	}
	if file.Settings.ComplexityThreshold > 0 {
		cfg.Settings.ComplexityThreshold = file.Settings.ComplexityThreshold
	}
	if len(file.ComplexKeywords) > 0 {
		cfg.ComplexKeywords = file.ComplexKeywords
	}
	if len(file.WebSearchKeywords) > 0 {
		cfg.WebSearchKeywords = file.WebSearchKeywords
	}

	logger.Info("Loaded routing config from %s (selection enabled: %v)", path, cfg.Settings.EnableModelSelection)
	return cfg
}

// WriteDefaultRoutingConfig writes the built-in routing config to path.
func WriteDefaultRoutingConfig(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, core.DirPermission); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	defaults := core.DefaultRoutingConfig()
	data, err := sonic.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, core.FilePermissionReadWrite)
}

// LoadServerConfigFromEnv loads server config from environment variables
func LoadServerConfigFromEnv(logger core.Logger) (ServerConfig, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Warn("OPENAI_API_KEY is empty; requests will need a user or request API key")
	}

	secretKey := os.Getenv("SECRET_KEY")
	if secretKey == "" {
		secretKey = util.GenerateSessionToken()
		logger.Warn("SECRET_KEY is empty; generated a boot-scoped key, stored API keys will not survive a restart")
	}

	adminKeys := util.ParseEnvList(os.Getenv("ADMIN_API_KEYS"))
	if len(adminKeys) > 0 {
		logger.Info("Loaded %d admin API keys", len(adminKeys))
	}

	cfg := ServerConfig{
		Port:               util.GetEnvWithDefault("PORT", core.DefaultPort),
		GinMode:            util.GetEnvWithDefault("GIN_MODE", core.DefaultGinMode),
		SecretKey:          secretKey,
		OpenAIAPIKey:       apiKey,
		OpenAIBaseURL:      util.GetEnvWithDefault("OPENAI_BASE_URL", core.DefaultOpenAIBaseURL),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         util.GetEnvWithDefault("SQLITE_PATH", core.DefaultSQLitePath),
		RoutingConfigPath:  util.GetEnvWithDefault("ROUTING_CONFIG", core.DefaultRoutingConfigPath),
		RateLimit:          util.GetEnvIntWithDefault("RATE_LIMIT", core.DefaultRateLimit),
		CleanupAfterDays:   util.GetEnvIntWithDefault("CLEANUP_DAYS", core.DefaultCleanupAfterDays),
		AdminAPIKeys:       adminKeys,
		HTTPClientSettings: DefaultHTTPClientSettings(),
	}

	cfg.Routing = LoadRoutingConfig(cfg.RoutingConfigPath, logger)

	return cfg, nil
}
