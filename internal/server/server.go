package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"aiboost/internal/account"
	"aiboost/internal/assistant"
	"aiboost/internal/cache"
	"aiboost/internal/chat"
	"aiboost/internal/config"
	"aiboost/internal/core"
	"aiboost/internal/metrics"
	"aiboost/internal/route"
	"aiboost/internal/storage"
	"aiboost/internal/websearch"

	"github.com/gin-gonic/gin"
)

// Server application server
type Server struct {
	port    string
	ginMode string

	httpClient *http.Client
	router     *gin.Engine

	cache          *cache.CacheService
	metricsService *metrics.MetricsService
	store          *storage.SQLStore
	accounts       *account.Service
	selector       *route.Selector
	assistants     *assistant.Manager
	clients        chat.ClientFactory
	processor      *chat.Processor

	config config.ServerConfig

	rateLimiter *rateLimiter
	adminKeys   map[string]bool

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(cfg config.ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required in ServerConfig")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required in ServerConfig")
	}

	httpClient := createOptimizedHTTPClient(cfg.HTTPClientSettings)

	cacheService := cache.NewCacheService()

	metricsService := metrics.NewMetricsService(metrics.MetricsConfig{
		SaveInterval: core.MinSaveInterval,
		HistorySize:  core.HistoryBufferSize,
		Storage:      cfg.Storage,
		Logger:       cfg.Logger,
	})

	if err := metricsService.LoadStats(); err != nil {
		cfg.Logger.Warn("Failed to load historical stats: %v", err)
	}

	store, err := storage.OpenStore(storage.StoreConfig{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	accounts, err := account.NewService(account.ServiceConfig{
		Store:     store,
		Cache:     cacheService,
		SecretKey: cfg.SecretKey,
		EnvAPIKey: cfg.OpenAIAPIKey,
		Logger:    cfg.Logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create account service: %w", err)
	}

	if _, err := accounts.EnsureDefaultUser(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to provision default user: %w", err)
	}

	selector := route.NewSelector(cfg.Routing, cacheService, metricsService, cfg.Logger)
	assistants := assistant.NewManager(cacheService, cfg.Logger)
	searchClient := websearch.NewClient(websearch.ClientConfig{
		HTTPClient: httpClient,
		BaseURL:    cfg.OpenAIBaseURL,
		Logger:     cfg.Logger,
	})

	baseURL := cfg.OpenAIBaseURL
	clients := func(apiKey string) *openai.Client {
		clientCfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			clientCfg.BaseURL = baseURL
		}
		clientCfg.HTTPClient = httpClient
		return openai.NewClientWithConfig(clientCfg)
	}

	processor, err := chat.NewProcessor(chat.ProcessorConfig{
		Clients:    clients,
		Routing:    cfg.Routing,
		Selector:   selector,
		Assistants: assistants,
		WebSearch:  searchClient,
		Store:      store,
		Keys:       accounts,
		Metrics:    metricsService,
		Logger:     cfg.Logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create chat processor: %w", err)
	}

	adminKeys := make(map[string]bool, len(cfg.AdminAPIKeys))
	for _, key := range cfg.AdminAPIKeys {
		adminKeys[key] = true
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	server := &Server{
		port:           cfg.Port,
		ginMode:        cfg.GinMode,
		httpClient:     httpClient,
		cache:          cacheService,
		metricsService: metricsService,
		store:          store,
		accounts:       accounts,
		selector:       selector,
		assistants:     assistants,
		clients:        clients,
		processor:      processor,
		config:         cfg,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		adminKeys:      adminKeys,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	server.setupRoutes()
	go server.cleanupLoop()

	return server, nil
}

func createOptimizedHTTPClient(settings config.HTTPClientSettings) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          settings.MaxIdleConns,
		MaxIdleConnsPerHost:   settings.MaxIdleConnsPerHost,
		MaxConnsPerHost:       settings.MaxConnsPerHost,
		IdleConnTimeout:       settings.IdleConnTimeout,
		TLSHandshakeTimeout:   settings.TLSHandshakeTimeout,
		ExpectContinueTimeout: core.HTTPExpectContinueTimeout,
		DisableKeepAlives:     false,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: core.HTTPResponseHeaderTimeout,
		DisableCompression:    false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   settings.RequestTimeout,
	}
}

// cleanupLoop hard-deletes soft-deleted conversations past the retention
// window once a day.
func (s *Server) cleanupLoop() {
	if s.config.CleanupAfterDays <= 0 {
		return
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.shutdownCtx, time.Minute)
			removed, err := s.store.Cleanup(ctx, s.config.CleanupAfterDays)
			cancel()
			if err != nil {
				s.config.Logger.Warn("Conversation cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				s.config.Logger.Info("Cleanup removed %d deleted conversations older than %d days", removed, s.config.CleanupAfterDays)
			}
		case <-s.shutdownCtx.Done():
			return
		}
	}
}

// Run runs the server
func (s *Server) Run() error {
	s.setupGracefulShutdown()

	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // assistant polling can hold a request for a while
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		<-s.shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.config.Logger.Error("Server shutdown error: %v", err)
		}
	}()

	s.config.Logger.Info("Server starting on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) setupGracefulShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		s.config.Logger.Info("Shutdown signal received, shutting down gracefully...")
		s.shutdownCancel()
	}()
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "aiboost",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getStatsData(c *gin.Context) {
	stats := s.metricsService.GetRequestStats()
	periodStats := metrics.GetPeriodStats(stats.RequestHistory, 24, 24*7, 24*30)

	c.JSON(http.StatusOK, gin.H{
		"currentTime":        time.Now().Format(core.TimeFormatDateTime),
		"currentQPS":         fmt.Sprintf("%.3f", s.metricsService.GetQPS()),
		"totalRequests":      stats.TotalRequests,
		"successfulRequests": stats.SuccessfulRequests,
		"failedRequests":     stats.FailedRequests,
		"routingCacheHits":   stats.CacheHits,
		"routingCacheMisses": stats.CacheMisses,
		"totalRecords":       len(stats.RequestHistory),
		"stats24h":           periodStats[24],
		"stats7d":            periodStats[24*7],
		"stats30d":           periodStats[24*30],
		"modelUsage":         metrics.ModelBreakdown(stats.RequestHistory),
	})
}

// Close closes the server
func (s *Server) Close() error {
	if s.shutdownCancel != nil {
		s.shutdownCancel()
	}

	var closeErr error

	if s.metricsService != nil {
		if err := s.metricsService.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close metrics service: %w", err))
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close conversation store: %w", err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close cache service: %w", err))
		}
	}

	return closeErr
}
