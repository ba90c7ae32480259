package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"halcon/internal/ai"
	"halcon/internal/browser"
	"halcon/internal/config"
	custommiddleware "halcon/internal/middleware"
	"halcon/internal/pipeline"
	"halcon/internal/retrieval"
	"halcon/internal/transport"
	"halcon/internal/whatsapp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	appName    = "HALCON Product Search API"
	appVersion = "1.0.0"
)

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	session *browser.Session
	redis   *redis.Client
}

func NewServer(cfg *config.Config, logger *zap.Logger, session *browser.Session) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.Env != "production"))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	// Optional redis, used for rate limiting and the result cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// Discovery pipeline: extractor -> retrieval cascade
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey)
	extractor := ai.NewExtractor(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout, logger)
	summarizer := ai.NewSummarizer(openaiClient, cfg.OpenAI.SummaryModel, cfg.OpenAI.Timeout, logger)

	orchestrator := retrieval.NewOrchestrator(buildStrategies(cfg, session, logger), logger)
	discovery := pipeline.New(extractor, orchestrator, redisClient, cfg.Retrieval.CacheTTL, logger)

	// Messaging flow
	waClient := whatsapp.NewClient(cfg.WhatsApp.APIURL, cfg.WhatsApp.APIKey, cfg.WhatsApp.PhoneNumberID, logger)
	waService := whatsapp.NewService(discovery, summarizer, waClient, logger)

	// Handlers
	searchHandler := transport.NewSearchHandler(discovery, logger)
	webhookHandler := transport.NewWebhookHandler(cfg.WhatsApp.VerifyToken, waService, logger)

	var rateLimit func(http.Handler) http.Handler
	if redisClient != nil && cfg.RateLimit.PerMinute > 0 {
		rateLimit = custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.PerMinute,
			Window:            time.Minute,
			KeyPrefix:         "ratelimit:search",
		}, logger)
	}

	// Register routes
	searchHandler.RegisterRoutes(router, rateLimit)
	webhookHandler.RegisterRoutes(router)
	router.Get("/health", healthHandler(session))
	router.Get("/", rootHandler())

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		config:  cfg,
		logger:  logger,
		session: session,
		redis:   redisClient,
	}

	return server
}

// buildStrategies turns the configured tier policy into an ordered strategy
// list. The synthetic tier, when enabled, always sits last so it only fires
// after every real tier came back empty.
func buildStrategies(cfg *config.Config, session *browser.Session, logger *zap.Logger) []retrieval.Strategy {
	var strategies []retrieval.Strategy
	for _, tier := range cfg.Retrieval.Tiers {
		switch tier {
		case "live":
			strategies = append(strategies, retrieval.NewLiveStrategy(session, cfg.Retrieval.NavTimeout, cfg.Retrieval.SettleDelay, logger))
		case "api":
			strategies = append(strategies, retrieval.NewAPIStrategy(cfg.Meli.APIHost, cfg.Meli.SiteID, cfg.Meli.AccessToken, cfg.Meli.UserAgent, cfg.Retrieval.APITimeout, logger))
		default:
			logger.Warn("Unknown retrieval tier in config, skipping", zap.String("tier", tier))
		}
	}
	if cfg.Retrieval.SyntheticFallback {
		strategies = append(strategies, retrieval.NewSyntheticStrategy(logger))
	}
	return strategies
}

func healthHandler(session *browser.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		browserStatus := "stopped"
		if session.Running() {
			browserStatus = "running"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": appVersion,
			"browser": browserStatus,
		})
	}
}

func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"app":     appName,
			"version": appVersion,
			"endpoints": map[string]string{
				"search":   "/api/v1/search",
				"webhooks": "/api/v1/webhooks/whatsapp",
				"health":   "/health",
			},
		})
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	s.session.Stop()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
