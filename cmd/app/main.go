package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"helpdesk-assistant/internal/config"
	"helpdesk-assistant/internal/convert"
	"helpdesk-assistant/internal/domain/ports/adapter"
	aiAdapters "helpdesk-assistant/internal/infra/adapters/ai"
	pg "helpdesk-assistant/internal/infra/db/postgres"
	"helpdesk-assistant/internal/infra/logging"
	"helpdesk-assistant/internal/infra/metrics"
	red "helpdesk-assistant/internal/infra/redis"
	"helpdesk-assistant/internal/infra/security"
	"helpdesk-assistant/internal/infra/web"
	"helpdesk-assistant/internal/infra/worker"
	"helpdesk-assistant/internal/tools"
	"helpdesk-assistant/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (header auth, relaxed config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	locker := red.NewLocker(redisClient)
	jobCache := red.NewJobCache(redisClient, cfg.Redis.TTL)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes, falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Repositories ----
	chatRepo := pg.NewChatRepo(pool)
	msgRepo := pg.NewMessageRepo(pool, encSvc)
	jobRepo := pg.NewTurnJobRepo(pool, tm)
	settingsRepo := pg.NewSettingsRepo(pool)

	// ---- Tools ----
	registry, err := tools.NewRegistry(
		tools.NewSearchArticlesTool(settingsRepo),
		tools.NewCreateTicketTool(settingsRepo),
		tools.NewLiveChatHandoffTool(settingsRepo),
		tools.NewWebSearchTool(cfg.Tools.WebSearchEndpoint),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("tool registry")
	}
	dispatcher := tools.NewDispatcher(registry, logger)

	// ---- AI adapter ----
	ai, err := buildAIAdapter(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai adapter")
	}

	counter := convert.NewTiktokenCounter(cfg.AI.DefaultModel)

	// ---- Use case ----
	chatUC := usecase.NewChatUseCase(chatRepo, msgRepo, jobRepo, ai, locker, jobCache)

	// ---- Worker ----
	processor := worker.NewTurnProcessor(
		jobRepo, chatRepo, msgRepo, settingsRepo, ai, dispatcher, counter, tm, jobCache,
		worker.ProcessorConfig{
			DefaultModel:       cfg.AI.DefaultModel,
			HistoryTokenBudget: cfg.AI.HistoryTokenBudget,
			EnabledTools:       cfg.Tools.Enabled,
		},
		logger,
	)
	workerPool := worker.NewPool(cfg.Worker.Workers, logger)
	workerPool.Start(ctx)
	scheduler := worker.NewScheduler(
		jobRepo, processor, workerPool,
		cfg.Worker.PollInterval, cfg.Worker.StaleAfter, cfg.Worker.BatchSize,
		logger,
	)
	scheduler.Start(ctx)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Runtime.Dev)
	srv := web.NewServer(chatUC, scheduler, processor, auth, logger)
	srv.StreamWriteTimeout = cfg.Server.StreamWriteTimeout
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	scheduler.Stop()
	workerPool.Stop()
	cancel()
}

// buildAIAdapter wires OpenAI and Gemini behind a model router when both
// keys are present, either alone otherwise. Dev mode falls back to a
// canned adapter so the pipeline runs without provider credentials.
func buildAIAdapter(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.LLMStreamAdapter, error) {
	var (
		openAI *aiAdapters.OpenAIAdapter
		gemini *aiAdapters.GeminiAdapter
		err    error
	)
	if cfg.AI.OpenAIKey != "" {
		openAI, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("ai provider: openai")
	}
	if cfg.AI.GeminiKey != "" {
		gemini, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, 0)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("ai provider: gemini")
	}

	switch {
	case openAI != nil && gemini != nil:
		return aiAdapters.NewMultiAdapter("openai", map[string]adapter.LLMStreamAdapter{
			"openai": openAI,
			"gemini": gemini,
		}, nil), nil
	case openAI != nil:
		return openAI, nil
	case gemini != nil:
		return gemini, nil
	case cfg.Runtime.Dev:
		logger.Warn().Msg("no ai provider configured, using canned dev adapter")
		return aiAdapters.NewNoopAdapter(), nil
	default:
		return nil, errors.New("no ai provider configured: set ai.openai_key or ai.gemini_key")
	}
}
