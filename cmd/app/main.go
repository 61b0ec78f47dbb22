package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"persona-ai-chat/internal/config"
	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/domain/prompt"
	aiAdapters "persona-ai-chat/internal/infra/adapters/ai"
	pg "persona-ai-chat/internal/infra/db/postgres"
	"persona-ai-chat/internal/infra/i18n"
	"persona-ai-chat/internal/infra/logging"
	"persona-ai-chat/internal/infra/metrics"
	red "persona-ai-chat/internal/infra/redis"
	"persona-ai-chat/internal/infra/security"
	"persona-ai-chat/internal/infra/tokens"
	"persona-ai-chat/internal/infra/web"
	"persona-ai-chat/internal/infra/worker"
	"persona-ai-chat/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop provider fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	convoCache := red.NewConvoCache(redisClient, cfg.Redis.TTL)
	locker := red.NewLocker(redisClient)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes; falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		log.Fatalf("encryption: %v", err)
	}

	// ---- Repositories ----
	convoRepo := pg.NewConversationRepo(pool, convoCache)
	lorebookRepo := pg.NewLorebookRepo(pool)
	credRepo := pg.NewCredentialRepo(pool, encSvc)
	settingsRepo := pg.NewSettingsRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Completion provider ----
	var provider adapter.CompletionProvider
	switch strings.ToLower(cfg.AI.Provider) {
	case "gemini":
		provider = aiAdapters.NewGeminiAdapter(cfg.AI.GeminiURL, cfg.AI.DefaultModel)
	case "openai":
		provider = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIURL, cfg.AI.DefaultModel)
	case "noop":
		provider = aiAdapters.NewNoopProvider()
	default:
		log.Fatalf("unknown ai.provider %q (want gemini, openai or noop)", cfg.AI.Provider)
	}
	provider = aiAdapters.NewRetryingProvider(provider, cfg.AI.RetryAttempts, cfg.AI.RetryBaseDelay)
	provider = aiAdapters.NewLimitedProvider(provider, cfg.AI.ConcurrentLimit)
	logger.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.DefaultModel).Msg("completion provider ready")

	// ---- Background workers ----
	workerPool := worker.NewPool(cfg.Memory.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	// ---- Use cases ----
	locales, err := i18n.NewBundle(i18n.LocalesFS, "en", "ko")
	if err != nil {
		log.Fatalf("i18n: %v", err)
	}
	estimator := tokens.NewEstimator()
	builder := prompt.NewBuilder(cfg.Memory.RecentTurns)

	credUC := usecase.NewCredentialUseCase(credRepo, settingsRepo, logger)
	summaryUC := usecase.NewSummaryUseCase(
		convoRepo, credUC, provider,
		locker, red.SummaryLockKey,
		cfg.Memory.SummaryThreshold, cfg.AI.MaxOutputTokens,
		logger,
	)
	chatUC := usecase.NewChatUseCase(usecase.ChatDeps{
		Convos:           convoRepo,
		Lorebook:         lorebookRepo,
		Settings:         settingsRepo,
		TxManager:        txManager,
		Creds:            credUC,
		Provider:         provider,
		Builder:          builder,
		Estimator:        estimator,
		Runner:           workerPool,
		Summaries:        summaryUC,
		Locales:          locales,
		ProviderName:     cfg.AI.Provider,
		SummaryThreshold: cfg.Memory.SummaryThreshold,
		MaxOutputTokens:  cfg.AI.MaxOutputTokens,
	}, logger)
	lorebookUC := usecase.NewLorebookUseCase(lorebookRepo, logger)
	settingsUC := usecase.NewSettingsUseCase(settingsRepo, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Server.JWTSecret, !cfg.Runtime.Dev, "", cfg.Server.SessionTTL)
	srv := web.NewServer(web.ServerDeps{
		ChatUC:     chatUC,
		SummaryUC:  summaryUC,
		LorebookUC: lorebookUC,
		CredUC:     credUC,
		SettingsUC: settingsUC,
		Provider:   provider,
		Auth:       auth,
		Limiter:    rateLimiter,
		SendLimit:  cfg.Server.SendRateLimit,
		SendWindow: cfg.Server.SendRateWindow,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	cancel()
}
