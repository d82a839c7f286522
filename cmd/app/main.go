// File: cmd/app/main.go
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

	"iamoneai-gateway/internal/config"
	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"
	llm "iamoneai-gateway/internal/infra/adapters/llm"
	"iamoneai-gateway/internal/infra/api"
	pg "iamoneai-gateway/internal/infra/db/postgres"
	"iamoneai-gateway/internal/infra/logging"
	"iamoneai-gateway/internal/infra/metrics"
	red "iamoneai-gateway/internal/infra/redis"
	"iamoneai-gateway/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Redis (optional) ----
	// A missing or unreachable Redis degrades the gateway, it does not
	// stop it: rate limiting fails open and history turns off.
	var (
		redisClient red.RedisClient
		redisPing   api.Pinger
	)
	if cfg.Redis.URL != "" {
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, rate limiting and history disabled")
		} else {
			redisClient = client
			redisPing = client
			defer client.Close()
		}
	} else {
		logger.Info().Msg("redis not configured")
	}
	rateLimiter := red.NewRateLimiter(redisClient, logger)
	convCache := red.NewConversationCache(redisClient, cfg.Redis.ConversationTTL, logger)

	// ---- Postgres (optional) ----
	var auditPing api.Pinger
	auditRepo := pg.NewAuditRepo(nil, logger)
	if cfg.Database.URL != "" {
		p, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
		if err != nil {
			logger.Warn().Err(err).Msg("postgres unavailable, audit logging disabled")
		} else {
			auditRepo = pg.NewAuditRepo(p, logger)
			auditPing = p
			defer p.Close()
		}
	} else {
		logger.Info().Msg("postgres not configured")
	}

	// ---- Providers ----
	byModel := map[model.ModelID]adapter.LLMAdapter{}
	if cfg.RunPod.APIKey != "" {
		rp, err := llm.NewRunPodAdapter(cfg.RunPod, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("runpod adapter not started")
		} else {
			wrapped := llm.NewLimitedLLM(rp, cfg.Limits.ConcurrentUpstream)
			for _, id := range rp.Models() {
				byModel[id] = wrapped
			}
		}
	}
	if cfg.Groq.APIKey != "" {
		gq, err := llm.NewGroqAdapter(cfg.Groq, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("groq adapter not started")
		} else {
			byModel[model.ModelGroq] = llm.NewLimitedLLM(gq, cfg.Limits.ConcurrentUpstream)
		}
	}
	if len(byModel) == 0 {
		log.Fatalf("no providers configured: set RUNPOD_API_KEY or GROQ_API_KEY")
	}

	defaultModel, ok := model.ParseModel(cfg.Defaults.Model)
	if !ok {
		defaultModel = model.ModelLlama3
	}
	if _, ok := byModel[defaultModel]; !ok {
		// default must resolve; fall back to any configured model
		for id := range byModel {
			defaultModel = id
			break
		}
		logger.Warn().Str("model", string(defaultModel)).Msg("configured default model unavailable, substituted")
	}
	router := llm.NewMultiAdapter(defaultModel, byModel, logger)

	// ---- Use case ----
	chatUC := usecase.NewChatUseCase(
		router,
		rateLimiter,
		convCache,
		auditRepo,
		llm.NewEstimator(),
		usecase.Limits{PerWindow: cfg.Limits.ChatPerWindow, Window: cfg.Limits.Window},
		logger,
	)

	// ---- HTTP server ----
	srv := api.NewServer(chatUC, router, redisPing, auditPing, cfg.Defaults, logger)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Str("default_model", string(defaultModel)).Msg("gateway listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server exited")
			cancel()
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
}
