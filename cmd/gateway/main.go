// Command gateway is the research-assistant backend's entry point: it
// wires config → logger → Postgres → auth/quota → key store/LLM router
// → facts/paper/web adapters → query pipeline → HTTP server, then
// serves until an OS signal requests graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nocturnal-archive/gateway/internal/auth"
	"github.com/nocturnal-archive/gateway/internal/config"
	"github.com/nocturnal-archive/gateway/internal/factsstore"
	"github.com/nocturnal-archive/gateway/internal/financeadapter"
	"github.com/nocturnal-archive/gateway/internal/httpapi"
	"github.com/nocturnal-archive/gateway/internal/keystore"
	"github.com/nocturnal-archive/gateway/internal/llmrouter"
	"github.com/nocturnal-archive/gateway/internal/logger"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/paperadapter"
	"github.com/nocturnal-archive/gateway/internal/papercache"
	"github.com/nocturnal-archive/gateway/internal/pipeline"
	"github.com/nocturnal-archive/gateway/internal/quota"
	"github.com/nocturnal-archive/gateway/internal/redisclient"
	"github.com/nocturnal-archive/gateway/internal/store"
	"github.com/nocturnal-archive/gateway/internal/symbolmap"
	"github.com/nocturnal-archive/gateway/internal/websearch"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("research gateway starting")

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// Initialize Redis (optional; the rate limiter falls back to
	// in-process state when it's unset or unreachable).
	var rc *redisclient.Client
	if cfg.RedisURL != "" {
		rc, err = redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — continuing without Redis")
			rc = nil
		} else if err := rc.Ping(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed — continuing without Redis")
			rc = nil
		} else {
			log.Info().Msg("redis connected")
		}
	}

	users := store.NewUserRepo(db)
	authSvc := auth.New(users, cfg.JWTSigningKey, cfg.TokenTTL, cfg.AutoRegisterOnUnknown, log)

	quotaRepo := store.NewQuotaRepo(db)
	ledger := quota.New(quotaRepo, cfg.DailyCeiling)

	keys := registerKeys(cfg, log)

	providers := make([]llmrouter.ProviderConfig, 0, len(cfg.LLMProviderPriority))
	for _, name := range cfg.LLMProviderPriority {
		providers = append(providers, llmrouter.ProviderConfig{
			Name:    name,
			BaseURL: cfg.LLMProviderBaseURLs[name],
			Model:   cfg.LLMProviderModels[name],
		})
	}
	router := llmrouter.New(cfg.LLMProviderPriority, providers, keys, cfg.MaxConcurrentLLMPerProvider, cfg.TLLM, cfg.TCool, cfg.MaxAttempts)

	symbols := symbolmap.New(symbolmap.DefaultSeed)
	edgar := factsstore.NewEdgarSource("research-gateway/1.0 (contact@nocturnal-archive.example)")
	facts := factsstore.New(edgar, symbols, cfg.FactCacheTTL, cfg.DurationBandQ, cfg.DurationBandA)
	finance := financeadapter.New(facts, nil)

	openAlex := paperadapter.NewOpenAlexSource(cfg.PaperSourceTimeout)
	papers := paperadapter.New([]paperadapter.Source{openAlex})

	web := websearch.New(cfg.PaperSourceTimeout)
	paperByID := papercache.New(cfg.FactCacheTTL)

	pipe := pipeline.New(papers, finance, web, router, ledger, cfg.TFanout, log)

	handler := httpapi.NewRouter(httpapi.Deps{
		Config:    cfg,
		Logger:    log,
		AuthSvc:   authSvc,
		Ledger:    ledger,
		Keys:      keys,
		Finance:   finance,
		Papers:    papers,
		PaperByID: paperByID,
		Pipeline:  pipe,
		Router:    router,
		Redis:     rc,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestDeadline + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	if rc != nil {
		_ = rc.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}

// registerKeys seeds the Key Store from the LLMProviderAPIKeys config map
// (read from CEREBRAS_API_KEYS, GROQ_API_KEYS and CLOUDFLARE_API_KEYS), giving every configured key the same daily request ceiling.
func registerKeys(cfg *config.Config, log zerolog.Logger) *keystore.Store {
	ks := keystore.New()
	for provider, apiKeys := range cfg.LLMProviderAPIKeys {
		for _, key := range apiKeys {
			ks.Register(model.ProviderKey{
				Provider:          provider,
				KeyMaterial:       key,
				DailyRequestLimit: cfg.LLMKeyDailyRequestLimit,
			})
		}
		if len(apiKeys) > 0 {
			log.Info().Str("provider", provider).Int("keys", len(apiKeys)).Msg("registered llm provider keys")
		}
	}
	return ks
}
