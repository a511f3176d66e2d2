package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"toolchat-backend/internal/config"
	"toolchat-backend/internal/database"
	"toolchat-backend/internal/handlers"
	"toolchat-backend/internal/middleware"
	"toolchat-backend/internal/router"
	"toolchat-backend/internal/services"
	"toolchat-backend/internal/telemetry"
	"toolchat-backend/internal/tools"
	"toolchat-backend/web"
)

func main() {
	log.Println("🚀 Starting Tool Chat Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Logging & Telemetry ────
	logger, logCloser, err := telemetry.InitLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("✗ Logger initialization failed: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	log.Println("✓ Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := telemetry.InitTelemetry(ctx, "logs")
		if err != nil {
			log.Fatalf("✗ Telemetry initialization failed: %v", err)
		}
		defer shutdown()
		log.Println("✓ OpenTelemetry exporters started")
	}

	// ──── Step 3: Initialize Gemini Client ────
	registry := tools.NewDefaultRegistry()
	var provider services.Provider
	if cfg.ProviderConfigured() {
		geminiService, err := services.NewGeminiService(ctx, cfg.GeminiAPIKey, registry, services.GeminiOptions{
			Model:           cfg.GeminiModel,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
			MaxSteps:        cfg.MaxSteps,
			ConcurrentReqs:  cfg.GeminiConcurrentReqs,
		})
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer geminiService.Close()
		provider = services.Instrument(geminiService, otel.Tracer(telemetry.ServiceName))
		log.Printf("✓ Gemini client initialized (%s, %d tools)", cfg.GeminiModel, len(registry.List()))
	} else {
		log.Println("✗ GOOGLE_GENERATIVE_AI_API_KEY not set, chat requests will fail with config_missing")
	}

	// ──── Step 4: Initialize Rate Limiter ────
	var store middleware.Store
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer rdb.Close()
		store = middleware.NewRedisStore(rdb)
		log.Println("✓ Redis connected, rate limits are shared")
	} else {
		mem := middleware.NewMemoryStore(time.Minute)
		defer mem.Close()
		store = mem
		log.Println("✓ In-memory rate limiter started")
	}
	limiter := middleware.NewRateLimiter(store, cfg.RateLimitPerMin, time.Minute)

	// ──── Step 5: Start HTTP Server ────
	chatHandler := handlers.NewChatHandler(provider, cfg.ProviderConfigured(), cfg.ChatTimeout, telemetry.DefaultChatMetrics())
	r := router.New(chatHandler, limiter, cfg.ProviderConfigured(), web.FS(), cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ChatTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("✓ Tool Chat Backend ready on http://localhost:%s", cfg.Port)
		log.Printf("  API: http://localhost:%s/api/v1/chat", cfg.Port)
		log.Printf("  WS:  ws://localhost:%s/api/v1/chat/ws", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
