package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/intake-sim/backend/internal/config"
	"github.com/zhouzirui/intake-sim/backend/internal/handler"
	"github.com/zhouzirui/intake-sim/backend/internal/service/ai"
	"github.com/zhouzirui/intake-sim/backend/internal/service/chat"
	"github.com/zhouzirui/intake-sim/backend/internal/service/conversation"
	"github.com/zhouzirui/intake-sim/backend/internal/telemetry"
)

func main() {
	apiKey := flag.String("api-key", "", "LLM API key; selects Anthropic unless LLM_PROVIDER is set")
	addr := flag.String("addr", "", "listen address, e.g. :8000 (overrides PORT)")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.LoadWithOverrides(config.Overrides{APIKey: *apiKey, Addr: *addr})
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, closeLog, err := telemetry.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	slog.SetDefault(logger)

	err = run(cfg, logger)
	if err != nil {
		logger.Error("intake simulator exited", "error", err)
	}
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

// run owns every resource that must be flushed on exit, so it returns
// errors instead of exiting.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// The completion capability is mandatory; without it no exchange can run.
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize %s chat model: %w", cfg.AI.Provider, err)
	}
	aiService, err := ai.NewService(ctx, chatModel)
	if err != nil {
		return fmt.Errorf("failed to initialize AI service: %w", err)
	}
	logger.Info("AI service initialized", "provider", cfg.AI.Provider, "model", cfg.AI.Model)

	store := chat.NewService(chat.Options{
		MaxTurns: cfg.Session.MaxTurns,
		IdleTTL:  cfg.Session.IdleTTL,
		Logger:   logger,
	})
	if cfg.Session.IdleTTL > 0 {
		go store.RunSweeper(ctx, cfg.Session.SweepInterval)
	}

	orchestrator, err := conversation.New(conversation.Config{
		Store:            store,
		Completer:        aiService,
		MaxTokens:        cfg.AI.MaxTokens,
		InjectReminder:   cfg.AI.InjectReminder,
		CheckConsistency: cfg.AI.CheckConsistency,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	router := handler.NewRouter(cfg.Server, cfg.Session, store, orchestrator, logger)

	return startServer(ctx, logger, cfg.Server, router)
}

func startServer(ctx context.Context, logger *slog.Logger, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("intake simulator listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
