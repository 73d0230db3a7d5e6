package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnmikel306/learntrack-sub002/internal/adapter/llm"
	"github.com/johnmikel306/learntrack-sub002/internal/config"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
	"github.com/johnmikel306/learntrack-sub002/internal/policy"
	"github.com/johnmikel306/learntrack-sub002/internal/repository"
	"github.com/johnmikel306/learntrack-sub002/internal/service"
	handler "github.com/johnmikel306/learntrack-sub002/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("starting question generation backend",
		"port", cfg.BackendPort,
		"database", cfg.DatabaseURL,
		"llm_mode", cfg.LLMMode,
	)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		lg.Fatal("failed to initialize store", "error", err)
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		lg.Fatal("failed to initialize policy engine", "error", err)
	}

	// Initialize question generator
	generator := llm.NewGenerator(llm.Options{
		Mode:      cfg.LLMMode,
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.OpenAIModel,
		MockDelay: cfg.MockDelay,
	}, lg)

	// Initialize service
	svc := service.New(db, generator, policyEngine, cfg, lg)

	server := handler.NewServer(svc, cfg.BackendAPIToken, lg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.BackendPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			lg.Fatal("failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down backend")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("failed to shutdown server gracefully", "error", err)
	}

	lg.Info("backend stopped")
}
