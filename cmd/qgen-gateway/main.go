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

	"github.com/johnmikel306/learntrack-sub002/internal/adapter/backend"
	"github.com/johnmikel306/learntrack-sub002/internal/config"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway/hub"
	"github.com/johnmikel306/learntrack-sub002/internal/metrics"
	"github.com/johnmikel306/learntrack-sub002/internal/orchestrator"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
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

	lg.Info("starting review gateway",
		"port", cfg.GatewayPort,
		"backend_url", cfg.BackendURL,
	)

	m := metrics.New()

	// Initialize hub
	connectionHub := hub.NewHub(lg, m)
	go connectionHub.Run()

	// Initialize backend client, shared by every workspace
	opts := []backend.Option{backend.WithLogger(lg)}
	if cfg.BackendAPIToken != "" {
		opts = append(opts, backend.WithToken(cfg.BackendAPIToken))
	}
	client := backend.NewClient(cfg.BackendURL, cfg.RequestTimeout, opts...)

	workspaces := gateway.NewWorkspaces(func(workspaceID string) *orchestrator.Orchestrator {
		return orchestrator.New(orchestrator.Deps{
			Backend:           client,
			Log:               lg.With("workspace_id", workspaceID),
			Metrics:           m,
			MaxQuestions:      cfg.MaxQuestionsPerCall,
			ApproveAllWorkers: cfg.ApproveAllWorkers,
			StreamTimeout:     cfg.StreamTimeout,
		})
	}, connectionHub, lg)

	server := gateway.NewServer(gateway.OptionsFromConfig(cfg), connectionHub, workspaces, m, lg).Echo()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.GatewayPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			lg.Fatal("failed to start gateway", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down gateway")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("failed to shutdown gateway gracefully", "error", err)
	}
	workspaces.Close()
	connectionHub.Stop()

	lg.Info("gateway stopped")
}
