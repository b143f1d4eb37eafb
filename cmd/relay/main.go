// Package main is the entry point for the redelivery demo relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/config"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/httpmw"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/tracing"
	"github.com/gitoutofhere7/japan-post-demo/internal/demo"
	"github.com/gitoutofhere7/japan-post-demo/internal/events"
	"github.com/gitoutofhere7/japan-post-demo/internal/provider"
	"github.com/gitoutofhere7/japan-post-demo/internal/relay"
	"github.com/gitoutofhere7/japan-post-demo/internal/relay/handlers"
)

const serviceName = "redelivery-relay"

func main() {
	// 1. Load configuration
	cfg, err := config.LoadWithPath(os.Getenv("RELAY_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("Starting redelivery demo relay...")
	if cfg.Provider.APIKey == "" {
		log.Warn("No provider API key configured, runs will be rejected upstream")
	}

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize tracing (no-op without an endpoint)
	if err := tracing.Init(ctx, cfg.Tracing.OTLPEndpoint, cfg.Tracing.ServiceName); err != nil {
		log.Warn("Failed to initialize tracing, continuing without it", zap.Error(err))
	}

	// 5. Event bus for run lifecycle events
	eventBus, closeBus, err := events.Provide(cfg.Events, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer closeBus()

	runStats, err := events.WatchRuns(eventBus, cfg.Events.SubjectPrefix, log)
	if err != nil {
		log.Fatal("Failed to watch run events", zap.Error(err))
	}
	defer func() { _ = runStats.Stop() }()

	// 6. Wire the relay
	client := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.ConnectTimeoutDuration(), log)
	orch := relay.NewOrchestrator(demo.NewRandom(nil, nil), client, eventBus, relay.Options{
		TargetURL:      cfg.Provider.TargetURL,
		Mode:           cfg.Provider.Mode,
		TimeoutMS:      cfg.Provider.TimeoutMS,
		AbandonAsError: cfg.Relay.AbandonAsError,
		SubjectPrefix:  cfg.Events.SubjectPrefix,
		MaxFrameBytes:  cfg.Provider.MaxFrameBytes,
	}, log)
	limiter := relay.NewLimiter(cfg.Relay.RunsPerMinute, cfg.Relay.MaxConcurrentRuns)

	// 7. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestID())
	router.Use(httpmw.OtelTracing(serviceName))
	router.Use(httpmw.RequestLogger(log, serviceName))
	router.Use(httpmw.CORS())

	// 8. Register routes
	handlers.RegisterRoutes(router, orch, limiter, eventBus, runStats, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	// 9. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 10. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down relay...")

	// 11. Graceful shutdown: cancelling ctx ends in-flight runs
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("Relay stopped")
}
