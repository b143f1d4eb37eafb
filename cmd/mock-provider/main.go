// Package main serves a scripted stand-in for the automation provider's
// streaming run endpoint, for local development and end-to-end tests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
)

type options struct {
	addr          string
	scenario      string
	scenariosFile string
	delay         time.Duration
	apiKey        string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "mock-provider",
		Short:         "Serve scripted automation runs over SSE",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", ":8787", "listen address")
	flags.StringVar(&opts.scenario, "scenario", "success", "default scenario")
	flags.StringVar(&opts.scenariosFile, "scenarios-file", "", "YAML file with additional scenarios")
	flags.DurationVar(&opts.delay, "delay", 500*time.Millisecond, "delay before each frame")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("MOCK_PROVIDER_API_KEY"), "required X-API-Key value, empty accepts any")
	return cmd
}

func serve(ctx context.Context, opts *options) error {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "info", Format: logger.DetectFormat()})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	scenarios, err := loadScenarios(opts.scenariosFile)
	if err != nil {
		return err
	}
	if _, ok := scenarios[opts.scenario]; !ok {
		return fmt.Errorf("unknown default scenario %q (available: %v)", opts.scenario, scenarioNames(scenarios))
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(&server{
		scenarios:       scenarios,
		defaultScenario: opts.scenario,
		apiKey:          opts.apiKey,
		delay:           opts.delay,
		logger:          log.WithFields(zap.String("component", "mock-provider")),
	})
	httpServer := &http.Server{Addr: opts.addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Mock provider listening",
			zap.String("addr", opts.addr),
			zap.String("scenario", opts.scenario),
			zap.Strings("scenarios", scenarioNames(scenarios)))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
