// Package main is a terminal player for the relay's demo event stream.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/player"
)

type options struct {
	url      string
	runs     int
	ceiling  time.Duration
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "player",
		Short:         "Play the Japan Post redelivery demo in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return play(cmd.Context(), out, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.url, "url", "u", "http://localhost:3000/api/run-demo", "relay event stream URL")
	flags.IntVarP(&opts.runs, "runs", "n", 1, "number of concurrent runs")
	flags.DurationVar(&opts.ceiling, "ceiling", player.DefaultCeiling, "client-side limit per run")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	return cmd
}

func play(ctx context.Context, out io.Writer, opts *options) error {
	if opts.runs < 1 {
		return fmt.Errorf("--runs must be at least 1")
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      opts.logLevel,
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var (
		mu      sync.Mutex
		results = make([]player.Result, opts.runs)
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := range opts.runs {
		prefix := ""
		if opts.runs > 1 {
			prefix = fmt.Sprintf("[%d] ", i+1)
		}
		p := player.New(opts.url, player.NewConsoleRenderer(out, &mu, prefix),
			player.WithCeiling(opts.ceiling),
			player.WithLogger(log.WithFields(zap.Int("run", i+1))))
		g.Go(func() error {
			results[i] = p.Play(gctx)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, res := range results {
		log.Info("Run finished",
			zap.Int("run", i+1),
			zap.String("outcome", string(res.Outcome)),
			zap.Int("events", res.Events))
		if res.Outcome == player.OutcomeFailed || res.Outcome == player.OutcomeDisconnected {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, opts.runs)
	}
	return nil
}
