package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/catalog-browser/internal/catalog"
	"github.com/Sternrassler/catalog-browser/internal/config"
	"github.com/Sternrassler/catalog-browser/internal/tui"
	"github.com/Sternrassler/catalog-browser/pkg/api"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/Sternrassler/catalog-browser/pkg/metrics"
	"github.com/Sternrassler/catalog-browser/pkg/retry"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.Open(cfg.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(context.Background(), cfg, logger, tea.WithAltScreen()); err != nil {
		logger.Error().Err(err).Msg("Browser failed")
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		closer.Close()
		os.Exit(1)
	}
}

// run starts the optional metrics endpoint and the browser, and returns
// when the user quits.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := api.New(cfg.Client())
	if err != nil {
		return fmt.Errorf("create api client: %w", err)
	}

	budget, closeBudget, err := newBudget(ctx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer closeBudget()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr)
		})
	}

	session := catalog.NewSession(ctx, client, catalog.Config{
		PageSize: cfg.PageSize,
		Batch:    cfg.Batch(),
		Retry:    cfg.RetryPolicy(),
		Budget:   budget,
	})

	logger.Info().
		Str("api_url", cfg.APIConfig.URL).
		Int("page_size", cfg.PageSize).
		Bool("shared_budget", cfg.RedisURL != "").
		Msg("Starting catalog browser")

	opts = append(opts, tea.WithContext(gctx))
	_, runErr := tea.NewProgram(tui.New(session), opts...).Run()

	cancel()
	waitErr := g.Wait()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("run browser: %w", runErr)
	}
	if waitErr != nil {
		return waitErr
	}

	logger.Info().Msg("Catalog browser stopped")
	return nil
}

// newBudget returns the shared Redis budget when redisURL is set and
// reachable, the process-local budget otherwise.
func newBudget(ctx context.Context, redisURL string, logger zerolog.Logger) (retry.Budget, func(), error) {
	noop := func() {}

	if redisURL == "" {
		return retry.NewMemoryBudget(retry.DefaultWindow, logger), noop, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, noop, fmt.Errorf("parse CATALOG_REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unavailable, using local retry budget")
		return retry.NewMemoryBudget(retry.DefaultWindow, logger), noop, nil
	}

	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis, using shared retry budget")
	return retry.NewRedisBudget(rdb, retry.DefaultWindow, logger), func() { rdb.Close() }, nil
}
