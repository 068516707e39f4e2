package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for budget tracking.
var (
	budgetFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_retry_budget_failures",
		Help: "Failures counted in the current retry budget window",
	})

	budgetBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_retry_budget_blocks_total",
		Help: "Total number of automatic reloads blocked by the retry budget",
	})
)

// Budget gates automatic reloads on the recent failure rate.
type Budget interface {
	// RecordFailure counts one failed fetch.
	RecordFailure(ctx context.Context) error
	// Allow reports whether an automatic reload may proceed.
	Allow(ctx context.Context) (bool, error)
}

// RedisBudget counts failures in a fixed window shared through Redis.
type RedisBudget struct {
	redis  *redis.Client
	window time.Duration
	logger zerolog.Logger
}

// NewRedisBudget creates a budget backed by Redis. A non-positive window
// falls back to DefaultWindow.
func NewRedisBudget(redisClient *redis.Client, window time.Duration, logger zerolog.Logger) *RedisBudget {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisBudget{
		redis:  redisClient,
		window: window,
		logger: logger,
	}
}

// GetState retrieves the current budget state from Redis.
// Returns an empty healthy state if no failures were recorded in the window.
func (b *RedisBudget) GetState(ctx context.Context) (*BudgetState, error) {
	failures, err := b.redis.Get(ctx, RedisKeyFailures).Int()
	if errors.Is(err, redis.Nil) {
		return &BudgetState{
			ResetAt:   time.Now().Add(b.window),
			IsHealthy: true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failures: %w", err)
	}

	ttl, err := b.redis.TTL(ctx, RedisKeyFailures).Result()
	if err != nil {
		return nil, fmt.Errorf("get failures ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}

	state := &BudgetState{
		Failures: failures,
		ResetAt:  time.Now().Add(ttl),
	}
	state.UpdateHealth()

	return state, nil
}

// RecordFailure increments the failure counter, opening a new window if needed.
func (b *RedisBudget) RecordFailure(ctx context.Context) error {
	pipe := b.redis.TxPipeline()
	incr := pipe.Incr(ctx, RedisKeyFailures)
	pipe.ExpireNX(ctx, RedisKeyFailures, b.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failure in redis: %w", err)
	}

	failures := incr.Val()
	budgetFailures.Set(float64(failures))

	b.logger.Debug().
		Int64("failures", failures).
		Dur("window", b.window).
		Msg("Failure recorded")

	return nil
}

// Allow reports whether an automatic reload may proceed.
func (b *RedisBudget) Allow(ctx context.Context) (bool, error) {
	state, err := b.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get budget state: %w", err)
	}

	return allow(state, b.logger), nil
}

// MemoryBudget is a process-local Budget.
type MemoryBudget struct {
	mu       sync.Mutex
	window   time.Duration
	failures int
	resetAt  time.Time
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMemoryBudget creates a process-local budget.
func NewMemoryBudget(window time.Duration, logger zerolog.Logger) *MemoryBudget {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryBudget{
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// GetState returns the current budget state.
func (b *MemoryBudget) GetState() *BudgetState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	resetAt := b.resetAt
	if resetAt.IsZero() {
		resetAt = b.now().Add(b.window)
	}

	state := &BudgetState{
		Failures: b.failures,
		ResetAt:  resetAt,
	}
	state.UpdateHealth()
	return state
}

// RecordFailure counts one failed fetch.
func (b *MemoryBudget) RecordFailure(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	if b.failures == 0 {
		b.resetAt = b.now().Add(b.window)
	}
	b.failures++
	budgetFailures.Set(float64(b.failures))

	return nil
}

// Allow reports whether an automatic reload may proceed.
func (b *MemoryBudget) Allow(context.Context) (bool, error) {
	return allow(b.GetState(), b.logger), nil
}

func (b *MemoryBudget) rollLocked() {
	if !b.resetAt.IsZero() && !b.now().Before(b.resetAt) {
		b.failures = 0
		b.resetAt = time.Time{}
	}
}

func allow(state *BudgetState, logger zerolog.Logger) bool {
	if state.NeedsCriticalBlock() {
		logger.Error().
			Int("failures", state.Failures).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Retry budget critical - blocking automatic reload")

		budgetBlocksTotal.Inc()
		return false
	}

	if state.NeedsWarning() {
		logger.Warn().
			Int("failures", state.Failures).
			Msg("Retry budget warning - elevated failure rate")
	}

	return true
}
