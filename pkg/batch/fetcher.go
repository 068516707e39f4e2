package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	batchChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_batch_chunks_total",
		Help: "Total number of chunk calls issued by the batch fetcher",
	})

	batchFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_batch_fetch_duration_seconds",
		Help:    "Duration of complete multi-chunk fetches",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Config holds batch fetcher configuration.
type Config struct {
	// ChunkSize is the maximum number of ids per call.
	ChunkSize int
	// MaxConcurrency is the maximum number of parallel calls.
	MaxConcurrency int
	// Timeout per chunk call; 0 leaves the parent deadline in charge.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      100,
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// ChunkFunc fetches the records for one chunk of ids.
type ChunkFunc[T any] func(ctx context.Context, ids []string) ([]T, error)

// Fetcher splits id lists into chunks and fetches them in parallel.
type Fetcher[T any] struct {
	fetch  ChunkFunc[T]
	config Config
}

// NewFetcher creates a new batch fetcher.
func NewFetcher[T any](fetch ChunkFunc[T], config Config) *Fetcher[T] {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 100
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}

	return &Fetcher[T]{
		fetch:  fetch,
		config: config,
	}
}

// FetchAll fetches the records for ids, preserving id order across chunks.
func (f *Fetcher[T]) FetchAll(ctx context.Context, ids []string) ([]T, error) {
	if len(ids) <= f.config.ChunkSize {
		batchChunksTotal.Inc()
		return f.fetchChunk(ctx, ids)
	}

	start := time.Now()
	defer func() {
		batchFetchDuration.Observe(time.Since(start).Seconds())
	}()

	chunks := Chunk(ids, f.config.ChunkSize)
	results := make([][]T, len(chunks))

	log.Debug().
		Int("ids", len(ids)).
		Int("chunks", len(chunks)).
		Int("concurrency", f.config.MaxConcurrency).
		Msg("Starting chunked fetch")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.MaxConcurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			batchChunksTotal.Inc()
			records, err := f.fetchChunk(gctx, chunk)
			if err != nil {
				log.Warn().
					Err(err).
					Int("chunk", i).
					Int("size", len(chunk)).
					Msg("Chunk fetch failed")
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]T, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}

	log.Debug().
		Int("records", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Chunked fetch complete")

	return out, nil
}

func (f *Fetcher[T]) fetchChunk(ctx context.Context, ids []string) ([]T, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}
	return f.fetch(ctx, ids)
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/max(size, 1))
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
