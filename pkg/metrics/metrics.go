// Package metrics exposes the Prometheus metrics of the catalog browser.
// All metrics are defined in their respective packages (api, batch, retry,
// catalog) through promauto to keep packages independent; this package
// serves them and documents what exists.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the browser.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry read by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Serve serves Handler on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	logger := logging.NewLogger("metrics")

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	logger.Info().Msg("Metrics server stopped")
	return nil
}

// Metrics Documentation
//
// API Metrics (pkg/api):
//   - catalog_api_requests_total{action, status} (Counter): Calls by action and HTTP status
//   - catalog_api_request_duration_seconds{action} (Histogram): Call duration by action
//   - catalog_api_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Batch Metrics (pkg/batch):
//   - catalog_batch_chunks_total (Counter): get_items chunk calls
//   - catalog_batch_fetch_duration_seconds (Histogram): Duration of multi-chunk fetches
//
// Reload Metrics (pkg/retry):
//   - catalog_auto_reloads_total (Counter): Scheduled automatic reloads
//   - catalog_auto_reload_backoff_seconds (Histogram): Delay before automatic reloads
//   - catalog_auto_reload_exhausted_total (Counter): Times automatic reloads ran out
//   - catalog_retry_budget_failures (Gauge): Failures in the current budget window
//   - catalog_retry_budget_blocks_total (Counter): Reloads blocked by the budget
//
// Session Metrics (internal/catalog):
//   - catalog_stale_completions_total{binding} (Counter): Superseded responses dropped
//   - catalog_fetch_errors_total{binding} (Counter): Failed fetches by binding
//
// Example Prometheus Queries:
//
//   # Error Rate by Action
//   sum by (action) (rate(catalog_api_requests_total{status!~"2.."}[5m]))
//
//   # P95 Call Latency
//   histogram_quantile(0.95, rate(catalog_api_request_duration_seconds_bucket[5m]))
//
//   # Budget Pressure
//   catalog_retry_budget_failures > 10
