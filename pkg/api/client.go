// Package api provides the HTTP client for the catalog action API.
//
// Every call is a POST of {"action": name, "params": {...}} to a single
// endpoint, authenticated through the X-Auth header. The response carries
// the payload under "result". The client does not retry; callers decide
// how to recover.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Action names understood by the catalog API.
const (
	ActionGetIDs    = "get_ids"
	ActionGetItems  = "get_items"
	ActionGetFields = "get_fields"
	ActionFilter    = "filter"
)

// maxErrorBody bounds how much of a failed response body ends up in an error.
const maxErrorBody = 512

// Prometheus metrics for catalog API calls.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_api_requests_total",
		Help: "Total catalog API requests by action and status",
	}, []string{"action", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_api_request_duration_seconds",
		Help:    "Catalog API request duration in seconds by action",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"action"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_api_errors_total",
		Help: "Total catalog API errors by class",
	}, []string{"class"})
)

// Client is the catalog API client.
type Client struct {
	httpClient *http.Client
	endpoint   string
	config     Config
	now        func() time.Time
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the action endpoint, e.g. "https://api.example.com/".
	BaseURL string

	// Credential signs every call through the X-Auth header.
	Credential Credential

	// UserAgent header sent with every call.
	UserAgent string

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
}

// DefaultConfig returns a configuration with safe defaults.
func DefaultConfig(baseURL string, credential Credential) Config {
	return Config{
		BaseURL:    baseURL,
		Credential: credential,
		UserAgent:  "catalog-browser/0.1.0",
		Timeout:    30 * time.Second,
	}
}

// New creates a new catalog API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: base url must be absolute (got %q)", ErrInvalidConfig, cfg.BaseURL)
	}

	if cfg.Credential == nil {
		return nil, fmt.Errorf("%w: credential is required", ErrInvalidConfig)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint: u.String(),
		config:   cfg,
		now:      time.Now,
		logger:   log.With().Str("component", "api-client").Logger(),
	}, nil
}

type request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
}

// Action calls the named action with params and returns the raw result.
func (c *Client) Action(ctx context.Context, name string, params any) (json.RawMessage, error) {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(name).Observe(time.Since(startTime).Seconds())
	}()

	body, err := json.Marshal(request{Action: name, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(AuthHeader, c.config.Credential.Token(c.now()))
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("action", name).
		Int("body_bytes", len(body)).
		Msg("Executing action")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		apiRequestsTotal.WithLabelValues(name, "network_error").Inc()
		c.logger.Warn().Err(err).Str("action", name).Msg("HTTP request failed")
		return nil, &APIError{
			Action:     name,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := classifyStatus(resp.StatusCode)
		apiErrorsTotal.WithLabelValues(string(errClass)).Inc()

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := resp.Status
		if len(bytes.TrimSpace(snippet)) > 0 {
			message = fmt.Sprintf("%s: %s", resp.Status, bytes.TrimSpace(snippet))
		}

		c.logger.Warn().
			Str("action", name).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Action failed")

		return nil, &APIError{
			Action:     name,
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    message,
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, c.decodeError(name, resp.StatusCode, "decode envelope", err)
	}

	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return nil, c.decodeError(name, resp.StatusCode, "empty envelope", ErrMissingResult)
	}

	c.logger.Debug().
		Str("action", name).
		Dur("duration", time.Since(startTime)).
		Msg("Action succeeded")

	return env.Result, nil
}

func (c *Client) decodeError(action string, status int, message string, err error) error {
	apiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
	c.logger.Warn().Err(err).Str("action", action).Msg("Malformed response")
	return &APIError{
		Action:     action,
		StatusCode: status,
		ErrorClass: ErrorClassDecode,
		Message:    message,
		Err:        err,
	}
}

// call performs an action and decodes its result into T.
func call[T any](ctx context.Context, c *Client, action string, params any) (T, error) {
	var out T

	raw, err := c.Action(ctx, action, params)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, c.decodeError(action, http.StatusOK, "decode result", err)
	}

	return out, nil
}

// GetIDs returns up to limit product ids starting at offset.
func (c *Client) GetIDs(ctx context.Context, offset, limit int) ([]string, error) {
	return call[[]string](ctx, c, ActionGetIDs, map[string]int{
		"offset": offset,
		"limit":  limit,
	})
}

// GetItems returns the items for ids. The result may contain duplicates.
func (c *Client) GetItems(ctx context.Context, ids []string) ([]Item, error) {
	if ids == nil {
		ids = []string{}
	}
	return call[[]Item](ctx, c, ActionGetItems, map[string][]string{
		"ids": ids,
	})
}

// GetFields returns the values of a string field across all items.
// Null values are kept as nil entries.
func (c *Client) GetFields(ctx context.Context, field string) ([]*string, error) {
	return call[[]*string](ctx, c, ActionGetFields, map[string]string{
		"field": field,
	})
}

// Filter returns the ids of items whose brand equals brand.
func (c *Client) Filter(ctx context.Context, brand string) ([]string, error) {
	return call[[]string](ctx, c, ActionFilter, map[string]string{
		"brand": brand,
	})
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetClock overrides the clock used to derive credentials (for testing).
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}
