// Package catalog implements the product browser session: five fetch
// bindings driven by the page and brand state, an explicit reducer for
// completed fetches and the derivation of what is displayed.
//
// A Session is owned by a single goroutine (the UI event loop). Every
// operation returns Effects; the owner runs them wherever it likes and
// feeds the resulting Msg back through Apply.
package catalog

import (
	"context"
	"math"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/batch"
	"github.com/Sternrassler/catalog-browser/pkg/binding"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/Sternrassler/catalog-browser/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	staleCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_stale_completions_total",
			Help: "Superseded responses dropped by the session",
		},
		[]string{"binding"},
	)

	fetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fetch_errors_total",
			Help: "Failed fetches by binding",
		},
		[]string{"binding"},
	)
)

// Binding names.
const (
	BindingIDs        = "ids"
	BindingItems      = "items"
	BindingBrands     = "brands"
	BindingBrandIDs   = "brand_ids"
	BindingBrandItems = "brand_items"
)

// BrandField is the item field listed by the brand selector.
const BrandField = "brand"

// Source is the remote catalog. *api.Client satisfies it.
type Source interface {
	GetIDs(ctx context.Context, offset, limit int) ([]string, error)
	GetItems(ctx context.Context, ids []string) ([]Item, error)
	GetFields(ctx context.Context, field string) ([]*string, error)
	Filter(ctx context.Context, brand string) ([]string, error)
}

// Config holds session configuration.
type Config struct {
	// PageSize is the number of items per page.
	PageSize int
	// Batch controls chunked get_items calls.
	Batch batch.Config
	// Retry bounds automatic reloads after failures.
	Retry retry.Policy
	// Budget gates automatic reloads; nil uses a process-local budget.
	Budget retry.Budget
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: 50,
		Batch:    batch.DefaultConfig(),
		Retry:    retry.DefaultPolicy(),
	}
}

// Msg is the result of an Effect, to be passed to Session.Apply.
type Msg interface {
	isMsg()
}

// FetchDone carries the completion of one binding call.
type FetchDone struct {
	binding.Completion
}

// ReloadDue fires when a scheduled automatic reload is due.
type ReloadDue struct {
	Attempt int
	// Allowed is false when the retry budget blocked the reload.
	Allowed bool
	// Cancelled is true when the session shut down while waiting.
	Cancelled bool
}

func (FetchDone) isMsg() {}
func (ReloadDue) isMsg() {}

// Effect is asynchronous work started by the session. Running it blocks
// until its Msg is ready; it is safe to run from any goroutine.
type Effect func() Msg

// Session is the state of one browsing session.
type Session struct {
	ctx    context.Context
	source Source
	items  *batch.Fetcher[Item]
	config Config
	logger zerolog.Logger

	page  int
	brand string

	ids        *binding.Binding[[]string]
	pageItems  *binding.Binding[[]Item]
	brands     *binding.Binding[[]*string]
	brandIDs   *binding.Binding[[]string]
	brandItems *binding.Binding[[]Item]

	resolved    []Item
	brandList   []string
	backoff     *retry.Backoff
	budget      retry.Budget
	reloading   bool
	reloadBlock bool
}

// NewSession creates a session reading from source. Nothing is fetched
// until Start is called. ctx bounds every call made by the session.
func NewSession(ctx context.Context, source Source, cfg Config) *Session {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}

	logger := logging.NewLogger("session")

	budget := cfg.Budget
	if budget == nil {
		budget = retry.NewMemoryBudget(retry.DefaultWindow, logger)
	}

	return &Session{
		ctx:        ctx,
		source:     source,
		items:      batch.NewFetcher[Item](source.GetItems, cfg.Batch),
		config:     cfg,
		logger:     logger,
		ids:        binding.New[[]string](BindingIDs),
		pageItems:  binding.New[[]Item](BindingItems),
		brands:     binding.New[[]*string](BindingBrands),
		brandIDs:   binding.New[[]string](BindingBrandIDs),
		brandItems: binding.New[[]Item](BindingBrandItems),
		backoff:    cfg.Retry.NewBackoff(),
		budget:     budget,
	}
}

// Start issues the initial fetches.
func (s *Session) Start() []Effect {
	s.logger.Debug().Int("page_size", s.config.PageSize).Msg("Session started")
	return s.sync()
}

// Mode returns the current view mode.
func (s *Session) Mode() ViewMode {
	if s.brand != "" {
		return Filtered{Brand: s.brand}
	}
	return Paged{Page: s.page}
}

// SelectBrand switches to Filtered(brand), or to Paged(0) for "".
func (s *Session) SelectBrand(brand string) []Effect {
	if brand == s.brand {
		return nil
	}

	s.logger.Debug().Str("brand", brand).Msg("Brand selected")

	if brand == "" {
		s.brand = ""
		s.page = 0
		s.brandIDs.Reset()
		s.brandItems.Reset()
	} else {
		s.brand = brand
	}

	effects := s.sync()
	s.resolve()
	return effects
}

// NextPage moves to the following page when allowed.
func (s *Session) NextPage() []Effect {
	if !s.View().CanNext {
		return nil
	}
	return s.setPage(s.page + 1)
}

// PrevPage moves to the preceding page when allowed.
func (s *Session) PrevPage() []Effect {
	if !s.View().CanPrev {
		return nil
	}
	return s.setPage(s.page - 1)
}

// JumpPage sets the page from user input; see ParsePage.
func (s *Session) JumpPage(input string) []Effect {
	if !s.View().CanJump {
		return nil
	}
	return s.setPage(ParsePage(input))
}

func (s *Session) setPage(page int) []Effect {
	page = max(0, min(page, s.maxPage()))
	s.page = page
	s.logger.Debug().Int("page", page).Msg("Page changed")
	return s.sync()
}

// maxPage is the last page whose id offset and limit fit in an int.
func (s *Session) maxPage() int {
	return (math.MaxInt - s.config.PageSize - 1) / s.config.PageSize
}

// Reload is the user-triggered recovery: it reloads the id list and the
// brand filter, plus the brand list and filtered items when they are in
// error. Page items follow the reloaded id page. It also re-arms
// automatic reloads.
func (s *Session) Reload() []Effect {
	s.logger.Info().Msg("Manual reload")

	s.backoff.Reset()
	s.reloadBlock = false
	return s.reload()
}

func (s *Session) reload() []Effect {
	var effects effectList
	effects.add(s.ids.Reload(s.ctx, s.idsThunk()))
	filterStarted := effects.add(s.brandIDs.Reload(s.ctx, s.brandIDsThunk()))

	if s.brands.Err() != nil {
		effects.add(s.brands.Reload(s.ctx, s.brandsThunk()))
	}
	if s.brandItems.Err() != nil && !filterStarted {
		effects.add(s.brandItems.Reload(s.ctx, s.brandItemsThunk()))
	}

	return effects
}

// Apply runs the reducer for a completed effect and returns follow-up effects.
func (s *Session) Apply(msg Msg) []Effect {
	switch m := msg.(type) {
	case FetchDone:
		return s.onFetchDone(m.Completion)
	case ReloadDue:
		return s.onReloadDue(m)
	default:
		return nil
	}
}

func (s *Session) onFetchDone(c binding.Completion) []Effect {
	if !c.Commit() {
		staleCompletionsTotal.WithLabelValues(c.Binding).Inc()
		s.logger.Debug().
			Str("binding", c.Binding).
			Uint64("seq", c.Seq).
			Msg("Stale completion dropped")
		return nil
	}

	if c.Err != nil {
		s.resolve()
		if c.Cancelled() {
			return nil
		}
		return s.onError(c.Binding, c.Err)
	}

	switch c.Binding {
	case BindingIDs:
		s.onIdsLoaded()
	case BindingBrands:
		s.brandList = NormalizeBrands(s.brandsValue())
	case BindingBrandItems:
		s.onBrandFilterResultLoaded()
	}

	if s.Err() == nil {
		s.backoff.Reset()
		s.reloadBlock = false
	}

	effects := s.sync()
	s.resolve()
	return effects
}

// onIdsLoaded handles a new id page.
func (s *Session) onIdsLoaded() {
	ids, _ := s.ids.Value()
	s.logger.Debug().
		Int("page", s.page).
		Int("ids", len(ids)).
		Bool("has_next", len(ids) > s.config.PageSize).
		Msg("Ids loaded")
}

// onBrandFilterResultLoaded resets the page once filtered items arrive.
func (s *Session) onBrandFilterResultLoaded() {
	if s.brand == "" {
		return
	}
	s.page = 0
}

// onError schedules at most one automatic reload per error occurrence.
func (s *Session) onError(name string, err error) []Effect {
	fetchErrorsTotal.WithLabelValues(name).Inc()
	s.logger.Error().Err(err).Str("binding", name).Msg("Fetch failed")

	if s.reloading {
		return nil
	}

	delay, ok := s.backoff.Next()
	if !ok {
		s.logger.Warn().
			Int("attempts", s.backoff.Attempts()).
			Msg("Automatic reload attempts exhausted")
		return nil
	}

	s.reloading = true
	attempt := s.backoff.Attempts()
	ctx := s.ctx
	budget := s.budget
	logger := s.logger

	s.logger.Info().
		Int("attempt", attempt).
		Dur("backoff", delay).
		Msg("Scheduling automatic reload")

	return []Effect{func() Msg {
		if err := budget.RecordFailure(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to record failure in retry budget")
		}

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ReloadDue{Attempt: attempt, Cancelled: true}
		case <-timer.C:
		}

		allowed, err := budget.Allow(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Retry budget check failed, allowing reload")
			allowed = true
		}
		return ReloadDue{Attempt: attempt, Allowed: allowed}
	}}
}

func (s *Session) onReloadDue(m ReloadDue) []Effect {
	s.reloading = false

	if m.Cancelled {
		return nil
	}
	if !m.Allowed {
		s.reloadBlock = true
		s.logger.Warn().Int("attempt", m.Attempt).Msg("Automatic reload blocked by retry budget")
		return nil
	}

	s.logger.Info().Int("attempt", m.Attempt).Msg("Automatic reload")
	return s.reload()
}

// sync re-watches every binding against the current state.
func (s *Session) sync() []Effect {
	var effects effectList

	effects.add(s.ids.Watch(s.ctx, []any{s.page}, s.idsThunk()))
	effects.add(s.pageItems.Watch(s.ctx, []any{s.ids.Version()}, s.pageItemsThunk()))
	effects.add(s.brands.Watch(s.ctx, nil, s.brandsThunk()))
	effects.add(s.brandIDs.Watch(s.ctx, []any{s.brand, s.brands.Version() > 0}, s.brandIDsThunk()))
	effects.add(s.brandItems.Watch(s.ctx, []any{s.brandIDs.Version()}, s.brandItemsThunk()))

	return effects
}

func (s *Session) idsThunk() binding.Thunk[[]string] {
	return func() binding.Fetch[[]string] {
		offset := s.page * s.config.PageSize
		limit := s.config.PageSize + 1
		return func(ctx context.Context) ([]string, error) {
			return s.source.GetIDs(ctx, offset, limit)
		}
	}
}

func (s *Session) pageItemsThunk() binding.Thunk[[]Item] {
	return func() binding.Fetch[[]Item] {
		ids, ok := s.ids.Value()
		if !ok {
			return nil
		}
		if len(ids) > s.config.PageSize {
			ids = ids[:s.config.PageSize]
		}
		return s.fetchItems(ids)
	}
}

func (s *Session) brandsThunk() binding.Thunk[[]*string] {
	return func() binding.Fetch[[]*string] {
		return func(ctx context.Context) ([]*string, error) {
			return s.source.GetFields(ctx, BrandField)
		}
	}
}

func (s *Session) brandIDsThunk() binding.Thunk[[]string] {
	return func() binding.Fetch[[]string] {
		brand := s.brand
		if brand == "" || s.brands.Version() == 0 {
			return nil
		}
		return func(ctx context.Context) ([]string, error) {
			return s.source.Filter(ctx, brand)
		}
	}
}

func (s *Session) brandItemsThunk() binding.Thunk[[]Item] {
	return func() binding.Fetch[[]Item] {
		ids, ok := s.brandIDs.Value()
		if !ok {
			return nil
		}
		return s.fetchItems(ids)
	}
}

func (s *Session) fetchItems(ids []string) binding.Fetch[[]Item] {
	ids = append([]string(nil), ids...)
	return func(ctx context.Context) ([]Item, error) {
		if len(ids) == 0 {
			return []Item{}, nil
		}
		return s.items.FetchAll(ctx, ids)
	}
}

func (s *Session) brandsValue() []*string {
	v, _ := s.brands.Value()
	return v
}

// resolve recomputes the displayed items for the current mode.
func (s *Session) resolve() {
	if s.brand == "" {
		items, ok := s.pageItems.Value()
		if !ok {
			s.resolved = nil
			return
		}
		s.resolved = Dedupe(Truncate(items, s.config.PageSize))
		return
	}

	items, ok := s.brandItems.Value()
	if !ok {
		s.resolved = nil
		return
	}
	s.resolved = Dedupe(items)
}

// Loading reports whether any fetch is outstanding.
func (s *Session) Loading() bool {
	return s.ids.Loading() ||
		s.pageItems.Loading() ||
		s.brands.Loading() ||
		s.brandIDs.Loading() ||
		s.brandItems.Loading()
}

// Err returns the first error among the bindings, if any.
func (s *Session) Err() error {
	for _, err := range []error{
		s.ids.Err(),
		s.pageItems.Err(),
		s.brands.Err(),
		s.brandIDs.Err(),
		s.brandItems.Err(),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// effectList collects the tasks started by Watch and Reload.
type effectList []Effect

func (l *effectList) add(task binding.Task, ok bool) bool {
	if ok {
		*l = append(*l, taskEffect(task))
	}
	return ok
}

func taskEffect(task binding.Task) Effect {
	return func() Msg {
		return FetchDone{Completion: task.Run()}
	}
}
