package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-browser/internal/testutil"
	"github.com/Sternrassler/catalog-browser/pkg/api"
	"github.com/Sternrassler/catalog-browser/pkg/batch"
	"github.com/Sternrassler/catalog-browser/pkg/retry"
	"github.com/rs/zerolog"
)

var errUnavailable = errors.New("service unavailable")

// fakeSource is an in-memory Source with per-action failure injection.
type fakeSource struct {
	mu       sync.Mutex
	products []Item
	brands   []*string
	// extra is appended to every get_items answer.
	extra  []Item
	fail   map[string]int // remaining failures per action, -1 = always
	calls  map[string]int
	params map[string][]any
}

func newFakeSource(n int, brands ...string) *fakeSource {
	f := &fakeSource{
		fail:   make(map[string]int),
		calls:  make(map[string]int),
		params: make(map[string][]any),
	}
	for i := 0; i < n; i++ {
		item := Item{ID: fmt.Sprintf("id-%03d", i), Product: fmt.Sprintf("Product %d", i)}
		if len(brands) > 0 {
			item.Brand = brands[i%len(brands)]
			b := item.Brand
			f.brands = append(f.brands, &b)
		}
		f.products = append(f.products, item)
	}
	return f
}

func (f *fakeSource) failing(action string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[action] = times
}

func (f *fakeSource) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

func (f *fakeSource) lastParam(action string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.params[action]
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

func (f *fakeSource) enter(action string, param any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[action]++
	f.params[action] = append(f.params[action], param)
	switch n := f.fail[action]; {
	case n < 0:
		return errUnavailable
	case n > 0:
		f.fail[action] = n - 1
		return errUnavailable
	}
	return nil
}

func (f *fakeSource) GetIDs(_ context.Context, offset, limit int) ([]string, error) {
	if err := f.enter(api.ActionGetIDs, [2]int{offset, limit}); err != nil {
		return nil, err
	}
	out := []string{}
	for i := offset; i < len(f.products) && i < offset+limit; i++ {
		out = append(out, f.products[i].ID)
	}
	return out, nil
}

func (f *fakeSource) GetItems(_ context.Context, ids []string) ([]Item, error) {
	if err := f.enter(api.ActionGetItems, len(ids)); err != nil {
		return nil, err
	}
	out := []Item{}
	for _, id := range ids {
		for _, p := range f.products {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return append(out, f.extra...), nil
}

func (f *fakeSource) GetFields(_ context.Context, field string) ([]*string, error) {
	if err := f.enter(api.ActionGetFields, field); err != nil {
		return nil, err
	}
	return f.brands, nil
}

func (f *fakeSource) Filter(_ context.Context, brand string) ([]string, error) {
	if err := f.enter(api.ActionFilter, brand); err != nil {
		return nil, err
	}
	out := []string{}
	for _, p := range f.products {
		if p.Brand == brand {
			out = append(out, p.ID)
		}
	}
	return out, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
	cfg.Budget = retry.NewMemoryBudget(time.Minute, zerolog.Nop())
	return cfg
}

// settle runs effects concurrently and applies their messages until the
// session stops producing new work.
func settle(t *testing.T, s *Session, effects []Effect) {
	t.Helper()

	msgs := make(chan Msg)
	pending := 0
	run := func(effects []Effect) {
		for _, effect := range effects {
			pending++
			go func(e Effect) { msgs <- e() }(effect)
		}
	}
	run(effects)

	timeout := time.After(5 * time.Second)
	for pending > 0 {
		select {
		case msg := <-msgs:
			pending--
			run(s.Apply(msg))
		case <-timeout:
			t.Fatalf("session did not settle, %d effects pending", pending)
		}
	}
}

// step runs the effects one after another in order, returning the follow-ups.
func step(s *Session, effects []Effect) []Effect {
	var next []Effect
	for _, effect := range effects {
		next = append(next, s.Apply(effect())...)
	}
	return next
}

func TestSession_FirstPageWithNext(t *testing.T) {
	src := newFakeSource(120)
	s := NewSession(context.Background(), src, testConfig())

	settle(t, s, s.Start())

	v := s.View()
	if v.Loading || v.Err != nil {
		t.Fatalf("view = loading %v err %v, want settled", v.Loading, v.Err)
	}
	if !v.HasNext || v.HasPrev {
		t.Errorf("HasNext = %v HasPrev = %v, want true false", v.HasNext, v.HasPrev)
	}
	if len(v.Items) != 50 {
		t.Errorf("items = %d, want 50", len(v.Items))
	}
	if got := src.lastParam(api.ActionGetIDs); got != [2]int{0, 51} {
		t.Errorf("get_ids params = %v, want offset 0 limit 51", got)
	}
	if got := src.lastParam(api.ActionGetItems); got != 50 {
		t.Errorf("get_items ids = %v, want 50", got)
	}
	if !v.CanNext || v.CanPrev || !v.CanJump {
		t.Errorf("CanNext %v CanPrev %v CanJump %v, want true false true", v.CanNext, v.CanPrev, v.CanJump)
	}
}

func TestSession_ShortPage(t *testing.T) {
	src := newFakeSource(30)
	s := NewSession(context.Background(), src, testConfig())

	settle(t, s, s.Start())

	v := s.View()
	if v.HasNext {
		t.Error("HasNext should be false with 30 ids")
	}
	if len(v.Items) != 30 {
		t.Errorf("items = %d, want 30", len(v.Items))
	}
	if effects := s.NextPage(); effects != nil {
		t.Error("NextPage() should do nothing without a next page")
	}
}

func TestSession_PagedItemsCappedAndDeduped(t *testing.T) {
	src := newFakeSource(120)
	src.extra = []Item{{ID: "id-000"}, {ID: "extra"}}
	s := NewSession(context.Background(), src, testConfig())

	settle(t, s, s.Start())

	v := s.View()
	if len(v.Items) != 50 {
		t.Fatalf("items = %d, want 50", len(v.Items))
	}
	for _, item := range v.Items {
		if item.ID == "extra" {
			t.Error("items beyond the page size should be dropped")
		}
	}
}

func TestSession_DuplicatesRemovedInPage(t *testing.T) {
	src := newFakeSource(10)
	src.extra = []Item{{ID: "id-003"}, {ID: "id-004"}}
	s := NewSession(context.Background(), src, testConfig())

	settle(t, s, s.Start())

	if got := len(s.View().Items); got != 10 {
		t.Errorf("items = %d, want 10 after dedup", got)
	}
}

func TestSession_Navigation(t *testing.T) {
	src := newFakeSource(120)
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())

	settle(t, s, s.NextPage())
	v := s.View()
	if v.Page != 1 || !v.HasPrev {
		t.Fatalf("page = %d HasPrev = %v, want 1 true", v.Page, v.HasPrev)
	}
	if got := src.lastParam(api.ActionGetIDs); got != [2]int{50, 51} {
		t.Errorf("get_ids params = %v, want offset 50 limit 51", got)
	}
	if v.Items[0].ID != "id-050" {
		t.Errorf("first item = %s, want id-050", v.Items[0].ID)
	}

	settle(t, s, s.NextPage())
	v = s.View()
	if v.Page != 2 || v.HasNext || len(v.Items) != 20 {
		t.Errorf("page %d HasNext %v items %d, want 2 false 20", v.Page, v.HasNext, len(v.Items))
	}

	settle(t, s, s.PrevPage())
	if got := s.View().Page; got != 1 {
		t.Errorf("page = %d, want 1", got)
	}
}

func TestSession_NavigationDisabledWhileLoading(t *testing.T) {
	src := newFakeSource(120)
	s := NewSession(context.Background(), src, testConfig())

	effects := s.Start()
	if !s.View().Loading {
		t.Fatal("session should be loading after Start")
	}
	if s.NextPage() != nil || s.JumpPage("2") != nil {
		t.Error("navigation should be disabled while loading")
	}
	settle(t, s, effects)
}

func TestSession_JumpPage(t *testing.T) {
	src := newFakeSource(300)
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())

	settle(t, s, s.JumpPage("3"))
	if got := s.View().Page; got != 3 {
		t.Fatalf("page = %d, want 3", got)
	}
	if got := src.lastParam(api.ActionGetIDs); got != [2]int{150, 51} {
		t.Errorf("get_ids params = %v, want offset 150 limit 51", got)
	}

	settle(t, s, s.JumpPage("abc"))
	if got := s.View().Page; got != 0 {
		t.Errorf("page after non-numeric jump = %d, want 0", got)
	}
}

func TestSession_JumpPageCapped(t *testing.T) {
	src := newFakeSource(120)
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())

	settle(t, s, s.JumpPage("999999999999999999"))

	want := (math.MaxInt - 51) / 50
	v := s.View()
	if v.Page != want {
		t.Fatalf("page = %d, want capped at %d", v.Page, want)
	}
	if got := src.lastParam(api.ActionGetIDs); got != [2]int{want * 50, 51} {
		t.Errorf("get_ids params = %v, want offset %d limit 51", got, want*50)
	}
	if v.Err != nil || len(v.Items) != 0 || v.HasNext {
		t.Errorf("err = %v items = %d next = %v, want an empty last page", v.Err, len(v.Items), v.HasNext)
	}
}

func TestSession_BrandFilter(t *testing.T) {
	src := newFakeSource(120, "Zeta", "Acme", "Nova")
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())
	settle(t, s, s.NextPage())

	if got := s.View().Brands; len(got) != 3 || got[0] != "Zeta" {
		t.Fatalf("brands = %v, want [Zeta Acme Nova]", got)
	}

	settle(t, s, s.SelectBrand("Acme"))

	v := s.View()
	if v.Mode != (Filtered{Brand: "Acme"}) {
		t.Fatalf("mode = %v, want filtered(Acme)", v.Mode)
	}
	if v.Page != 0 {
		t.Errorf("page = %d, want 0 once filtered results arrived", v.Page)
	}
	if len(v.Items) != 40 {
		t.Errorf("items = %d, want 40", len(v.Items))
	}
	for _, item := range v.Items {
		if item.Brand != "Acme" {
			t.Fatalf("item %s has brand %q", item.ID, item.Brand)
		}
	}
	if v.CanNext || v.CanPrev || v.CanJump {
		t.Error("paging controls should be disabled in filtered mode")
	}
	if got := src.lastParam(api.ActionFilter); got != "Acme" {
		t.Errorf("filter param = %v, want Acme", got)
	}
}

func TestSession_BrandFilterDeduped(t *testing.T) {
	src := newFakeSource(20, "Acme", "Nova", "Zeta", "Mira")
	src.extra = []Item{{ID: "id-000", Brand: "Acme"}}
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())

	settle(t, s, s.SelectBrand("Acme"))

	v := s.View()
	if len(v.Items) != 5 {
		t.Errorf("items = %d, want 5 after dedup", len(v.Items))
	}
	if v.Page != 0 {
		t.Errorf("page = %d, want 0", v.Page)
	}
}

func TestSession_FilteredItemsChunked(t *testing.T) {
	src := newFakeSource(250)
	for i := range src.products {
		src.products[i].Brand = "Acme"
	}
	b := "Acme"
	src.brands = []*string{&b}

	cfg := testConfig()
	cfg.Batch = batch.Config{ChunkSize: 100, MaxConcurrency: 2}
	s := NewSession(context.Background(), src, cfg)
	settle(t, s, s.Start())
	before := src.count(api.ActionGetItems)

	settle(t, s, s.SelectBrand("Acme"))

	v := s.View()
	if len(v.Items) != 250 {
		t.Fatalf("items = %d, want 250", len(v.Items))
	}
	if v.Items[0].ID != "id-000" || v.Items[249].ID != "id-249" {
		t.Error("chunked items should keep id order")
	}
	if got := src.count(api.ActionGetItems) - before; got != 3 {
		t.Errorf("get_items calls = %d, want 3 chunks", got)
	}
}

func TestSession_EmptyFilterSkipsItems(t *testing.T) {
	src := newFakeSource(10, "Acme")
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())
	before := src.count(api.ActionGetItems)

	settle(t, s, s.SelectBrand("Unknown"))

	v := s.View()
	if len(v.Items) != 0 || v.Err != nil {
		t.Errorf("items = %d err = %v, want empty list", len(v.Items), v.Err)
	}
	if src.count(api.ActionGetItems) != before {
		t.Error("get_items should not be called for an empty filter result")
	}
}

func TestSession_AllBrandsClearsFilter(t *testing.T) {
	src := newFakeSource(120, "Acme", "Nova")
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())
	settle(t, s, s.SelectBrand("Acme"))

	settle(t, s, s.SelectBrand(""))

	v := s.View()
	if v.Mode != (Paged{Page: 0}) {
		t.Fatalf("mode = %v, want paged(0)", v.Mode)
	}
	if len(v.Items) != 50 || v.Items[0].ID != "id-000" {
		t.Errorf("items = %d, want first page", len(v.Items))
	}
	if !v.CanNext {
		t.Error("paging should be enabled again")
	}
}

func TestSession_BrandWaitsForBrandList(t *testing.T) {
	src := newFakeSource(10, "Acme")
	s := NewSession(context.Background(), src, testConfig())

	effects := s.Start()
	s.SelectBrand("Acme")
	if src.count(api.ActionFilter) != 0 {
		t.Fatal("filter should not run before effects")
	}

	settle(t, s, effects)

	if got := src.count(api.ActionFilter); got != 1 {
		t.Errorf("filter calls = %d, want 1 once brands loaded", got)
	}
	if got := len(s.View().Items); got != 10 {
		t.Errorf("items = %d, want 10", got)
	}
}

func TestSession_StaleFilterResultDropped(t *testing.T) {
	src := newFakeSource(20, "Acme", "Nova")
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())

	first := s.SelectBrand("Acme")
	second := s.SelectBrand("Nova")
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("effects = %d, %d, want one filter call each", len(first), len(second))
	}

	follow := step(s, second)
	if stale := s.Apply(first[0]()); stale != nil {
		t.Error("superseded completion should produce no follow-up work")
	}
	settle(t, s, follow)

	for _, item := range s.View().Items {
		if item.Brand != "Nova" {
			t.Fatalf("item %s has brand %q, want Nova only", item.ID, item.Brand)
		}
	}
}

func TestSession_ErrorSchedulesOneReload(t *testing.T) {
	src := newFakeSource(120)
	src.failing(api.ActionGetIDs, -1)
	s := NewSession(context.Background(), src, testConfig())

	reload := step(s, s.Start())

	v := s.View()
	if v.Loading {
		t.Error("view should not be loading after the failure")
	}
	if !errors.Is(v.Err, errUnavailable) {
		t.Errorf("Err = %v, want %v", v.Err, errUnavailable)
	}
	if len(reload) != 1 || !v.ReloadPending {
		t.Fatalf("scheduled reloads = %d pending = %v, want exactly one", len(reload), v.ReloadPending)
	}

	due := reload[0]()
	if d, ok := due.(ReloadDue); !ok || !d.Allowed || d.Attempt != 1 {
		t.Fatalf("reload message = %+v, want allowed attempt 1", due)
	}

	refetch := s.Apply(due)
	if len(refetch) != 1 {
		t.Fatalf("reload effects = %d, want the id list only", len(refetch))
	}
	if !s.View().Loading {
		t.Error("view should be loading during the reload")
	}

	// the failing reload schedules the next attempt, not a second one in parallel
	if next := step(s, refetch); len(next) != 1 {
		t.Errorf("follow-up reloads = %d, want 1", len(next))
	}
}

func TestSession_ReloadRecovers(t *testing.T) {
	src := newFakeSource(120)
	src.failing(api.ActionGetIDs, 1)
	s := NewSession(context.Background(), src, testConfig())

	settle(t, s, s.Start())

	v := s.View()
	if v.Err != nil || len(v.Items) != 50 {
		t.Errorf("err = %v items = %d, want recovered first page", v.Err, len(v.Items))
	}
	if got := src.count(api.ActionGetIDs); got != 2 {
		t.Errorf("get_ids calls = %d, want 2", got)
	}
	if v.ReloadAttempts != 0 {
		t.Errorf("ReloadAttempts = %d, want reset after success", v.ReloadAttempts)
	}
}

func TestSession_AutomaticReloadsBounded(t *testing.T) {
	src := newFakeSource(120)
	src.failing(api.ActionGetIDs, -1)
	s := NewSession(context.Background(), src, testConfig())

	settle(t, s, s.Start())

	if got := src.count(api.ActionGetIDs); got != 4 {
		t.Errorf("get_ids calls = %d, want initial call + 3 reloads", got)
	}
	v := s.View()
	if !v.ReloadExhausted || v.ReloadPending {
		t.Errorf("exhausted = %v pending = %v, want true false", v.ReloadExhausted, v.ReloadPending)
	}

	settle(t, s, s.Reload())

	if got := src.count(api.ActionGetIDs); got != 8 {
		t.Errorf("get_ids calls after manual reload = %d, want 8", got)
	}
}

func TestSession_FilterErrorReloadsFilter(t *testing.T) {
	src := newFakeSource(120, "Acme", "Nova")
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())

	src.failing(api.ActionFilter, 1)
	settle(t, s, s.SelectBrand("Acme"))

	v := s.View()
	if v.Err != nil || len(v.Items) != 60 {
		t.Fatalf("err = %v items = %d, want the recovered Acme items", v.Err, len(v.Items))
	}
	if v.Mode != (Filtered{Brand: "Acme"}) {
		t.Errorf("mode = %v, want filtered(Acme)", v.Mode)
	}
	if got := src.count(api.ActionFilter); got != 2 {
		t.Errorf("filter calls = %d, want failed call + automatic reload", got)
	}
	if got := src.count(api.ActionGetIDs); got != 2 {
		t.Errorf("get_ids calls = %d, want the id list reloaded too", got)
	}
}

func TestSession_PageItemsErrorReloadsIds(t *testing.T) {
	src := newFakeSource(120)
	src.failing(api.ActionGetItems, 1)
	s := NewSession(context.Background(), src, testConfig())

	settle(t, s, s.Start())

	v := s.View()
	if v.Err != nil || len(v.Items) != 50 {
		t.Fatalf("err = %v items = %d, want recovered first page", v.Err, len(v.Items))
	}
	if got := src.count(api.ActionGetIDs); got != 2 {
		t.Errorf("get_ids calls = %d, want 2", got)
	}
	if got := src.count(api.ActionGetItems); got != 2 {
		t.Errorf("get_items calls = %d, want 2", got)
	}
	if v.ReloadAttempts != 0 {
		t.Errorf("ReloadAttempts = %d, want reset after success", v.ReloadAttempts)
	}
}

func TestSession_BrandItemsErrorReloadsFilter(t *testing.T) {
	src := newFakeSource(120, "Acme", "Nova")
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())
	before := src.count(api.ActionGetItems)

	src.failing(api.ActionGetItems, 1)
	settle(t, s, s.SelectBrand("Acme"))

	v := s.View()
	if v.Err != nil || len(v.Items) != 60 {
		t.Fatalf("err = %v items = %d, want the recovered Acme items", v.Err, len(v.Items))
	}
	if got := src.count(api.ActionFilter); got != 2 {
		t.Errorf("filter calls = %d, want the filter refetched", got)
	}
	// failed brand items, page items after the id reload, brand items after
	// the filter reload; the failed brand items are not retried on their own
	if got := src.count(api.ActionGetItems) - before; got != 3 {
		t.Errorf("get_items calls = %d, want 3", got)
	}
}

func TestSession_AllBrandsAfterFilterError(t *testing.T) {
	src := newFakeSource(120, "Acme", "Nova")
	s := NewSession(context.Background(), src, testConfig())
	settle(t, s, s.Start())

	src.failing(api.ActionFilter, -1)
	settle(t, s, s.SelectBrand("Acme"))
	if v := s.View(); v.Err == nil || !v.ReloadExhausted {
		t.Fatalf("err = %v exhausted = %v, want a failed filter", v.Err, v.ReloadExhausted)
	}

	src.failing(api.ActionFilter, 0)
	settle(t, s, s.SelectBrand(""))

	v := s.View()
	if v.Mode != (Paged{Page: 0}) {
		t.Errorf("mode = %v, want paged(0)", v.Mode)
	}
	if v.Err != nil || len(v.Items) != 50 {
		t.Errorf("after all brands err = %v items = %d, want the first page", v.Err, len(v.Items))
	}

	settle(t, s, s.Reload())

	if v := s.View(); v.Err != nil || len(v.Items) != 50 {
		t.Errorf("after reload err = %v items = %d, want the first page", v.Err, len(v.Items))
	}
}

func TestSession_ManualReloadRetriesBrandList(t *testing.T) {
	src := newFakeSource(10, "Acme")
	src.failing(api.ActionGetFields, 1)
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 0
	s := NewSession(context.Background(), src, cfg)

	settle(t, s, s.Start())
	if s.View().Err == nil {
		t.Fatal("brand list failure should be shown")
	}

	settle(t, s, s.Reload())

	v := s.View()
	if v.Err != nil || len(v.Brands) != 1 {
		t.Errorf("err = %v brands = %v, want recovered brand list", v.Err, v.Brands)
	}
}

func TestSession_BudgetBlocksReload(t *testing.T) {
	src := newFakeSource(120)
	src.failing(api.ActionGetIDs, -1)
	cfg := testConfig()
	budget := retry.NewMemoryBudget(time.Minute, zerolog.Nop())
	for i := 0; i < retry.FailureThresholdCritical; i++ {
		budget.RecordFailure(context.Background())
	}
	cfg.Budget = budget
	s := NewSession(context.Background(), src, cfg)

	settle(t, s, s.Start())

	if got := src.count(api.ActionGetIDs); got != 1 {
		t.Errorf("get_ids calls = %d, want no automatic reload", got)
	}
	if !s.View().ReloadBlocked {
		t.Error("ReloadBlocked should be set")
	}
}

func TestSession_ShutdownCancelsReload(t *testing.T) {
	src := newFakeSource(10)
	src.failing(api.ActionGetIDs, -1)
	cfg := testConfig()
	cfg.Retry.InitialBackoff = time.Hour
	cfg.Retry.MaxBackoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(ctx, src, cfg)

	reload := step(s, s.Start())
	if len(reload) != 1 {
		t.Fatalf("scheduled reloads = %d, want 1", len(reload))
	}

	cancel()
	due := reload[0]()
	if d, ok := due.(ReloadDue); !ok || !d.Cancelled {
		t.Fatalf("reload message = %+v, want cancelled", due)
	}
	if s.Apply(due) != nil {
		t.Error("cancelled reload should not refetch")
	}
}

func TestSession_WithAPIClient(t *testing.T) {
	products := testutil.Products(60, "Acme", "Nova")
	products = append(products, testutil.Product{ID: "id-no-brand", Product: "Loose", Price: 10})
	mock := testutil.NewMockCatalog(products)
	defer mock.Close()

	client, err := api.New(api.DefaultConfig(mock.URL(), api.StaticToken("secret")))
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}

	s := NewSession(context.Background(), client, testConfig())
	settle(t, s, s.Start())

	v := s.View()
	if v.Err != nil {
		t.Fatalf("Err = %v", v.Err)
	}
	if len(v.Items) != 50 || !v.HasNext {
		t.Errorf("items = %d HasNext = %v, want 50 true", len(v.Items), v.HasNext)
	}
	if len(v.Brands) != 2 {
		t.Errorf("brands = %v, want [Acme Nova]", v.Brands)
	}
	if mock.GetLastAuth() != "secret" {
		t.Errorf("X-Auth = %q, want secret", mock.GetLastAuth())
	}

	settle(t, s, s.SelectBrand("Nova"))
	if got := len(s.View().Items); got != 30 {
		t.Errorf("Nova items = %d, want 30", got)
	}
}
