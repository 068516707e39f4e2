package catalog

// View is what the UI renders for the current session state.
type View struct {
	Mode   ViewMode
	Page   int
	Brand  string
	Brands []string
	Items  []Item

	// Loading is true while any fetch is outstanding.
	Loading bool
	// Err is the first binding error, shown in place of the items.
	Err error

	HasPrev bool
	HasNext bool

	CanPrev bool
	CanNext bool
	CanJump bool

	ReloadPending   bool
	ReloadAttempts  int
	ReloadExhausted bool
	ReloadBlocked   bool
}

// View derives the displayed state. It has no side effects.
func (s *Session) View() View {
	loading := s.Loading()
	_, paged := s.Mode().(Paged)

	ids, _ := s.ids.Value()
	hasPrev := s.page > 0
	hasNext := len(ids) > s.config.PageSize

	return View{
		Mode:            s.Mode(),
		Page:            s.page,
		Brand:           s.brand,
		Brands:          s.brandList,
		Items:           s.resolved,
		Loading:         loading,
		Err:             s.Err(),
		HasPrev:         hasPrev,
		HasNext:         hasNext,
		CanPrev:         paged && !loading && hasPrev,
		CanNext:         paged && !loading && hasNext,
		CanJump:         paged && !loading,
		ReloadPending:   s.reloading,
		ReloadAttempts:  s.backoff.Attempts(),
		ReloadExhausted: s.backoff.Exhausted(),
		ReloadBlocked:   s.reloadBlock,
	}
}
