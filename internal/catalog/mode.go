package catalog

import "fmt"

// ViewMode selects which pipeline feeds the item list: Paged or Filtered.
type ViewMode interface {
	fmt.Stringer
	isViewMode()
}

// Paged lists items by offset, one page at a time.
type Paged struct {
	Page int
}

// Filtered lists every item of one brand.
type Filtered struct {
	Brand string
}

func (Paged) isViewMode()    {}
func (Filtered) isViewMode() {}

func (m Paged) String() string    { return fmt.Sprintf("paged(%d)", m.Page) }
func (m Filtered) String() string { return fmt.Sprintf("filtered(%q)", m.Brand) }
