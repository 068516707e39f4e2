package catalog

import (
	"strconv"
	"strings"

	"github.com/Sternrassler/catalog-browser/pkg/api"
)

// Item is a product record.
type Item = api.Item

// Dedupe keeps the first occurrence of every id, preserving order.
func Dedupe(items []Item) []Item {
	if items == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Truncate returns at most n leading items.
func Truncate(items []Item, n int) []Item {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// NormalizeBrands drops null and empty brands and duplicates, preserving order.
func NormalizeBrands(brands []*string) []string {
	seen := make(map[string]struct{}, len(brands))
	out := make([]string, 0, len(brands))
	for _, b := range brands {
		if b == nil || *b == "" {
			continue
		}
		if _, dup := seen[*b]; dup {
			continue
		}
		seen[*b] = struct{}{}
		out = append(out, *b)
	}
	return out
}

// ParsePage converts page-jump input to a page index. Input that is not a
// whole number, or is negative, yields 0.
func ParsePage(input string) int {
	page, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || page < 0 {
		return 0
	}
	return page
}
