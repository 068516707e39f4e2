package tui

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/catalog-browser/internal/catalog"
	"github.com/charmbracelet/bubbles/table"
)

const allBrands = "All brands"

func columns(width int) []table.Column {
	product := max(width-60, 20)
	return []table.Column{
		{Title: "ID", Width: 38},
		{Title: "Brand", Width: 14},
		{Title: "Product", Width: product},
		{Title: "Price", Width: 10},
	}
}

func rows(items []catalog.Item) []table.Row {
	out := make([]table.Row, 0, len(items))
	for _, item := range items {
		brand := item.Brand
		if brand == "" {
			brand = "-"
		}
		out = append(out, table.Row{
			item.ID,
			brand,
			item.Product,
			item.Price.StringFixed(2),
		})
	}
	return out
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	v := m.session.View()

	var b strings.Builder
	b.WriteString(m.header(v))
	b.WriteString("\n\n")

	switch {
	case m.focus == FocusBrands:
		b.WriteString(m.brandSelector(v))
	case v.Loading:
		b.WriteString(m.spinner.View() + " Loading...")
	case v.Err != nil:
		b.WriteString(errorView(v))
	default:
		b.WriteString(m.table.View())
		b.WriteString("\n")
		b.WriteString(styleMuted.Render(fmt.Sprintf("%d items", len(v.Items))))
	}

	b.WriteString("\n\n")
	if m.focus == FocusJump {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m *Model) header(v catalog.View) string {
	var parts []string
	parts = append(parts, styleTitle.Render("Catalog"))

	switch mode := v.Mode.(type) {
	case catalog.Paged:
		nav := fmt.Sprintf("page %d", mode.Page)
		if v.HasPrev {
			nav = "‹ " + nav
		}
		if v.HasNext {
			nav += " ›"
		}
		parts = append(parts, nav)
	case catalog.Filtered:
		parts = append(parts, fmt.Sprintf("brand %s", styleSelected.Render(mode.Brand)))
	}

	if v.ReloadPending {
		parts = append(parts, styleMuted.Render(fmt.Sprintf("reloading (attempt %d)", v.ReloadAttempts)))
	}

	return strings.Join(parts, styleMuted.Render("  ·  "))
}

func errorView(v catalog.View) string {
	lines := []string{
		styleError.Render("Error: " + v.Err.Error()),
	}

	switch {
	case v.ReloadBlocked:
		lines = append(lines, styleMuted.Render("Automatic reload paused, the API is failing for many users."))
	case v.ReloadExhausted:
		lines = append(lines, styleMuted.Render("Automatic reload gave up."))
	}
	lines = append(lines, "Press r to reload.")

	return strings.Join(lines, "\n")
}

func (m *Model) brandSelector(v catalog.View) string {
	options := m.brandOptions()
	lines := make([]string, 0, len(options))
	for i, brand := range options {
		label := brand
		if brand == "" {
			label = allBrands
		}

		cursor := "  "
		if i == m.brandCursor {
			cursor = "> "
			label = styleSelected.Render(label)
		}
		if brand == v.Brand {
			label += styleMuted.Render(" (current)")
		}
		lines = append(lines, cursor+label)
	}

	return styleOverlay.Render(strings.Join(lines, "\n"))
}
