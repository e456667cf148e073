// Package view renders console state as Telegram HTML text.
package view

import (
	"fmt"

	"autobot-console/internal/model"
)

// pageWindow is how many page numbers are shown on each side of the current one.
const pageWindow = 2

// PageLink is one entry of a pager. Gap entries render as "..." and carry no page.
type PageLink struct {
	Page    int
	Current bool
	Gap     bool
}

// Pager is the navigation model for one paged list.
type Pager struct {
	Page       int
	TotalPages int
	HasPrev    bool
	HasNext    bool
	Links      []PageLink
}

// Visible reports whether the list needs navigation at all.
func (p Pager) Visible() bool {
	return p.TotalPages > 1
}

// NewPager builds the current page ±2 window, with the first and last page
// always reachable and gaps where pages are skipped.
func NewPager(pg model.Page) Pager {
	total := pg.TotalPages()
	current := pg.Page
	if current < 1 {
		current = 1
	}
	p := Pager{
		Page:       current,
		TotalPages: total,
		HasPrev:    current > 1,
		HasNext:    current < total,
	}
	if total <= 1 {
		return p
	}

	start := max(1, current-pageWindow)
	end := min(total, current+pageWindow)

	if start > 1 {
		p.Links = append(p.Links, PageLink{Page: 1})
		if start > 2 {
			p.Links = append(p.Links, PageLink{Gap: true})
		}
	}
	for i := start; i <= end; i++ {
		p.Links = append(p.Links, PageLink{Page: i, Current: i == current})
	}
	if end < total {
		if end < total-1 {
			p.Links = append(p.Links, PageLink{Gap: true})
		}
		p.Links = append(p.Links, PageLink{Page: total})
	}
	return p
}

// Label is the button text of a link.
func (l PageLink) Label() string {
	switch {
	case l.Gap:
		return "..."
	case l.Current:
		return fmt.Sprintf("· %d ·", l.Page)
	default:
		return fmt.Sprintf("%d", l.Page)
	}
}

// Summary is the "第 N 页，共 M 页" footer line.
func (p Pager) Summary() string {
	return fmt.Sprintf("第 %d 页，共 %d 页", p.Page, p.TotalPages)
}
