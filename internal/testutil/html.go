package testutil

import (
	"fmt"
	"html"
	"strings"
)

// Item describes one result card in a fixture page. Empty fields are
// omitted from the markup.
type Item struct {
	Title     string
	Price     string
	Shipping  string
	SoldDate  string
	Image     string
	ImageAttr string // defaults to "src"
	Link      string
	Condition string
	Sponsored bool
}

// PageBuilder renders search-results HTML in the legacy s-item layout.
type PageBuilder struct {
	items []Item
}

func NewPageBuilder() *PageBuilder {
	return &PageBuilder{}
}

func (b *PageBuilder) Add(items ...Item) *PageBuilder {
	b.items = append(b.items, items...)
	return b
}

// Sponsored adds the promotional first card eBay puts on every page.
func (b *PageBuilder) Sponsored() *PageBuilder {
	return b.Add(Item{Title: "Shop on eBay", Price: "$20.00", Sponsored: true})
}

func (b *PageBuilder) HTML() []byte {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head><title>results</title></head><body><ul class=\"srp-results\">")
	for _, it := range b.items {
		sb.WriteString(`<li class="s-item"><div class="s-item__wrapper">`)
		if it.Image != "" {
			attr := it.ImageAttr
			if attr == "" {
				attr = "src"
			}
			fmt.Fprintf(&sb, `<div class="s-item__image"><img class="s-item__image-img" %s="%s"></div>`, attr, html.EscapeString(it.Image))
		}
		sb.WriteString(`<div class="s-item__info">`)
		if it.SoldDate != "" {
			fmt.Fprintf(&sb, `<div class="s-item__caption-section"><span class="s-item__caption--signal POSITIVE">%s</span></div>`, html.EscapeString(it.SoldDate))
		}
		if it.Link != "" {
			fmt.Fprintf(&sb, `<a class="s-item__link" href="%s">`, html.EscapeString(it.Link))
		}
		if it.Title != "" {
			fmt.Fprintf(&sb, `<div class="s-item__title"><span role="heading">%s</span></div>`, html.EscapeString(it.Title))
		}
		if it.Link != "" {
			sb.WriteString(`</a>`)
		}
		if it.Condition != "" {
			fmt.Fprintf(&sb, `<div class="s-item__subtitle"><span class="SECONDARY_INFO">%s</span></div>`, html.EscapeString(it.Condition))
		}
		if it.Price != "" {
			fmt.Fprintf(&sb, `<span class="s-item__price">%s</span>`, html.EscapeString(it.Price))
		}
		if it.Shipping != "" {
			fmt.Fprintf(&sb, `<span class="s-item__shipping s-item__logisticsCost">%s</span>`, html.EscapeString(it.Shipping))
		}
		sb.WriteString(`</div></div></li>`)
	}
	sb.WriteString("</ul></body></html>")
	return []byte(sb.String())
}

// ResultsPage is shorthand for NewPageBuilder().Add(items...).HTML().
func ResultsPage(items ...Item) []byte {
	return NewPageBuilder().Add(items...).HTML()
}
