package ebay

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/monitoring"
	fixtures "github.com/guarzo/cardpulse/internal/testutil"
)

func newTestExtractor(opts ...ExtractorOption) *Extractor {
	base := []ExtractorOption{
		WithClock(fixtures.Clock()),
		WithRand(rand.New(rand.NewPCG(3, 4))),
	}
	return NewExtractor(append(base, opts...)...)
}

func TestExtractor_FullCard(t *testing.T) {
	page := fixtures.ResultsPage(fixtures.Item{
		Title:     "New Listing 2018 Panini Prizm Lamar Jackson #212 PSA 10",
		Price:     "$450.00",
		Shipping:  "+$4.50 shipping",
		SoldDate:  "Sold Jun 3, 2024",
		Image:     "https://i.ebayimg.com/images/g/abc/s-l225.jpg",
		Link:      "https://www.ebay.com/itm/1234",
		Condition: "Graded - PSA 10",
	})

	listings, err := newTestExtractor().Extract(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("got %d listings, want 1", len(listings))
	}

	l := listings[0]
	if l.Title != "2018 Panini Prizm Lamar Jackson #212 PSA 10" {
		t.Errorf("Title = %q", l.Title)
	}
	if !l.Price.Equal(decimal.RequireFromString("450")) {
		t.Errorf("Price = %s, want 450", l.Price)
	}
	if !l.Shipping.Equal(decimal.RequireFromString("4.50")) {
		t.Errorf("Shipping = %s, want 4.50", l.Shipping)
	}
	if got := l.TotalFloat(); got != 454.5 {
		t.Errorf("TotalFloat() = %v, want 454.5", got)
	}
	wantDate := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	if !l.SoldDate.Equal(wantDate) || l.DateIsEstimated {
		t.Errorf("SoldDate = %v (estimated %v), want %v", l.SoldDate, l.DateIsEstimated, wantDate)
	}
	if l.ImageURL != "https://i.ebayimg.com/images/g/abc/s-l500.jpg" {
		t.Errorf("ImageURL = %q", l.ImageURL)
	}
	if l.SourceURL != "https://www.ebay.com/itm/1234" {
		t.Errorf("SourceURL = %q", l.SourceURL)
	}
	if l.Condition != "Graded - PSA 10" {
		t.Errorf("Condition = %q", l.Condition)
	}
	if l.Status != model.StatusSold {
		t.Errorf("Status = %s, want Sold", l.Status)
	}
}

func TestExtractor_SkipsPromoAndIncompleteCards(t *testing.T) {
	recorder := monitoring.NewRecorder()
	page := fixtures.NewPageBuilder().
		Sponsored().
		Add(
			fixtures.Item{Title: "Joe Burrow Prizm RC", Price: "$80.00", Shipping: "Free shipping", SoldDate: "Sold May 1, 2024"},
			fixtures.Item{Title: "", Price: "$10.00"},
			fixtures.Item{Title: "No price card"},
			fixtures.Item{Title: "Zero price card", Price: "$0.00"},
		).HTML()

	listings, err := newTestExtractor(WithRecorder(recorder)).Extract(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 1 || listings[0].Title != "Joe Burrow Prizm RC" {
		t.Fatalf("expected only the complete card, got %+v", listings)
	}
	if !listings[0].Shipping.IsZero() {
		t.Errorf("free shipping should be 0, got %s", listings[0].Shipping)
	}

	got, err := testutil.GatherAndCount(recorder.Registry(), "cardpulse_listings_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 3 {
		t.Errorf("expected kept/sponsored/dropped series, got %d", got)
	}
}

func TestExtractor_MissingDateIsEstimated(t *testing.T) {
	page := fixtures.ResultsPage(fixtures.Item{Title: "Patrick Mahomes Select", Price: "$120.00"})

	listings, err := newTestExtractor().Extract(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("got %d listings, want 1", len(listings))
	}

	l := listings[0]
	if !l.DateIsEstimated {
		t.Error("listing without a date should be marked estimated")
	}
	now := fixtures.FixedNow
	if l.SoldDate.After(now) || l.SoldDate.Before(now.AddDate(0, 0, -30)) {
		t.Errorf("estimated date %v outside the 30 days before %v", l.SoldDate, now)
	}
	if l.Status != model.StatusUnknown {
		t.Errorf("Status = %s, want Unknown", l.Status)
	}
}

func TestExtractor_ImageFallbacks(t *testing.T) {
	tests := []struct {
		name string
		item fixtures.Item
		want string
	}{
		{
			name: "data-src",
			item: fixtures.Item{Image: "https://i.ebayimg.com/images/g/lazy/s-l140.jpg", ImageAttr: "data-src"},
			want: "https://i.ebayimg.com/images/g/lazy/s-l500.jpg",
		},
		{
			name: "srcset",
			item: fixtures.Item{Image: "//i.ebayimg.com/a/s-l140.jpg 1x, //i.ebayimg.com/a/s-l300.jpg 2x", ImageAttr: "srcset"},
			want: "https://i.ebayimg.com/a/s-l500.jpg",
		},
		{
			name: "no image",
			item: fixtures.Item{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.item.Title = "Justin Herbert Optic"
			tt.item.Price = "$30.00"

			listings, err := newTestExtractor().Extract(fixtures.ResultsPage(tt.item))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(listings) != 1 {
				t.Fatalf("got %d listings, want 1", len(listings))
			}
			if listings[0].ImageURL != tt.want {
				t.Errorf("ImageURL = %q, want %q", listings[0].ImageURL, tt.want)
			}
		})
	}
}

func TestExtractor_EmptyDocument(t *testing.T) {
	for _, page := range [][]byte{nil, []byte(""), []byte("<html><body><p>captcha</p></body></html>")} {
		listings, err := newTestExtractor().Extract(page)
		if err != nil {
			t.Errorf("Extract(%q) returned error %v", page, err)
		}
		if listings == nil || len(listings) != 0 {
			t.Errorf("Extract(%q) = %v, want empty non-nil slice", page, listings)
		}
	}
}

func TestExtractor_CardLayout(t *testing.T) {
	page := []byte(`<html><body><ul>
<li class="s-card"><div class="s-card__title"><span>2020 Prizm Justin Herbert Silver</span></div>
<span class="s-card__price">$210.00</span><div class="s-card__caption">Sold  Jun 10, 2024</div>
<a class="s-card__link" href="https://www.ebay.com/itm/99"></a></li>
</ul></body></html>`)

	listings, err := newTestExtractor().Extract(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("got %d listings, want 1", len(listings))
	}
	if listings[0].Title != "2020 Prizm Justin Herbert Silver" {
		t.Errorf("Title = %q", listings[0].Title)
	}
	if listings[0].Status != model.StatusSold || listings[0].DateIsEstimated {
		t.Errorf("expected sold with a parsed date, got %+v", listings[0])
	}
}
