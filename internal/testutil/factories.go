package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/cardpulse/internal/model"
)

// TestDataFactory generates listings and titles for tests.
type TestDataFactory struct {
	rand *rand.Rand
	now  time.Time
}

// NewTestDataFactory creates a factory with a seeded random generator.
// Dates are relative to FixedNow so output is stable for a given seed.
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
		now:  FixedNow,
	}
}

var (
	players    = []string{"Lamar Jackson", "Patrick Mahomes", "Justin Herbert", "Joe Burrow", "Ja'Marr Chase"}
	sets       = []string{"Panini Prizm", "Donruss Optic", "Topps Chrome", "Select", "Mosaic"}
	variations = []string{"", "Silver", "Gold", "Red Wave", "Press Proof", "Auto"}
)

// GenerateTestCardNumber generates a random card number.
func (f *TestDataFactory) GenerateTestCardNumber() string {
	return fmt.Sprintf("%d", f.rand.Intn(300)+1)
}

func (f *TestDataFactory) GenerateTestPlayer() string {
	return players[f.rand.Intn(len(players))]
}

func (f *TestDataFactory) GenerateTestSetName() string {
	return sets[f.rand.Intn(len(sets))]
}

// GenerateTestGrade generates a random grade label.
func (f *TestDataFactory) GenerateTestGrade() string {
	grades := []string{"Raw", "PSA 8", "PSA 9", "PSA 10", "BGS 9.5", "SGC 10"}
	return grades[f.rand.Intn(len(grades))]
}

// GenerateTestTitle builds a marketplace-style title.
func (f *TestDataFactory) GenerateTestTitle() string {
	title := fmt.Sprintf("%d %s %s #%s", 2018+f.rand.Intn(6), f.GenerateTestSetName(), f.GenerateTestPlayer(), f.GenerateTestCardNumber())
	if v := variations[f.rand.Intn(len(variations))]; v != "" {
		title += " " + v
	}
	if g := f.GenerateTestGrade(); g != "Raw" {
		title += " " + g
	}
	return title
}

// GenerateTestPrice generates a price between $5 and $500.
func (f *TestDataFactory) GenerateTestPrice() decimal.Decimal {
	return decimal.New(int64(f.rand.Intn(49500)+500), -2)
}

// GenerateTestDate generates a date within the 90 days before FixedNow.
func (f *TestDataFactory) GenerateTestDate() time.Time {
	return f.now.AddDate(0, 0, -f.rand.Intn(90))
}

// GenerateTestListing returns a sold listing with random fields.
func (f *TestDataFactory) GenerateTestListing() model.RawListing {
	return model.RawListing{
		Title:     f.GenerateTestTitle(),
		Price:     f.GenerateTestPrice(),
		SoldDate:  f.GenerateTestDate(),
		SourceURL: fmt.Sprintf("https://www.ebay.test/itm/%d", f.rand.Int63()),
		Status:    model.StatusSold,
	}
}

// Listing builds a sold listing with the given title, total price and age
// in days relative to FixedNow.
func Listing(title string, price float64, daysAgo int) model.RawListing {
	return model.RawListing{
		Title:    title,
		Price:    decimal.NewFromFloat(price),
		SoldDate: FixedNow.AddDate(0, 0, -daysAgo),
		Status:   model.StatusSold,
	}
}

// PricedListings returns listings with the given prices, the first sold
// today and each next one a day earlier (newest first).
func PricedListings(title string, prices ...float64) []model.RawListing {
	out := make([]model.RawListing, len(prices))
	for i, p := range prices {
		out[i] = Listing(title, p, i)
	}
	return out
}
