package ebay

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/monitoring"
)

// Selector cascades, most specific first. eBay serves both the legacy
// s-item markup and the newer s-card markup.
var (
	itemSelectors      = []string{"li.s-item", ".s-item__wrapper", ".s-card", ".s-item"}
	titleSelectors     = []string{"div.s-item__title span", ".s-item__title", ".s-card__title", "h3"}
	priceSelectors     = []string{".s-item__price", ".s-card__price"}
	shippingSelectors  = []string{".s-item__shipping", ".s-item__freeXDays", ".s-item__logisticsCost", ".s-card__shipping"}
	soldDateSelectors  = []string{".s-item__sold-date", ".s-item__endedDate", ".s-item__listingDate", ".s-item__caption--signal", ".s-card__caption"}
	linkSelectors      = []string{"a.s-item__link", ".s-card__link", "a"}
	conditionSelectors = []string{".s-item__condition", ".SECONDARY_INFO", ".s-card__subtitle"}
	captionSelectors   = []string{".s-item__caption-section", ".s-item__caption--signal", ".s-card__caption"}
)

const promoMarker = "Shop on eBay"

// Extractor turns a search results page into listings. Missing fields are
// handled per node; a node without a title or positive price is dropped.
type Extractor struct {
	now      func() time.Time
	rnd      *rand.Rand
	log      zerolog.Logger
	recorder *monitoring.Recorder
}

type ExtractorOption func(*Extractor)

func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) { e.now = now }
}

// WithRand fixes the source used for estimated sold dates. A *rand.Rand is
// not safe for concurrent use, so an Extractor built with one must not be
// shared across goroutines.
func WithRand(r *rand.Rand) ExtractorOption {
	return func(e *Extractor) { e.rnd = r }
}

func WithLogger(l zerolog.Logger) ExtractorOption {
	return func(e *Extractor) { e.log = l }
}

func WithRecorder(r *monitoring.Recorder) ExtractorOption {
	return func(e *Extractor) { e.recorder = r }
}

func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse reads html into a document. It fails only when the input cannot be
// read at all.
func Parse(html []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Extract parses html and returns its listings. An unrecognized page gives
// an empty slice and no error.
func (e *Extractor) Extract(html []byte) ([]model.RawListing, error) {
	doc, err := Parse(html)
	if err != nil {
		return nil, err
	}
	return e.ExtractDocument(doc), nil
}

// ItemNodes returns the result-card nodes using the first selector that
// matches anything.
func ItemNodes(doc *goquery.Document) *goquery.Selection {
	for _, sel := range itemSelectors {
		if nodes := doc.Find(sel); nodes.Length() > 0 {
			return nodes
		}
	}
	return doc.Find(itemSelectors[0])
}

// ExtractDocument extracts listings from an already parsed document.
func (e *Extractor) ExtractDocument(doc *goquery.Document) []model.RawListing {
	now := e.now()
	listings := make([]model.RawListing, 0)

	ItemNodes(doc).Each(func(i int, node *goquery.Selection) {
		if strings.Contains(node.Text(), promoMarker) {
			e.recorder.Listing("sponsored")
			return
		}
		l, ok := e.extractNode(node, now)
		if !ok {
			e.recorder.Listing("dropped")
			e.log.Debug().Int("node", i).Msg("dropping result card without title or price")
			return
		}
		e.recorder.Listing("kept")
		listings = append(listings, l)
	})

	return listings
}

func (e *Extractor) extractNode(node *goquery.Selection, now time.Time) (model.RawListing, bool) {
	title := cleanTitle(firstText(node, titleSelectors))
	if title == "" {
		return model.RawListing{}, false
	}
	price, ok := ParsePrice(firstText(node, priceSelectors))
	if !ok || !price.IsPositive() {
		return model.RawListing{}, false
	}

	dateText := firstText(node, soldDateSelectors)
	sold, estimated := ParseSoldDate(dateText, now, e.rnd)

	status := model.StatusUnknown
	caption := strings.ToLower(firstText(node, captionSelectors) + " " + dateText)
	if strings.Contains(caption, "sold") || strings.Contains(caption, "ended") {
		status = model.StatusSold
	}

	link, _ := firstMatch(node, linkSelectors).Attr("href")

	return model.RawListing{
		Title:           title,
		Price:           price,
		Shipping:        ParseShipping(firstText(node, shippingSelectors)),
		SoldDate:        sold,
		DateIsEstimated: estimated,
		ImageURL:        imageCandidate(node),
		SourceURL:       strings.TrimSpace(link),
		Condition:       firstText(node, conditionSelectors),
		Status:          status,
	}, true
}

func firstMatch(node *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if s := node.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return node.Find(selectors[0])
}

// firstText returns the first non-empty text across the selectors.
func firstText(node *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(node.Find(sel).First().Text()); t != "" {
			return strings.Join(strings.Fields(t), " ")
		}
	}
	return ""
}

// cleanTitle strips the "New Listing" badge that eBay prepends to titles.
func cleanTitle(t string) string {
	t = strings.TrimSpace(t)
	for _, badge := range []string{"New Listing", "NEW LISTING"} {
		t = strings.TrimSpace(strings.TrimPrefix(t, badge))
	}
	return t
}
