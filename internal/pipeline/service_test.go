package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/guarzo/cardpulse/internal/ebay"
	"github.com/guarzo/cardpulse/internal/fetch"
	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/monitoring"
	fixtures "github.com/guarzo/cardpulse/internal/testutil"
)

type fakeFetcher struct {
	mu      sync.Mutex
	urls    []string
	respond func(ctx context.Context, url string) ([]byte, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Page, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()

	body, err := f.respond(ctx, url)
	if err != nil {
		return nil, err
	}
	return &fetch.Page{URL: url, StatusCode: 200, Body: body, Attempts: 1}, nil
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func pageFetcher(page []byte) *fakeFetcher {
	return &fakeFetcher{respond: func(context.Context, string) ([]byte, error) { return page, nil }}
}

func newTestService(f fetch.Fetcher, opts ...Option) *Service {
	extractor := ebay.NewExtractor(
		ebay.WithClock(fixtures.Clock()),
		ebay.WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	base := []Option{WithExtractor(extractor), WithRequestIDs(func() string { return "req-1" })}
	return New(f, append(base, opts...)...)
}

var lamarPSA10 = model.TargetQuery{PlayerName: "Lamar Jackson", Year: "2018", CardSet: "Prizm", Grade: "PSA 10"}

func lamarPage() []byte {
	return fixtures.NewPageBuilder().
		Sponsored().
		Add(
			fixtures.Item{Title: "2018 Panini Prizm Lamar Jackson Silver PSA 10 #212", Price: "$450.00", SoldDate: "Sold Jun 10, 2024"},
			fixtures.Item{Title: "2018 Panini Prizm Lamar Jackson Silver PSA 10 Gem Mint", Price: "$420.00", SoldDate: "Sold Jun 5, 2024"},
			fixtures.Item{Title: "2018 Panini Prizm Lamar Jackson PSA 9", Price: "$120.00", SoldDate: "Sold Jun 4, 2024"},
			fixtures.Item{Title: "2018 Prizm Lamar Jackson lot of 5 PSA 10", Price: "$900.00", SoldDate: "Sold Jun 3, 2024"},
		).
		HTML()
}

func TestSearch_GradedQuery(t *testing.T) {
	f := pageFetcher(lamarPage())
	svc := newTestService(f)

	res, err := svc.Search(context.Background(), lamarPSA10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	calls := f.calls()
	if len(calls) != 1 {
		t.Fatalf("fetched %d pages, want 1", len(calls))
	}
	if !strings.Contains(calls[0], "_nkw=Lamar+Jackson+2018+Prizm+PSA+10+-lot+-reprint") {
		t.Errorf("unexpected search URL %s", calls[0])
	}
	if res.URL != calls[0] || res.RequestID != "req-1" {
		t.Errorf("result URL/ID = %q/%q", res.URL, res.RequestID)
	}
	if res.Scraped != 4 {
		t.Errorf("Scraped = %d, want 4 (sponsored card excluded)", res.Scraped)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("kept %d listings, want 2", len(res.Listings))
	}
	if res.Empty || len(res.Groups) != 1 {
		t.Fatalf("groups = %+v", res.Groups)
	}
	g := res.Groups[0]
	if g.Count != 2 || g.AveragePrice != 435 || g.MinPrice != 420 || g.MaxPrice != 450 {
		t.Errorf("group = count %d avg %v min %v max %v", g.Count, g.AveragePrice, g.MinPrice, g.MaxPrice)
	}
	if g.Grade != "PSA 10" {
		t.Errorf("Grade = %q", g.Grade)
	}
}

func TestSearch_RawLadderFallsBack(t *testing.T) {
	basic := fixtures.ResultsPage(
		fixtures.Item{Title: "2020 Prizm Joe Burrow Rookie #307", Price: "$40.00", SoldDate: "Sold Jun 12, 2024"},
		fixtures.Item{Title: "2020 Prizm Joe Burrow Rookie #307 sharp", Price: "$38.00", SoldDate: "Sold Jun 11, 2024"},
		fixtures.Item{Title: "2020 Prizm Joe Burrow Rookie PSA 10", Price: "$300.00", SoldDate: "Sold Jun 10, 2024"},
	)
	empty := fixtures.ResultsPage()
	f := &fakeFetcher{respond: func(_ context.Context, url string) ([]byte, error) {
		if strings.Contains(url, "-graded") {
			return empty, nil
		}
		return basic, nil
	}}

	q := model.TargetQuery{PlayerName: "Joe Burrow", Year: "2020", CardSet: "Prizm", Grade: "Raw"}
	res, err := newTestService(f).Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(res.Tried) != 3 {
		t.Fatalf("tried %d searches, want 3: %v", len(res.Tried), res.Tried)
	}
	if !strings.Contains(res.Tried[0], "ungraded") || strings.Contains(res.Tried[1], "ungraded") {
		t.Errorf("ladder order wrong: %v", res.Tried)
	}
	if res.URL != res.Tried[2] {
		t.Errorf("URL = %s, want the basic search", res.URL)
	}
	if len(res.Listings) != 2 {
		t.Errorf("kept %d listings, want the 2 raw ones", len(res.Listings))
	}
	if len(res.Groups) != 1 || res.Groups[0].Count != 2 {
		t.Errorf("groups = %+v", res.Groups)
	}
}

func TestSearch_RawLadderStopsAtFirstHit(t *testing.T) {
	f := pageFetcher(fixtures.ResultsPage(
		fixtures.Item{Title: "2020 Prizm Joe Burrow Rookie ungraded", Price: "$40.00", SoldDate: "Sold Jun 12, 2024"},
	))
	res, err := newTestService(f).Search(context.Background(), model.TargetQuery{PlayerName: "Joe Burrow", Grade: "raw"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(f.calls()) != 1 || len(res.Tried) != 1 {
		t.Errorf("fetched %d pages, want 1", len(f.calls()))
	}
}

func TestSearch_TimeoutAppliesPerLadderStep(t *testing.T) {
	const timeout = 200 * time.Millisecond
	empty := fixtures.ResultsPage()

	var mu sync.Mutex
	var remaining []time.Duration
	f := &fakeFetcher{respond: func(ctx context.Context, _ string) ([]byte, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return nil, errors.New("fetch context has no deadline")
		}
		mu.Lock()
		remaining = append(remaining, time.Until(deadline))
		mu.Unlock()

		select {
		case <-time.After(80 * time.Millisecond):
			return empty, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}

	q := model.TargetQuery{PlayerName: "Joe Burrow", Grade: "Raw"}
	res, err := newTestService(f, WithTimeout(timeout)).Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Tried) != 3 {
		t.Fatalf("tried %d searches, want 3", len(res.Tried))
	}
	for i, r := range remaining {
		if r < timeout/2 {
			t.Errorf("step %d started with %v left, want a fresh %v budget", i, r, timeout)
		}
	}
}

func TestSearch_StrictMatch(t *testing.T) {
	page := fixtures.ResultsPage(
		fixtures.Item{Title: "Lamar Jackson 2018 Prizm PSA 10", Price: "$440.00", SoldDate: "Sold Jun 11, 2024"},
		fixtures.Item{Title: "2018 Panini Prizm Lamar Jackson Silver PSA 10 #212", Price: "$450.00", SoldDate: "Sold Jun 10, 2024"},
	)

	loose, err := newTestService(pageFetcher(page)).Search(context.Background(), lamarPSA10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	strict, err := newTestService(pageFetcher(page), WithStrictMatch(true)).Search(context.Background(), lamarPSA10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(loose.Listings) != 2 {
		t.Errorf("loose search kept %d listings, want 2", len(loose.Listings))
	}
	if len(strict.Listings) != 1 || strict.Listings[0].Title != "Lamar Jackson 2018 Prizm PSA 10" {
		t.Errorf("strict search kept %+v, want only the exact title", strict.Listings)
	}
}

func TestSearch_Empty(t *testing.T) {
	res, err := newTestService(pageFetcher(fixtures.ResultsPage())).Search(context.Background(), lamarPSA10)
	if err != nil {
		t.Fatalf("empty page should not be an error: %v", err)
	}
	if !res.Empty || res.Groups == nil || len(res.Groups) != 0 {
		t.Errorf("result = %+v, want empty with non-nil groups", res)
	}
	if got := Outcome(err, res); got != OutcomeNoResults {
		t.Errorf("Outcome() = %s, want no_results", got)
	}
}

func TestSearch_FetchFailure(t *testing.T) {
	f := &fakeFetcher{respond: func(context.Context, string) ([]byte, error) {
		return nil, &fetch.ExhaustedError{Attempts: 3, Last: &fetch.StatusError{StatusCode: 503}}
	}}

	res, err := newTestService(f).Search(context.Background(), lamarPSA10)
	if err == nil {
		t.Fatal("expected an error")
	}
	if res != nil {
		t.Errorf("result should be nil on failure, got %+v", res)
	}
	if !errors.Is(err, fetch.ErrFetchExhausted) {
		t.Errorf("error %v should match ErrFetchExhausted", err)
	}
	if got := Outcome(err, res); got != OutcomeRetryLater {
		t.Errorf("Outcome() = %s, want retry_later", got)
	}
}

func TestSearch_RecordsStages(t *testing.T) {
	rec := monitoring.NewRecorder()
	svc := newTestService(pageFetcher(lamarPage()), WithRecorder(rec))

	if _, err := svc.Search(context.Background(), lamarPSA10); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	n, err := testutil.GatherAndCount(rec.Registry(), "cardpulse_stage_duration_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 4 {
		t.Errorf("stage series = %d, want 4 (fetch, extract, group, search)", n)
	}
}

func TestOutcome(t *testing.T) {
	const title = "2018 Prizm Lamar Jackson PSA 10"
	group := func(listings ...model.RawListing) model.VariantGroup {
		return model.VariantGroup{Members: listings, Count: len(listings), AveragePrice: 100}
	}

	tests := []struct {
		name string
		err  error
		res  *SearchResult
		want OutcomeKind
	}{
		{"fetch error", errors.New("boom"), nil, OutcomeRetryLater},
		{"no raw sales", ErrNoRawSales, nil, OutcomeNoResults},
		{"nil result", nil, nil, OutcomeNoResults},
		{"thin group", nil, &SearchResult{Groups: []model.VariantGroup{group(
			fixtures.Listing(title, 100, 1),
		)}}, OutcomeLimitedData},
		{"enough history", nil, &SearchResult{Groups: []model.VariantGroup{group(
			fixtures.Listing(title, 100, 1),
			fixtures.Listing(title, 95, 2),
			fixtures.Listing(title, 105, 3),
		)}}, OutcomeOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Outcome(tt.err, tt.res)
			if got != tt.want {
				t.Errorf("Outcome() = %s, want %s", got, tt.want)
			}
			if got != OutcomeOK && got.Message() == "" {
				t.Error("non-OK outcomes need a message")
			}
		})
	}
}
