package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/cardpulse/internal/fetch"
	"github.com/guarzo/cardpulse/internal/market"
	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/monitoring"
	"github.com/guarzo/cardpulse/internal/pipeline"
	"github.com/guarzo/cardpulse/internal/ratelimit"
	"github.com/guarzo/cardpulse/internal/testutil"
)

type fakeEngine struct {
	result     *pipeline.SearchResult
	err        error
	gradingErr error
	lastQuery  model.TargetQuery
	lastOdds   market.GradeOdds
}

func (f *fakeEngine) Search(_ context.Context, q model.TargetQuery) (*pipeline.SearchResult, error) {
	f.lastQuery = q
	return f.result, f.err
}

func (f *fakeEngine) Analyze(group model.VariantGroup, roi float64, isRaw bool) pipeline.Analysis {
	return pipeline.Analyze(group, roi, isRaw)
}

func (f *fakeEngine) GradingOutlook(_ context.Context, q model.TargetQuery, odds market.GradeOdds, costs market.GradingCosts) (*pipeline.GradingOutlook, error) {
	f.lastQuery, f.lastOdds = q, odds
	if f.gradingErr != nil {
		return nil, f.gradingErr
	}
	return &pipeline.GradingOutlook{RawPrice: 20, Estimate: market.GradingProfit(20, 100, 300, odds, costs)}, nil
}

func lamarGroup() model.VariantGroup {
	const title = "2018 Prizm Lamar Jackson PSA 10"
	members := []model.RawListing{
		testutil.Listing(title, 450, 1),
		testutil.Listing(title, 420, 4),
	}
	return model.VariantGroup{ID: "variation-0", Label: "Lamar Jackson PSA 10", Members: members, Count: 2, AveragePrice: 435}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, New(&fakeEngine{}, ":0"), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestScrape(t *testing.T) {
	engine := &fakeEngine{result: &pipeline.SearchResult{
		RequestID: "req-9",
		Groups:    []model.VariantGroup{lamarGroup()},
	}}
	rec := do(t, New(engine, ":0"), http.MethodPost, "/api/scrape",
		`{"playerName":"Lamar Jackson","year":"2018","grade":"PSA 10","negKeywords":["custom"]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp scrapeResponse
	decode(t, rec, &resp)
	if resp.Count != 1 || resp.RequestID != "req-9" || resp.Groups[0].AveragePrice != 435 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Outcome != "limited_data" || resp.Message == "" {
		t.Errorf("two sales should be reported as limited data, got %q %q", resp.Outcome, resp.Message)
	}
	if engine.lastQuery.PlayerName != "Lamar Jackson" || engine.lastQuery.NegativeKeywords[0] != "custom" {
		t.Errorf("query not bound: %+v", engine.lastQuery)
	}
}

func TestScrape_Empty(t *testing.T) {
	engine := &fakeEngine{result: &pipeline.SearchResult{Groups: []model.VariantGroup{}, Empty: true}}
	rec := do(t, New(engine, ":0"), http.MethodPost, "/api/scrape", `{"query":"obscure card"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"groups":[]`) {
		t.Errorf("groups should be an empty array: %s", rec.Body.String())
	}
	var resp scrapeResponse
	decode(t, rec, &resp)
	if resp.Count != 0 || resp.Message != "no matching sales found, consider broadening your search" {
		t.Errorf("response = %+v", resp)
	}
}

func TestScrape_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no keywords", `{"grade":"raw"}`},
		{"bad year", `{"playerName":"Joe Burrow","year":"20x0"}`},
		{"malformed json", `{"query":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, New(&fakeEngine{}, ":0"), http.MethodPost, "/api/scrape", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var resp errorResponse
			decode(t, rec, &resp)
			if len(resp.Details) == 0 {
				t.Error("expected validation details")
			}
		})
	}
}

func TestScrape_FetchExhausted(t *testing.T) {
	engine := &fakeEngine{err: &fetch.ExhaustedError{Attempts: 3, Last: errors.New("503")}}
	rec := do(t, New(engine, ":0"), http.MethodPost, "/api/scrape", `{"query":"charizard"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Outcome != "retry_later" || !strings.Contains(resp.Error, "try again later") {
		t.Errorf("response = %+v", resp)
	}
}

func TestScrape_RateLimited(t *testing.T) {
	limiter := ratelimit.NewKeyed(ratelimit.Config{Requests: 2, Window: time.Minute, IdleTTL: time.Minute}, testutil.Clock())
	recorder := monitoring.NewRecorder()
	engine := &fakeEngine{result: &pipeline.SearchResult{Groups: []model.VariantGroup{}, Empty: true}}
	srv := New(engine, ":0", WithLimiter(limiter), WithRecorder(recorder))

	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodPost, "/api/scrape", `{"query":"charizard"}`); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}

	rec := do(t, srv, http.MethodPost, "/api/scrape", `{"query":"charizard"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %q, want 30", rec.Header().Get("Retry-After"))
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.RetryAfter != 30 {
		t.Errorf("retryAfter = %d, want 30", resp.RetryAfter)
	}

	if rec := do(t, srv, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", rec.Code)
	}

	metrics := do(t, srv, http.MethodGet, "/metrics", "")
	if !strings.Contains(metrics.Body.String(), "cardpulse_rate_limited_total 1") {
		t.Errorf("rate-limited counter missing from /metrics")
	}
}

func TestAnalyze(t *testing.T) {
	body, err := json.Marshal(map[string]interface{}{"group": lamarGroup(), "roi": 25, "isRaw": false})
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, New(&fakeEngine{}, ":0"), http.MethodPost, "/api/analyze", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got pipeline.Analysis
	decode(t, rec, &got)
	want := pipeline.Analyze(lamarGroup(), 25, false)
	if got.Metrics.SalesCount != 2 || got.Metrics.AveragePrice != want.Metrics.AveragePrice {
		t.Errorf("metrics = %+v, want %+v", got.Metrics, want.Metrics)
	}
	if !got.LimitedData || got.Forecast.Days30 != want.Forecast.Days30 {
		t.Errorf("forecast = %+v, want %+v", got.Forecast, want.Forecast)
	}
	if got.Recommendation.Action != want.Recommendation.Action {
		t.Errorf("action = %s, want %s", got.Recommendation.Action, want.Recommendation.Action)
	}
}

func TestAnalyze_InvalidROI(t *testing.T) {
	rec := do(t, New(&fakeEngine{}, ":0"), http.MethodPost, "/api/analyze", `{"group":{},"roi":-500}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGrading(t *testing.T) {
	engine := &fakeEngine{}
	rec := do(t, New(engine, ":0"), http.MethodPost, "/api/grading", `{"query":{"playerName":"Joe Burrow"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if engine.lastOdds != market.DefaultGradeOdds() {
		t.Errorf("odds = %+v, want defaults", engine.lastOdds)
	}
	var out pipeline.GradingOutlook
	decode(t, rec, &out)
	if out.Estimate.ExpectedProfit != 1.35 {
		t.Errorf("ExpectedProfit = %v, want 1.35", out.Estimate.ExpectedProfit)
	}

	engine.gradingErr = pipeline.ErrNoRawSales
	if rec := do(t, New(engine, ":0"), http.MethodPost, "/api/grading", `{"query":{"playerName":"Joe Burrow"}}`); rec.Code != http.StatusNotFound {
		t.Errorf("no raw sales status = %d, want 404", rec.Code)
	}
}
