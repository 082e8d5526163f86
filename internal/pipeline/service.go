// Package pipeline wires fetching, extraction, filtering, grouping and
// market analysis into the two operations callers use: Search and Analyze.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/guarzo/cardpulse/internal/ebay"
	"github.com/guarzo/cardpulse/internal/fetch"
	"github.com/guarzo/cardpulse/internal/grouping"
	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/monitoring"
	"github.com/guarzo/cardpulse/internal/similarity"
)

// Stage names reported to the stage-duration histogram.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageGroup   = "group"
	StageSearch  = "search"
	StageAnalyze = "analyze"
)

// Service runs searches against the sold-listings site. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	fetcher    fetch.Fetcher
	extractor  *ebay.Extractor
	base       string
	params     ebay.Params
	thresholds similarity.Thresholds
	strict     bool
	timeout    time.Duration
	workers    int
	pacer      *rate.Limiter
	newID      func() string
	log        zerolog.Logger
	recorder   *monitoring.Recorder
}

type Option func(*Service)

func WithSearchBase(base string) Option {
	return func(s *Service) { s.base = base }
}

func WithParams(p ebay.Params) Option {
	return func(s *Service) { s.params = p }
}

func WithThresholds(th similarity.Thresholds) Option {
	return func(s *Service) { s.thresholds = th }
}

// WithStrictMatch drops listings whose title is not a fuzzy match for the
// query's keywords (see similarity.Matcher). Off by default.
func WithStrictMatch(on bool) Option {
	return func(s *Service) { s.strict = on }
}

func WithExtractor(e *ebay.Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithTimeout bounds each fetch of a Search. Raw queries may fetch once
// per ladder step, and every step gets the full budget.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithWorkers sets how many queries SearchMany runs at once.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// WithPacing spaces out query starts in SearchMany. A zero limit disables
// pacing.
func WithPacing(perSecond float64) Option {
	return func(s *Service) {
		if perSecond <= 0 {
			s.pacer = nil
			return
		}
		s.pacer = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithRequestIDs(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithRecorder(r *monitoring.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// New creates a Service that retrieves pages through f.
func New(f fetch.Fetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:    f,
		base:       ebay.DefaultSearchBase,
		params:     ebay.DefaultParams(),
		thresholds: similarity.DefaultThresholds(),
		workers:    4,
		newID:      uuid.NewString,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = ebay.NewExtractor(ebay.WithLogger(s.log), ebay.WithRecorder(s.recorder))
	}
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

// SearchResult is the outcome of one Search. Empty with a nil error means
// the site answered but nothing matched.
type SearchResult struct {
	RequestID string               `json:"requestId"`
	Query     model.TargetQuery    `json:"query"`
	URL       string               `json:"url,omitempty"`
	Tried     []string             `json:"tried"`
	Scraped   int                  `json:"scraped"`
	Listings  []model.RawListing   `json:"-"`
	Groups    []model.VariantGroup `json:"groups"`
	Empty     bool                 `json:"empty"`
}

// Search fetches sold listings for q, filters them and groups them into
// variants. Raw queries walk the search ladder until a step yields
// listings. A fetch failure aborts the search; an empty page does not.
func (s *Service) Search(ctx context.Context, q model.TargetQuery) (*SearchResult, error) {
	start := time.Now()
	defer s.recorder.ObserveStage(StageSearch, start)

	res := &SearchResult{RequestID: s.newID(), Query: q, Groups: []model.VariantGroup{}}
	log := s.log.With().Str("request_id", res.RequestID).Logger()

	negative := ebay.NegativeKeywords(q)
	for step, terms := range ebay.SearchLadder(q) {
		url := ebay.SearchURL(s.base, terms, s.params)
		res.Tried = append(res.Tried, url)

		scraped, err := s.scrape(ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("search failed")
			return nil, fmt.Errorf("search %q: %w", terms.Keywords, err)
		}
		res.Scraped += len(scraped)

		kept := ebay.FilterForTarget(ebay.FilterNegative(scraped, negative), q)
		if s.strict {
			kept = s.matching(kept, q)
		}
		log.Debug().
			Int("step", step).
			Str("url", url).
			Int("scraped", len(scraped)).
			Int("kept", len(kept)).
			Msg("search step")
		if len(kept) > 0 {
			res.URL = url
			res.Listings = kept
			break
		}
	}

	groupStart := time.Now()
	grouper := grouping.New(q,
		grouping.WithThresholds(s.thresholds),
		grouping.WithLogger(log),
		grouping.WithRecorder(s.recorder),
	)
	res.Groups = grouper.Group(res.Listings, grouping.ModeFor(q))
	s.recorder.ObserveStage(StageGroup, groupStart)
	res.Empty = len(res.Groups) == 0

	log.Info().
		Int("listings", len(res.Listings)).
		Int("groups", len(res.Groups)).
		Dur("elapsed", time.Since(start)).
		Msg("search complete")
	return res, nil
}

func (s *Service) matching(listings []model.RawListing, q model.TargetQuery) []model.RawListing {
	m := similarity.NewMatcher(s.thresholds)
	out := listings[:0:0]
	for _, l := range listings {
		if m.MatchesTarget(l.Title, q) {
			out = append(out, l)
		}
	}
	return out
}

func (s *Service) scrape(ctx context.Context, url string) ([]model.RawListing, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	fetchStart := time.Now()
	page, err := s.fetcher.Fetch(ctx, url)
	s.recorder.ObserveStage(StageFetch, fetchStart)
	if err != nil {
		return nil, err
	}

	extractStart := time.Now()
	defer s.recorder.ObserveStage(StageExtract, extractStart)
	return s.extractor.Extract(page.Body)
}
