// Package grouping clusters listings that describe the same card variant.
package grouping

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/monitoring"
	"github.com/guarzo/cardpulse/internal/similarity"
)

// Mode selects the admission rule.
type Mode int

const (
	// ModeStandard admits on title token overlap and price proximity.
	ModeStandard Mode = iota
	// ModeRaw admits on price proximity and matching card attributes.
	ModeRaw
)

func (m Mode) String() string {
	if m == ModeRaw {
		return "raw"
	}
	return "standard"
}

// ModeFor picks the mode implied by the query's grade.
func ModeFor(q model.TargetQuery) Mode {
	if q.IsRaw() {
		return ModeRaw
	}
	return ModeStandard
}

// Grouper is scoped to one target query.
type Grouper struct {
	query    model.TargetQuery
	th       similarity.Thresholds
	log      zerolog.Logger
	recorder *monitoring.Recorder
}

type Option func(*Grouper)

func WithThresholds(th similarity.Thresholds) Option {
	return func(g *Grouper) { g.th = th }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Grouper) { g.log = l }
}

func WithRecorder(r *monitoring.Recorder) Option {
	return func(g *Grouper) { g.recorder = r }
}

func New(q model.TargetQuery, opts ...Option) *Grouper {
	g := &Grouper{
		query: q,
		th:    similarity.DefaultThresholds(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Group partitions listings into variant groups with a single greedy pass.
// Each listing lands in exactly one group; the first group that admits it
// wins. Groups come back largest first, ties in discovery order.
func (g *Grouper) Group(listings []model.RawListing, mode Mode) []model.VariantGroup {
	assigned := make([]bool, len(listings))
	groups := make([]model.VariantGroup, 0)

	for i, seed := range listings {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []model.RawListing{seed}

		for j := i + 1; j < len(listings); j++ {
			if assigned[j] {
				continue
			}
			if g.admits(seed, listings[j], mode) {
				assigned[j] = true
				members = append(members, listings[j])
			}
		}
		groups = append(groups, g.summarize(members))
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Count > groups[b].Count
	})
	for i := range groups {
		groups[i].ID = fmt.Sprintf("variation-%d", i)
		g.recorder.GroupSize(groups[i].Count)
	}

	g.log.Debug().
		Str("mode", mode.String()).
		Int("listings", len(listings)).
		Int("groups", len(groups)).
		Msg("grouped listings")
	return groups
}

func (g *Grouper) admits(seed, candidate model.RawListing, mode Mode) bool {
	diff := PriceDifference(seed.TotalFloat(), candidate.TotalFloat())
	if mode == ModeRaw {
		return diff < g.th.RawPriceBand &&
			similarity.RawAttributesMatch(seed.Title, candidate.Title, g.query)
	}
	return diff < g.th.PriceBand &&
		similarity.TokenOverlap(seed.Title, candidate.Title) > g.th.MinOverlap
}

// PriceDifference is |a-b| relative to the larger price. A zero larger
// price counts as a total mismatch.
func PriceDifference(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi <= 0 || math.IsNaN(hi) {
		return 1
	}
	return math.Abs(a-b) / hi
}

func (g *Grouper) summarize(members []model.RawListing) model.VariantGroup {
	seed := members[0]
	vg := model.VariantGroup{
		RepresentativeTitle: seed.Title,
		Members:             members,
		Count:               len(members),
		Grade:               DetectGrade(seed.Title),
	}

	sum := decimal.Zero
	lo, hi := members[0].TotalPrice(), members[0].TotalPrice()
	for _, m := range members {
		p := m.TotalPrice()
		sum = sum.Add(p)
		if p.LessThan(lo) {
			lo = p
		}
		if p.GreaterThan(hi) {
			hi = p
		}
		if vg.ImageURL == "" && m.ImageURL != "" {
			vg.ImageURL = m.ImageURL
		}
	}
	vg.AveragePrice = sum.Div(decimal.NewFromInt(int64(len(members)))).Round(2).InexactFloat64()
	vg.MinPrice = lo.InexactFloat64()
	vg.MaxPrice = hi.InexactFloat64()
	vg.Label = Label(g.query, seed.Title)
	return vg
}
