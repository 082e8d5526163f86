// Package market derives statistics, forecasts and recommendations from a
// group of sold listings.
package market

import (
	"math"
	"sort"
	"time"

	"github.com/guarzo/cardpulse/internal/model"
)

const (
	// volatilityFullScale is the coefficient of variation that maps to 100.
	volatilityFullScale = 0.5
	// trendPointsPerPercent converts half-over-half change into score units.
	trendPointsPerPercent = 2.0
	// demandFullScale is the sales-per-day rate that maps to 100.
	demandFullScale = 0.25
	minTrendSample  = 3
)

type sale struct {
	price float64
	at    time.Time
}

// usableSales keeps listings with a positive, finite total price.
func usableSales(listings []model.RawListing) []sale {
	out := make([]sale, 0, len(listings))
	for _, l := range listings {
		p := l.TotalFloat()
		if p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			out = append(out, sale{price: p, at: l.SoldDate})
		}
	}
	return out
}

// ComputeMetrics summarizes listings. It never fails; an empty or
// unusable sample returns NeutralMetrics.
func ComputeMetrics(listings []model.RawListing) model.MarketMetrics {
	sales := usableSales(listings)
	if len(sales) == 0 {
		return model.NeutralMetrics()
	}

	prices := make([]float64, len(sales))
	for i, s := range sales {
		prices[i] = s.price
	}
	mean, lo, hi := summarize(prices)

	newestFirst := append([]sale(nil), sales...)
	sort.SliceStable(newestFirst, func(a, b int) bool {
		return newestFirst[a].at.After(newestFirst[b].at)
	})

	return model.MarketMetrics{
		AveragePrice:       round2(mean),
		MinPrice:           lo,
		MaxPrice:           hi,
		PriceRange:         round2(hi - lo),
		Volatility:         volatility(prices, mean),
		Trend:              trend(newestFirst),
		Demand:             demand(sales),
		SalesCount:         len(sales),
		RecentTrendPercent: recentTrend(newestFirst),
	}
}

func summarize(prices []float64) (mean, lo, hi float64) {
	lo, hi = prices[0], prices[0]
	var sum float64
	for _, p := range prices {
		sum += p
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return sum / float64(len(prices)), lo, hi
}

// volatility is the population coefficient of variation scaled so a 50%
// CV reads 100.
func volatility(prices []float64, mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	var sq float64
	for _, p := range prices {
		sq += (p - mean) * (p - mean)
	}
	sd := math.Sqrt(sq / float64(len(prices)))
	cv := sd / mean * 100
	return clampScore(math.Round(cv / volatilityFullScale))
}

// trend compares the mean of the newer half against the older half.
func trend(newestFirst []sale) float64 {
	if len(newestFirst) < minTrendSample {
		return 50
	}
	mid := len(newestFirst) / 2
	recent := meanPrice(newestFirst[:mid])
	older := meanPrice(newestFirst[mid:])
	if older <= 0 {
		return 50
	}
	pct := (recent - older) / older * 100
	return clampScore(math.Round(50 + pct*trendPointsPerPercent))
}

// recentTrend is the percent change from the third-newest to the newest
// sale.
func recentTrend(newestFirst []sale) float64 {
	if len(newestFirst) < minTrendSample {
		return 0
	}
	newest, third := newestFirst[0].price, newestFirst[2].price
	if third <= 0 {
		return 0
	}
	return round2((newest - third) / third * 100)
}

// demand scores the sale rate over the observed span. It needs sales on at
// least two distinct days.
func demand(sales []sale) float64 {
	days := make(map[string]struct{})
	var first, last time.Time
	for _, s := range sales {
		if s.at.IsZero() {
			continue
		}
		days[s.at.UTC().Format(time.DateOnly)] = struct{}{}
		if first.IsZero() || s.at.Before(first) {
			first = s.at
		}
		if s.at.After(last) {
			last = s.at
		}
	}
	if len(days) < 2 {
		return 0
	}

	span := math.Ceil(last.Sub(first).Hours() / 24)
	dayRange := math.Max(1, span)
	perDay := float64(len(sales)) / dayRange
	return clampScore(math.Round(perDay / demandFullScale * 100))
}

func meanPrice(sales []sale) float64 {
	if len(sales) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sales {
		sum += s.price
	}
	return sum / float64(len(sales))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

// OverallScore weighs trend, demand and stability into one 0-100 figure.
func OverallScore(m model.MarketMetrics) float64 {
	score := 0.5*m.Trend + 0.3*m.Demand + 0.2*(100-m.Volatility)
	return clampScore(math.Round(score))
}
