package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TargetQuery is the search intent for one analysis run.
// Either Query (free text) or PlayerName (structured mode) must be set.
type TargetQuery struct {
	Query            string   `json:"query,omitempty" yaml:"query" validate:"required_without=PlayerName"`
	PlayerName       string   `json:"playerName,omitempty" yaml:"player_name" validate:"required_without=Query"`
	Year             string   `json:"year,omitempty" yaml:"year" validate:"omitempty,numeric,len=4"`
	CardSet          string   `json:"cardSet,omitempty" yaml:"card_set"`
	CardNumber       string   `json:"cardNumber,omitempty" yaml:"card_number"`
	Variation        string   `json:"variation,omitempty" yaml:"variation"`
	Grade            string   `json:"grade,omitempty" yaml:"grade"`
	NegativeKeywords []string `json:"negKeywords,omitempty" yaml:"negative_keywords" validate:"dive,max=64"`
}

// IsRaw reports whether the query targets ungraded cards.
func (q TargetQuery) IsRaw() bool {
	g := strings.ToLower(strings.TrimSpace(q.Grade))
	return g == "raw" || g == "ungraded"
}

// HasGrade reports whether a specific grade (not raw, not "any") was requested.
func (q TargetQuery) HasGrade() bool {
	g := strings.ToLower(strings.TrimSpace(q.Grade))
	return g != "" && g != "any" && !q.IsRaw()
}

// Structured reports whether the query carries card attributes rather than free text.
func (q TargetQuery) Structured() bool {
	return strings.TrimSpace(q.PlayerName) != ""
}

type SaleStatus string

const (
	StatusSold    SaleStatus = "Sold"
	StatusUnknown SaleStatus = "Unknown"
)

// RawListing is one scraped marketplace item. Created once by the extractor,
// never mutated afterwards.
type RawListing struct {
	Title           string          `json:"title"`
	Price           decimal.Decimal `json:"price"`
	Shipping        decimal.Decimal `json:"shipping"`
	SoldDate        time.Time       `json:"soldDate"`
	DateIsEstimated bool            `json:"dateIsEstimated"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	SourceURL       string          `json:"sourceUrl,omitempty"`
	Condition       string          `json:"condition,omitempty"`
	Status          SaleStatus      `json:"status"`
}

// TotalPrice is price plus shipping.
func (l RawListing) TotalPrice() decimal.Decimal {
	return l.Price.Add(l.Shipping)
}

// TotalFloat is TotalPrice as a float64 for statistics.
func (l RawListing) TotalFloat() float64 {
	return l.TotalPrice().InexactFloat64()
}

// VariantGroup is a cluster of listings judged to be the same card/grade.
type VariantGroup struct {
	ID                  string       `json:"id"`
	Label               string       `json:"label"`
	RepresentativeTitle string       `json:"representativeTitle"`
	ImageURL            string       `json:"imageUrl,omitempty"`
	Grade               string       `json:"grade,omitempty"`
	Members             []RawListing `json:"members"`
	AveragePrice        float64      `json:"averagePrice"`
	MinPrice            float64      `json:"minPrice"`
	MaxPrice            float64      `json:"maxPrice"`
	Count               int          `json:"count"`
}

// MarketMetrics are derived per call and never persisted.
type MarketMetrics struct {
	AveragePrice       float64 `json:"averagePrice"`
	MinPrice           float64 `json:"minPrice"`
	MaxPrice           float64 `json:"maxPrice"`
	PriceRange         float64 `json:"priceRange"`
	Volatility         float64 `json:"volatility"` // 0-100
	Trend              float64 `json:"trend"`      // 0-100, 50 = flat
	Demand             float64 `json:"demand"`     // 0-100
	SalesCount         int     `json:"salesCount"`
	RecentTrendPercent float64 `json:"recentTrendPercent"`
}

// NeutralMetrics is the result for an empty sample.
func NeutralMetrics() MarketMetrics {
	return MarketMetrics{Trend: 50}
}

type ForecastMethod string

const (
	ForecastGrowth     ForecastMethod = "growth"
	ForecastRegression ForecastMethod = "regression"
)

type Forecast struct {
	Days30  float64        `json:"days30"`
	Days60  float64        `json:"days60"`
	Days90  float64        `json:"days90"`
	Method  ForecastMethod `json:"method"`
	Limited bool           `json:"limited"` // thin sample, conservative growth assumption
}

type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionHold  Action = "HOLD"
	ActionWatch Action = "WATCH"
)

type Recommendation struct {
	Action  Action `json:"action"`
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}
