package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/guarzo/cardpulse/internal/market"
	"github.com/guarzo/cardpulse/internal/model"
)

// ErrNoRawSales is returned by GradingOutlook when the ungraded card has no
// recent sales to price the submission from.
var ErrNoRawSales = errors.New("no raw sales to price from")

// GradingOutlook is the grading decision for one card.
type GradingOutlook struct {
	RawPrice   float64                `json:"rawPrice"`
	PSA9Price  float64                `json:"psa9Price"`
	PSA10Price float64                `json:"psa10Price"`
	Estimate   market.GradingEstimate `json:"estimate"`
}

// GradingOutlook prices q as a raw card, a PSA 9 and a PSA 10, then
// estimates the profit of buying it raw and submitting it. Each price is
// the average of the largest matching group; a slab grade with no sales
// counts as zero.
func (s *Service) GradingOutlook(ctx context.Context, q model.TargetQuery, odds market.GradeOdds, costs market.GradingCosts) (*GradingOutlook, error) {
	grades := []string{"Raw", "PSA 9", "PSA 10"}
	queries := make([]model.TargetQuery, len(grades))
	for i, g := range grades {
		queries[i] = q
		queries[i].Grade = g
	}

	var prices [3]float64
	for i, r := range s.SearchMany(ctx, queries) {
		if r.Err != nil {
			return nil, fmt.Errorf("price %s: %w", grades[i], r.Err)
		}
		if len(r.Result.Groups) > 0 {
			prices[i] = r.Result.Groups[0].AveragePrice
		}
	}
	if prices[0] <= 0 {
		return nil, ErrNoRawSales
	}

	return &GradingOutlook{
		RawPrice:   prices[0],
		PSA9Price:  prices[1],
		PSA10Price: prices[2],
		Estimate:   market.GradingProfit(prices[0], prices[1], prices[2], odds, costs),
	}, nil
}
