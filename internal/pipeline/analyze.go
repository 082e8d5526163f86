package pipeline

import (
	"time"

	"github.com/guarzo/cardpulse/internal/market"
	"github.com/guarzo/cardpulse/internal/model"
)

// Analysis is the market read on one variant group.
type Analysis struct {
	Metrics        model.MarketMetrics  `json:"metrics"`
	Forecast       model.Forecast       `json:"forecast"`
	Recommendation model.Recommendation `json:"recommendation"`
	Score          float64              `json:"score"`
	LimitedData    bool                 `json:"limitedData"`
}

// Analyze computes metrics, a forecast anchored at the group's average
// price, and a recommendation for the given expected ROI (percent).
func Analyze(group model.VariantGroup, roi float64, isRaw bool) Analysis {
	m := market.ComputeMetrics(group.Members)

	current := group.AveragePrice
	if current <= 0 {
		current = m.AveragePrice
	}
	f := market.Predict(group.Members, current, isRaw)

	return Analysis{
		Metrics:        m,
		Forecast:       f,
		Recommendation: market.Recommend(m, roi),
		Score:          market.OverallScore(m),
		LimitedData:    f.Limited,
	}
}

// Analyze is the package-level Analyze with stage timing.
func (s *Service) Analyze(group model.VariantGroup, roi float64, isRaw bool) Analysis {
	defer s.recorder.ObserveStage(StageAnalyze, time.Now())
	a := Analyze(group, roi, isRaw)
	s.log.Debug().
		Str("group", group.ID).
		Int("sales", a.Metrics.SalesCount).
		Str("action", string(a.Recommendation.Action)).
		Bool("limited", a.LimitedData).
		Msg("analyzed group")
	return a
}
