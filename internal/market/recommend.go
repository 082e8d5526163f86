package market

import (
	"fmt"

	"github.com/guarzo/cardpulse/internal/model"
)

// Recommend maps metrics and the holder's ROI percent to an action. Rules
// are evaluated in order and the first match wins.
func Recommend(m model.MarketMetrics, roi float64) model.Recommendation {
	switch {
	case m.SalesCount == 0:
		return model.Recommendation{
			Action:  model.ActionWatch,
			Reason:  "Insufficient data to make a recommendation.",
			Details: "No usable sales were found. Research this card further before making decisions.",
		}
	case m.Trend > 70 && roi > 20:
		return model.Recommendation{
			Action: model.ActionBuy,
			Reason: "Strong upward trend with a healthy return.",
			Details: fmt.Sprintf("Prices are rising (trend %.0f) and your ROI is %.1f%%. Demand is %.0f with volatility %.0f.",
				m.Trend, roi, m.Demand, m.Volatility),
		}
	case m.Trend < 40 && roi < 0:
		return model.Recommendation{
			Action: model.ActionSell,
			Reason: "Falling market while the position is under water.",
			Details: fmt.Sprintf("The trend has weakened to %.0f and your ROI is %.1f%%. Further declines would deepen the loss.",
				m.Trend, roi),
		}
	case m.Demand > 70 && m.Volatility < 40:
		return model.Recommendation{
			Action: model.ActionHold,
			Reason: "Steady demand with stable prices.",
			Details: fmt.Sprintf("Demand is strong (%.0f) and prices are stable (volatility %.0f). The card should remain easy to sell.",
				m.Demand, m.Volatility),
		}
	case m.Trend >= 45 && m.Trend <= 55:
		return model.Recommendation{
			Action: model.ActionHold,
			Reason: "Flat market with no strong signal either way.",
			Details: fmt.Sprintf("Trend %.0f, demand %.0f, volatility %.0f. Holding is reasonable until a clearer direction emerges.",
				m.Trend, m.Demand, m.Volatility),
		}
	default:
		return model.Recommendation{
			Action: model.ActionWatch,
			Reason: "Mixed signals.",
			Details: fmt.Sprintf("Trend %.0f, demand %.0f, volatility %.0f and ROI %.1f%% do not point in one direction. Keep watching recent sales.",
				m.Trend, m.Demand, m.Volatility, roi),
		}
	}
}
