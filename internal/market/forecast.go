package market

import (
	"math"
	"sort"

	"github.com/guarzo/cardpulse/internal/model"
)

// Monthly growth assumed when the sample is too thin for a regression.
const (
	rawMonthlyGrowth    = 0.0025
	gradedMonthlyGrowth = 0.01
	rawSlopeDamping     = 0.3
	minPredictionPrice  = 0.01
)

// band is the allowed [lo, hi] multiple of the current price at 30 days;
// 60 and 90 days widen it.
type band struct{ lo, hi float64 }

var (
	rawBand    = band{lo: 0.95, hi: 1.10}
	gradedBand = band{lo: 0.80, hi: 1.30}
)

var horizons = [3]struct {
	days         float64
	loMul, hiMul float64
}{
	{30, 1, 1},
	{60, 0.98, 1.05},
	{90, 0.95, 1.10},
}

// Predict projects prices 30, 60 and 90 days out. A non-positive current
// price yields an all-zero forecast.
func Predict(listings []model.RawListing, currentPrice float64, isRaw bool) model.Forecast {
	if currentPrice <= 0 || math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) {
		return model.Forecast{Method: model.ForecastGrowth, Limited: true}
	}

	sales := usableSales(listings)
	dated := sales[:0:0]
	for _, s := range sales {
		if !s.at.IsZero() {
			dated = append(dated, s)
		}
	}
	if len(dated) < minTrendSample {
		return growthForecast(currentPrice, isRaw)
	}

	sort.SliceStable(dated, func(a, b int) bool { return dated[a].at.Before(dated[b].at) })
	base := dated[0].at
	xs := make([]float64, len(dated))
	ys := make([]float64, len(dated))
	for i, s := range dated {
		xs[i] = s.at.Sub(base).Hours() / 24
		ys[i] = s.price
	}

	slope, intercept, ok := linearFit(xs, ys)
	if !ok {
		return growthForecast(currentPrice, isRaw)
	}
	if isRaw {
		slope *= rawSlopeDamping
	}

	b := gradedBand
	if isRaw {
		b = rawBand
	}
	last := xs[len(xs)-1]

	var out [3]float64
	for i, h := range horizons {
		p := intercept + slope*(last+h.days)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			p = currentPrice
		}
		p = math.Max(minPredictionPrice, p)
		lo := currentPrice * b.lo * h.loMul
		hi := currentPrice * b.hi * h.hiMul
		out[i] = math.Max(lo, math.Min(hi, p))
	}

	return model.Forecast{
		Days30: out[0],
		Days60: out[1],
		Days90: out[2],
		Method: model.ForecastRegression,
	}
}

func growthForecast(p float64, isRaw bool) model.Forecast {
	r := gradedMonthlyGrowth
	if isRaw {
		r = rawMonthlyGrowth
	}
	return model.Forecast{
		Days30:  round2(p * (1 + r)),
		Days60:  round2(p * (1 + 2*r)),
		Days90:  round2(p * (1 + 3*r)),
		Method:  model.ForecastGrowth,
		Limited: true,
	}
}

// linearFit is ordinary least squares of ys on xs. When every x is the same
// the slope is 0 and the intercept is the mean. ok is false for non-finite
// results.
func linearFit(xs, ys []float64) (slope, intercept float64, ok bool) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}
	intercept = (sumY - slope*sumX) / n

	for _, v := range []float64{slope, intercept} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, false
		}
	}
	return slope, intercept, true
}

// Bounds returns the clamp band for a horizon index (0, 1, 2 for 30, 60,
// 90 days) around currentPrice.
func Bounds(currentPrice float64, isRaw bool, horizon int) (lo, hi float64) {
	b := gradedBand
	if isRaw {
		b = rawBand
	}
	h := horizons[horizon]
	return currentPrice * b.lo * h.loMul, currentPrice * b.hi * h.hiMul
}
