package market

// GradingCosts are the fixed costs of sending a raw card for grading and
// reselling the slab.
type GradingCosts struct {
	GradingFee     float64 `yaml:"grading_fee" json:"gradingFee" default:"50" validate:"gte=0"`
	ShipToGrader   float64 `yaml:"ship_to_grader" json:"shipToGrader" default:"15" validate:"gte=0"`
	ShipToBuyer    float64 `yaml:"ship_to_buyer" json:"shipToBuyer" default:"5" validate:"gte=0"`
	MarketplaceFee float64 `yaml:"marketplace_fee" json:"marketplaceFee" default:"0.13" validate:"gte=0,lt=1"`
}

func DefaultGradingCosts() GradingCosts {
	return GradingCosts{GradingFee: 50, ShipToGrader: 15, ShipToBuyer: 5, MarketplaceFee: 0.13}
}

// GradeOdds are the probabilities of landing each grade.
type GradeOdds struct {
	PSA9  float64 `yaml:"psa9" json:"psa9" default:"0.6" validate:"gte=0,lte=1"`
	PSA10 float64 `yaml:"psa10" json:"psa10" default:"0.15" validate:"gte=0,lte=1"`
}

func DefaultGradeOdds() GradeOdds {
	return GradeOdds{PSA9: 0.60, PSA10: 0.15}
}

// GradingEstimate is the expected outcome of a grading submission.
type GradingEstimate struct {
	TotalCost      float64 `json:"totalCost"`
	ExpectedValue  float64 `json:"expectedValue"`
	MarketplaceFee float64 `json:"marketplaceFee"`
	ExpectedProfit float64 `json:"expectedProfit"`
	ROI            float64 `json:"roi"`
	PSA9Profit     float64 `json:"psa9Profit"`
	PSA10Profit    float64 `json:"psa10Profit"`
}

// GradingProfit estimates what grading a raw card bought at rawPrice would
// return given the market prices of PSA 9 and PSA 10 copies.
func GradingProfit(rawPrice, psa9Price, psa10Price float64, odds GradeOdds, costs GradingCosts) GradingEstimate {
	expected := psa9Price*odds.PSA9 + psa10Price*odds.PSA10
	total := rawPrice + costs.GradingFee + costs.ShipToGrader + costs.ShipToBuyer
	net := 1 - costs.MarketplaceFee

	profit := expected*net - total
	var roi float64
	if total > 0 {
		roi = profit / total * 100
	}

	return GradingEstimate{
		TotalCost:      round2(total),
		ExpectedValue:  round2(expected),
		MarketplaceFee: round2(expected * costs.MarketplaceFee),
		ExpectedProfit: round2(profit),
		ROI:            round2(roi),
		PSA9Profit:     round2(psa9Price*net - total),
		PSA10Profit:    round2(psa10Price*net - total),
	}
}
