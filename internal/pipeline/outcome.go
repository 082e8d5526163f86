package pipeline

import (
	"errors"

	"github.com/guarzo/cardpulse/internal/market"
)

// OutcomeKind is what a caller should tell the user about a search.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	// OutcomeRetryLater means the site could not be reached.
	OutcomeRetryLater
	// OutcomeNoResults means the site answered but nothing matched.
	OutcomeNoResults
	// OutcomeLimitedData means results exist but the leading group is too
	// small for a regression forecast.
	OutcomeLimitedData
)

func (o OutcomeKind) String() string {
	switch o {
	case OutcomeRetryLater:
		return "retry_later"
	case OutcomeNoResults:
		return "no_results"
	case OutcomeLimitedData:
		return "limited_data"
	default:
		return "ok"
	}
}

// Message is the user-facing text for the outcome.
func (o OutcomeKind) Message() string {
	switch o {
	case OutcomeRetryLater:
		return "could not reach the marketplace, try again later"
	case OutcomeNoResults:
		return "no matching sales found, consider broadening your search"
	case OutcomeLimitedData:
		return "limited data, showing a conservative estimate"
	default:
		return ""
	}
}

// Outcome classifies a Search return. Other than ErrNoRawSales every error
// counts as a fetch failure, since Search only fails when a page could not
// be retrieved.
func Outcome(err error, res *SearchResult) OutcomeKind {
	switch {
	case errors.Is(err, ErrNoRawSales):
		return OutcomeNoResults
	case err != nil:
		return OutcomeRetryLater
	case res == nil || res.Empty || len(res.Groups) == 0:
		return OutcomeNoResults
	}
	top := res.Groups[0]
	if market.Predict(top.Members, top.AveragePrice, res.Query.IsRaw()).Limited {
		return OutcomeLimitedData
	}
	return OutcomeOK
}
