// Package similarity scores how alike two listing titles are.
package similarity

import (
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/guarzo/cardpulse/internal/model"
)

// Thresholds are calibration constants for matching and grouping. They were
// tuned against sold-listing titles and can be overridden from config.
type Thresholds struct {
	// MinOverlap is the token overlap a standard-mode candidate must exceed.
	MinOverlap float64 `yaml:"min_overlap" default:"0.6" validate:"gte=0,lte=1"`
	// FuzzyAccept is the Dice score at which a title matches the target.
	FuzzyAccept float64 `yaml:"fuzzy_accept" default:"0.85" validate:"gte=0,lte=1"`
	// PriceBand is the relative price difference a standard-mode candidate
	// must stay under.
	PriceBand float64 `yaml:"price_band" default:"0.5" validate:"gt=0,lte=1"`
	// RawPriceBand is PriceBand for raw cards, tighter because raw sales
	// mix conditions.
	RawPriceBand float64 `yaml:"raw_price_band" default:"0.4" validate:"gt=0,lte=1"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOverlap:   0.6,
		FuzzyAccept:  0.85,
		PriceBand:    0.5,
		RawPriceBand: 0.4,
	}
}

// VariationTerms must agree in presence for two raw titles to be the same
// card.
var VariationTerms = []string{
	"auto", "autograph", "canvas", "parallel", "press proof",
	"gold", "silver", "red", "blue", "pink", "green",
}

// Normalize lowercases s, folds accents ("Dončić" -> "doncic"), drops
// everything except letters, digits and spaces, and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(foldAccents(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// foldAccents strips combining marks after canonical decomposition. A
// transform.Chain holds state, so each call builds its own.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens returns the distinct normalized tokens longer than three
// characters.
func Tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(Normalize(s)) {
		if len(tok) > 3 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// TokenOverlap is the number of shared significant tokens divided by the
// size of the smaller token set. 0 when either side has none.
func TokenOverlap(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	small, large := ta, tb
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

var dice = metrics.NewSorensenDice()

// Fuzzy is the Sørensen–Dice bigram similarity of the normalized strings.
func Fuzzy(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		if na == "" {
			return 0
		}
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	return strutil.Similarity(na, nb, dice)
}

// Keywords joins the non-empty descriptive fields of q.
func Keywords(q model.TargetQuery) string {
	var parts []string
	for _, v := range []string{q.PlayerName, q.Year, q.CardSet, q.Variation, q.Grade} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(q.Query)
	}
	return strings.Join(parts, " ")
}

// Matcher applies Thresholds to target matching.
type Matcher struct {
	th Thresholds
}

func NewMatcher(th Thresholds) *Matcher {
	return &Matcher{th: th}
}

// MatchesTarget reports whether title is close enough to the query's
// keywords.
func (m *Matcher) MatchesTarget(title string, q model.TargetQuery) bool {
	kw := Keywords(q)
	if kw == "" {
		return false
	}
	return Fuzzy(title, kw) >= m.th.FuzzyAccept
}

// MatchesTarget uses DefaultThresholds.
func MatchesTarget(title string, q model.TargetQuery) bool {
	return NewMatcher(DefaultThresholds()).MatchesTarget(title, q)
}

// RawAttributesMatch decides whether two raw-card titles describe the same
// card: every player token in both, year and set presence agreeing, and
// each variation term present in both or neither.
func RawAttributesMatch(a, b string, q model.TargetQuery) bool {
	na, nb := " "+Normalize(a)+" ", " "+Normalize(b)+" "

	for _, tok := range strings.Fields(Normalize(q.PlayerName)) {
		if !strings.Contains(na, tok) || !strings.Contains(nb, tok) {
			return false
		}
	}

	if y := Normalize(q.Year); y != "" {
		if strings.Contains(na, y) != strings.Contains(nb, y) {
			return false
		}
	}
	if s := Normalize(q.CardSet); s != "" {
		if strings.Contains(na, s) != strings.Contains(nb, s) {
			return false
		}
	}

	for _, term := range VariationTerms {
		w := " " + term + " "
		if strings.Contains(na, w) != strings.Contains(nb, w) {
			return false
		}
	}
	return true
}
