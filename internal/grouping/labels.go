package grouping

import (
	"regexp"
	"strings"

	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/similarity"
)

const maxLabelTitle = 60

var gradePattern = regexp.MustCompile(`(?i)\b(psa|bgs|sgc|cgc)\s*(\d+(?:\.\d+)?)`)

type keyword struct {
	term, label string
}

// variationKeywords are checked in order; the first hit names the variant.
var variationKeywords = []keyword{
	{"refractor", "Refractor"},
	{"parallel", "Parallel"},
	{"preview", "Preview"},
	{"canvas", "Canvas"},
	{"optic", "Optic"},
	{"press proof", "Press Proof"},
	{"auto", "Autograph"},
	{"autograph", "Autograph"},
	{"patch", "Patch"},
	{"jersey", "Jersey"},
	{"relic", "Relic"},
	{"negative", "Negative"},
	{"holo", "Holo"},
	{"die cut", "Die Cut"},
}

// colorKeywords are only consulted when no variation keyword matched.
var colorKeywords = []keyword{
	{"gold", "Gold"},
	{"silver", "Silver"},
	{"blue", "Blue"},
	{"red", "Red"},
	{"green", "Green"},
	{"yellow", "Yellow"},
	{"pink", "Pink"},
	{"purple", "Purple"},
	{"orange", "Orange"},
	{"black", "Black"},
}

var gradingWords = []string{"psa", "bgs", "sgc", "cgc", "graded"}

// DetectGrade returns "PSA 10" style grades, "Raw" when the title says so,
// "Raw/Ungraded" when no grading is mentioned at all, and "" for graded
// titles without a readable number.
func DetectGrade(title string) string {
	if m := gradePattern.FindStringSubmatch(title); m != nil {
		return strings.ToUpper(m[1]) + " " + m[2]
	}
	words := wordSet(title)
	for _, w := range gradingWords {
		if words.has(w) {
			return ""
		}
	}
	if words.has("raw") || words.has("ungraded") {
		return "Raw"
	}
	return "Raw/Ungraded"
}

// DetectVariation returns the label of the first variation keyword in
// title, else the first color, else "".
func DetectVariation(title string) string {
	words := wordSet(title)
	for _, k := range variationKeywords {
		if words.has(k.term) {
			return k.label
		}
	}
	for _, k := range colorKeywords {
		if words.has(k.term) {
			return k.label
		}
	}
	return ""
}

// Label names a group from the query's card fields plus the grade and
// variant read off its representative title. Free-text queries fall back
// to the shortened title.
func Label(q model.TargetQuery, title string) string {
	if !q.Structured() {
		return Truncate(title, maxLabelTitle)
	}

	parts := []string{strings.TrimSpace(q.PlayerName)}
	if y := strings.TrimSpace(q.Year); y != "" {
		parts = append(parts, y)
	}
	if s := strings.TrimSpace(q.CardSet); s != "" {
		parts = append(parts, s)
	}
	if n := strings.TrimPrefix(strings.TrimSpace(q.CardNumber), "#"); n != "" {
		parts = append(parts, "#"+n)
	}
	if g := DetectGrade(title); g != "" {
		parts = append(parts, g)
	}
	if v := DetectVariation(title); v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

// Truncate shortens s to max runes followed by "...".
func Truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}

// words is a normalized title padded with spaces so multi-word terms can
// be matched on word boundaries.
type words string

func wordSet(title string) words {
	return words(" " + similarity.Normalize(title) + " ")
}

func (w words) has(term string) bool {
	return strings.Contains(string(w), " "+term+" ")
}
