package ebay

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/similarity"
)

const DefaultSearchBase = "https://www.ebay.com/sch/i.html"

// DefaultNegativeKeywords are excluded from every search.
var DefaultNegativeKeywords = []string{"lot", "reprint"}

// rawExclusions keep top-grade slabs out of raw searches.
var rawExclusions = []string{"psa 10", "sgc 10", "bgs 9.5"}

// gradingTerms exclude any slab on the stricter raw searches.
var gradingTerms = []string{"psa", "bgs", "sgc", "cgc", "graded"}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// Params are the fixed query-string knobs of the sold-listings search.
type Params struct {
	Category int `yaml:"category" default:"212" validate:"gt=0"`
	Sort     int `yaml:"sort" default:"12"`
	PageSize int `yaml:"page_size" default:"200" validate:"min=1,max=240"`
}

// DefaultParams is the sports-trading-card category, sorted by most
// recently ended, 200 per page.
func DefaultParams() Params {
	return Params{Category: 212, Sort: 12, PageSize: 200}
}

type SearchOptions struct {
	Raw bool
}

// SearchTerms is the keyword part of a search before URL encoding.
type SearchTerms struct {
	Keywords string
	Negative []string
}

// String renders the keywords followed by each exclusion as -term.
func (t SearchTerms) String() string {
	parts := []string{t.Keywords}
	for _, n := range t.Negative {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		parts = append(parts, "-"+n)
	}
	return strings.Join(parts, " ")
}

// BuildSearchTerms converts a target query into marketplace keywords.
func BuildSearchTerms(q model.TargetQuery, opts SearchOptions) SearchTerms {
	var keywords []string
	if strings.TrimSpace(q.Query) != "" {
		keywords = append(keywords, strings.TrimSpace(q.Query))
	} else {
		keywords = appendNonEmpty(keywords, q.PlayerName, q.Year, q.CardSet)
		if n := nonAlnum.ReplaceAllString(q.CardNumber, ""); n != "" {
			keywords = append(keywords, n)
		}
		if !opts.Raw {
			keywords = appendNonEmpty(keywords, q.Variation)
			if q.HasGrade() {
				keywords = append(keywords, strings.TrimSpace(q.Grade))
			}
		}
	}

	negative := mergeKeywords(DefaultNegativeKeywords, q.NegativeKeywords)
	if opts.Raw {
		negative = mergeKeywords(negative, rawExclusions)
	}
	return SearchTerms{Keywords: strings.Join(keywords, " "), Negative: negative}
}

// NegativeKeywords are the title exclusions applied to every result set for q.
func NegativeKeywords(q model.TargetQuery) []string {
	return mergeKeywords(DefaultNegativeKeywords, q.NegativeKeywords)
}

// SearchLadder lists the searches to try in order until one yields
// listings. Graded and free-text queries get a single search. Raw queries
// first ask for "ungraded" explicitly, then drop that keyword, then fall
// back to the bare card keywords and leave slab removal to FilterForTarget.
func SearchLadder(q model.TargetQuery) []SearchTerms {
	if !q.IsRaw() {
		return []SearchTerms{BuildSearchTerms(q, SearchOptions{})}
	}
	raw := BuildSearchTerms(q, SearchOptions{Raw: true})
	strict := SearchTerms{Keywords: raw.Keywords, Negative: mergeKeywords(raw.Negative, gradingTerms)}
	explicit := SearchTerms{Keywords: strings.TrimSpace(raw.Keywords + " ungraded"), Negative: strict.Negative}
	basic := SearchTerms{Keywords: raw.Keywords, Negative: NegativeKeywords(q)}
	return []SearchTerms{explicit, strict, basic}
}

// SearchURL builds the completed-and-sold search URL. The query string is
// emitted in a fixed order.
func SearchURL(base string, terms SearchTerms, p Params) string {
	if base == "" {
		base = DefaultSearchBase
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("?_nkw=")
	b.WriteString(url.QueryEscape(terms.String()))
	b.WriteString("&_sacat=")
	b.WriteString(strconv.Itoa(p.Category))
	b.WriteString("&LH_Complete=1&LH_Sold=1&_sop=")
	b.WriteString(strconv.Itoa(p.Sort))
	b.WriteString("&_ipg=")
	b.WriteString(strconv.Itoa(p.PageSize))
	return b.String()
}

// FilterNegative drops listings whose title contains any keyword as whole
// words, case- and accent-insensitively. "lot" drops "Lot of 5" but keeps
// "Charlotte Hornets".
func FilterNegative(listings []model.RawListing, keywords []string) []model.RawListing {
	var terms []string
	for _, k := range keywords {
		if k = similarity.Normalize(k); k != "" {
			terms = append(terms, " "+k+" ")
		}
	}

	out := make([]model.RawListing, 0, len(listings))
	for _, l := range listings {
		title := " " + similarity.Normalize(l.Title) + " "
		excluded := false
		for _, k := range terms {
			if strings.Contains(title, k) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, l)
		}
	}
	return out
}

var (
	gradedTitle = regexp.MustCompile(`(?i)\b(psa|bgs|sgc|cgc|graded)`)
	gradeToken  = regexp.MustCompile(`(?i)\b(psa|bgs|sgc|cgc)\s*([\d.]+)`)
)

// FilterForTarget keeps listings consistent with the grade the query asks
// for. Raw queries reject slabbed titles; a specific grade such as "PSA 10"
// must appear in the title. Other grades ("any", empty) keep everything.
func FilterForTarget(listings []model.RawListing, q model.TargetQuery) []model.RawListing {
	switch {
	case q.IsRaw():
		return keep(listings, func(l model.RawListing) bool {
			return !gradedTitle.MatchString(l.Title)
		})
	case q.HasGrade():
		want := normalizeGrade(q.Grade)
		if want == "" {
			return listings
		}
		return keep(listings, func(l model.RawListing) bool {
			for _, m := range gradeToken.FindAllStringSubmatch(l.Title, -1) {
				if strings.ToLower(m[1])+" "+m[2] == want {
					return true
				}
			}
			return false
		})
	default:
		return listings
	}
}

// normalizeGrade turns "PSA10", "psa 10" into "psa 10".
func normalizeGrade(g string) string {
	m := gradeToken.FindStringSubmatch(g)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1]) + " " + m[2]
}

func keep(listings []model.RawListing, pred func(model.RawListing) bool) []model.RawListing {
	out := make([]model.RawListing, 0, len(listings))
	for _, l := range listings {
		if pred(l) {
			out = append(out, l)
		}
	}
	return out
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

// mergeKeywords concatenates keyword lists, dropping blanks and
// case-insensitive duplicates.
func mergeKeywords(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, k := range list {
			k = strings.TrimSpace(k)
			key := strings.ToLower(k)
			if k == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, k)
		}
	}
	return out
}
