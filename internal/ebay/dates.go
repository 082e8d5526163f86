package ebay

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// estimateWindow bounds the fallback date for listings whose sold date
// cannot be read.
const estimateWindow = 30 * 24 * time.Hour

var (
	relativeAgo  = regexp.MustCompile(`^(\d+)\s*(d|days?|h|hrs?|hours?|m|mins?|minutes?)\s+ago$`)
	soldPrefixes = []string{"sold", "ended", "date sold:", ":"}
)

var dateLayouts = []string{
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan-02 15:04",
	"Jan 2",
	time.RFC3339,
}

// ParseSoldDate reads the sold/ended date text from a result card. When no
// known form matches it returns a date drawn uniformly from the 30 days
// before now and estimated=true. rnd may be nil.
func ParseSoldDate(s string, now time.Time, rnd *rand.Rand) (t time.Time, estimated bool) {
	text := strings.TrimSpace(s)
	lower := strings.ToLower(text)
	for _, p := range soldPrefixes {
		if strings.HasPrefix(lower, p) {
			text = strings.TrimSpace(text[len(p):])
			lower = strings.ToLower(text)
		}
	}

	if text != "" {
		if d, ok := parseRelative(lower, now); ok {
			return d, false
		}
		for _, layout := range dateLayouts {
			d, err := time.ParseInLocation(layout, text, now.Location())
			if err != nil {
				continue
			}
			if d.Year() == 0 {
				d = yearless(d, now)
			}
			return d, false
		}
	}

	return estimatedDate(now, rnd), true
}

func parseRelative(lower string, now time.Time) (time.Time, bool) {
	m := relativeAgo.FindStringSubmatch(lower)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	switch m[2][0] {
	case 'd':
		return now.AddDate(0, 0, -n), true
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), true
	default:
		return now.Add(-time.Duration(n) * time.Minute), true
	}
}

// yearless places a month/day in the current year, or last year when that
// would put the sale in the future.
func yearless(d, now time.Time) time.Time {
	d = time.Date(now.Year(), d.Month(), d.Day(), d.Hour(), d.Minute(), 0, 0, now.Location())
	if d.After(now) {
		d = d.AddDate(-1, 0, 0)
	}
	return d
}

func estimatedDate(now time.Time, rnd *rand.Rand) time.Time {
	var back time.Duration
	if rnd != nil {
		back = time.Duration(rnd.Int64N(int64(estimateWindow) + 1))
	} else {
		back = rand.N(estimateWindow + 1)
	}
	return now.Add(-back)
}
