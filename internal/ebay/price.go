package ebay

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	dollarAmount = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	bareAmount   = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)
)

// Values that show up on joke or test listings and never reflect a sale.
var bogusPrices = []decimal.Decimal{
	decimal.RequireFromString("12345.67"),
	decimal.RequireFromString("99999.99"),
	decimal.RequireFromString("11111.11"),
	decimal.RequireFromString("88888.88"),
}

// ParsePrice extracts the first amount from a price string. "$1,234.50"
// gives 1234.50 and a range "$10.00 to $20.00" gives 10.00. ok is false
// when no amount is present or the amount is not a plausible sale price.
func ParsePrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	var raw string
	if m := dollarAmount.FindStringSubmatch(s); m != nil {
		raw = m[1]
	} else {
		raw = bareAmount.FindString(s)
	}
	if raw == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	if !plausiblePrice(d) {
		return decimal.Zero, false
	}
	return d, true
}

// ParseShipping returns the shipping cost, 0 for free or unparseable text.
func ParseShipping(s string) decimal.Decimal {
	lower := strings.ToLower(s)
	if strings.Contains(lower, "free") {
		return decimal.Zero
	}
	d, ok := ParsePrice(s)
	if !ok {
		return decimal.Zero
	}
	return d
}

func plausiblePrice(d decimal.Decimal) bool {
	if d.IsNegative() {
		return false
	}
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	if strings.Contains(d.StringFixed(2), "69420") {
		return false
	}
	for _, b := range bogusPrices {
		if d.Sub(b).Abs().LessThan(decimal.New(1, -2)) {
			return false
		}
	}
	return true
}
