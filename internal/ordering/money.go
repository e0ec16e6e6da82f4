package ordering

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dollarsToCents converts a dollar amount from a JSON number to integer cents.
func dollarsToCents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// parsePriceCents parses display prices such as "$1,234.56" into cents.
func parsePriceCents(raw string) (int64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	if cleaned == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), true
}

// numberToCents converts a JSON number or numeric string of dollars to cents.
func numberToCents(n json.Number) (int64, bool) {
	if n == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, false
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), true
}

// numberToInt accepts the integer, float, and numeric-string shapes the
// portals use for quantities.
func numberToInt(n json.Number) int {
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}

// centsFromRaw handles price fields that arrive as either a formatted string
// ("$45.14") or a plain number (45.14) depending on the endpoint.
func centsFromRaw(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return parsePriceCents(asString)
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return dollarsToCents(asNumber), true
	}
	return 0, false
}

var platformDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parsePlatformDate accepts the date shapes the portals emit.
func parsePlatformDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range platformDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
