// Package units normalizes ingredient quantities across distributor catalogs.
//
// Quantities reduce to three base units: grams for weight, milliliters for
// volume and "each" for counts. Pack descriptions such as "36/1LB" or
// "9/1/2GAL" parse into a PackInfo so prices can be compared per base unit.
package units

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// BaseUnit is the canonical storage unit for an ingredient.
type BaseUnit string

const (
	Gram       BaseUnit = "g"
	Milliliter BaseUnit = "ml"
	Each       BaseUnit = "each"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var weightToGrams = map[string]decimal.Decimal{
	"g":         dec("1"),
	"gram":      dec("1"),
	"grams":     dec("1"),
	"kg":        dec("1000"),
	"kilogram":  dec("1000"),
	"kilograms": dec("1000"),
	"oz":        dec("28.3495"),
	"ounce":     dec("28.3495"),
	"ounces":    dec("28.3495"),
	"lb":        dec("453.592"),
	"lbs":       dec("453.592"),
	"pound":     dec("453.592"),
	"pounds":    dec("453.592"),
	"#":         dec("453.592"),
}

var volumeToML = map[string]decimal.Decimal{
	"ml":           dec("1"),
	"milliliter":   dec("1"),
	"milliliters":  dec("1"),
	"l":            dec("1000"),
	"liter":        dec("1000"),
	"liters":       dec("1000"),
	"litre":        dec("1000"),
	"litres":       dec("1000"),
	"fl oz":        dec("29.5735"),
	"floz":         dec("29.5735"),
	"fluid ounce":  dec("29.5735"),
	"fluid ounces": dec("29.5735"),
	"cup":          dec("236.588"),
	"cups":         dec("236.588"),
	"c":            dec("236.588"),
	"pt":           dec("473.176"),
	"pint":         dec("473.176"),
	"pints":        dec("473.176"),
	"qt":           dec("946.353"),
	"quart":        dec("946.353"),
	"quarts":       dec("946.353"),
	"gal":          dec("3785.41"),
	"gallon":       dec("3785.41"),
	"gallons":      dec("3785.41"),
	"tbsp":         dec("14.7868"),
	"tablespoon":   dec("14.7868"),
	"tablespoons":  dec("14.7868"),
	"tsp":          dec("4.92892"),
	"teaspoon":     dec("4.92892"),
	"teaspoons":    dec("4.92892"),
}

var countUnits = map[string]decimal.Decimal{
	"ea":     dec("1"),
	"each":   dec("1"),
	"ct":     dec("1"),
	"count":  dec("1"),
	"pc":     dec("1"),
	"piece":  dec("1"),
	"pieces": dec("1"),
	"unit":   dec("1"),
	"units":  dec("1"),
	"dz":     dec("12"),
	"doz":    dec("12"),
	"dozen":  dec("12"),
}

// NormalizeUnit lowercases and strips separators so raw invoice units match
// the lookup tables.
func NormalizeUnit(unit string) string {
	n := strings.ToLower(strings.TrimSpace(unit))
	n = strings.ReplaceAll(n, "-", " ")
	n = strings.ReplaceAll(n, "_", " ")
	return n
}

// UnitType classifies a unit string, returning false when unknown.
func UnitType(unit string) (BaseUnit, bool) {
	n := NormalizeUnit(unit)
	if _, ok := weightToGrams[n]; ok {
		return Gram, true
	}
	if _, ok := volumeToML[n]; ok {
		return Milliliter, true
	}
	if _, ok := countUnits[n]; ok {
		return Each, true
	}
	return "", false
}

// ToBaseUnit converts quantity in the given unit to its base unit. The second
// return is false when the unit is not recognized for that base.
func ToBaseUnit(quantity decimal.Decimal, unit string, base BaseUnit) (decimal.Decimal, bool) {
	n := NormalizeUnit(unit)
	var factor decimal.Decimal
	var ok bool
	switch base {
	case Gram:
		factor, ok = weightToGrams[n]
	case Milliliter:
		factor, ok = volumeToML[n]
	case Each:
		factor, ok = countUnits[n]
	}
	if !ok {
		return decimal.Zero, false
	}
	return quantity.Mul(factor), true
}

// Unit alternations ordered longest-first so GAL matches before G, LB before L.
const unitPattern = `GAL|GALLON|QT|QUART|PT|PINT|ML|LB|OZ|KG|G|L`

// "9/1/2GAL" = 9 packs of 1/2 gallon.
var fractionPackPattern = regexp.MustCompile(`(?i)(\d+)\s*/\s*(\d+)\s*/\s*(\d+)\s*(` + unitPattern + `)`)

var packPatterns = []*regexp.Regexp{
	// "36/1LB" or "36/1 LB"
	regexp.MustCompile(`(?i)(\d+)\s*/\s*(\d+\.?\d*)\s*(` + unitPattern + `)`),
	// "36X1LB" or "36 X 1LB"
	regexp.MustCompile(`(?i)(\d+)\s*[Xx]\s*(\d+\.?\d*)\s*(` + unitPattern + `)`),
	// "15DZ"
	regexp.MustCompile(`(?i)(\d+)\s*(DZ|DOZ|DOZEN)`),
	// "10LB CS" standalone quantity+unit
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(` + unitPattern + `)\s*(CS|CASE|BX|BOX|PK|PACK)?`),
	// "4CT"
	regexp.MustCompile(`(?i)(\d+)\s*(CT|EA|PC|EACH)`),
}

// PackInfo is the parsed pack configuration from a product description.
type PackInfo struct {
	PackQuantity   decimal.Decimal // units in the pack, e.g. 36
	UnitQuantity   decimal.Decimal // size per unit, e.g. 1
	Unit           string          // source unit, e.g. "LB"
	TotalBaseUnits decimal.Decimal // total in base units, e.g. 16329 grams
	BaseUnit       BaseUnit
}

// TotalQuantity is the pack total in source units.
func (p PackInfo) TotalQuantity() decimal.Decimal {
	return p.PackQuantity.Mul(p.UnitQuantity)
}

// ParsePackDescription extracts the pack configuration from a distributor
// description like "BUTTER AA 36/1LB CS". Returns false when nothing matched.
func ParsePackDescription(description string) (PackInfo, bool) {
	upper := strings.ToUpper(description)

	if m := fractionPackPattern.FindStringSubmatch(upper); m != nil {
		packQty := dec(m[1])
		numerator := dec(m[2])
		denominator := dec(m[3])
		if !denominator.IsZero() {
			unitQty := numerator.Div(denominator)
			if info, ok := buildMeasuredPack(packQty, unitQty, m[4]); ok {
				return info, true
			}
		}
	}

	for _, pattern := range packPatterns {
		m := pattern.FindStringSubmatch(upper)
		if m == nil {
			continue
		}

		switch {
		case isCountToken(m[2]):
			packQty := dec(m[1])
			if isDozenToken(m[2]) {
				unitQty := dec("12")
				return PackInfo{
					PackQuantity:   packQty,
					UnitQuantity:   unitQty,
					Unit:           string(Each),
					TotalBaseUnits: packQty.Mul(unitQty),
					BaseUnit:       Each,
				}, true
			}
			return PackInfo{
				PackQuantity:   packQty,
				UnitQuantity:   dec("1"),
				Unit:           string(Each),
				TotalBaseUnits: packQty,
				BaseUnit:       Each,
			}, true

		case strings.Contains(m[0], "/") || strings.ContainsAny(m[0], "Xx"):
			// "36/1LB" or "36X1LB"
			if info, ok := buildMeasuredPack(dec(m[1]), dec(m[2]), m[3]); ok {
				return info, true
			}

		default:
			// "10LB CS": one pack of 10 lb
			if info, ok := buildMeasuredPack(dec("1"), dec(m[1]), m[2]); ok {
				return info, true
			}
		}
	}

	return PackInfo{}, false
}

func buildMeasuredPack(packQty, unitQty decimal.Decimal, unit string) (PackInfo, bool) {
	n := NormalizeUnit(unit)
	total := packQty.Mul(unitQty)

	if factor, ok := weightToGrams[n]; ok {
		return PackInfo{
			PackQuantity:   packQty,
			UnitQuantity:   unitQty,
			Unit:           unit,
			TotalBaseUnits: total.Mul(factor),
			BaseUnit:       Gram,
		}, true
	}
	if factor, ok := volumeToML[n]; ok {
		return PackInfo{
			PackQuantity:   packQty,
			UnitQuantity:   unitQty,
			Unit:           unit,
			TotalBaseUnits: total.Mul(factor),
			BaseUnit:       Milliliter,
		}, true
	}
	return PackInfo{}, false
}

func isCountToken(tok string) bool {
	switch strings.ToUpper(tok) {
	case "DZ", "DOZ", "DOZEN", "CT", "EA", "PC", "EACH":
		return true
	}
	return false
}

func isDozenToken(tok string) bool {
	switch strings.ToUpper(tok) {
	case "DZ", "DOZ", "DOZEN":
		return true
	}
	return false
}

// PricePerBaseUnit divides a pack price in cents across the pack's base
// units. Returns false when the pack has no measurable total.
func PricePerBaseUnit(priceCents int64, pack PackInfo) (decimal.Decimal, bool) {
	if pack.TotalBaseUnits.IsZero() {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(priceCents).Div(pack.TotalBaseUnits), true
}

// FormatPricePerUnit renders a per-base-unit price like "$0.0087/g".
func FormatPricePerUnit(pricePerBaseCents decimal.Decimal, base BaseUnit) string {
	dollars := pricePerBaseCents.Div(dec("100"))

	var formatted string
	switch {
	case dollars.LessThan(dec("0.01")):
		formatted = "$" + dollars.StringFixed(4)
	case dollars.LessThan(dec("1")):
		formatted = "$" + dollars.StringFixed(3)
	default:
		formatted = "$" + dollars.StringFixed(2)
	}
	return formatted + "/" + string(base)
}
