// Package codec converts between the registry's integer wire encodings
// (basis points, USD cents, micro-degrees) and display values.
//
// Every function is total: malformed input degrades to zero instead of
// returning an error.
package codec

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MicroDegreeScale is the fixed-point factor for coordinates.
const MicroDegreeScale = 1_000_000

var (
	hundred   = decimal.NewFromInt(100)
	maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
)

// BpsToPercentString formats basis points as a percentage with two decimals: 987 -> "9.87%".
func BpsToPercentString(bps uint64) string {
	return fromHundredths(bps).StringFixed(2) + "%"
}

// PercentStringToBps parses a percentage such as "9.87%" into basis points.
func PercentStringToBps(s string) uint64 {
	return toHundredths(s)
}

// UsdCentsToString formats cents as dollars: 108 -> "$1.08".
func UsdCentsToString(cents uint64) string {
	return "$" + fromHundredths(cents).StringFixed(2)
}

// UsdStringToCents parses a dollar amount such as "$1,050.25" into cents.
func UsdStringToCents(s string) uint64 {
	return toHundredths(s)
}

// MicroDegreesToDecimal converts a micro-degree integer into degrees.
func MicroDegreesToDecimal(e6 int64) float64 {
	return float64(e6) / MicroDegreeScale
}

// DecimalToMicroDegrees converts degrees into the nearest micro-degree integer.
// NaN and infinities map to zero; values beyond the int64 range saturate.
func DecimalToMicroDegrees(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	scaled := math.Round(f * MicroDegreeScale)
	switch {
	case scaled >= math.MaxInt64:
		return math.MaxInt64
	case scaled <= math.MinInt64:
		return math.MinInt64
	}
	return int64(scaled)
}

func fromHundredths(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -2)
}

// toHundredths keeps digits and dots, parses the longest numeric prefix,
// scales by 100 and rounds half up.
func toHundredths(s string) uint64 {
	d, ok := parseNumericPrefix(stripNonNumeric(s))
	if !ok || d.Sign() <= 0 {
		return 0
	}
	scaled := d.Mul(hundred).Round(0)
	if scaled.GreaterThan(maxUint64) {
		return math.MaxUint64
	}
	return scaled.BigInt().Uint64()
}

func stripNonNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseNumericPrefix accepts "12", "12.5", ".5", "12." and ignores anything
// from a second dot onwards ("1.2.3" parses as 1.2).
func parseNumericPrefix(s string) (decimal.Decimal, bool) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if j := strings.IndexByte(s[i+1:], '.'); j >= 0 {
			s = s[:i+1+j]
		}
	}
	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
