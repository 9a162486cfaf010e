// Package amount converts between exact base-unit integers and display
// decimals. NEAR balances carry a fixed scale of 24 fractional digits; all
// conversions stay in arbitrary-precision integer space.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
)

// Scale is the number of fractional digits in one native-asset unit.
const Scale = 24

var (
	digitsPattern  = regexp.MustCompile(`^[0-9]+$`)
	decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// OneNear returns 10^24, one native unit in base units.
func OneNear() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(Scale), nil)
}

// ParseRaw parses a non-negative base-10 integer string.
func ParseRaw(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if !digitsPattern.MatchString(raw) {
		return nil, false
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, false
	}
	return n, true
}

// Format renders a base-unit integer string as a decimal with exactly
// precision fractional digits, rounding half away from zero. Malformed input
// yields the zero value at that precision.
func Format(raw string, precision int) string {
	if precision < 0 {
		precision = 0
	}
	n, ok := ParseRaw(raw)
	if !ok {
		return Zero(precision)
	}
	return decimal.NewFromBigInt(n, -Scale).StringFixed(int32(precision))
}

func Zero(precision int) string {
	if precision <= 0 {
		return "0"
	}
	return "0." + strings.Repeat("0", precision)
}

// FromDecimal converts a display decimal into base units at the given scale.
func FromDecimal(value string, decimals int) (string, error) {
	value = strings.TrimSpace(value)
	if !decimalPattern.MatchString(value) {
		return "", clierr.New(clierr.CodeUsage, "amount must be in decimal form like 1.23")
	}
	parts := strings.SplitN(value, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	combined := strings.TrimLeft(intPart+fracPart+strings.Repeat("0", decimals-len(fracPart)), "0")
	if combined == "" {
		return "0", nil
	}
	return combined, nil
}

// Percent returns floor(raw * percent / 100).
func Percent(raw *big.Int, percent int64) *big.Int {
	out := new(big.Int).Mul(raw, big.NewInt(percent))
	return out.Quo(out, big.NewInt(100))
}

// MulRate multiplies a display decimal by an exchange rate and rounds the
// product to precision digits. Malformed input yields zero.
func MulRate(display string, rate float64, precision int) string {
	d, err := decimal.NewFromString(strings.TrimSpace(display))
	if err != nil {
		return Zero(precision)
	}
	return d.Mul(decimal.NewFromFloat(rate)).StringFixed(int32(precision))
}

// Exceeds reports whether raw is a well-formed integer strictly above limit.
func Exceeds(raw string, limit *big.Int) bool {
	n, ok := ParseRaw(raw)
	if !ok {
		return false
	}
	return n.Cmp(limit) > 0
}
