// Package units converts between human-entered decimal amounts, integer
// base-unit amounts (wei) and the corrected magnitudes read from the
// crowdfunding contract.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the scale between the chain's base unit and one coin.
const EtherDecimals = 18

// ErrInvalidAmount is returned when a decimal string cannot be converted.
var ErrInvalidAmount = errors.New("invalid amount")

var decimalPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

var (
	// inflationThreshold is 10^24. No realistic funding target reaches it.
	inflationThreshold = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
	// inflationFactor is the extra 10^18 some campaigns come back with.
	inflationFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)
)

// ToBaseUnits parses a non-negative decimal string such as "1.5" into base
// units (scale 18). Signs, exponents and more than 18 fractional digits are
// rejected.
func ToBaseUnits(s string) (*big.Int, error) {
	return ParseUnits(s, EtherDecimals)
}

// ParseUnits parses a non-negative decimal string into an integer scaled by
// 10^scale.
func ParseUnits(s string, scale int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q is not a non-negative decimal", ErrInvalidAmount, s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}

	shifted := d.Shift(int32(scale))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, scale)
	}
	return shifted.BigInt(), nil
}

// ToDecimalString formats v divided by 10^scale. Trailing fractional zeros
// are trimmed but at least one fractional digit is kept ("10.0", "1.5").
func ToDecimalString(v *big.Int, scale int) string {
	if v == nil {
		v = new(big.Int)
	}
	s := decimal.NewFromBigInt(v, int32(-scale)).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatEther formats a wei amount with scale 18.
func FormatEther(wei *big.Int) string {
	return ToDecimalString(wei, EtherDecimals)
}

// NormalizeMagnitude corrects values the contract sometimes returns already
// multiplied by an extra 10^18. Anything above 10^24 is divided once; smaller
// values pass through. The argument is never modified.
//
// Applying it twice is a no-op only for inputs up to 10^42: a larger value
// is still above 10^24 after one division and gets divided again. Call it
// once per raw contract value.
//
// This is a compatibility shim for a producer-side defect whose origin is not
// known. Keep the threshold and the single division as they are.
func NormalizeMagnitude(raw *big.Int) *big.Int {
	if raw == nil {
		return new(big.Int)
	}
	if raw.Cmp(inflationThreshold) > 0 {
		return new(big.Int).Quo(raw, inflationFactor)
	}
	return new(big.Int).Set(raw)
}

// IsInflated reports whether NormalizeMagnitude would correct raw.
func IsInflated(raw *big.Int) bool {
	return raw != nil && raw.Cmp(inflationThreshold) > 0
}

// FormatMagnitude normalizes raw and formats it as a coin amount.
func FormatMagnitude(raw *big.Int) string {
	return FormatEther(NormalizeMagnitude(raw))
}
