package fingerprint

import (
	"fmt"
	"math"
	"strconv"
)

// Side names one half of a fingerprint pair.
type Side string

const (
	SideUpper Side = "upper"
	SideLower Side = "lower"
)

// Sides lists both sides in storage order.
var Sides = []Side{SideUpper, SideLower}

// ParseSide validates a side name.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideUpper, SideLower:
		return Side(s), nil
	}
	return "", fmt.Errorf("unknown fingerprint side %q (want upper or lower)", s)
}

// Pair is the upper/lower fingerprint of one text.
type Pair struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// Value returns the fingerprint for the given side.
func (p Pair) Value(side Side) float64 {
	if side == SideLower {
		return p.Lower
	}
	return p.Upper
}

// Round returns the pair rounded to places.
func (p Pair) Round(places int) Pair {
	return Pair{Upper: Format(p.Upper, places), Lower: Format(p.Lower, places)}
}

// Format rounds x to places decimal digits through its fixed-decimal
// string, so Format(Format(x, p), p) == Format(x, p). Non-finite values
// format to 0.
func Format(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	if places < 0 {
		places = 0
	}

	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil || v == 0 {
		// also folds -0 into 0
		return 0
	}
	return v
}

// FormatString renders x as a fixed-decimal string with places digits.
func FormatString(x float64, places int) string {
	if places < 0 {
		places = 0
	}
	return strconv.FormatFloat(Format(x, places), 'f', places, 64)
}
