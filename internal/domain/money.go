package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadMoney is returned when a money literal cannot be parsed.
var ErrBadMoney = errors.New("bad money value")

// Money is a fixed-point currency amount in hundredths (cents).
// All balances and prices on the wire render with two decimals.
type Money int64

// ParseMoney parses a non-negative decimal literal such as "110" or "110.50".
// At most two fraction digits are accepted.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrBadMoney
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, ErrBadMoney
	}
	// The cents conversion plus a two-digit fraction must stay inside int64.
	if units > (math.MaxInt64-99)/100 {
		return 0, ErrBadMoney
	}

	cents := units * 100
	if hasFrac {
		if frac == "" || len(frac) > 2 {
			return 0, ErrBadMoney
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || f < 0 {
			return 0, ErrBadMoney
		}
		if len(frac) == 1 {
			f *= 10
		}
		cents += f
	}

	return Money(cents), nil
}

// Units returns a Money worth the given number of whole currency units.
func Units(n int64) Money { return Money(n * 100) }

// String renders the amount with two decimals, e.g. "1000000.00".
func (m Money) String() string {
	neg := ""
	v := int64(m)
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}
