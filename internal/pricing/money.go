package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidMoney indicates an amount that is not a two-decimal fixed-point value.
	ErrInvalidMoney = errors.New("pricing: invalid money amount")
	// ErrAmountOverflow indicates arithmetic that does not fit in int64 cents.
	ErrAmountOverflow = errors.New("pricing: amount overflows")
)

// Money is a fixed-point amount in cents.
type Money int64

// Cents builds Money from a cent count.
func Cents(value int64) Money {
	return Money(value)
}

// ParseMoney parses "12", "12.5" or "12.50". More than two decimals is rejected
// rather than rounded.
func ParseMoney(rawInput string) (Money, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidMoney)
	}
	negative := false
	switch trimmed[0] {
	case '-':
		negative = true
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	whole, fraction, hasFraction := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFraction && (fraction == "" || len(fraction) > 2) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, rawInput)
	}
	if !isDigits(whole) || (hasFraction && !isDigits(fraction)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, rawInput)
	}
	for len(fraction) < 2 {
		fraction += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, rawInput)
	}
	cents, err := strconv.ParseInt(fraction, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, rawInput)
	}
	if units > (math.MaxInt64-cents)/100 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidMoney, rawInput)
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return Money(total), nil
}

// Int64 exposes the raw cent count.
func (m Money) Int64() int64 {
	return int64(m)
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}

// Times multiplies by a quantity without leaving integer arithmetic.
func (m Money) Times(quantity int) (Money, error) {
	if quantity < 0 {
		return 0, fmt.Errorf("%w: negative quantity %d", ErrAmountOverflow, quantity)
	}
	if m == 0 || quantity == 0 {
		return 0, nil
	}
	value := int64(m)
	q := int64(quantity)
	if value > 0 && value > math.MaxInt64/q || value < 0 && value < math.MinInt64/q {
		return 0, fmt.Errorf("%w: %s x %d", ErrAmountOverflow, m, quantity)
	}
	return Money(value * q), nil
}

// Plus adds two amounts.
func (m Money) Plus(other Money) (Money, error) {
	sum := int64(m) + int64(other)
	if (other > 0 && sum < int64(m)) || (other < 0 && sum > int64(m)) {
		return 0, fmt.Errorf("%w: %s + %s", ErrAmountOverflow, m, other)
	}
	return Money(sum), nil
}

// String formats with exactly two decimals, e.g. "1.50".
func (m Money) String() string {
	value := int64(m)
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("%s%d.%02d", sign, value/100, value%100)
}

// MarshalJSON renders the amount as a two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a JSON string or number. Numbers are parsed from their
// literal text so that no float rounding is involved.
func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMoney, err)
		}
		trimmed = []byte(text)
	}
	parsed, err := ParseMoney(string(trimmed))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
