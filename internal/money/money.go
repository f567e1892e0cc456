// Package money handles EUR amounts as int64 minor units (cents).
// Balances and transaction amounts never touch floats inside the
// service; conversion happens only at the API and provider edges.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// MinorFromFloat converts a JSON-number EUR amount to cents. Amounts with
// sub-cent precision are rejected rather than silently rounded.
func MinorFromFloat(amount float64) (int64, error) {
	d := decimal.NewFromFloat(amount)
	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.Equal(cents.Truncate(0)) {
		return 0, ErrTooManyDecimals
	}
	return cents.IntPart(), nil
}

// Float returns the EUR value of a minor-unit amount for provider APIs
// that take fiat amounts as JSON numbers.
func Float(minor int64) float64 {
	value, _ := decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)).Float64()
	return value
}

func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	sign := int64(1)
	switch trimmed[0] {
	case '-':
		sign = -1
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.Exponent() < -2 {
		return 0, ErrTooManyDecimals
	}
	return sign * d.Mul(decimal.NewFromInt(100)).IntPart(), nil
}

func FormatMinor(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	formatted := fmt.Sprintf("%d.%02d", value/100, value%100)
	if negative {
		return "-" + formatted
	}
	return formatted
}
