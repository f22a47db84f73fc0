package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// PriceScale is the number of fractional digits kept on a price.
const PriceScale = 3

// maxPrice is the largest value the annotations.price column holds.
var maxPrice = decimal.RequireFromString("9999999.999")

// ParsePrice parses a decimal price string such as "3.79".
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidPrice, s)
	}
	return NormalizePrice(d)
}

// NormalizePrice rounds to PriceScale digits and checks the result is
// positive and storable.
func NormalizePrice(d decimal.Decimal) (decimal.Decimal, error) {
	r := d.Round(PriceScale)
	if !r.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be greater than zero", ErrInvalidPrice, d)
	}
	if r.GreaterThan(maxPrice) {
		return decimal.Zero, fmt.Errorf("%w: %s is too large", ErrInvalidPrice, d)
	}
	return r, nil
}
