// Package guard holds plausibility limits applied to submitted prices before
// they are stored.
package guard

import (
	"errors"
	"fmt"

	"github.com/kjannette/stationprice/internal/models"
	"github.com/shopspring/decimal"
)

var ErrImplausiblePrice = errors.New("implausible price")

// Limits holds the write thresholds from config.
// A zero value for any field means that check is disabled.
type Limits struct {
	MaxPrice         decimal.Decimal
	MaxChangePercent float64
}

type Guard struct {
	limits Limits
}

func New(limits Limits) *Guard {
	return &Guard{limits: limits}
}

// NeedsPrevious reports whether PreWriteCheck uses the stored annotation.
func (g *Guard) NeedsPrevious() bool {
	return g.limits.MaxChangePercent > 0
}

// PreWriteCheck validates a price against the limits. previous is the
// currently stored annotation, or nil.
func (g *Guard) PreWriteCheck(price decimal.Decimal, previous *models.Annotation) error {
	if g.limits.MaxPrice.IsPositive() && price.GreaterThan(g.limits.MaxPrice) {
		return fmt.Errorf("%w: %s exceeds max %s", ErrImplausiblePrice, price, g.limits.MaxPrice)
	}

	if g.limits.MaxChangePercent > 0 && previous != nil && previous.Price.IsPositive() {
		change := price.Sub(previous.Price).Abs().Div(previous.Price).Mul(decimal.NewFromInt(100))
		if change.InexactFloat64() > g.limits.MaxChangePercent {
			return fmt.Errorf("%w: %s is %s%% away from current %s (limit %.1f%%)",
				ErrImplausiblePrice, price, change.StringFixed(1), previous.Price, g.limits.MaxChangePercent)
		}
	}

	return nil
}
