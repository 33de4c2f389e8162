package swap

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed for a side whose decimals are unknown (zero).
const DefaultDecimals = 9

// PoolSnapshot is a read-only view of a constant-product pool. Price is
// quote per base. It is replaced wholesale on refresh.
type PoolSnapshot struct {
	PoolID        string
	BaseMint      string
	QuoteMint     string
	BaseReserve   decimal.Decimal
	QuoteReserve  decimal.Decimal
	Price         decimal.Decimal
	Volume24h     *decimal.Decimal
	BaseDecimals  uint8
	QuoteDecimals uint8
	UpdatedAt     time.Time
}

// SpotPrice returns quoteReserve / baseReserve, or zero for an empty pool.
func (p PoolSnapshot) SpotPrice() decimal.Decimal {
	if !p.BaseReserve.IsPositive() {
		return decimal.Zero
	}
	return p.QuoteReserve.DivRound(p.BaseReserve, divisionPrecision)
}

// Reverse returns the same pool seen from the quote side, so that a
// simulation sells quote for base.
func (p PoolSnapshot) Reverse() PoolSnapshot {
	r := p
	r.BaseMint, r.QuoteMint = p.QuoteMint, p.BaseMint
	r.BaseReserve, r.QuoteReserve = p.QuoteReserve, p.BaseReserve
	r.BaseDecimals, r.QuoteDecimals = p.QuoteDecimals, p.BaseDecimals
	r.Price = decimal.Zero
	if p.Price.IsPositive() {
		r.Price = decimal.NewFromInt(1).DivRound(p.Price, divisionPrecision)
	}
	return r
}

func (p PoolSnapshot) outputDecimals() int32 {
	if p.QuoteDecimals == 0 {
		return DefaultDecimals
	}
	return int32(p.QuoteDecimals)
}
