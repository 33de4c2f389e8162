// Package swap simulates constant-product swaps and loads the pool data they need.
package swap

import (
	"errors"

	"github.com/shopspring/decimal"
)

const divisionPrecision = 18

var (
	// FeeRate is the pool fee withheld from the gross output (25 bps).
	FeeRate = decimal.New(25, -4)

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

var (
	ErrInvalidAmount         = errors.New("invalid swap amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidSlippage       = errors.New("slippage tolerance must be within [0, 100]")
)

// Result is the outcome of a simulated swap, in output token units.
type Result struct {
	InputAmount     decimal.Decimal
	OutputAmount    decimal.Decimal
	PriceImpactPct  decimal.Decimal
	MinimumReceived decimal.Decimal
	Fee             decimal.Decimal
}

// Simulate sells amountIn of the pool's base token for its quote token.
// It is pure: the same snapshot and arguments always give the same result.
//
//	k = Rin * Rout, Rin' = Rin + in, Rout' = k / Rin'
//	output = (Rout - Rout') * (1 - fee)
//
// Output and minimum received are truncated to the quote token's decimals.
func Simulate(pool PoolSnapshot, amountIn, slippagePct decimal.Decimal) (Result, error) {
	if !amountIn.IsPositive() {
		return Result{}, ErrInvalidAmount
	}
	if slippagePct.IsNegative() || slippagePct.GreaterThan(hundred) {
		return Result{}, ErrInvalidSlippage
	}

	rin, rout := pool.BaseReserve, pool.QuoteReserve
	if !rin.IsPositive() || !rout.IsPositive() {
		return Result{}, ErrInsufficientLiquidity
	}

	k := rin.Mul(rout)
	rinNext := rin.Add(amountIn)
	routNext := k.DivRound(rinNext, divisionPrecision)
	if !routNext.IsPositive() {
		return Result{}, ErrInsufficientLiquidity
	}

	gross := rout.Sub(routNext)
	scale := pool.outputDecimals()
	output := gross.Mul(one.Sub(FeeRate)).Truncate(scale)
	if !output.IsPositive() || output.GreaterThanOrEqual(rout) {
		return Result{}, ErrInsufficientLiquidity
	}

	return Result{
		InputAmount:     amountIn,
		OutputAmount:    output,
		PriceImpactPct:  priceImpact(pool, amountIn, output),
		MinimumReceived: output.Mul(one.Sub(slippagePct.Div(hundred))).Truncate(scale),
		Fee:             gross.Sub(output),
	}, nil
}

// priceImpact compares the output with amountIn at the quoted price,
// falling back to the spot price when the snapshot has none.
func priceImpact(pool PoolSnapshot, amountIn, output decimal.Decimal) decimal.Decimal {
	price := pool.Price
	if !price.IsPositive() {
		price = pool.SpotPrice()
	}
	expected := amountIn.Mul(price)
	if !expected.IsPositive() {
		return hundred
	}

	impact := expected.Sub(output).Abs().DivRound(expected, divisionPrecision).Mul(hundred)
	switch {
	case impact.IsNegative():
		return decimal.Zero
	case impact.GreaterThan(hundred):
		return hundred
	}
	return impact
}
