package swap

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPool() PoolSnapshot {
	return PoolSnapshot{
		PoolID:        "pool-1",
		BaseMint:      "BASE",
		QuoteMint:     "QUOTE",
		BaseReserve:   d("1000000"),
		QuoteReserve:  d("1000"),
		Price:         d("0.001"),
		BaseDecimals:  6,
		QuoteDecimals: 9,
	}
}

func TestSimulateConstantProduct(t *testing.T) {
	res, err := Simulate(testPool(), d("10000"), d("1"))
	require.NoError(t, err)

	assert.Equal(t, "9.876237623", res.OutputAmount.String())
	assert.True(t, res.OutputAmount.IsPositive())
	assert.True(t, res.OutputAmount.LessThan(d("10")))
	assert.Equal(t, "1.2376", res.PriceImpactPct.StringFixed(4))
	assert.Equal(t, "9.777475246", res.MinimumReceived.String())
	assert.True(t, res.Fee.IsPositive())
	assert.True(t, d("10000").Equal(res.InputAmount))
}

func TestSimulatePriceImpactMonotonic(t *testing.T) {
	pool := testPool()
	prev := decimal.Zero
	for _, amount := range []string{"1000", "10000", "100000", "1000000"} {
		res, err := Simulate(pool, d(amount), decimal.Zero)
		require.NoError(t, err, amount)
		assert.True(t, res.PriceImpactPct.GreaterThan(prev), "impact for %s should grow", amount)
		assert.True(t, res.OutputAmount.LessThan(pool.QuoteReserve))
		assert.True(t, res.MinimumReceived.Equal(res.OutputAmount))
		prev = res.PriceImpactPct
	}
}

func TestSimulateDeterministic(t *testing.T) {
	pool := testPool()
	a, err := Simulate(pool, d("123.456"), d("0.5"))
	require.NoError(t, err)
	b, err := Simulate(pool, d("123.456"), d("0.5"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSimulateInsufficientLiquidity(t *testing.T) {
	tests := []struct {
		name   string
		pool   PoolSnapshot
		amount string
	}{
		{
			name: "dust quote reserve truncates to zero",
			pool: PoolSnapshot{
				BaseReserve:   d("1000000"),
				QuoteReserve:  d("0.000000001"),
				QuoteDecimals: 9,
			},
			amount: "1000000000000",
		},
		{
			name:   "empty quote reserve",
			pool:   PoolSnapshot{BaseReserve: d("1000"), QuoteReserve: decimal.Zero, QuoteDecimals: 6},
			amount: "1",
		},
		{
			name:   "empty base reserve",
			pool:   PoolSnapshot{BaseReserve: decimal.Zero, QuoteReserve: d("1000"), QuoteDecimals: 6},
			amount: "1",
		},
		{
			name:   "negative reserve",
			pool:   PoolSnapshot{BaseReserve: d("-5"), QuoteReserve: d("1000"), QuoteDecimals: 6},
			amount: "1",
		},
		{
			name:   "output below smallest unit",
			pool:   PoolSnapshot{BaseReserve: d("1000000"), QuoteReserve: d("1"), QuoteDecimals: 2},
			amount: "1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Simulate(tt.pool, d(tt.amount), decimal.Zero)
			assert.ErrorIs(t, err, ErrInsufficientLiquidity)
		})
	}
}

func TestSimulateInvalidArguments(t *testing.T) {
	pool := testPool()

	_, err := Simulate(pool, decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Simulate(pool, d("-1"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Simulate(pool, d("1"), d("-0.1"))
	assert.ErrorIs(t, err, ErrInvalidSlippage)

	_, err = Simulate(pool, d("1"), d("100.5"))
	assert.ErrorIs(t, err, ErrInvalidSlippage)

	res, err := Simulate(pool, d("1000"), d("100"))
	require.NoError(t, err)
	assert.True(t, res.MinimumReceived.IsZero())
}

func TestSimulateFallsBackToSpotPrice(t *testing.T) {
	pool := testPool()
	pool.Price = decimal.Zero

	withSpot, err := Simulate(pool, d("10000"), decimal.Zero)
	require.NoError(t, err)
	withQuoted, err := Simulate(testPool(), d("10000"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, withQuoted.PriceImpactPct.Equal(withSpot.PriceImpactPct))
}

func TestSimulateImpactClamped(t *testing.T) {
	pool := testPool()
	pool.Price = d("0.0000001")

	res, err := Simulate(pool, d("10000"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, res.PriceImpactPct.Equal(hundred))
}

func TestPoolSnapshotReverse(t *testing.T) {
	pool := testPool()
	rev := pool.Reverse()

	assert.Equal(t, "QUOTE", rev.BaseMint)
	assert.Equal(t, "BASE", rev.QuoteMint)
	assert.True(t, rev.BaseReserve.Equal(pool.QuoteReserve))
	assert.True(t, rev.QuoteReserve.Equal(pool.BaseReserve))
	assert.Equal(t, uint8(9), rev.BaseDecimals)
	assert.Equal(t, uint8(6), rev.QuoteDecimals)
	assert.True(t, d("1000").Equal(rev.Price))
	back := rev.Reverse()
	assert.True(t, pool.BaseReserve.Equal(back.BaseReserve))
	assert.True(t, pool.Price.Equal(back.Price))

	res, err := Simulate(rev, d("10"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, res.OutputAmount.LessThan(d("10000")))
	assert.True(t, res.OutputAmount.Equal(res.OutputAmount.Truncate(6)))
}
