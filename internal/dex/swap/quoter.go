package swap

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-query/internal/cache"
)

const methodGetTokenAccountBalance = "getTokenAccountBalance"

// Connector hands out the shared upstream connection.
type Connector interface {
	GetConnection(ctx context.Context) (*rpc.Connection, error)
	ReportFailure(err error) bool
}

// PoolRef identifies an on-chain pool by its two reserve vaults.
type PoolRef struct {
	PoolID     string
	BaseVault  solana.PublicKey
	QuoteVault solana.PublicKey
	BaseMint   string
	QuoteMint  string
}

// Quoter loads pool snapshots through the cache and simulates swaps against them.
type Quoter struct {
	conns  Connector
	cache  *cache.Cache
	ttls   cache.TTLs
	clock  clock.Clock
	logger *zap.Logger
}

// NewQuoter создает Quoter. clk может быть nil.
func NewQuoter(conns Connector, c *cache.Cache, ttls cache.TTLs, clk clock.Clock, logger *zap.Logger) *Quoter {
	if clk == nil {
		clk = clock.New()
	}
	return &Quoter{
		conns:  conns,
		cache:  c,
		ttls:   ttls,
		clock:  clk,
		logger: logger.Named("swap"),
	}
}

// LoadPool returns the pool snapshot, served from the cache while fresh.
func (q *Quoter) LoadPool(ctx context.Context, ref PoolRef) (PoolSnapshot, error) {
	key := cache.KeyFor(cache.KindPoolInfo, ref.PoolID, ref.BaseVault.String(), ref.QuoteVault.String())
	return cache.GetOrLoad(ctx, q.cache, key, q.ttls.PoolInfo, func(ctx context.Context) (PoolSnapshot, error) {
		return q.fetchPool(ctx, ref)
	})
}

// Quote simulates selling amountIn of the base token (quote token when
// reverse is set). Arguments are validated before any pool data is loaded.
func (q *Quoter) Quote(ctx context.Context, ref PoolRef, amountIn, slippagePct decimal.Decimal, reverse bool) (Result, error) {
	if !amountIn.IsPositive() {
		return Result{}, ErrInvalidAmount
	}
	if slippagePct.IsNegative() || slippagePct.GreaterThan(hundred) {
		return Result{}, ErrInvalidSlippage
	}

	pool, err := q.LoadPool(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	if reverse {
		pool = pool.Reverse()
	}

	res, err := Simulate(pool, amountIn, slippagePct)
	if err != nil {
		return Result{}, err
	}

	q.logger.Debug("Swap simulated",
		zap.String("pool", ref.PoolID),
		zap.Bool("reverse", reverse),
		zap.String("amount_in", amountIn.String()),
		zap.String("output", res.OutputAmount.String()),
		zap.String("price_impact", res.PriceImpactPct.StringFixed(4)))
	return res, nil
}

func (q *Quoter) fetchPool(ctx context.Context, ref PoolRef) (PoolSnapshot, error) {
	conn, err := q.conns.GetConnection(ctx)
	if err != nil {
		q.conns.ReportFailure(err)
		return PoolSnapshot{}, fmt.Errorf("acquire connection: %w", err)
	}

	var base, quote vaultBalance
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		base, err = readVault(gctx, conn, ref.BaseVault)
		return err
	})
	g.Go(func() (err error) {
		quote, err = readVault(gctx, conn, ref.QuoteVault)
		return err
	})
	if err := g.Wait(); err != nil {
		if q.conns.ReportFailure(err) {
			q.logger.Warn("Connection reset after pool read failure", zap.String("pool", ref.PoolID), zap.Error(err))
		}
		return PoolSnapshot{}, fmt.Errorf("load pool %s: %w", ref.PoolID, err)
	}

	snapshot := PoolSnapshot{
		PoolID:        ref.PoolID,
		BaseMint:      ref.BaseMint,
		QuoteMint:     ref.QuoteMint,
		BaseReserve:   base.amount,
		QuoteReserve:  quote.amount,
		BaseDecimals:  base.decimals,
		QuoteDecimals: quote.decimals,
		UpdatedAt:     q.clock.Now(),
	}
	snapshot.Price = snapshot.SpotPrice()
	return snapshot, nil
}

type vaultBalance struct {
	amount   decimal.Decimal
	decimals uint8
}

func readVault(ctx context.Context, conn *rpc.Connection, vault solana.PublicKey) (vaultBalance, error) {
	res, err := conn.GetTokenAccountBalance(ctx, vault, solanarpc.CommitmentConfirmed)
	if err != nil {
		return vaultBalance{}, rpc.NewError(err, conn.Endpoint.URL, methodGetTokenAccountBalance)
	}
	if res == nil || res.Value == nil {
		return vaultBalance{}, rpc.NewError(rpc.ErrInvalidResponse, conn.Endpoint.URL, methodGetTokenAccountBalance)
	}
	amount, err := solbc.TokenAmountToDecimal(res.Value, 0)
	if err != nil {
		return vaultBalance{}, rpc.NewError(fmt.Errorf("%w: %v", rpc.ErrInvalidResponse, err), conn.Endpoint.URL, methodGetTokenAccountBalance)
	}
	return vaultBalance{amount: amount, decimals: res.Value.Decimals}, nil
}
