// Package service is the query façade: every call passes the readiness
// gate, goes through the cache and reports its outcome on the bus.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-query/internal/balance"
	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-query/internal/cache"
	"github.com/rovshanmuradov/solana-query/internal/dex/market"
	"github.com/rovshanmuradov/solana-query/internal/dex/swap"
	"github.com/rovshanmuradov/solana-query/internal/events"
	"github.com/rovshanmuradov/solana-query/internal/readiness"
	"github.com/rovshanmuradov/solana-query/internal/utils/logger"
)

// ErrNotReady is returned while the upstream dependency is not Ready.
var ErrNotReady = errors.New("dependency not ready")

const (
	OpBalances     = "balances"
	OpPool         = "pool"
	OpSimulateSwap = "simulate_swap"
	OpQuote        = "quote"
	OpSwap         = "swap"
	OpTokenPairs   = "token_pairs"
	OpPairSnapshot = "pair_snapshot"
)

// Connections is the part of rpc.Manager the service depends on.
type Connections interface {
	GetConnection(ctx context.Context) (*rpc.Connection, error)
	ReportFailure(err error) bool
	CurrentEndpoint() (rpc.Endpoint, bool)
}

// Market is the aggregator and pair listing client.
type Market interface {
	Quote(ctx context.Context, req market.QuoteRequest) (*market.QuoteResponse, error)
	Swap(ctx context.Context, req market.SwapRequest) (*market.SwapResponse, error)
	TokenPairs(ctx context.Context, mint string) ([]market.Pair, error)
}

// Deps collects what New needs. Publisher and Clock may be nil.
type Deps struct {
	Connections     Connections
	Readiness       *readiness.Controller
	Cache           *cache.Cache
	TTLs            cache.TTLs
	Tokens          []balance.Token
	AddressBookSize int
	Market          Market
	Publisher       events.Publisher
	Clock           clock.Clock
}

// Service is built once per process.
type Service struct {
	conns     *notifyingConnections
	readiness *readiness.Controller
	cache     *cache.Cache
	ttls      cache.TTLs
	balances  *balance.Aggregator
	quoter    *swap.Quoter
	market    Market
	publisher events.Publisher
	clock     clock.Clock
	logger    *logger.Logger
}

// New wires the balance aggregator and the swap quoter over deps.
func New(deps Deps, log *zap.Logger) (*Service, error) {
	if deps.Connections == nil || deps.Readiness == nil || deps.Cache == nil || deps.Market == nil {
		return nil, errors.New("service: connections, readiness, cache and market are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Publisher == nil {
		deps.Publisher = discard{}
	}
	log = log.Named("service")

	conns := &notifyingConnections{
		Connections: deps.Connections,
		readiness:   deps.Readiness,
		publisher:   deps.Publisher,
		clock:       deps.Clock,
		logger:      log,
	}

	balances, err := balance.NewAggregator(conns, deps.Tokens, balance.Options{
		AddressBookSize: deps.AddressBookSize,
		Clock:           deps.Clock,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("balance aggregator: %w", err)
	}

	return &Service{
		conns:     conns,
		readiness: deps.Readiness,
		cache:     deps.Cache,
		ttls:      deps.TTLs,
		balances:  balances,
		quoter:    swap.NewQuoter(conns, deps.Cache, deps.TTLs, deps.Clock, log),
		market:    deps.Market,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		logger:    logger.Wrap(log),
	}, nil
}

// Balances returns owner's native and token balances.
func (s *Service) Balances(ctx context.Context, owner solana.PublicKey) (set *balance.BalanceSet, err error) {
	key := cache.KeyFor(cache.KindBalance, owner.String())
	defer s.track(OpBalances, key.String())(&err)

	if err = s.ensureReady(ctx); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.cache, key, s.ttls.Balance, func(ctx context.Context) (*balance.BalanceSet, error) {
		return s.balances.Fetch(ctx, owner)
	})
}

// Pool returns the cached snapshot of an on-chain pool.
func (s *Service) Pool(ctx context.Context, ref swap.PoolRef) (pool swap.PoolSnapshot, err error) {
	defer s.track(OpPool, ref.PoolID)(&err)

	if err = s.ensureReady(ctx); err != nil {
		return swap.PoolSnapshot{}, err
	}
	return s.quoter.LoadPool(ctx, ref)
}

// SimulateSwap simulates a swap against the pool's current snapshot.
func (s *Service) SimulateSwap(ctx context.Context, ref swap.PoolRef, amountIn, slippagePct decimal.Decimal, reverse bool) (res swap.Result, err error) {
	defer s.track(OpSimulateSwap, ref.PoolID)(&err)

	if err = s.ensureReady(ctx); err != nil {
		return swap.Result{}, err
	}
	return s.quoter.Quote(ctx, ref, amountIn, slippagePct, reverse)
}

// Quote returns an aggregator quote, cached for the simulation TTL.
func (s *Service) Quote(ctx context.Context, req market.QuoteRequest) (quote *market.QuoteResponse, err error) {
	key := cache.KeyFor(cache.KindQuote, req.InputMint,
		req.OutputMint,
		strconv.FormatUint(req.Amount, 10),
		strconv.FormatUint(uint64(req.SlippageBps), 10))
	defer s.track(OpQuote, key.String())(&err)

	if err = s.ensureReady(ctx); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.cache, key, s.ttls.Simulation, func(ctx context.Context) (*market.QuoteResponse, error) {
		return s.market.Quote(ctx, req)
	})
}

// Swap asks the aggregator for swap transactions. It is never cached.
func (s *Service) Swap(ctx context.Context, req market.SwapRequest) (res *market.SwapResponse, err error) {
	defer s.track(OpSwap, req.UserPublicKey)(&err)

	if err = s.ensureReady(ctx); err != nil {
		return nil, err
	}
	return s.market.Swap(ctx, req)
}

// TokenPairs lists pairs trading mint, cached for the pair list TTL.
func (s *Service) TokenPairs(ctx context.Context, mint string) (pairs []market.Pair, err error) {
	key := cache.KeyFor(cache.KindPairList, mint)
	defer s.track(OpTokenPairs, key.String())(&err)

	if err = s.ensureReady(ctx); err != nil {
		return nil, err
	}
	return s.tokenPairs(ctx, key, mint)
}

// PairSnapshot picks the most liquid pair for mint and turns it into a
// pool snapshot suitable for swap.Simulate.
func (s *Service) PairSnapshot(ctx context.Context, mint string, filter market.PairFilter, baseDecimals, quoteDecimals uint8) (pool swap.PoolSnapshot, err error) {
	key := cache.KeyFor(cache.KindPairList, mint)
	defer s.track(OpPairSnapshot, key.String())(&err)

	if err = s.ensureReady(ctx); err != nil {
		return swap.PoolSnapshot{}, err
	}
	pairs, err := s.tokenPairs(ctx, key, mint)
	if err != nil {
		return swap.PoolSnapshot{}, err
	}
	best, err := market.BestPair(pairs, filter)
	if err != nil {
		return swap.PoolSnapshot{}, fmt.Errorf("pair for %s: %w", mint, err)
	}
	pool, err = best.Snapshot(baseDecimals, quoteDecimals)
	if err != nil {
		return swap.PoolSnapshot{}, err
	}
	pool.UpdatedAt = s.clock.Now()
	return pool, nil
}

func (s *Service) tokenPairs(ctx context.Context, key cache.Key, mint string) ([]market.Pair, error) {
	return cache.GetOrLoad(ctx, s.cache, key, s.ttls.PairList, func(ctx context.Context) ([]market.Pair, error) {
		return s.market.TokenPairs(ctx, mint)
	})
}

// RecordOutcome reports an operation executed outside the service, such as
// a signed and sent swap, to the same sink as the service's own calls. key
// identifies what the operation acted on (for a swap, the quote key).
func (s *Service) RecordOutcome(operation, key, signature string, opErr error, d time.Duration) {
	ev := events.NewOutcomeEvent(s.clock.Now(), operation, key, opErr, d)
	ev.Signature = signature
	s.publish(ev)
}

// Readiness returns the readiness snapshot.
func (s *Service) Readiness() readiness.Status {
	return s.readiness.Status()
}

// RetryReadiness is the user-triggered retry from Failed.
func (s *Service) RetryReadiness(ctx context.Context) error {
	return s.readiness.Retry(ctx)
}

// RetryReadinessUntilReady spends the remaining retry budget with back-off.
// It is the caller's decision, like RetryReadiness.
func (s *Service) RetryReadinessUntilReady(ctx context.Context) (readiness.Status, error) {
	return s.readiness.RetryUntilReady(ctx)
}

func (s *Service) ensureReady(ctx context.Context) error {
	st := s.readiness.EnsureReady(ctx)
	if st.State == readiness.Ready {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.Err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotReady, st.State, st.Err)
	}
	return fmt.Errorf("%w: %s", ErrNotReady, st.State)
}

// track publishes the outcome of the call when the returned func runs.
func (s *Service) track(operation, key string) func(*error) {
	start := s.clock.Now()
	end := s.logger.TrackPerformance(operation)
	return func(errp *error) {
		end(*errp)
		ev := events.NewOutcomeEvent(s.clock.Now(), operation, key, *errp, s.clock.Since(start))
		if ep, ok := s.conns.CurrentEndpoint(); ok {
			ev.Endpoint = ep.URL
		}
		s.publish(ev)
	}
}

func (s *Service) publish(ev events.Event) {
	if err := s.publisher.Publish(ev); err != nil {
		s.logger.Debug("Outcome not published", zap.String("event_type", string(ev.Type())), zap.Error(err))
	}
}

type discard struct{}

func (discard) Publish(events.Event) error { return nil }
