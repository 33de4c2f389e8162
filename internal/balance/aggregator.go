// Package balance assembles a best-effort view of an owner's native and token balances.
package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc/rpc"
)

const (
	methodGetBalance             = "getBalance"
	methodGetTokenAccountBalance = "getTokenAccountBalance"
)

// Connector hands out the shared upstream connection.
type Connector interface {
	GetConnection(ctx context.Context) (*rpc.Connection, error)
	ReportFailure(err error) bool
}

// Token is a configured SPL token tracked by symbol.
type Token struct {
	Symbol   string
	Mint     solana.PublicKey
	Decimals uint8
}

// BalanceSet is assembled from independent sub-queries; it is not a
// snapshot at a single ledger height.
type BalanceSet struct {
	Owner     solana.PublicKey
	Native    decimal.Decimal
	Tokens    map[string]decimal.Decimal
	Errors    map[string]string
	Endpoint  string
	FetchedAt time.Time
}

// Token returns the balance for symbol, zero when the symbol is unknown.
func (b *BalanceSet) Token(symbol string) decimal.Decimal {
	if v, ok := b.Tokens[symbol]; ok {
		return v
	}
	return decimal.Zero
}

// Options configures an Aggregator.
type Options struct {
	AddressBookSize int
	Clock           clock.Clock
}

// Aggregator fetches native and token balances concurrently over one connection.
type Aggregator struct {
	conns     Connector
	tokens    []Token
	addresses *solbc.AddressBook
	clock     clock.Clock
	logger    *zap.Logger
}

// NewAggregator validates the token list and builds an Aggregator.
func NewAggregator(conns Connector, tokens []Token, opts Options, logger *zap.Logger) (*Aggregator, error) {
	bySymbol := make(map[string]solana.PublicKey, len(tokens))
	unique := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token %s has empty symbol", t.Mint)
		}
		if mint, ok := bySymbol[t.Symbol]; ok {
			if !mint.Equals(t.Mint) {
				return nil, fmt.Errorf("symbol %s configured for two mints: %s and %s", t.Symbol, mint, t.Mint)
			}
			continue
		}
		bySymbol[t.Symbol] = t.Mint
		unique = append(unique, t)
	}

	book, err := solbc.NewAddressBook(opts.AddressBookSize)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	return &Aggregator{
		conns:     conns,
		tokens:    unique,
		addresses: book,
		clock:     opts.Clock,
		logger:    logger.Named("balance"),
	}, nil
}

// Tokens returns the configured tokens.
func (a *Aggregator) Tokens() []Token {
	out := make([]Token, len(a.tokens))
	copy(out, a.tokens)
	return out
}

// Fetch returns owner's balances. A failed token sub-query yields zero for
// that symbol; a failed native sub-query or connection failure fails the call.
func (a *Aggregator) Fetch(ctx context.Context, owner solana.PublicKey) (*BalanceSet, error) {
	conn, err := a.conns.GetConnection(ctx)
	if err != nil {
		a.conns.ReportFailure(err)
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	set := &BalanceSet{
		Owner:    owner,
		Tokens:   make(map[string]decimal.Decimal, len(a.tokens)),
		Errors:   make(map[string]string),
		Endpoint: conn.Endpoint.URL,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := conn.GetBalance(gctx, owner, solanarpc.CommitmentConfirmed)
		if err != nil {
			return rpc.NewError(err, conn.Endpoint.URL, methodGetBalance)
		}
		if res == nil {
			return rpc.NewError(rpc.ErrInvalidResponse, conn.Endpoint.URL, methodGetBalance)
		}
		mu.Lock()
		set.Native = solbc.LamportsToSOL(res.Value)
		mu.Unlock()
		return nil
	})

	for _, token := range a.tokens {
		g.Go(func() error {
			amount, diag := a.fetchToken(gctx, conn, owner, token)
			mu.Lock()
			set.Tokens[token.Symbol] = amount
			if diag != "" {
				set.Errors[token.Symbol] = diag
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if a.conns.ReportFailure(err) {
			a.logger.Warn("Connection reset after native balance failure", zap.Error(err))
		}
		return nil, fmt.Errorf("native balance for %s: %w", owner, err)
	}

	set.FetchedAt = a.clock.Now()
	a.logger.Debug("Balances fetched",
		zap.String("owner", owner.String()),
		zap.String("native", set.Native.String()),
		zap.Int("tokens", len(set.Tokens)),
		zap.Int("token_errors", len(set.Errors)),
		zap.Int("known_accounts", a.addresses.Len()))
	return set, nil
}

// fetchToken never fails: a missing account is a zero balance, other
// failures are zero plus a diagnostic.
func (a *Aggregator) fetchToken(ctx context.Context, conn *rpc.Connection, owner solana.PublicKey, token Token) (decimal.Decimal, string) {
	ata, err := a.addresses.AssociatedTokenAddress(owner, token.Mint)
	if err != nil {
		return decimal.Zero, err.Error()
	}

	res, err := conn.GetTokenAccountBalance(ctx, ata, solanarpc.CommitmentConfirmed)
	if err != nil {
		if solbc.IsAccountNotFoundError(err) {
			return decimal.Zero, ""
		}
		a.logger.Warn("Token balance query failed",
			zap.String("symbol", token.Symbol),
			zap.String("account", ata.String()),
			zap.String("class", string(rpc.Classify(err))),
			zap.Error(err))
		return decimal.Zero, rpc.NewError(err, conn.Endpoint.URL, methodGetTokenAccountBalance).Error()
	}
	if res == nil {
		return decimal.Zero, rpc.ErrInvalidResponse.Error()
	}

	amount, err := solbc.TokenAmountToDecimal(res.Value, token.Decimals)
	if err != nil {
		return decimal.Zero, err.Error()
	}
	return amount, ""
}
