package balance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc/rpc"
)

// MockClient реализует интерфейс rpc.Client
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error) {
	args := m.Called(ctx, commitment)
	out, _ := args.Get(0).(*solanarpc.GetLatestBlockhashResult)
	return out, args.Error(1)
}

func (m *MockClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetBalanceResult, error) {
	args := m.Called(ctx, account, commitment)
	out, _ := args.Get(0).(*solanarpc.GetBalanceResult)
	return out, args.Error(1)
}

func (m *MockClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetTokenAccountBalanceResult, error) {
	args := m.Called(ctx, account, commitment)
	out, _ := args.Get(0).(*solanarpc.GetTokenAccountBalanceResult)
	return out, args.Error(1)
}

type fakeConnector struct {
	conn     *rpc.Connection
	err      error
	acquired atomic.Int32
	reported atomic.Int32
}

func (f *fakeConnector) GetConnection(ctx context.Context) (*rpc.Connection, error) {
	f.acquired.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

func (f *fakeConnector) ReportFailure(err error) bool {
	if rpc.IsRetryableError(err) {
		f.reported.Add(1)
		return true
	}
	return false
}

var (
	usdcMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qFxEhYqyCC8dHHBy9D4vNrvT6r")
	bonkMint = solana.MustPublicKeyFromBase58("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263")
)

func testTokens() []Token {
	return []Token{
		{Symbol: "USDC", Mint: usdcMint, Decimals: 6},
		{Symbol: "BONK", Mint: bonkMint, Decimals: 5},
	}
}

func ata(t *testing.T, owner, mint solana.PublicKey) solana.PublicKey {
	t.Helper()
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	return addr
}

func newTestAggregator(t *testing.T, client *MockClient, clk clock.Clock) (*Aggregator, *fakeConnector) {
	t.Helper()
	conns := &fakeConnector{conn: &rpc.Connection{
		Client:   client,
		Endpoint: rpc.Endpoint{URL: "https://rpc.example"},
	}}
	agg, err := NewAggregator(conns, testTokens(), Options{Clock: clk}, zap.NewNop())
	require.NoError(t, err)
	return agg, conns
}

func TestFetchPartialTolerance(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	client := new(MockClient)
	client.On("GetBalance", mock.Anything, owner, solanarpc.CommitmentConfirmed).
		Return(&solanarpc.GetBalanceResult{Value: 2_500_000_000}, nil)
	client.On("GetTokenAccountBalance", mock.Anything, ata(t, owner, usdcMint), solanarpc.CommitmentConfirmed).
		Return(nil, &jsonrpc.RPCError{Code: -32602, Message: "Invalid param: could not find account"})
	client.On("GetTokenAccountBalance", mock.Anything, ata(t, owner, bonkMint), solanarpc.CommitmentConfirmed).
		Return(&solanarpc.GetTokenAccountBalanceResult{
			Value: &solanarpc.UiTokenAmount{Amount: "1234500000", Decimals: 5},
		}, nil)

	clk := clock.NewMock()
	clk.Set(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	agg, conns := newTestAggregator(t, client, clk)

	set, err := agg.Fetch(context.Background(), owner)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("2.5").Equal(set.Native))
	assert.True(t, set.Token("USDC").IsZero())
	assert.True(t, decimal.RequireFromString("12345").Equal(set.Token("BONK")))
	assert.Len(t, set.Tokens, 2)
	assert.Empty(t, set.Errors)
	assert.Equal(t, clk.Now(), set.FetchedAt)
	assert.Equal(t, "https://rpc.example", set.Endpoint)
	assert.Equal(t, int32(1), conns.acquired.Load())
	client.AssertExpectations(t)
}

func TestFetchNativeFailureFailsCall(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	client := new(MockClient)
	client.On("GetBalance", mock.Anything, owner, mock.Anything).
		Return(nil, &jsonrpc.RPCError{Code: 429, Message: "Too many requests"})
	client.On("GetTokenAccountBalance", mock.Anything, mock.Anything, mock.Anything).
		Return(&solanarpc.GetTokenAccountBalanceResult{
			Value: &solanarpc.UiTokenAmount{Amount: "1", Decimals: 0},
		}, nil).Maybe()

	agg, conns := newTestAggregator(t, client, clock.New())

	set, err := agg.Fetch(context.Background(), owner)
	require.Error(t, err)
	assert.Nil(t, set)
	assert.ErrorIs(t, err, rpc.ErrRateLimit)
	assert.Equal(t, int32(1), conns.reported.Load())
}

func TestFetchTokenFailureYieldsZeroWithDiagnostic(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	client := new(MockClient)
	client.On("GetBalance", mock.Anything, owner, mock.Anything).
		Return(&solanarpc.GetBalanceResult{Value: 1}, nil)
	client.On("GetTokenAccountBalance", mock.Anything, ata(t, owner, usdcMint), mock.Anything).
		Return(nil, errors.New("503 Service Unavailable"))
	client.On("GetTokenAccountBalance", mock.Anything, ata(t, owner, bonkMint), mock.Anything).
		Return(&solanarpc.GetTokenAccountBalanceResult{}, nil)

	agg, _ := newTestAggregator(t, client, clock.New())

	set, err := agg.Fetch(context.Background(), owner)
	require.NoError(t, err)

	assert.True(t, set.Token("USDC").IsZero())
	assert.True(t, set.Token("BONK").IsZero())
	assert.Contains(t, set.Errors["USDC"], "503")
	assert.Contains(t, set.Errors, "BONK")
	assert.Contains(t, set.Tokens, "USDC")
}

func TestFetchConnectionFailure(t *testing.T) {
	conns := &fakeConnector{err: &rpc.ProbeError{}}
	agg, err := NewAggregator(conns, testTokens(), Options{}, zap.NewNop())
	require.NoError(t, err)

	_, err = agg.Fetch(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, rpc.ErrAllEndpointsFailed)
	assert.Equal(t, int32(1), conns.reported.Load())
}

func TestFetchUsesConfiguredDecimalsFallback(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	client := new(MockClient)
	client.On("GetBalance", mock.Anything, owner, solanarpc.CommitmentConfirmed).
		Return(&solanarpc.GetBalanceResult{Value: 0}, nil)
	// узел не вернул decimals
	client.On("GetTokenAccountBalance", mock.Anything, ata(t, owner, usdcMint), solanarpc.CommitmentConfirmed).
		Return(&solanarpc.GetTokenAccountBalanceResult{
			Value: &solanarpc.UiTokenAmount{Amount: "7500000"},
		}, nil)
	client.On("GetTokenAccountBalance", mock.Anything, ata(t, owner, bonkMint), solanarpc.CommitmentConfirmed).
		Return(&solanarpc.GetTokenAccountBalanceResult{
			Value: &solanarpc.UiTokenAmount{Amount: "100", Decimals: 2},
		}, nil)

	agg, _ := newTestAggregator(t, client, clock.New())
	set, err := agg.Fetch(context.Background(), owner)
	require.NoError(t, err)

	assert.Equal(t, "7.5", set.Token("USDC").String())
	assert.Equal(t, "1", set.Token("BONK").String())
}

func TestFetchCancelled(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	client := new(MockClient)
	client.On("GetBalance", mock.Anything, owner, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.Canceled)
	client.On("GetTokenAccountBalance", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.Canceled)

	agg, conns := newTestAggregator(t, client, clock.New())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := agg.Fetch(ctx, owner)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), conns.reported.Load())
}

func TestNewAggregatorSymbols(t *testing.T) {
	conns := &fakeConnector{}

	agg, err := NewAggregator(conns, append(testTokens(), Token{Symbol: "USDC", Mint: usdcMint}), Options{}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, agg.Tokens(), 2)

	_, err = NewAggregator(conns, []Token{
		{Symbol: "USDC", Mint: usdcMint},
		{Symbol: "USDC", Mint: bonkMint},
	}, Options{}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewAggregator(conns, []Token{{Mint: usdcMint}}, Options{}, zap.NewNop())
	assert.Error(t, err)
}
