package rpc

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/mock"
)

// MockClient реализует интерфейс Client
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

func healthyBlockhash() *solanarpc.GetLatestBlockhashResult {
	return &solanarpc.GetLatestBlockhashResult{
		Value: &solanarpc.LatestBlockhashResult{
			Blockhash:            solana.Hash{1, 2, 3},
			LastValidBlockHeight: 100,
		},
	}
}

// blockUntilDone имитирует зависший узел: вызов возвращается только по отмене контекста.
func blockUntilDone(args mock.Arguments) {
	ctx := args.Get(0).(context.Context)
	<-ctx.Done()
}

// fakeDialer выдает заранее подготовленные клиенты и считает подключения
type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*MockClient
	dialed  []string
}

func newFakeDialer(clients map[string]*MockClient) *fakeDialer {
	return &fakeDialer{clients: clients}
}

func (d *fakeDialer) Dial(url string) Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, url)
	return d.clients[url]
}

func (d *fakeDialer) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.dialed))
	copy(out, d.dialed)
	return out
}
