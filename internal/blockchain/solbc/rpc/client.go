// internal/blockchain/solbc/rpc/client.go
package rpc

import (
	"context"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// Client – подмножество JSON-RPC методов Solana, которое использует слой запросов.
// *solanarpc.Client удовлетворяет интерфейсу без адаптеров.
type Client interface {
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetTokenAccountBalanceResult, error)
}

// Dialer создает клиента для адреса эндпоинта.
type Dialer func(url string) Client

// DefaultDialer использует HTTP-клиент solana-go.
func DefaultDialer(url string) Client {
	return solanarpc.New(url)
}
