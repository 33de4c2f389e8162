// internal/blockchain/solbc/client.go
package solbc

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

const (
	// NativeDecimals – количество знаков после запятой у SOL
	NativeDecimals = 9

	defaultAddressBookSize = 1024
)

// Определение ошибок
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrEmptyTokenAmount = errors.New("empty token amount in response")
)

// IsAccountNotFoundError проверяет, является ли ошибка "not found".
// Узлы возвращают для несуществующего токен-аккаунта "could not find account".
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "method not found") {
		return false
	}
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find account")
}

// LamportsToSOL переводит лампорты в SOL без потери точности.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -NativeDecimals)
}

// TokenAmountToDecimal переводит сырое значение токен-аккаунта с учетом его decimals.
// Если узел не сообщил decimals (0), используется fallbackDecimals.
func TokenAmountToDecimal(amount *rpc.UiTokenAmount, fallbackDecimals uint8) (decimal.Decimal, error) {
	if amount == nil || amount.Amount == "" {
		return decimal.Zero, ErrEmptyTokenAmount
	}
	raw, err := decimal.NewFromString(amount.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token amount %q: %w", amount.Amount, err)
	}
	decimals := amount.Decimals
	if decimals == 0 {
		decimals = fallbackDecimals
	}
	return raw.Shift(-int32(decimals)), nil
}

type addressKey struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

// AddressBook запоминает вычисленные адреса associated token accounts.
// Вычисление PDA детерминировано, поэтому вытеснение по LRU безопасно.
type AddressBook struct {
	cache *lru.Cache[addressKey, solana.PublicKey]
}

// NewAddressBook создает книгу адресов на size записей.
func NewAddressBook(size int) (*AddressBook, error) {
	if size <= 0 {
		size = defaultAddressBookSize
	}
	cache, err := lru.New[addressKey, solana.PublicKey](size)
	if err != nil {
		return nil, fmt.Errorf("create address cache: %w", err)
	}
	return &AddressBook{cache: cache}, nil
}

// AssociatedTokenAddress возвращает ATA владельца для минта.
func (b *AddressBook) AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	key := addressKey{owner: owner, mint: mint}
	if addr, ok := b.cache.Get(key); ok {
		return addr, nil
	}

	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address for %s: %w", mint, err)
	}
	b.cache.Add(key, addr)
	return addr, nil
}

// Len возвращает количество запомненных адресов.
func (b *AddressBook) Len() int {
	return b.cache.Len()
}
