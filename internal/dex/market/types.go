package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-query/internal/dex/swap"
)

var (
	ErrRateLimited    = errors.New("upstream rate limit exceeded")
	ErrInvalidRequest = errors.New("invalid market request")
	ErrNoPair         = errors.New("no matching pair found")
)

// APIError is a non-2xx answer from an upstream HTTP API.
type APIError struct {
	Upstream string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Upstream, e.Status, e.Body)
}

// Is сопоставляет 429 с ErrRateLimited.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.Status == 429
}

// QuoteRequest запрашивает котировку агрегатора. Amount в минимальных единицах.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps uint16
}

func (r QuoteRequest) validate() error {
	switch {
	case r.InputMint == "" || r.OutputMint == "":
		return fmt.Errorf("%w: both mints are required", ErrInvalidRequest)
	case r.InputMint == r.OutputMint:
		return fmt.Errorf("%w: input and output mint are equal", ErrInvalidRequest)
	case r.Amount == 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case r.SlippageBps > 10000:
		return fmt.Errorf("%w: slippage %d bps exceeds 100%%", ErrInvalidRequest, r.SlippageBps)
	}
	return nil
}

func (r QuoteRequest) params() map[string]string {
	return map[string]string{
		"inputMint":   r.InputMint,
		"outputMint":  r.OutputMint,
		"amount":      strconv.FormatUint(r.Amount, 10),
		"slippageBps": strconv.FormatUint(uint64(r.SlippageBps), 10),
	}
}

// QuoteResponse is the part of the aggregator quote the core relies on.
// Raw keeps the full upstream document so it can be posted back to /swap.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             decimal.Decimal `json:"inAmount"`
	OutAmount            decimal.Decimal `json:"outAmount"`
	OtherAmountThreshold decimal.Decimal `json:"otherAmountThreshold"`
	PriceImpactPct       decimal.Decimal `json:"priceImpactPct"`
	SlippageBps          int             `json:"slippageBps"`

	Raw json.RawMessage `json:"-"`
}

// SwapRequest asks the aggregator to build swap transactions for a quote.
type SwapRequest struct {
	Quote            *QuoteResponse
	UserPublicKey    string
	WrapAndUnwrapSol bool
}

// SwapResponse carries unsigned base64 transactions; signing is the caller's business.
type SwapResponse struct {
	SwapTransaction  string   `json:"swapTransaction,omitempty"`
	SwapTransactions []string `json:"swapTransactions,omitempty"`
}

// Transactions returns every transaction blob in the response.
func (r *SwapResponse) Transactions() []string {
	out := make([]string, 0, len(r.SwapTransactions)+1)
	if r.SwapTransaction != "" {
		out = append(out, r.SwapTransaction)
	}
	return append(out, r.SwapTransactions...)
}

// pairsResponse представляет основную структуру ответа DexScreener
type pairsResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair содержит информацию о паре
type Pair struct {
	ChainID       string        `json:"chainId"`
	DexID         string        `json:"dexId"`
	PairAddress   string        `json:"pairAddress"`
	BaseToken     TokenInfo     `json:"baseToken"`
	QuoteToken    TokenInfo     `json:"quoteToken"`
	PriceNative   string        `json:"priceNative"`
	Liquidity     LiquidityInfo `json:"liquidity"`
	Volume        *VolumeInfo   `json:"volume,omitempty"`
	PairCreatedAt int64         `json:"pairCreatedAt"`
}

// TokenInfo содержит информацию о токене
type TokenInfo struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

// LiquidityInfo содержит информацию о ликвидности
type LiquidityInfo struct {
	USD   decimal.Decimal `json:"usd"`
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// VolumeInfo - объем торгов
type VolumeInfo struct {
	H24 decimal.Decimal `json:"h24"`
}

// Snapshot builds a pool snapshot from the listed liquidity. Decimals
// are not part of the listing and must come from the caller.
func (p Pair) Snapshot(baseDecimals, quoteDecimals uint8) (swap.PoolSnapshot, error) {
	price := decimal.Zero
	if p.PriceNative != "" {
		var err error
		if price, err = decimal.NewFromString(p.PriceNative); err != nil {
			return swap.PoolSnapshot{}, fmt.Errorf("pair %s price %q: %w", p.PairAddress, p.PriceNative, err)
		}
	}

	snapshot := swap.PoolSnapshot{
		PoolID:        p.PairAddress,
		BaseMint:      p.BaseToken.Address,
		QuoteMint:     p.QuoteToken.Address,
		BaseReserve:   p.Liquidity.Base,
		QuoteReserve:  p.Liquidity.Quote,
		Price:         price,
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
	}
	if p.Volume != nil {
		v := p.Volume.H24
		snapshot.Volume24h = &v
	}
	return snapshot, nil
}

// PairFilter narrows BestPair. Empty fields match anything.
type PairFilter struct {
	ChainID   string
	DexID     string
	QuoteMint string
}

// BestPair returns the pair with the highest USD liquidity that passes filter.
// QuoteMint matches either side of the pair.
func BestPair(pairs []Pair, filter PairFilter) (*Pair, error) {
	var best *Pair
	for i := range pairs {
		pair := &pairs[i]
		if filter.ChainID != "" && pair.ChainID != filter.ChainID {
			continue
		}
		if filter.DexID != "" && pair.DexID != filter.DexID {
			continue
		}
		if filter.QuoteMint != "" && pair.BaseToken.Address != filter.QuoteMint && pair.QuoteToken.Address != filter.QuoteMint {
			continue
		}
		if best == nil || pair.Liquidity.USD.GreaterThan(best.Liquidity.USD) {
			best = pair
		}
	}
	if best == nil {
		return nil, ErrNoPair
	}
	return best, nil
}
