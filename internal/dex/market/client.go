// Package market talks to the price-quoting aggregator and the pair listing API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rovshanmuradov/solana-query/internal/utils/metrics"
)

const (
	DefaultAggregatorURL = "https://quote-api.jup.ag/v6"
	DefaultPairsURL      = "https://api.dexscreener.com/latest/dex"
	SolanaChain          = "solana"

	upstreamAggregator = "aggregator"
	upstreamPairs      = "pairs"
)

// Options configures a Client.
type Options struct {
	AggregatorURL     string
	PairsURL          string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// DefaultOptions возвращает настройки по умолчанию.
func DefaultOptions() Options {
	return Options{
		AggregatorURL:     DefaultAggregatorURL,
		PairsURL:          DefaultPairsURL,
		RequestsPerSecond: 10,
		Timeout:           10 * time.Second,
	}
}

// Client wraps both upstream HTTP APIs behind one shared rate limiter.
type Client struct {
	aggregator *resty.Client
	pairs      *resty.Client
	limiter    *rate.Limiter
	collector  *metrics.Collector
	logger     *zap.Logger
}

// NewClient создает клиент. Нулевые поля opts заменяются значениями по умолчанию.
func NewClient(opts Options, collector *metrics.Collector, logger *zap.Logger) *Client {
	def := DefaultOptions()
	if opts.AggregatorURL == "" {
		opts.AggregatorURL = def.AggregatorURL
	}
	if opts.PairsURL == "" {
		opts.PairsURL = def.PairsURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = def.RequestsPerSecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}

	newResty := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetTimeout(opts.Timeout).
			SetHeader("Accept", "application/json")
	}

	return &Client{
		aggregator: newResty(opts.AggregatorURL),
		pairs:      newResty(opts.PairsURL),
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		collector:  collector,
		logger:     logger.Named("market"),
	}
}

// Quote fetches an aggregator quote: GET /quote.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var quote QuoteResponse
	body, err := c.do(ctx, upstreamAggregator, c.aggregator.R().
		SetQueryParams(req.params()).
		SetResult(&quote), "GET", "/quote")
	if err != nil {
		return nil, fmt.Errorf("get quote %s->%s: %w", req.InputMint, req.OutputMint, err)
	}
	quote.Raw = body

	c.logger.Debug("Quote received",
		zap.String("input_mint", quote.InputMint),
		zap.String("output_mint", quote.OutputMint),
		zap.String("in_amount", quote.InAmount.String()),
		zap.String("out_amount", quote.OutAmount.String()),
		zap.String("price_impact_pct", quote.PriceImpactPct.String()))
	return &quote, nil
}

// Swap asks the aggregator to build transactions for a quote: POST /swap.
func (c *Client) Swap(ctx context.Context, req SwapRequest) (*SwapResponse, error) {
	if req.Quote == nil || len(req.Quote.Raw) == 0 {
		return nil, fmt.Errorf("%w: swap needs a quote obtained from Quote", ErrInvalidRequest)
	}
	if req.UserPublicKey == "" {
		return nil, fmt.Errorf("%w: user public key is required", ErrInvalidRequest)
	}

	payload := map[string]interface{}{
		"quoteResponse":    req.Quote.Raw,
		"userPublicKey":    req.UserPublicKey,
		"wrapAndUnwrapSol": req.WrapAndUnwrapSol,
	}

	var out SwapResponse
	if _, err := c.do(ctx, upstreamAggregator, c.aggregator.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&out), "POST", "/swap"); err != nil {
		return nil, fmt.Errorf("build swap: %w", err)
	}
	if len(out.Transactions()) == 0 {
		return nil, fmt.Errorf("build swap: empty transaction list")
	}
	return &out, nil
}

// TokenPairs lists the pairs that trade mint: GET /tokens/{mint}.
func (c *Client) TokenPairs(ctx context.Context, mint string) ([]Pair, error) {
	if mint == "" {
		return nil, fmt.Errorf("%w: mint is required", ErrInvalidRequest)
	}

	var res pairsResponse
	if _, err := c.do(ctx, upstreamPairs, c.pairs.R().
		SetPathParam("mint", mint).
		SetResult(&res), "GET", "/tokens/{mint}"); err != nil {
		return nil, fmt.Errorf("failed to get token pairs: %w", err)
	}

	c.logger.Debug("Token pairs received", zap.String("mint", mint), zap.Int("pairs", len(res.Pairs)))
	return res.Pairs, nil
}

// do выполняет HTTP запрос с учетом rate limit и возвращает тело ответа
func (c *Client) do(ctx context.Context, upstream string, req *resty.Request, method, path string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := req.SetContext(ctx).ForceContentType("application/json").Execute(method, path)
	if err != nil {
		c.collector.RecordUpstreamRequest(upstream, "error")
		return nil, fmt.Errorf("execute request: %w", err)
	}
	c.collector.RecordUpstreamRequest(upstream, strconv.Itoa(resp.StatusCode()))

	if resp.IsError() {
		apiErr := &APIError{Upstream: upstream, Status: resp.StatusCode(), Body: truncate(resp.String(), 256)}
		c.logger.Warn("Upstream request failed",
			zap.String("upstream", upstream),
			zap.String("path", path),
			zap.Int("status", apiErr.Status))
		return nil, apiErr
	}
	return json.RawMessage(resp.Body()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
