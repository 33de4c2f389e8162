// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/solana-query/internal/balance"
	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-query/internal/cache"
	"github.com/rovshanmuradov/solana-query/internal/dex/market"
	"github.com/rovshanmuradov/solana-query/internal/readiness"
)

const EnvPrefix = "SOLANA_QUERY"

type CacheTTLConfig struct {
	PoolInfoMs   int `mapstructure:"pool_info_ms"`
	PairListMs   int `mapstructure:"pair_list_ms"`
	SimulationMs int `mapstructure:"simulation_ms"`
	BalanceMs    int `mapstructure:"balance_ms"`
}

type TokenConfig struct {
	Mint     string `mapstructure:"mint"`
	Decimals uint8  `mapstructure:"decimals"`
}

type Config struct {
	RPCList                    []string               `mapstructure:"rpc_list"`
	ProbeTimeoutMs             int                    `mapstructure:"probe_timeout_ms"`
	CacheTTL                   CacheTTLConfig         `mapstructure:"cache_ttl"`
	MaxRetries                 int                    `mapstructure:"max_retries"`
	RetryDelayMs               int                    `mapstructure:"retry_delay_ms"`
	CacheSizeEvictionThreshold int                    `mapstructure:"cache_size_eviction_threshold"`
	AggregatorURL              string                 `mapstructure:"aggregator_url"`
	PairsURL                   string                 `mapstructure:"pairs_url"`
	AggregatorRPS              float64                `mapstructure:"aggregator_rps"`
	HTTPTimeoutMs              int                    `mapstructure:"http_timeout_ms"`
	Tokens                     map[string]TokenConfig `mapstructure:"tokens"`
	MongoURI                   string                 `mapstructure:"mongo_uri"`
	MongoDatabase              string                 `mapstructure:"mongo_database"`
	EventBufferSize            int                    `mapstructure:"event_buffer_size"`
	MetricsAddr                string                 `mapstructure:"metrics_addr"`
	DebugLogging               bool                   `mapstructure:"debug_logging"`
	LogFile                    string                 `mapstructure:"log_file"`
}

const (
	DefaultRPC                        = "https://api.mainnet-beta.solana.com"
	DefaultProbeTimeoutMs             = 3000
	DefaultPoolInfoTTLMs              = 10000
	DefaultPairListTTLMs              = 30000
	DefaultSimulationTTLMs            = 2000
	DefaultBalanceTTLMs               = 5000
	DefaultMaxRetries                 = 3
	DefaultRetryDelayMs               = 500
	DefaultCacheSizeEvictionThreshold = 100
	DefaultAggregatorRPS              = 10
	DefaultHTTPTimeoutMs              = 10000
	DefaultMongoDatabase              = "solana_query"
	DefaultEventBufferSize            = 256
	DefaultLogFile                    = "logs/querycore.log"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"rpc_list":                      []string{DefaultRPC},
		"probe_timeout_ms":              DefaultProbeTimeoutMs,
		"cache_ttl.pool_info_ms":        DefaultPoolInfoTTLMs,
		"cache_ttl.pair_list_ms":        DefaultPairListTTLMs,
		"cache_ttl.simulation_ms":       DefaultSimulationTTLMs,
		"cache_ttl.balance_ms":          DefaultBalanceTTLMs,
		"max_retries":                   DefaultMaxRetries,
		"retry_delay_ms":                DefaultRetryDelayMs,
		"cache_size_eviction_threshold": DefaultCacheSizeEvictionThreshold,
		"aggregator_url":                market.DefaultAggregatorURL,
		"pairs_url":                     market.DefaultPairsURL,
		"aggregator_rps":                DefaultAggregatorRPS,
		"http_timeout_ms":               DefaultHTTPTimeoutMs,
		"mongo_uri":                     "",
		"mongo_database":                DefaultMongoDatabase,
		"event_buffer_size":             DefaultEventBufferSize,
		"metrics_addr":                  "",
		"debug_logging":                 false,
		"log_file":                      DefaultLogFile,
	}
}

// Default возвращает валидную конфигурацию без файла и окружения.
func Default() *Config {
	v := newViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

// LoadConfig reads path (JSON or YAML) over the defaults and applies
// SOLANA_QUERY_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	loadEnvironmentVariables(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	return v
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("rpc_list entry %q: %w", rpcURL, err)
		}
	}
	if err := validateURLWithCache(cfg.AggregatorURL, "http"); err != nil {
		return fmt.Errorf("aggregator_url: %w", err)
	}
	if err := validateURLWithCache(cfg.PairsURL, "http"); err != nil {
		return fmt.Errorf("pairs_url: %w", err)
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	for symbol, token := range cfg.Tokens {
		if _, err := solana.PublicKeyFromBase58(token.Mint); err != nil {
			return fmt.Errorf("token %s: invalid mint %q: %w", symbol, token.Mint, err)
		}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	positive := map[string]int{
		"probe_timeout_ms":              cfg.ProbeTimeoutMs,
		"cache_ttl.pool_info_ms":        cfg.CacheTTL.PoolInfoMs,
		"cache_ttl.pair_list_ms":        cfg.CacheTTL.PairListMs,
		"cache_ttl.simulation_ms":       cfg.CacheTTL.SimulationMs,
		"cache_ttl.balance_ms":          cfg.CacheTTL.BalanceMs,
		"cache_size_eviction_threshold": cfg.CacheSizeEvictionThreshold,
		"http_timeout_ms":               cfg.HTTPTimeoutMs,
		"event_buffer_size":             cfg.EventBufferSize,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("invalid %s: %d", key, value)
		}
	}
	if cfg.MaxRetries < 0 {
		return errors.New("invalid max_retries")
	}
	if cfg.RetryDelayMs < 0 {
		return errors.New("invalid retry_delay_ms")
	}
	if cfg.AggregatorRPS <= 0 {
		return errors.New("invalid aggregator_rps")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// RPC_LIST в окружении задается через запятую
func loadEnvironmentVariables(cfg *Config) {
	envRPCList := os.Getenv(EnvPrefix + "_RPC_LIST")
	if envRPCList == "" {
		return
	}
	var cleanRPCs []string
	for _, rpcURL := range strings.Split(envRPCList, ",") {
		if clean := strings.TrimSpace(rpcURL); clean != "" {
			cleanRPCs = append(cleanRPCs, clean)
		}
	}
	if len(cleanRPCs) > 0 {
		cfg.RPCList = cleanRPCs
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// ManagerOptions returns connection manager settings.
func (c *Config) ManagerOptions() rpc.ManagerOptions {
	opts := rpc.DefaultManagerOptions()
	opts.ProbeTimeout = ms(c.ProbeTimeoutMs)
	return opts
}

// CacheOptions returns cache settings.
func (c *Config) CacheOptions() cache.Options {
	opts := cache.DefaultOptions()
	opts.EvictionThreshold = c.CacheSizeEvictionThreshold
	return opts
}

// TTLs returns the per-class cache lifetimes.
func (c *Config) TTLs() cache.TTLs {
	return cache.TTLs{
		PoolInfo:   ms(c.CacheTTL.PoolInfoMs),
		PairList:   ms(c.CacheTTL.PairListMs),
		Simulation: ms(c.CacheTTL.SimulationMs),
		Balance:    ms(c.CacheTTL.BalanceMs),
	}
}

// ReadinessOptions returns readiness controller settings.
func (c *Config) ReadinessOptions() readiness.Options {
	opts := readiness.DefaultOptions()
	opts.MaxRetries = c.MaxRetries
	opts.SettleDelay = ms(c.RetryDelayMs)
	return opts
}

// MarketOptions returns market client settings.
func (c *Config) MarketOptions() market.Options {
	return market.Options{
		AggregatorURL:     c.AggregatorURL,
		PairsURL:          c.PairsURL,
		RequestsPerSecond: c.AggregatorRPS,
		Timeout:           ms(c.HTTPTimeoutMs),
	}
}

// TokenList returns configured tokens sorted by symbol. Viper lowercases
// map keys, so symbols come back upper-cased.
func (c *Config) TokenList() ([]balance.Token, error) {
	tokens := make([]balance.Token, 0, len(c.Tokens))
	for symbol, t := range c.Tokens {
		mint, err := solana.PublicKeyFromBase58(t.Mint)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", symbol, err)
		}
		tokens = append(tokens, balance.Token{
			Symbol:   strings.ToUpper(symbol),
			Mint:     mint,
			Decimals: t.Decimals,
		})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })
	return tokens, nil
}
