// Package app wires the query layer into a single fx application.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-query/internal/cache"
	"github.com/rovshanmuradov/solana-query/internal/config"
	"github.com/rovshanmuradov/solana-query/internal/dex/market"
	"github.com/rovshanmuradov/solana-query/internal/events"
	"github.com/rovshanmuradov/solana-query/internal/readiness"
	"github.com/rovshanmuradov/solana-query/internal/service"
	"github.com/rovshanmuradov/solana-query/internal/storage"
	"github.com/rovshanmuradov/solana-query/internal/storage/mongo"
	"github.com/rovshanmuradov/solana-query/internal/utils/logger"
	"github.com/rovshanmuradov/solana-query/internal/utils/metrics"
)

// ConfigPathEnv names the variable holding the config file path.
const ConfigPathEnv = "SOLANA_QUERY_CONFIG"

var Module = fx.Module("querycore",
	fx.Provide(
		LoadConfig,
		NewLogger,
		NewRegistry,
		metrics.NewCollector,
		NewManager,
		NewCache,
		NewBus,
		NewStorage,
		NewReadiness,
		NewMarket,
		NewService,
	),
	fx.Invoke(
		AttachRecorder,
		// сервис строится при старте, а не при первом обращении
		func(*service.Service) {},
		StartReadiness,
		ServeMetrics,
	),
)

// LoadConfig reads the file named by SOLANA_QUERY_CONFIG, defaults otherwise.
func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(os.Getenv(ConfigPathEnv))
}

// NewLogger builds the process logger and closes it on stop. Components get
// the plain *zap.Logger; the wrapper is for its helpers.
func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*logger.Logger, *zap.Logger, error) {
	lcfg := logger.DefaultConfig()
	lcfg.LogFile = cfg.LogFile
	lcfg.Development = cfg.DebugLogging

	l, err := logger.New(lcfg)
	if err != nil {
		return nil, nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return l.Close()
		},
	})
	return l, l.Logger, nil
}

// NewRegistry returns a private registry with the process collectors.
func NewRegistry() (*prometheus.Registry, prometheus.Registerer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, reg
}

func NewManager(cfg *config.Config, collector *metrics.Collector, log *zap.Logger) (*rpc.Manager, error) {
	pool, err := rpc.NewPool(cfg.RPCList)
	if err != nil {
		return nil, err
	}
	return rpc.NewManager(pool, cfg.ManagerOptions(), collector, log), nil
}

func NewCache(cfg *config.Config, collector *metrics.Collector, log *zap.Logger) *cache.Cache {
	return cache.New(cfg.CacheOptions(), collector, log)
}

func NewBus(lc fx.Lifecycle, cfg *config.Config, collector *metrics.Collector, log *zap.Logger) *events.Bus {
	bus := events.NewBus(cfg.EventBufferSize, collector, log)
	lc.Append(fx.Hook{OnStop: bus.Shutdown})
	return bus
}

// NewStorage connects to MongoDB when mongo_uri is set and falls back to
// an in-memory ring otherwise.
func NewStorage(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	if cfg.MongoURI == "" {
		log.Info("mongo_uri not set, outcome records kept in memory")
		return storage.NewMemoryStore(0), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	store, err := mongo.New(ctx, mongo.Options{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: store.Close})
	return store, nil
}

// NewReadiness treats a successful probe round as the dependency being ready.
func NewReadiness(cfg *config.Config, manager *rpc.Manager, bus *events.Bus, collector *metrics.Collector, log *zap.Logger) *readiness.Controller {
	opts := cfg.ReadinessOptions()
	opts.OnChange = service.ReadinessPublisher(bus, log)
	return readiness.New(func(ctx context.Context) error {
		_, err := manager.GetConnection(ctx)
		return err
	}, opts, collector, log)
}

func NewMarket(cfg *config.Config, collector *metrics.Collector, log *zap.Logger) *market.Client {
	return market.NewClient(cfg.MarketOptions(), collector, log)
}

func NewService(cfg *config.Config, manager *rpc.Manager, ctrl *readiness.Controller, c *cache.Cache, client *market.Client, bus *events.Bus, log *zap.Logger) (*service.Service, error) {
	tokens, err := cfg.TokenList()
	if err != nil {
		return nil, err
	}
	return service.New(service.Deps{
		Connections: manager,
		Readiness:   ctrl,
		Cache:       c,
		TTLs:        cfg.TTLs(),
		Tokens:      tokens,
		Market:      client,
		Publisher:   bus,
	}, log)
}

// AttachRecorder sends every OutcomeEvent to storage.
func AttachRecorder(lc fx.Lifecycle, store storage.Storage, bus *events.Bus, log *zap.Logger) {
	rec := storage.NewRecorder(store, log)
	rec.Attach(bus)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			rec.Detach()
			return nil
		},
	})
}

// StartReadiness runs the first initialization in the background so start-up
// is not blocked by slow endpoints. A failed start is left in Failed: the
// retry budget belongs to the caller of Service.RetryReadiness.
func StartReadiness(lc fx.Lifecycle, ctrl *readiness.Controller, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				st := ctrl.EnsureReady(ctx)
				log.Info("Readiness settled",
					zap.String("state", st.State.String()),
					zap.Bool("can_retry", st.CanRetry()),
					zap.String("error", st.Message()))
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// ServeMetrics exposes the registry on metrics_addr, if configured.
func ServeMetrics(lc fx.Lifecycle, cfg *config.Config, reg *prometheus.Registry, log *logger.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.LogError("Metrics server stopped", err, zap.String("addr", cfg.MetricsAddr))
				}
			}()
			log.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
