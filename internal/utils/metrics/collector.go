// internal/utils/metrics/collector.go
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "querycore"

// MetricType представляет тип метрики
type MetricType string

const (
	CacheRequestsType    MetricType = "cache_requests"
	CacheEntriesType     MetricType = "cache_entries"
	CacheEvictionsType   MetricType = "cache_evictions"
	ProbeCounterType     MetricType = "rpc_probes"
	ProbeDurationType    MetricType = "rpc_probe_duration"
	ReadinessStateType   MetricType = "readiness_state"
	UpstreamRequestsType MetricType = "upstream_requests"
	EventsDroppedType    MetricType = "events_dropped"
)

// Collector владеет набором метрик, зарегистрированных в переданном Registerer.
// Nil *Collector допустим: все методы записи становятся no-op.
type Collector struct {
	metrics sync.Map

	cacheRequests    *prometheus.CounterVec
	cacheEntries     prometheus.Gauge
	cacheEvictions   prometheus.Counter
	probes           *prometheus.CounterVec
	probeDuration    *prometheus.HistogramVec
	readinessState   prometheus.Gauge
	upstreamRequests *prometheus.CounterVec
	eventsDropped    prometheus.Counter
}

// NewCollector создает коллектор и регистрирует метрики в reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of entries currently held by the cache",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Expired entries removed by size-triggered sweeps",
		}),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_probe_total",
				Help:      "Endpoint health probes by outcome",
			},
			[]string{"endpoint", "result"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_probe_duration_seconds",
				Help:      "Endpoint health probe latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"endpoint"},
		),
		readinessState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "readiness_state",
			Help:      "Current readiness state (0 idle, 1 initializing, 2 ready, 3 retrying, 4 failed)",
		}),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests to HTTP upstreams by status",
			},
			[]string{"upstream", "status"},
		),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Outcome events dropped because the bus buffer was full",
		}),
	}

	metricsMap := map[MetricType]prometheus.Collector{
		CacheRequestsType:    c.cacheRequests,
		CacheEntriesType:     c.cacheEntries,
		CacheEvictionsType:   c.cacheEvictions,
		ProbeCounterType:     c.probes,
		ProbeDurationType:    c.probeDuration,
		ReadinessStateType:   c.readinessState,
		UpstreamRequestsType: c.upstreamRequests,
		EventsDroppedType:    c.eventsDropped,
	}

	for metricType, metric := range metricsMap {
		if err := reg.Register(metric); err != nil {
			return nil, fmt.Errorf("register %s: %w", metricType, err)
		}
		c.metrics.Store(metricType, metric)
	}

	return c, nil
}

// Reset сбрасывает все векторные метрики (полезно для тестирования)
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}
