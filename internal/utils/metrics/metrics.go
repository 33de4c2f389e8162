// internal/utils/metrics/metrics.go
package metrics

import (
	"time"
)

// RecordCacheRequest записывает результат обращения к кэшу (hit, miss, coalesced, error)
func (c *Collector) RecordCacheRequest(kind, result string) {
	if c == nil {
		return
	}
	c.cacheRequests.WithLabelValues(kind, result).Inc()
}

// SetCacheEntries обновляет размер кэша
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}

// RecordCacheEvictions учитывает удаленные при очистке записи
func (c *Collector) RecordCacheEvictions(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cacheEvictions.Add(float64(n))
}

// RecordProbe записывает исход health-probe для эндпоинта
func (c *Collector) RecordProbe(endpoint, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.probes.WithLabelValues(endpoint, result).Inc()
	c.probeDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetReadinessState выставляет числовой код состояния готовности
func (c *Collector) SetReadinessState(code int) {
	if c == nil {
		return
	}
	c.readinessState.Set(float64(code))
}

// RecordUpstreamRequest записывает запрос к HTTP-апстриму
func (c *Collector) RecordUpstreamRequest(upstream, status string) {
	if c == nil {
		return
	}
	c.upstreamRequests.WithLabelValues(upstream, status).Inc()
}

// RecordEventDropped учитывает событие, не поместившееся в буфер шины
func (c *Collector) RecordEventDropped() {
	if c == nil {
		return
	}
	c.eventsDropped.Inc()
}
