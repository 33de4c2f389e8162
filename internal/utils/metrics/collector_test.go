package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.RecordCacheRequest("balance", "hit")
	c.RecordCacheRequest("balance", "hit")
	c.RecordCacheRequest("balance", "miss")
	c.RecordProbe("https://a", "ok", 10*time.Millisecond)
	c.SetCacheEntries(7)
	c.RecordCacheEvictions(3)
	c.RecordCacheEvictions(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheRequests.WithLabelValues("balance", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheRequests.WithLabelValues("balance", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probes.WithLabelValues("https://a", "ok")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.cacheEntries))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.cacheEvictions))

	c.Reset()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.cacheRequests.WithLabelValues("balance", "hit")))
}

func TestCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordCacheRequest("x", "hit")
		c.SetCacheEntries(1)
		c.RecordCacheEvictions(1)
		c.RecordProbe("e", "ok", time.Second)
		c.SetReadinessState(2)
		c.RecordUpstreamRequest("quote", "200")
		c.RecordEventDropped()
		c.Reset()
	})
}
