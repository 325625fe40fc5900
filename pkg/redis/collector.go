package redis

import (
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

type poolStatser interface {
	PoolStats() *goredis.PoolStats
}

// PoolCollector exports connection pool counters at scrape time.
type PoolCollector struct {
	client poolStatser

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	timeouts   *prometheus.Desc
	totalConns *prometheus.Desc
	idleConns  *prometheus.Desc
}

func NewPoolCollector(client poolStatser) *PoolCollector {
	return &PoolCollector{
		client:     client,
		hits:       prometheus.NewDesc("redis_pool_hits_total", "Times a free connection was found in the pool.", nil, nil),
		misses:     prometheus.NewDesc("redis_pool_misses_total", "Times a free connection was not found in the pool.", nil, nil),
		timeouts:   prometheus.NewDesc("redis_pool_timeouts_total", "Times a wait for a connection timed out.", nil, nil),
		totalConns: prometheus.NewDesc("redis_pool_connections", "Connections currently in the pool.", nil, nil),
		idleConns:  prometheus.NewDesc("redis_pool_idle_connections", "Idle connections currently in the pool.", nil, nil),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.timeouts
	ch <- c.totalConns
	ch <- c.idleConns
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.client.PoolStats()
	if stats == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(stats.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stats.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stats.IdleConns))
}
