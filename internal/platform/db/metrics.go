package db

import (
	"github.com/prometheus/client_golang/prometheus"
)

type poolCollector struct {
	stats func() *PoolStats

	total    *prometheus.Desc
	idle     *prometheus.Desc
	acquired *prometheus.Desc
	max      *prometheus.Desc
	acquires *prometheus.Desc
}

// NewPoolCollector exports connection pool statistics read from stats on
// every scrape.
func NewPoolCollector(stats func() *PoolStats) prometheus.Collector {
	return &poolCollector{
		stats:    stats,
		total:    prometheus.NewDesc("maternity_db_pool_total_conns", "Open connections in the pool.", nil, nil),
		idle:     prometheus.NewDesc("maternity_db_pool_idle_conns", "Idle connections in the pool.", nil, nil),
		acquired: prometheus.NewDesc("maternity_db_pool_acquired_conns", "Connections currently in use.", nil, nil),
		max:      prometheus.NewDesc("maternity_db_pool_max_conns", "Configured pool size.", nil, nil),
		acquires: prometheus.NewDesc("maternity_db_pool_acquires_total", "Successful connection acquisitions.", nil, nil),
	}
}

// Describe implements Collector.
func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.acquired
	ch <- c.max
	ch <- c.acquires
}

// Collect implements Collector.
func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	if s == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
}
