// Package prometheus provides the Prometheus implementation of metrics.Cache.
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eternalApril/mixedds/internal/metrics"
)

const namespace = "mixedds"

// cacheMetrics implements metrics.Cache using Prometheus.
type cacheMetrics struct {
	hits         *prometheus.CounterVec
	misses       *prometheus.CounterVec
	inputErrors  *prometheus.CounterVec
	typeMismatch *prometheus.CounterVec
	writes       *prometheus.CounterVec
	deletes      *prometheus.CounterVec
	expired      prometheus.Counter
	evicted      prometheus.Counter
	keysByShard  *prometheus.GaugeVec
}

// NewCacheMetrics creates the cache collectors and registers them with reg.
func NewCacheMetrics(reg prometheus.Registerer) metrics.Cache {
	perProtocol := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"protocol"})
	}

	m := &cacheMetrics{
		hits:         perProtocol("hits_total", "Reads that found a live key"),
		misses:       perProtocol("misses_total", "Reads of absent or expired keys"),
		inputErrors:  perProtocol("input_errors_total", "Requests rejected during input validation"),
		typeMismatch: perProtocol("type_mismatches_total", "Operations against a key holding the wrong kind of value"),
		writes:       perProtocol("writes_total", "Successful mutations"),
		deletes:      perProtocol("deletes_total", "Keys removed by explicit deletion"),

		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_total",
			Help:      "Entries removed by the proactive expiration sweep",
		}),

		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_total",
			Help:      "Entries removed to stay under the capacity limit",
		}),

		keysByShard: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys",
			Help:      "Entries held per shard, expired but unswept entries included",
		}, []string{"shard"}),
	}

	reg.MustRegister(
		m.hits,
		m.misses,
		m.inputErrors,
		m.typeMismatch,
		m.writes,
		m.deletes,
		m.expired,
		m.evicted,
		m.keysByShard,
	)

	return m
}

func (m *cacheMetrics) Hit(protocol string) {
	m.hits.WithLabelValues(protocol).Inc()
}

func (m *cacheMetrics) Miss(protocol string) {
	m.misses.WithLabelValues(protocol).Inc()
}

func (m *cacheMetrics) InputError(protocol string) {
	m.inputErrors.WithLabelValues(protocol).Inc()
}

func (m *cacheMetrics) TypeMismatch(protocol string) {
	m.typeMismatch.WithLabelValues(protocol).Inc()
}

func (m *cacheMetrics) Write(protocol string) {
	m.writes.WithLabelValues(protocol).Inc()
}

func (m *cacheMetrics) Delete(protocol string) {
	m.deletes.WithLabelValues(protocol).Inc()
}

func (m *cacheMetrics) Expired(n int) {
	if n > 0 {
		m.expired.Add(float64(n))
	}
}

func (m *cacheMetrics) Evicted(n int) {
	if n > 0 {
		m.evicted.Add(float64(n))
	}
}

func (m *cacheMetrics) Keys(shard int, n int) {
	m.keysByShard.WithLabelValues(strconv.Itoa(shard)).Set(float64(n))
}
