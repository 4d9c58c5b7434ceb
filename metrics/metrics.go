package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "splits_"

	ResultSuccess  = "success"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
	ResultError    = "error"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	registerOnce sync.Once

	ledgerWrites       *prometheus.CounterVec
	ledgerWriteLatency *prometheus.HistogramVec

	balanceReads   *prometheus.CounterVec
	balanceLatency *prometheus.HistogramVec

	planReads     *prometheus.CounterVec
	planTransfers prometheus.Histogram

	balanceCache *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers the collectors with the default registry. Observe helpers
// are no-ops until Init has run.
func Init() {
	registerOnce.Do(func() {
		ledgerWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_writes_total",
				Help: "Total ledger writes by operation and result",
			},
			[]string{"op", "result"},
		)
		ledgerWriteLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ledger_write_latency_seconds",
				Help:    "Ledger write latency in seconds, group lock wait included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)
		balanceReads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "balance_reads_total",
				Help: "Total group balance computations by result",
			},
			[]string{"result"},
		)
		balanceLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "balance_latency_seconds",
				Help:    "Group balance computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		planReads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_plans_total",
				Help: "Total settlement plans by result",
			},
			[]string{"result"},
		)
		planTransfers = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_plan_transfers",
				Help:    "Number of transfers suggested per settlement plan",
				Buckets: prometheus.LinearBuckets(0, 2, 10),
			},
		)
		balanceCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "balance_cache_total",
				Help: "Balance cache lookups by outcome",
			},
			[]string{"outcome"},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_latency_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		prometheus.MustRegister(
			ledgerWrites,
			ledgerWriteLatency,
			balanceReads,
			balanceLatency,
			planReads,
			planTransfers,
			balanceCache,
			httpRequests,
			httpLatency,
		)
	})
}

func ObserveWrite(op, result string, duration time.Duration) {
	if ledgerWrites != nil {
		ledgerWrites.WithLabelValues(op, result).Inc()
	}
	if ledgerWriteLatency != nil {
		ledgerWriteLatency.WithLabelValues(op).Observe(duration.Seconds())
	}
}

func ObserveBalances(result string, duration time.Duration) {
	if balanceReads != nil {
		balanceReads.WithLabelValues(result).Inc()
	}
	if balanceLatency != nil {
		balanceLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func ObservePlan(result string, transfers int) {
	if planReads != nil {
		planReads.WithLabelValues(result).Inc()
	}
	if planTransfers != nil && result == ResultSuccess {
		planTransfers.Observe(float64(transfers))
	}
}

func IncCache(outcome string) {
	if balanceCache != nil {
		balanceCache.WithLabelValues(outcome).Inc()
	}
}

func ObserveHTTP(method, route string, status int, duration time.Duration) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}
