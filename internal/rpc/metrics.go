package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainledger_rpc_requests_total",
			Help: "Total number of RPC requests by method",
		},
		[]string{"method"},
	)

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainledger_rpc_errors_total",
			Help: "Total number of RPC errors by method and type",
		},
		[]string{"method", "error_type"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainledger_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	blockCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainledger_block_timestamp_cache_total",
			Help: "Block timestamp cache lookups by result",
		},
		[]string{"result"},
	)

	rangeSplits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainledger_rpc_log_range_splits_total",
			Help: "Number of times a log query was split after a too-many-results response",
		},
	)
)

func RPCMethodInc(method string) {
	RPCRequests.WithLabelValues(method).Inc()
}

func RPCMethodDuration(method string, duration time.Duration) {
	RPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RPCMethodError(method, errorType string) {
	RPCErrors.WithLabelValues(method, errorType).Inc()
}

func BlockCacheHitInc() {
	blockCacheLookups.WithLabelValues("hit").Inc()
}

func BlockCacheMissInc() {
	blockCacheLookups.WithLabelValues("miss").Inc()
}

func RangeSplitInc() {
	rangeSplits.Inc()
}
