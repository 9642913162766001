package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics
	dbQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainledger_db_queries_total",
			Help: "Total number of ledger queries",
		},
		[]string{"db", "operation"},
	)

	dbQueryTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainledger_db_query_duration_seconds",
			Help:    "Duration of ledger queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"db", "operation"},
	)

	dbErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainledger_db_errors_total",
			Help: "Total number of ledger errors",
		},
		[]string{"db", "operation"},
	)

	// Indexing metrics
	LastProcessedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainledger_last_processed_block",
			Help: "The last block whose events are all stored",
		},
	)

	ChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainledger_chain_height",
			Help: "The most recently observed chain height",
		},
	)

	BlocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainledger_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
	)

	EventsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainledger_events_stored_total",
			Help: "Total number of events appended to the ledger",
		},
		[]string{"contract", "event"},
	)

	EventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainledger_events_duplicate_total",
			Help: "Total number of events skipped because they were already stored",
		},
		[]string{"contract"},
	)

	DecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainledger_decode_failures_total",
			Help: "Total number of logs skipped because they could not be decoded",
		},
		[]string{"contract"},
	)

	BatchProcessingTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainledger_batch_duration_seconds",
			Help:    "Time taken to process a batch of blocks",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainledger_batch_failures_total",
			Help: "Total number of failed batches",
		},
	)

	ConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainledger_consecutive_failures",
			Help: "Number of consecutive failed batches",
		},
	)

	IndexerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainledger_indexer_state",
			Help: "Current indexer state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainledger_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainledger_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainledger_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainledger_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func DBQueryInc(db string, operation string) {
	dbQueries.WithLabelValues(db, operation).Inc()
}

func DBQueryDuration(db string, operation string, duration time.Duration) {
	dbQueryTime.WithLabelValues(db, operation).Observe(duration.Seconds())
}

func DBErrorsInc(db string, operation string) {
	dbErrors.WithLabelValues(db, operation).Inc()
}

func LastProcessedBlockSet(block uint64) {
	LastProcessedBlock.Set(float64(block))
}

func ChainHeightSet(height uint64) {
	ChainHeight.Set(float64(height))
}

func BlocksProcessedAdd(count uint64) {
	BlocksProcessed.Add(float64(count))
}

func EventStoredInc(contract, event string) {
	EventsStored.WithLabelValues(contract, event).Inc()
}

func EventDuplicateInc(contract string) {
	EventsDuplicate.WithLabelValues(contract).Inc()
}

func DecodeFailureInc(contract string) {
	DecodeFailures.WithLabelValues(contract).Inc()
}

func BatchProcessingTimeLog(duration time.Duration) {
	BatchProcessingTime.Observe(duration.Seconds())
}

func BatchFailureInc() {
	BatchFailures.Inc()
}

func ConsecutiveFailuresSet(n int) {
	ConsecutiveFailures.Set(float64(n))
}

// IndexerStateSet marks state as the active one among states.
func IndexerStateSet(state string, states []string) {
	for _, s := range states {
		active := float64(0)
		if s == state {
			active = 1
		}
		IndexerState.WithLabelValues(s).Set(active)
	}
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
