// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RecordCacheHits       prometheus.Counter
	RecordCacheMisses     prometheus.Counter
	RecordLookups         *prometheus.CounterVec // outcome=found|not_found|error
	RecordChunkFailures   prometheus.Counter
	SessionLookupFailures prometheus.Counter
	ChartBuilds           *prometheus.CounterVec // outcome=ok|error
	HistorySyncRaces      prometheus.Counter
	HistorySyncFailures   prometheus.Counter
	ChatCommands          *prometheus.CounterVec // command=trend|link|unlink

	// Histograms (seconds)
	ChartBuildDuration  prometheus.Observer
	HistorySyncDuration prometheus.Observer

	// Gauges
	LinkedDriversGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RecordCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "laptrend_record_cache_hits_total", Help: "Record lookups served from cache"})
		RecordCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "laptrend_record_cache_misses_total", Help: "Record lookups that went upstream"})
		RecordLookups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "laptrend_record_lookups_total", Help: "Upstream record resolutions by outcome"}, []string{"outcome"})
		RecordChunkFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "laptrend_record_chunk_failures_total", Help: "Record dataset chunks that failed to download"})
		SessionLookupFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "laptrend_session_lookup_failures_total", Help: "Subsession detail lookups that failed"})
		ChartBuilds = promauto.NewCounterVec(prometheus.CounterOpts{Name: "laptrend_chart_builds_total", Help: "Trend chart builds by outcome"}, []string{"outcome"})
		HistorySyncRaces = promauto.NewCounter(prometheus.CounterOpts{Name: "laptrend_history_sync_races_total", Help: "Race results upserted by the history sync job"})
		HistorySyncFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "laptrend_history_sync_failures_total", Help: "Per-driver history sync failures"})
		ChatCommands = promauto.NewCounterVec(prometheus.CounterOpts{Name: "laptrend_chat_commands_total", Help: "Chat commands handled"}, []string{"command"})
		ChartBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "laptrend_chart_build_duration_seconds", Help: "Trend chart build duration seconds", Buckets: prometheus.DefBuckets})
		HistorySyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "laptrend_history_sync_duration_seconds", Help: "History sync cycle duration seconds", Buckets: prometheus.DefBuckets})
		LinkedDriversGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "laptrend_linked_drivers", Help: "Drivers linked to a chat account"})
	})
}

// Inc increments c if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Add adds n to c if metrics are initialized.
func Add(c prometheus.Counter, n int) {
	if c != nil && n > 0 {
		c.Add(float64(n))
	}
}

// IncLabel increments the labeled child of v if metrics are initialized.
func IncLabel(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// SetLinkedDrivers records the current number of linked drivers.
func SetLinkedDrivers(n int) {
	if LinkedDriversGauge != nil {
		LinkedDriversGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
