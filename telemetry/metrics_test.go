package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialized(t *testing.T) {
	Init()

	if RecordCacheHits == nil || RecordCacheMisses == nil {
		t.Error("record cache counters not initialized")
	}
	if RecordLookups == nil || ChartBuilds == nil || ChatCommands == nil {
		t.Error("labeled counters not initialized")
	}
	if ChartBuildDuration == nil || HistorySyncDuration == nil {
		t.Error("histograms not initialized")
	}
}

func TestIncHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(RecordCacheHits)
	Inc(RecordCacheHits)
	if got := testutil.ToFloat64(RecordCacheHits); got != before+1 {
		t.Errorf("RecordCacheHits = %v, want %v", got, before+1)
	}

	beforeFound := testutil.ToFloat64(RecordLookups.WithLabelValues("found"))
	IncLabel(RecordLookups, "found")
	if got := testutil.ToFloat64(RecordLookups.WithLabelValues("found")); got != beforeFound+1 {
		t.Errorf("RecordLookups{found} = %v, want %v", got, beforeFound+1)
	}

	// nil collectors are ignored
	Inc(nil)
	IncLabel(nil, "x")
}

func TestLinkedDriversGauge(t *testing.T) {
	Init()
	SetLinkedDrivers(7)
	if got := testutil.ToFloat64(LinkedDriversGauge); got != 7 {
		t.Errorf("LinkedDriversGauge = %v, want 7", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	d := TimeFunc(h, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if d < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", d)
	}
	if n := testutil.CollectAndCount(h); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
