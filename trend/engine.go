package trend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/lap-trend/backend/chart"
	"github.com/onnwee/lap-trend/backend/telemetry"
	"github.com/onnwee/lap-trend/backend/timeutil"
)

// Engine builds trend charts for drivers from stored history and the upstream
// API. It is safe for concurrent use; overlapping builds for the same driver
// run independently.
type Engine struct {
	store     HistoryStore
	gw        Gateway
	clock     timeutil.Clock
	cache     *RecordCache
	filters   Filters
	smoothCfg SmoothConfig

	resolver  *Resolver
	collector *Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for range cutoffs and record expiry.
func WithClock(c timeutil.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithRecordCache shares an existing record cache.
func WithRecordCache(c *RecordCache) Option { return func(e *Engine) { e.cache = c } }

// WithFilters sets the session-type and season filters for record lookups.
func WithFilters(f Filters) Option { return func(e *Engine) { e.filters = f } }

// WithSmoothConfig overrides the smoother defaults.
func WithSmoothConfig(c SmoothConfig) Option { return func(e *Engine) { e.smoothCfg = c } }

// NewEngine wires a HistoryStore and a Gateway into a chart pipeline.
func NewEngine(store HistoryStore, gw Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		gw:      gw,
		clock:   timeutil.RealClock{},
		filters: DefaultFilters(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.cache == nil {
		e.cache = NewRecordCache(e.clock, RecordTTL)
	}
	e.resolver = NewResolver(gw, e.cache)
	e.collector = NewCollector(e.resolver, gw).WithFilters(e.filters)
	return e
}

// Request asks for one driver's chart.
type Request struct {
	CustID      int64
	DisplayName string
	Range       string
}

// Summary describes a built chart.
type Summary struct {
	PointCount int    `json:"point_count"`
	ComboCount int    `json:"combo_count"`
	RangeLabel string `json:"range_label"`
}

// Result is the output of Build.
type Result struct {
	Chart   *chart.Chart
	Summary Summary
	Points  []RacePoint
	Trend   []TrendPoint
}

// Build loads the driver's history, derives points, smooths them and renders
// the chart. Only store errors and gateway unavailability are returned;
// missing data produces an empty chart.
func (e *Engine) Build(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "trend", "build_chart",
		attribute.Int64("cust_id", req.CustID),
		attribute.String("range", NormalizeRange(req.Range)),
	)
	defer span.End()

	res, err := e.build(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.IncLabel(telemetry.ChartBuilds, "error")
		return nil, err
	}
	telemetry.SetSpanSuccess(span)
	telemetry.IncLabel(telemetry.ChartBuilds, "ok")
	if telemetry.ChartBuildDuration != nil {
		telemetry.ChartBuildDuration.Observe(time.Since(start).Seconds())
	}
	telemetry.LoggerWithCorr(ctx).Info("trend chart built",
		slog.Int64("cust_id", req.CustID),
		slog.Int("points", res.Summary.PointCount),
		slog.Int("combos", res.Summary.ComboCount),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("component", "trend_engine"))
	return res, nil
}

func (e *Engine) build(ctx context.Context, req Request) (*Result, error) {
	if err := e.gw.Ready(ctx); err != nil {
		return nil, fmt.Errorf("upstream not ready: %w", err)
	}
	history, err := e.store.RaceHistory(ctx, req.CustID)
	if err != nil {
		return nil, fmt.Errorf("load race history: %w", err)
	}

	token := NormalizeRange(req.Range)
	cutoff := RangeToCutoff(token, e.clock.Now())
	points, combos := e.collector.Collect(ctx, req.CustID, history, cutoff)
	trendPts := Smooth(points, e.smoothCfg)

	label := RangeLabel(token)
	title := "Lap pace vs. record"
	if req.DisplayName != "" {
		title = req.DisplayName + ": lap pace vs. record"
	}
	subtitle := fmt.Sprintf("%s · %d races · %d car/track combos · %% over best known lap", label, len(points), combos)

	return &Result{
		Chart:   chart.Render(toChartPoints(points), trendChartPoints(trendPts), chart.Options{Title: title, Subtitle: subtitle}),
		Summary: Summary{PointCount: len(points), ComboCount: combos, RangeLabel: label},
		Points:  points,
		Trend:   trendPts,
	}, nil
}

// FlushRecords drops all cached records and returns how many were removed.
func (e *Engine) FlushRecords() int { return e.cache.Flush() }

// CachedRecords reports how many record entries are cached.
func (e *Engine) CachedRecords() int { return e.cache.Len() }

func toChartPoints(points []RacePoint) []chart.Point {
	out := make([]chart.Point, len(points))
	for i, p := range points {
		out[i] = chart.Point{Time: p.Time, Value: p.Percent}
	}
	return out
}

func trendChartPoints(points []TrendPoint) []chart.Point {
	out := make([]chart.Point, len(points))
	for i, p := range points {
		out[i] = chart.Point{Time: p.Time, Value: p.Value}
	}
	return out
}
