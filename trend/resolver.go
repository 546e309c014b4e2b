package trend

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/lap-trend/backend/telemetry"
)

// BatchSize bounds how many record lookups ResolveBatch runs at once.
const BatchSize = 6

// Resolver resolves and caches the best-ever lap for a record query.
type Resolver struct {
	gw    RecordGateway
	cache *RecordCache
}

// NewResolver creates a Resolver backed by gw. A nil cache gets a fresh
// RecordCache on the wall clock.
func NewResolver(gw RecordGateway, cache *RecordCache) *Resolver {
	if cache == nil {
		cache = NewRecordCache(nil, RecordTTL)
	}
	return &Resolver{gw: gw, cache: cache}
}

// Cache exposes the underlying record cache.
func (r *Resolver) Cache() *RecordCache { return r.cache }

// Resolve returns the record for q, from cache when fresh. Upstream failures
// are cached as not found. A lookup abandoned because ctx ended reports not
// found without touching the cache.
func (r *Resolver) Resolve(ctx context.Context, q RecordQuery) Resolution {
	key := q.Key()
	if res, ok := r.cache.Get(key); ok {
		telemetry.Inc(telemetry.RecordCacheHits)
		return res
	}
	if ctx.Err() != nil {
		return Resolution{}
	}
	telemetry.Inc(telemetry.RecordCacheMisses)
	res := r.fetch(ctx, q)
	// the caller went away mid-fetch; the result may be partial
	if ctx.Err() != nil {
		return Resolution{}
	}
	r.cache.Set(key, res)
	return res
}

// ResolveBatch resolves every distinct query in groups of BatchSize. Each
// group runs concurrently and finishes before the next one starts.
func (r *Resolver) ResolveBatch(ctx context.Context, queries []RecordQuery) map[RecordKey]Resolution {
	seen := make(map[RecordKey]struct{}, len(queries))
	unique := make([]RecordQuery, 0, len(queries))
	for _, q := range queries {
		k := q.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, q)
	}

	out := make(map[RecordKey]Resolution, len(unique))
	var mu sync.Mutex
	for start := 0; start < len(unique); start += BatchSize {
		end := min(start+BatchSize, len(unique))
		var g errgroup.Group
		for _, q := range unique[start:end] {
			g.Go(func() error {
				res := r.Resolve(ctx, q)
				mu.Lock()
				out[q.Key()] = res
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

func (r *Resolver) fetch(ctx context.Context, q RecordQuery) Resolution {
	ctx, span := telemetry.StartSpan(ctx, "trend", "resolve_record",
		attribute.Int("car_id", q.CarID),
		attribute.Int("track_id", q.TrackID),
	)
	defer span.End()

	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "record_resolver"),
		slog.Int("car_id", q.CarID),
		slog.Int("track_id", q.TrackID),
	)

	ds, err := r.gw.ResolveRecordDataset(ctx, q)
	if err != nil {
		logger.Warn("record dataset lookup failed; caching as not found", slog.Any("err", err))
		telemetry.RecordError(span, err)
		telemetry.IncLabel(telemetry.RecordLookups, "error")
		return Resolution{}
	}

	var rows []RecordRow
	switch ds.Kind {
	case DatasetDirect:
		rows = ds.Rows
	case DatasetRedirected:
		for _, u := range ds.ChunkURLs {
			chunk, err := r.gw.FetchChunk(ctx, u)
			if err != nil {
				logger.Warn("record chunk fetch failed; skipping", slog.String("chunk", u), slog.Any("err", err))
				telemetry.Inc(telemetry.RecordChunkFailures)
				continue
			}
			rows = append(rows, chunk...)
		}
	}

	res := bestRecord(rows, q.Filters)
	if res.Found {
		telemetry.IncLabel(telemetry.RecordLookups, "found")
		logger.Debug("record resolved", slog.Float64("record", res.Value), slog.Int("rows", len(rows)))
	} else {
		telemetry.IncLabel(telemetry.RecordLookups, "not_found")
	}
	telemetry.SetSpanSuccess(span)
	return res
}

// bestRecord tracks the minimum positive lap per enabled session type and
// returns the overall minimum.
func bestRecord(rows []RecordRow, f Filters) Resolution {
	enabled := [4]bool{f.Practice, f.Qualify, f.TimeTrial, f.Race}
	var perType [4]float64
	for _, row := range rows {
		laps := [4]float64{row.PracticeLap, row.QualifyLap, row.TimeTrialLap, row.RaceLap}
		for i, lap := range laps {
			if !enabled[i] || !validLap(lap) {
				continue
			}
			if perType[i] == 0 || lap < perType[i] {
				perType[i] = lap
			}
		}
	}
	var best Resolution
	for _, v := range perType {
		if v > 0 && (!best.Found || v < best.Value) {
			best = Resolution{Value: v, Found: true}
		}
	}
	return best
}

func validLap(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
