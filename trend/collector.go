package trend

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/lap-trend/backend/telemetry"
)

// Collector derives percentage-over-record points from a race history.
type Collector struct {
	resolver *Resolver
	sessions SessionGateway
	filters  Filters
}

// NewCollector creates a Collector that resolves records with all session
// types enabled.
func NewCollector(resolver *Resolver, sessions SessionGateway) *Collector {
	return &Collector{resolver: resolver, sessions: sessions, filters: DefaultFilters()}
}

// WithFilters returns a copy of c that resolves records under f.
func (c *Collector) WithFilters(f Filters) *Collector {
	cp := *c
	cp.filters = f
	return &cp
}

type combo struct{ car, track int }

// Collect returns one point per race at or after cutoff (all races when cutoff
// is zero) for which both the driver's best race lap and the combo record are
// valid, plus the number of distinct car/track combos in range. history must
// be ordered by StartTime ascending; the output keeps that order.
func (c *Collector) Collect(ctx context.Context, custID int64, history []RaceResult, cutoff time.Time) ([]RacePoint, int) {
	races := history
	if !cutoff.IsZero() {
		races = make([]RaceResult, 0, len(history))
		for _, r := range history {
			if !r.StartTime.Before(cutoff) {
				races = append(races, r)
			}
		}
	}

	combos := make(map[combo]struct{})
	queries := make([]RecordQuery, 0)
	for _, r := range races {
		k := combo{r.CarID, r.TrackID}
		if _, ok := combos[k]; ok {
			continue
		}
		combos[k] = struct{}{}
		queries = append(queries, c.query(k))
	}
	records := c.resolver.ResolveBatch(ctx, queries)

	// best laps are looked up one subsession at a time and memoized for this call only
	bestLaps := make(map[int64]float64)
	points := make([]RacePoint, 0, len(races))
	for _, r := range races {
		rec := records[c.query(combo{r.CarID, r.TrackID}).Key()]
		if !rec.Found {
			continue
		}
		best, seen := bestLaps[r.SubsessionID]
		if !seen {
			best = c.userBestLap(ctx, custID, r.SubsessionID)
			bestLaps[r.SubsessionID] = best
		}
		pct, ok := PercentOverRecord(best, rec.Value)
		if !ok {
			continue
		}
		points = append(points, RacePoint{Time: r.StartTime, Percent: pct})
	}
	return points, len(combos)
}

func (c *Collector) query(k combo) RecordQuery {
	return RecordQuery{CarID: k.car, TrackID: k.track, Filters: c.filters}
}

// userBestLap returns 0 when no valid lap can be found.
func (c *Collector) userBestLap(ctx context.Context, custID, subsessionID int64) float64 {
	segments, err := c.sessions.SessionDetail(ctx, subsessionID)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("session detail lookup failed; skipping race",
			slog.Int64("subsession_id", subsessionID),
			slog.Any("err", err),
			slog.String("component", "history_collector"))
		telemetry.Inc(telemetry.SessionLookupFailures)
		return 0
	}
	lap, ok := BestLapFromSegments(segments, custID)
	if !ok {
		return 0
	}
	return lap
}

// PercentOverRecord returns (userBest-record)/record*100. ok is false unless
// both values are finite and positive. Negative results are kept as is.
func PercentOverRecord(userBest, record float64) (float64, bool) {
	if !validLap(userBest) || !validLap(record) {
		return 0, false
	}
	return (userBest - record) / record * 100, true
}
