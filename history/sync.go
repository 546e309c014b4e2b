// Package history keeps each linked driver's race history in the database up
// to date by periodically pulling their recent races from the upstream API.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/lap-trend/backend/db"
	"github.com/onnwee/lap-trend/backend/iracing"
	"github.com/onnwee/lap-trend/backend/telemetry"
	"github.com/onnwee/lap-trend/backend/timeutil"
	"github.com/onnwee/lap-trend/backend/trend"
)

// DefaultInterval is the sync period when none is configured.
const DefaultInterval = 30 * time.Minute

// RaceSource lists a driver's recent races.
type RaceSource interface {
	RecentRaces(ctx context.Context, custID int64) ([]trend.RaceResult, error)
}

// Store is the persistence the syncer needs.
type Store interface {
	ListLinkedDrivers(ctx context.Context) ([]db.LinkedDriver, error)
	UpsertRaceResults(ctx context.Context, custID int64, races []trend.RaceResult) (int, error)
	MarkSynced(ctx context.Context, custID int64, at time.Time) error
}

// Syncer copies recent races into the store.
type Syncer struct {
	Source RaceSource
	Store  Store
	Clock  timeutil.Clock
}

// Stats summarizes one SyncAll pass.
type Stats struct {
	Drivers  int
	Inserted int
	Failed   int
}

func (s *Syncer) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// SyncDriver fetches custID's recent races and stores the new ones.
func (s *Syncer) SyncDriver(ctx context.Context, custID int64) (int, error) {
	races, err := s.Source.RecentRaces(ctx, custID)
	if err != nil {
		return 0, fmt.Errorf("recent races for %d: %w", custID, err)
	}
	n, err := s.Store.UpsertRaceResults(ctx, custID, races)
	if err != nil {
		return 0, fmt.Errorf("store races for %d: %w", custID, err)
	}
	if err := s.Store.MarkSynced(ctx, custID, s.now()); err != nil {
		return n, fmt.Errorf("mark %d synced: %w", custID, err)
	}
	return n, nil
}

// SyncAll syncs every linked driver. A failing driver is logged and skipped;
// the pass stops early only when the upstream API is unavailable or ctx ends.
func (s *Syncer) SyncAll(ctx context.Context) (Stats, error) {
	drivers, err := s.Store.ListLinkedDrivers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list linked drivers: %w", err)
	}
	telemetry.SetLinkedDrivers(len(drivers))

	st := Stats{Drivers: len(drivers)}
	for _, d := range drivers {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		n, err := s.SyncDriver(ctx, d.CustID)
		st.Inserted += n
		telemetry.Add(telemetry.HistorySyncRaces, n)
		if err == nil {
			continue
		}
		st.Failed++
		telemetry.Inc(telemetry.HistorySyncFailures)
		if errors.Is(err, iracing.ErrUnavailable) {
			return st, err
		}
		slog.Warn("history sync failed for driver",
			slog.Int64("cust_id", d.CustID),
			slog.Any("err", err),
			slog.String("component", "history_sync"))
	}
	return st, nil
}

// StartHistorySyncJob runs SyncAll right away and then every interval (with
// ±10% jitter) until ctx is cancelled.
func StartHistorySyncJob(ctx context.Context, s *Syncer, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	slog.Info("history sync job starting", slog.Duration("interval", interval), slog.String("component", "history_sync"))
	for {
		runOnce(ctx, s)
		select {
		case <-ctx.Done():
			slog.Info("history sync job stopped", slog.String("component", "history_sync"))
			return
		case <-time.After(jittered(interval)):
		}
	}
}

func runOnce(ctx context.Context, s *Syncer) {
	var st Stats
	var err error
	telemetry.TimeFunc(telemetry.HistorySyncDuration, func() { st, err = s.SyncAll(ctx) })
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("history sync pass aborted", slog.Any("err", err), slog.Int("failed", st.Failed), slog.String("component", "history_sync"))
		return
	}
	slog.Info("history sync pass complete",
		slog.Int("drivers", st.Drivers),
		slog.Int("inserted", st.Inserted),
		slog.Int("failed", st.Failed),
		slog.String("component", "history_sync"))
}

func jittered(interval time.Duration) time.Duration {
	span := int64(interval / 10)
	if span <= 0 {
		return interval
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	return interval + time.Duration(rand.Int63n(2*span)-span)
}
