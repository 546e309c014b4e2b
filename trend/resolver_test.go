package trend

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/lap-trend/backend/timeutil"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestResolveCachesWithinTTL(t *testing.T) {
	gw := newFakeGateway()
	q := RecordQuery{CarID: 10, TrackID: 20, Filters: DefaultFilters()}
	gw.datasets[q.Key()] = Direct([]RecordRow{{RaceLap: 9000}})

	clock := timeutil.NewMockClock(t0)
	r := NewResolver(gw, NewRecordCache(clock, RecordTTL))
	ctx := context.Background()

	first := r.Resolve(ctx, q)
	clock.Advance(RecordTTL - time.Second)
	second := r.Resolve(ctx, q)
	if gw.datasetCalls != 1 {
		t.Fatalf("dataset calls within TTL = %d, want 1", gw.datasetCalls)
	}
	if first != second || !first.Found || first.Value != 9000 {
		t.Fatalf("resolutions = %+v / %+v, want found 9000", first, second)
	}

	clock.Advance(2 * time.Second)
	r.Resolve(ctx, q)
	if gw.datasetCalls != 2 {
		t.Errorf("dataset calls after expiry = %d, want 2", gw.datasetCalls)
	}
}

func TestResolveCachesNotFoundAndFailures(t *testing.T) {
	gw := newFakeGateway()
	missing := RecordQuery{CarID: 1, TrackID: 1, Filters: DefaultFilters()}
	broken := RecordQuery{CarID: 2, TrackID: 2, Filters: DefaultFilters()}
	gw.datasets[missing.Key()] = Direct(nil)
	gw.datasetErr[broken.Key()] = errUpstream

	r := NewResolver(gw, NewRecordCache(timeutil.NewMockClock(t0), 0))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if res := r.Resolve(ctx, missing); res.Found {
			t.Fatalf("missing resolved as %+v", res)
		}
		if res := r.Resolve(ctx, broken); res.Found {
			t.Fatalf("broken resolved as %+v", res)
		}
	}
	if gw.datasetCalls != 2 {
		t.Errorf("dataset calls = %d, want 2 (negative results cached)", gw.datasetCalls)
	}
}

// cancellingGateway cancels the caller's context while the dataset lookup
// is in flight, then fails the way a transport does.
type cancellingGateway struct {
	*fakeGateway
	cancel context.CancelFunc
}

func (g *cancellingGateway) ResolveRecordDataset(ctx context.Context, q RecordQuery) (Dataset, error) {
	g.fakeGateway.ResolveRecordDataset(ctx, q)
	g.cancel()
	return Dataset{}, ctx.Err()
}

func TestResolveDoesNotCacheAbandonedLookups(t *testing.T) {
	gw := newFakeGateway()
	q := RecordQuery{CarID: 10, TrackID: 20, Filters: DefaultFilters()}
	gw.datasets[q.Key()] = Direct([]RecordRow{{RaceLap: 9000}})
	cache := NewRecordCache(timeutil.NewMockClock(t0), 0)

	t.Run("cancelled before lookup", func(t *testing.T) {
		r := NewResolver(gw, cache)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if res := r.Resolve(ctx, q); res.Found {
			t.Fatalf("cancelled resolve = %+v, want not found", res)
		}
		if gw.datasetCalls != 0 {
			t.Errorf("dataset calls = %d, want 0 for a cancelled caller", gw.datasetCalls)
		}
		if cache.Len() != 0 {
			t.Errorf("cache holds %d entries after a cancelled resolve", cache.Len())
		}
	})

	t.Run("cancelled mid lookup", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r := NewResolver(&cancellingGateway{fakeGateway: gw, cancel: cancel}, cache)
		if res := r.Resolve(ctx, q); res.Found {
			t.Fatalf("abandoned resolve = %+v, want not found", res)
		}
		if cache.Len() != 0 {
			t.Errorf("cache holds %d entries after an abandoned resolve", cache.Len())
		}
	})

	t.Run("next caller still sees the record", func(t *testing.T) {
		calls := gw.datasetCalls
		res := NewResolver(gw, cache).Resolve(context.Background(), q)
		if !res.Found || res.Value != 9000 {
			t.Fatalf("fresh resolve = %+v, want found 9000", res)
		}
		if gw.datasetCalls != calls+1 {
			t.Errorf("dataset calls = %d, want %d", gw.datasetCalls, calls+1)
		}
	})
}

func TestResolveRedirectedChunks(t *testing.T) {
	gw := newFakeGateway()
	q := RecordQuery{CarID: 5, TrackID: 6, Filters: DefaultFilters()}
	gw.datasets[q.Key()] = Redirected([]string{"c1", "c2", "c3"})
	gw.chunks["c1"] = []RecordRow{{PracticeLap: 9100, RaceLap: 9300}}
	gw.chunkErr["c2"] = errUpstream
	gw.chunks["c3"] = []RecordRow{{QualifyLap: 9050}, {TimeTrialLap: -5, RaceLap: 0}}

	r := NewResolver(gw, nil)
	res := r.Resolve(context.Background(), q)
	if !res.Found || res.Value != 9050 {
		t.Errorf("Resolve = %+v, want found 9050", res)
	}
	if gw.chunkCalls != 3 {
		t.Errorf("chunk calls = %d, want 3", gw.chunkCalls)
	}
}

func TestBestRecordRespectsFilters(t *testing.T) {
	rows := []RecordRow{
		{PracticeLap: 8000, QualifyLap: 8500, TimeTrialLap: 8700, RaceLap: 9000},
		{RaceLap: 8900},
	}
	tests := []struct {
		name    string
		filters Filters
		want    Resolution
	}{
		{"all types", DefaultFilters(), Resolution{Value: 8000, Found: true}},
		{"race only", Filters{Race: true}, Resolution{Value: 8900, Found: true}},
		{"qualify and tt", Filters{Qualify: true, TimeTrial: true}, Resolution{Value: 8500, Found: true}},
		{"nothing enabled", Filters{}, Resolution{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bestRecord(rows, tt.filters); got != tt.want {
				t.Errorf("bestRecord = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// gatedGateway only releases calls once the expected number of callers for
// the current group have arrived, so a resolver that does not batch either
// deadlocks into the timeout or overshoots the peak.
type gatedGateway struct {
	mu       sync.Mutex
	sizes    []int
	group    int
	arrived  int
	gate     chan struct{}
	inflight int
	peak     int
	groups   []int
	timeouts int
}

func (g *gatedGateway) ResolveRecordDataset(_ context.Context, _ RecordQuery) (Dataset, error) {
	g.mu.Lock()
	if g.gate == nil {
		g.gate = make(chan struct{})
	}
	gate := g.gate
	g.arrived++
	g.inflight++
	g.peak = max(g.peak, g.inflight)
	if g.group < len(g.sizes) && g.arrived == g.sizes[g.group] {
		g.groups = append(g.groups, g.arrived)
		close(gate)
		g.group++
		g.arrived = 0
		g.gate = nil
	}
	g.mu.Unlock()

	select {
	case <-gate:
	case <-time.After(2 * time.Second):
		g.mu.Lock()
		g.timeouts++
		g.mu.Unlock()
	}

	g.mu.Lock()
	g.inflight--
	g.mu.Unlock()
	return Direct([]RecordRow{{RaceLap: 100}}), nil
}

func (g *gatedGateway) FetchChunk(context.Context, string) ([]RecordRow, error) { return nil, nil }

func TestResolveBatchRunsBoundedGroups(t *testing.T) {
	gw := &gatedGateway{sizes: []int{6, 6, 1}}
	r := NewResolver(gw, nil)

	queries := make([]RecordQuery, 0, 14)
	for i := 0; i < 13; i++ {
		queries = append(queries, RecordQuery{CarID: i, TrackID: 100 + i, Filters: DefaultFilters()})
	}
	queries = append(queries, queries[0]) // duplicate is resolved once

	got := r.ResolveBatch(context.Background(), queries)
	if len(got) != 13 {
		t.Fatalf("resolved %d keys, want 13", len(got))
	}
	if gw.timeouts != 0 {
		t.Fatalf("%d calls waited for a group that never filled", gw.timeouts)
	}
	if fmt.Sprint(gw.groups) != "[6 6 1]" {
		t.Errorf("groups = %v, want [6 6 1]", gw.groups)
	}
	if gw.peak != BatchSize {
		t.Errorf("peak concurrent calls = %d, want %d", gw.peak, BatchSize)
	}
	for _, q := range queries {
		if res := got[q.Key()]; !res.Found || res.Value != 100 {
			t.Errorf("%s = %+v", q.Key(), res)
		}
	}
}

func TestRecordCacheFlush(t *testing.T) {
	c := NewRecordCache(timeutil.NewMockClock(t0), time.Minute)
	c.Set("a", Resolution{Value: 1, Found: true})
	c.Set("b", Resolution{})
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if n := c.Flush(); n != 2 {
		t.Errorf("Flush() = %d, want 2", n)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("entry survived flush")
	}
}

func TestRecordCacheEvictsExpired(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	c := NewRecordCache(clock, time.Minute)
	c.Set("old", Resolution{Value: 1, Found: true})
	clock.Advance(30 * time.Second)
	c.Set("new", Resolution{})

	clock.Advance(45 * time.Second)
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (expired entries not counted)", c.Len())
	}
	if _, ok := c.Get("old"); ok {
		t.Fatal("expired entry returned")
	}
	c.mu.RLock()
	_, stored := c.items["old"]
	c.mu.RUnlock()
	if stored {
		t.Error("expired entry not evicted on Get")
	}
	if res, ok := c.Get("new"); !ok || res.Found {
		t.Errorf("Get(new) = %+v, %v", res, ok)
	}
}
