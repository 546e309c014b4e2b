package trend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/lap-trend/backend/timeutil"
)

func TestEngineBuild(t *testing.T) {
	gw, history := collectorFixture()
	store := &fakeStore{history: history}
	clock := timeutil.NewMockClock(t0.Add(10 * 24 * time.Hour))
	e := NewEngine(store, gw, WithClock(clock))

	res, err := e.Build(context.Background(), Request{CustID: driver, DisplayName: "Max V", Range: "30d"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := Summary{PointCount: 3, ComboCount: 2, RangeLabel: "Last 30 days"}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
	if len(res.Trend) != 3 {
		t.Errorf("trend points = %d, want 3", len(res.Trend))
	}
	svg := string(res.Chart.SVG())
	for _, s := range []string{"Max V: lap pace vs. record", "Last 30 days", "3 races"} {
		if !strings.Contains(svg, s) {
			t.Errorf("svg missing %q", s)
		}
	}
	if e.CachedRecords() != 2 {
		t.Errorf("cached records = %d, want 2", e.CachedRecords())
	}
	if n := e.FlushRecords(); n != 2 || e.CachedRecords() != 0 {
		t.Errorf("FlushRecords = %d, cached after = %d", n, e.CachedRecords())
	}
}

func TestEngineBuildRangeExcludesOldRaces(t *testing.T) {
	gw, history := collectorFixture()
	clock := timeutil.NewMockClock(t0.Add(40 * 24 * time.Hour))
	e := NewEngine(&fakeStore{history: history}, gw, WithClock(clock))

	res, err := e.Build(context.Background(), Request{CustID: driver, Range: "30d"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Summary.PointCount != 0 || res.Summary.ComboCount != 0 {
		t.Errorf("summary = %+v, want no races", res.Summary)
	}
	if res.Chart == nil || res.Chart.Width != 1200 {
		t.Errorf("empty range should still render a chart")
	}
	if !strings.Contains(string(res.Chart.SVG()), "Lap pace vs. record") {
		t.Error("untitled chart missing default title")
	}
}

func TestEngineBuildUnknownRangeDefaults(t *testing.T) {
	gw, history := collectorFixture()
	clock := timeutil.NewMockClock(t0.Add(10 * 24 * time.Hour))
	e := NewEngine(&fakeStore{history: history}, gw, WithClock(clock))

	res, err := e.Build(context.Background(), Request{CustID: driver, Range: "fortnight"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Summary.RangeLabel != "Last 90 days" {
		t.Errorf("range label = %q, want Last 90 days", res.Summary.RangeLabel)
	}
}

func TestEngineBuildErrors(t *testing.T) {
	errDB := errors.New("db down")

	gw := newFakeGateway()
	gw.readyErr = errUpstream
	_, err := NewEngine(&fakeStore{}, gw).Build(context.Background(), Request{CustID: driver})
	if !errors.Is(err, errUpstream) {
		t.Errorf("not-ready err = %v, want wrapping %v", err, errUpstream)
	}

	_, err = NewEngine(&fakeStore{err: errDB}, newFakeGateway()).Build(context.Background(), Request{CustID: driver})
	if !errors.Is(err, errDB) {
		t.Errorf("store err = %v, want wrapping %v", err, errDB)
	}
}

func TestEngineBuildSwallowsLookupFailures(t *testing.T) {
	gw, history := collectorFixture()
	for id := range gw.sessions {
		gw.sessionErr[id] = errUpstream
	}
	clock := timeutil.NewMockClock(t0.Add(10 * 24 * time.Hour))
	res, err := NewEngine(&fakeStore{history: history}, gw, WithClock(clock)).
		Build(context.Background(), Request{CustID: driver, Range: "all"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Summary.PointCount != 0 || res.Summary.ComboCount != 2 {
		t.Errorf("summary = %+v, want 0 points on 2 combos", res.Summary)
	}
}

func TestEngineSharedRecordCache(t *testing.T) {
	gw, history := collectorFixture()
	clock := timeutil.NewMockClock(t0.Add(10 * 24 * time.Hour))
	cache := NewRecordCache(clock, RecordTTL)
	store := &fakeStore{history: history}

	a := NewEngine(store, gw, WithClock(clock), WithRecordCache(cache))
	b := NewEngine(store, gw, WithClock(clock), WithRecordCache(cache))
	ctx := context.Background()
	if _, err := a.Build(ctx, Request{CustID: driver, Range: "all"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(ctx, Request{CustID: driver, Range: "all"}); err != nil {
		t.Fatal(err)
	}
	if gw.datasetCalls != 2 {
		t.Errorf("dataset calls = %d, want 2 with a shared cache", gw.datasetCalls)
	}
}
