package trend

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func dailySeries(n int, f func(i int) float64) []RacePoint {
	out := make([]RacePoint, n)
	for i := range out {
		out[i] = RacePoint{Time: t0.Add(time.Duration(i) * 24 * time.Hour), Percent: f(i)}
	}
	return out
}

func TestSmoothSmallInputs(t *testing.T) {
	if got := Smooth(nil, SmoothConfig{}); got == nil || len(got) != 0 {
		t.Errorf("Smooth(nil) = %#v, want empty non-nil slice", got)
	}

	one := []RacePoint{{Time: t0, Percent: 3.5}}
	want := []TrendPoint{{Time: t0, Value: 3.5}}
	if diff := cmp.Diff(want, Smooth(one, SmoothConfig{})); diff != "" {
		t.Errorf("single point mismatch (-want +got):\n%s", diff)
	}
}

func TestSmoothGrid(t *testing.T) {
	few := dailySeries(12, func(i int) float64 { return float64(i % 3) })
	got := Smooth(few, SmoothConfig{})
	if len(got) != len(few) {
		t.Fatalf("len = %d, want %d", len(got), len(few))
	}
	for i := range got {
		if !got[i].Time.Equal(few[i].Time) {
			t.Errorf("grid[%d] = %v, want input time %v", i, got[i].Time, few[i].Time)
		}
	}

	many := dailySeries(150, func(i int) float64 { return math.Sin(float64(i) / 10) })
	got = Smooth(many, SmoothConfig{Resolution: 100})
	if len(got) != 100 {
		t.Fatalf("len = %d, want 100", len(got))
	}
	if !got[0].Time.Equal(many[0].Time) || !got[99].Time.Equal(many[149].Time) {
		t.Errorf("grid spans %v..%v, want %v..%v", got[0].Time, got[99].Time, many[0].Time, many[149].Time)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Time.After(got[i-1].Time) {
			t.Fatalf("grid not increasing at %d", i)
		}
	}
}

func TestSmoothDoesNotMutateInput(t *testing.T) {
	in := dailySeries(30, func(i int) float64 { return float64(i) * 0.3 })
	in[7].Percent = 40
	before := append([]RacePoint(nil), in...)
	Smooth(in, SmoothConfig{})
	if diff := cmp.Diff(before, in); diff != "" {
		t.Errorf("input modified (-before +after):\n%s", diff)
	}
}

func TestSmoothConstantSeries(t *testing.T) {
	in := dailySeries(25, func(int) float64 { return 4.2 })
	for _, p := range Smooth(in, SmoothConfig{}) {
		if math.Abs(p.Value-4.2) > 1e-9 {
			t.Fatalf("value at %v = %v, want 4.2", p.Time, p.Value)
		}
	}
}

func TestSmoothRobustToOutlier(t *testing.T) {
	base := func(i int) float64 { return 2 + 0.1*float64(i) + 0.001*math.Sin(1.3*float64(i)) }
	clean := dailySeries(40, base)
	dirty := dailySeries(40, base)
	dirty[3].Percent += 50

	cleanFit := Smooth(clean, SmoothConfig{})
	dirtyFit := Smooth(dirty, SmoothConfig{})
	plainFit := Smooth(dirty, SmoothConfig{DisableRobust: true})

	for i := 35; i < 40; i++ {
		if d := math.Abs(dirtyFit[i].Value - cleanFit[i].Value); d > 0.01 {
			t.Errorf("far point %d moved by %v", i, d)
		}
	}
	if d := math.Abs(dirtyFit[3].Value - cleanFit[3].Value); d >= 0.1 {
		t.Errorf("robust fit at outlier moved by %v, want < 0.1", d)
	}
	if d := math.Abs(plainFit[3].Value - cleanFit[3].Value); d <= 1 {
		t.Errorf("non-robust fit at outlier moved by %v, want > 1", d)
	}
}

func TestSmoothConfigClamps(t *testing.T) {
	spans := []struct {
		cfg  SmoothConfig
		n    int
		want float64
	}{
		{SmoothConfig{Span: 5}, 10, maxSpan},
		{SmoothConfig{Span: 0.01}, 10, minSpan},
		{SmoothConfig{Span: 0.5}, 10, 0.5},
		{SmoothConfig{}, 10, 0.85},
		{SmoothConfig{}, 40, 0.65},
		{SmoothConfig{}, 400, 0.45},
	}
	for _, tt := range spans {
		if got := tt.cfg.span(tt.n); got != tt.want {
			t.Errorf("%+v.span(%d) = %v, want %v", tt.cfg, tt.n, got, tt.want)
		}
	}

	resolutions := map[int]int{0: DefaultResolution, -4: DefaultResolution, 10: 100, 150: 150, 1000: 360}
	for in, want := range resolutions {
		if got := (SmoothConfig{Resolution: in}).resolution(); got != want {
			t.Errorf("resolution(%d) = %d, want %d", in, got, want)
		}
	}

	windows := map[int]int{100: 3, 240: 8, 360: 12}
	for res, want := range windows {
		if got := smoothingWindow(res); got != want {
			t.Errorf("smoothingWindow(%d) = %d, want %d", res, got, want)
		}
	}
}

func TestBisquareZeroMAD(t *testing.T) {
	got := bisquare([]float64{0, 0, 0, 0.5})
	want := []float64{1, 1, 1, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bisquare mismatch (-want +got):\n%s", diff)
	}
}

func TestBisquare(t *testing.T) {
	// MAD is 1, so residuals at or beyond 4.685 are weighted out
	got := bisquare([]float64{1, -1, 1, 4.685, -10})
	if got[3] != 0 || got[4] != 0 {
		t.Errorf("weights beyond cutoff = %v, %v, want 0", got[3], got[4])
	}
	u := 1 / bisquareScale
	want := (1 - u*u) * (1 - u*u)
	if math.Abs(got[0]-want) > 1e-12 || got[0] != got[1] {
		t.Errorf("weight at r=±1 = %v, %v, want %v", got[0], got[1], want)
	}
}

func TestNearest(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	tests := []struct {
		x0     float64
		k      int
		lo, hi int
	}{
		{2, 3, 1, 3},
		{0, 2, 0, 1},
		{4.5, 2, 3, 4},
		{-3, 5, 0, 4},
		{1.5, 1, 1, 1},
	}
	for _, tt := range tests {
		lo, hi := nearest(tt.x0, xs, tt.k)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("nearest(%v, k=%d) = [%d,%d], want [%d,%d]", tt.x0, tt.k, lo, hi, tt.lo, tt.hi)
		}
	}
}

func TestMovingAverage(t *testing.T) {
	got := movingAverage([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{1.5, 2, 3, 4, 4.5}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("movingAverage mismatch (-want +got):\n%s", diff)
	}
}
