package trend

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultResolution = 240
	minResolution     = 100
	maxResolution     = 360

	minSpan = 0.2
	maxSpan = 0.95

	// bisquareScale multiplies the MAD to get the bisquare cutoff.
	bisquareScale = 4.685
	robustRounds  = 2

	epsilon = 1e-9
)

// SmoothConfig tunes Smooth. The zero value uses an adaptive span, the default
// resolution and robustness weighting.
type SmoothConfig struct {
	// Span is the fraction of points in each local neighborhood; 0 picks one
	// from the number of points.
	Span float64
	// Resolution is the number of evaluation grid points.
	Resolution    int
	DisableRobust bool
}

func (c SmoothConfig) span(n int) float64 {
	if c.Span > 0 {
		return math.Min(maxSpan, math.Max(minSpan, c.Span))
	}
	switch {
	case n <= 20:
		return 0.85
	case n <= 50:
		return 0.65
	default:
		return 0.45
	}
}

func (c SmoothConfig) resolution() int {
	if c.Resolution <= 0 {
		return DefaultResolution
	}
	return min(maxResolution, max(minResolution, c.Resolution))
}

// Smooth fits a robust LOESS curve through points, which must be ordered by
// time ascending. points is not modified.
func Smooth(points []RacePoint, cfg SmoothConfig) []TrendPoint {
	n := len(points)
	switch n {
	case 0:
		return []TrendPoint{}
	case 1:
		return []TrendPoint{{Time: points[0].Time, Value: points[0].Percent}}
	}

	// x is milliseconds since the first point to keep the sums well conditioned
	origin := points[0].Time
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range points {
		xs[i] = float64(p.Time.Sub(origin).Milliseconds())
		ys[i] = p.Percent
	}

	k := max(2, int(math.Ceil(cfg.span(n)*float64(n))))
	k = min(k, n)
	res := cfg.resolution()

	var grid []float64
	var gridTimes []time.Time
	if res >= n {
		grid = xs
		gridTimes = make([]time.Time, n)
		for i, p := range points {
			gridTimes[i] = p.Time
		}
	} else {
		grid = make([]float64, res)
		floats.Span(grid, floats.Min(xs), floats.Max(xs))
		gridTimes = make([]time.Time, res)
		for i, x := range grid {
			gridTimes[i] = origin.Add(time.Duration(math.Round(x)) * time.Millisecond)
		}
	}

	var robust []float64
	if !cfg.DisableRobust {
		robust = robustWeights(xs, ys, k)
	}

	fitted := make([]float64, len(grid))
	for i, x0 := range grid {
		fitted[i] = localFit(x0, xs, ys, robust, k)
	}
	smoothed := movingAverage(fitted, smoothingWindow(res))

	out := make([]TrendPoint, len(grid))
	for i := range grid {
		out[i] = TrendPoint{Time: gridTimes[i], Value: smoothed[i]}
	}
	return out
}

// robustWeights runs the bisquare reweighting rounds and returns the final
// per-point weights.
func robustWeights(xs, ys []float64, k int) []float64 {
	var w []float64
	residuals := make([]float64, len(xs))
	for round := 0; round < robustRounds; round++ {
		for i, x := range xs {
			residuals[i] = ys[i] - localFit(x, xs, ys, w, k)
		}
		w = bisquare(residuals)
	}
	return w
}

// bisquare computes (1-(r/s)^2)^2 weights with s = 4.685*MAD. When the MAD is
// zero every nonzero residual gets (almost) zero weight.
func bisquare(residuals []float64) []float64 {
	s := bisquareScale * medianAbs(residuals)
	if s <= 0 {
		s = epsilon
	}
	w := make([]float64, len(residuals))
	for i, r := range residuals {
		u := math.Abs(r) / s
		if u >= 1 {
			continue
		}
		t := 1 - u*u
		w[i] = t * t
	}
	return w
}

func medianAbs(v []float64) float64 {
	abs := make([]float64, len(v))
	for i, x := range v {
		abs[i] = math.Abs(x)
	}
	sort.Float64s(abs)
	m := len(abs) / 2
	if len(abs)%2 == 1 {
		return abs[m]
	}
	return (abs[m-1] + abs[m]) / 2
}

// localFit evaluates at x0 the weighted linear fit over the k points nearest
// to x0. robust may be nil.
func localFit(x0 float64, xs, ys, robust []float64, k int) float64 {
	lo, hi := nearest(x0, xs, k)
	dmax := math.Max(math.Abs(xs[lo]-x0), math.Abs(xs[hi]-x0))
	if dmax < epsilon {
		dmax = epsilon
	}

	m := hi - lo + 1
	w := make([]float64, m)
	dx := make([]float64, m)
	y := ys[lo : hi+1]
	for j := range m {
		d := xs[lo+j] - x0
		u := math.Min(1, math.Abs(d)/dmax)
		t := 1 - u*u*u
		w[j] = t * t * t
		if robust != nil {
			w[j] *= robust[lo+j]
		}
		dx[j] = d
	}

	sw := floats.Sum(w)
	if sw <= 0 {
		// every neighbor was weighted out; fall back to the plain mean
		return stat.Mean(y, nil)
	}

	wdx := make([]float64, m)
	floats.MulTo(wdx, w, dx)
	swx := floats.Sum(wdx)
	swxx := floats.Dot(wdx, dx)
	swy := floats.Dot(w, y)
	swxy := floats.Dot(wdx, y)

	den := sw*swxx - swx*swx
	if math.Abs(den) <= 1e-12*math.Max(1, sw*swxx) {
		return stat.Mean(y, w)
	}
	// with x centered on x0 the intercept is the fitted value at x0
	return (swy*swxx - swx*swxy) / den
}

// nearest returns the inclusive index range of the k points closest to x0.
// xs must be ascending; ties prefer the earlier point.
func nearest(x0 float64, xs []float64, k int) (lo, hi int) {
	pos := sort.SearchFloat64s(xs, x0)
	l, r := pos-1, pos
	for taken := 0; taken < k; taken++ {
		switch {
		case l < 0:
			r++
		case r >= len(xs):
			l--
		case x0-xs[l] <= xs[r]-x0:
			l--
		default:
			r++
		}
	}
	return l + 1, r - 1
}

func smoothingWindow(resolution int) int {
	w := int(math.Round(float64(resolution) / 30))
	return min(13, max(3, w))
}

// movingAverage applies a centered moving average of width window, truncated
// at the edges.
func movingAverage(v []float64, window int) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		lo := max(0, i-(window-1)/2)
		hi := min(len(v)-1, i+window/2)
		out[i] = stat.Mean(v[lo:hi+1], nil)
	}
	return out
}
