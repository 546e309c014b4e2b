package chart

import (
	"fmt"
	"image/color"
	"time"
)

// Canvas geometry.
const (
	Width  = 1200
	Height = 600
	Margin = 60

	gridLines = 5
	markerR   = 4.0
)

var (
	colorBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	colorAxis       = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	colorGrid       = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	colorRecord     = color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
	colorText       = color.RGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xff}
	colorMuted      = color.RGBA{R: 0x75, G: 0x75, B: 0x75, A: 0xff}
	colorPoint      = color.RGBA{R: 0x19, G: 0x76, B: 0xd2, A: 0xff}
	colorTrend      = color.RGBA{R: 0xe5, G: 0x39, B: 0x35, A: 0xff}

	trendDash = []float64{8, 6}
)

// Point is one sample to plot: a timestamp and a percentage.
type Point struct {
	Time  time.Time
	Value float64
}

// Options carries the text shown around the plot.
type Options struct {
	Title    string
	Subtitle string
}

// placeholder y-domain used when there is nothing to plot
const (
	emptyLow  = 0.0
	emptyHigh = 10.0
)

// Render lays out raw points and the trend curve on the fixed canvas. The
// domain comes from the raw points only; with no points an empty chart with a
// placeholder axis is produced.
func Render(points, trend []Point, opts Options) *Chart {
	c := &Chart{Width: Width, Height: Height}
	left, right := float64(Margin), float64(Width-Margin)
	top, bottom := float64(Margin), float64(Height-Margin)

	xOf := xScale(points, left, right)
	lo, hi := yDomain(points)
	yOf := func(v float64) float64 {
		return bottom - (v-lo)/(hi-lo)*(bottom-top)
	}

	c.add(Rect{X: 0, Y: 0, W: Width, H: Height, Fill: colorBackground})
	title := opts.Title
	if title == "" {
		title = "Lap pace vs. record"
	}
	c.add(Text{X: Width / 2, Y: 32, Value: title, Size: 22, Anchor: AnchorMiddle, Fill: colorText, Bold: true})
	if opts.Subtitle != "" {
		c.add(Text{X: Width / 2, Y: 52, Value: opts.Subtitle, Size: 13, Anchor: AnchorMiddle, Fill: colorMuted})
	}

	for i := 0; i < gridLines; i++ {
		v := lo + (hi-lo)*float64(i)/float64(gridLines-1)
		y := yOf(v)
		c.add(Line{X1: left, Y1: y, X2: right, Y2: y, Stroke: colorGrid, Width: 1})
		c.add(Text{X: left - 8, Y: y + 4, Value: fmt.Sprintf("%.1f%%", v), Size: 12, Anchor: AnchorEnd, Fill: colorMuted})
	}
	if lo < 0 && hi > 0 {
		y := yOf(0)
		c.add(Line{X1: left, Y1: y, X2: right, Y2: y, Stroke: colorRecord, Width: 1.5})
	}

	c.add(Line{X1: left, Y1: top, X2: left, Y2: bottom, Stroke: colorAxis, Width: 1.5})
	c.add(Line{X1: left, Y1: bottom, X2: right, Y2: bottom, Stroke: colorAxis, Width: 1.5})

	if len(points) > 0 {
		first, last := timeBounds(points)
		if first.Equal(last) {
			c.add(Text{X: (left + right) / 2, Y: bottom + 22, Value: first.UTC().Format("2006-01-02"), Size: 12, Anchor: AnchorMiddle, Fill: colorMuted})
		} else {
			c.add(Text{X: left, Y: bottom + 22, Value: first.UTC().Format("2006-01-02"), Size: 12, Anchor: AnchorStart, Fill: colorMuted})
			c.add(Text{X: right, Y: bottom + 22, Value: last.UTC().Format("2006-01-02"), Size: 12, Anchor: AnchorEnd, Fill: colorMuted})
		}
	} else {
		c.add(Text{X: (left + right) / 2, Y: (top + bottom) / 2, Value: "No races with a known record in this range", Size: 16, Anchor: AnchorMiddle, Fill: colorMuted})
	}

	for _, p := range points {
		c.add(Circle{CX: xOf(p.Time), CY: yOf(p.Value), R: markerR, Fill: colorPoint})
	}

	if len(trend) > 1 && len(points) > 0 {
		pl := Polyline{Stroke: colorTrend, Width: 2.5, Dash: trendDash}
		for _, p := range trend {
			pl.Points = append(pl.Points, XY{X: xOf(p.Time), Y: yOf(p.Value)})
		}
		c.add(pl)
	}

	legendX, legendY := right-170, top+18
	c.add(Circle{CX: legendX, CY: legendY - 4, R: markerR, Fill: colorPoint})
	c.add(Text{X: legendX + 14, Y: legendY, Value: "Race best lap", Size: 13, Anchor: AnchorStart, Fill: colorText})
	c.add(Line{X1: legendX - 8, Y1: legendY + 18, X2: legendX + 8, Y2: legendY + 18, Stroke: colorTrend, Width: 2.5, Dash: trendDash})
	c.add(Text{X: legendX + 14, Y: legendY + 22, Value: "Trend", Size: 13, Anchor: AnchorStart, Fill: colorText})

	return c
}

// add appends s with its coordinates fixed to one decimal.
func (c *Chart) add(s Shape) {
	switch v := s.(type) {
	case Rect:
		v.X, v.Y, v.W, v.H = round1(v.X), round1(v.Y), round1(v.W), round1(v.H)
		s = v
	case Line:
		v.X1, v.Y1, v.X2, v.Y2 = round1(v.X1), round1(v.Y1), round1(v.X2), round1(v.Y2)
		s = v
	case Circle:
		v.CX, v.CY = round1(v.CX), round1(v.CY)
		s = v
	case Text:
		v.X, v.Y = round1(v.X), round1(v.Y)
		s = v
	case Polyline:
		pts := make([]XY, len(v.Points))
		for i, p := range v.Points {
			pts[i] = XY{X: round1(p.X), Y: round1(p.Y)}
		}
		v.Points = pts
		s = v
	}
	c.Shapes = append(c.Shapes, s)
}

func timeBounds(points []Point) (first, last time.Time) {
	first, last = points[0].Time, points[0].Time
	for _, p := range points[1:] {
		if p.Time.Before(first) {
			first = p.Time
		}
		if p.Time.After(last) {
			last = p.Time
		}
	}
	return first, last
}

// xScale maps time onto [left, right]. A single distinct timestamp maps to the
// horizontal center.
func xScale(points []Point, left, right float64) func(time.Time) float64 {
	center := (left + right) / 2
	if len(points) == 0 {
		return func(time.Time) float64 { return center }
	}
	first, last := timeBounds(points)
	span := float64(last.Sub(first))
	if span <= 0 {
		return func(time.Time) float64 { return center }
	}
	return func(t time.Time) float64 {
		return left + float64(t.Sub(first))/span*(right-left)
	}
}

// yDomain pads [min, max] by 10% of the range, or one unit when flat.
func yDomain(points []Point) (lo, hi float64) {
	if len(points) == 0 {
		return emptyLow, emptyHigh
	}
	lo, hi = points[0].Value, points[0].Value
	for _, p := range points[1:] {
		lo = min(lo, p.Value)
		hi = max(hi, p.Value)
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}
