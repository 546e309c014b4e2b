// Package chart lays out the lap-pace trend chart as a fixed-size list of
// vector shapes and serializes it to SVG or rasterizes it to PNG.
//
// All coordinates are rounded to one decimal place when the shapes are built,
// so the SVG output is byte-for-byte reproducible for the same input.
package chart

import (
	"fmt"
	"html"
	"image/color"
	"math"
	"strings"
)

// Chart is a vector description of a rendered chart, in paint order.
type Chart struct {
	Width  int
	Height int
	Shapes []Shape
}

// Shape is one drawable element of a Chart.
type Shape interface {
	writeSVG(b *strings.Builder)
	draw(r *rasterizer)
}

// XY is a coordinate on the canvas, origin top-left.
type XY struct{ X, Y float64 }

// Rect is a filled rectangle.
type Rect struct {
	X, Y, W, H float64
	Fill       color.RGBA
}

// Line is a stroked segment. Dash is empty for solid lines.
type Line struct {
	X1, Y1, X2, Y2 float64
	Stroke         color.RGBA
	Width          float64
	Dash           []float64
}

// Circle is a filled circle.
type Circle struct {
	CX, CY, R float64
	Fill      color.RGBA
}

// Anchor is the horizontal alignment of a Text relative to its X.
type Anchor string

const (
	AnchorStart  Anchor = "start"
	AnchorMiddle Anchor = "middle"
	AnchorEnd    Anchor = "end"
)

// Text is a single line label; Y is the baseline.
type Text struct {
	X, Y   float64
	Value  string
	Size   float64
	Anchor Anchor
	Fill   color.RGBA
	Bold   bool
}

// Polyline is a stroked open path.
type Polyline struct {
	Points []XY
	Stroke color.RGBA
	Width  float64
	Dash   []float64
}

// SVG serializes the chart.
func (c *Chart) SVG() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		c.Width, c.Height, c.Width, c.Height)
	for _, s := range c.Shapes {
		s.writeSVG(&b)
	}
	b.WriteString("</svg>\n")
	return []byte(b.String())
}

func (s Rect) writeSVG(b *strings.Builder) {
	fmt.Fprintf(b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n",
		s.X, s.Y, s.W, s.H, hex(s.Fill))
}

func (s Line) writeSVG(b *strings.Builder) {
	fmt.Fprintf(b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f"%s/>`+"\n",
		s.X1, s.Y1, s.X2, s.Y2, hex(s.Stroke), s.Width, dashAttr(s.Dash))
}

func (s Circle) writeSVG(b *strings.Builder) {
	fmt.Fprintf(b, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s"/>`+"\n", s.CX, s.CY, s.R, hex(s.Fill))
}

func (s Text) writeSVG(b *strings.Builder) {
	weight := ""
	if s.Bold {
		weight = ` font-weight="bold"`
	}
	fmt.Fprintf(b, `<text x="%.1f" y="%.1f" font-family="sans-serif" font-size="%.1f" text-anchor="%s" fill="%s"%s>%s</text>`+"\n",
		s.X, s.Y, s.Size, s.Anchor, hex(s.Fill), weight, html.EscapeString(s.Value))
}

func (s Polyline) writeSVG(b *strings.Builder) {
	pts := make([]string, len(s.Points))
	for i, p := range s.Points {
		pts[i] = fmt.Sprintf("%.1f,%.1f", p.X, p.Y)
	}
	fmt.Fprintf(b, `<polyline points="%s" fill="none" stroke="%s" stroke-width="%.1f"%s/>`+"\n",
		strings.Join(pts, " "), hex(s.Stroke), s.Width, dashAttr(s.Dash))
}

func dashAttr(dash []float64) string {
	if len(dash) == 0 {
		return ""
	}
	parts := make([]string, len(dash))
	for i, d := range dash {
		parts[i] = fmt.Sprintf("%.1f", d)
	}
	return fmt.Sprintf(` stroke-dasharray="%s"`, strings.Join(parts, " "))
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// round1 fixes a coordinate to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
