package chart

import (
	"bytes"
	"fmt"
	"math"
	"sync"

	xfont "golang.org/x/image/font"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/font/liberation"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"
)

var registerFonts sync.Once

// rasterizer draws shapes onto a vg canvas. vg puts the origin bottom-left,
// so every y is flipped against the chart height.
type rasterizer struct {
	cv     vg.Canvas
	height float64
}

// PNG rasterizes the chart at one pixel per canvas unit.
func (c *Chart) PNG() ([]byte, error) {
	registerFonts.Do(func() { font.DefaultCache.Add(liberation.Collection()) })

	cv := vgimg.NewWith(
		vgimg.UseWH(vg.Length(c.Width), vg.Length(c.Height)),
		vgimg.UseDPI(72),
	)
	r := &rasterizer{cv: cv, height: float64(c.Height)}
	for _, s := range c.Shapes {
		s.draw(r)
	}

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: cv}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode chart png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *rasterizer) pt(x, y float64) vg.Point {
	return vg.Point{X: vg.Length(x), Y: vg.Length(r.height - y)}
}

func (r *rasterizer) stroke(p vg.Path, width float64, dash []float64) {
	r.cv.SetLineWidth(vg.Length(width))
	if len(dash) > 0 {
		d := make([]vg.Length, len(dash))
		for i, v := range dash {
			d[i] = vg.Length(v)
		}
		r.cv.SetLineDash(d, 0)
		defer r.cv.SetLineDash(nil, 0)
	}
	r.cv.Stroke(p)
}

func (s Rect) draw(r *rasterizer) {
	var p vg.Path
	p.Move(r.pt(s.X, s.Y))
	p.Line(r.pt(s.X+s.W, s.Y))
	p.Line(r.pt(s.X+s.W, s.Y+s.H))
	p.Line(r.pt(s.X, s.Y+s.H))
	p.Close()
	r.cv.SetColor(s.Fill)
	r.cv.Fill(p)
}

func (s Line) draw(r *rasterizer) {
	var p vg.Path
	p.Move(r.pt(s.X1, s.Y1))
	p.Line(r.pt(s.X2, s.Y2))
	r.cv.SetColor(s.Stroke)
	r.stroke(p, s.Width, s.Dash)
}

func (s Circle) draw(r *rasterizer) {
	var p vg.Path
	p.Move(r.pt(s.CX+s.R, s.CY))
	p.Arc(r.pt(s.CX, s.CY), vg.Length(s.R), 0, 2*math.Pi)
	p.Close()
	r.cv.SetColor(s.Fill)
	r.cv.Fill(p)
}

func (s Text) draw(r *rasterizer) {
	f := font.Font{Typeface: "Liberation", Variant: "Sans"}
	if s.Bold {
		f.Weight = xfont.WeightBold
	}
	face := font.DefaultCache.Lookup(f, vg.Length(s.Size))
	x := s.X
	switch s.Anchor {
	case AnchorMiddle:
		x -= float64(face.Width(s.Value)) / 2
	case AnchorEnd:
		x -= float64(face.Width(s.Value))
	}
	r.cv.SetColor(s.Fill)
	r.cv.FillString(face, r.pt(x, s.Y), s.Value)
}

func (s Polyline) draw(r *rasterizer) {
	if len(s.Points) < 2 {
		return
	}
	var p vg.Path
	p.Move(r.pt(s.Points[0].X, s.Points[0].Y))
	for _, q := range s.Points[1:] {
		p.Line(r.pt(q.X, q.Y))
	}
	r.cv.SetColor(s.Stroke)
	r.stroke(p, s.Width, s.Dash)
}
