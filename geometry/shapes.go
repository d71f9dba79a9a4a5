package geometry

import "math"

// HitTolerance is how far from a polyline segment a point may be and still hit it.
const HitTolerance = 0.5

// Rectangle is an axis aligned rectangle.
type Rectangle struct {
	TopLeft     Coordinate
	BottomRight Coordinate
}

// NewRectangle normalizes two opposite corners into a Rectangle.
func NewRectangle(a, b Coordinate) Rectangle {
	bounds := BoundsOf(a, b)
	return Rectangle{TopLeft: bounds.Min, BottomRight: bounds.Max}
}

func (r Rectangle) Kind() Kind { return KindRectangle }

func (r Rectangle) Bounds() Bounds { return Bounds{Min: r.TopLeft, Max: r.BottomRight} }

func (r Rectangle) Contains(p Coordinate) bool { return r.Bounds().Contains(p) }

func (r Rectangle) Render() Render {
	return Render{Kind: KindRectangle, Bounds: r.Bounds(), Points: r.Points()}
}

func (r Rectangle) Translate(delta Coordinate) Geometry {
	return Rectangle{TopLeft: r.TopLeft.Plus(delta), BottomRight: r.BottomRight.Plus(delta)}
}

func (r Rectangle) Resize(to Bounds) Geometry {
	return NewRectangle(to.Min, to.Max)
}

func (r Rectangle) Points() []Coordinate {
	return []Coordinate{r.TopLeft, r.BottomRight}
}

// Ellipse is an axis aligned ellipse. Radii.Row and Radii.Col are the semi-axes.
type Ellipse struct {
	Center Coordinate
	Radii  Coordinate
}

func (e Ellipse) Kind() Kind { return KindEllipse }

func (e Ellipse) Bounds() Bounds {
	return Bounds{Min: e.Center.Minus(e.Radii), Max: e.Center.Plus(e.Radii)}
}

func (e Ellipse) Contains(p Coordinate) bool {
	d := p.Minus(e.Center)
	if e.Radii.Row == 0 || e.Radii.Col == 0 {
		return e.Bounds().Contains(p)
	}
	nr, nc := d.Row/e.Radii.Row, d.Col/e.Radii.Col
	return nr*nr+nc*nc <= 1
}

func (e Ellipse) Render() Render {
	return Render{Kind: KindEllipse, Bounds: e.Bounds(), Points: e.Points()}
}

func (e Ellipse) Translate(delta Coordinate) Geometry {
	return Ellipse{Center: e.Center.Plus(delta), Radii: e.Radii}
}

func (e Ellipse) Resize(to Bounds) Geometry {
	return Ellipse{
		Center: Pt(to.Min.Row+to.Height()/2, to.Min.Col+to.Width()/2),
		Radii:  Pt(math.Abs(to.Height())/2, math.Abs(to.Width())/2),
	}
}

func (e Ellipse) Points() []Coordinate {
	return []Coordinate{e.Center, e.Radii}
}

// Polyline is an open chain of segments. A line is a polyline with two points.
type Polyline struct {
	Vertices []Coordinate
}

// NewPolyline copies the given vertices into a Polyline.
func NewPolyline(vertices ...Coordinate) Polyline {
	return Polyline{Vertices: append([]Coordinate(nil), vertices...)}
}

// NewLine returns a single segment polyline.
func NewLine(from, to Coordinate) Polyline {
	return NewPolyline(from, to)
}

func (l Polyline) Kind() Kind { return KindPolyline }

func (l Polyline) Bounds() Bounds { return BoundsOf(l.Vertices...) }

func (l Polyline) Contains(p Coordinate) bool {
	for i := 1; i < len(l.Vertices); i++ {
		if segmentDistance(p, l.Vertices[i-1], l.Vertices[i]) <= HitTolerance {
			return true
		}
	}
	return false
}

func (l Polyline) Render() Render {
	return Render{Kind: KindPolyline, Bounds: l.Bounds(), Points: l.Points()}
}

func (l Polyline) Translate(delta Coordinate) Geometry {
	out := make([]Coordinate, len(l.Vertices))
	for i, v := range l.Vertices {
		out[i] = v.Plus(delta)
	}
	return Polyline{Vertices: out}
}

func (l Polyline) Resize(to Bounds) Geometry {
	from := l.Bounds()
	out := make([]Coordinate, len(l.Vertices))
	for i, v := range l.Vertices {
		out[i] = scale(v, from, to)
	}
	return Polyline{Vertices: out}
}

func (l Polyline) Points() []Coordinate {
	return append([]Coordinate(nil), l.Vertices...)
}

// segmentDistance returns the distance from p to the segment ab.
func segmentDistance(p, a, b Coordinate) float64 {
	ab := b.Minus(a)
	lenSq := ab.Row*ab.Row + ab.Col*ab.Col
	if lenSq == 0 {
		return p.Distance(a)
	}
	ap := p.Minus(a)
	t := (ap.Row*ab.Row + ap.Col*ab.Col) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.Distance(Pt(a.Row+t*ab.Row, a.Col+t*ab.Col))
}
