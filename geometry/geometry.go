package geometry

import (
	"fmt"
	"math"
)

// Kind identifies a geometry variant on the wire.
type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindPolyline  Kind = "polyline"
)

// Geometry is the capability set every drawable variant provides.
// Implementations are immutable: transforms return a new value.
type Geometry interface {
	Kind() Kind
	Bounds() Bounds
	Contains(p Coordinate) bool
	Render() Render
	Translate(delta Coordinate) Geometry
	Resize(to Bounds) Geometry

	// Points returns the control points that fully describe the geometry.
	Points() []Coordinate
}

// Bounds is an axis aligned box. Min is the top-left corner.
type Bounds struct {
	Min Coordinate `json:"min"`
	Max Coordinate `json:"max"`
}

// BoundsOf returns the smallest box containing all points.
func BoundsOf(points ...Coordinate) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min.Row = math.Min(b.Min.Row, p.Row)
		b.Min.Col = math.Min(b.Min.Col, p.Col)
		b.Max.Row = math.Max(b.Max.Row, p.Row)
		b.Max.Col = math.Max(b.Max.Col, p.Col)
	}
	return b
}

// Height returns the extent along the row axis.
func (b Bounds) Height() float64 { return b.Max.Row - b.Min.Row }

// Width returns the extent along the column axis.
func (b Bounds) Width() float64 { return b.Max.Col - b.Min.Col }

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p Coordinate) bool {
	return p.Row >= b.Min.Row && p.Row <= b.Max.Row && p.Col >= b.Min.Col && p.Col <= b.Max.Col
}

// Render describes how a geometry should be drawn. It carries no ownership
// or network state.
type Render struct {
	Kind   Kind         `json:"kind"`
	Bounds Bounds       `json:"bounds"`
	Points []Coordinate `json:"points"`
}

// Payload is the tagged wire form of a geometry.
type Payload struct {
	Kind   Kind         `json:"kind"`
	Points []Coordinate `json:"points"`
}

// Encode converts g to its wire payload.
func Encode(g Geometry) Payload {
	return Payload{Kind: g.Kind(), Points: g.Points()}
}

// Decode builds the geometry variant described by p.
func Decode(p Payload) (Geometry, error) {
	for _, pt := range p.Points {
		if !pt.finite() {
			return nil, fmt.Errorf("%w: non-finite point in %s", ErrInvalidGeometry, p.Kind)
		}
	}

	switch p.Kind {
	case KindRectangle:
		if len(p.Points) != 2 {
			return nil, fmt.Errorf("%w: rectangle needs 2 points, got %d", ErrInvalidGeometry, len(p.Points))
		}
		return NewRectangle(p.Points[0], p.Points[1]), nil

	case KindEllipse:
		if len(p.Points) != 2 {
			return nil, fmt.Errorf("%w: ellipse needs center and radii, got %d points", ErrInvalidGeometry, len(p.Points))
		}
		if p.Points[1].Row < 0 || p.Points[1].Col < 0 {
			return nil, fmt.Errorf("%w: negative ellipse radius", ErrInvalidGeometry)
		}
		return Ellipse{Center: p.Points[0], Radii: p.Points[1]}, nil

	case KindPolyline:
		if len(p.Points) < 2 {
			return nil, fmt.Errorf("%w: polyline needs at least 2 points, got %d", ErrInvalidGeometry, len(p.Points))
		}
		return NewPolyline(p.Points...), nil
	}

	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidGeometry, p.Kind)
}

// scale maps p from one box onto another. Degenerate axes collapse onto the
// target's minimum.
func scale(p Coordinate, from, to Bounds) Coordinate {
	out := to.Min
	if h := from.Height(); h != 0 {
		out.Row += (p.Row - from.Min.Row) * to.Height() / h
	}
	if w := from.Width(); w != 0 {
		out.Col += (p.Col - from.Min.Col) * to.Width() / w
	}
	return out
}
