package geometry

import "math"

// Epsilon is the per-axis tolerance used when comparing coordinates.
const Epsilon = 0.01

// Coordinate represents a point on the board.
type Coordinate struct {
	Row float64 `json:"row"`
	Col float64 `json:"col"`
}

// Pt is shorthand for building a Coordinate.
func Pt(row, col float64) Coordinate {
	return Coordinate{Row: row, Col: col}
}

// Equals reports whether both axes differ by strictly less than Epsilon.
func (c Coordinate) Equals(o Coordinate) bool {
	return math.Abs(c.Row-o.Row) < Epsilon && math.Abs(c.Col-o.Col) < Epsilon
}

// Clone returns an independent copy of the coordinate.
func (c *Coordinate) Clone() *Coordinate {
	clone := *c
	return &clone
}

// Add adds o to c component-wise and returns c.
func (c *Coordinate) Add(o Coordinate) *Coordinate {
	c.Row += o.Row
	c.Col += o.Col
	return c
}

// Subtract subtracts o from c component-wise and returns c.
func (c *Coordinate) Subtract(o Coordinate) *Coordinate {
	c.Row -= o.Row
	c.Col -= o.Col
	return c
}

// Divide divides both axes by d. Dividing by zero leaves c untouched and
// returns a *DomainError.
func (c *Coordinate) Divide(d float64) error {
	if d == 0 {
		return &DomainError{Op: "divide", Msg: "cannot divide coordinate by zero"}
	}
	c.Row /= d
	c.Col /= d
	return nil
}

// Less reports whether c is strictly smaller than o on both axes.
func (c Coordinate) Less(o Coordinate) bool {
	return c.Row < o.Row && c.Col < o.Col
}

// Plus returns c+o without modifying either operand.
func (c Coordinate) Plus(o Coordinate) Coordinate {
	return *c.Clone().Add(o)
}

// Minus returns c-o without modifying either operand.
func (c Coordinate) Minus(o Coordinate) Coordinate {
	return *c.Clone().Subtract(o)
}

// Distance returns the Euclidean distance between c and o.
func (c Coordinate) Distance(o Coordinate) float64 {
	return math.Hypot(c.Row-o.Row, c.Col-o.Col)
}

func (c Coordinate) finite() bool {
	return !math.IsNaN(c.Row) && !math.IsNaN(c.Col) && !math.IsInf(c.Row, 0) && !math.IsInf(c.Col, 0)
}
