package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/geometry"
)

// glyphs used to draw each kind of shape.
var glyphs = map[geometry.Kind]rune{
	geometry.KindRectangle: '#',
	geometry.KindEllipse:   'o',
	geometry.KindPolyline:  '*',
}

// Canvas rasterizes shapes onto a character grid. Cell (r, c) shows the
// board point (r, c); a shape is drawn on the cells it contains that border
// a cell it does not contain, so filled shapes appear as outlines.
type Canvas struct {
	Width, Height int

	Style    lipgloss.Style
	Selected lipgloss.Style
	Cursor   lipgloss.Style
}

type cell struct {
	r        rune
	selected bool
}

// grid returns the raw glyph grid, later shapes drawn over earlier ones.
func (c Canvas) grid(shapes []board.Shape, selected map[board.Uid]bool) [][]cell {
	grid := make([][]cell, c.Height)
	for r := range grid {
		grid[r] = make([]cell, c.Width)
		for col := range grid[r] {
			grid[r][col] = cell{r: ' '}
		}
	}

	for _, s := range shapes {
		g := s.Geometry
		glyph, ok := glyphs[g.Kind()]
		if !ok {
			glyph = '?'
		}

		b := g.Bounds()
		r0, r1 := clamp(int(b.Min.Row)-1, c.Height), clamp(int(b.Max.Row)+2, c.Height)
		c0, c1 := clamp(int(b.Min.Col)-1, c.Width), clamp(int(b.Max.Col)+2, c.Width)

		for r := r0; r < r1; r++ {
			for col := c0; col < c1; col++ {
				if !edge(g, r, col) {
					continue
				}
				grid[r][col] = cell{r: glyph, selected: selected[s.Uid]}
			}
		}
	}
	return grid
}

// Render draws shapes and the cursor as styled lines.
func (c Canvas) Render(shapes []board.Shape, selected map[board.Uid]bool, cursor geometry.Coordinate) string {
	grid := c.grid(shapes, selected)
	cr, cc := int(cursor.Row), int(cursor.Col)

	var sb strings.Builder
	for r, row := range grid {
		for col, cl := range row {
			s := string(cl.r)
			switch {
			case r == cr && col == cc:
				if cl.r == ' ' {
					s = "+"
				}
				sb.WriteString(c.Cursor.Render(s))
			case cl.selected:
				sb.WriteString(c.Selected.Render(s))
			default:
				sb.WriteString(c.Style.Render(s))
			}
		}
		if r < len(grid)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func edge(g geometry.Geometry, r, col int) bool {
	p := geometry.Pt(float64(r), float64(col))
	if !g.Contains(p) {
		return false
	}
	for _, d := range []geometry.Coordinate{geometry.Pt(-1, 0), geometry.Pt(1, 0), geometry.Pt(0, -1), geometry.Pt(0, 1)} {
		if !g.Contains(p.Plus(d)) {
			return true
		}
	}
	return false
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// String returns the unstyled grid, one line per row.
func (c Canvas) String(shapes []board.Shape) string {
	grid := c.grid(shapes, nil)
	lines := make([]string, len(grid))
	for r, row := range grid {
		var sb strings.Builder
		for _, cl := range row {
			sb.WriteRune(cl.r)
		}
		lines[r] = strings.TrimRight(sb.String(), " ")
	}
	return strings.Join(lines, "\n")
}
