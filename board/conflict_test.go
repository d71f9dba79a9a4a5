package board

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/burntcarrot/pairboard/geometry"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func update(editor string, level int, at time.Duration, op OpKind, col float64) Shape {
	s := Shape{
		Uid:        "r1",
		CreatedAt:  t0,
		ModifiedAt: t0.Add(at),
		Owner:      "alice",
		Editor:     editor,
		Level:      level,
		Op:         op,
		Settled:    true,
	}
	if !op.Removes() {
		s.Geometry = geometry.NewRectangle(geometry.Pt(0, col), geometry.Pt(2, col+2))
	}
	return s
}

func TestResolve(t *testing.T) {
	tests := []struct {
		description string
		candidates  []Shape
		expected    Shape
	}{
		{
			description: "higher level wins over later edit",
			candidates:  []Shape{update("bob", 2, 5*time.Second, OpModify, 1), update("host", 5, time.Second, OpModify, 2)},
			expected:    update("host", 5, time.Second, OpModify, 2),
		},
		{
			description: "same level, later edit wins",
			candidates:  []Shape{update("bob", 1, 2*time.Second, OpModify, 1), update("carol", 1, time.Second, OpModify, 2)},
			expected:    update("bob", 1, 2*time.Second, OpModify, 1),
		},
		{
			description: "full tie, smaller requester wins",
			candidates:  []Shape{update("carol", 1, time.Second, OpModify, 1), update("bob", 1, time.Second, OpModify, 2)},
			expected:    update("bob", 1, time.Second, OpModify, 2),
		},
		{
			description: "delete beats higher level modify",
			candidates:  []Shape{update("host", 9, 9*time.Second, OpModify, 1), update("bob", 1, time.Second, OpDelete, 0)},
			expected:    update("bob", 1, time.Second, OpDelete, 0),
		},
		{
			description: "clear counts as removal",
			candidates:  []Shape{update("host", 9, 9*time.Second, OpCreate, 1), update("bob", 1, time.Second, OpClear, 0)},
			expected:    update("bob", 1, time.Second, OpClear, 0),
		},
		{
			description: "between removals the usual rules apply",
			candidates:  []Shape{update("bob", 1, time.Second, OpDelete, 0), update("host", 5, time.Second, OpDelete, 0)},
			expected:    update("host", 5, time.Second, OpDelete, 0),
		},
	}

	for _, tc := range tests {
		got := Resolve(tc.candidates...)
		if !cmp.Equal(got, tc.expected) {
			t.Errorf("(%s) got != expected, diff: %v\n", tc.description, cmp.Diff(got, tc.expected))
		}
	}
}

// TestResolveOrderIndependent checks every permutation of a candidate set resolves identically.
func TestResolveOrderIndependent(t *testing.T) {
	candidates := []Shape{
		update("bob", 1, time.Second, OpModify, 1),
		update("bob", 1, time.Second, OpModify, 2),
		update("carol", 1, time.Second, OpModify, 3),
		update("dave", 2, 0, OpModify, 4),
		update("erin", 2, 0, OpModify, 5),
	}
	expected := Resolve(candidates...)

	permute(candidates, 0, func(p []Shape) {
		if got := Resolve(p...); !cmp.Equal(got, expected) {
			t.Fatalf("order dependent result, diff: %v\n", cmp.Diff(got, expected))
		}
	})
}

func TestConflictDeterminismAcrossOrders(t *testing.T) {
	u1 := update("bob", 2, 3*time.Second, OpModify, 1)
	u2 := update("carol", 5, time.Second, OpModify, 7)

	for _, order := range [][]Shape{{u1, u2}, {u2, u1}} {
		// Sequential arrival: the second update competes with the winner of the first.
		state := order[0]
		state = Resolve(state, order[1])

		if !cmp.Equal(state.Geometry, u2.Geometry) {
			t.Errorf("got != expected, diff: %v\n", cmp.Diff(state.Geometry, u2.Geometry))
		}
	}
}

func TestSameIsReflexive(t *testing.T) {
	u := update("bob", 1, time.Second, OpModify, 1)
	if !Same(u, u) || Beats(u, u) {
		t.Errorf("a shape must tie with itself")
	}
}

func permute(s []Shape, k int, visit func([]Shape)) {
	if k == len(s) {
		visit(s)
		return
	}
	for i := k; i < len(s); i++ {
		s[k], s[i] = s[i], s[k]
		permute(s, k+1, visit)
		s[k], s[i] = s[i], s[k]
	}
}

func TestConfirms(t *testing.T) {
	edit := update("host", 5, time.Second, OpModify, 1)

	restamped := edit
	restamped.ModifiedAt = t0.Add(10 * time.Second)

	older := edit
	older.ModifiedAt = t0

	tests := []struct {
		name      string
		committed Shape
		expected  bool
	}{
		{name: "stored as sent", committed: edit, expected: true},
		{name: "moved forward", committed: restamped, expected: true},
		{name: "older value", committed: older, expected: false},
		{name: "different geometry", committed: update("host", 5, 10*time.Second, OpModify, 4), expected: false},
		{name: "different editor", committed: update("bob", 5, 10*time.Second, OpModify, 1), expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Confirms(tc.committed, edit); got != tc.expected {
				t.Errorf("got %v, expected %v", got, tc.expected)
			}
		})
	}
}
