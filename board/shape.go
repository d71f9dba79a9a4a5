package board

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/burntcarrot/pairboard/geometry"
)

// Uid identifies a shape. It is generated by the creating client and never changes.
type Uid string

// OpKind is the most recent operation applied to a shape.
type OpKind string

const (
	OpCreate OpKind = "CREATE"
	OpModify OpKind = "MODIFY"
	OpDelete OpKind = "DELETE"
	OpClear  OpKind = "CLEAR"
)

// Removes reports whether the operation takes a shape off the board.
func (k OpKind) Removes() bool {
	return k == OpDelete || k == OpClear
}

// Valid reports whether k is one of the shape operation kinds.
func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpModify, OpDelete, OpClear:
		return true
	}
	return false
}

const maxUidLength = 128

// Shape is one drawable element of the board.
type Shape struct {
	Uid        Uid
	Geometry   geometry.Geometry
	CreatedAt  time.Time
	ModifiedAt time.Time

	// Owner is the user that created the shape.
	Owner string

	// Editor is the requester of the edit that produced this value and Level
	// is the editor's rank when the edit was made.
	Editor string
	Level  int

	Op OpKind

	// Settled is false while the shape is mid-drag.
	Settled bool
}

// Live reports whether the shape is still on the board.
func (s Shape) Live() bool {
	return !s.Op.Removes()
}

// Validate checks the structural invariants of a single shape update.
func (s Shape) Validate() error {
	if err := ValidateUid(s.Uid); err != nil {
		return err
	}
	if !s.Op.Valid() {
		return fmt.Errorf("%w: shape %s has unknown op %q", ErrValidation, s.Uid, s.Op)
	}
	if s.Live() && s.Geometry == nil {
		return fmt.Errorf("%w: shape %s has no geometry", ErrValidation, s.Uid)
	}
	if s.Level < 0 {
		return fmt.Errorf("%w: shape %s has negative level %d", ErrValidation, s.Uid, s.Level)
	}
	return nil
}

// ValidateUid rejects empty, oversized or whitespace/control-bearing identifiers.
func ValidateUid(uid Uid) error {
	if uid == "" {
		return fmt.Errorf("%w: empty uid", ErrValidation)
	}
	if len(uid) > maxUidLength {
		return fmt.Errorf("%w: uid longer than %d bytes", ErrValidation, maxUidLength)
	}
	if strings.IndexFunc(string(uid), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return fmt.Errorf("%w: uid %q contains whitespace", ErrValidation, uid)
	}
	return nil
}

// SortByCreation orders shapes by creation time, then Uid, in place.
func SortByCreation(shapes []Shape) {
	sort.SliceStable(shapes, func(i, j int) bool {
		if !shapes[i].CreatedAt.Equal(shapes[j].CreatedAt) {
			return shapes[i].CreatedAt.Before(shapes[j].CreatedAt)
		}
		return shapes[i].Uid < shapes[j].Uid
	})
}
