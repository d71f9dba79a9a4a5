package board

import (
	"fmt"
	"strings"

	"github.com/burntcarrot/pairboard/geometry"
)

// Resolve picks the surviving update among candidates that target the same
// Uid. It is a pure function of the candidate set: the result does not depend
// on the order of the arguments. Resolve panics on an empty candidate list.
func Resolve(candidates ...Shape) Shape {
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if Compare(c, winner) > 0 {
			winner = c
		}
	}
	return winner
}

// Beats reports whether a survives a conflict with b.
func Beats(a, b Shape) bool {
	return Compare(a, b) > 0
}

// Same reports whether a and b are indistinguishable to the policy.
func Same(a, b Shape) bool {
	return Compare(a, b) == 0
}

// Confirms reports whether committed is edit as the authority stored it:
// the same edit, possibly with its last-modified time moved forward to the
// time of the value it replaced.
func Confirms(committed, edit Shape) bool {
	if committed.ModifiedAt.Before(edit.ModifiedAt) {
		return false
	}
	committed.ModifiedAt = edit.ModifiedAt
	return Same(committed, edit)
}

// Compare orders two updates to the same shape. A positive result means a
// wins. The rules apply in order:
//
//  1. a removal beats any create or modify,
//  2. the higher level wins,
//  3. the later modification wins,
//  4. the lexicographically smaller editor wins,
//  5. the smaller payload fingerprint wins, so the order is total.
func Compare(a, b Shape) int {
	if ar, br := a.Op.Removes(), b.Op.Removes(); ar != br {
		if ar {
			return 1
		}
		return -1
	}

	if a.Level != b.Level {
		if a.Level > b.Level {
			return 1
		}
		return -1
	}

	if !a.ModifiedAt.Equal(b.ModifiedAt) {
		if a.ModifiedAt.After(b.ModifiedAt) {
			return 1
		}
		return -1
	}

	if a.Editor != b.Editor {
		if a.Editor < b.Editor {
			return 1
		}
		return -1
	}

	// Smaller fingerprint wins.
	return strings.Compare(fingerprint(b), fingerprint(a))
}

func fingerprint(s Shape) string {
	var g geometry.Payload
	if s.Geometry != nil {
		g = geometry.Encode(s.Geometry)
	}
	return fmt.Sprintf("%s|%s|%v|%t|%d|%s",
		s.Op, g.Kind, g.Points, s.Settled, s.CreatedAt.UnixNano(), s.Owner)
}
