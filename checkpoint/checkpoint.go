// Package checkpoint keeps the append-only history of board snapshots.
package checkpoint

import (
	"time"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/commons"
)

// Checkpoint is an immutable, numbered snapshot of the board.
type Checkpoint struct {
	Number     int
	Creator    string
	CapturedAt time.Time

	// Shapes is the live shape set at capture time, in creation order.
	Shapes []board.Shape
}

// Summary describes a checkpoint without its shapes.
type Summary struct {
	Number     int       `json:"number"`
	Creator    string    `json:"creator"`
	CapturedAt time.Time `json:"capturedAt"`
	Shapes     int       `json:"shapes"`
}

// Record is the serialized form of a checkpoint, used by stores.
type Record struct {
	Number     int                 `json:"number"`
	Creator    string              `json:"creator"`
	CapturedAt time.Time           `json:"capturedAt"`
	Shapes     []commons.Operation `json:"shapes"`
}

// ToRecord converts a checkpoint to its serialized form.
func ToRecord(cp Checkpoint) Record {
	return Record{
		Number:     cp.Number,
		Creator:    cp.Creator,
		CapturedAt: cp.CapturedAt,
		Shapes:     commons.ToOperations(cp.Shapes),
	}
}

// FromRecord converts a stored record back into a checkpoint.
func FromRecord(r Record) (Checkpoint, error) {
	shapes, err := commons.FromOperations(r.Shapes)
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{Number: r.Number, Creator: r.Creator, CapturedAt: r.CapturedAt, Shapes: shapes}, nil
}

func (cp Checkpoint) summary() Summary {
	return Summary{Number: cp.Number, Creator: cp.Creator, CapturedAt: cp.CapturedAt, Shapes: len(cp.Shapes)}
}

// clone returns a copy whose shape slice is not shared with cp.
func (cp Checkpoint) clone() Checkpoint {
	cp.Shapes = append([]board.Shape(nil), cp.Shapes...)
	return cp
}
