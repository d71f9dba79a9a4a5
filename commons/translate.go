package commons

import (
	"fmt"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/geometry"
)

// ToOperation converts a shape into its wire form.
func ToOperation(s board.Shape) Operation {
	op := Operation{
		Uid:        s.Uid,
		Type:       s.Op,
		CreatedAt:  s.CreatedAt,
		ModifiedAt: s.ModifiedAt,
		Owner:      s.Owner,
		Editor:     s.Editor,
		Level:      s.Level,
		Transient:  !s.Settled,
	}
	if s.Geometry != nil {
		payload := geometry.Encode(s.Geometry)
		op.Geometry = &payload
	}
	return op
}

// FromOperation converts a wire operation back into a shape. Undecodable
// geometry is reported as board.ErrValidation.
func FromOperation(op Operation) (board.Shape, error) {
	s := board.Shape{
		Uid:        op.Uid,
		Op:         op.Type,
		CreatedAt:  op.CreatedAt,
		ModifiedAt: op.ModifiedAt,
		Owner:      op.Owner,
		Editor:     op.Editor,
		Level:      op.Level,
		Settled:    !op.Transient,
	}
	if op.Geometry != nil {
		g, err := geometry.Decode(*op.Geometry)
		if err != nil {
			return board.Shape{}, fmt.Errorf("%w: shape %s: %v", board.ErrValidation, op.Uid, err)
		}
		s.Geometry = g
	}
	if err := s.Validate(); err != nil {
		return board.Shape{}, err
	}
	return s, nil
}

// ToOperations converts shapes in order.
func ToOperations(shapes []board.Shape) []Operation {
	ops := make([]Operation, 0, len(shapes))
	for _, s := range shapes {
		ops = append(ops, ToOperation(s))
	}
	return ops
}

// FromOperations converts every operation, failing on the first invalid one.
func FromOperations(ops []Operation) ([]board.Shape, error) {
	shapes := make([]board.Shape, 0, len(ops))
	for _, op := range ops {
		s, err := FromOperation(op)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}

// ApplyUpdate applies update onto original. Geometry, modification time,
// operation, editor, level and settled state come from the update; Uid,
// creation time and owner always come from the original. A removal without
// geometry keeps the original geometry.
func ApplyUpdate(original, update board.Shape) board.Shape {
	out := original
	if update.Geometry != nil {
		out.Geometry = update.Geometry
	}
	out.ModifiedAt = update.ModifiedAt
	out.Op = update.Op
	out.Editor = update.Editor
	out.Level = update.Level
	out.Settled = update.Settled
	return out
}

// NewDelta builds an incremental message carrying shapes.
func NewDelta(requester string, epoch int, t MessageType, shapes []board.Shape) Message {
	return Message{Requester: requester, Epoch: epoch, Type: t, Shapes: ToOperations(shapes)}
}

// NewFullState builds a full-state snapshot message.
func NewFullState(requester string, epoch int, t MessageType, shapes []board.Shape) Message {
	msg := NewDelta(requester, epoch, t, shapes)
	msg.Full = true
	return msg
}
