package commons

import (
	"time"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/geometry"
)

// Operation represents a single shape delta inside a Message.
type Operation struct {
	Uid  board.Uid    `json:"uid"`
	Type board.OpKind `json:"type"`

	// Geometry is omitted for removals.
	Geometry *geometry.Payload `json:"geometry,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Owner      string    `json:"owner"`
	Editor     string    `json:"editor"`
	Level      int       `json:"level"`

	// Transient marks an intermediate drag sample. The terminal sample of a
	// gesture is sent with Transient unset.
	Transient bool `json:"transient,omitempty"`
}
