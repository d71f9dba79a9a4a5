package commons

// Message represents the envelope sent over the wire between mirrors and the authority.
type Message struct {
	// Requester is the id of the user that caused the message.
	Requester string `json:"requester"`

	// Epoch counts the checkpoint restores the sender's state is based on.
	// Batches carrying an older epoch than the authority's are stale.
	Epoch int `json:"epoch"`

	// Type represents the message type.
	Type MessageType `json:"type"`

	// Full marks Shapes as a complete board snapshot instead of a delta.
	Full bool `json:"full,omitempty"`

	// Checkpoint is the checkpoint number a FETCH_CHECKPOINT refers to.
	Checkpoint int `json:"checkpoint,omitempty"`

	// Checkpoints is the number of saved checkpoints, filled in by the authority.
	Checkpoints int `json:"checkpoints,omitempty"`

	// Shapes is the ordered list of shape operations.
	Shapes []Operation `json:"shapes,omitempty"`
}

// MessageType represents the type of the message. The shape types mirror
// board.OpKind; the rest are requests to the authority.
type MessageType string

const (
	CreateMessage          MessageType = "CREATE"
	ModifyMessage          MessageType = "MODIFY"
	DeleteMessage          MessageType = "DELETE"
	ClearMessage           MessageType = "CLEAR"
	FetchStateMessage      MessageType = "FETCH_STATE"
	FetchCheckpointMessage MessageType = "FETCH_CHECKPOINT"
	SaveCheckpointMessage  MessageType = "SAVE_CHECKPOINT"
)

// IsUpdate reports whether the message carries shape edits for SaveUpdate.
func (t MessageType) IsUpdate() bool {
	switch t {
	case CreateMessage, ModifyMessage, DeleteMessage, ClearMessage:
		return true
	}
	return false
}
