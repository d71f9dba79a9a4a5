package mirror

import (
	"sort"

	"github.com/burntcarrot/pairboard/board"
)

// EventKind says what changed on the mirror.
type EventKind int

const (
	// ShapesChanged carries shapes created or modified.
	ShapesChanged EventKind = iota
	// ShapesRemoved carries shapes deleted or cleared.
	ShapesRemoved
	// ShapesCorrected carries authoritative values that replaced a local edit.
	ShapesCorrected
	// BoardReset carries the whole visible board after a full-state snapshot.
	BoardReset
	// CheckpointsChanged carries the new checkpoint count.
	CheckpointsChanged
)

func (k EventKind) String() string {
	switch k {
	case ShapesChanged:
		return "changed"
	case ShapesRemoved:
		return "removed"
	case ShapesCorrected:
		return "corrected"
	case BoardReset:
		return "reset"
	case CheckpointsChanged:
		return "checkpoints"
	}
	return "unknown"
}

// Event is delivered to listeners.
type Event struct {
	Kind        EventKind
	Shapes      []board.Shape
	Checkpoints int
}

// Listener receives mirror events. Listeners run on the goroutine that
// mutated the mirror and must not call back into it.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

// Subscribe registers listener under channelID and returns a function that
// removes it. Channels are notified in name order, listeners within a channel
// in registration order.
func (m *Mirror) Subscribe(listener Listener, channelID string) func() {
	m.nextListener++
	id := m.nextListener
	m.listeners[channelID] = append(m.listeners[channelID], listenerEntry{id: id, fn: listener})

	return func() {
		entries := m.listeners[channelID]
		for i, e := range entries {
			if e.id == id {
				m.listeners[channelID] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(m.listeners[channelID]) == 0 {
			delete(m.listeners, channelID)
		}
	}
}

func (m *Mirror) notify(ev Event) {
	if len(ev.Shapes) == 0 && ev.Kind != BoardReset && ev.Kind != CheckpointsChanged {
		return
	}

	channels := make([]string, 0, len(m.listeners))
	for ch := range m.listeners {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	for _, ch := range channels {
		for _, e := range m.listeners[ch] {
			e.fn(ev)
		}
	}
}
