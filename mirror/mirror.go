// Package mirror is a client's optimistic replica of the board. Local edits
// are applied immediately and sent to the authority without waiting; the
// authority's broadcasts are merged back in with the same conflict policy the
// authority uses, rolling back local edits that lost.
//
// A Mirror is not safe for concurrent use. It is meant to be owned by the
// client's event loop, which serializes gestures and inbound messages.
package mirror

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/commons"
)

// Sender hands a message to the transport. Send must not wait for the
// authority to acknowledge the message.
type Sender interface {
	Send(msg commons.Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(msg commons.Message) error

func (f SenderFunc) Send(msg commons.Message) error { return f(msg) }

// Mirror is a client-side replica of the board.
type Mirror struct {
	sender Sender
	logger logrus.FieldLogger
	now    func() time.Time
	newUid func() board.Uid

	started bool
	user    string
	level   int

	epoch       int
	checkpoints int

	// confirmed holds the last authoritative value of every known Uid,
	// removals included. pending holds local edits not yet confirmed.
	confirmed map[board.Uid]board.Shape
	pending   map[board.Uid]board.Shape

	// lastStamp keeps local modification times strictly increasing.
	lastStamp time.Time

	selected map[board.Uid]bool
	drag     *drag

	listeners    map[string][]listenerEntry
	nextListener int
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the mirror's logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Mirror) { m.logger = l }
}

// WithClock overrides the clock used to stamp local edits.
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) { m.now = now }
}

// WithUidGenerator overrides how new shape identifiers are generated.
func WithUidGenerator(gen func() board.Uid) Option {
	return func(m *Mirror) { m.newUid = gen }
}

// New creates a mirror that sends its edits through sender.
func New(sender Sender, opts ...Option) *Mirror {
	m := &Mirror{
		sender:    sender,
		logger:    logrus.StandardLogger(),
		now:       time.Now,
		newUid:    func() board.Uid { return board.Uid(uuid.NewString()) },
		confirmed: make(map[board.Uid]board.Shape),
		pending:   make(map[board.Uid]board.Shape),
		selected:  make(map[board.Uid]bool),
		listeners: make(map[string][]listenerEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start marks the mirror ready. Shape operations also require SetUser.
func (m *Mirror) Start() {
	m.started = true
}

// SetUser sets the local user and the rank used to arbitrate their edits.
func (m *Mirror) SetUser(userID string, level int) {
	m.user = userID
	m.level = level
	m.logger = m.logger.WithField("user", userID)
}

// User returns the local user id.
func (m *Mirror) User() string { return m.user }

// Epoch returns the restore epoch the mirror's state is based on.
func (m *Mirror) Epoch() int { return m.epoch }

// Checkpoints returns the number of checkpoints saved on the authority.
func (m *Mirror) Checkpoints() int { return m.checkpoints }

func (m *Mirror) ready() error {
	if !m.started || m.user == "" {
		return board.ErrNotInitialized
	}
	return nil
}

// visible returns the value the UI shows for uid.
func (m *Mirror) visible(uid board.Uid) (board.Shape, bool) {
	if s, ok := m.pending[uid]; ok {
		return s, s.Live()
	}
	s, ok := m.confirmed[uid]
	return s, ok && s.Live()
}

// Shape returns the visible value of uid.
func (m *Mirror) Shape(uid board.Uid) (board.Shape, bool) {
	return m.visible(uid)
}

// Shapes returns every visible shape in creation (render) order.
func (m *Mirror) Shapes() []board.Shape {
	seen := make(map[board.Uid]bool, len(m.confirmed)+len(m.pending))
	var out []board.Shape
	for uid := range m.pending {
		seen[uid] = true
	}
	for uid := range m.confirmed {
		seen[uid] = true
	}
	for uid := range seen {
		if s, ok := m.visible(uid); ok {
			out = append(out, s)
		}
	}
	board.SortByCreation(out)
	return out
}

// Pending returns the number of local edits awaiting confirmation.
func (m *Mirror) Pending() int {
	return len(m.pending)
}

// stamp returns a modification time later than every previous local edit.
func (m *Mirror) stamp() time.Time {
	t := m.now()
	if !t.After(m.lastStamp) {
		t = m.lastStamp.Add(time.Nanosecond)
	}
	m.lastStamp = t
	return t
}

// edit derives a local edit of s.
func (m *Mirror) edit(s board.Shape, op board.OpKind, settled bool) board.Shape {
	return commons.ApplyUpdate(s, board.Shape{
		Geometry:   s.Geometry,
		ModifiedAt: m.stamp(),
		Editor:     m.user,
		Level:      m.level,
		Op:         op,
		Settled:    settled,
	})
}

// local applies shapes optimistically, notifies listeners and sends them.
// Send failures leave the edits pending; a later broadcast confirms or
// corrects them.
func (m *Mirror) local(t commons.MessageType, shapes ...board.Shape) {
	var changed, removed []board.Shape
	for _, s := range shapes {
		m.pending[s.Uid] = s
		if s.Live() {
			changed = append(changed, s)
		} else {
			removed = append(removed, s)
			delete(m.selected, s.Uid)
		}
	}
	m.notify(Event{Kind: ShapesChanged, Shapes: changed})
	m.notify(Event{Kind: ShapesRemoved, Shapes: removed})

	m.send(commons.NewDelta(m.user, m.epoch, t, shapes))
}

func (m *Mirror) send(msg commons.Message) {
	if err := m.sender.Send(msg); err != nil {
		m.logger.WithError(err).WithField("type", msg.Type).Warn("failed to send message")
	}
}

// Apply merges a message from the authority into the mirror.
func (m *Mirror) Apply(msg commons.Message) error {
	shapes, err := commons.FromOperations(msg.Shapes)
	if err != nil {
		return fmt.Errorf("apply %s: %w", msg.Type, err)
	}

	if msg.Type == commons.SaveCheckpointMessage || msg.Checkpoints > m.checkpoints {
		m.checkpoints = msg.Checkpoints
		m.notify(Event{Kind: CheckpointsChanged, Checkpoints: m.checkpoints})
	}

	if msg.Full {
		m.replace(msg, shapes)
		return nil
	}

	if !msg.Type.IsUpdate() || len(shapes) == 0 {
		return nil
	}
	if msg.Epoch < m.epoch {
		m.logger.WithFields(logrus.Fields{"epoch": msg.Epoch, "current": m.epoch}).Debug("dropped stale delta")
		return nil
	}

	var changed, removed, corrected []board.Shape
	for _, d := range shapes {
		m.confirmed[d.Uid] = d

		if p, ok := m.pending[d.Uid]; ok {
			switch {
			case board.Confirms(d, p):
				delete(m.pending, d.Uid)
				continue
			case board.Beats(p, d):
				// Our edit is still in flight and wins against d.
				continue
			default:
				delete(m.pending, d.Uid)
				corrected = append(corrected, d)
				m.logger.WithField("uid", d.Uid).Debug("rolled back local edit")
			}
		}

		if d.Live() {
			changed = append(changed, d)
		} else {
			removed = append(removed, d)
			delete(m.selected, d.Uid)
		}
	}

	m.notify(Event{Kind: ShapesCorrected, Shapes: corrected})
	m.notify(Event{Kind: ShapesChanged, Shapes: changed})
	m.notify(Event{Kind: ShapesRemoved, Shapes: removed})
	return nil
}

// replace installs a full-state snapshot. A restore drops every pending edit;
// a plain state fetch keeps the pending edits that would still win.
func (m *Mirror) replace(msg commons.Message, shapes []board.Shape) {
	restore := msg.Type == commons.FetchCheckpointMessage || msg.Epoch != m.epoch

	m.epoch = msg.Epoch
	m.confirmed = make(map[board.Uid]board.Shape, len(shapes))
	for _, s := range shapes {
		m.confirmed[s.Uid] = s
	}

	for uid, p := range m.pending {
		c, ok := m.confirmed[uid]
		if restore || (ok && !board.Beats(p, c)) {
			delete(m.pending, uid)
		}
	}

	m.drag = nil
	for uid := range m.selected {
		if _, ok := m.visible(uid); !ok {
			delete(m.selected, uid)
		}
	}

	m.logger.WithFields(logrus.Fields{"type": msg.Type, "epoch": m.epoch, "shapes": len(shapes)}).Info("replaced board state")
	m.notify(Event{Kind: BoardReset, Shapes: m.Shapes()})
}

// sortedUids returns the keys of set in order.
func sortedUids(set map[board.Uid]bool) []board.Uid {
	out := make([]board.Uid, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
