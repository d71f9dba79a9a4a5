package mirror

import (
	"fmt"
	"sort"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/geometry"
)

// drag tracks one pointer drag over the selection.
type drag struct {
	start   geometry.Coordinate
	last    geometry.Coordinate
	origins map[board.Uid]geometry.Geometry
	samples int
}

// Create adds a new shape with geometry g and returns its Uid.
func (m *Mirror) Create(g geometry.Geometry) (board.Uid, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	if g == nil {
		return "", fmt.Errorf("%w: shape has no geometry", board.ErrValidation)
	}

	at := m.stamp()
	s := board.Shape{
		Uid:        m.newUid(),
		Geometry:   g,
		CreatedAt:  at,
		ModifiedAt: at,
		Owner:      m.user,
		Editor:     m.user,
		Level:      m.level,
		Op:         board.OpCreate,
		Settled:    true,
	}
	if err := s.Validate(); err != nil {
		return "", err
	}

	m.local(commons.CreateMessage, s)
	return s.Uid, nil
}

// CreateRectangle adds a rectangle spanning the corners a and b.
func (m *Mirror) CreateRectangle(a, b geometry.Coordinate) (board.Uid, error) {
	return m.Create(geometry.NewRectangle(a, b))
}

// CreateEllipse adds the ellipse inscribed in the box spanned by a and b.
func (m *Mirror) CreateEllipse(a, b geometry.Coordinate) (board.Uid, error) {
	box := geometry.BoundsOf(a, b)
	center := geometry.Pt((box.Min.Row+box.Max.Row)/2, (box.Min.Col+box.Max.Col)/2)
	return m.Create(geometry.Ellipse{Center: center, Radii: geometry.Pt(box.Height()/2, box.Width()/2)})
}

// CreateLine adds a straight line from a to b.
func (m *Mirror) CreateLine(a, b geometry.Coordinate) (board.Uid, error) {
	return m.Create(geometry.NewLine(a, b))
}

// HitTest returns the topmost visible shape containing p.
func (m *Mirror) HitTest(p geometry.Coordinate) (board.Shape, bool) {
	shapes := m.Shapes()
	for i := len(shapes) - 1; i >= 0; i-- {
		if shapes[i].Geometry.Contains(p) {
			return shapes[i], true
		}
	}
	return board.Shape{}, false
}

// Select selects the topmost shape under p. With add unset the previous
// selection is replaced; a miss then clears it.
func (m *Mirror) Select(p geometry.Coordinate, add bool) (board.Uid, bool, error) {
	if err := m.ready(); err != nil {
		return "", false, err
	}
	if !add {
		m.ClearSelection()
	}
	s, ok := m.HitTest(p)
	if !ok {
		return "", false, nil
	}
	m.selected[s.Uid] = true
	return s.Uid, true, nil
}

// SelectUids adds uids to the selection.
func (m *Mirror) SelectUids(uids ...board.Uid) error {
	if err := m.ready(); err != nil {
		return err
	}
	for _, uid := range uids {
		if _, ok := m.visible(uid); !ok {
			return fmt.Errorf("select %s: %w", uid, board.ErrNotFound)
		}
	}
	for _, uid := range uids {
		m.selected[uid] = true
	}
	return nil
}

// ClearSelection empties the selection.
func (m *Mirror) ClearSelection() {
	m.selected = make(map[board.Uid]bool)
}

// Selected returns the selected Uids in order.
func (m *Mirror) Selected() []board.Uid {
	return sortedUids(m.selected)
}

// BeginDrag starts dragging the selection from p. If nothing is selected the
// shape under p is selected first.
func (m *Mirror) BeginDrag(p geometry.Coordinate) error {
	if err := m.ready(); err != nil {
		return err
	}
	if len(m.selected) == 0 {
		if _, _, err := m.Select(p, false); err != nil {
			return err
		}
	}
	if len(m.selected) == 0 {
		return fmt.Errorf("drag at %v: %w", p, board.ErrNotFound)
	}

	d := &drag{start: p, last: p, origins: make(map[board.Uid]geometry.Geometry, len(m.selected))}
	for uid := range m.selected {
		if s, ok := m.visible(uid); ok {
			d.origins[uid] = s.Geometry
		}
	}
	m.drag = d
	return nil
}

// DragTo moves the dragged shapes so they are displaced by p minus the drag
// start, and sends one intermediate MODIFY for the sample.
func (m *Mirror) DragTo(p geometry.Coordinate) error {
	return m.sample(p, false)
}

// EndDrag sends the terminal sample of the drag.
func (m *Mirror) EndDrag(p geometry.Coordinate) error {
	if err := m.sample(p, true); err != nil {
		return err
	}
	m.logger.WithField("samples", m.drag.samples).Debug("finished drag")
	m.drag = nil
	return nil
}

// sample positions every dragged shape relative to its geometry at drag
// start, so rounding never accumulates across samples.
func (m *Mirror) sample(p geometry.Coordinate, final bool) error {
	if err := m.ready(); err != nil {
		return err
	}
	if m.drag == nil {
		return fmt.Errorf("%w: no drag in progress", board.ErrValidation)
	}

	total := p.Minus(m.drag.start)
	var moved []board.Shape
	for _, uid := range sortedUids(m.selected) {
		origin, ok := m.drag.origins[uid]
		if !ok {
			continue
		}
		s, ok := m.visible(uid)
		if !ok {
			// Removed by someone else mid-drag.
			delete(m.drag.origins, uid)
			continue
		}
		s.Geometry = origin.Translate(total)
		moved = append(moved, m.edit(s, board.OpModify, final))
	}

	m.drag.last = p
	m.drag.samples++
	if len(moved) > 0 {
		m.local(commons.ModifyMessage, moved...)
	}
	return nil
}

// Resize fits the geometry of uid to bounds.
func (m *Mirror) Resize(uid board.Uid, bounds geometry.Bounds) error {
	if err := m.ready(); err != nil {
		return err
	}
	s, ok := m.visible(uid)
	if !ok {
		return fmt.Errorf("resize %s: %w", uid, board.ErrNotFound)
	}
	if bounds.Height() < 0 || bounds.Width() < 0 {
		return fmt.Errorf("%w: inverted bounds %v", board.ErrValidation, bounds)
	}
	s.Geometry = s.Geometry.Resize(bounds)
	m.local(commons.ModifyMessage, m.edit(s, board.OpModify, true))
	return nil
}

// Delete removes the selected shapes.
func (m *Mirror) Delete() error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.DeleteUids(m.Selected()...)
}

// DeleteUids removes the given shapes. Unknown or already removed Uids are skipped.
func (m *Mirror) DeleteUids(uids ...board.Uid) error {
	if err := m.ready(); err != nil {
		return err
	}
	var removed []board.Shape
	for _, uid := range uids {
		if s, ok := m.visible(uid); ok {
			removed = append(removed, m.edit(s, board.OpDelete, true))
		}
	}
	if len(removed) == 0 {
		return nil
	}
	m.local(commons.DeleteMessage, removed...)
	return nil
}

// Clear removes every shape on the board. The authority also clears shapes
// this mirror has not seen yet.
func (m *Mirror) Clear() error {
	if err := m.ready(); err != nil {
		return err
	}
	var removed []board.Shape
	for _, s := range m.Shapes() {
		removed = append(removed, m.edit(s, board.OpClear, true))
	}
	m.drag = nil
	m.ClearSelection()
	m.local(commons.ClearMessage, removed...)
	return nil
}

// SaveCheckpoint asks the authority to snapshot the board.
func (m *Mirror) SaveCheckpoint() error {
	if err := m.ready(); err != nil {
		return err
	}
	m.send(commons.Message{Requester: m.user, Epoch: m.epoch, Type: commons.SaveCheckpointMessage})
	return nil
}

// RestoreCheckpoint asks the authority to restore checkpoint n. The board
// changes when the authority broadcasts the restored state.
func (m *Mirror) RestoreCheckpoint(n int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if n < 0 || n >= m.checkpoints {
		return fmt.Errorf("restore checkpoint %d of %d: %w", n, m.checkpoints, board.ErrNotFound)
	}
	m.send(commons.Message{Requester: m.user, Epoch: m.epoch, Type: commons.FetchCheckpointMessage, Checkpoint: n})
	return nil
}

// RequestState asks the authority for a full-state snapshot.
func (m *Mirror) RequestState() error {
	if err := m.ready(); err != nil {
		return err
	}
	m.send(commons.Message{Requester: m.user, Epoch: m.epoch, Type: commons.FetchStateMessage})
	return nil
}

// Resync resends every pending edit and asks for a fresh snapshot. Call it
// after the connection to the authority is re-established: edits sent while
// the link was failing may never have arrived.
func (m *Mirror) Resync() error {
	if err := m.ready(); err != nil {
		return err
	}
	uids := make([]board.Uid, 0, len(m.pending))
	for uid := range m.pending {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	for _, uid := range uids {
		p := m.pending[uid]
		m.send(commons.NewDelta(m.user, m.epoch, commons.MessageType(p.Op), []board.Shape{p}))
	}
	m.logger.WithField("pending", len(uids)).Info("resynchronizing with authority")
	return m.RequestState()
}
