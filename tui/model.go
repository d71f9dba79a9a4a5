// Package tui is the terminal front end of a pairboard client. The bubbletea
// event loop owns the mirror: gestures and messages from the authority are
// both applied from Update, one at a time.
package tui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/geometry"
	"github.com/burntcarrot/pairboard/mirror"
)

type tool int

const (
	toolSelect tool = iota
	toolRect
	toolEllipse
	toolLine
)

func (t tool) String() string {
	switch t {
	case toolRect:
		return "rectangle"
	case toolEllipse:
		return "ellipse"
	case toolLine:
		return "line"
	}
	return "select"
}

// InboundMsg carries a message from the authority into the event loop.
type InboundMsg struct {
	Message commons.Message
}

// ConnectionMsg reports a change of the connection to the authority.
type ConnectionMsg struct {
	Connected bool
	Err       error
}

var (
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
)

// reservedRows are the terminal rows used below the canvas.
const reservedRows = 3

// Model is the bubbletea model of the board view.
type Model struct {
	mirror *mirror.Mirror
	logger logrus.FieldLogger

	canvas  Canvas
	help    help.Model
	restore textinput.Model

	tool      tool
	cursor    geometry.Coordinate
	anchor    *geometry.Coordinate
	dragging  bool
	restoring bool

	connected bool
	status    string
	err       error

	unsubscribe func()
}

// New returns a board view driving m.
func New(m *mirror.Mirror, logger logrus.FieldLogger) *Model {
	ti := textinput.New()
	ti.Placeholder = "checkpoint number"
	ti.CharLimit = 9
	ti.Width = 20

	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	model := &Model{
		mirror:  m,
		logger:  logger,
		help:    help.New(),
		restore: ti,
		canvas: Canvas{
			Width:    80,
			Height:   20,
			Style:    lipgloss.NewStyle(),
			Selected: selectedStyle,
			Cursor:   cursorStyle,
		},
		tool:      toolRect,
		connected: true,
	}
	model.unsubscribe = m.Subscribe(model.onEvent, "tui")
	return model
}

func (m *Model) onEvent(ev mirror.Event) {
	switch ev.Kind {
	case mirror.ShapesCorrected:
		m.status = fmt.Sprintf("%d edit(s) overruled by a concurrent edit", len(ev.Shapes))
	case mirror.BoardReset:
		m.status = fmt.Sprintf("board synchronized, %d shape(s)", len(ev.Shapes))
	case mirror.CheckpointsChanged:
		m.status = fmt.Sprintf("%d checkpoint(s) saved", ev.Checkpoints)
	}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.canvas.Width = msg.Width
		m.canvas.Height = max(msg.Height-reservedRows, 1)
		m.help.Width = msg.Width
		m.moveCursor(0, 0)
		return m, nil

	case InboundMsg:
		m.report(m.mirror.Apply(msg.Message))
		return m, nil

	case ConnectionMsg:
		wasConnected := m.connected
		m.connected = msg.Connected
		switch {
		case !msg.Connected:
			m.err = msg.Err
			m.status = "disconnected from server, reconnecting"
		case !wasConnected:
			m.status = "reconnected"
			m.report(m.mirror.Resync())
		}
		return m, nil

	case tea.KeyMsg:
		if m.restoring {
			return m.updateRestore(msg)
		}
		return m.updateBoard(msg)
	}
	return m, nil
}

func (m *Model) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.unsubscribe()
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, keys.Up):
		m.moveCursor(-1, 0)
	case key.Matches(msg, keys.Down):
		m.moveCursor(1, 0)
	case key.Matches(msg, keys.Left):
		m.moveCursor(0, -1)
	case key.Matches(msg, keys.Right):
		m.moveCursor(0, 1)

	case key.Matches(msg, keys.Rect):
		m.setTool(toolRect)
	case key.Matches(msg, keys.Ellipse):
		m.setTool(toolEllipse)
	case key.Matches(msg, keys.Line):
		m.setTool(toolLine)
	case key.Matches(msg, keys.Select):
		m.setTool(toolSelect)

	case key.Matches(msg, keys.Act):
		m.act()
	case key.Matches(msg, keys.Add):
		_, _, err := m.mirror.Select(m.cursor, true)
		m.report(err)
	case key.Matches(msg, keys.Move):
		m.toggleDrag()
	case key.Matches(msg, keys.Grow):
		m.resize(1)
	case key.Matches(msg, keys.Shrink):
		m.resize(-1)
	case key.Matches(msg, keys.Delete):
		m.report(m.mirror.Delete())
	case key.Matches(msg, keys.Clear):
		m.report(m.mirror.Clear())

	case key.Matches(msg, keys.Save):
		m.report(m.mirror.SaveCheckpoint())
	case key.Matches(msg, keys.Restore):
		if m.mirror.Checkpoints() == 0 {
			m.status = "no checkpoints to restore"
			return m, nil
		}
		m.restoring = true
		m.restore.Reset()
		return m, m.restore.Focus()
	case key.Matches(msg, keys.Refresh):
		m.report(m.mirror.RequestState())
	case key.Matches(msg, keys.Cancel):
		m.anchor = nil
		if m.dragging {
			m.toggleDrag()
		}
	}
	return m, nil
}

func (m *Model) updateRestore(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.restoring = false
		m.restore.Blur()
		return m, nil
	case tea.KeyEnter:
		m.restoring = false
		m.restore.Blur()
		n, err := strconv.Atoi(strings.TrimSpace(m.restore.Value()))
		if err != nil {
			m.report(fmt.Errorf("not a checkpoint number: %q", m.restore.Value()))
			return m, nil
		}
		if err := m.mirror.RestoreCheckpoint(n); err != nil {
			m.report(err)
			return m, nil
		}
		m.status = fmt.Sprintf("restoring checkpoint %d", n)
		return m, nil
	}

	var cmd tea.Cmd
	m.restore, cmd = m.restore.Update(msg)
	return m, cmd
}

func (m *Model) setTool(t tool) {
	m.tool = t
	m.anchor = nil
	m.status = ""
}

func (m *Model) moveCursor(dr, dc float64) {
	row := min(max(m.cursor.Row+dr, 0), float64(m.canvas.Height-1))
	col := min(max(m.cursor.Col+dc, 0), float64(m.canvas.Width-1))
	next := geometry.Pt(row, col)
	if next.Equals(m.cursor) {
		return
	}
	m.cursor = next
	if m.dragging {
		m.report(m.mirror.DragTo(m.cursor))
	}
}

// act places an anchor, completes a shape, or selects, depending on the tool.
func (m *Model) act() {
	if m.tool == toolSelect {
		_, hit, err := m.mirror.Select(m.cursor, false)
		if err == nil && !hit {
			m.status = "nothing here"
		}
		m.report(err)
		return
	}

	if m.anchor == nil {
		a := m.cursor
		m.anchor = &a
		m.status = "anchor set, move and press space again"
		return
	}

	var err error
	switch m.tool {
	case toolRect:
		_, err = m.mirror.CreateRectangle(*m.anchor, m.cursor)
	case toolEllipse:
		_, err = m.mirror.CreateEllipse(*m.anchor, m.cursor)
	case toolLine:
		_, err = m.mirror.CreateLine(*m.anchor, m.cursor)
	}
	m.anchor = nil
	m.status = ""
	m.report(err)
}

func (m *Model) toggleDrag() {
	if !m.dragging {
		if err := m.mirror.BeginDrag(m.cursor); err != nil {
			m.report(err)
			return
		}
		m.dragging = true
		m.status = "moving, press m to drop"
		return
	}
	m.dragging = false
	m.status = ""
	m.report(m.mirror.EndDrag(m.cursor))
}

func (m *Model) resize(step float64) {
	for _, uid := range m.mirror.Selected() {
		s, ok := m.mirror.Shape(uid)
		if !ok {
			continue
		}
		b := s.Geometry.Bounds()
		b.Max = b.Max.Plus(geometry.Pt(step, step))
		if b.Max.Row < b.Min.Row || b.Max.Col < b.Min.Col {
			continue
		}
		m.report(m.mirror.Resize(uid, b))
	}
}

func (m *Model) report(err error) {
	if err == nil {
		m.err = nil
		return
	}
	m.err = err
	m.logger.WithError(err).Warn("board operation failed")
}

func (m *Model) View() string {
	selected := make(map[board.Uid]bool)
	for _, uid := range m.mirror.Selected() {
		selected[uid] = true
	}

	var sb strings.Builder
	sb.WriteString(m.canvas.Render(m.mirror.Shapes(), selected, m.cursor))
	sb.WriteByte('\n')

	if m.restoring {
		sb.WriteString("restore: " + m.restore.View())
	} else {
		sb.WriteString(statusStyle.Render(m.statusLine()))
	}
	sb.WriteByte('\n')

	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
	} else {
		sb.WriteString(m.help.View(keys))
	}
	return sb.String()
}

func (m *Model) statusLine() string {
	conn := "online"
	if !m.connected {
		conn = "offline"
	}
	line := fmt.Sprintf("%s (%s) | %s | epoch %d | checkpoints %d | pending %d | %.0f,%.0f",
		m.mirror.User(), conn, m.tool, m.mirror.Epoch(), m.mirror.Checkpoints(), m.mirror.Pending(), m.cursor.Row, m.cursor.Col)
	if m.status != "" {
		line += " | " + m.status
	}
	return line
}
