package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Act     key.Binding
	Add     key.Binding
	Move    key.Binding
	Rect    key.Binding
	Ellipse key.Binding
	Line    key.Binding
	Select  key.Binding
	Grow    key.Binding
	Shrink  key.Binding
	Delete  key.Binding
	Clear   key.Binding
	Save    key.Binding
	Restore key.Binding
	Refresh key.Binding
	Cancel  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Act, k.Rect, k.Ellipse, k.Line, k.Select, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Act, k.Add, k.Move, k.Cancel},
		{k.Rect, k.Ellipse, k.Line, k.Select},
		{k.Grow, k.Shrink, k.Delete, k.Clear},
		{k.Save, k.Restore, k.Refresh, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
	Right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
	Act:     key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "draw/select")),
	Add:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add to selection")),
	Move:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "start/end move")),
	Rect:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rectangle")),
	Ellipse: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "ellipse")),
	Line:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "line")),
	Select:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "select")),
	Grow:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "grow")),
	Shrink:  key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "shrink")),
	Delete:  key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
	Clear:   key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "clear board")),
	Save:    key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "checkpoint")),
	Restore: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "restore")),
	Refresh: key.NewBinding(key.WithKeys("ctrl+f"), key.WithHelp("ctrl+f", "refetch")),
	Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}
