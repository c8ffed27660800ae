// Package tui is the terminal editor: a file tree on the left and the
// selected file's content on the right, both driven by a workspace.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lemesvini/codeLog/internal/tree"
	"github.com/lemesvini/codeLog/internal/workspace"
)

const treeWidth = 32

// Workspace is what the editor needs from a workspace.Manager.
type Workspace interface {
	Snapshot() workspace.State
	Load(ctx context.Context) error
	ToggleExpand(folderID string)
	Select(fileID string) bool
	CreateFile(ctx context.Context, parentID *string) error
	CreateFolder(ctx context.Context, parentID *string) error
	Rename(ctx context.Context, id string) error
	DeleteItem(ctx context.Context, id string) error
	Edit(fileID, content string)
	DismissError()
	Dirty() bool
	Flush(ctx context.Context) error
}

type focus int

const (
	focusTree focus = iota
	focusEditor
)

type row struct {
	node  *tree.Node
	depth int
}

type dialog struct {
	prompt  *promptMsg
	confirm *confirmMsg
	input   textinput.Model
}

type opDoneMsg struct {
	op  string
	err error
}

type tickMsg time.Time

// Model is the Bubble Tea model.
type Model struct {
	ctx     context.Context
	ws      Workspace
	user    string
	signOut func()

	state   workspace.State
	rows    []row
	cursor  int
	focus   focus
	editor  textarea.Model
	editing string
	dialog  *dialog
	busy    bool

	width  int
	height int
}

// New creates the editor model. Workspace operations run with ctx.
// signOut, when set, is bound to the O key: the pending edit is saved,
// signOut is called and the program exits.
func New(ctx context.Context, ws Workspace, user string, signOut func()) *Model {
	ed := textarea.New()
	ed.ShowLineNumbers = true
	ed.Placeholder = "Select a file to start editing"
	ed.CharLimit = 0
	ed.Blur()

	return &Model{
		ctx:     ctx,
		ws:      ws,
		user:    user,
		signOut: signOut,
		editor:  ed,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init loads the tree.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.run("load", m.ws.Load), tick())
}

// run starts a workspace operation off the update loop. Only one runs at
// a time.
func (m *Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	if m.busy {
		return nil
	}
	m.busy = true
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.editor.SetWidth(max(msg.Width-treeWidth-6, 10))
		m.editor.SetHeight(max(msg.Height-6, 3))
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case opDoneMsg:
		m.busy = false
		if msg.op == "sign out" {
			return m, tea.Quit
		}
		m.refresh()
		return m, nil

	case selectedMsg:
		m.editing = msg.record.ID
		m.editor.SetValue(msg.record.Content)
		m.refresh()
		if m.editing == "" {
			m.focus = focusTree
			m.editor.Blur()
			return m, nil
		}
		m.focus = focusEditor
		return m, m.editor.Focus()

	case promptMsg:
		in := textinput.New()
		in.SetValue(msg.initial)
		in.CharLimit = 255
		m.dialog = &dialog{prompt: &msg, input: in}
		return m, m.dialog.input.Focus()

	case confirmMsg:
		m.dialog = &dialog{confirm: &msg}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.closeDialog(false)
			return m, tea.Quit
		}
		if m.dialog != nil {
			return m, m.updateDialog(msg)
		}
		if m.focus == focusEditor {
			return m, m.updateEditor(msg)
		}
		return m, m.updateTree(msg)
	}
	return m, nil
}

func (m *Model) updateDialog(msg tea.KeyMsg) tea.Cmd {
	d := m.dialog
	if d.confirm != nil {
		switch msg.String() {
		case "y", "Y", "enter":
			m.closeDialog(true)
		case "n", "N", "esc":
			m.closeDialog(false)
		}
		return nil
	}

	switch msg.String() {
	case "enter":
		m.closeDialog(true)
		return nil
	case "esc":
		m.closeDialog(false)
		return nil
	}
	var cmd tea.Cmd
	d.input, cmd = d.input.Update(msg)
	return cmd
}

// closeDialog answers the open dialog, if any.
func (m *Model) closeDialog(ok bool) {
	d := m.dialog
	if d == nil {
		return
	}
	m.dialog = nil
	switch {
	case d.prompt != nil:
		d.prompt.reply <- promptReply{value: d.input.Value(), ok: ok}
	case d.confirm != nil:
		d.confirm.reply <- ok
	}
}

func (m *Model) updateEditor(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "tab":
		m.focus = focusTree
		m.editor.Blur()
		return nil
	}

	before := m.editor.Value()
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if after := m.editor.Value(); after != before && m.editing != "" {
		m.ws.Edit(m.editing, after)
	}
	return cmd
}

func (m *Model) updateTree(msg tea.KeyMsg) tea.Cmd {
	cur := m.current()
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "enter", " ":
		if cur == nil {
			return nil
		}
		if cur.IsFolder() {
			m.ws.ToggleExpand(cur.ID)
			m.refresh()
			return nil
		}
		ws, id := m.ws, cur.ID
		return func() tea.Msg {
			ws.Select(id)
			return nil
		}
	case "tab":
		if m.editing != "" {
			m.focus = focusEditor
			return m.editor.Focus()
		}
	case "esc":
		m.ws.DismissError()
		m.refresh()
	case "R":
		return m.run("load", m.ws.Load)
	case "n":
		parent := m.targetParent()
		return m.run("create file", func(ctx context.Context) error {
			return m.ws.CreateFile(ctx, parent)
		})
	case "N":
		parent := m.targetParent()
		return m.run("create folder", func(ctx context.Context) error {
			return m.ws.CreateFolder(ctx, parent)
		})
	case "r":
		if cur != nil {
			id := cur.ID
			return m.run("rename", func(ctx context.Context) error {
				return m.ws.Rename(ctx, id)
			})
		}
	case "d":
		if cur != nil {
			id := cur.ID
			return m.run("delete", func(ctx context.Context) error {
				return m.ws.DeleteItem(ctx, id)
			})
		}
	case "O":
		if m.signOut != nil {
			ws, signOut := m.ws, m.signOut
			return m.run("sign out", func(ctx context.Context) error {
				err := ws.Flush(ctx)
				signOut()
				return err
			})
		}
	}
	return nil
}

func (m *Model) current() *tree.Node {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].node
}

// targetParent is where new items go: the folder under the cursor, or
// the parent of the file under the cursor.
func (m *Model) targetParent() *string {
	cur := m.current()
	if cur == nil {
		return nil
	}
	if cur.IsFolder() {
		id := cur.ID
		return &id
	}
	return cur.ParentID
}

// refresh pulls a new snapshot and rebuilds the visible rows, keeping the
// cursor on the same item when it is still visible.
func (m *Model) refresh() {
	var keep string
	if cur := m.current(); cur != nil {
		keep = cur.ID
	}

	m.state = m.ws.Snapshot()
	m.rows = m.rows[:0]
	tree.Walk(m.state.Tree, func(n *tree.Node, depth int) bool {
		m.rows = append(m.rows, row{node: n, depth: depth})
		return n.IsFolder() && m.state.Expanded[n.ID]
	})

	for i, r := range m.rows {
		if r.node.ID == keep {
			m.cursor = i
			return
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = max(len(m.rows)-1, 0)
	}
}

func (m *Model) View() string {
	header := headerStyle.Render("codeLog") + helpStyle.Render("  "+m.user)
	if m.ws.Dirty() {
		header += helpStyle.Render("  ● unsaved")
	}
	if m.state.Loading {
		header += helpStyle.Render("  loading...")
	}

	treePane, editorPane := paneStyle, paneStyle
	if m.focus == focusTree {
		treePane = activePane
	} else {
		editorPane = activePane
	}
	height := max(m.height-4, 3)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		treePane.Width(treeWidth).Height(height).Render(m.treeView(height)),
		editorPane.Height(height).Render(m.editor.View()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.footer())
}

func (m *Model) treeView(height int) string {
	if len(m.rows) == 0 {
		if m.state.Loading {
			return "Loading files..."
		}
		return "No files yet\nPress n to create one"
	}

	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	end := min(start+height, len(m.rows))

	var b strings.Builder
	for i := start; i < end; i++ {
		r := m.rows[i]
		mark := fileMark
		if r.node.IsFolder() {
			mark = folderClosed
			if m.state.Expanded[r.node.ID] {
				mark = folderOpen
			}
		}
		name := r.node.Name
		if r.node.ID == m.state.Selected {
			name = selectedStyle.Render(name)
		}
		line := strings.Repeat("  ", r.depth) + mark + " " + name
		if i == m.cursor && m.focus == focusTree {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m *Model) footer() string {
	switch {
	case m.dialog != nil && m.dialog.confirm != nil:
		return fmt.Sprintf("%s [y/N]", m.dialog.confirm.message)
	case m.dialog != nil:
		return m.dialog.prompt.message + " " + m.dialog.input.View()
	case m.state.Err != "":
		return errorStyle.Render(m.state.Err) + helpStyle.Render("  (esc to dismiss)")
	case m.focus == focusEditor:
		return helpStyle.Render("esc/tab: back to tree • ctrl+c: quit")
	default:
		return helpStyle.Render("↑/↓: move • enter: open • n/N: new file/folder • r: rename • d: delete • R: reload • tab: editor • O: sign out • ctrl+c: quit")
	}
}
