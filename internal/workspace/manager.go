// Package workspace keeps the editor's view of an owner's files: the
// nested tree, which folders are expanded, which file is selected, and the
// autosave of the selected file's content.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lemesvini/codeLog/internal/autosave"
	"github.com/lemesvini/codeLog/internal/files"
	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/metrics"
	"github.com/lemesvini/codeLog/internal/store"
	"github.com/lemesvini/codeLog/internal/tree"
)

// Messages surfaced through State.Err.
const (
	ErrLoad   = "Failed to load files"
	ErrSave   = "Failed to save file"
	ErrCreate = "Failed to create file"
	ErrFolder = "Failed to create folder"
	ErrRename = "Failed to rename item"
	ErrDelete = "Failed to delete item"
)

var errNoOwner = errors.New("no authenticated owner")

// Backend gives access to the signed-in owner and their collection.
type Backend interface {
	CurrentOwner() (string, bool)
	Files(owner string) store.Collection
}

// Prompter asks the user for a line of text. ok is false when cancelled.
type Prompter interface {
	Prompt(ctx context.Context, message, initial string) (value string, ok bool)
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

// Options configures a Manager.
type Options struct {
	Prompter      Prompter
	Confirmer     Confirmer
	AutosaveDelay time.Duration
	Clock         clockwork.Clock
	// OnSelect is told about every selection change so the editor can show
	// the file. A zero Record means the selection was cleared.
	OnSelect func(files.Record)
}

// State is a snapshot of the view for rendering. Tree nodes are shared and
// must not be modified.
type State struct {
	Tree     []*tree.Node
	Expanded map[string]bool
	Selected string
	Loading  bool
	Err      string
}

type savedContent struct {
	content string
	at      time.Time
}

// Manager owns the tree projection and coordinates every remote mutation.
type Manager struct {
	backend  Backend
	prompt   Prompter
	confirm  Confirmer
	clock    clockwork.Clock
	onSelect func(files.Record)
	autosave *autosave.Scheduler

	mu       sync.Mutex
	tree     []*tree.Node
	expanded map[string]bool
	selected string
	loading  bool
	errMsg   string
	saved    map[string]savedContent
}

// New creates a Manager for backend.
func New(backend Backend, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	m := &Manager{
		backend:  backend,
		prompt:   opts.Prompter,
		confirm:  opts.Confirmer,
		clock:    opts.Clock,
		onSelect: opts.OnSelect,
		expanded: make(map[string]bool),
		saved:    make(map[string]savedContent),
	}
	m.autosave = autosave.New(m.saveContent, autosave.Options{
		Delay:   opts.AutosaveDelay,
		Clock:   opts.Clock,
		OnSaved: m.contentSaved,
		OnError: func(string, error) { m.setErr(ErrSave) },
	})
	return m
}

// Snapshot returns the current view state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	expanded := make(map[string]bool, len(m.expanded))
	for id := range m.expanded {
		expanded[id] = true
	}
	return State{
		Tree:     m.tree,
		Expanded: expanded,
		Selected: m.selected,
		Loading:  m.loading,
		Err:      m.errMsg,
	}
}

// Load fetches every record, rebuilds the tree and expands the folders
// leading to the selected file. On failure the previous tree is kept.
//
// Loads are not serialized against each other: whichever response arrives
// last is the one shown.
func (m *Manager) Load(ctx context.Context) error {
	owner, ok := m.backend.CurrentOwner()
	if !ok {
		return nil
	}

	m.mu.Lock()
	m.loading = true
	m.mu.Unlock()

	start := time.Now()
	records, err := m.backend.Files(owner).FetchAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		m.errMsg = ErrLoad
		logging.Error("load files failed", zap.String("owner", owner), zap.Error(err))
		return fmt.Errorf("load files: %w", err)
	}

	m.tree = tree.Build(records)
	m.errMsg = ""
	m.revealLocked(m.selected)

	metrics.RecordTreeLoad(time.Since(start))
	metrics.SetTreeSize(tree.Count(m.tree))
	logging.Debug("files loaded", zap.Int("records", len(records)))
	return nil
}

// ToggleExpand opens or closes a folder.
func (m *Manager) ToggleExpand(folderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expanded[folderID] {
		delete(m.expanded, folderID)
	} else {
		m.expanded[folderID] = true
	}
}

// Select makes fileID the edited file. It returns false when the id is not
// a file in the current tree.
func (m *Manager) Select(fileID string) bool {
	m.mu.Lock()
	n := tree.Find(m.tree, fileID)
	if n == nil || n.IsFolder() {
		m.mu.Unlock()
		return false
	}
	rec := n.Record
	if s, ok := m.saved[rec.ID]; ok && s.at.After(rec.UpdatedAt) {
		rec.Content = s.content
		rec.UpdatedAt = s.at
	}
	m.mu.Unlock()

	m.selectRecord(rec)
	return true
}

// Edit reports editor content for fileID, the file the editor is showing.
// Content for anything but the current selection is dropped.
func (m *Manager) Edit(fileID, content string) {
	m.mu.Lock()
	selected := m.selected
	m.mu.Unlock()
	if fileID == "" || fileID != selected {
		logging.Debug("edit for unselected file dropped", zap.String("file_id", fileID))
		return
	}
	m.autosave.Observe(fileID, content)
}

// CreateFile asks for a name and creates a file under parentID (nil for
// the root level), then reloads and selects it.
func (m *Manager) CreateFile(ctx context.Context, parentID *string) error {
	owner, ok := m.backend.CurrentOwner()
	if !ok {
		return nil
	}
	name, ok := m.askName(ctx, "Enter file name (e.g., example.ts):", "")
	if !ok {
		return nil
	}

	now := m.clock.Now()
	rec := files.Record{
		Name:      name,
		Kind:      files.KindFile,
		ParentID:  parentID,
		Content:   files.Placeholder,
		Language:  files.LanguageFor(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := m.backend.Files(owner).Insert(ctx, rec)
	if err != nil {
		m.fail(ErrCreate, "create file", err)
		return fmt.Errorf("create file: %w", err)
	}
	rec.ID = id
	logging.Info("file created", zap.String("id", id), zap.String("name", name))

	// A failed reload is already reported through the error flag.
	_ = m.Load(ctx)
	m.selectRecord(rec)
	return nil
}

// CreateFolder asks for a name and creates a folder under parentID.
func (m *Manager) CreateFolder(ctx context.Context, parentID *string) error {
	owner, ok := m.backend.CurrentOwner()
	if !ok {
		return nil
	}
	name, ok := m.askName(ctx, "Enter folder name:", "")
	if !ok {
		return nil
	}

	now := m.clock.Now()
	id, err := m.backend.Files(owner).Insert(ctx, files.Record{
		Name:      name,
		Kind:      files.KindFolder,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		m.fail(ErrFolder, "create folder", err)
		return fmt.Errorf("create folder: %w", err)
	}
	logging.Info("folder created", zap.String("id", id), zap.String("name", name))

	if parentID != nil {
		m.mu.Lock()
		m.expanded[*parentID] = true
		m.mu.Unlock()
	}
	// A failed reload is already reported through the error flag.
	_ = m.Load(ctx)
	return nil
}

// Rename asks for a new name for id. The language tag is left as it was
// at creation.
func (m *Manager) Rename(ctx context.Context, id string) error {
	owner, ok := m.backend.CurrentOwner()
	if !ok {
		return nil
	}
	m.mu.Lock()
	n := tree.Find(m.tree, id)
	m.mu.Unlock()
	if n == nil {
		return nil
	}

	name, ok := m.askName(ctx, "Enter new name:", n.Name)
	if !ok || name == n.Name {
		return nil
	}
	if err := m.backend.Files(owner).UpdateByID(ctx, id, files.Patch{Name: &name}); err != nil {
		m.fail(ErrRename, "rename", err)
		return fmt.Errorf("rename %s: %w", id, err)
	}
	// A failed reload is already reported through the error flag.
	_ = m.Load(ctx)
	return nil
}

// DeleteItem asks for confirmation and then removes id and everything
// below it, children before parents. A failure part way leaves whatever
// was already deleted gone. The tree is reloaded either way.
func (m *Manager) DeleteItem(ctx context.Context, id string) error {
	owner, ok := m.backend.CurrentOwner()
	if !ok {
		return nil
	}
	if m.confirm == nil || !m.confirm.Confirm(ctx, "Are you sure you want to delete this item?") {
		return nil
	}

	deleted, err := deleteSubtree(ctx, m.backend.Files(owner), id)

	m.mu.Lock()
	cleared := false
	for _, d := range deleted {
		delete(m.expanded, d)
		delete(m.saved, d)
		if d == m.selected {
			cleared = true
		}
	}
	if cleared {
		m.selected = ""
	}
	m.mu.Unlock()

	if cleared {
		m.autosave.Reset("", "")
		if m.onSelect != nil {
			m.onSelect(files.Record{})
		}
	}
	logging.Info("deleted items", zap.String("root", id), zap.Int("count", len(deleted)))

	// Reload even after a partial delete. A reload failure sets its own flag
	// and the delete failure below takes precedence.
	_ = m.Load(ctx)
	if err != nil {
		m.fail(ErrDelete, "delete", err)
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// DismissError clears the error message.
func (m *Manager) DismissError() {
	m.setErr("")
}

// Dirty reports whether an edit is waiting to be autosaved.
func (m *Manager) Dirty() bool {
	return m.autosave.Pending()
}

// Flush writes any pending autosave immediately.
func (m *Manager) Flush(ctx context.Context) error {
	return m.autosave.Flush(ctx)
}

// Close cancels the pending autosave timer.
func (m *Manager) Close() {
	m.autosave.Stop()
}

func (m *Manager) selectRecord(rec files.Record) {
	m.mu.Lock()
	m.selected = rec.ID
	m.revealLocked(rec.ID)
	m.mu.Unlock()

	m.autosave.Reset(rec.ID, rec.Content)
	if m.onSelect != nil {
		m.onSelect(rec)
	}
}

// revealLocked expands every folder above id.
func (m *Manager) revealLocked(id string) {
	if id == "" {
		return
	}
	chain, ok := tree.PathTo(m.tree, id)
	if !ok {
		return
	}
	for _, n := range chain {
		m.expanded[n.ID] = true
	}
}

func (m *Manager) askName(ctx context.Context, message, initial string) (string, bool) {
	if m.prompt == nil {
		return "", false
	}
	name, ok := m.prompt.Prompt(ctx, message, initial)
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func (m *Manager) saveContent(ctx context.Context, fileID, content string, at time.Time) error {
	owner, ok := m.backend.CurrentOwner()
	if !ok {
		return errNoOwner
	}
	return m.backend.Files(owner).UpdateByID(ctx, fileID, files.Patch{
		Content:   &content,
		UpdatedAt: &at,
	})
}

func (m *Manager) contentSaved(fileID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[fileID] = savedContent{content: content, at: m.clock.Now()}
}

func (m *Manager) setErr(msg string) {
	m.mu.Lock()
	m.errMsg = msg
	m.mu.Unlock()
}

func (m *Manager) fail(msg, op string, err error) {
	logging.Error(op+" failed", zap.Error(err))
	m.setErr(msg)
}

// deleteSubtree removes root and its descendants. Descendants are found
// breadth-first and deleted in reverse, so every child goes before its
// parent. It returns the ids that were actually deleted.
func deleteSubtree(ctx context.Context, c store.Collection, root string) ([]string, error) {
	order := []string{root}
	seen := map[string]bool{root: true}
	for i := 0; i < len(order); i++ {
		children, err := c.FetchWhere(ctx, files.FieldParentID, order[i])
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", order[i], err)
		}
		for _, child := range children {
			if !seen[child.ID] {
				seen[child.ID] = true
				order = append(order, child.ID)
			}
		}
	}

	deleted := make([]string, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		if err := c.DeleteByID(ctx, order[i]); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", order[i], err)
		}
		deleted = append(deleted, order[i])
	}
	return deleted, nil
}
