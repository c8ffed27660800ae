package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lemesvini/codeLog/internal/files"
	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/store"
	"github.com/lemesvini/codeLog/internal/store/memory"
)

// recordingCollection logs every call and can be told to fail some.
type recordingCollection struct {
	next store.Collection

	mu   sync.Mutex
	ops  []string
	fail map[string]error
}

func (c *recordingCollection) log(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
	for prefix, err := range c.fail {
		if strings.HasPrefix(op, prefix) {
			return err
		}
	}
	return nil
}

func (c *recordingCollection) calls(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, op := range c.ops {
		if strings.HasPrefix(op, prefix) {
			out = append(out, op)
		}
	}
	return out
}

func (c *recordingCollection) setFail(prefix string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail == nil {
		c.fail = make(map[string]error)
	}
	if err == nil {
		delete(c.fail, prefix)
		return
	}
	c.fail[prefix] = err
}

func (c *recordingCollection) Insert(ctx context.Context, r files.Record) (string, error) {
	if err := c.log("insert:" + r.Name); err != nil {
		return "", err
	}
	return c.next.Insert(ctx, r)
}

func (c *recordingCollection) FetchAll(ctx context.Context) ([]files.Record, error) {
	if err := c.log("fetch_all"); err != nil {
		return nil, err
	}
	return c.next.FetchAll(ctx)
}

func (c *recordingCollection) FetchWhere(ctx context.Context, field, value string) ([]files.Record, error) {
	if err := c.log(fmt.Sprintf("where:%s=%s", field, value)); err != nil {
		return nil, err
	}
	return c.next.FetchWhere(ctx, field, value)
}

func (c *recordingCollection) UpdateByID(ctx context.Context, id string, p files.Patch) error {
	if err := c.log("update:" + id); err != nil {
		return err
	}
	return c.next.UpdateByID(ctx, id, p)
}

func (c *recordingCollection) DeleteByID(ctx context.Context, id string) error {
	if err := c.log("delete:" + id); err != nil {
		return err
	}
	return c.next.DeleteByID(ctx, id)
}

type fakeBackend struct {
	owner string
	coll  *recordingCollection
}

func (b *fakeBackend) CurrentOwner() (string, bool) { return b.owner, b.owner != "" }

func (b *fakeBackend) Files(owner string) store.Collection { return b.coll }

type scriptedPrompt struct {
	answers []string
	asked   []string
}

func (p *scriptedPrompt) Prompt(ctx context.Context, message, initial string) (string, bool) {
	p.asked = append(p.asked, message)
	if len(p.answers) == 0 {
		return "", false
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, true
}

type fixedConfirm bool

func (c fixedConfirm) Confirm(context.Context, string) bool { return bool(c) }

type fixture struct {
	m       *Manager
	backend *fakeBackend
	coll    *recordingCollection
	prompt  *scriptedPrompt
	clock   *clockwork.FakeClock

	mu       sync.Mutex
	selected []files.Record
}

func newFixture(t *testing.T, confirm bool) *fixture {
	t.Helper()
	logging.InitNop()
	f := &fixture{
		coll:   &recordingCollection{next: memory.New().Collection("alice")},
		prompt: &scriptedPrompt{},
		clock:  clockwork.NewFakeClock(),
	}
	f.backend = &fakeBackend{owner: "alice", coll: f.coll}
	f.m = New(f.backend, Options{
		Prompter:      f.prompt,
		Confirmer:     fixedConfirm(confirm),
		AutosaveDelay: 5 * time.Second,
		Clock:         f.clock,
		OnSelect: func(r files.Record) {
			f.mu.Lock()
			f.selected = append(f.selected, r)
			f.mu.Unlock()
		},
	})
	t.Cleanup(f.m.Close)
	return f
}

func (f *fixture) lastSelected() (files.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.selected) == 0 {
		return files.Record{}, false
	}
	return f.selected[len(f.selected)-1], true
}

// seed inserts records directly, bypassing the log.
func (f *fixture) seed(t *testing.T, name string, kind files.Kind, parent *string) string {
	t.Helper()
	id, err := f.coll.next.Insert(context.Background(), files.Record{
		Name:      name,
		Kind:      kind,
		ParentID:  parent,
		Language:  files.LanguageFor(name),
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestLoadRevealsSelectedFile(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := f.seed(t, "folderA", files.KindFolder, nil)
	b := f.seed(t, "folderB", files.KindFolder, &a)
	file := f.seed(t, "file.ts", files.KindFile, &b)
	other := f.seed(t, "other", files.KindFolder, nil)

	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.m.Snapshot().Expanded) != 0 {
		t.Fatal("nothing should be expanded before a selection")
	}

	if !f.m.Select(file) {
		t.Fatal("Select returned false")
	}
	// Collapse and reload: the ancestors come back.
	f.m.ToggleExpand(a)
	f.m.ToggleExpand(b)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}

	st := f.m.Snapshot()
	if !st.Expanded[a] || !st.Expanded[b] {
		t.Errorf("expanded = %v, want %s and %s", st.Expanded, a, b)
	}
	if st.Expanded[other] {
		t.Error("unrelated folder was expanded")
	}
	if st.Selected != file {
		t.Errorf("selected = %s", st.Selected)
	}
}

func TestLoadFailureKeepsPreviousTree(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "main.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}

	f.coll.setFail("fetch_all", errors.New("offline"))
	if err := f.m.Load(ctx); err == nil {
		t.Fatal("expected load error")
	}
	st := f.m.Snapshot()
	if st.Err != ErrLoad {
		t.Errorf("Err = %q", st.Err)
	}
	if st.Loading {
		t.Error("loading flag left set")
	}
	if len(st.Tree) != 1 || st.Tree[0].Name != "main.ts" {
		t.Errorf("tree = %+v, want previous tree", st.Tree)
	}

	f.coll.setFail("fetch_all", nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if st := f.m.Snapshot(); st.Err != "" {
		t.Errorf("successful load left Err = %q", st.Err)
	}
}

func TestToggleExpand(t *testing.T) {
	f := newFixture(t, true)
	f.m.ToggleExpand("x")
	if !f.m.Snapshot().Expanded["x"] {
		t.Fatal("x not expanded")
	}
	f.m.ToggleExpand("x")
	if f.m.Snapshot().Expanded["x"] {
		t.Fatal("x still expanded")
	}
}

func TestSelectRejectsFolders(t *testing.T) {
	f := newFixture(t, true)
	dir := f.seed(t, "src", files.KindFolder, nil)
	if err := f.m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.m.Select(dir) {
		t.Error("folder was selectable")
	}
	if f.m.Select("missing") {
		t.Error("missing id was selectable")
	}
}

func TestCreateFileSelectsNewFile(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	dir := f.seed(t, "src", files.KindFolder, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}

	f.prompt.answers = []string{"  app.tsx  "}
	if err := f.m.CreateFile(ctx, &dir); err != nil {
		t.Fatal(err)
	}

	rec, ok := f.lastSelected()
	if !ok {
		t.Fatal("new file not selected")
	}
	if rec.Name != "app.tsx" || rec.Language != "typescript" || rec.Content != files.Placeholder {
		t.Errorf("created %+v", rec)
	}
	if rec.Parent() != dir {
		t.Errorf("parent = %q", rec.Parent())
	}
	if st := f.m.Snapshot(); !st.Expanded[dir] {
		t.Error("parent folder not revealed")
	}
	if id, base := f.m.autosave.Baseline(); id != rec.ID || base != files.Placeholder {
		t.Errorf("autosave baseline = %s/%q", id, base)
	}
	f.mu.Lock()
	n := len(f.selected)
	f.mu.Unlock()
	if n != 1 {
		t.Errorf("OnSelect called %d times", n)
	}
}

func TestCreateFileGuards(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// Cancelled prompt.
	if err := f.m.CreateFile(ctx, nil); err != nil {
		t.Fatal(err)
	}
	// Blank name.
	f.prompt.answers = []string{"   "}
	if err := f.m.CreateFile(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.coll.calls("insert"); len(got) != 0 {
		t.Errorf("inserts = %v", got)
	}

	// No owner: nothing is asked or written.
	f.backend.owner = ""
	f.prompt.asked = nil
	f.prompt.answers = []string{"x.ts"}
	if err := f.m.CreateFile(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if len(f.prompt.asked) != 0 || len(f.coll.calls("")) != 0 {
		t.Errorf("asked %v, ops %v", f.prompt.asked, f.coll.calls(""))
	}
	if st := f.m.Snapshot(); st.Err != "" {
		t.Errorf("Err = %q", st.Err)
	}
}

func TestCreateFileFailure(t *testing.T) {
	f := newFixture(t, true)
	f.coll.setFail("insert", errors.New("denied"))
	f.prompt.answers = []string{"a.ts"}
	if err := f.m.CreateFile(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if st := f.m.Snapshot(); st.Err != ErrCreate {
		t.Errorf("Err = %q", st.Err)
	}
	f.m.DismissError()
	if st := f.m.Snapshot(); st.Err != "" {
		t.Errorf("Err after dismiss = %q", st.Err)
	}
}

func TestCreateFolder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.prompt.answers = []string{"lib"}
	if err := f.m.CreateFolder(ctx, nil); err != nil {
		t.Fatal(err)
	}
	st := f.m.Snapshot()
	if len(st.Tree) != 1 || !st.Tree[0].IsFolder() || st.Tree[0].Name != "lib" {
		t.Fatalf("tree = %+v", st.Tree)
	}
	if st.Selected != "" {
		t.Error("folder creation changed the selection")
	}
}

func TestRenameKeepsLanguage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	id := f.seed(t, "main.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}

	f.prompt.answers = []string{"main.py"}
	if err := f.m.Rename(ctx, id); err != nil {
		t.Fatal(err)
	}
	n := f.m.Snapshot().Tree[0]
	if n.Name != "main.py" || n.Language != "typescript" {
		t.Errorf("after rename: %s (%s)", n.Name, n.Language)
	}

	// Same name is a no-op.
	f.prompt.answers = []string{"main.py"}
	if err := f.m.Rename(ctx, id); err != nil {
		t.Fatal(err)
	}
	if got := f.coll.calls("update"); len(got) != 1 {
		t.Errorf("updates = %v", got)
	}
}

func TestDeleteRemovesChildrenFirst(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	root := f.seed(t, "root", files.KindFolder, nil)
	sub := f.seed(t, "sub", files.KindFolder, &root)
	leaf := f.seed(t, "leaf.ts", files.KindFile, &sub)
	top := f.seed(t, "top.ts", files.KindFile, &root)
	keep := f.seed(t, "keep.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.m.Select(leaf) {
		t.Fatal("select leaf")
	}

	if err := f.m.DeleteItem(ctx, root); err != nil {
		t.Fatal(err)
	}

	deletes := f.coll.calls("delete:")
	pos := make(map[string]int)
	for i, op := range deletes {
		pos[strings.TrimPrefix(op, "delete:")] = i
	}
	if len(deletes) != 4 {
		t.Fatalf("deletes = %v", deletes)
	}
	if pos[leaf] > pos[sub] || pos[sub] > pos[root] || pos[top] > pos[root] {
		t.Errorf("parent deleted before child: %v", deletes)
	}

	st := f.m.Snapshot()
	if st.Selected != "" {
		t.Error("selection in deleted subtree not cleared")
	}
	if len(st.Tree) != 1 || st.Tree[0].ID != keep {
		t.Errorf("tree = %+v", st.Tree)
	}
	if id, _ := f.m.autosave.Baseline(); id != "" {
		t.Errorf("autosave still tracks %s", id)
	}
	f.mu.Lock()
	last := f.selected[len(f.selected)-1]
	f.mu.Unlock()
	if last.ID != "" {
		t.Error("OnSelect not told about cleared selection")
	}
}

func TestDeleteKeepsUnrelatedSelection(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := f.seed(t, "a.ts", files.KindFile, nil)
	b := f.seed(t, "b.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	f.m.Select(b)
	if err := f.m.DeleteItem(ctx, a); err != nil {
		t.Fatal(err)
	}
	if st := f.m.Snapshot(); st.Selected != b {
		t.Errorf("selected = %q, want %s", st.Selected, b)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	id := f.seed(t, "a.ts", files.KindFile, nil)
	if err := f.m.DeleteItem(ctx, id); err != nil {
		t.Fatal(err)
	}
	if ops := f.coll.calls(""); len(ops) != 0 {
		t.Errorf("ops = %v", ops)
	}
}

func TestDeleteFailureStillReloads(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	dir := f.seed(t, "dir", files.KindFolder, nil)
	f.seed(t, "x.ts", files.KindFile, &dir)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}

	f.coll.setFail("delete:"+dir, errors.New("boom"))
	if err := f.m.DeleteItem(ctx, dir); err == nil {
		t.Fatal("expected error")
	}

	st := f.m.Snapshot()
	if st.Err != ErrDelete {
		t.Errorf("Err = %q", st.Err)
	}
	// The child is gone; the folder remains.
	if len(st.Tree) != 1 || st.Tree[0].ID != dir || len(st.Tree[0].Children) != 0 {
		t.Errorf("tree = %+v", st.Tree)
	}
	if got := f.coll.calls("fetch_all"); len(got) != 2 {
		t.Errorf("fetch_all calls = %d, want reload after failure", len(got))
	}
}

func TestEditAutosavesSelectedFile(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	id := f.seed(t, "a.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	f.m.Select(id)

	f.m.Edit(id, "const x = 1")
	f.clock.Advance(5 * time.Second)

	deadline := time.Now().Add(time.Second)
	for len(f.coll.calls("update:")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("autosave never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Wait for the save callback, then re-select: the saved content wins
	// over the stale tree.
	for {
		f.m.mu.Lock()
		_, ok := f.m.saved[id]
		f.m.mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("save callback not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.m.Select(id)
	if rec, _ := f.lastSelected(); rec.Content != "const x = 1" {
		t.Errorf("selected content = %q", rec.Content)
	}

	all, err := f.coll.next.FetchAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if all[0].Content != "const x = 1" || !all[0].UpdatedAt.Equal(f.clock.Now()) {
		t.Errorf("stored %+v", all[0])
	}
}

func TestEditWithoutSelectionDoesNothing(t *testing.T) {
	f := newFixture(t, true)
	f.m.Edit("", "orphan text")
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if ops := f.coll.calls("update"); len(ops) != 0 {
		t.Errorf("ops = %v", ops)
	}
}

func TestFlushWritesPendingEdit(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	id := f.seed(t, "a.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	f.m.Select(id)
	f.m.Edit(id, "quit soon")
	if err := f.m.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.coll.calls("update:" + id); len(got) != 1 {
		t.Errorf("updates = %v", got)
	}
}

func TestSaveFailureSetsError(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	id := f.seed(t, "a.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	f.m.Select(id)
	f.coll.setFail("update", errors.New("offline"))
	f.m.Edit(id, "lost?")
	if err := f.m.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	if st := f.m.Snapshot(); st.Err != ErrSave {
		t.Errorf("Err = %q", st.Err)
	}
}

func TestDirtyUntilSavedAndCloseDropsEdit(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	id := f.seed(t, "a.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	f.m.Select(id)

	f.m.Edit(id, "draft")
	if !f.m.Dirty() {
		t.Fatal("edit should be pending")
	}
	f.m.Close()
	if f.m.Dirty() {
		t.Error("Close should drop the pending edit")
	}
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if ops := f.coll.calls("update"); len(ops) != 0 {
		t.Errorf("ops after Close = %v", ops)
	}
}

func TestEditForPreviousSelectionIsDropped(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := f.seed(t, "a.ts", files.KindFile, nil)
	b := f.seed(t, "b.ts", files.KindFile, nil)
	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	f.m.Select(a)
	f.m.Select(b)

	// The editor still shows a.ts when this keystroke arrives.
	f.m.Edit(a, "content typed into a.ts")
	if f.m.Dirty() {
		t.Fatal("edit for a.ts armed a save after b.ts was selected")
	}
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if ops := f.coll.calls("update"); len(ops) != 0 {
		t.Errorf("ops = %v", ops)
	}
	all, err := f.coll.next.FetchAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range all {
		if r.Content == "content typed into a.ts" {
			t.Errorf("%s stored content meant for a.ts", r.Name)
		}
	}
}
