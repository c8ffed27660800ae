package files

import (
	"testing"
	"time"
)

func TestLanguageFor(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"notes.md", "markdown"},
		{"unknown.xyz", "plaintext"},
		{"Makefile", "plaintext"},
		{"main.TS", "typescript"},
		{"app.component.tsx", "typescript"},
		{"index.js", "javascript"},
		{"view.jsx", "javascript"},
		{"data.json", "json"},
		{"style.css", "css"},
		{"page.html", "html"},
		{"script.py", "python"},
		{"trailing.", "plaintext"},
		{"", "plaintext"},
	}
	for _, tt := range tests {
		if got := LanguageFor(tt.name); got != tt.want {
			t.Errorf("LanguageFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPatchApply(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := Record{ID: "a", Name: "old.ts", Content: "x", Language: "typescript"}

	Patch{Content: Ptr("y"), UpdatedAt: &now}.Apply(&r)
	if r.Content != "y" || !r.UpdatedAt.Equal(now) {
		t.Errorf("content patch not applied: %+v", r)
	}
	if r.Name != "old.ts" {
		t.Errorf("name changed unexpectedly: %q", r.Name)
	}

	Patch{Name: Ptr("new.md")}.Apply(&r)
	if r.Name != "new.md" {
		t.Errorf("name = %q, want new.md", r.Name)
	}
	if r.Language != "typescript" {
		t.Errorf("language must not follow rename, got %q", r.Language)
	}

	if !(Patch{}).Empty() {
		t.Error("zero patch should be empty")
	}
}

func TestMatches(t *testing.T) {
	r := &Record{Name: "a.ts", Kind: KindFile, ParentID: Ptr("p1")}
	root := &Record{Name: "dir", Kind: KindFolder}

	tests := []struct {
		rec          *Record
		field, value string
		match, ok    bool
	}{
		{r, FieldParentID, "p1", true, true},
		{r, FieldParentID, "p2", false, true},
		{root, FieldParentID, "p1", false, true},
		{r, FieldKind, "file", true, true},
		{root, FieldKind, "file", false, true},
		{r, FieldName, "a.ts", true, true},
		{r, "content", "x", false, false},
	}
	for _, tt := range tests {
		match, ok := Matches(tt.rec, tt.field, tt.value)
		if match != tt.match || ok != tt.ok {
			t.Errorf("Matches(%s, %s=%s) = %v,%v want %v,%v",
				tt.rec.Name, tt.field, tt.value, match, ok, tt.match, tt.ok)
		}
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 32 {
			t.Fatalf("id length = %d, want 32", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
