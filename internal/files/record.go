// Package files contains the file/folder record shared by the store, the
// tree builder and the workspace.
package files

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Kind distinguishes files from folders.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Queryable field names accepted by FetchWhere.
const (
	FieldParentID = "parentId"
	FieldKind     = "type"
	FieldName     = "name"
)

// Placeholder is the content given to newly created files.
const Placeholder = "// Start coding here"

// Record is a single file or folder in an owner's flat collection.
// ParentID is nil for root-level records.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"type"`
	ParentID  *string   `json:"parentId"`
	Content   string    `json:"content,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsFolder reports whether r is a folder.
func (r *Record) IsFolder() bool { return r.Kind == KindFolder }

// Parent returns the parent id, or "" for root-level records.
func (r *Record) Parent() string {
	if r.ParentID == nil {
		return ""
	}
	return *r.ParentID
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name      *string    `json:"name,omitempty"`
	Content   *string    `json:"content,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Apply writes the non-nil fields of p into r.
func (p Patch) Apply(r *Record) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.UpdatedAt != nil {
		r.UpdatedAt = *p.UpdatedAt
	}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Content == nil && p.UpdatedAt == nil
}

// Matches reports whether r's field equals value. ok is false for fields
// that cannot be queried.
func Matches(r *Record, field, value string) (match, ok bool) {
	switch field {
	case FieldParentID:
		return r.ParentID != nil && *r.ParentID == value, true
	case FieldKind:
		return string(r.Kind) == value, true
	case FieldName:
		return r.Name == value, true
	default:
		return false, false
	}
}

// NewID returns a random 128-bit identifier in hex.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Ptr returns a pointer to v, for building ParentID and Patch values.
func Ptr[T any](v T) *T { return &v }
