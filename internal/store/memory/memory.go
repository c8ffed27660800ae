// Package memory provides an in-process store backend for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lemesvini/codeLog/internal/files"
	"github.com/lemesvini/codeLog/internal/store"
)

// Store keeps every owner's records in memory.
type Store struct {
	mu     sync.RWMutex
	owners map[string]map[string]files.Record
	now    func() time.Time
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		owners: make(map[string]map[string]files.Record),
		now:    time.Now,
	}
}

// Collection returns the collection for owner.
func (s *Store) Collection(owner string) store.Collection {
	return &collection{s: s, owner: owner}
}

// Type returns "memory".
func (s *Store) Type() string { return "memory" }

// Close is a no-op.
func (s *Store) Close() error { return nil }

type collection struct {
	s     *Store
	owner string
}

func (c *collection) Insert(ctx context.Context, r files.Record) (string, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	recs := c.s.owners[c.owner]
	if recs == nil {
		recs = make(map[string]files.Record)
		c.s.owners[c.owner] = recs
	}

	r.ID = files.NewID()
	now := c.s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	recs[r.ID] = r
	return r.ID, nil
}

func (c *collection) FetchAll(ctx context.Context) ([]files.Record, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	out := make([]files.Record, 0, len(c.s.owners[c.owner]))
	for _, r := range c.s.owners[c.owner] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (c *collection) FetchWhere(ctx context.Context, field, value string) ([]files.Record, error) {
	all, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	if !store.ValidField(field) {
		return nil, store.ErrUnsupportedField
	}
	return store.Filter(all, field, value)
}

func (c *collection) UpdateByID(ctx context.Context, id string, p files.Patch) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	r, ok := c.s.owners[c.owner][id]
	if !ok {
		return store.ErrNotFound
	}
	p.Apply(&r)
	c.s.owners[c.owner][id] = r
	return nil
}

func (c *collection) DeleteByID(ctx context.Context, id string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	delete(c.s.owners[c.owner], id)
	return nil
}
