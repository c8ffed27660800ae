package store

import (
	"context"
	"time"

	"github.com/lemesvini/codeLog/internal/files"
	"github.com/lemesvini/codeLog/internal/metrics"
)

// Instrument wraps s so every collection call is recorded in the store
// metrics under s.Type().
func Instrument(s Store) Store {
	return &instrumented{Store: s}
}

type instrumented struct {
	Store
}

func (i *instrumented) Collection(owner string) Collection {
	return &instrumentedCollection{next: i.Store.Collection(owner), backend: i.Type()}
}

type instrumentedCollection struct {
	next    Collection
	backend string
}

func (c *instrumentedCollection) record(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(c.backend, op, time.Since(start), err == nil)
}

func (c *instrumentedCollection) Insert(ctx context.Context, r files.Record) (id string, err error) {
	defer func(start time.Time) { c.record("insert", start, err) }(time.Now())
	return c.next.Insert(ctx, r)
}

func (c *instrumentedCollection) FetchAll(ctx context.Context) (recs []files.Record, err error) {
	defer func(start time.Time) { c.record("fetch_all", start, err) }(time.Now())
	return c.next.FetchAll(ctx)
}

func (c *instrumentedCollection) FetchWhere(ctx context.Context, field, value string) (recs []files.Record, err error) {
	defer func(start time.Time) { c.record("fetch_where", start, err) }(time.Now())
	return c.next.FetchWhere(ctx, field, value)
}

func (c *instrumentedCollection) UpdateByID(ctx context.Context, id string, p files.Patch) (err error) {
	defer func(start time.Time) { c.record("update", start, err) }(time.Now())
	return c.next.UpdateByID(ctx, id, p)
}

func (c *instrumentedCollection) DeleteByID(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { c.record("delete", start, err) }(time.Now())
	return c.next.DeleteByID(ctx, id)
}
