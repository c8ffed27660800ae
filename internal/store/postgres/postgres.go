// Package postgres provides a PostgreSQL-backed store for file records and
// user accounts.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lemesvini/codeLog/internal/auth"
	"github.com/lemesvini/codeLog/internal/files"
	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/metrics"
	"github.com/lemesvini/codeLog/internal/store"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// columns maps queryable record fields to table columns.
var columns = map[string]string{
	files.FieldParentID: "parent_id",
	files.FieldKind:     "type",
	files.FieldName:     "name",
}

const selectFiles = `SELECT id, name, type, parent_id, content, language, created_at, updated_at FROM files`

// Store is a PostgreSQL store.
type Store struct {
	db *sql.DB
}

// New opens and pings the database.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Type returns "postgres".
func (s *Store) Type() string { return "postgres" }

// Migrate runs the embedded migrations in name order.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		logging.Info("running migration", zap.String("file", name))
		content, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

// UpdateConnectionMetrics publishes the pool's open connection count.
func (s *Store) UpdateConnectionMetrics() {
	metrics.SetDBConnectionsOpen(s.db.Stats().OpenConnections)
}

// Collection returns the collection for owner.
func (s *Store) Collection(owner string) store.Collection {
	return &collection{db: s.db, owner: owner}
}

type collection struct {
	db    *sql.DB
	owner string
}

func (c *collection) Insert(ctx context.Context, r files.Record) (string, error) {
	r.ID = files.NewID()
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO files (owner, id, name, type, parent_id, content, language, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.owner, r.ID, r.Name, string(r.Kind), nullString(r.ParentID),
		r.Content, r.Language, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert file: %w", err)
	}
	return r.ID, nil
}

func (c *collection) FetchAll(ctx context.Context) ([]files.Record, error) {
	return c.query(ctx, selectFiles+` WHERE owner = $1 ORDER BY created_at, id`, c.owner)
}

func (c *collection) FetchWhere(ctx context.Context, field, value string) ([]files.Record, error) {
	col, ok := columns[field]
	if !ok {
		return nil, store.ErrUnsupportedField
	}
	return c.query(ctx,
		selectFiles+` WHERE owner = $1 AND `+col+` = $2 ORDER BY created_at, id`,
		c.owner, value)
}

func (c *collection) UpdateByID(ctx context.Context, id string, p files.Patch) error {
	var sets []string
	args := []any{c.owner, id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Content != nil {
		add("content", *p.Content)
	}
	if p.UpdatedAt != nil {
		add("updated_at", *p.UpdatedAt)
	}
	if len(sets) == 0 {
		sets = append(sets, "id = id")
	}

	res, err := c.db.ExecContext(ctx,
		`UPDATE files SET `+strings.Join(sets, ", ")+` WHERE owner = $1 AND id = $2`, args...)
	if err != nil {
		return fmt.Errorf("update file %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file %s: %w", id, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *collection) DeleteByID(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE owner = $1 AND id = $2`, c.owner, id)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	return nil
}

func (c *collection) query(ctx context.Context, q string, args ...any) ([]files.Record, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var out []files.Record
	for rows.Next() {
		var r files.Record
		var kind string
		var parent sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &kind, &parent,
			&r.Content, &r.Language, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Kind = files.Kind(kind)
		if parent.Valid {
			r.ParentID = files.Ptr(parent.String)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// LookupUser finds an account by username.
func (s *Store) LookupUser(ctx context.Context, username string) (*auth.User, error) {
	u := &auth.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// CreateUser stores a new account and returns its owner id.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (string, error) {
	id := files.NewID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password) VALUES ($1, $2, $3)`,
		id, username, passwordHash)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return "", fmt.Errorf("username %q already exists", username)
	}
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// CountUsers returns the number of accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
