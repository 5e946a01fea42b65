// Package sqlrepo is a derive.Repository stored in SQLite.
//
// Items keep their attributes as JSON documents, so a view's Find query is a
// SQL boolean expression over the items table, typically using json_extract:
//
//	json_extract(fields, '$.Status') = 'Open'
//
// Timestamps are stored as {"$time": "<RFC 3339>"} objects, so a query
// reaches one with a path such as '$.Due."$time"'.
//
// Find queries come from the behavior's configuration and are trusted.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ezachrisen/derive"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS custom_columns (
    project TEXT NOT NULL,
    view    TEXT NOT NULL,
    name    TEXT NOT NULL,
    PRIMARY KEY (project, view, name)
);
CREATE TABLE IF NOT EXISTS items (
    id       TEXT PRIMARY KEY,
    project  TEXT NOT NULL,
    view     TEXT NOT NULL,
    position INTEGER NOT NULL,
    fields   TEXT NOT NULL DEFAULT '{}',
    custom   TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_items_view ON items(project, view, position);
CREATE TABLE IF NOT EXISTS writes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id     TEXT NOT NULL,
    column_name TEXT NOT NULL,
    old_value   TEXT,
    new_value   TEXT,
    written_at  TEXT NOT NULL
);
`

// View names as stored in the database.
const (
	backlogView  = "backlog"
	bugsView     = "bugs"
	scheduleView = "schedule"
)

var ErrNoProject = errors.New("no such project")

// Store is a SQLite backed repository.
type Store struct {
	db       *sql.DB
	logger   *zap.Logger
	onChange func(derive.Event)
}

// Write is a recorded column value change. Values are JSON.
type Write struct {
	ItemID string
	Column string
	Old    string
	New    string
	At     time.Time
}

type Option func(s *Store)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// OnChange registers f to receive a change event after every write.
func OnChange(f func(derive.Event)) Option {
	return func(s *Store) {
		s.onChange = f
	}
}

// Open opens, and if needed creates, the database at path. ":memory:" gives
// a private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	s, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates the tables in db if they do not exist.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlrepo schema: %w", err)
	}
	s := &Store{db: db, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AddProject adds a project. Adding an existing project does nothing.
func (s *Store) AddProject(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO projects (name) VALUES (?)`, name)
	if err != nil {
		return fmt.Errorf("adding project %q: %w", name, err)
	}
	return nil
}

// AddCustomColumn defines a custom column on a view of a project.
func (s *Store) AddCustomColumn(ctx context.Context, project string, kind derive.ViewKind, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO custom_columns (project, view, name) VALUES (?, ?, ?)`,
		project, viewName(kind), name)
	if err != nil {
		return fmt.Errorf("adding custom column %q: %w", name, err)
	}
	return nil
}

// PutItem adds or replaces an item in a view of a project. New items are
// placed after the view's existing items.
func (s *Store) PutItem(ctx context.Context, project string, kind derive.ViewKind, id string, fields, custom map[string]any) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE name = ?`, project).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %q", ErrNoProject, project)
	}

	f, err := encode(fields)
	if err != nil {
		return err
	}
	c, err := encode(custom)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (id, project, view, position, fields, custom)
		 VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM items WHERE project = ? AND view = ?), ?, ?)
		 ON CONFLICT(id) DO UPDATE SET project = excluded.project, view = excluded.view,
		   fields = excluded.fields, custom = excluded.custom`,
		id, project, viewName(kind), project, viewName(kind), f, c)
	if err != nil {
		return fmt.Errorf("putting item %s: %w", id, err)
	}
	return nil
}

// FindProjects returns the projects whose whole name matches the regular
// expression pattern, or does not match when inverted is set, ordered by name.
func (s *Store) FindProjects(ctx context.Context, pattern string, inverted bool) ([]derive.Project, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("project pattern %q: %w", pattern, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []derive.Project
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if re.MatchString(name) != inverted {
			found = append(found, &Project{store: s, name: name})
		}
	}
	return found, rows.Err()
}

// Writes returns the recorded writes, oldest first.
func (s *Store) Writes(ctx context.Context) ([]Write, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, column_name, COALESCE(old_value, ''), COALESCE(new_value, ''), written_at FROM writes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var writes []Write
	for rows.Next() {
		var w Write
		var at string
		if err := rows.Scan(&w.ItemID, &w.Column, &w.Old, &w.New, &at); err != nil {
			return nil, err
		}
		w.At, _ = time.Parse(time.RFC3339Nano, at)
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

type Project struct {
	store *Store
	name  string
}

func (p *Project) Name() string { return p.name }

func (p *Project) ProductBacklog() derive.View { return p.view(backlogView) }
func (p *Project) BugTracker() derive.View     { return p.view(bugsView) }
func (p *Project) Schedule() derive.View       { return p.view(scheduleView) }

func (p *Project) view(name string) *View {
	return &View{store: p.store, project: p.name, name: name}
}

type View struct {
	store   *Store
	project string
	name    string
}

func (v *View) Name() string { return v.project + "/" + v.name }

func (v *View) CustomColumn(name string) (derive.ColumnDescriptor, bool) {
	var n int
	err := v.store.db.QueryRow(
		`SELECT COUNT(*) FROM custom_columns WHERE project = ? AND view = ? AND name = ?`,
		v.project, v.name, name).Scan(&n)
	if err != nil {
		v.store.logger.Warn("Custom column lookup failed", zap.String("view", v.Name()), zap.Error(err))
		return nil, false
	}
	if n == 0 {
		return nil, false
	}
	return customColumn(name), true
}

// Find returns the items of the view for which the SQL expression query is
// true, in position order. An empty query returns every item.
func (v *View) Find(ctx context.Context, query string) ([]derive.Item, error) {
	q := `SELECT id, fields, custom FROM items WHERE project = ? AND view = ?`
	if strings.TrimSpace(query) != "" {
		q += ` AND (` + query + `)`
	}
	q += ` ORDER BY position`

	rows, err := v.store.db.QueryContext(ctx, q, v.project, v.name)
	if err != nil {
		return nil, fmt.Errorf("find %q in %s: %w", query, v.Name(), err)
	}
	defer rows.Close()

	var items []derive.Item
	for rows.Next() {
		var id, fields, custom string
		if err := rows.Scan(&id, &fields, &custom); err != nil {
			return nil, err
		}
		it := &Item{ctx: ctx, view: v, id: id}
		if it.fields, err = decode(fields); err != nil {
			return nil, fmt.Errorf("item %s fields: %w", id, err)
		}
		if it.custom, err = decode(custom); err != nil {
			return nil, fmt.Errorf("item %s custom values: %w", id, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type customColumn string

func (c customColumn) Name() string { return string(c) }

// Item is a snapshot of an item row, read by Find. Setters write through to
// the database and update the snapshot.
type Item struct {
	// ctx is the context Find was called with. Setters take no context, so
	// writes run under it and stop when the pass is cancelled.
	ctx    context.Context
	view   *View
	id     string
	fields map[string]any
	custom map[string]any
}

func (it *Item) ID() string        { return it.id }
func (it *Item) View() derive.View { return it.view }

func (it *Item) Fields() map[string]any {
	f := make(map[string]any, len(it.fields)+1)
	for k, v := range it.fields {
		f[k] = v
	}
	c := make(map[string]any, len(it.custom))
	for k, v := range it.custom {
		c[k] = v
	}
	f[derive.CustomFieldsKey] = c
	return f
}

func (it *Item) DefaultColumnValue(c derive.Column) (any, error) {
	return it.fields[c.String()], nil
}

func (it *Item) SetDefaultColumnValue(c derive.Column, v any) error {
	return it.set("fields", it.fields, c.String(), v, derive.ItemChanged)
}

func (it *Item) CustomColumnValue(name string) (any, error) {
	return it.custom[name], nil
}

func (it *Item) SetCustomColumnValue(col derive.ColumnDescriptor, v any) error {
	if _, ok := it.view.CustomColumn(col.Name()); !ok {
		return fmt.Errorf("view %s has no custom column %q", it.view.Name(), col.Name())
	}
	return it.set("custom", it.custom, col.Name(), v, derive.CustomColumnChanged)
}

// set stores v under key in the JSON document in column doc, and records the
// write. It runs under the context of the Find that read the item.
func (it *Item) set(doc string, m map[string]any, key string, v any, kind derive.EventKind) error {
	ctx := it.ctx
	s := it.view.store

	old, err := encodeValue(m[key])
	if err != nil {
		return err
	}
	nv, err := encodeValue(v)
	if err != nil {
		return fmt.Errorf("encoding %s value: %w", key, err)
	}

	prev := m[key]
	m[key] = v
	enc, err := encode(m)
	if err != nil {
		m[key] = prev
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		m[key] = prev
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE items SET `+doc+` = ? WHERE id = ?`, enc, it.id); err != nil {
		m[key] = prev
		return fmt.Errorf("updating item %s: %w", it.id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO writes (item_id, column_name, old_value, new_value, written_at) VALUES (?, ?, ?, ?, ?)`,
		it.id, key, string(old), string(nv), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		m[key] = prev
		return fmt.Errorf("recording write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		m[key] = prev
		return err
	}

	s.logger.Debug("column written",
		zap.String("item", it.id),
		zap.String("view", it.view.Name()),
		zap.String("column", key),
		zap.ByteString("new", nv))
	if s.onChange != nil {
		s.onChange(derive.Event{Kind: kind, ItemID: it.id})
	}
	return nil
}

func viewName(k derive.ViewKind) string {
	switch k {
	case derive.Backlog:
		return backlogView
	case derive.Bugs:
		return bugsView
	default:
		return scheduleView
	}
}
