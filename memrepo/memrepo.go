// Package memrepo is an in-memory derive.Repository. It backs the derive
// command line tool and tests: projects, views and items are loaded from YAML
// fixtures or built in code, every column write is recorded, and writes can be
// fed back to the host as change events.
package memrepo

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/ezachrisen/derive"
	"github.com/ezachrisen/derive/cel"
	"go.uber.org/zap"
)

// Repository holds projects in memory. Its methods are safe for concurrent
// use, but items are meant to be mutated by one Behavior at a time.
type Repository struct {
	mu       sync.RWMutex
	projects []*Project
	writes   []Write

	compiler *cel.Compiler
	queries  map[string]derive.Program

	onChange func(derive.Event)
	logger   *zap.Logger
	clock    func() time.Time
}

// Write records one column value change.
type Write struct {
	ItemID string
	View   string
	Column string
	Old    any
	New    any
	At     time.Time
}

// Option configures a Repository.
type Option func(r *Repository)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// OnChange registers f to receive a change event for every write. f is called
// while the write is in progress, so a host that handles events with a
// Behavior should queue the event and handle it after the current call
// returns.
func OnChange(f func(derive.Event)) Option {
	return func(r *Repository) {
		r.onChange = f
	}
}

// WithCompiler sets the compiler used for Find queries. Defaults to a CEL
// compiler with the strings module.
func WithCompiler(c *cel.Compiler) Option {
	return func(r *Repository) {
		r.compiler = c
	}
}

// New creates an empty repository.
func New(opts ...Option) (*Repository, error) {
	r := &Repository{
		queries: map[string]derive.Program{},
		logger:  zap.NewNop(),
		clock:   time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.compiler == nil {
		c, err := cel.NewCompiler()
		if err != nil {
			return nil, err
		}
		r.compiler = c
	}
	return r, nil
}

// AddProject adds a project with three empty views, or returns the existing
// project with the name.
func (r *Repository) AddProject(name string) *Project {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.projects {
		if p.name == name {
			return p
		}
	}

	p := &Project{name: name}
	p.backlog = newView(r, p, "Product Backlog")
	p.bugs = newView(r, p, "Bug Tracker")
	p.schedule = newView(r, p, "Schedule")
	r.projects = append(r.projects, p)
	return p
}

// Projects returns all projects in the order they were added.
func (r *Repository) Projects() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Project(nil), r.projects...)
}

// FindProjects returns the projects whose whole name matches the regular
// expression pattern, or, when inverted is set, those whose name does not.
func (r *Repository) FindProjects(_ context.Context, pattern string, inverted bool) ([]derive.Project, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("project pattern %q: %w", pattern, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []derive.Project
	for _, p := range r.projects {
		if re.MatchString(p.name) != inverted {
			found = append(found, p)
		}
	}
	return found, nil
}

// Item returns the item with the id from any project and view.
func (r *Repository) Item(id string) (*Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.projects {
		for _, v := range p.views() {
			if it, ok := v.items[id]; ok {
				return it, true
			}
		}
	}
	return nil, false
}

// Writes returns the writes recorded since the repository was created or
// last reset.
func (r *Repository) Writes() []Write {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Write(nil), r.writes...)
}

// ResetWrites discards the recorded writes.
func (r *Repository) ResetWrites() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}

// query returns the compiled Find query, compiling it on first use.
func (r *Repository) query(q string) (derive.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.queries[q]; ok {
		return p, nil
	}
	p, err := r.compiler.Compile(q, []string{"strings"})
	if err != nil {
		return nil, fmt.Errorf("find query %q: %w", q, err)
	}
	r.queries[q] = p
	return p, nil
}

func (r *Repository) record(w Write, kind derive.EventKind) {
	r.mu.Lock()
	w.At = r.clock()
	r.writes = append(r.writes, w)
	onChange := r.onChange
	r.mu.Unlock()

	r.logger.Debug("column written",
		zap.String("item", w.ItemID),
		zap.String("view", w.View),
		zap.String("column", w.Column),
		zap.Any("old", w.Old),
		zap.Any("new", w.New))

	if onChange != nil {
		onChange(derive.Event{Kind: kind, ItemID: w.ItemID})
	}
}

// Project is a project with a product backlog, a bug tracker and a schedule.
type Project struct {
	name     string
	backlog  *View
	bugs     *View
	schedule *View
}

func (p *Project) Name() string { return p.name }

func (p *Project) ProductBacklog() derive.View { return p.backlog }
func (p *Project) BugTracker() derive.View     { return p.bugs }
func (p *Project) Schedule() derive.View       { return p.schedule }

// ViewOf returns the concrete view the kind selects.
func (p *Project) ViewOf(k derive.ViewKind) *View {
	switch k {
	case derive.Backlog:
		return p.backlog
	case derive.Bugs:
		return p.bugs
	default:
		return p.schedule
	}
}

func (p *Project) views() []*View {
	return []*View{p.backlog, p.bugs, p.schedule}
}

// View holds items and the custom columns they may carry.
type View struct {
	repo    *Repository
	project *Project
	name    string
	columns map[string]*CustomColumn
	items   map[string]*Item
	order   []string
}

func newView(r *Repository, p *Project, name string) *View {
	return &View{
		repo:    r,
		project: p,
		name:    name,
		columns: map[string]*CustomColumn{},
		items:   map[string]*Item{},
	}
}

// Name returns "<project>/<view>".
func (v *View) Name() string { return v.project.name + "/" + v.name }

// AddCustomColumn defines a custom column on the view.
func (v *View) AddCustomColumn(name string) *CustomColumn {
	v.repo.mu.Lock()
	defer v.repo.mu.Unlock()

	if c, ok := v.columns[name]; ok {
		return c
	}
	c := &CustomColumn{name: name}
	v.columns[name] = c
	return c
}

// CustomColumn returns the custom column with the name, if the view defines it.
func (v *View) CustomColumn(name string) (derive.ColumnDescriptor, bool) {
	v.repo.mu.RLock()
	defer v.repo.mu.RUnlock()

	c, ok := v.columns[name]
	if !ok {
		return nil, false
	}
	return c, true
}

// CustomColumns returns the names of the view's custom columns, sorted.
func (v *View) CustomColumns() []string {
	v.repo.mu.RLock()
	defer v.repo.mu.RUnlock()

	names := make([]string, 0, len(v.columns))
	for n := range v.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddItem adds an item. fields holds built-in column values under the
// column's name, plus any other attribute; custom holds custom column values.
// An existing item with the id is replaced.
func (v *View) AddItem(id string, fields, custom map[string]any) *Item {
	it := &Item{
		id:     id,
		view:   v,
		fields: copyMap(fields),
		custom: copyMap(custom),
	}

	v.repo.mu.Lock()
	defer v.repo.mu.Unlock()

	if _, ok := v.items[id]; !ok {
		v.order = append(v.order, id)
	}
	v.items[id] = it
	return it
}

// RemoveItem deletes the item with the id, reporting whether it existed.
func (v *View) RemoveItem(id string) bool {
	v.repo.mu.Lock()
	defer v.repo.mu.Unlock()

	if _, ok := v.items[id]; !ok {
		return false
	}
	delete(v.items, id)
	for i, o := range v.order {
		if o == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	return true
}

// Items returns the view's items in insertion order.
func (v *View) Items() []*Item {
	v.repo.mu.RLock()
	defer v.repo.mu.RUnlock()

	items := make([]*Item, 0, len(v.order))
	for _, id := range v.order {
		items = append(items, v.items[id])
	}
	return items
}

// Find returns the items for which the CEL predicate query is true. An empty
// query returns every item. An item for which the query yields no value is
// not matched.
func (v *View) Find(ctx context.Context, query string) ([]derive.Item, error) {
	items := v.Items()

	if query == "" {
		found := make([]derive.Item, len(items))
		for i, it := range items {
			found[i] = it
		}
		return found, nil
	}

	prg, err := v.repo.query(query)
	if err != nil {
		return nil, err
	}

	var found []derive.Item
	for _, it := range items {
		res, err := prg.Eval(ctx, it)
		if err != nil {
			return nil, fmt.Errorf("find query %q on item %s: %w", query, it.id, err)
		}
		val, ok := res.Get()
		if !ok {
			// noValue() or an empty optional: not matched.
			continue
		}
		match, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("find query %q on item %s: want bool, got %T", query, it.id, val)
		}
		if match {
			found = append(found, it)
		}
	}
	return found, nil
}

// CustomColumn is a custom column descriptor.
type CustomColumn struct {
	name string
}

func (c *CustomColumn) Name() string { return c.name }

// Item is a work item. Built-in column values are stored under the column's
// name alongside the item's other attributes.
type Item struct {
	id     string
	view   *View
	fields map[string]any
	custom map[string]any
}

func (it *Item) ID() string { return it.id }

func (it *Item) View() derive.View { return it.view }

// Fields returns a snapshot of the item's attributes with the custom column
// values under derive.CustomFieldsKey.
func (it *Item) Fields() map[string]any {
	it.view.repo.mu.RLock()
	defer it.view.repo.mu.RUnlock()

	f := copyMap(it.fields)
	f[derive.CustomFieldsKey] = copyMap(it.custom)
	return f
}

func (it *Item) DefaultColumnValue(c derive.Column) (any, error) {
	if c == derive.CustomColumn {
		return nil, fmt.Errorf("%w: use CustomColumnValue", derive.ErrUnknownColumn)
	}
	it.view.repo.mu.RLock()
	defer it.view.repo.mu.RUnlock()
	return it.fields[c.String()], nil
}

func (it *Item) SetDefaultColumnValue(c derive.Column, v any) error {
	if c == derive.CustomColumn {
		return fmt.Errorf("%w: use SetCustomColumnValue", derive.ErrUnknownColumn)
	}

	it.view.repo.mu.Lock()
	old := it.fields[c.String()]
	it.fields[c.String()] = v
	it.view.repo.mu.Unlock()

	it.view.repo.record(Write{
		ItemID: it.id,
		View:   it.view.Name(),
		Column: c.String(),
		Old:    old,
		New:    v,
	}, derive.ItemChanged)
	return nil
}

func (it *Item) CustomColumnValue(name string) (any, error) {
	it.view.repo.mu.RLock()
	defer it.view.repo.mu.RUnlock()

	if _, ok := it.view.columns[name]; !ok {
		return nil, fmt.Errorf("view %s has no custom column %q", it.view.Name(), name)
	}
	return it.custom[name], nil
}

func (it *Item) SetCustomColumnValue(col derive.ColumnDescriptor, v any) error {
	it.view.repo.mu.Lock()
	if _, ok := it.view.columns[col.Name()]; !ok {
		it.view.repo.mu.Unlock()
		return fmt.Errorf("view %s has no custom column %q", it.view.Name(), col.Name())
	}
	old := it.custom[col.Name()]
	it.custom[col.Name()] = v
	it.view.repo.mu.Unlock()

	it.view.repo.record(Write{
		ItemID: it.id,
		View:   it.view.Name(),
		Column: col.Name(),
		Old:    old,
		New:    v,
	}, derive.CustomColumnChanged)
	return nil
}

func copyMap(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
