package derive_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/ezachrisen/derive"
)

// -------------------------------------------------- MOCK COMPILER
// mockCompiler compiles expressions it has been taught. Each expression maps
// to a Go function standing in for the compiled program. It counts calls to
// Compile so tests can check that programs are cached.
type mockCompiler struct {
	programs map[string]func(item derive.Item) (derive.Result, error)
	compiles int
	caps     [][]string
}

func newMockCompiler() *mockCompiler {
	return &mockCompiler{programs: map[string]func(derive.Item) (derive.Result, error){}}
}

// teach registers the function evaluated for expr.
func (m *mockCompiler) teach(expr string, f func(item derive.Item) (derive.Result, error)) *mockCompiler {
	m.programs[expr] = f
	return m
}

func (m *mockCompiler) Compile(expr string, capabilities []string) (derive.Program, error) {
	m.compiles++
	m.caps = append(m.caps, capabilities)
	f, ok := m.programs[expr]
	if !ok {
		return nil, fmt.Errorf("undeclared reference to %q", expr)
	}
	return mockProgram(f), nil
}

type mockProgram func(item derive.Item) (derive.Result, error)

func (p mockProgram) Eval(_ context.Context, item derive.Item) (derive.Result, error) {
	return p(item)
}

// constant returns a program that always evaluates to v.
func constant(v any) func(derive.Item) (derive.Result, error) {
	return func(derive.Item) (derive.Result, error) { return derive.Value(v), nil }
}

func noValue(derive.Item) (derive.Result, error) { return derive.NoValue(), nil }

// -------------------------------------------------- FAKE REPOSITORY

type fakeRepo struct {
	projects []*fakeProject
	err      error
}

func (r *fakeRepo) FindProjects(_ context.Context, pattern string, inverted bool) ([]derive.Project, error) {
	if r.err != nil {
		return nil, r.err
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	var ps []derive.Project
	for _, p := range r.projects {
		if re.MatchString(p.name) != inverted {
			ps = append(ps, p)
		}
	}
	return ps, nil
}

// project adds a project whose three views are empty.
func (r *fakeRepo) project(name string) *fakeProject {
	p := &fakeProject{name: name}
	p.backlog = &fakeView{name: name + "/backlog", custom: map[string]bool{}}
	p.bugs = &fakeView{name: name + "/bugs", custom: map[string]bool{}}
	p.schedule = &fakeView{name: name + "/schedule", custom: map[string]bool{}}
	r.projects = append(r.projects, p)
	return p
}

type fakeProject struct {
	name                    string
	backlog, bugs, schedule *fakeView
}

func (p *fakeProject) Name() string                { return p.name }
func (p *fakeProject) ProductBacklog() derive.View { return p.backlog }
func (p *fakeProject) BugTracker() derive.View     { return p.bugs }
func (p *fakeProject) Schedule() derive.View       { return p.schedule }

type fakeView struct {
	name    string
	items   []*fakeItem
	custom  map[string]bool
	finds   int
	queries []string
	findErr error
}

func (v *fakeView) Name() string { return v.name }

func (v *fakeView) Find(_ context.Context, query string) ([]derive.Item, error) {
	v.finds++
	v.queries = append(v.queries, query)
	if v.findErr != nil {
		return nil, v.findErr
	}
	items := make([]derive.Item, len(v.items))
	for i, it := range v.items {
		items[i] = it
	}
	return items, nil
}

func (v *fakeView) CustomColumn(name string) (derive.ColumnDescriptor, bool) {
	if !v.custom[name] {
		return nil, false
	}
	return columnName(name), true
}

// item adds an item with the built-in column values in defaults.
func (v *fakeView) item(id string, defaults map[derive.Column]any) *fakeItem {
	it := &fakeItem{
		id:       id,
		view:     v,
		fields:   map[string]any{},
		defaults: map[derive.Column]any{},
		custom:   map[string]any{},
	}
	for c, val := range defaults {
		it.defaults[c] = val
	}
	v.items = append(v.items, it)
	return it
}

type columnName string

func (c columnName) Name() string { return string(c) }

var errWriteRefused = errors.New("write refused")

type fakeItem struct {
	id       string
	view     *fakeView
	fields   map[string]any
	defaults map[derive.Column]any
	custom   map[string]any
	writes   int
	writeErr error
}

func (it *fakeItem) ID() string        { return it.id }
func (it *fakeItem) View() derive.View { return it.view }

func (it *fakeItem) Fields() map[string]any {
	f := map[string]any{}
	for k, v := range it.fields {
		f[k] = v
	}
	for c, v := range it.defaults {
		f[c.String()] = v
	}
	custom := map[string]any{}
	for k, v := range it.custom {
		custom[k] = v
	}
	f[derive.CustomFieldsKey] = custom
	return f
}

func (it *fakeItem) DefaultColumnValue(c derive.Column) (any, error) {
	return it.defaults[c], nil
}

func (it *fakeItem) SetDefaultColumnValue(c derive.Column, v any) error {
	if it.writeErr != nil {
		return it.writeErr
	}
	it.writes++
	it.defaults[c] = v
	return nil
}

func (it *fakeItem) CustomColumnValue(name string) (any, error) {
	return it.custom[name], nil
}

func (it *fakeItem) SetCustomColumnValue(col derive.ColumnDescriptor, v any) error {
	if it.writeErr != nil {
		return it.writeErr
	}
	it.writes++
	it.custom[col.Name()] = v
	return nil
}

// totalWrites counts the writes to every item of every view.
func (r *fakeRepo) totalWrites() int {
	n := 0
	for _, p := range r.projects {
		for _, v := range []*fakeView{p.backlog, p.bugs, p.schedule} {
			for _, it := range v.items {
				n += it.writes
			}
		}
	}
	return n
}

// -------------------------------------------------- HELPERS

func spec(t *testing.T, c derive.Column, expr string) derive.ColumnSpec {
	t.Helper()
	s, err := derive.NewColumnSpec(c, expr)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func customSpec(t *testing.T, name, expr string) derive.ColumnSpec {
	t.Helper()
	s, err := derive.NewCustomColumnSpec(name, expr)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func backlogConfig(project string, specs ...derive.ColumnSpec) derive.Config {
	return derive.Config{
		Project: project,
		View:    derive.Backlog,
		Columns: specs,
	}
}

func newBehavior(t *testing.T, cfg derive.Config, repo derive.Repository, c derive.Compiler, opts ...derive.Option) *derive.Behavior {
	t.Helper()
	opts = append([]derive.Option{derive.WithMetrics(false)}, opts...)
	b, err := derive.New(cfg, repo, c, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
