package memrepo_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ezachrisen/derive"
	"github.com/ezachrisen/derive/cel"
	"github.com/ezachrisen/derive/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
projects:
  - name: Alpha
    backlog:
      customColumns: [Owner]
      items:
        - id: "1"
          fields: {Priority: 5, Risk: 5, AssignedTo: ann, Status: Open}
        - id: "2"
          fields: {Priority: 1, Risk: 2, Status: Done}
  - name: Alpha Two
    schedule:
      items:
        - fields: {Priority: 2}
  - name: Beta
`

func newRepo(t *testing.T, opts ...memrepo.Option) *memrepo.Repository {
	t.Helper()
	r, err := memrepo.New(opts...)
	require.NoError(t, err)
	require.NoError(t, r.Load(strings.NewReader(fixtureYAML)))
	return r
}

func projectNames(ps []derive.Project) []string {
	var names []string
	for _, p := range ps {
		names = append(names, p.Name())
	}
	return names
}

func TestFindProjects(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	ps, err := r.FindProjects(ctx, "Alpha.*", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Alpha Two"}, projectNames(ps))

	ps, err = r.FindProjects(ctx, "Alpha", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, projectNames(ps), "pattern must match the whole name")

	ps, err = r.FindProjects(ctx, "Alpha.*", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta"}, projectNames(ps))

	ps, err = r.FindProjects(ctx, "Gamma", false)
	require.NoError(t, err)
	assert.Empty(t, ps)

	_, err = r.FindProjects(ctx, "(", false)
	assert.Error(t, err)
}

func TestLoadAssignsIDs(t *testing.T) {
	r := newRepo(t)

	items := r.Projects()[1].ViewOf(derive.Scheduled).Items()
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].ID())

	_, ok := r.Item("1")
	assert.True(t, ok)
	_, ok = r.Item("nope")
	assert.False(t, ok)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	r, err := memrepo.New()
	require.NoError(t, err)
	assert.Error(t, r.Load(strings.NewReader("projects:\n  - name: A\n    backlgo: {}\n")))
}

func TestFind(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	v := r.Projects()[0].ProductBacklog()

	all, err := v.Find(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := v.Find(ctx, `item.Status == "Open"`)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "1", open[0].ID())

	_, err = v.Find(ctx, `item.Status +`)
	assert.Error(t, err, "query must compile")

	_, err = v.Find(ctx, `item.Priority`)
	assert.Error(t, err, "query must be a predicate")

	open, err = v.Find(ctx, `item.Status == "Open" ? true : noValue()`)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "1", open[0].ID())

	none, err := v.Find(ctx, `optional.none()`)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWritesAndChangeEvents(t *testing.T) {
	var events []derive.Event
	r := newRepo(t, memrepo.OnChange(func(e derive.Event) { events = append(events, e) }))

	it, ok := r.Item("1")
	require.True(t, ok)

	require.NoError(t, it.SetDefaultColumnValue(derive.Risk, 10))
	v, err := it.DefaultColumnValue(derive.Risk)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	col, ok := it.View().CustomColumn("Owner")
	require.True(t, ok)
	require.NoError(t, it.SetCustomColumnValue(col, "ann"))

	v, err = it.CustomColumnValue("Owner")
	require.NoError(t, err)
	assert.Equal(t, "ann", v)
	assert.Equal(t, "ann", it.Fields()[derive.CustomFieldsKey].(map[string]any)["Owner"])

	_, err = it.CustomColumnValue("Estimate")
	assert.Error(t, err)

	writes := r.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "Risk", writes[0].Column)
	assert.Equal(t, 5, writes[0].Old)
	assert.Equal(t, 10, writes[0].New)
	assert.Equal(t, "Owner", writes[1].Column)
	assert.Nil(t, writes[1].Old)

	assert.Equal(t, []derive.Event{
		{Kind: derive.ItemChanged, ItemID: "1"},
		{Kind: derive.CustomColumnChanged, ItemID: "1"},
	}, events)

	r.ResetWrites()
	assert.Empty(t, r.Writes())
}

func TestDumpRoundTrip(t *testing.T) {
	r := newRepo(t)
	it, _ := r.Item("2")
	require.NoError(t, it.SetDefaultColumnValue(derive.Risk, 7))

	var buf bytes.Buffer
	require.NoError(t, r.Dump(&buf))

	r2, err := memrepo.New()
	require.NoError(t, err)
	require.NoError(t, r2.Load(&buf))

	it2, ok := r2.Item("2")
	require.True(t, ok)
	v, err := it2.DefaultColumnValue(derive.Risk)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, []string{"Owner"}, r2.Projects()[0].ViewOf(derive.Backlog).CustomColumns())
}

// Writes fed back as change events settle after one extra pass that writes
// nothing.
func TestBehaviorConverges(t *testing.T) {
	ctx := context.Background()
	var queue []derive.Event
	r := newRepo(t, memrepo.OnChange(func(e derive.Event) { queue = append(queue, e) }))

	c, err := cel.NewCompiler()
	require.NoError(t, err)

	cfg := derive.Config{Project: "Alpha", View: derive.Backlog}
	risk, err := derive.NewColumnSpec(derive.Risk, "item.Priority + 1")
	require.NoError(t, err)
	owner, err := derive.NewCustomColumnSpec("Owner", `item.?AssignedTo`)
	require.NoError(t, err)
	cfg.Columns = []derive.ColumnSpec{risk, owner}

	b, err := derive.New(cfg, r, c, derive.WithMetrics(false))
	require.NoError(t, err)

	rep, err := b.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Items)
	assert.Equal(t, 2, rep.Writes, "Risk and Owner on item 1")
	assert.Equal(t, 1, rep.Unchanged, "Risk on item 2 is already 2")
	assert.Equal(t, 1, rep.NoValues, "item 2 has no AssignedTo")
	assert.Empty(t, rep.Failures)

	passes := 0
	for len(queue) > 0 && passes < 10 {
		e := queue[0]
		queue = queue[1:]
		rep, err := b.HandleEvent(ctx, e)
		require.NoError(t, err)
		require.NotNil(t, rep)
		assert.Zero(t, rep.Writes)
		passes++
	}
	assert.Equal(t, 2, passes)

	it, _ := r.Item("1")
	v, _ := it.DefaultColumnValue(derive.Risk)
	assert.Equal(t, int64(6), v)
}
