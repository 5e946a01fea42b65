package sqlrepo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ezachrisen/derive"
	"github.com/ezachrisen/derive/cel"
	"github.com/ezachrisen/derive/sqlrepo"
	"github.com/matryer/is"
)

func newStore(t *testing.T, opts ...sqlrepo.Option) *sqlrepo.Store {
	t.Helper()
	is := is.New(t)
	ctx := context.Background()

	s, err := sqlrepo.Open(":memory:", opts...)
	is.NoErr(err)
	t.Cleanup(func() { s.Close() })

	is.NoErr(s.AddProject(ctx, "Alpha"))
	is.NoErr(s.AddProject(ctx, "Beta"))
	is.NoErr(s.AddCustomColumn(ctx, "Alpha", derive.Backlog, "Owner"))
	is.NoErr(s.PutItem(ctx, "Alpha", derive.Backlog, "1",
		map[string]any{"Priority": 3, "Risk": 5, "Status": "Open", "AssignedTo": "ann"}, nil))
	is.NoErr(s.PutItem(ctx, "Alpha", derive.Backlog, "2",
		map[string]any{"Priority": 1.5, "Status": "Done"}, map[string]any{"Owner": "bob"}))
	is.NoErr(s.PutItem(ctx, "Beta", derive.Bugs, "3", map[string]any{"Priority": 9}, nil))
	return s
}

func TestFindProjects(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	s := newStore(t)

	ps, err := s.FindProjects(ctx, "Al.*", false)
	is.NoErr(err)
	is.Equal(len(ps), 1)
	is.Equal(ps[0].Name(), "Alpha")

	ps, err = s.FindProjects(ctx, "Al", false)
	is.NoErr(err)
	is.Equal(len(ps), 0)

	ps, err = s.FindProjects(ctx, "Al.*", true)
	is.NoErr(err)
	is.Equal(len(ps), 1)
	is.Equal(ps[0].Name(), "Beta")

	err = s.PutItem(ctx, "Gamma", derive.Bugs, "4", nil, nil)
	is.True(errors.Is(err, sqlrepo.ErrNoProject))
}

func TestFind(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	s := newStore(t)

	ps, err := s.FindProjects(ctx, "Alpha", false)
	is.NoErr(err)
	v := ps[0].ProductBacklog()
	is.Equal(v.Name(), "Alpha/backlog")

	items, err := v.Find(ctx, "")
	is.NoErr(err)
	is.Equal(len(items), 2)
	is.Equal(items[0].ID(), "1")

	f := items[0].Fields()
	is.Equal(f["Priority"], int64(3))
	is.Equal(items[1].Fields()["Priority"], 1.5)

	open, err := v.Find(ctx, `json_extract(fields, '$.Status') = 'Open'`)
	is.NoErr(err)
	is.Equal(len(open), 1)
	is.Equal(open[0].ID(), "1")

	_, err = v.Find(ctx, `no_such_function()`)
	is.True(err != nil)

	empty, err := ps[0].BugTracker().Find(ctx, "")
	is.NoErr(err)
	is.Equal(len(empty), 0)

	_, ok := v.CustomColumn("Owner")
	is.True(ok)
	_, ok = ps[0].Schedule().CustomColumn("Owner")
	is.True(!ok)
}

func TestBehaviorOverSQLite(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var events []derive.Event
	s := newStore(t, sqlrepo.OnChange(func(e derive.Event) { events = append(events, e) }))

	c, err := cel.NewCompiler()
	is.NoErr(err)

	risk, err := derive.NewColumnSpec(derive.Risk, "double(item.Priority) * 2.0")
	is.NoErr(err)
	owner, err := derive.NewCustomColumnSpec("Owner", "item.?AssignedTo")
	is.NoErr(err)

	cfg := derive.Config{Project: "Alpha", View: derive.Backlog, Columns: []derive.ColumnSpec{risk, owner}}
	b, err := derive.New(cfg, s, c, derive.WithMetrics(false))
	is.NoErr(err)

	rep, err := b.Initialize(ctx)
	is.NoErr(err)
	is.Equal(len(rep.Failures), 0)
	is.Equal(rep.Writes, 3) // Risk on both items, Owner on item 1
	is.Equal(rep.NoValues, 1)
	is.Equal(len(events), 3)

	// Values read back from the database compare equal to the computed ones.
	rep = b.Recompute(ctx)
	is.Equal(rep.Writes, 0)

	writes, err := s.Writes(ctx)
	is.NoErr(err)
	is.Equal(len(writes), 3)
	is.Equal(writes[0].ItemID, "1")
	is.Equal(writes[0].Column, "Risk")
	is.Equal(writes[0].Old, "5")
	is.Equal(writes[0].New, "6")
	is.Equal(writes[1].Column, "Owner")
	is.Equal(writes[1].Old, "null")
	is.Equal(writes[1].New, `"ann"`)
	is.Equal(writes[2].New, "3")
}

func TestTimestampsAreStable(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	s := newStore(t)

	now := time.Date(2024, 3, 1, 9, 30, 0, 123456789, time.UTC)
	c, err := cel.NewCompiler(cel.WithClock(func() time.Time { return now }))
	is.NoErr(err)

	started, err := derive.NewCustomColumnSpec("Owner", `timestamp("2024-01-01T00:00:00Z")`)
	is.NoErr(err)
	seen, err := derive.NewColumnSpec(derive.Hyperlink, `now`)
	is.NoErr(err)

	cfg := derive.Config{Project: "Alpha", View: derive.Backlog, Columns: []derive.ColumnSpec{started, seen}}
	b, err := derive.New(cfg, s, c, derive.WithMetrics(false))
	is.NoErr(err)

	rep, err := b.Initialize(ctx)
	is.NoErr(err)
	is.Equal(len(rep.Failures), 0)
	is.Equal(rep.Writes, 4)

	rep = b.Recompute(ctx)
	is.Equal(rep.Writes, 0)
	rep = b.Recompute(ctx)
	is.Equal(rep.Writes, 0)

	ps, err := s.FindProjects(ctx, "Alpha", false)
	is.NoErr(err)
	items, err := ps[0].ProductBacklog().Find(ctx, `json_extract(custom, '$.Owner."$time"') LIKE '2024-01-01%'`)
	is.NoErr(err)
	is.Equal(len(items), 2)

	owner, err := items[0].CustomColumnValue("Owner")
	is.NoErr(err)
	is.True(owner.(time.Time).Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	link, err := items[0].DefaultColumnValue(derive.Hyperlink)
	is.NoErr(err)
	is.True(link.(time.Time).Equal(now))
}

func TestNestedTimestamps(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	s := newStore(t)

	start := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	is.NoErr(s.PutItem(ctx, "Beta", derive.Bugs, "4", map[string]any{
		"Sprints": []any{map[string]any{"start": start, "days": 10}},
		"Note":    map[string]any{"$time": "not a time"},
	}, nil))

	ps, err := s.FindProjects(ctx, "Beta", false)
	is.NoErr(err)
	items, err := ps[0].BugTracker().Find(ctx, `id = '4'`)
	is.NoErr(err)
	is.Equal(len(items), 1)

	f := items[0].Fields()
	sprint := f["Sprints"].([]any)[0].(map[string]any)
	is.True(sprint["start"].(time.Time).Equal(start))
	is.Equal(sprint["days"], int64(10))
	is.Equal(f["Note"], map[string]any{"$time": "not a time"})
}

func TestWritesUseFindContext(t *testing.T) {
	is := is.New(t)
	s := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	ps, err := s.FindProjects(ctx, "Alpha", false)
	is.NoErr(err)
	items, err := ps[0].ProductBacklog().Find(ctx, "")
	is.NoErr(err)

	cancel()
	err = items[0].SetDefaultColumnValue(derive.Risk, 7)
	is.True(errors.Is(err, context.Canceled))

	risk, err := items[0].DefaultColumnValue(derive.Risk)
	is.NoErr(err)
	is.Equal(risk, int64(5)) // snapshot unchanged

	writes, err := s.Writes(context.Background())
	is.NoErr(err)
	is.Equal(len(writes), 0)
}
