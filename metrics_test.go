package derive

import (
	"context"
	"testing"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type constProgram struct{ v any }

func (p constProgram) Eval(context.Context, Item) (Result, error) { return Value(p.v), nil }

type constCompiler struct{}

func (constCompiler) Compile(expr string, _ []string) (Program, error) { return constProgram{v: expr}, nil }

type emptyRepo struct{}

func (emptyRepo) FindProjects(context.Context, string, bool) ([]Project, error) { return nil, nil }

func TestMetrics(t *testing.T) {
	is := is.New(t)

	risk, err := NewColumnSpec(Risk, "high")
	is.NoErr(err)
	cfg := Config{Project: "metrics test", Columns: []ColumnSpec{risk}}

	b, err := New(cfg, emptyRepo{}, constCompiler{})
	is.NoErr(err)
	_, err = b.Initialize(context.Background())
	is.NoErr(err)
	b.Recompute(context.Background())
	is.Equal(testutil.ToFloat64(recomputePassesTotal.WithLabelValues(b.Title())), 2.0)

	b.recordWrite(risk)
	is.Equal(testutil.ToFloat64(columnWritesTotal.WithLabelValues(b.Title(), "Risk")), 1.0)

	off, err := New(Config{Project: "metrics off"}, emptyRepo{}, constCompiler{}, WithMetrics(false))
	is.NoErr(err)
	_, err = off.Initialize(context.Background())
	is.NoErr(err)
	is.Equal(testutil.ToFloat64(recomputePassesTotal.WithLabelValues(off.Title())), 0.0)
}
