package derive

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PassReport summarizes one full recompute pass.
type PassReport struct {
	// Title of the behavior that ran the pass
	Behavior string

	// Views whose items were found. Views whose query failed are not counted.
	Views int

	// Items visited across all views
	Items int

	// Column specs applied to items; Items × len(Columns)
	Evaluations int

	// Outcome counts
	Writes    int
	Unchanged int
	NoValues  int
	Skipped   int

	// Evaluation errors and failed view queries, in the order they happened
	Failures []error

	Started  time.Time
	Duration time.Duration
}

func (r *PassReport) record(o Outcome) {
	r.Evaluations++
	switch o {
	case OutcomeWritten:
		r.Writes++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeNoValue:
		r.NoValues++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// String renders the report as a table.
func (r *PassReport) String() string {
	if r == nil {
		return "no recompute"
	}

	tw := table.NewWriter()
	tw.SetTitle("\nRECOMPUTE: %s\n", r.Behavior)
	tw.AppendHeader(table.Row{"\nViews", "\nItems", "Evalu-\nations", "\nWrites", "Un-\nchanged", "No\nValue", "\nSkipped", "\nFailed", "\nTime"})
	tw.AppendRow(table.Row{
		humanize.Comma(int64(r.Views)),
		humanize.Comma(int64(r.Items)),
		humanize.Comma(int64(r.Evaluations)),
		humanize.Comma(int64(r.Writes)),
		humanize.Comma(int64(r.Unchanged)),
		humanize.Comma(int64(r.NoValues)),
		humanize.Comma(int64(r.Skipped)),
		humanize.Comma(int64(len(r.Failures))),
		humanize.SIWithDigits(r.Duration.Seconds(), 2, "s"),
	})

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)

	s := tw.Render()
	for _, err := range r.Failures {
		s += fmt.Sprintf("\n  %v", err)
	}
	return s
}
