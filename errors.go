package derive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Delta456/box-cli-maker/v2"
	"github.com/alexeyco/simpletable"
)

var (
	ErrUnknownColumn   = errors.New("unknown column type")
	ErrUnsupportedView = errors.New("unsupported view")
	ErrMissingField    = errors.New("missing required field")
)

// ConfigurationError is returned when a behavior's configuration is invalid.
// It is always fatal: the behavior cannot be constructed.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "derive configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Err: fmt.Errorf(format, args...)}
}

// ProjectResolutionError is returned by Initialize when no project matches
// the configured pattern and the behavior requires projects.
type ProjectResolutionError struct {
	Pattern  string
	Inverted bool
}

func (e *ProjectResolutionError) Error() string {
	if e.Inverted {
		return fmt.Sprintf("no project found not matching %q", e.Pattern)
	}
	return fmt.Sprintf("no project found matching %q", e.Pattern)
}

// Diagnostic is a compiler message for one column spec.
type Diagnostic struct {
	Spec    ColumnSpec
	Message string
}

// CompilationError collects the diagnostics of every expression that failed
// to compile during initialization.
type CompilationError struct {
	Diagnostics []Diagnostic
}

func (e *CompilationError) Error() string {
	s := strings.Builder{}
	s.WriteString("error in Expression of derive behavior: ")
	for i, d := range e.Diagnostics {
		if i > 0 {
			s.WriteString("; ")
		}
		s.WriteString(d.Spec.String())
		s.WriteString(": ")
		s.WriteString(strings.Join(strings.Fields(d.Message), " "))
	}
	return s.String()
}

// Report renders the diagnostics as a boxed table, one row per failing
// expression.
func (e *CompilationError) Report() string {
	Box := box.New(box.Config{Px: 2, Py: 1, Type: "Double", Color: "Cyan", TitlePos: "Top", ContentAlign: "Left"})

	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Column"},
			{Align: simpletable.AlignCenter, Text: "Expression"},
			{Align: simpletable.AlignCenter, Text: "Diagnostic"},
		},
	}
	for _, d := range e.Diagnostics {
		r := []*simpletable.Cell{
			{Text: d.Spec.String()},
			{Text: wordWrap(d.Spec.Expression(), 40)},
			{Text: strings.TrimSpace(d.Message)},
		}
		table.Body.Cells = append(table.Body.Cells, r)
	}
	table.SetStyle(simpletable.StyleUnicode)

	return Box.String("DERIVE COMPILATION REPORT", table.String())
}

// EvaluationError is a fault evaluating or writing back one column of one
// item. It never aborts a recompute pass.
type EvaluationError struct {
	ItemID     string
	Column     string
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %s for item %s: %v", e.Column, e.ItemID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

func wordWrap(text string, lineWidth int) string {
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) == 0 {
		return text
	}
	wrapped := words[0]
	spaceLeft := lineWidth - len(wrapped)
	for _, word := range words[1:] {
		if len(word)+1 > spaceLeft {
			wrapped += "\n" + word
			spaceLeft = lineWidth - len(word)
		} else {
			wrapped += " " + word
			spaceLeft -= 1 + len(word)
		}
	}

	return wrapped
}
