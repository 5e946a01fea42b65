package derive

import (
	"fmt"
	"strings"
)

// Column identifies the attribute of an item a ColumnSpec writes to.
// CustomColumn means a user-defined column, identified by name; the other
// values are the tracking platform's built-in columns.
type Column int

const (
	CustomColumn Column = iota
	Risk
	Priority
	EstimatedDays
	Category
	Points
	Status
	Confidence
	Hyperlink
	Name
	WorkRemaining
	IsCompleted
)

// builtinColumns lists the built-in columns in declaration order.
var builtinColumns = []Column{
	Risk, Priority, EstimatedDays, Category, Points, Status,
	Confidence, Hyperlink, Name, WorkRemaining, IsCompleted,
}

// BuiltinColumns returns the built-in columns a ColumnSpec may target.
func BuiltinColumns() []Column {
	c := make([]Column, len(builtinColumns))
	copy(c, builtinColumns)
	return c
}

// String returns the configuration element name of the column.
func (c Column) String() string {
	switch c {
	case CustomColumn:
		return "CustomColumn"
	case Risk:
		return "Risk"
	case Priority:
		return "Priority"
	case EstimatedDays:
		return "EstimatedDays"
	case Category:
		return "Category"
	case Points:
		return "Points"
	case Status:
		return "Status"
	case Confidence:
		return "Confidence"
	case Hyperlink:
		return "Hyperlink"
	case Name:
		return "Name"
	case WorkRemaining:
		return "WorkRemaining"
	case IsCompleted:
		return "IsCompleted"
	default:
		return fmt.Sprintf("Column(%d)", int(c))
	}
}

// ParseColumn returns the column for a configuration element name.
// Matching is case sensitive, as element names are.
func ParseColumn(element string) (Column, error) {
	if element == CustomColumn.String() {
		return CustomColumn, nil
	}
	for _, c := range builtinColumns {
		if c.String() == element {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, element)
}

// ViewKind selects which view of a project a behavior operates on.
type ViewKind int

const (
	Agile ViewKind = iota
	Scheduled
	Bugs
	Backlog
)

func (v ViewKind) String() string {
	switch v {
	case Agile:
		return "Agile"
	case Scheduled:
		return "Scheduled"
	case Bugs:
		return "Bugs"
	case Backlog:
		return "Backlog"
	default:
		return fmt.Sprintf("ViewKind(%d)", int(v))
	}
}

// ParseViewKind parses the View configuration value. Case is ignored.
func ParseViewKind(s string) (ViewKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agile":
		return Agile, nil
	case "scheduled":
		return Scheduled, nil
	case "bugs":
		return Bugs, nil
	case "backlog":
		return Backlog, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedView, s)
	}
}

// view returns the view of the project that v selects. Agile and scheduled
// projects share the schedule view.
func (v ViewKind) view(p Project) View {
	switch v {
	case Backlog:
		return p.ProductBacklog()
	case Bugs:
		return p.BugTracker()
	default:
		return p.Schedule()
	}
}

// ColumnSpec declares that a column is derived from an expression.
// A ColumnSpec is immutable once constructed.
type ColumnSpec struct {
	target     Column
	customName string
	expression string
}

// NewColumnSpec returns a spec deriving a built-in column.
func NewColumnSpec(target Column, expression string) (ColumnSpec, error) {
	if target == CustomColumn {
		return ColumnSpec{}, fmt.Errorf("%w: custom column requires a name", ErrMissingField)
	}
	if target < Risk || target > IsCompleted {
		return ColumnSpec{}, fmt.Errorf("%w: %s", ErrUnknownColumn, target)
	}
	return newSpec(target, "", expression)
}

// NewCustomColumnSpec returns a spec deriving the custom column with the name.
func NewCustomColumnSpec(name, expression string) (ColumnSpec, error) {
	if strings.TrimSpace(name) == "" {
		return ColumnSpec{}, fmt.Errorf("%w: CustomColumn Name", ErrMissingField)
	}
	return newSpec(CustomColumn, name, expression)
}

// ParseColumnSpec builds a ColumnSpec from a configuration element: the element
// name selects the target, name is only used by CustomColumn.
func ParseColumnSpec(element, name, expression string) (ColumnSpec, error) {
	c, err := ParseColumn(element)
	if err != nil {
		return ColumnSpec{}, err
	}
	if c == CustomColumn {
		return NewCustomColumnSpec(name, expression)
	}
	return NewColumnSpec(c, expression)
}

func newSpec(target Column, name, expression string) (ColumnSpec, error) {
	if strings.TrimSpace(expression) == "" {
		return ColumnSpec{}, fmt.Errorf("%w: %s Expression", ErrMissingField, target)
	}
	return ColumnSpec{
		target:     target,
		customName: name,
		expression: expression,
	}, nil
}

// Target returns the column the spec writes to.
func (s ColumnSpec) Target() Column { return s.target }

// CustomName returns the custom column name, or "" for built-in targets.
func (s ColumnSpec) CustomName() string { return s.customName }

// Expression returns the expression source.
func (s ColumnSpec) Expression() string { return s.expression }

// IsCustom reports whether the spec targets a custom column.
func (s ColumnSpec) IsCustom() bool { return s.target == CustomColumn }

// String returns the name of the target column: the custom column name,
// or the built-in column's name.
func (s ColumnSpec) String() string {
	if s.IsCustom() {
		return s.customName
	}
	return s.target.String()
}
