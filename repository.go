package derive

import "context"

// Repository is the tracking platform's item store as seen by a Behavior.
type Repository interface {
	// FindProjects returns the projects whose name matches pattern, or, when
	// inverted is set, the projects whose name does not match.
	FindProjects(ctx context.Context, pattern string, inverted bool) ([]Project, error)
}

// Project is a tracking platform project and its views.
type Project interface {
	Name() string
	ProductBacklog() View
	BugTracker() View
	Schedule() View
}

// View is a named collection of items of one project.
type View interface {
	Name() string

	// Find returns the items matching the platform query. The order of the
	// returned items is whatever the platform returns.
	Find(ctx context.Context, query string) ([]Item, error)

	// CustomColumn returns the custom column with the name, if the view
	// defines one.
	CustomColumn(name string) (ColumnDescriptor, bool)
}

// ColumnDescriptor identifies a custom column of a view.
type ColumnDescriptor interface {
	Name() string
}

// Item is a read/write view over one work item's attributes.
type Item interface {
	ID() string

	// View returns the view the item belongs to.
	View() View

	// Fields returns the item's public surface, the values an expression can
	// read as item.<name>. Custom column values are under the key "Custom".
	Fields() map[string]any

	DefaultColumnValue(c Column) (any, error)
	SetDefaultColumnValue(c Column, v any) error

	CustomColumnValue(name string) (any, error)
	SetCustomColumnValue(col ColumnDescriptor, v any) error
}

// CustomFieldsKey is the key in Item.Fields under which custom column values
// are exposed to expressions.
const CustomFieldsKey = "Custom"
