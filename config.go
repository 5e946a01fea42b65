package derive

import (
	"fmt"
	"strings"
)

// Config is the declarative configuration of one derive behavior.
type Config struct {
	// Project name pattern (HansoftProject). Required.
	Project string

	// InvertedMatch selects the projects that do NOT match Project.
	InvertedMatch bool

	// View selects which view of each matched project is recomputed.
	View ViewKind

	// Find is the platform query selecting the items in each view.
	// An empty query selects every item.
	Find string

	// Columns are evaluated in this order for every item.
	Columns []ColumnSpec
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return configErrorf("%w: HansoftProject", ErrMissingField)
	}
	if c.View < Agile || c.View > Backlog {
		return configErrorf("%w: %s", ErrUnsupportedView, c.View)
	}
	for i, s := range c.Columns {
		if strings.TrimSpace(s.expression) == "" {
			return configErrorf("column %d (%s): %w: Expression", i, s.target, ErrMissingField)
		}
		if s.IsCustom() && strings.TrimSpace(s.customName) == "" {
			return configErrorf("column %d: %w: CustomColumn Name", i, ErrMissingField)
		}
		if !s.IsCustom() && (s.target < Risk || s.target > IsCompleted) {
			return configErrorf("column %d: %w: %s", i, ErrUnknownColumn, s.target)
		}
	}
	return nil
}

func (c Config) title() string {
	match := ""
	if c.InvertedMatch {
		match = "not "
	}
	return fmt.Sprintf("Derive: %s%s (%s)", match, c.Project, c.View)
}
