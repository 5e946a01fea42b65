package derive

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// EventKind is the kind of notification the host delivers to a behavior.
type EventKind int

const (
	BatchBegin EventKind = iota
	BatchEnd
	ItemCreated
	ItemDeleted
	ItemMoved
	ItemChanged
	CustomColumnChanged
)

var eventKindNames = map[EventKind]string{
	BatchBegin:          "BatchBegin",
	BatchEnd:            "BatchEnd",
	ItemCreated:         "ItemCreated",
	ItemDeleted:         "ItemDeleted",
	ItemMoved:           "ItemMoved",
	ItemChanged:         "ItemChanged",
	CustomColumnChanged: "CustomColumnChanged",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind parses an event kind name, ignoring case.
func ParseEventKind(s string) (EventKind, error) {
	for k, name := range eventKindNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Qualifying reports whether an event of this kind can change a derived
// value, and so calls for a recompute.
func (k EventKind) Qualifying() bool {
	switch k {
	case ItemCreated, ItemDeleted, ItemMoved, ItemChanged, CustomColumnChanged:
		return true
	}
	return false
}

// Event is a notification from the host.
type Event struct {
	Kind EventKind

	// The item the change concerns, if any. Informational only; every
	// qualifying change leads to a full recompute.
	ItemID string
}

// HandleEvent advances the behavior's event state machine.
//
//   - BatchBegin opens a batch and clears any pending change.
//   - A qualifying change outside a batch recomputes immediately.
//   - A qualifying change inside a batch is only remembered.
//   - BatchEnd closes the batch and recomputes once if a change was remembered.
//
// Batch events are ignored unless the behavior is Buffered.
// HandleEvent returns the report of the pass it ran, or nil if it ran none.
func (b *Behavior) HandleEvent(ctx context.Context, e Event) (*PassReport, error) {
	switch {
	case e.Kind == BatchBegin:
		if !b.state.bufferedMode {
			b.logger.Debug("Ignoring batch begin; behavior is not buffered")
			return nil, nil
		}
		b.state.batchOpen = true
		b.state.changeImpactPending = false
		return nil, nil

	case e.Kind == BatchEnd:
		if !b.state.bufferedMode {
			b.logger.Debug("Ignoring batch end; behavior is not buffered")
			return nil, nil
		}
		run := b.state.batchOpen && b.state.changeImpactPending
		b.state.batchOpen = false
		b.state.changeImpactPending = false
		if !run {
			return nil, nil
		}
		return b.recompute(ctx), nil

	case e.Kind.Qualifying():
		if b.state.batchOpen {
			b.state.changeImpactPending = true
			return nil, nil
		}
		b.logger.Debug("Change notification; recomputing",
			zap.Stringer("event", e.Kind),
			zap.String("item", e.ItemID))
		return b.recompute(ctx), nil

	default:
		return nil, fmt.Errorf("unknown event kind %s", e.Kind)
	}
}
