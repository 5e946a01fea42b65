package derive

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Outcome is what happened when a column spec was applied to an item.
type Outcome int

const (
	// The expression produced no value; the column was left alone.
	OutcomeNoValue Outcome = iota
	// The computed value equals the stored value; nothing was written.
	OutcomeUnchanged
	// The computed value differed and was written.
	OutcomeWritten
	// The item's view does not define the target custom column.
	OutcomeSkipped
	// Evaluation, read or write failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoValue:
		return "no value"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeWritten:
		return "written"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Apply evaluates the column spec at index i against the item and writes the
// result back if, and only if, it differs from the stored value.
// The behavior must be initialized.
func (b *Behavior) Apply(ctx context.Context, item Item, i int) (Outcome, error) {
	if !b.state.initialized {
		return OutcomeFailed, fmt.Errorf("behavior %s is not initialized", b.title)
	}
	if i < 0 || i >= len(b.cfg.Columns) {
		return OutcomeFailed, fmt.Errorf("column index %d out of range", i)
	}
	o, err := b.apply(ctx, item, b.cfg.Columns[i], b.programs[i])
	if o == OutcomeWritten {
		b.recordWrite(b.cfg.Columns[i])
	}
	return o, err
}

// apply evaluates s and writes the value back only if it differs from the
// stored one.
func (b *Behavior) apply(ctx context.Context, item Item, s ColumnSpec, p Program) (o Outcome, err error) {
	// A panic is confined to this item and column.
	defer func() {
		if r := recover(); r != nil {
			o = OutcomeFailed
			err = fmt.Errorf("recovered from panic: %v", r)
		}
	}()

	b.logger.Debug("Processing item",
		zap.String("column", s.String()),
		zap.String("expression", s.expression),
		zap.String("item", item.ID()))

	res, err := p.Eval(ctx, item)
	if err != nil {
		return OutcomeFailed, err
	}

	v, ok := res.Get()
	if !ok {
		return OutcomeNoValue, nil
	}

	if s.IsCustom() {
		return b.writeCustom(item, s, v)
	}
	return b.writeDefault(item, s, v)
}

func (b *Behavior) writeCustom(item Item, s ColumnSpec, v any) (Outcome, error) {
	// Custom columns are per view.
	view := item.View()
	if view == nil {
		return OutcomeSkipped, nil
	}
	col, ok := view.CustomColumn(s.customName)
	if !ok || col == nil {
		b.logger.Debug("View has no such custom column",
			zap.String("column", s.customName),
			zap.String("view", view.Name()),
			zap.String("item", item.ID()))
		return OutcomeSkipped, nil
	}

	old, err := item.CustomColumnValue(s.customName)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("reading custom column %s: %w", s.customName, err)
	}
	if Equal(old, v) {
		return OutcomeUnchanged, nil
	}
	if err := item.SetCustomColumnValue(col, v); err != nil {
		return OutcomeFailed, fmt.Errorf("writing custom column %s: %w", s.customName, err)
	}
	return OutcomeWritten, nil
}

func (b *Behavior) writeDefault(item Item, s ColumnSpec, v any) (Outcome, error) {
	old, err := item.DefaultColumnValue(s.target)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("reading column %s: %w", s.target, err)
	}
	if Equal(old, v) {
		return OutcomeUnchanged, nil
	}
	if err := item.SetDefaultColumnValue(s.target, v); err != nil {
		return OutcomeFailed, fmt.Errorf("writing column %s: %w", s.target, err)
	}
	return OutcomeWritten, nil
}

// Equal reports whether two column values are the same value.
//
// Numbers are compared by value regardless of their Go type, so a stored
// int 6 equals a computed int64 6 or float64 6.0, and NaN equals NaN.
// Times are compared with time.Time.Equal. Slices and string-keyed maps are
// compared element by element with the same rules. Anything else is compared
// with reflect.DeepEqual.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if isNumber(va.Kind()) && isNumber(vb.Kind()) {
		return numbersEqual(va, vb)
	}

	switch {
	case isList(va.Kind()) && isList(vb.Kind()):
		if va.Len() != vb.Len() {
			return false
		}
		for i := 0; i < va.Len(); i++ {
			if !Equal(va.Index(i).Interface(), vb.Index(i).Interface()) {
				return false
			}
		}
		return true
	case va.Kind() == reflect.Map && vb.Kind() == reflect.Map &&
		va.Type().Key().Kind() == reflect.String && vb.Type().Key().Kind() == reflect.String:
		if va.Len() != vb.Len() {
			return false
		}
		iter := va.MapRange()
		for iter.Next() {
			other := vb.MapIndex(reflect.ValueOf(iter.Key().String()).Convert(vb.Type().Key()))
			if !other.IsValid() || !Equal(iter.Value().Interface(), other.Interface()) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

func isList(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func numbersEqual(a, b reflect.Value) bool {
	switch {
	case a.CanInt() && b.CanInt():
		return a.Int() == b.Int()
	case a.CanUint() && b.CanUint():
		return a.Uint() == b.Uint()
	case a.CanInt() && b.CanUint():
		return a.Int() >= 0 && uint64(a.Int()) == b.Uint()
	case a.CanUint() && b.CanInt():
		return b.Int() >= 0 && a.Uint() == uint64(b.Int())
	}
	fa, fb := toFloat(a), toFloat(b)
	if math.IsNaN(fa) || math.IsNaN(fb) {
		// A stored NaN is not rewritten with a computed NaN.
		return math.IsNaN(fa) && math.IsNaN(fb)
	}
	return fa == fb
}

func toFloat(v reflect.Value) float64 {
	switch {
	case v.CanInt():
		return float64(v.Int())
	case v.CanUint():
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func formatValue(v any) string {
	return fmt.Sprintf("%v", v)
}
