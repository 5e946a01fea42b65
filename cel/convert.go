package cel

// This file converts values produced by CEL to native Go values that can be
// compared with, and written to, an item's columns.

import (
	"fmt"
	"reflect"

	"github.com/ezachrisen/derive"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

var (
	anySliceType = reflect.TypeOf([]any{})
	anyMapType   = reflect.TypeOf(map[string]any{})
)

// convertResult maps an empty optional to NoValue and unwraps a present one.
func convertResult(v ref.Val) (derive.Result, error) {
	if o, ok := v.(*types.Optional); ok {
		if !o.HasValue() {
			return derive.NoValue(), nil
		}
		v = o.GetValue()
	}

	native, err := nativeValue(v)
	if err != nil {
		return derive.Result{}, err
	}
	return derive.Value(native), nil
}

func nativeValue(v ref.Val) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *types.Err:
		return nil, val
	case *types.Unknown:
		return nil, fmt.Errorf("result depends on unknown attributes %v", val)
	case types.Null:
		return nil, nil
	case *types.Optional:
		// A nested optional, e.g. optional.of(optional.none()).
		if !val.HasValue() {
			return nil, nil
		}
		return nativeValue(val.GetValue())
	case traits.Lister:
		out, err := val.ConvertToNative(anySliceType)
		if err != nil {
			return nil, fmt.Errorf("converting list result: %w", err)
		}
		return out, nil
	case traits.Mapper:
		out, err := val.ConvertToNative(anyMapType)
		if err != nil {
			return nil, fmt.Errorf("converting map result: %w", err)
		}
		return out, nil
	}
	return v.Value(), nil
}
