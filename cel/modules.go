package cel

import (
	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

const (
	itemVar = "item"
	nowVar  = "now"

	// NoValueFunc is the name of the function an expression calls to leave
	// the column unchanged.
	NoValueFunc = "noValue"
)

// baseOptions declares what every expression can see.
func baseOptions() []celgo.EnvOption {
	return []celgo.EnvOption{
		celgo.Variable(itemVar, celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable(nowVar, celgo.TimestampType),
		celgo.OptionalTypes(),
		// Declared as dyn so that either branch of a conditional may
		// call it.
		celgo.Function(NoValueFunc,
			celgo.Overload("no_value",
				[]*celgo.Type{},
				celgo.DynType,
				celgo.FunctionBinding(func(...ref.Val) ref.Val {
					return types.OptionalNone
				}))),
	}
}

// builtinModules returns the modules every Compiler starts with.
func builtinModules() map[string][]celgo.EnvOption {
	return map[string][]celgo.EnvOption{
		"strings":  {ext.Strings()},
		"math":     {ext.Math()},
		"lists":    {ext.Lists()},
		"sets":     {ext.Sets()},
		"encoders": {ext.Encoders()},
	}
}

// BinaryFunction declares a two-argument function for use in a module
// registered with WithModule. f receives CEL values and must return one; wrap
// failures with types.NewErr.
func BinaryFunction(name string, lhs, rhs, ret *celgo.Type, f func(lhs, rhs ref.Val) ref.Val) celgo.EnvOption {
	return celgo.Function(name,
		celgo.Overload(name+"_"+lhs.String()+"_"+rhs.String(),
			[]*celgo.Type{lhs, rhs},
			ret,
			celgo.BinaryBinding(f)))
}
