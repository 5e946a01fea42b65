// Package cel provides an implementation of the derive.Compiler interface backed by Google's cel-go.
//
// See https://github.com/google/cel-go and https://opensource.google/projects/cel for more information
// about CEL.
//
// The expressions you write must conform to the CEL spec: https://github.com/google/cel-spec.
//
// What an Expression Sees
//
// Every expression is compiled in an environment with two variables:
//
//     item  map(string, dyn)   the item's fields, as returned by derive.Item.Fields
//     now   timestamp          the time of evaluation
//
// Custom column values are found under item.Custom:
//
//     item.Custom["Story Points"] * 2
//
// Leaving a Column Unchanged
//
// An expression that has nothing to say about an item calls noValue(). The column is then left as it is:
//
//     item.Status == "Done" ? 0 : noValue()
//
// The optional types library is also loaded, so an expression may return an optional directly. An empty
// optional is the same as noValue(); a present optional is unwrapped:
//
//     item.?Owner
//
// Capability Modules
//
// A ColumnSpec's expression may call functions beyond the CEL standard library when the Behavior is created
// with derive.WithCapabilities. The following modules are built in, each one a cel-go ext library:
//
//     strings    ext.Strings
//     math       ext.Math
//     lists      ext.Lists
//     sets       ext.Sets
//     encoders   ext.Encoders
//
// A host registers its own modules with WithModule. BinaryFunction is a shortcut for declaring a two-argument
// function:
//
//     c, err := cel.NewCompiler(cel.WithModule("sprint",
//         cel.BinaryFunction("daysBetween", celgo.TimestampType, celgo.TimestampType, celgo.IntType, daysBetween)))
//
// Naming a module that is not registered is a compilation error.
//
// Results
//
// Results are converted to native Go values before they are compared with the stored column value:
// int64, uint64, float64, string, bool, []byte, time.Time, time.Duration, []any and map[string]any.
// A CEL null becomes nil.
package cel
