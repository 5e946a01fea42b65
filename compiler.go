package derive

import "context"

// Compiler is the interface implemented by expression backends, such as CEL.
//
// Compile is expensive relative to evaluation. The Behavior calls it exactly
// once per ColumnSpec, during initialization, and keeps the returned Program
// for its lifetime.
type Compiler interface {
	// Compile pre-processes the expression, returning a program that can be
	// evaluated against many items.
	//
	// capabilities names the extension modules the expression may call in
	// addition to the backend's built-ins. A name the backend cannot resolve
	// is a compilation failure.
	Compile(expr string, capabilities []string) (Program, error)
}

// Program is a compiled expression. Its only implicit input is the item.
type Program interface {
	// Eval evaluates the expression against the item. A Result without a
	// value means the expression has nothing to say about this item right now;
	// that is not an error.
	Eval(ctx context.Context, item Item) (Result, error)
}

// Result of evaluating a Program: either a value, or no value.
type Result struct {
	val any
	ok  bool
}

// Value wraps v as a Result carrying a value. A nil v is still a value.
func Value(v any) Result {
	return Result{val: v, ok: true}
}

// NoValue is the Result an expression produces when the column should be
// left unchanged.
func NoValue() Result {
	return Result{}
}

// Ok reports whether the result carries a value.
func (r Result) Ok() bool {
	return r.ok
}

// Get returns the value and whether there is one.
func (r Result) Get() (any, bool) {
	return r.val, r.ok
}

func (r Result) String() string {
	if !r.ok {
		return "<no value>"
	}
	return formatValue(r.val)
}
