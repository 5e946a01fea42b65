// Package derive keeps derived columns of work items consistent with values
// computed from the items' other attributes.
//
// A Behavior is configured with a project pattern, a view kind, an item query
// and a list of column specs, each pairing a target column with an expression.
// The tracking platform (the host) reaches the items through the Repository
// interface and drives the behavior with change notifications.
//
// Derive does not define an expression language. Expressions are compiled by
// a Compiler; package github.com/ezachrisen/derive/cel provides one backed by
// Google's Common Expression Language.
//
// Typical use is as follows:
//
//  1. Build a Config, by hand or with package config
//  2. Create a behavior with New, passing the repository and a compiler
//  3. Call Initialize; this compiles every expression and runs a first recompute
//  4. Deliver the host's change notifications with HandleEvent
//
// # Writing Only What Changed
//
// For every item and column spec, the behavior evaluates the expression and
// compares the result with the value stored in the item. It writes only when
// the two differ. The host usually reports such a write as a new change, which
// triggers another recompute; that recompute finds nothing to change, so the
// sequence settles after one round.
//
// An expression that has nothing to say about an item returns no value, and
// the column is left as it is. With the CEL compiler, that is noValue() or
// optional.none().
//
// # Buffered Notifications
//
// Some hosts deliver notifications in batches, one batch per logical
// transaction. With the Buffered option, changes inside a batch are coalesced
// into a single recompute when the batch ends.
//
// # Errors
//
// Configuration and compilation errors are returned from New and Initialize
// and prevent the behavior from running. A failure to evaluate one column of
// one item is an EvaluationError; it is passed to the error handler and the
// pass continues with the next column.
package derive
