// Package query implements the abstract query expression language: leaf
// comparisons (Query), boolean groupings (Compound), dot-path expansion
// into nested sub-selects, an in-memory evaluator and a structured codec.
//
// # Values, never aliased
//
// Query and Compound are immutable values. Every builder method returns a
// new value and leaves its receiver untouched:
//
//	adults := query.New("age").GreaterThan(18)
//	working := adults.And(query.New("age").LessThan(65))
//
// A single expression can therefore be shared by any number of goroutines
// without synchronization.
//
// # Composition
//
// And/Or compose expressions. The null query (Null) is the identity element,
// and groupings of the same operator flatten, so (a&b)&c and a&(b&c) both
// produce one And compound with three children.
//
// Amp and Pipe reproduce the dual meaning of & and |: with an expression on
// the right they compose booleanly, with any other value they append a
// bitwise math term to the left query.
//
// # Negation
//
// Negating a leaf replaces its operator with the table partner AND flips the
// inverted flag. Negating a compound only flips And/Or; children are left as
// they are. The two behaviours differ on purpose.
//
// # Expansion
//
// Expand rewrites dot paths ("department.manager.name") and collector names
// into chains of IN sub-selects (Selection values), consulting a Resolver.
// After expansion every leaf names a plain column on its own model, which
// is all a backend needs.
package query
