// Package schema declares models (schemas), their columns and collectors,
// and resolves column names against them.
//
// Schemas are registered into an explicit Registry and refer to each other
// by name only. A reference column stores the name of its target schema, and
// inheritance stores the name of the parent. Both are looked up lazily at
// resolution time, so schemas can be declared in any order and may form
// cycles through their references.
//
// Resolution walks a schema's own columns first, then its ancestors
// nearest-first:
//
//	reg.Resolve("Employee", "department.manager.name")
//
// resolves "department" on Employee (or an ancestor), follows the reference
// to Department, resolves "manager" there, follows it to Person and returns
// Person's "name" column.
//
// Concurrency: a Registry is normally populated once at startup and only
// read afterwards. Each Schema guards its own resolution cache with a
// reader-writer lock, so concurrent resolution is safe and mutating one
// schema never blocks lookups on another.
package schema
