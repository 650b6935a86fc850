// Package harness runs agreement scenarios for query expressions.
//
// A scenario declares CUE schemas, a set of records and a list of
// queries. Run stores the records in a fresh SQLite database, then
// answers every query twice: once through the SQL backend and once by
// filtering a preloaded cache table with the in-memory evaluator. The two
// answers must agree, and must match the ids the scenario expects when it
// lists them.
//
// The evaluator pass is skipped for queries whose expansion contains a
// sub-select, since sub-selects only run in the backend.
//
// Scenario format:
//
//	name: adults
//	description: age comparisons agree
//	schemas: |
//	  schema: Person: columns: {name: "string", age: "integer"}
//	records:
//	  Person:
//	    - {id: p1, name: Ann, age: 30}
//	    - {id: p2, name: Bob, age: 12}
//	queries:
//	  - name: adults
//	    model: Person
//	    where: {type: query, column: age, op: GreaterThanOrEqual, value: 18}
//	    expect: [p1]
//
// Results serialize canonically, so RunWithGolden can compare them
// against testdata/golden/<name>.golden.
package harness
