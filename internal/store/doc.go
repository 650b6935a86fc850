// Package store is the SQLite backend for schema-described records.
//
// Every registered schema gets one table holding its own and inherited
// columns. Columns are declared without a type so SQLite applies no
// affinity conversions: a value comes back with the storage class it was
// written with, and comparisons behave like the in-memory evaluator.
//
// # Stored forms
//
//   - Booleans are stored as 0/1 and read back as bool for boolean columns.
//   - Times are stored as fixed-width UTC text (query.TimeLayout) and read
//     back as time.Time for datetime columns.
//   - Records inserted without an id get a UUIDv7.
//
// # Queries
//
// Select expands the where expression against the registry, compiles it
// with querysql, and runs it. Every statement orders by id with COLLATE
// BINARY. Compiled statements are cached by the selection's fingerprint.
//
// The driver registered as DriverName adds the orb_match SQL function
// used for Matches/DoesNotMatch.
package store
