// Package store provides the SQLite-backed plan catalog.
//
// The catalog keeps the latest compiled ExecutionPlan per function, keyed
// by function name and tagged with the spec fingerprint it was compiled
// from. Saving a plan whose fingerprint has not changed is a no-op, so
// recompiling an unchanged spec tree leaves the catalog untouched.
//
// Every change is stamped with a catalog-wide revision number taken from
// MAX(seq)+1, never from wall-clock time. Listings are ordered by function
// name with COLLATE BINARY so output is identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: 5 seconds unless WithBusyTimeout says otherwise
//   - foreign_keys=ON: Enforce referential integrity
package store
