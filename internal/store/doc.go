// Package store provides SQLite-backed run history for sfwa checks.
//
// Each recorded run keeps the canonical verdict bytes, its digest, and the
// digest of the inputs that produced it, so a later run over unchanged inputs
// can be compared bit for bit.
//
// # Tables
//
//   - runs: one row per check, identified by a UUID
//   - run_errors: the verdict's error lines, in order, cascading with their run
//
// # Ordering
//
// Runs are ordered by the logical seq column assigned on insert, never by
// timestamps. All queries include ORDER BY seq, id COLLATE BINARY so results
// are identical across replays.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
