// Package repositories implements SQLite persistence for pivot rows and the pivot event journal.
//
// Key Implementations:
//   - [PivotRepository] : a pivot.Store for one (relation, owner) pair, backed by the pivots table
//   - [JournalRepository] : journal entry CRUD with soft deletes and criteria-based listing
//   - [JournalRecorder] : event listener persisting after and failed pivot events
//
// Owners are addressed by morph type and encoded key, so one pivots table serves polymorphic owners.
// Related ids are stored as a (related_key, related_type) text pair and decoded back to their canonical Go type.
//
// Sequence numbers provide stable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
