// Package models defines the value types and persisted entities of the pivot synchronizer.
//
// The package contains two categories of types:
//
// 1. Value types: built per mutation and discarded afterwards
//   - [RelatedID] : Canonical scalar key of a related entity (int64, string or [uuid.UUID])
//   - [Attributes] : Pivot columns to set on a row, distinct from identity
//   - [Targets] : Insertion-ordered mapping of [RelatedID] to [Attributes]
//   - [Changes] : Attached, detached and updated ids reported by sync and toggle
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [PivotRow] : One edge of a many-to-many relation with its attributes
//   - [JournalEntry] : A recorded pivot event (committed or failed mutation)
//
// All persistent entities implement the Model interface providing ID generation, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
