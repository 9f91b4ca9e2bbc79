// Package tasks applies batches of pivot mutations described in YAML plan files.
//
// # Plans
//
// A [Plan] names one owner and one relation and lists steps, each a pivot operation:
//
//	owner: {type: user, id: 1}
//	relation: articles
//	steps:
//	  - op: attach
//	    ids: [1, 2]
//	    attributes: {source: import}
//	  - op: sync
//	    ids: {2: {prize: 4096}, 1: {prize: 8192}}
//	  - op: detach
//
// The ids of a step may be a scalar, a sequence, or a mapping of id to attributes.
// Mapping order is kept, so targets are announced in the order they were written.
// A step without ids only makes sense for detach, where it selects every related entity.
//
// # Progress Reporting
//
// [PlanEngine.Apply] runs steps sequentially, throttled by a rate limiter, and emits a
// [ProgressUpdate] per step. Updates use select with default to prevent blocking.
package tasks
