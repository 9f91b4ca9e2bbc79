// Package pivot wraps many-to-many mutations in a cancellable event lifecycle.
//
// # Flow
//
// Every mutation handled by [Synchronizer] follows the same sequence:
//
//  1. [ResolveImplicit] : detach with no explicit input expands to the currently related ids
//  2. [Normalize] : the caller's [Input] becomes ordered [models.Targets]
//  3. Before event (attaching, detaching, syncing, toggling, updatingExistingPivot) : any [Veto] cancels the call
//  4. [Store] call with the caller's original arguments
//  5. After event (attached, detached, synced, toggled, existingPivotUpdated), or a failed event if the store returned an error
//
// # Input
//
// [Input] is a closed union: [Scalar], [ScalarList], [IdentifierMap], [RelatedEntity] and [RelatedEntities].
// [FromValue] lifts loose Go values into it.
//
// # Results
//
// Entry points return an [Outcome]; [Outcome.Cancelled] distinguishes a vetoed call from any stored result,
// including zero rows updated. Store errors are returned unchanged.
package pivot
