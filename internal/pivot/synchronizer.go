package pivot

import (
	"io"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/charmbracelet/log"
)

// Synchronizer gates the mutations of one owner's relation behind before/after events.
type Synchronizer struct {
	owner    models.Identifiable
	relation RelationNameResolver
	store    Store
	bus      EventBus
	logger   *log.Logger
}

// Options contains the collaborators of a [Synchronizer].
type Options struct {
	Owner    models.Identifiable  // Entity owning the relation, passed to every listener
	Relation RelationNameResolver // Logical relation name
	Store    Store                // Storage performing the mutations
	Bus      EventBus             // Defaults to NopBus
	Logger   *log.Logger          // Defaults to a discarding logger
}

// New creates a [Synchronizer] with the provided collaborators.
func New(opts Options) *Synchronizer {
	if opts.Bus == nil {
		opts.Bus = NopBus{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if opts.Relation == nil {
		opts.Relation = RelationName("")
	}

	return &Synchronizer{
		owner:    opts.Owner,
		relation: opts.Relation,
		store:    opts.Store,
		bus:      opts.Bus,
		logger:   opts.Logger,
	}
}

// Owner returns the entity owning the relation.
func (s *Synchronizer) Owner() models.Identifiable { return s.owner }

// Relation returns the logical relation name.
func (s *Synchronizer) Relation() string { return s.relation.Name() }

// Attach adds pivot rows for in, applying attributes beneath any per-id overrides.
func (s *Synchronizer) Attach(in Input, attributes models.Attributes, touch bool) (Outcome[bool], error) {
	return execute(s, KindAttach, in, attributes, func() (bool, error) {
		if err := s.store.Attach(in, attributes, touch); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Detach removes pivot rows for in. A nil in detaches every related entity;
// listeners still see the concrete ids resolved before the before event.
func (s *Synchronizer) Detach(in Input, touch bool) (Outcome[int], error) {
	resolved, err := ResolveImplicit(in, s.store.CurrentRelatedIDs)
	if err != nil {
		return Outcome[int]{}, err
	}

	return execute(s, KindDetach, resolved, nil, func() (int, error) {
		return s.store.Detach(in, touch)
	})
}

// Sync makes the related set equal to in. With detaching unset, extra rows are kept.
func (s *Synchronizer) Sync(in Input, detaching bool) (Outcome[models.Changes], error) {
	return execute(s, KindSync, in, nil, func() (models.Changes, error) {
		return s.store.Sync(in, detaching)
	})
}

// SyncWithoutDetaching attaches and updates in without removing any existing row.
func (s *Synchronizer) SyncWithoutDetaching(in Input) (Outcome[models.Changes], error) {
	return s.Sync(in, false)
}

// SyncWithPivotValues syncs the ids of in, giving every one of them values.
// Per-id attributes carried by in are ignored.
func (s *Synchronizer) SyncWithPivotValues(in Input, values models.Attributes, detaching bool) (Outcome[models.Changes], error) {
	targets, err := Normalize(in, nil)
	if err != nil {
		return Outcome[models.Changes]{}, err
	}

	pairs := make(IdentifierMap, 0, targets.Len())
	for _, id := range targets.IDs() {
		pairs = append(pairs, With(id, values))
	}

	return s.Sync(pairs, detaching)
}

// Toggle detaches the ids of in that are related and attaches the others.
func (s *Synchronizer) Toggle(in Input, touch bool) (Outcome[models.Changes], error) {
	return execute(s, KindToggle, in, nil, func() (models.Changes, error) {
		return s.store.Toggle(in, touch)
	})
}

// UpdateExistingPivot changes attributes of rows already related, without changing membership.
func (s *Synchronizer) UpdateExistingPivot(in Input, attributes models.Attributes, touch bool) (Outcome[int], error) {
	return execute(s, KindUpdateExistingPivot, in, attributes, func() (int, error) {
		return s.store.UpdateExistingPivot(in, attributes, touch)
	})
}

// execute runs the shared lifecycle: normalize, before event, store call, after or failed event.
func execute[T any](s *Synchronizer, kind Kind, in Input, defaults models.Attributes, call func() (T, error)) (Outcome[T], error) {
	targets, err := Normalize(in, defaults)
	if err != nil {
		return Outcome[T]{}, err
	}

	relation := s.relation.Name()
	logger := shared.WithLogger(s.logger, "relation", relation, "kind", kind.String())

	if s.dispatch(kind.Before(), kind, relation, targets, nil, true).Halted {
		logger.Debug("mutation vetoed", "targets", targets.Len())
		return CancelledOutcome[T](), nil
	}

	value, err := call()
	if err != nil {
		s.dispatch(kind.Failed(), kind, relation, targets, err, false)
		return Outcome[T]{}, err
	}

	s.dispatch(kind.After(), kind, relation, targets, nil, false)
	logger.Debug("mutation committed", "targets", targets.Len())

	return Completed(value), nil
}

func (s *Synchronizer) dispatch(name string, kind Kind, relation string, targets *models.Targets, err error, halt bool) DispatchOutcome {
	payload := Payload{
		Event:    name,
		Kind:     kind,
		Owner:    s.owner,
		Relation: relation,
		Targets:  targets.Clone(),
		Err:      err,
	}
	return s.bus.Dispatch(name, payload, halt)
}
