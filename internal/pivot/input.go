package pivot

import (
	"fmt"
	"reflect"

	"github.com/AraneaDev/eventually/internal/models"
)

// Input is the closed set of shapes accepted by the mutation entry points.
//
// A nil Input means "absent": for detach it selects every related entity, elsewhere it is empty.
type Input interface {
	input()
}

// Scalar is a single raw identifier.
type Scalar struct {
	ID any
}

// ScalarList is an ordered collection of raw identifiers.
type ScalarList []any

// Pair is one element of an [IdentifierMap].
// A nil Attributes marks a bare identifier that takes the default attributes unchanged.
type Pair struct {
	ID         any
	Attributes models.Attributes
}

// IdentifierMap is an ordered list of identifiers with optional per-identifier attributes.
type IdentifierMap []Pair

// RelatedEntity is a single related entity addressed by its key.
type RelatedEntity struct {
	Entity models.Identifiable
}

// RelatedEntities is a homogeneous collection of related entities.
type RelatedEntities []models.Identifiable

func (Scalar) input()          {}
func (ScalarList) input()      {}
func (IdentifierMap) input()   {}
func (RelatedEntity) input()   {}
func (RelatedEntities) input() {}

// ID wraps one identifier.
func ID(id any) Input { return Scalar{ID: id} }

// IDs wraps identifiers in caller order.
func IDs[T any](ids ...T) Input {
	list := make(ScalarList, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	return list
}

// With pairs an identifier with attributes overriding the defaults.
func With(id any, attrs models.Attributes) Pair {
	if attrs == nil {
		attrs = models.Attributes{}
	}
	return Pair{ID: id, Attributes: attrs}
}

// Bare pairs an identifier with no attributes of its own.
func Bare(id any) Pair { return Pair{ID: id} }

// Map builds an [IdentifierMap] from pairs.
func Map(pairs ...Pair) Input { return IdentifierMap(pairs) }

// Model wraps a single related entity.
func Model(e models.Identifiable) Input { return RelatedEntity{Entity: e} }

// Models wraps related entities in caller order.
func Models[T models.Identifiable](entities ...T) Input {
	out := make(RelatedEntities, len(entities))
	for i, e := range entities {
		out[i] = e
	}
	return out
}

// FromValue lifts a loose Go value into an [Input].
//
// Accepted: nil, an Input, a [models.Identifiable], a slice of identifiables, a []Pair,
// a slice of scalars, or a single scalar. A slice whose elements are all identifiables,
// typed or []any, becomes [RelatedEntities]. Other values yield a [*NormalizationError].
func FromValue(v any) (Input, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case Input:
		return val, nil
	case models.Identifiable:
		return RelatedEntity{Entity: val}, nil
	case []models.Identifiable:
		return RelatedEntities(val), nil
	case []Pair:
		return IdentifierMap(val), nil
	}

	if _, err := models.CanonicalID(v); err == nil {
		return Scalar{ID: v}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		list := make(ScalarList, rv.Len())
		entities := make(RelatedEntities, 0, rv.Len())
		for i := range rv.Len() {
			elem := rv.Index(i).Interface()
			list[i] = elem
			if e, ok := elem.(models.Identifiable); ok {
				entities = append(entities, e)
			}
		}
		if rv.Len() > 0 && len(entities) == rv.Len() {
			return entities, nil
		}
		return list, nil
	}

	return nil, &NormalizationError{Index: -1, Value: v, Reason: fmt.Sprintf("unsupported input type %T", v)}
}
