package pivot

import (
	"fmt"

	"github.com/AraneaDev/eventually/internal/models"
)

// Normalize converts in into [models.Targets] keyed by canonical ids in caller order.
//
// Every entry receives defaults, except [IdentifierMap] pairs carrying their own attributes,
// which are merged on top of defaults. Duplicate ids keep their first position and their last attributes.
// Normalize performs no I/O.
func Normalize(in Input, defaults models.Attributes) (*models.Targets, error) {
	targets := models.NewTargets()

	switch v := in.(type) {
	case nil:
	case RelatedEntity:
		id, err := entityKey(v.Entity, -1)
		if err != nil {
			return nil, err
		}
		targets.Set(id, defaults)
	case RelatedEntities:
		for i, e := range v {
			id, err := entityKey(e, i)
			if err != nil {
				return nil, err
			}
			targets.Set(id, defaults)
		}
	case Scalar:
		id, err := canonical(v.ID, -1)
		if err != nil {
			return nil, err
		}
		targets.Set(id, defaults)
	case ScalarList:
		for i, raw := range v {
			id, err := canonical(raw, i)
			if err != nil {
				return nil, err
			}
			targets.Set(id, defaults)
		}
	case IdentifierMap:
		for i, pair := range v {
			id, err := canonical(pair.ID, i)
			if err != nil {
				return nil, err
			}
			if pair.Attributes == nil {
				targets.Set(id, defaults)
				continue
			}
			targets.Set(id, defaults.Merge(pair.Attributes))
		}
	default:
		return nil, &NormalizationError{Index: -1, Value: in, Reason: fmt.Sprintf("unsupported input type %T", in)}
	}

	return targets, nil
}

func canonical(raw any, index int) (models.RelatedID, error) {
	id, err := models.CanonicalID(raw)
	if err != nil {
		return nil, &NormalizationError{Index: index, Value: raw, Reason: err.Error()}
	}
	return id, nil
}

func entityKey(e models.Identifiable, index int) (models.RelatedID, error) {
	if e == nil {
		return nil, &NormalizationError{Index: index, Reason: "nil related entity"}
	}
	return canonical(e.Key(), index)
}
