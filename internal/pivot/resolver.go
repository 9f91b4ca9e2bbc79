package pivot

import "github.com/AraneaDev/eventually/internal/models"

// ResolveImplicit substitutes the currently related ids when explicit is absent.
//
// current is only called for a nil explicit input. Its error is returned unchanged;
// an empty result resolves to an empty [ScalarList].
func ResolveImplicit(explicit Input, current func() ([]models.RelatedID, error)) (Input, error) {
	if explicit != nil {
		return explicit, nil
	}

	ids, err := current()
	if err != nil {
		return nil, err
	}

	return IDs(ids...), nil
}
