package pivot

import "github.com/AraneaDev/eventually/internal/models"

// Store performs pivot mutations against persistent storage for one owner and relation.
//
// Implementations receive the caller's original [Input]; a nil input to Detach means every related entity.
type Store interface {
	Attach(in Input, attributes models.Attributes, touch bool) error
	Detach(in Input, touch bool) (int, error)
	Sync(in Input, detaching bool) (models.Changes, error)
	Toggle(in Input, touch bool) (models.Changes, error)
	UpdateExistingPivot(in Input, attributes models.Attributes, touch bool) (int, error)
	CurrentRelatedIDs() ([]models.RelatedID, error)
}
