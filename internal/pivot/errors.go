package pivot

import (
	"fmt"

	"github.com/AraneaDev/eventually/internal/shared"
)

// NormalizationError reports caller input that cannot be resolved to identifiers.
//
// Index is the position of the offending element within a collection, or -1 for the input as a whole.
type NormalizationError struct {
	Index  int
	Value  any
	Reason string
}

func (e *NormalizationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("normalize pivot input: element %d (%v): %s", e.Index, e.Value, e.Reason)
	}
	return fmt.Sprintf("normalize pivot input: %s", e.Reason)
}

func (e *NormalizationError) Is(target error) bool {
	return target == shared.ErrInvalidInput
}
