package pivot

// Outcome is the result of a mutation: either a completed store result or a cancellation.
type Outcome[T any] struct {
	value     T
	cancelled bool
}

// Completed wraps a successful store result.
func Completed[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// CancelledOutcome marks a mutation vetoed by a before-event listener.
func CancelledOutcome[T any]() Outcome[T] {
	return Outcome[T]{cancelled: true}
}

// Cancelled reports whether a listener vetoed the mutation.
func (o Outcome[T]) Cancelled() bool { return o.cancelled }

// Value returns the store result; ok is false when the mutation was cancelled.
func (o Outcome[T]) Value() (v T, ok bool) {
	return o.value, !o.cancelled
}

// Any returns the store result as an untyped value, or nil when cancelled.
func (o Outcome[T]) Any() any {
	if o.cancelled {
		return nil
	}
	return o.value
}
