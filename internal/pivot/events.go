package pivot

import "github.com/AraneaDev/eventually/internal/models"

// Verdict is a listener's answer to a halting dispatch.
type Verdict int

const (
	Continue Verdict = iota
	Veto
)

// Payload is the snapshot handed to listeners.
//
// Each listener receives its own copy of Targets; Err is only set on failed events.
type Payload struct {
	Event    string
	Kind     Kind
	Owner    models.Identifiable
	Relation string
	Targets  *models.Targets
	Err      error
}

// Clone returns a copy of p whose Targets are not shared.
func (p Payload) Clone() Payload {
	p.Targets = p.Targets.Clone()
	return p
}

// Listener reacts to a dispatched event. Its verdict only matters for halting dispatches.
type Listener func(Payload) Verdict

// Observe adapts a function that never vetoes into a [Listener].
func Observe(fn func(Payload)) Listener {
	return func(p Payload) Verdict {
		fn(p)
		return Continue
	}
}

// DispatchOutcome reports whether a halting dispatch was stopped by a [Veto].
type DispatchOutcome struct {
	Halted bool
}

// EventBus delivers events synchronously to listeners in registration order.
//
// With halt set, delivery stops at the first [Veto] and the outcome is Halted.
type EventBus interface {
	Dispatch(name string, payload Payload, halt bool) DispatchOutcome
}

// NopBus is an [EventBus] without listeners.
type NopBus struct{}

func (NopBus) Dispatch(string, Payload, bool) DispatchOutcome { return DispatchOutcome{} }
