package pivot

// Kind identifies one of the five pivot mutations.
type Kind int

const (
	KindAttach Kind = iota
	KindDetach
	KindSync
	KindToggle
	KindUpdateExistingPivot
)

// Kinds lists every mutation kind in declaration order.
var Kinds = []Kind{KindAttach, KindDetach, KindSync, KindToggle, KindUpdateExistingPivot}

type eventNames struct {
	op, before, after, failed string
}

var kindEvents = map[Kind]eventNames{
	KindAttach:              {"attach", "attaching", "attached", "attachFailed"},
	KindDetach:              {"detach", "detaching", "detached", "detachFailed"},
	KindSync:                {"sync", "syncing", "synced", "syncFailed"},
	KindToggle:              {"toggle", "toggling", "toggled", "toggleFailed"},
	KindUpdateExistingPivot: {"updateExistingPivot", "updatingExistingPivot", "existingPivotUpdated", "updateExistingPivotFailed"},
}

func (k Kind) String() string { return kindEvents[k].op }

// Before is the halting event fired ahead of the store call.
func (k Kind) Before() string { return kindEvents[k].before }

// After is the event fired once the store call succeeded.
func (k Kind) After() string { return kindEvents[k].after }

// Failed is the event fired when the store call returned an error.
func (k Kind) Failed() string { return kindEvents[k].failed }

// ParseKind resolves an operation name ("attach", "update", ...) to a [Kind].
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "update", "update-existing", "updateExisting":
		return KindUpdateExistingPivot, true
	}
	for _, k := range Kinds {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}
