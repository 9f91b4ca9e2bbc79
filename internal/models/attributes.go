package models

import (
	"bytes"
	"encoding/json"
	"iter"
	"maps"
)

// Attributes holds pivot columns (e.g. {"liked": true}) to set on a row.
type Attributes map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	maps.Copy(out, a)
	return out
}

// Merge returns a new map with a's entries overlaid by over's; over wins on conflicts.
func (a Attributes) Merge(over Attributes) Attributes {
	out := a.Clone()
	maps.Copy(out, over)
	return out
}

// Equal reports whether a and b hold the same keys with equal JSON representations.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// TargetEntry is one (id, attributes) pair of [Targets].
type TargetEntry struct {
	ID         RelatedID  `json:"id"`
	Attributes Attributes `json:"attributes"`
}

// Targets is an insertion-ordered mapping of [RelatedID] to [Attributes].
//
// Keys are unique: setting an existing key replaces its attributes but keeps its original position.
// Methods are safe to call on a nil *Targets, which behaves as an empty set.
type Targets struct {
	order []RelatedID
	attrs map[RelatedID]Attributes
}

// NewTargets creates an empty [Targets].
func NewTargets() *Targets {
	return &Targets{attrs: make(map[RelatedID]Attributes)}
}

// Set stores a copy of attrs under id.
func (t *Targets) Set(id RelatedID, attrs Attributes) {
	if _, ok := t.attrs[id]; !ok {
		t.order = append(t.order, id)
	}
	t.attrs[id] = attrs.Clone()
}

// Get returns the attributes stored for id.
func (t *Targets) Get(id RelatedID) (Attributes, bool) {
	if t == nil {
		return nil, false
	}
	a, ok := t.attrs[id]
	return a, ok
}

func (t *Targets) Has(id RelatedID) bool {
	_, ok := t.Get(id)
	return ok
}

func (t *Targets) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// IDs returns the keys in insertion order.
func (t *Targets) IDs() []RelatedID {
	if t == nil {
		return []RelatedID{}
	}
	out := make([]RelatedID, len(t.order))
	copy(out, t.order)
	return out
}

// All iterates over the entries in insertion order.
func (t *Targets) All() iter.Seq2[RelatedID, Attributes] {
	return func(yield func(RelatedID, Attributes) bool) {
		if t == nil {
			return
		}
		for _, id := range t.order {
			if !yield(id, t.attrs[id]) {
				return
			}
		}
	}
}

// Entries returns the entries in insertion order as a slice.
func (t *Targets) Entries() []TargetEntry {
	out := make([]TargetEntry, 0, t.Len())
	for id, attrs := range t.All() {
		out = append(out, TargetEntry{ID: id, Attributes: attrs})
	}
	return out
}

// Clone returns a deep copy; the attribute maps are not shared with t.
func (t *Targets) Clone() *Targets {
	out := NewTargets()
	for id, attrs := range t.All() {
		out.Set(id, attrs)
	}
	return out
}

// MarshalJSON encodes the targets as an ordered list of entries.
func (t *Targets) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Entries())
}

// Changes reports the ids touched by a sync or toggle.
type Changes struct {
	Attached []RelatedID `json:"attached"`
	Detached []RelatedID `json:"detached"`
	Updated  []RelatedID `json:"updated"`
}

// NewChanges returns a [Changes] with empty, non-nil lists.
func NewChanges() Changes {
	return Changes{
		Attached: []RelatedID{},
		Detached: []RelatedID{},
		Updated:  []RelatedID{},
	}
}

// Empty reports whether nothing was attached, detached or updated.
func (c Changes) Empty() bool {
	return len(c.Attached) == 0 && len(c.Detached) == 0 && len(c.Updated) == 0
}
