package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// RelatedID is the canonical key of a related entity.
//
// Only three dynamic types are ever stored: int64, non-empty string and [uuid.UUID].
// Use [CanonicalID] to turn caller values into one of them.
type RelatedID any

// Identifiable is anything that can be attached to a relation by its key.
type Identifiable interface {
	Key() RelatedID
}

// Morphable is implemented by entities that carry their own morph type name.
type Morphable interface {
	MorphType() string
}

// Ref is a lightweight [Identifiable] pairing a morph type with an id.
type Ref struct {
	Type string
	ID   RelatedID
}

func (r Ref) Key() RelatedID    { return r.ID }
func (r Ref) MorphType() string { return r.Type }
func (r Ref) String() string    { return fmt.Sprintf("%s#%v", r.Type, r.ID) }

// MorphTypeOf returns the morph type of e, falling back to its Go type name.
func MorphTypeOf(e Identifiable) string {
	if m, ok := e.(Morphable); ok && m.MorphType() != "" {
		return m.MorphType()
	}
	return fmt.Sprintf("%T", e)
}

// Identifier type tags used by the storage layer.
const (
	IDTypeInt    = "int"
	IDTypeString = "string"
	IDTypeUUID   = "uuid"
)

// CanonicalID converts v into a [RelatedID].
//
// Every integer type collapses to int64 so that 1, int32(1) and uint8(1) address the same row.
func CanonicalID(v any) (RelatedID, error) {
	switch id := v.(type) {
	case int:
		return int64(id), nil
	case int8:
		return int64(id), nil
	case int16:
		return int64(id), nil
	case int32:
		return int64(id), nil
	case int64:
		return id, nil
	case uint:
		return uintID(uint64(id))
	case uint8:
		return int64(id), nil
	case uint16:
		return int64(id), nil
	case uint32:
		return int64(id), nil
	case uint64:
		return uintID(id)
	case string:
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("empty string identifier")
		}
		return id, nil
	case uuid.UUID:
		if id == uuid.Nil {
			return nil, fmt.Errorf("nil uuid identifier")
		}
		return id, nil
	case nil:
		return nil, fmt.Errorf("nil identifier")
	default:
		return nil, fmt.Errorf("unsupported identifier type %T", v)
	}
}

func uintID(v uint64) (RelatedID, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("identifier %d overflows int64", v)
	}
	return int64(v), nil
}

// ParseID interprets textual input as an identifier: integers first, then UUIDs, then plain strings.
func ParseID(s string) RelatedID {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if u, err := uuid.Parse(s); err == nil {
		return u
	}
	return s
}

// EncodeID returns the storage key and type tag for a canonical id.
func EncodeID(id RelatedID) (key, typ string, err error) {
	canonical, err := CanonicalID(id)
	if err != nil {
		return "", "", err
	}
	switch v := canonical.(type) {
	case int64:
		return strconv.FormatInt(v, 10), IDTypeInt, nil
	case uuid.UUID:
		return v.String(), IDTypeUUID, nil
	default:
		return v.(string), IDTypeString, nil
	}
}

// DecodeID reverses [EncodeID].
func DecodeID(key, typ string) (RelatedID, error) {
	switch typ {
	case IDTypeInt:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int identifier %q: %w", key, err)
		}
		return n, nil
	case IDTypeUUID:
		u, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid identifier %q: %w", key, err)
		}
		return u, nil
	case IDTypeString:
		return key, nil
	default:
		return nil, fmt.Errorf("unknown identifier type %q", typ)
	}
}
