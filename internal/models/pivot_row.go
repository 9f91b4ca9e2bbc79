package models

import (
	"fmt"
	"time"
)

// PivotRow is one persisted edge between an owner and a related entity.
//
// Owners are addressed by (ownerType, ownerKey) so one table serves polymorphic owners.
type PivotRow struct {
	id         string
	sequence   int
	relation   string
	ownerType  string
	ownerKey   string
	related    RelatedID
	attributes Attributes
	createdAt  time.Time
	updatedAt  time.Time
}

// NewPivotRow creates a [PivotRow] stamped with the current time.
func NewPivotRow(sequence int, relation, ownerType, ownerKey string, related RelatedID, attrs Attributes) *PivotRow {
	now := time.Now()
	return &PivotRow{
		sequence:   sequence,
		relation:   relation,
		ownerType:  ownerType,
		ownerKey:   ownerKey,
		related:    related,
		attributes: attrs.Clone(),
		createdAt:  now,
		updatedAt:  now,
	}
}

func (p *PivotRow) ID() string             { return p.id }
func (p *PivotRow) Sequence() int          { return p.sequence }
func (p *PivotRow) Relation() string       { return p.relation }
func (p *PivotRow) OwnerType() string      { return p.ownerType }
func (p *PivotRow) OwnerKey() string       { return p.ownerKey }
func (p *PivotRow) Related() RelatedID     { return p.related }
func (p *PivotRow) Attributes() Attributes { return p.attributes.Clone() }
func (p *PivotRow) CreatedAt() time.Time   { return p.createdAt }
func (p *PivotRow) UpdatedAt() time.Time   { return p.updatedAt }

func (p *PivotRow) SetID(id string)                { p.id = id }
func (p *PivotRow) SetAttributes(attrs Attributes) { p.attributes = attrs.Clone() }
func (p *PivotRow) SetCreatedAt(t time.Time)       { p.createdAt = t }
func (p *PivotRow) SetUpdatedAt(t time.Time)       { p.updatedAt = t }

// Validate checks that the row addresses a relation, an owner and a canonical related id.
func (p *PivotRow) Validate() error {
	if p.relation == "" {
		return fmt.Errorf("relation is required")
	}
	if p.ownerType == "" || p.ownerKey == "" {
		return fmt.Errorf("owner type and key are required")
	}
	if _, err := CanonicalID(p.related); err != nil {
		return fmt.Errorf("invalid related id: %w", err)
	}
	return nil
}
