package models

import (
	"fmt"
	"time"
)

// Journal entry statuses
const (
	JournalCommitted = "committed"
	JournalFailed    = "failed"
)

// JournalEntry records one pivot event observed on the event bus.
type JournalEntry struct {
	id           string
	sequence     int
	event        string
	kind         string
	relation     string
	ownerType    string
	ownerKey     string
	targets      []TargetEntry
	status       string
	errorMessage string
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewJournalEntry creates a committed [JournalEntry] stamped with the current time.
func NewJournalEntry(sequence int, event, kind, relation, ownerType, ownerKey string, targets *Targets) *JournalEntry {
	now := time.Now()
	return &JournalEntry{
		sequence:  sequence,
		event:     event,
		kind:      kind,
		relation:  relation,
		ownerType: ownerType,
		ownerKey:  ownerKey,
		targets:   targets.Entries(),
		status:    JournalCommitted,
		createdAt: now,
		updatedAt: now,
	}
}

func (j *JournalEntry) ID() string             { return j.id }
func (j *JournalEntry) Sequence() int          { return j.sequence }
func (j *JournalEntry) Event() string          { return j.event }
func (j *JournalEntry) Kind() string           { return j.kind }
func (j *JournalEntry) Relation() string       { return j.relation }
func (j *JournalEntry) OwnerType() string      { return j.ownerType }
func (j *JournalEntry) OwnerKey() string       { return j.ownerKey }
func (j *JournalEntry) Targets() []TargetEntry { return j.targets }
func (j *JournalEntry) Status() string         { return j.status }
func (j *JournalEntry) ErrorMessage() string   { return j.errorMessage }
func (j *JournalEntry) CreatedAt() time.Time   { return j.createdAt }
func (j *JournalEntry) UpdatedAt() time.Time   { return j.updatedAt }
func (j *JournalEntry) DeletedAt() *time.Time  { return j.deletedAt }

func (j *JournalEntry) SetID(id string)                  { j.id = id }
func (j *JournalEntry) SetSequence(s int)                { j.sequence = s }
func (j *JournalEntry) SetTargets(entries []TargetEntry) { j.targets = entries }
func (j *JournalEntry) SetStatus(status string)          { j.status = status }
func (j *JournalEntry) SetErrorMessage(msg string)       { j.errorMessage = msg }
func (j *JournalEntry) SetCreatedAt(t time.Time)         { j.createdAt = t }
func (j *JournalEntry) SetUpdatedAt(t time.Time)         { j.updatedAt = t }
func (j *JournalEntry) SetDeletedAt(t *time.Time)        { j.deletedAt = t }

// Validate checks required fields and the status value.
func (j *JournalEntry) Validate() error {
	if j.event == "" || j.kind == "" {
		return fmt.Errorf("event and kind are required")
	}
	if j.relation == "" {
		return fmt.Errorf("relation is required")
	}
	switch j.status {
	case JournalCommitted:
	case JournalFailed:
		if j.errorMessage == "" {
			return fmt.Errorf("failed entries require an error message")
		}
	default:
		return fmt.Errorf("invalid status: %q", j.status)
	}
	return nil
}
