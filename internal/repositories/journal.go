package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/shared"
)

// JournalRepository implements models.Repository[*models.JournalEntry] for the pivot event journal.
//
// Handles journal entry CRUD operations with soft delete support and criteria-based queries.
type JournalRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.JournalEntry] = (*JournalRepository)(nil)

// NewJournalRepository creates a new JournalRepository with the given database connection
func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// storedTarget is the persisted form of a [models.TargetEntry]; the type tag lets ids decode to their Go type.
type storedTarget struct {
	Key        string            `json:"key"`
	Type       string            `json:"type"`
	Attributes models.Attributes `json:"attributes"`
}

// Create inserts a new journal entry into the database with generated ID and sequence
func (r *JournalRepository) Create(entry *models.JournalEntry) error {
	sequence, err := NextSequence(r.db, "pivot_journal")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	entry.SetID(id)
	entry.SetSequence(sequence)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	targets, err := encodeTargets(entry.Targets())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pivot_journal (
			id, sequence, event, kind, relation, owner_type, owner_key,
			targets, status, error_message, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errorMessage any = entry.ErrorMessage()
	if errorMessage == "" {
		errorMessage = nil
	}

	_, err = r.db.Exec(query,
		id,
		sequence,
		entry.Event(),
		entry.Kind(),
		entry.Relation(),
		entry.OwnerType(),
		entry.OwnerKey(),
		targets,
		entry.Status(),
		errorMessage,
		entry.CreatedAt(),
		entry.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	return nil
}

// Get retrieves a journal entry by ID, excluding soft-deleted entries
func (r *JournalRepository) Get(id string) (*models.JournalEntry, error) {
	query := `
		SELECT
			id, sequence, event, kind, relation, owner_type, owner_key,
			targets, status, error_message, created_at, updated_at, deleted_at
		FROM pivot_journal
		WHERE id = ? AND deleted_at IS NULL
	`

	return r.scan(r.db.QueryRow(query, id))
}

// Update modifies the status and error message of an existing journal entry
func (r *JournalRepository) Update(entry *models.JournalEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	entry.SetUpdatedAt(now)

	query := `
		UPDATE pivot_journal
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	var errorMessage any = entry.ErrorMessage()
	if errorMessage == "" {
		errorMessage = nil
	}

	result, err := r.db.Exec(query, entry.Status(), errorMessage, now, entry.ID())
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}

	rows, err := affected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: journal entry %s", shared.ErrNotFound, entry.ID())
	}

	return nil
}

// Delete soft-deletes a journal entry by ID
func (r *JournalRepository) Delete(id string) error {
	query := `
		UPDATE pivot_journal
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete journal entry: %w", err)
	}

	rows, err := affected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: journal entry %s", shared.ErrNotFound, id)
	}

	return nil
}

// Prune soft-deletes every entry created before cutoff and returns how many were removed.
func (r *JournalRepository) Prune(cutoff time.Time) (int, error) {
	query := `
		UPDATE pivot_journal
		SET deleted_at = ?
		WHERE created_at < ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return affected(result)
}

// List retrieves journal entries matching the given criteria, excluding soft-deleted entries.
//
// Supported criteria: relation, kind, status, owner_type, owner_key (strings) and limit (int).
func (r *JournalRepository) List(criteria map[string]any) ([]*models.JournalEntry, error) {
	query := `
		SELECT
			id, sequence, event, kind, relation, owner_type, owner_key,
			targets, status, error_message, created_at, updated_at, deleted_at
		FROM pivot_journal
		WHERE deleted_at IS NULL
	`

	args := []any{}

	for _, column := range []string{"relation", "kind", "status", "owner_type", "owner_key"} {
		if v, ok := criteria[column].(string); ok && v != "" {
			query += " AND " + column + " = ?"
			args = append(args, v)
		}
	}

	query += " ORDER BY sequence ASC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []*models.JournalEntry
	for rows.Next() {
		entry, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// scan reads one journal row into a [models.JournalEntry]
func (r *JournalRepository) scan(row scanner) (*models.JournalEntry, error) {
	var (
		id           string
		sequence     int
		event        string
		kind         string
		relation     string
		ownerType    string
		ownerKey     string
		targets      string
		status       string
		errorMessage sql.NullString
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &event, &kind, &relation, &ownerType, &ownerKey,
		&targets, &status, &errorMessage, &createdAt, &updatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: journal entry", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal entry: %w", err)
	}

	decoded, err := decodeTargets(targets)
	if err != nil {
		return nil, err
	}

	entry := models.NewJournalEntry(sequence, event, kind, relation, ownerType, ownerKey, nil)
	entry.SetID(id)
	entry.SetTargets(decoded)
	entry.SetStatus(status)
	if errorMessage.Valid {
		entry.SetErrorMessage(errorMessage.String)
	}
	entry.SetCreatedAt(createdAt)
	entry.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		entry.SetDeletedAt(&deletedAt.Time)
	}

	return entry, nil
}

func encodeTargets(entries []models.TargetEntry) (string, error) {
	stored := make([]storedTarget, len(entries))
	for i, e := range entries {
		key, typ, err := models.EncodeID(e.ID)
		if err != nil {
			return "", fmt.Errorf("failed to encode target id: %w", err)
		}
		stored[i] = storedTarget{Key: key, Type: typ, Attributes: e.Attributes}
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode targets: %w", err)
	}
	return string(raw), nil
}

func decodeTargets(raw string) ([]models.TargetEntry, error) {
	var stored []storedTarget
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode targets: %w", err)
	}

	entries := make([]models.TargetEntry, len(stored))
	for i, s := range stored {
		id, err := models.DecodeID(s.Key, s.Type)
		if err != nil {
			return nil, err
		}
		attrs := s.Attributes
		if attrs == nil {
			attrs = models.Attributes{}
		}
		entries[i] = models.TargetEntry{ID: id, Attributes: attrs}
	}
	return entries, nil
}
