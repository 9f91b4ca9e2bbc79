package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/shared"
)

// PivotRepository implements [pivot.Store] for one relation of one owner.
//
// Every mutation runs in a single transaction. Touching stamps the owner's row in the
// owners table, and only happens when the relation is configured to touch.
type PivotRepository struct {
	db        *sql.DB
	relation  string
	ownerType string
	ownerKey  string
	touches   bool
}

var _ pivot.Store = (*PivotRepository)(nil)

// NewPivotRepository creates a [PivotRepository] for relation of owner.
func NewPivotRepository(db *sql.DB, relation string, owner models.Identifiable, touches bool) (*PivotRepository, error) {
	if owner == nil {
		return nil, fmt.Errorf("%w: owner is required", shared.ErrInvalidArgument)
	}
	if relation == "" {
		return nil, fmt.Errorf("%w: relation is required", shared.ErrInvalidArgument)
	}

	key, _, err := models.EncodeID(owner.Key())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid owner key: %v", shared.ErrInvalidArgument, err)
	}

	return &PivotRepository{
		db:        db,
		relation:  relation,
		ownerType: models.MorphTypeOf(owner),
		ownerKey:  key,
		touches:   touches,
	}, nil
}

// current is the persisted state of one related id.
type current struct {
	id    string
	attrs models.Attributes
}

// Attach inserts one row per normalized target. An already related id fails the whole call.
func (r *PivotRepository) Attach(in pivot.Input, attrs models.Attributes, touch bool) error {
	targets, err := pivot.Normalize(in, attrs)
	if err != nil {
		return err
	}

	return r.inTx(func(tx *sql.Tx) error {
		for id, a := range targets.All() {
			if err := r.insert(tx, id, a); err != nil {
				return err
			}
		}
		if touch {
			return r.touchOwner(tx)
		}
		return nil
	})
}

// Detach deletes rows for the ids of in, or every row of the relation when in is nil.
func (r *PivotRepository) Detach(in pivot.Input, touch bool) (int, error) {
	var detached int

	err := r.inTx(func(tx *sql.Tx) error {
		var err error
		if in == nil {
			detached, err = r.deleteAll(tx)
		} else {
			var targets *models.Targets
			targets, err = pivot.Normalize(in, nil)
			if err != nil {
				return err
			}
			detached, err = r.deleteIDs(tx, targets.IDs())
		}
		if err != nil {
			return err
		}
		if touch {
			return r.touchOwner(tx)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return detached, nil
}

// Sync makes the related set match in. Existing rows whose attributes change are reported as updated.
func (r *PivotRepository) Sync(in pivot.Input, detaching bool) (models.Changes, error) {
	targets, err := pivot.Normalize(in, nil)
	if err != nil {
		return models.Changes{}, err
	}

	changes := models.NewChanges()
	err = r.inTx(func(tx *sql.Tx) error {
		existing, order, err := r.load(tx)
		if err != nil {
			return err
		}

		if detaching {
			var stale []models.RelatedID
			for _, id := range order {
				if !targets.Has(id) {
					stale = append(stale, id)
				}
			}
			if _, err := r.deleteIDs(tx, stale); err != nil {
				return err
			}
			changes.Detached = append(changes.Detached, stale...)
		}

		for id, attrs := range targets.All() {
			row, ok := existing[id]
			if !ok {
				if err := r.insert(tx, id, attrs); err != nil {
					return err
				}
				changes.Attached = append(changes.Attached, id)
				continue
			}

			if len(attrs) == 0 {
				continue
			}
			merged := row.attrs.Merge(attrs)
			if merged.Equal(row.attrs) {
				continue
			}
			if err := r.updateAttributes(tx, row.id, merged); err != nil {
				return err
			}
			changes.Updated = append(changes.Updated, id)
		}

		if !changes.Empty() {
			return r.touchOwner(tx)
		}
		return nil
	})
	if err != nil {
		return models.Changes{}, err
	}

	return changes, nil
}

// Toggle detaches the related ids of in and attaches the rest with their attributes.
func (r *PivotRepository) Toggle(in pivot.Input, touch bool) (models.Changes, error) {
	targets, err := pivot.Normalize(in, nil)
	if err != nil {
		return models.Changes{}, err
	}

	changes := models.NewChanges()
	err = r.inTx(func(tx *sql.Tx) error {
		existing, _, err := r.load(tx)
		if err != nil {
			return err
		}

		for id, attrs := range targets.All() {
			if _, ok := existing[id]; ok {
				changes.Detached = append(changes.Detached, id)
				continue
			}
			if err := r.insert(tx, id, attrs); err != nil {
				return err
			}
			changes.Attached = append(changes.Attached, id)
		}

		if _, err := r.deleteIDs(tx, changes.Detached); err != nil {
			return err
		}

		if touch && !changes.Empty() {
			return r.touchOwner(tx)
		}
		return nil
	})
	if err != nil {
		return models.Changes{}, err
	}

	return changes, nil
}

// UpdateExistingPivot merges attributes into rows that already exist and returns how many were updated.
func (r *PivotRepository) UpdateExistingPivot(in pivot.Input, attrs models.Attributes, touch bool) (int, error) {
	targets, err := pivot.Normalize(in, attrs)
	if err != nil {
		return 0, err
	}

	var updated int
	err = r.inTx(func(tx *sql.Tx) error {
		existing, _, err := r.load(tx)
		if err != nil {
			return err
		}

		for id, a := range targets.All() {
			row, ok := existing[id]
			if !ok {
				continue
			}
			if err := r.updateAttributes(tx, row.id, row.attrs.Merge(a)); err != nil {
				return err
			}
			updated++
		}

		if touch && updated > 0 {
			return r.touchOwner(tx)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}

// CurrentRelatedIDs returns the related ids of the relation in attach order.
func (r *PivotRepository) CurrentRelatedIDs() ([]models.RelatedID, error) {
	rows, err := r.Rows()
	if err != nil {
		return nil, err
	}

	ids := make([]models.RelatedID, len(rows))
	for i, row := range rows {
		ids[i] = row.Related()
	}
	return ids, nil
}

// Rows lists the pivot rows of the relation in attach order.
func (r *PivotRepository) Rows() ([]*models.PivotRow, error) {
	query := `
		SELECT id, sequence, related_key, related_type, attributes, created_at, updated_at
		FROM pivots
		WHERE relation = ? AND owner_type = ? AND owner_key = ?
		ORDER BY sequence ASC
	`

	rows, err := r.db.Query(query, r.relation, r.ownerType, r.ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query pivots: %w", err)
	}
	defer rows.Close()

	var pivots []*models.PivotRow
	for rows.Next() {
		row, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		pivots = append(pivots, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return pivots, nil
}

// TouchedAt returns when the owner was last touched; ok is false if it never was.
func (r *PivotRepository) TouchedAt() (t time.Time, ok bool, err error) {
	query := `SELECT updated_at FROM owners WHERE owner_type = ? AND owner_key = ?`

	err = r.db.QueryRow(query, r.ownerType, r.ownerKey).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read owner timestamp: %w", err)
	}
	return t, true, nil
}

func (r *PivotRepository) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pivot transaction: %w", err)
	}
	return nil
}

// load reads the relation's rows keyed by related id, plus the ids in attach order.
func (r *PivotRepository) load(tx *sql.Tx) (map[models.RelatedID]current, []models.RelatedID, error) {
	query := `
		SELECT id, related_key, related_type, attributes
		FROM pivots
		WHERE relation = ? AND owner_type = ? AND owner_key = ?
		ORDER BY sequence ASC
	`

	rows, err := tx.Query(query, r.relation, r.ownerType, r.ownerKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query pivots: %w", err)
	}
	defer rows.Close()

	existing := make(map[models.RelatedID]current)
	var order []models.RelatedID
	for rows.Next() {
		var id, key, typ, raw string
		if err := rows.Scan(&id, &key, &typ, &raw); err != nil {
			return nil, nil, fmt.Errorf("failed to scan pivot: %w", err)
		}
		related, err := models.DecodeID(key, typ)
		if err != nil {
			return nil, nil, err
		}
		attrs, err := decodeAttributes(raw)
		if err != nil {
			return nil, nil, err
		}
		existing[related] = current{id: id, attrs: attrs}
		order = append(order, related)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("row iteration error: %w", err)
	}

	return existing, order, nil
}

func (r *PivotRepository) insert(tx *sql.Tx, related models.RelatedID, attrs models.Attributes) error {
	sequence, err := nextSequenceTx(tx, "pivots")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	row := models.NewPivotRow(sequence, r.relation, r.ownerType, r.ownerKey, related, attrs)
	row.SetID(shared.GenerateID())

	if err := row.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	key, typ, err := models.EncodeID(related)
	if err != nil {
		return fmt.Errorf("failed to encode related id: %w", err)
	}

	raw, err := json.Marshal(row.Attributes())
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	query := `
		INSERT INTO pivots (
			id, sequence, relation, owner_type, owner_key,
			related_key, related_type, attributes, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		row.ID(), row.Sequence(), r.relation, r.ownerType, r.ownerKey,
		key, typ, string(raw), row.CreatedAt(), row.UpdatedAt(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: %v is already attached to %s", shared.ErrAlreadyExists, related, r.relation)
		}
		return fmt.Errorf("failed to attach %v: %w", related, err)
	}

	return nil
}

func (r *PivotRepository) updateAttributes(tx *sql.Tx, id string, attrs models.Attributes) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	_, err = tx.Exec(`UPDATE pivots SET attributes = ?, updated_at = ? WHERE id = ?`, string(raw), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update pivot: %w", err)
	}
	return nil
}

func (r *PivotRepository) deleteAll(tx *sql.Tx) (int, error) {
	query := `DELETE FROM pivots WHERE relation = ? AND owner_type = ? AND owner_key = ?`

	result, err := tx.Exec(query, r.relation, r.ownerType, r.ownerKey)
	if err != nil {
		return 0, fmt.Errorf("failed to detach pivots: %w", err)
	}
	return affected(result)
}

func (r *PivotRepository) deleteIDs(tx *sql.Tx, ids []models.RelatedID) (int, error) {
	query := `
		DELETE FROM pivots
		WHERE relation = ? AND owner_type = ? AND owner_key = ? AND related_key = ? AND related_type = ?
	`

	var total int
	for _, id := range ids {
		key, typ, err := models.EncodeID(id)
		if err != nil {
			return 0, fmt.Errorf("failed to encode related id: %w", err)
		}

		result, err := tx.Exec(query, r.relation, r.ownerType, r.ownerKey, key, typ)
		if err != nil {
			return 0, fmt.Errorf("failed to detach %v: %w", id, err)
		}
		n, err := affected(result)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (r *PivotRepository) touchOwner(tx execer) error {
	if !r.touches {
		return nil
	}

	query := `
		INSERT INTO owners (owner_type, owner_key, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_type, owner_key) DO UPDATE SET updated_at = excluded.updated_at
	`

	now := time.Now()
	if _, err := tx.Exec(query, r.ownerType, r.ownerKey, now, now); err != nil {
		return fmt.Errorf("failed to touch owner: %w", err)
	}
	return nil
}

// scanRow scans a row from [sql.Rows] into a [models.PivotRow]
func (r *PivotRepository) scanRow(rows *sql.Rows) (*models.PivotRow, error) {
	var (
		id        string
		sequence  int
		key       string
		typ       string
		raw       string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := rows.Scan(&id, &sequence, &key, &typ, &raw, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan pivot: %w", err)
	}

	related, err := models.DecodeID(key, typ)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeAttributes(raw)
	if err != nil {
		return nil, err
	}

	row := models.NewPivotRow(sequence, r.relation, r.ownerType, r.ownerKey, related, attrs)
	row.SetID(id)
	row.SetCreatedAt(createdAt)
	row.SetUpdatedAt(updatedAt)

	return row, nil
}

func decodeAttributes(raw string) (models.Attributes, error) {
	attrs := models.Attributes{}
	if raw == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return attrs, nil
}

func affected(result sql.Result) (int, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}
