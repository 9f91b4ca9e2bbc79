package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AraneaDev/eventually/internal/formatter"
	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/repositories"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/AraneaDev/eventually/internal/tasks"
	"github.com/urfave/cli/v3"
)

// target is the owner and relation addressed by a pivot subcommand.
type target struct {
	owner    models.Ref
	relation string
}

// resolveTarget reads --relation, --owner and --owner-type, defaulting the owner type from config.
func (r *Runner) resolveTarget(cmd *cli.Command) (target, error) {
	relation := cmd.String("relation")
	ownerID := cmd.String("owner")
	if relation == "" || ownerID == "" {
		return target{}, fmt.Errorf("%w: --relation and --owner are required", shared.ErrMissingArgument)
	}
	if len(r.config.Relations) == 0 {
		return target{}, fmt.Errorf("%w: no relations declared", shared.ErrMissingConfig)
	}

	rel, err := r.config.Relation(relation, cmd.String("owner-type"))
	if err != nil {
		return target{}, err
	}

	return target{
		owner:    models.Ref{Type: rel.OwnerType, ID: models.ParseID(ownerID)},
		relation: rel.Name,
	}, nil
}

// idsInput converts --id values into an input; no ids yields nil.
func idsInput(cmd *cli.Command) (pivot.Input, error) {
	raw := cmd.StringSlice("id")
	if len(raw) == 0 {
		return nil, nil
	}

	ids := make([]any, len(raw))
	for i, s := range raw {
		ids[i] = models.ParseID(s)
	}
	return pivot.FromValue(ids)
}

func attrsFlag(cmd *cli.Command) (models.Attributes, error) {
	attrs, err := shared.ParseAssignments(cmd.StringSlice("attr"))
	if err != nil {
		return nil, err
	}
	return models.Attributes(attrs), nil
}

// mutate reads the ids of cmd, applies m to the addressed relation and prints the outcome.
func (r *Runner) mutate(cmd *cli.Command, m tasks.Mutation) error {
	t, err := r.resolveTarget(cmd)
	if err != nil {
		return err
	}

	if m.Input, err = idsInput(cmd); err != nil {
		return err
	}

	db, closeFn, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeFn()

	s, err := r.newSynchronizer(db, t.owner, t.relation)
	if err != nil {
		return err
	}

	op := m.Kind.String()
	cancelled, value, err := tasks.Run(s, m)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	view := formatter.OutcomeView{Op: op, Relation: t.relation, Cancelled: cancelled, Result: value}
	if cancelled {
		r.logger.Warn("mutation cancelled by a listener", "op", op, "relation", t.relation)
	} else {
		r.logger.Info("mutation applied", "op", op, "relation", t.relation, "owner", t.owner)
	}

	if cmd.Bool("json") {
		return r.writeJSON(view, true)
	}
	return r.writePlainln("%s", formatter.FormatOutcome(r.palette, view))
}

// PivotAttach relates the given ids to the owner.
func (r *Runner) PivotAttach(ctx context.Context, cmd *cli.Command) error {
	attrs, err := attrsFlag(cmd)
	if err != nil {
		return err
	}
	return r.mutate(cmd, tasks.Mutation{Kind: pivot.KindAttach, Attributes: attrs, Touch: !cmd.Bool("no-touch")})
}

// PivotDetach removes the given ids, or every related id when none are given.
func (r *Runner) PivotDetach(ctx context.Context, cmd *cli.Command) error {
	return r.mutate(cmd, tasks.Mutation{Kind: pivot.KindDetach, Touch: !cmd.Bool("no-touch")})
}

// PivotSync makes the relation match the given ids; --attr sets the same attributes on each.
func (r *Runner) PivotSync(ctx context.Context, cmd *cli.Command) error {
	attrs, err := attrsFlag(cmd)
	if err != nil {
		return err
	}
	return r.mutate(cmd, tasks.Mutation{Kind: pivot.KindSync, Attributes: attrs, Detaching: !cmd.Bool("keep")})
}

// PivotToggle flips the membership of the given ids.
func (r *Runner) PivotToggle(ctx context.Context, cmd *cli.Command) error {
	return r.mutate(cmd, tasks.Mutation{Kind: pivot.KindToggle, Touch: !cmd.Bool("no-touch")})
}

// PivotUpdate changes attributes of ids that are already related.
func (r *Runner) PivotUpdate(ctx context.Context, cmd *cli.Command) error {
	attrs, err := attrsFlag(cmd)
	if err != nil {
		return err
	}
	if len(attrs) == 0 {
		return fmt.Errorf("%w: update needs at least one --attr", shared.ErrMissingArgument)
	}
	return r.mutate(cmd, tasks.Mutation{Kind: pivot.KindUpdateExistingPivot, Attributes: attrs, Touch: !cmd.Bool("no-touch")})
}

// PivotList prints the related ids of the owner.
func (r *Runner) PivotList(ctx context.Context, cmd *cli.Command) error {
	t, err := r.resolveTarget(cmd)
	if err != nil {
		return err
	}

	db, closeFn, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeFn()

	rows, err := r.listRows(db, t)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		data, err := formatter.RowsToJSON(rows)
		if err != nil {
			return fmt.Errorf("failed to marshal rows: %w", err)
		}
		return r.writePlainln("%s", data)
	}
	return r.writePlain("%s", formatter.FormatRows(r.palette, t.relation, t.owner, rows))
}

func (r *Runner) listRows(db *sql.DB, t target) ([]*models.PivotRow, error) {
	rel, err := r.config.Relation(t.relation, t.owner.Type)
	if err != nil {
		return nil, err
	}
	repo, err := repositories.NewPivotRepository(db, rel.Name, t.owner, rel.Touch)
	if err != nil {
		return nil, err
	}
	return repo.Rows()
}
