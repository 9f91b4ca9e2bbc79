package main

import (
	"context"
	"fmt"
	"time"

	"github.com/AraneaDev/eventually/internal/formatter"
	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/repositories"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) journalEntries(cmd *cli.Command, limit int) ([]*models.JournalEntry, error) {
	criteria := map[string]any{"relation": cmd.String("relation")}
	if status := cmd.String("status"); status != "" {
		if status != models.JournalCommitted && status != models.JournalFailed {
			return nil, fmt.Errorf("%w: status must be %s or %s", shared.ErrInvalidFlag, models.JournalCommitted, models.JournalFailed)
		}
		criteria["status"] = status
	}
	if limit > 0 {
		criteria["limit"] = limit
	}

	db, closeFn, err := r.openDatabase()
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return repositories.NewJournalRepository(db).List(criteria)
}

// JournalList prints recorded pivot events.
func (r *Runner) JournalList(ctx context.Context, cmd *cli.Command) error {
	entries, err := r.journalEntries(cmd, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		data, err := formatter.JournalToJSON(entries)
		if err != nil {
			return fmt.Errorf("failed to marshal journal: %w", err)
		}
		return r.writePlainln("%s", data)
	}
	return r.writePlain("%s", formatter.FormatJournal(r.palette, entries))
}

// JournalExport writes recorded pivot events to a CSV or JSON file.
func (r *Runner) JournalExport(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	if format != formatter.FormatCSV && format != formatter.FormatJSON {
		return fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidFlag, format)
	}

	entries, err := r.journalEntries(cmd, 0)
	if err != nil {
		return err
	}

	output := cmd.String("output")
	if err := formatter.WriteJournalExport(entries, output, format); err != nil {
		return err
	}

	r.logger.Info("journal exported", "entries", len(entries), "path", output, "format", format)
	return r.writePlainln("%s", r.palette.OK(fmt.Sprintf("Exported %d events to %s", len(entries), output)))
}

// JournalPrune soft deletes events older than --older-than.
func (r *Runner) JournalPrune(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("%w: --older-than must be positive", shared.ErrInvalidFlag)
	}

	db, closeFn, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := repositories.NewJournalRepository(db).Prune(time.Now().Add(-age))
	if err != nil {
		return err
	}

	return r.writePlainln("Pruned %d events", n)
}
