package main

import (
	"context"
	"fmt"

	"github.com/AraneaDev/eventually/internal/formatter"
	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/AraneaDev/eventually/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlanApply applies every step of a YAML plan file.
func (r *Runner) PlanApply(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: plan file path is required", shared.ErrMissingArgument)
	}

	plan, err := tasks.LoadPlan(path)
	if err != nil {
		return err
	}

	db, closeFn, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeFn()

	engine := tasks.NewPlanEngine(func(owner models.Identifiable, relation string) (*pivot.Synchronizer, error) {
		return r.newSynchronizer(db, owner, relation)
	}, r.logger)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.StepFailed:
				r.logger.Warn(update.Message, "step", update.Step, "total", update.Total)
			case tasks.StepCancelled:
				r.logger.Info(update.Message, "step", update.Step, "total", update.Total)
			default:
				r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step)
			}
		}
	}()

	result, applyErr := engine.Apply(ctx, progressCh, plan, tasks.ApplyOpts{
		RateLimit:       cmd.Float("rate"),
		ContinueOnError: cmd.Bool("continue-on-error"),
	})
	close(progressCh)
	<-done

	if result == nil {
		return applyErr
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(result, true); err != nil {
			return err
		}
	} else if err := r.writePlain("%s", formatter.FormatApplyResult(r.palette, result)); err != nil {
		return err
	}

	return applyErr
}
