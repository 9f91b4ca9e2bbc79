package tasks

import (
	"context"
	"fmt"
	"io"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// SynchronizerFactory opens the synchronizer for relation of owner.
type SynchronizerFactory func(owner models.Identifiable, relation string) (*pivot.Synchronizer, error)

// ApplyOpts contains configuration for applying a plan.
type ApplyOpts struct {
	RateLimit       float64 // Steps per second (default: 20)
	ContinueOnError bool    // Keep applying steps after a failure
}

// StepResult reports the outcome of one plan step.
type StepResult struct {
	Index     int    `json:"index"`
	Op        string `json:"op"`
	Targets   int    `json:"targets"`
	Cancelled bool   `json:"cancelled"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

// ApplyResult contains the results of applying a plan.
type ApplyResult struct {
	Relation  string       `json:"relation"`
	Owner     string       `json:"owner"`
	Steps     []StepResult `json:"steps"`
	Applied   int          `json:"applied"`
	Cancelled int          `json:"cancelled"`
	Failed    int          `json:"failed"`
}

// PlanEngine applies plans through pivot synchronizers.
type PlanEngine struct {
	open   SynchronizerFactory
	logger *log.Logger
}

// NewPlanEngine creates a new PlanEngine using open to build synchronizers.
func NewPlanEngine(open SynchronizerFactory, logger *log.Logger) *PlanEngine {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &PlanEngine{open: open, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *PlanEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Apply runs the steps of plan in order.
//
// A failed step stops the plan unless opts.ContinueOnError is set; the partial result is returned
// with the step's error. Cancelled steps never stop the plan.
func (e *PlanEngine) Apply(ctx context.Context, prog chan<- ProgressUpdate, plan *Plan, opts ApplyOpts) (*ApplyResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: plan is required", shared.ErrMissingArgument)
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}

	owner := plan.Owner.Ref()
	sync, err := e.open(owner, plan.Relation)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{
		Relation: plan.Relation,
		Owner:    owner.String(),
		Steps:    make([]StepResult, 0, len(plan.Steps)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	total := len(plan.Steps)
	logger := shared.WithLogger(e.logger, "relation", plan.Relation, "owner", result.Owner)

	e.sendProgress(prog, planLoadedUpdate(plan))

	for i, step := range plan.Steps {
		if err := limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("plan interrupted at step %d: %w", i+1, err)
		}

		e.sendProgress(prog, applyStepUpdate(i+1, total, step.kind.String()))

		res := e.applyStep(sync, i+1, step)
		result.Steps = append(result.Steps, res)

		switch {
		case res.Err != nil:
			result.Failed++
			logger.Warn("plan step failed", "step", i+1, "op", res.Op, "error", res.Err)
			e.sendProgress(prog, stepFailedUpdate(i+1, total, res))
			if !opts.ContinueOnError {
				return result, fmt.Errorf("step %d (%s): %w", i+1, res.Op, res.Err)
			}
		case res.Cancelled:
			result.Cancelled++
			logger.Info("plan step cancelled", "step", i+1, "op", res.Op)
			e.sendProgress(prog, stepCancelledUpdate(i+1, total, res))
		default:
			result.Applied++
			logger.Debug("plan step applied", "step", i+1, "op", res.Op)
			e.sendProgress(prog, stepAppliedUpdate(i+1, total, res))
		}
	}

	return result, nil
}

func (e *PlanEngine) applyStep(s *pivot.Synchronizer, index int, step PlanStep) StepResult {
	res := StepResult{Index: index, Op: step.kind.String()}

	if targets, err := pivot.Normalize(step.input, nil); err == nil {
		res.Targets = targets.Len()
	}

	cancelled, value, err := Run(s, Mutation{
		Kind:       step.kind,
		Input:      step.input,
		Attributes: step.Attributes,
		Touch:      step.touch(),
		Detaching:  step.detaching(),
	})
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		return res
	}

	res.Cancelled = cancelled
	res.Result = value
	return res
}

// Mutation is one synchronizer call described as data.
//
// Touch applies to attach, detach, toggle and update; Detaching applies to sync.
type Mutation struct {
	Kind       pivot.Kind
	Input      pivot.Input
	Attributes models.Attributes
	Touch      bool
	Detaching  bool
}

// Run applies m through s and flattens the typed outcome.
//
// A sync with attributes sets the same attributes on every id via [pivot.Synchronizer.SyncWithPivotValues].
// value is nil when cancelled is true.
func Run(s *pivot.Synchronizer, m Mutation) (cancelled bool, value any, err error) {
	switch m.Kind {
	case pivot.KindAttach:
		return flatten(s.Attach(m.Input, m.Attributes, m.Touch))
	case pivot.KindDetach:
		return flatten(s.Detach(m.Input, m.Touch))
	case pivot.KindSync:
		if len(m.Attributes) > 0 {
			return flatten(s.SyncWithPivotValues(m.Input, m.Attributes, m.Detaching))
		}
		return flatten(s.Sync(m.Input, m.Detaching))
	case pivot.KindToggle:
		return flatten(s.Toggle(m.Input, m.Touch))
	case pivot.KindUpdateExistingPivot:
		return flatten(s.UpdateExistingPivot(m.Input, m.Attributes, m.Touch))
	default:
		return false, nil, fmt.Errorf("%w: unsupported op %q", shared.ErrInvalidInput, m.Kind.String())
	}
}

func flatten[T any](out pivot.Outcome[T], err error) (bool, any, error) {
	if err != nil {
		return false, nil, err
	}
	return out.Cancelled(), out.Any(), nil
}
