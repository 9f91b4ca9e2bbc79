package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	PlanLoaded Phase = iota
	ApplyStep
	StepApplied
	StepCancelled
	StepFailed
)

func (p Phase) String() string {
	switch p {
	case PlanLoaded:
		return "plan_loaded"
	case ApplyStep:
		return "apply_step"
	case StepApplied:
		return "step_applied"
	case StepCancelled:
		return "step_cancelled"
	case StepFailed:
		return "step_failed"
	default:
		return ""
	}
}

func planLoadedUpdate(plan *Plan) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PlanLoaded,
		Step:    0,
		Total:   len(plan.Steps),
		Message: fmt.Sprintf("Applying %d steps to %s of %s#%s...", len(plan.Steps), plan.Relation, plan.Owner.Type, plan.Owner.ID),
	}
}

func applyStepUpdate(step, total int, op string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ApplyStep,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s...", step, total, op),
	}
}

func stepAppliedUpdate(step, total int, res StepResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StepApplied,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d targets)", step, total, res.Op, res.Targets),
		Data:    res,
	}
}

func stepCancelledUpdate(step, total int, res StepResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StepCancelled,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] - %s cancelled by a listener", step, total, res.Op),
		Data:    res,
	}
}

func stepFailedUpdate(step, total int, res StepResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StepFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.Op, res.Err),
		Data:    res,
	}
}
