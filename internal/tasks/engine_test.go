package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/AraneaDev/eventually/internal/events"
	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/shared"
	tu "github.com/AraneaDev/eventually/internal/testing"
	"github.com/google/go-cmp/cmp"
)

func engineFor(store *tu.MockStore, bus pivot.EventBus) *PlanEngine {
	return NewPlanEngine(func(owner models.Identifiable, relation string) (*pivot.Synchronizer, error) {
		return pivot.New(pivot.Options{
			Owner:    owner,
			Relation: pivot.RelationName(relation),
			Store:    store,
			Bus:      bus,
		}), nil
	}, nil)
}

func mustParse(t *testing.T, src string) *Plan {
	t.Helper()
	plan, err := ParsePlan([]byte(src))
	if err != nil {
		t.Fatalf("failed to parse plan: %v", err)
	}
	return plan
}

func TestPlanEngine_Apply(t *testing.T) {
	t.Run("applies every step", func(t *testing.T) {
		store := &tu.MockStore{Count: 1, Changes: models.NewChanges(), Current: []models.RelatedID{int64(1)}}
		engine := engineFor(store, nil)

		progress := make(chan ProgressUpdate, 100)
		result, err := engine.Apply(context.Background(), progress, mustParse(t, samplePlan), ApplyOpts{RateLimit: 1000})
		close(progress)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}

		if result.Applied != 4 || result.Failed != 0 || result.Cancelled != 0 {
			t.Errorf("unexpected counts %+v", result)
		}
		if result.Owner != "user#1" {
			t.Errorf("unexpected owner %q", result.Owner)
		}

		calls := store.Calls()
		ops := make([]string, len(calls))
		for i, c := range calls {
			ops[i] = c.Op
		}
		want := []string{"attach", "sync", "updateExistingPivot", "detach"}
		for i := range want {
			if i >= len(ops) || ops[i] != want[i] {
				t.Fatalf("expected ops %v, got %v", want, ops)
			}
		}
		if calls[2].Touch {
			t.Error("update step should not touch")
		}
		if calls[3].Input != nil {
			t.Error("detach step should reach storage with nil input")
		}

		phases := map[Phase]int{}
		for u := range progress {
			phases[u.Phase]++
		}
		if phases[PlanLoaded] != 1 || phases[ApplyStep] != 4 || phases[StepApplied] != 4 {
			t.Errorf("unexpected progress %v", phases)
		}
	})

	t.Run("sync with attributes uses pivot values", func(t *testing.T) {
		store := &tu.MockStore{Changes: models.NewChanges()}
		plan := mustParse(t, "owner: {type: user, id: 1}\nrelation: a\nsteps:\n  - op: sync\n    ids: [1]\n    attributes: {seen: true}\n    detaching: false\n")

		if _, err := engineFor(store, nil).Apply(context.Background(), nil, plan, ApplyOpts{RateLimit: 1000}); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}

		call := store.Calls()[0]
		if call.Detaching {
			t.Error("expected detaching to be disabled")
		}
		pairs, ok := call.Input.(pivot.IdentifierMap)
		if !ok || len(pairs) != 1 || pairs[0].Attributes["seen"] != true {
			t.Errorf("expected pivot values input, got %#v", call.Input)
		}
	})

	t.Run("stops on failure", func(t *testing.T) {
		store := &tu.MockStore{Err: errors.New("disk full")}
		result, err := engineFor(store, nil).Apply(context.Background(), nil, mustParse(t, samplePlan), ApplyOpts{RateLimit: 1000})

		if err == nil {
			t.Fatal("expected error")
		}
		if result == nil || len(result.Steps) != 1 || result.Failed != 1 {
			t.Fatalf("expected a partial result with one failed step, got %+v", result)
		}
		if result.Steps[0].Error != "disk full" {
			t.Errorf("unexpected step error %q", result.Steps[0].Error)
		}
	})

	t.Run("continues on failure when asked", func(t *testing.T) {
		store := &tu.MockStore{Err: errors.New("disk full")}
		result, err := engineFor(store, nil).Apply(context.Background(), nil, mustParse(t, samplePlan), ApplyOpts{RateLimit: 1000, ContinueOnError: true})

		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if result.Failed != 4 {
			t.Errorf("expected 4 failed steps, got %d", result.Failed)
		}
	})

	t.Run("cancelled steps do not stop the plan", func(t *testing.T) {
		store := &tu.MockStore{Count: 1, Changes: models.NewChanges()}
		bus := events.NewDispatcher()
		bus.Listen(pivot.KindAttach.Before(), func(pivot.Payload) pivot.Verdict { return pivot.Veto })

		result, err := engineFor(store, bus).Apply(context.Background(), nil, mustParse(t, samplePlan), ApplyOpts{RateLimit: 1000})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if result.Cancelled != 1 || result.Applied != 3 {
			t.Errorf("unexpected counts %+v", result)
		}
		if !result.Steps[0].Cancelled || result.Steps[0].Result != nil {
			t.Errorf("expected first step cancelled without result, got %+v", result.Steps[0])
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		store := &tu.MockStore{}
		_, err := engineFor(store, nil).Apply(ctx, nil, mustParse(t, samplePlan), ApplyOpts{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(store.Calls()) != 0 {
			t.Error("no steps should run after cancellation")
		}
	})

	t.Run("factory error", func(t *testing.T) {
		boom := errors.New("unknown relation")
		engine := NewPlanEngine(func(models.Identifiable, string) (*pivot.Synchronizer, error) { return nil, boom }, nil)

		if _, err := engine.Apply(context.Background(), nil, mustParse(t, samplePlan), ApplyOpts{}); !errors.Is(err, boom) {
			t.Errorf("expected factory error, got %v", err)
		}
	})

	t.Run("nil plan", func(t *testing.T) {
		if _, err := engineFor(&tu.MockStore{}, nil).Apply(context.Background(), nil, nil, ApplyOpts{}); err == nil {
			t.Error("expected error for nil plan")
		}
	})
}

func TestProgressUpdate_NonBlocking(t *testing.T) {
	engine := engineFor(&tu.MockStore{}, nil)
	full := make(chan ProgressUpdate)

	engine.sendProgress(full, ProgressUpdate{Phase: ApplyStep})
	engine.sendProgress(nil, ProgressUpdate{Phase: ApplyStep})
}

func TestRun(t *testing.T) {
	ids := pivot.IDs(1, 2)
	attrs := models.Attributes{"role": "editor"}

	tt := []struct {
		name      string
		mutation  Mutation
		wantOp    string
		wantValue any
		check     func(t *testing.T, call tu.StoreCall)
	}{
		{
			name:      "attach",
			mutation:  Mutation{Kind: pivot.KindAttach, Input: ids, Attributes: attrs, Touch: true},
			wantOp:    "attach",
			wantValue: true,
			check: func(t *testing.T, call tu.StoreCall) {
				if !call.Touch || call.Attributes["role"] != "editor" {
					t.Errorf("unexpected attach call %+v", call)
				}
			},
		},
		{
			name:      "detach",
			mutation:  Mutation{Kind: pivot.KindDetach, Input: ids},
			wantOp:    "detach",
			wantValue: 2,
		},
		{
			name:      "sync without attributes keeps the input",
			mutation:  Mutation{Kind: pivot.KindSync, Input: ids, Detaching: false},
			wantOp:    "sync",
			wantValue: models.NewChanges(),
			check: func(t *testing.T, call tu.StoreCall) {
				if call.Detaching {
					t.Error("expected a non-detaching sync")
				}
				if diff := cmp.Diff(ids, call.Input); diff != "" {
					t.Errorf("input mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:      "sync with attributes applies them to every id",
			mutation:  Mutation{Kind: pivot.KindSync, Input: ids, Attributes: attrs, Detaching: true},
			wantOp:    "sync",
			wantValue: models.NewChanges(),
			check: func(t *testing.T, call tu.StoreCall) {
				want := pivot.Map(pivot.With(int64(1), attrs), pivot.With(int64(2), attrs))
				if diff := cmp.Diff(want, call.Input); diff != "" {
					t.Errorf("input mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:      "toggle",
			mutation:  Mutation{Kind: pivot.KindToggle, Input: ids, Touch: true},
			wantOp:    "toggle",
			wantValue: models.NewChanges(),
		},
		{
			name:      "update",
			mutation:  Mutation{Kind: pivot.KindUpdateExistingPivot, Input: ids, Attributes: attrs},
			wantOp:    "updateExistingPivot",
			wantValue: 2,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			store := &tu.MockStore{Count: 2, Changes: models.NewChanges()}
			s := pivot.New(pivot.Options{Owner: models.Ref{Type: "user", ID: int64(1)}, Store: store})

			cancelled, value, err := Run(s, tc.mutation)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if cancelled {
				t.Fatal("expected the mutation to complete")
			}
			if diff := cmp.Diff(tc.wantValue, value); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}

			calls := store.Calls()
			if len(calls) != 1 || calls[0].Op != tc.wantOp {
				t.Fatalf("expected one %s call, got %+v", tc.wantOp, calls)
			}
			if tc.check != nil {
				tc.check(t, calls[0])
			}
		})
	}

	t.Run("cancelled mutation has no value", func(t *testing.T) {
		bus := events.NewDispatcher()
		bus.Listen(pivot.KindToggle.Before(), func(pivot.Payload) pivot.Verdict { return pivot.Veto })
		store := &tu.MockStore{}
		s := pivot.New(pivot.Options{Owner: models.Ref{Type: "user", ID: int64(1)}, Store: store, Bus: bus})

		cancelled, value, err := Run(s, Mutation{Kind: pivot.KindToggle, Input: ids})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !cancelled || value != nil {
			t.Errorf("expected cancelled with nil value, got %v, %v", cancelled, value)
		}
		if len(store.Calls()) != 0 {
			t.Errorf("expected no store calls, got %d", len(store.Calls()))
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		s := pivot.New(pivot.Options{Owner: models.Ref{Type: "user", ID: int64(1)}, Store: &tu.MockStore{}})

		_, _, err := Run(s, Mutation{Kind: pivot.Kind(99), Input: ids})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
