package pivot_test

import (
	"errors"
	"testing"

	"github.com/AraneaDev/eventually/internal/events"
	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	tu "github.com/AraneaDev/eventually/internal/testing"
	"github.com/google/go-cmp/cmp"
)

var owner = models.Ref{Type: "user", ID: int64(1)}

func newSynchronizer(store pivot.Store, bus pivot.EventBus) *pivot.Synchronizer {
	return pivot.New(pivot.Options{
		Owner:    owner,
		Relation: pivot.RelationName("articles"),
		Store:    store,
		Bus:      bus,
	})
}

// listenAll registers rec for every event of every kind.
func listenAll(d *events.Dispatcher, rec *tu.Recorder) {
	for _, k := range pivot.Kinds {
		d.Listen(k.Before(), rec.Listen)
		d.Listen(k.After(), rec.Listen)
		d.Listen(k.Failed(), rec.Listen)
	}
}

func TestSynchronizer(t *testing.T) {
	t.Run("veto cancels without touching storage", func(t *testing.T) {
		tt := []struct {
			name string
			run  func(s *pivot.Synchronizer) (bool, error)
		}{
			{"attach", func(s *pivot.Synchronizer) (bool, error) {
				out, err := s.Attach(pivot.IDs(1, 2), nil, true)
				return out.Cancelled(), err
			}},
			{"detach", func(s *pivot.Synchronizer) (bool, error) {
				out, err := s.Detach(pivot.IDs(1), true)
				return out.Cancelled(), err
			}},
			{"sync", func(s *pivot.Synchronizer) (bool, error) {
				out, err := s.Sync(pivot.IDs(1), true)
				return out.Cancelled(), err
			}},
			{"toggle", func(s *pivot.Synchronizer) (bool, error) {
				out, err := s.Toggle(pivot.IDs(1), true)
				return out.Cancelled(), err
			}},
			{"updateExistingPivot", func(s *pivot.Synchronizer) (bool, error) {
				out, err := s.UpdateExistingPivot(pivot.IDs(1), models.Attributes{"a": 1}, true)
				return out.Cancelled(), err
			}},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				store := &tu.MockStore{}
				bus := events.NewDispatcher()
				veto := tu.NewRecorder(pivot.Veto)
				after := tu.NewRecorder(pivot.Continue)
				for _, k := range pivot.Kinds {
					bus.Listen(k.Before(), veto.Listen)
					bus.Listen(k.After(), after.Listen)
				}

				cancelled, err := tc.run(newSynchronizer(store, bus))
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !cancelled {
					t.Error("expected cancelled outcome")
				}
				if n := len(store.Calls()); n != 0 {
					t.Errorf("expected no store calls, got %d", n)
				}
				if n := len(after.Events()); n != 0 {
					t.Errorf("expected no after events, got %d", n)
				}
				if n := len(veto.Events()); n != 1 {
					t.Errorf("expected 1 before event, got %d", n)
				}
			})
		}
	})

	t.Run("before then after around one store call", func(t *testing.T) {
		store := &tu.MockStore{}
		bus := events.NewDispatcher()
		rec := tu.NewRecorder(pivot.Continue)
		listenAll(bus, rec)

		out, err := newSynchronizer(store, bus).Attach(pivot.IDs(1, 2), models.Attributes{"role": "editor"}, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if v, ok := out.Value(); !ok || !v {
			t.Errorf("expected completed true, got %v, %v", v, ok)
		}
		if diff := cmp.Diff([]string{"attaching", "attached"}, rec.Events()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}

		calls := store.Calls()
		if len(calls) != 1 {
			t.Fatalf("expected 1 store call, got %d", len(calls))
		}
		if calls[0].Op != "attach" || !calls[0].Touch {
			t.Errorf("unexpected call %+v", calls[0])
		}
		if diff := cmp.Diff(models.Attributes{"role": "editor"}, calls[0].Attributes); diff != "" {
			t.Errorf("attributes mismatch (-want +got):\n%s", diff)
		}

		for _, p := range rec.Payloads() {
			if p.Owner != owner || p.Relation != "articles" || p.Kind != pivot.KindAttach {
				t.Errorf("unexpected payload %+v", p)
			}
			want := []models.TargetEntry{
				{ID: int64(1), Attributes: models.Attributes{"role": "editor"}},
				{ID: int64(2), Attributes: models.Attributes{"role": "editor"}},
			}
			if diff := cmp.Diff(want, p.Targets.Entries()); diff != "" {
				t.Errorf("targets mismatch (-want +got):\n%s", diff)
			}
		}
	})

	t.Run("implicit detach announces current ids", func(t *testing.T) {
		store := &tu.MockStore{Current: []models.RelatedID{int64(5), int64(7)}, Count: 2}
		bus := events.NewDispatcher()
		rec := tu.NewRecorder(pivot.Continue)
		listenAll(bus, rec)

		out, err := newSynchronizer(store, bus).Detach(nil, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if n, ok := out.Value(); !ok || n != 2 {
			t.Errorf("expected 2 rows, got %d, %v", n, ok)
		}

		payloads := rec.Payloads()
		if len(payloads) != 2 {
			t.Fatalf("expected 2 events, got %d", len(payloads))
		}
		want := []models.TargetEntry{
			{ID: int64(5), Attributes: models.Attributes{}},
			{ID: int64(7), Attributes: models.Attributes{}},
		}
		if diff := cmp.Diff(want, payloads[0].Targets.Entries()); diff != "" {
			t.Errorf("targets mismatch (-want +got):\n%s", diff)
		}

		calls := store.Calls()
		if len(calls) != 1 || calls[0].Input != nil {
			t.Errorf("expected storage to receive the absent input, got %+v", calls)
		}
	})

	t.Run("empty target sets still fire both events", func(t *testing.T) {
		tt := []struct {
			name   string
			run    func(s *pivot.Synchronizer) error
			events []string
			op     string
		}{
			{
				name: "attach with no ids",
				run: func(s *pivot.Synchronizer) error {
					_, err := s.Attach(pivot.IDs[int](), nil, true)
					return err
				},
				events: []string{"attaching", "attached"},
				op:     "attach",
			},
			{
				name: "detach all with nothing related",
				run: func(s *pivot.Synchronizer) error {
					out, err := s.Detach(nil, true)
					if n, ok := out.Value(); err == nil && (!ok || n != 0) {
						t.Errorf("expected completed 0 rows, got %d, %v", n, ok)
					}
					return err
				},
				events: []string{"detaching", "detached"},
				op:     "detach",
			},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				store := &tu.MockStore{Current: []models.RelatedID{}}
				bus := events.NewDispatcher()
				rec := tu.NewRecorder(pivot.Continue)
				listenAll(bus, rec)

				if err := tc.run(newSynchronizer(store, bus)); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				if diff := cmp.Diff(tc.events, rec.Events()); diff != "" {
					t.Errorf("events mismatch (-want +got):\n%s", diff)
				}
				for _, p := range rec.Payloads() {
					if p.Targets == nil || p.Targets.Len() != 0 {
						t.Errorf("expected an empty target set on %s, got %+v", p.Event, p.Targets)
					}
				}

				calls := store.Calls()
				if len(calls) != 1 || calls[0].Op != tc.op {
					t.Errorf("expected one %s call, got %+v", tc.op, calls)
				}
			})
		}
	})

	t.Run("explicit detach skips current lookup", func(t *testing.T) {
		store := &tu.MockStore{}
		if _, err := newSynchronizer(store, nil).Detach(pivot.IDs(3), false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.CurrentCalls() != 0 {
			t.Error("current ids should not be queried")
		}
	})

	t.Run("current lookup failure fires no events", func(t *testing.T) {
		boom := errors.New("lookup failed")
		store := &tu.MockStore{CurrentErr: boom}
		bus := events.NewDispatcher()
		rec := tu.NewRecorder(pivot.Continue)
		listenAll(bus, rec)

		_, err := newSynchronizer(store, bus).Detach(nil, true)
		if !errors.Is(err, boom) {
			t.Errorf("expected lookup error, got %v", err)
		}
		if len(rec.Events()) != 0 || len(store.Calls()) != 0 {
			t.Error("expected no events and no store calls")
		}
	})

	t.Run("update existing pivot applies attributes to every id", func(t *testing.T) {
		store := &tu.MockStore{Count: 2}
		bus := events.NewDispatcher()
		rec := tu.NewRecorder(pivot.Continue)
		listenAll(bus, rec)

		in := pivot.IDs(2, 1)
		attrs := models.Attributes{"liked": true}
		out, err := newSynchronizer(store, bus).UpdateExistingPivot(in, attrs, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n, _ := out.Value(); n != 2 {
			t.Errorf("expected 2 rows, got %d", n)
		}

		if diff := cmp.Diff([]string{"updatingExistingPivot", "existingPivotUpdated"}, rec.Events()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}

		want := []models.TargetEntry{
			{ID: int64(2), Attributes: models.Attributes{"liked": true}},
			{ID: int64(1), Attributes: models.Attributes{"liked": true}},
		}
		for _, p := range rec.Payloads() {
			if diff := cmp.Diff(want, p.Targets.Entries()); diff != "" {
				t.Errorf("targets mismatch (-want +got):\n%s", diff)
			}
		}

		calls := store.Calls()
		if diff := cmp.Diff(in, calls[0].Input); diff != "" {
			t.Errorf("store should receive the original input (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(attrs, calls[0].Attributes); diff != "" {
			t.Errorf("attributes mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("zero rows is not a cancellation", func(t *testing.T) {
		store := &tu.MockStore{Count: 0}
		out, err := newSynchronizer(store, nil).UpdateExistingPivot(pivot.IDs(9), models.Attributes{"a": 1}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Cancelled() {
			t.Error("zero rows should not be reported as cancelled")
		}
		if n, ok := out.Value(); !ok || n != 0 {
			t.Errorf("expected completed 0, got %d, %v", n, ok)
		}
	})

	t.Run("storage error fires failed event", func(t *testing.T) {
		boom := errors.New("constraint violated")
		store := &tu.MockStore{Err: boom}
		bus := events.NewDispatcher()
		rec := tu.NewRecorder(pivot.Continue)
		listenAll(bus, rec)

		out, err := newSynchronizer(store, bus).Sync(pivot.IDs(1), true)
		if err != boom {
			t.Errorf("expected storage error unchanged, got %v", err)
		}
		if out.Cancelled() {
			t.Error("failure is not a cancellation")
		}

		if diff := cmp.Diff([]string{"syncing", "syncFailed"}, rec.Events()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
		if failed := rec.Payloads()[1]; failed.Err != boom {
			t.Errorf("expected failed payload to carry the error, got %v", failed.Err)
		}
	})

	t.Run("normalization error fires no events", func(t *testing.T) {
		store := &tu.MockStore{}
		bus := events.NewDispatcher()
		rec := tu.NewRecorder(pivot.Continue)
		listenAll(bus, rec)

		_, err := newSynchronizer(store, bus).Toggle(pivot.IDs[any](1, 2.5), true)

		var nerr *pivot.NormalizationError
		if !errors.As(err, &nerr) {
			t.Fatalf("expected NormalizationError, got %v", err)
		}
		if len(rec.Events()) != 0 || len(store.Calls()) != 0 {
			t.Error("expected no events and no store calls")
		}
	})

	t.Run("listener mutation does not leak", func(t *testing.T) {
		store := &tu.MockStore{}
		bus := events.NewDispatcher()
		bus.Listen("attaching", pivot.Observe(func(p pivot.Payload) {
			p.Targets.Set(int64(42), models.Attributes{"injected": true})
		}))
		rec := tu.NewRecorder(pivot.Continue)
		bus.Listen("attached", rec.Listen)

		if _, err := newSynchronizer(store, bus).Attach(pivot.IDs(1), nil, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		after := rec.Payloads()[0]
		if after.Targets.Has(int64(42)) {
			t.Error("after listeners observed a before listener's mutation")
		}
		if diff := cmp.Diff(pivot.IDs(1), store.Calls()[0].Input); diff != "" {
			t.Errorf("store input changed (-want +got):\n%s", diff)
		}
	})

	t.Run("sync variants", func(t *testing.T) {
		store := &tu.MockStore{Changes: models.NewChanges()}
		s := newSynchronizer(store, nil)

		if _, err := s.SyncWithoutDetaching(pivot.IDs(1)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := s.SyncWithPivotValues(pivot.IDs(3, 4), models.Attributes{"seen": true}, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		calls := store.Calls()
		if len(calls) != 2 {
			t.Fatalf("expected 2 calls, got %d", len(calls))
		}
		if calls[0].Detaching {
			t.Error("SyncWithoutDetaching must not detach")
		}
		if !calls[1].Detaching {
			t.Error("expected detaching sync")
		}

		want := pivot.Map(
			pivot.With(int64(3), models.Attributes{"seen": true}),
			pivot.With(int64(4), models.Attributes{"seen": true}),
		)
		if diff := cmp.Diff(want, calls[1].Input); diff != "" {
			t.Errorf("input mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("scoped listeners only see their relation", func(t *testing.T) {
		bus := events.NewDispatcher()
		veto := tu.NewRecorder(pivot.Veto)
		bus.Listen(events.Scoped("attaching", "awards"), veto.Listen)

		out, err := newSynchronizer(&tu.MockStore{}, bus).Attach(pivot.IDs(1), nil, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Cancelled() {
			t.Error("listener scoped to another relation vetoed")
		}
	})
}
