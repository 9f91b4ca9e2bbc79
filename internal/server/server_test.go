package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AraneaDev/eventually/internal/events"
	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/shared"
	tu "github.com/AraneaDev/eventually/internal/testing"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestBasicRouter(t *testing.T) {
	t.Run("applies middleware in order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mark("first"), mark("second"))
		router.Handle("get", "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		if diff := cmp.Diff([]string{"first", "second", "handler"}, order); diff != "" {
			t.Errorf("middleware order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rejects other methods", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("recovers from panics", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(Recoverer(shared.NewLogger(io.Discard)))
		router.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestDecodeIDs(t *testing.T) {
	u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tt := []struct {
		name string
		raw  string
		want pivot.Input
	}{
		{name: "empty", raw: "", want: nil},
		{name: "null", raw: "null", want: nil},
		{name: "scalar", raw: "4", want: pivot.ID(int64(4))},
		{name: "string scalar", raw: `"abc"`, want: pivot.ID("abc")},
		{name: "list", raw: fmt.Sprintf(`[1, "x", %q]`, u), want: pivot.ScalarList{int64(1), "x", u}},
		{name: "numeric strings in a list", raw: `["1", "02"]`, want: pivot.ScalarList{int64(1), int64(2)}},
		{
			name: "object keeps order",
			raw:  `{"2": {"prize": 4096}, "1": null, "x": {}}`,
			want: pivot.Map(
				pivot.With(int64(2), models.Attributes{"prize": float64(4096)}),
				pivot.Bare(int64(1)),
				pivot.With("x", models.Attributes{}),
			),
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeIDs([]byte(tc.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("input mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("list and object forms address the same ids", func(t *testing.T) {
		for _, raw := range []string{`["7", 8]`, `{"7": {}, "8": null}`} {
			in, err := decodeIDs([]byte(raw))
			if err != nil {
				t.Fatalf("decode %s: %v", raw, err)
			}
			targets, err := pivot.Normalize(in, nil)
			if err != nil {
				t.Fatalf("normalize %s: %v", raw, err)
			}
			if diff := cmp.Diff([]models.RelatedID{int64(7), int64(8)}, targets.IDs()); diff != "" {
				t.Errorf("ids of %s mismatch (-want +got):\n%s", raw, diff)
			}
		}
	})

	t.Run("fractional ids are rejected", func(t *testing.T) {
		_, err := decodeIDs([]byte(`[1, 2.5]`))

		var nerr *pivot.NormalizationError
		if !errors.As(err, &nerr) {
			t.Fatalf("expected NormalizationError, got %v", err)
		}
		if nerr.Index != 1 {
			t.Errorf("expected index 1, got %d", nerr.Index)
		}
	})
}

type handlerFixture struct {
	store  *tu.MockStore
	bus    *events.Dispatcher
	router *BasicRouter
	opened []string
}

func newHandlerFixture(openErr error) *handlerFixture {
	f := &handlerFixture{store: &tu.MockStore{Count: 1}, bus: events.NewDispatcher()}

	open := func(owner models.Identifiable, relation string) (*pivot.Synchronizer, error) {
		f.opened = append(f.opened, fmt.Sprintf("%v/%s", owner, relation))
		if openErr != nil {
			return nil, openErr
		}
		return pivot.New(pivot.Options{
			Owner:    owner,
			Relation: pivot.RelationName(relation),
			Store:    f.store,
			Bus:      f.bus,
		}), nil
	}
	rows := func(owner models.Ref, relation string) ([]*models.PivotRow, error) {
		row := models.NewPivotRow(1, relation, owner.Type, fmt.Sprint(owner.ID), int64(9), models.Attributes{"role": "admin"})
		return []*models.PivotRow{row}, nil
	}

	f.router = NewBasicRouter()
	f.router.Handler(NewPivotHandler(open, rows, nil))
	return f
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestPivotHandler(t *testing.T) {
	t.Run("attach", func(t *testing.T) {
		f := newHandlerFixture(nil)

		rec := f.do(http.MethodPost, "/owners/user/1/articles/attach", `{"ids": [5, 7], "attributes": {"source": "api"}, "touch": false}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"op":"attach"`) {
			t.Errorf("expected attach outcome, got %s", rec.Body.String())
		}

		want := []tu.StoreCall{{
			Op:         "attach",
			Input:      pivot.ScalarList{int64(5), int64(7)},
			Attributes: models.Attributes{"source": "api"},
		}}
		if diff := cmp.Diff(want, f.store.Calls()); diff != "" {
			t.Errorf("store calls mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"user#1/articles"}, f.opened); diff != "" {
			t.Errorf("opened synchronizers mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sync defaults to detaching", func(t *testing.T) {
		f := newHandlerFixture(nil)

		rec := f.do(http.MethodPost, "/owners/user/1/articles/sync", `{"ids": {"1": null}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		calls := f.store.Calls()
		if len(calls) != 1 || calls[0].Op != "sync" || !calls[0].Detaching {
			t.Errorf("expected one detaching sync, got %+v", calls)
		}
	})

	t.Run("update alias", func(t *testing.T) {
		f := newHandlerFixture(nil)

		rec := f.do(http.MethodPost, "/owners/user/1/articles/update", `{"ids": 4, "attributes": {"liked": true}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"result":1`) {
			t.Errorf("expected one updated row, got %s", rec.Body.String())
		}
	})

	t.Run("vetoed mutation", func(t *testing.T) {
		f := newHandlerFixture(nil)
		f.bus.Listen(pivot.KindDetach.Before(), func(pivot.Payload) pivot.Verdict { return pivot.Veto })

		rec := f.do(http.MethodPost, "/owners/user/1/articles/detach", `{"ids": [1]}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"cancelled":true`) {
			t.Errorf("expected cancelled outcome, got %s", rec.Body.String())
		}
		if len(f.store.Calls()) != 0 {
			t.Errorf("expected no store calls, got %d", len(f.store.Calls()))
		}
	})

	t.Run("list", func(t *testing.T) {
		f := newHandlerFixture(nil)

		rec := f.do(http.MethodGet, "/owners/user/1/articles", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"related": 9`) {
			t.Errorf("expected related row, got %s", rec.Body.String())
		}
	})

	t.Run("error statuses", func(t *testing.T) {
		tt := []struct {
			name    string
			openErr error
			storeEr error
			path    string
			body    string
			want    int
		}{
			{name: "unknown op", path: "/owners/user/1/articles/merge", want: http.StatusNotFound},
			{name: "invalid json", path: "/owners/user/1/articles/attach", body: "{", want: http.StatusBadRequest},
			{name: "invalid id", path: "/owners/user/1/articles/attach", body: `{"ids": [true]}`, want: http.StatusBadRequest},
			{name: "unknown relation", openErr: shared.ErrUnknownRelation, path: "/owners/user/1/nope/attach", body: `{"ids": 1}`, want: http.StatusNotFound},
			{name: "duplicate", storeEr: shared.ErrAlreadyExists, path: "/owners/user/1/articles/attach", body: `{"ids": 1}`, want: http.StatusConflict},
			{name: "storage failure", storeEr: errors.New("disk full"), path: "/owners/user/1/articles/toggle", body: `{"ids": 1}`, want: http.StatusInternalServerError},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				f := newHandlerFixture(tc.openErr)
				f.store.Err = tc.storeEr

				rec := f.do(http.MethodPost, tc.path, tc.body)
				if rec.Code != tc.want {
					t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
				}
				if !strings.Contains(rec.Body.String(), `"error"`) {
					t.Errorf("expected error body, got %s", rec.Body.String())
				}
			})
		}
	})
}
