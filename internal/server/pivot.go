package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AraneaDev/eventually/internal/formatter"
	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/AraneaDev/eventually/internal/tasks"
	"github.com/charmbracelet/log"
)

const maxBodyBytes = 1 << 20

// RowsFunc lists the stored rows of one relation of owner.
type RowsFunc func(owner models.Ref, relation string) ([]*models.PivotRow, error)

// PivotHandler serves pivot mutations and listings.
type PivotHandler struct {
	open   tasks.SynchronizerFactory
	rows   RowsFunc
	logger *log.Logger
}

// NewPivotHandler creates a handler building synchronizers with open and listing rows with rows.
func NewPivotHandler(open tasks.SynchronizerFactory, rows RowsFunc, logger *log.Logger) *PivotHandler {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &PivotHandler{open: open, rows: rows, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *PivotHandler) Routes() []string {
	return []string{
		"GET /owners/{ownerType}/{owner}/{relation}",
		"POST /owners/{ownerType}/{owner}/{relation}/{op}",
	}
}

// mutationRequest is the JSON body of a mutation.
type mutationRequest struct {
	IDs        json.RawMessage   `json:"ids"`
	Attributes models.Attributes `json:"attributes"`
	Touch      *bool             `json:"touch"`
	Detaching  *bool             `json:"detaching"`
}

func (m mutationRequest) touch() bool     { return m.Touch == nil || *m.Touch }
func (m mutationRequest) detaching() bool { return m.Detaching == nil || *m.Detaching }

// ServeHTTP dispatches to the listing or the mutation of the requested relation.
func (h *PivotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := models.Ref{Type: r.PathValue("ownerType"), ID: models.ParseID(r.PathValue("owner"))}
	relation := r.PathValue("relation")

	if r.Method == http.MethodGet {
		h.list(w, owner, relation)
		return
	}
	h.mutate(w, r, owner, relation)
}

func (h *PivotHandler) list(w http.ResponseWriter, owner models.Ref, relation string) {
	rows, err := h.rows(owner, relation)
	if err != nil {
		h.fail(w, err)
		return
	}

	data, err := formatter.RowsToJSON(rows)
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *PivotHandler) mutate(w http.ResponseWriter, r *http.Request, owner models.Ref, relation string) {
	kind, ok := pivot.ParseKind(r.PathValue("op"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown operation %q", r.PathValue("op")))
		return
	}

	var req mutationRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
			return
		}
	}

	in, err := decodeIDs(req.IDs)
	if err != nil {
		h.fail(w, err)
		return
	}

	s, err := h.open(owner, relation)
	if err != nil {
		h.fail(w, err)
		return
	}

	cancelled, value, err := tasks.Run(s, tasks.Mutation{
		Kind:       kind,
		Input:      in,
		Attributes: req.Attributes,
		Touch:      req.touch(),
		Detaching:  req.detaching(),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	view := formatter.OutcomeView{Op: kind.String(), Relation: relation, Cancelled: cancelled, Result: value}

	h.logger.Info("mutation served", "op", view.Op, "relation", relation, "owner", owner, "cancelled", view.Cancelled)
	writeJSON(w, http.StatusOK, view)
}

// decodeIDs converts the raw "ids" member into an input.
//
// Objects keep their key order and map ids to attribute overrides; arrays and scalars are plain ids.
// Whole JSON numbers become int64. Strings, whether array elements or object keys, follow
// [models.ParseID], so "1" and {"1": {}} address the same row.
func decodeIDs(raw json.RawMessage) (pivot.Input, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '{':
		return decodeIdentifierMap(raw)
	case '[':
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var values []any
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("%w: ids: %v", shared.ErrInvalidInput, err)
		}
		ids := make([]any, len(values))
		for i, v := range values {
			id, err := jsonID(v)
			if err != nil {
				return nil, &pivot.NormalizationError{Index: i, Value: v, Reason: err.Error()}
			}
			ids[i] = id
		}
		return pivot.FromValue(ids)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: ids: %v", shared.ErrInvalidInput, err)
		}
		id, err := jsonID(v)
		if err != nil {
			return nil, &pivot.NormalizationError{Index: -1, Value: v, Reason: err.Error()}
		}
		return pivot.FromValue(id)
	}
}

func decodeIdentifierMap(raw json.RawMessage) (pivot.Input, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: ids: %v", shared.ErrInvalidInput, err)
	}

	var pairs []pivot.Pair
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: ids: %v", shared.ErrInvalidInput, err)
		}
		key, _ := tok.(string)

		var attrs models.Attributes
		if err := dec.Decode(&attrs); err != nil {
			return nil, fmt.Errorf("%w: attributes of %q: %v", shared.ErrInvalidInput, key, err)
		}
		if attrs == nil {
			pairs = append(pairs, pivot.Bare(models.ParseID(key)))
			continue
		}
		pairs = append(pairs, pivot.With(models.ParseID(key), attrs))
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: ids: %v", shared.ErrInvalidInput, err)
	}
	return pivot.Map(pairs...), nil
}

func jsonID(v any) (any, error) {
	switch id := v.(type) {
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return nil, fmt.Errorf("identifier %s is not a whole number", id)
		}
		return n, nil
	case string:
		return models.ParseID(id), nil
	default:
		return nil, fmt.Errorf("unsupported identifier type %T", v)
	}
}

func (h *PivotHandler) fail(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	} else {
		h.logger.Debug("request rejected", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, shared.ErrUnknownRelation), errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	data, _ := shared.MarshalJSON(map[string]string{"error": msg}, false)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
