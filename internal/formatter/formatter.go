// package formatter renders pivot rows, mutation outcomes, plan results and the event journal
// as styled text, JSON or CSV.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/AraneaDev/eventually/internal/tasks"
	"github.com/AraneaDev/eventually/internal/ui"
)

// Journal export formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// PivotRowView is the JSON shape of a [models.PivotRow].
type PivotRowView struct {
	Related    models.RelatedID  `json:"related"`
	Attributes models.Attributes `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// JournalEntryView is the JSON shape of a [models.JournalEntry].
type JournalEntryView struct {
	ID        string               `json:"id"`
	Event     string               `json:"event"`
	Kind      string               `json:"kind"`
	Relation  string               `json:"relation"`
	Owner     string               `json:"owner"`
	Status    string               `json:"status"`
	Error     string               `json:"error,omitempty"`
	Targets   []models.TargetEntry `json:"targets"`
	CreatedAt time.Time            `json:"created_at"`
}

// OutcomeView is the JSON shape of a single mutation result.
type OutcomeView struct {
	Op        string `json:"op"`
	Relation  string `json:"relation"`
	Cancelled bool   `json:"cancelled"`
	Result    any    `json:"result,omitempty"`
}

// FormatAttributes renders attributes as sorted key=value pairs.
func FormatAttributes(attrs models.Attributes) string {
	if len(attrs) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, attrs[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// FormatRows renders the rows of a relation, one per line in attach order.
func FormatRows(p *ui.Palette, relation string, owner models.Identifiable, rows []*models.PivotRow) string {
	var buf bytes.Buffer

	buf.WriteString(p.Title(fmt.Sprintf("%s of %v (%d)", relation, owner, len(rows))))
	buf.WriteString("\n")

	if len(rows) == 0 {
		buf.WriteString(p.Help("  no related entities"))
		buf.WriteString("\n")
		return buf.String()
	}

	for i, row := range rows {
		buf.WriteString(fmt.Sprintf("%3d. %v %s\n", i+1, row.Related(), p.Help(FormatAttributes(row.Attributes()))))
	}
	return buf.String()
}

// RowsToJSON converts rows to indented JSON.
func RowsToJSON(rows []*models.PivotRow) ([]byte, error) {
	views := make([]PivotRowView, len(rows))
	for i, row := range rows {
		views[i] = PivotRowView{
			Related:    row.Related(),
			Attributes: row.Attributes(),
			CreatedAt:  row.CreatedAt(),
			UpdatedAt:  row.UpdatedAt(),
		}
	}
	return shared.MarshalJSON(views, true)
}

// FormatChanges renders the ids attached, detached and updated by a sync or toggle.
func FormatChanges(p *ui.Palette, c models.Changes) string {
	if c.Empty() {
		return p.Help("no changes")
	}

	var parts []string
	if len(c.Attached) > 0 {
		parts = append(parts, p.OK("+"+joinIDs(c.Attached)))
	}
	if len(c.Detached) > 0 {
		parts = append(parts, p.Err("-"+joinIDs(c.Detached)))
	}
	if len(c.Updated) > 0 {
		parts = append(parts, p.Warn("~"+joinIDs(c.Updated)))
	}
	return strings.Join(parts, " ")
}

// FormatOutcome renders the result of one mutation.
func FormatOutcome(p *ui.Palette, v OutcomeView) string {
	if v.Cancelled {
		return p.Warn(fmt.Sprintf("%s on %s cancelled by a listener", v.Op, v.Relation))
	}

	var detail string
	switch r := v.Result.(type) {
	case models.Changes:
		detail = FormatChanges(p, r)
	case int:
		detail = fmt.Sprintf("%d rows", r)
	case bool:
		detail = "done"
	default:
		detail = fmt.Sprintf("%v", r)
	}
	return fmt.Sprintf("%s %s: %s", p.OK("✓"), v.Op, detail)
}

// FormatApplyResult renders a plan result with one line per step.
func FormatApplyResult(p *ui.Palette, res *tasks.ApplyResult) string {
	var buf bytes.Buffer

	buf.WriteString(p.Title(fmt.Sprintf("Plan for %s of %s", res.Relation, res.Owner)))
	buf.WriteString("\n")

	for _, step := range res.Steps {
		switch {
		case step.Error != "":
			buf.WriteString(fmt.Sprintf("%3d. %s %s: %s\n", step.Index, p.Err("✗"), step.Op, step.Error))
		case step.Cancelled:
			buf.WriteString(fmt.Sprintf("%3d. %s %s cancelled\n", step.Index, p.Warn("-"), step.Op))
		default:
			buf.WriteString(fmt.Sprintf("%3d. %s\n", step.Index, FormatOutcome(p, OutcomeView{Op: step.Op, Result: step.Result})))
		}
	}

	buf.WriteString(fmt.Sprintf("\napplied %d, cancelled %d, failed %d\n", res.Applied, res.Cancelled, res.Failed))
	return buf.String()
}

// FormatJournal renders journal entries, newest last.
func FormatJournal(p *ui.Palette, entries []*models.JournalEntry) string {
	var buf bytes.Buffer

	for _, e := range entries {
		status := p.OK(e.Status())
		if e.Status() == models.JournalFailed {
			status = p.Err(e.Status())
		}

		line := fmt.Sprintf("%s %-24s %-10s %s#%s %s %d targets",
			p.Help(e.CreatedAt().Format(time.DateTime)), e.Event(), e.Relation(), e.OwnerType(), e.OwnerKey(), status, len(e.Targets()))
		if e.ErrorMessage() != "" {
			line += ": " + e.ErrorMessage()
		}
		buf.WriteString(line + "\n")
	}
	return buf.String()
}

// JournalToJSON converts journal entries to indented JSON.
func JournalToJSON(entries []*models.JournalEntry) ([]byte, error) {
	views := make([]JournalEntryView, len(entries))
	for i, e := range entries {
		views[i] = JournalEntryView{
			ID:        e.ID(),
			Event:     e.Event(),
			Kind:      e.Kind(),
			Relation:  e.Relation(),
			Owner:     e.OwnerType() + "#" + e.OwnerKey(),
			Status:    e.Status(),
			Error:     e.ErrorMessage(),
			Targets:   e.Targets(),
			CreatedAt: e.CreatedAt(),
		}
	}
	return shared.MarshalJSON(views, true)
}

// JournalToCSV converts journal entries to CSV with columns:
// ID, Sequence, Event, Kind, Relation, OwnerType, OwnerKey, Status, Error, Targets, CreatedAt
func JournalToCSV(entries []*models.JournalEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Sequence", "Event", "Kind", "Relation", "OwnerType", "OwnerKey", "Status", "Error", "Targets", "CreatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		targets, err := shared.MarshalJSON(e.Targets(), false)
		if err != nil {
			return nil, fmt.Errorf("failed to encode targets: %w", err)
		}

		record := []string{
			e.ID(),
			strconv.Itoa(e.Sequence()),
			e.Event(),
			e.Kind(),
			e.Relation(),
			e.OwnerType(),
			e.OwnerKey(),
			e.Status(),
			e.ErrorMessage(),
			string(targets),
			e.CreatedAt().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteJournalExport writes entries to path in the given format (csv or json).
func WriteJournalExport(entries []*models.JournalEntry, path, format string) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatCSV:
		data, err = JournalToCSV(entries)
	case FormatJSON:
		data, err = JournalToJSON(entries)
	default:
		return fmt.Errorf("%w: unsupported export format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func joinIDs(ids []models.RelatedID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%v", id)
	}
	return strings.Join(parts, ",")
}
