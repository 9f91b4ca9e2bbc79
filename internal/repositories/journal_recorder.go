package repositories

import (
	"io"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/charmbracelet/log"
)

// ListenerRegistry is the registration half of an event bus.
type ListenerRegistry interface {
	Subscribe(name string, l pivot.Listener) (unsubscribe func())
}

// JournalRecorder persists after and failed pivot events using [JournalRepository].
//
// Recording never vetoes; storage failures are logged and otherwise ignored.
type JournalRecorder struct {
	repo   *JournalRepository
	logger *log.Logger
}

// NewJournalRecorder creates a new JournalRecorder with the given repository
func NewJournalRecorder(repo *JournalRepository, logger *log.Logger) *JournalRecorder {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &JournalRecorder{repo: repo, logger: logger}
}

// Register listens for the after and failed events of every mutation kind.
//
// The returned function removes exactly these listeners; call it before closing the repository's database.
func (r *JournalRecorder) Register(bus ListenerRegistry) (unregister func()) {
	cancels := make([]func(), 0, 2*len(pivot.Kinds))
	for _, k := range pivot.Kinds {
		cancels = append(cancels, bus.Subscribe(k.After(), r.Record), bus.Subscribe(k.Failed(), r.Record))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Record stores p as a journal entry.
func (r *JournalRecorder) Record(p pivot.Payload) pivot.Verdict {
	var ownerType, ownerKey string
	if p.Owner != nil {
		ownerType = models.MorphTypeOf(p.Owner)
		ownerKey, _, _ = models.EncodeID(p.Owner.Key())
	}

	entry := models.NewJournalEntry(0, p.Event, p.Kind.String(), p.Relation, ownerType, ownerKey, p.Targets)
	if p.Err != nil {
		entry.SetStatus(models.JournalFailed)
		entry.SetErrorMessage(p.Err.Error())
	}

	if err := r.repo.Create(entry); err != nil {
		r.logger.Warn("failed to record pivot event", "event", p.Event, "relation", p.Relation, "error", err)
		return pivot.Continue
	}

	r.logger.Debug("recorded pivot event", "event", p.Event, "relation", p.Relation, "entry", entry.ID())
	return pivot.Continue
}
