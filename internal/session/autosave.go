package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

// DefaultAutosaveIdle is the editor's idle window before pending edits are
// persisted. Every queued edit resets the window, so only the last edit in
// a burst triggers a write.
const DefaultAutosaveIdle = 2 * time.Second

// Autosaver coalesces section edits and flushes them through the
// reconciler after an idle period. One pending patch is kept per section;
// queueing a section again before the flush replaces the earlier patch.
// Pending edits are bound to the user who queued them: if the session
// changes hands before the flush fires, the stale batch is dropped instead
// of being written into the new user's portfolio.
type Autosaver struct {
	rec    *Reconciler
	idle   time.Duration
	logger *common.Logger

	mu         sync.Mutex
	pending    map[models.Section]json.RawMessage
	pendingUID string
	timer      *time.Timer
	stopped    bool
}

// NewAutosaver creates an autosaver with the given idle window.
// Zero or negative idle falls back to DefaultAutosaveIdle.
func NewAutosaver(rec *Reconciler, idle time.Duration, logger *common.Logger) *Autosaver {
	if idle <= 0 {
		idle = DefaultAutosaveIdle
	}
	return &Autosaver{
		rec:     rec,
		idle:    idle,
		logger:  logger,
		pending: make(map[models.Section]json.RawMessage),
	}
}

// Queue records a section patch for the currently signed-in user and
// resets the idle timer. With no active session the edit is dropped.
// Edits left over from a previous user are discarded here rather than
// carried into the new session.
func (a *Autosaver) Queue(section models.Section, patch json.RawMessage) {
	uid := a.rec.currentUID()
	if uid == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	if uid != a.pendingUID {
		if len(a.pending) > 0 {
			a.logger.Warn().Str("queued_for", a.pendingUID).Int("sections", len(a.pending)).Msg("dropping pending autosave edits from a previous session")
			a.pending = make(map[models.Section]json.RawMessage)
		}
		a.pendingUID = uid
	}
	a.pending[section] = patch

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.idle, a.Flush)
}

// Flush persists all pending patches immediately, provided the user they
// were queued for is still signed in; otherwise the batch is dropped.
// Failed sections stay pending for the next flush; the reconciler has
// already flagged the session Dirty for them.
func (a *Autosaver) Flush() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	batch := a.pending
	batchUID := a.pendingUID
	a.pending = make(map[models.Section]json.RawMessage)
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if uid := a.rec.currentUID(); uid != batchUID {
		a.logger.Warn().Str("queued_for", batchUID).Int("sections", len(batch)).Msg("dropping autosave batch, session user changed before flush")
		return
	}

	ctx := context.Background()
	for section, patch := range batch {
		if err := a.rec.UpdateProfileSection(ctx, section, patch); err != nil {
			a.logger.Warn().Str("section", string(section)).Str("error", err.Error()).Msg("autosave flush failed")
			a.mu.Lock()
			_, requeued := a.pending[section]
			if !requeued && !a.stopped && a.pendingUID == batchUID {
				a.pending[section] = patch
			}
			a.mu.Unlock()
		}
	}
	a.rec.metrics.RecordAutosaveFlush()
}

// Stop flushes whatever is pending and stops the timer. The autosaver
// accepts no further edits.
func (a *Autosaver) Stop() {
	a.Flush()
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
}

// PendingCount reports how many sections await a flush.
func (a *Autosaver) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
