// Package session reconciles asynchronous auth-provider events, document
// store reads, and the local offline cache into one authoritative
// SessionState per process.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/cvfolio/cvfolio-portal/internal/authprovider"
	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/docstore"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

// ErrNoSession is returned by operations that require a signed-in user.
var ErrNoSession = errors.New("no active session")

// ErrNoPortfolio is returned when an operation needs a loaded portfolio but
// the session is degraded with none available.
var ErrNoPortfolio = errors.New("no portfolio loaded")

// Phase is the coarse state of the reconciler's state machine.
type Phase string

const (
	// PhaseUnknown holds until the first auth check resolves.
	PhaseUnknown Phase = "unknown"
	PhaseSignedOut Phase = "signed_out"
	PhaseSignedIn  Phase = "signed_in"
)

// DocumentStore is the slice of the document service the reconciler needs.
// *docstore.Client satisfies it; tests inject fakes.
type DocumentStore interface {
	Get(ctx context.Context, userID string) (*models.PortfolioDocument, error)
	Set(ctx context.Context, userID string, section models.Section, patch json.RawMessage) error
	Put(ctx context.Context, doc *models.PortfolioDocument) error
	GetField(ctx context.Context, userID, fieldPath string) (string, error)
}

// Cache is the offline snapshot store. *cache.PortfolioCache satisfies it.
type Cache interface {
	Read(ctx context.Context, userID string) *models.PortfolioDocument
	Write(ctx context.Context, userID string, doc *models.PortfolioDocument)
	Delete(ctx context.Context, userID string)
}

// MetricsCollector records reconciler events. A nil collector is replaced
// by a no-op.
type MetricsCollector interface {
	RecordLoadSuccess()
	RecordLoadFallback()
	RecordLoadDegraded()
	RecordStaleDiscard()
	RecordSignIn()
	RecordSignOut()
	RecordAutosaveFlush()
}

type noopMetrics struct{}

func (noopMetrics) RecordLoadSuccess()   {}
func (noopMetrics) RecordLoadFallback()  {}
func (noopMetrics) RecordLoadDegraded()  {}
func (noopMetrics) RecordStaleDiscard()  {}
func (noopMetrics) RecordSignIn()        {}
func (noopMetrics) RecordSignOut()       {}
func (noopMetrics) RecordAutosaveFlush() {}

// Reconciler merges auth events, document fetches, and cache fallback into
// one SessionState. Writes are serialized by version stamp: every
// load-or-fallback invocation takes a stamp when it starts, and a
// completion is applied only if no newer stamp has landed — a slow stale
// fetch can never clobber a fresher result.
type Reconciler struct {
	provider authprovider.Provider
	store    DocumentStore
	cache    Cache
	logger   *common.Logger
	metrics  MetricsCollector

	mu          sync.Mutex
	state       *models.SessionState
	phase       Phase
	nextVersion uint64
	applied     uint64
	unsubscribe func()

	watchMu     sync.Mutex
	watchers    map[int]chan *models.SessionState
	nextWatcher int
}

// New creates a reconciler. Pass nil metrics to disable instrumentation.
func New(provider authprovider.Provider, store DocumentStore, c Cache, logger *common.Logger, metrics MetricsCollector) *Reconciler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Reconciler{
		provider: provider,
		store:    store,
		cache:    c,
		logger:   logger,
		metrics:  metrics,
		phase:    PhaseUnknown,
		watchers: make(map[int]chan *models.SessionState),
	}
}

// Start runs the initialization protocol: subscribe to the provider's auth
// stream, then eagerly resolve the current auth status from the cached
// token. Stream events and the eager load race safely through the version
// stamps; whichever event is later by arrival order wins.
func (r *Reconciler) Start(ctx context.Context) {
	r.unsubscribe = r.provider.Subscribe(func(identity *models.Identity) {
		// Stamp at event arrival so wall-clock event order decides the
		// winner, not network completion order.
		stamp := r.stamp()
		if identity == nil {
			// Stream-driven sign-out: clear state, keep the cache entry so
			// a fast re-login can still fall back to it.
			r.apply(stamp, nil)
			return
		}
		id := *identity
		go r.loadOrFallback(context.WithoutCancel(ctx), id, stamp)
	})

	if identity := r.provider.CurrentIdentity(); identity != nil {
		r.loadOrFallback(ctx, *identity, r.stamp())
	} else {
		r.mu.Lock()
		if r.phase == PhaseUnknown {
			r.phase = PhaseSignedOut
		}
		r.mu.Unlock()
	}
}

// Stop unsubscribes from the auth stream and closes watcher channels.
func (r *Reconciler) Stop() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	r.watchMu.Lock()
	for id, ch := range r.watchers {
		close(ch)
		delete(r.watchers, id)
	}
	r.watchMu.Unlock()
}

// Snapshot returns a deep copy of the current state, nil when signed out.
func (r *Reconciler) Snapshot() *models.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Phase returns the coarse state-machine phase.
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Watch returns a channel receiving a state snapshot after every applied
// change, plus a cancel function. Slow consumers drop updates rather than
// block the reconciler.
func (r *Reconciler) Watch() (<-chan *models.SessionState, func()) {
	ch := make(chan *models.SessionState, 8)
	r.watchMu.Lock()
	id := r.nextWatcher
	r.nextWatcher++
	r.watchers[id] = ch
	r.watchMu.Unlock()

	cancel := func() {
		r.watchMu.Lock()
		if c, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(c)
		}
		r.watchMu.Unlock()
	}
	return ch, cancel
}

// currentUID returns the signed-in user's id, or "" when signed out.
func (r *Reconciler) currentUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return ""
	}
	return r.state.Identity.UID
}

// stamp issues the next update version. Taken at the start of each logical
// update, before any network call.
func (r *Reconciler) stamp() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextVersion++
	return r.nextVersion
}

// apply installs a state if its stamp is still the newest, and reports
// whether it was applied. Superseded results are discarded silently.
func (r *Reconciler) apply(stamp uint64, state *models.SessionState) bool {
	r.mu.Lock()
	if stamp < r.applied {
		r.mu.Unlock()
		r.metrics.RecordStaleDiscard()
		return false
	}
	r.applied = stamp
	r.state = state
	if state == nil {
		r.phase = PhaseSignedOut
	} else {
		r.phase = PhaseSignedIn
		state.Version = stamp
	}
	snapshot := state.Clone()
	r.mu.Unlock()

	r.notifyWatchers(snapshot)
	return true
}

func (r *Reconciler) notifyWatchers(snapshot *models.SessionState) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	for _, ch := range r.watchers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// loadOrFallback is the single load path both the initializer and the auth
// stream run. It publishes an interim Loading state, fetches the document,
// and resolves to Loaded (fresh read, cache refreshed), Loaded with a
// lazily created document (first profile load), or Degraded (store failure;
// cached snapshot if one exists, else no portfolio). The result is only
// applied while its stamp is still the newest.
func (r *Reconciler) loadOrFallback(ctx context.Context, identity models.Identity, stamp uint64) *models.SessionState {
	loading := &models.SessionState{Identity: identity, Status: models.PortfolioLoading}
	if !r.apply(stamp, loading) {
		return nil
	}

	state := &models.SessionState{Identity: identity}

	doc, err := r.store.Get(ctx, identity.UID)
	switch {
	case err == nil:
		state.Portfolio = doc
		state.Status = models.PortfolioLoaded
		r.cache.Write(ctx, identity.UID, doc)
		r.metrics.RecordLoadSuccess()

	case errors.Is(err, docstore.ErrNotFound):
		// First profile load for this identity: create the document lazily
		// with a fresh API key on the free tier, seeded from the identity.
		doc = models.NewPortfolioDocument(identity.UID)
		doc.Contact.FullName = identity.DisplayName
		doc.Contact.Email = identity.Email
		if putErr := r.store.Put(ctx, doc); putErr != nil {
			r.logger.Warn().Str("user_id", identity.UID).Str("error", putErr.Error()).Msg("failed to persist new portfolio document")
		}
		state.Portfolio = doc
		state.Status = models.PortfolioLoaded
		r.cache.Write(ctx, identity.UID, doc)
		r.metrics.RecordLoadSuccess()

	default:
		// Store failure: best-effort cache fallback, never blocking sign-in.
		r.logger.Warn().Str("user_id", identity.UID).Str("error", err.Error()).Msg("portfolio load failed, trying cache")
		state.Status = models.PortfolioDegraded
		if cached := r.cache.Read(ctx, identity.UID); cached != nil {
			state.Portfolio = cached
			r.metrics.RecordLoadFallback()
		} else {
			r.metrics.RecordLoadDegraded()
		}
	}

	state.LiftDerived()
	if !r.apply(stamp, state) {
		return nil
	}
	return state
}
