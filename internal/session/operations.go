package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cvfolio/cvfolio-portal/internal/authprovider"
	"github.com/cvfolio/cvfolio-portal/internal/docstore"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

// SignIn authenticates with the provider and synchronously runs
// load-or-fallback, so callers observe a populated session on return
// rather than waiting for the async stream event. State is unchanged on
// failure.
func (r *Reconciler) SignIn(ctx context.Context, cred authprovider.Credential) (*models.SessionState, error) {
	identity, err := r.provider.SignIn(ctx, cred)
	if err != nil {
		return nil, err
	}

	// The provider already fired a stream event for this sign-in; this
	// explicit pass takes a newer stamp, so its result is authoritative.
	state := r.loadOrFallback(ctx, *identity, r.stamp())
	r.metrics.RecordSignIn()
	if state == nil {
		// A newer event superseded us mid-flight; return the freshest view.
		return r.Snapshot(), nil
	}
	return state.Clone(), nil
}

// SignOut signs out at the provider, clears the session, and purges the
// cache entry for the previously active user. Unlike a stream-driven
// sign-out, the purge here is explicit. State is left unchanged when the
// provider call fails — there is no partial sign-out.
func (r *Reconciler) SignOut(ctx context.Context) error {
	r.mu.Lock()
	var prevUID string
	if r.state != nil {
		prevUID = r.state.Identity.UID
	}
	r.mu.Unlock()

	if err := r.provider.SignOut(ctx); err != nil {
		return err
	}

	r.apply(r.stamp(), nil)
	if prevUID != "" {
		r.cache.Delete(ctx, prevUID)
	}
	r.metrics.RecordSignOut()
	return nil
}

// UpdateProfileSection merges a patch into one portfolio section
// optimistically, then persists it. On store failure the optimistic value
// is kept but the session is flagged Dirty until a retry or Refresh
// succeeds; on success the cache snapshot is refreshed.
func (r *Reconciler) UpdateProfileSection(ctx context.Context, section models.Section, patch json.RawMessage) error {
	r.mu.Lock()
	if r.state == nil {
		r.mu.Unlock()
		return ErrNoSession
	}
	if r.state.Portfolio == nil {
		r.mu.Unlock()
		return ErrNoPortfolio
	}
	uid := r.state.Identity.UID
	if err := r.state.Portfolio.ApplySection(section, patch); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state.LiftDerived()
	snapshot := r.state.Clone()
	r.mu.Unlock()

	r.notifyWatchers(snapshot)

	if err := r.store.Set(ctx, uid, section, patch); err != nil {
		r.markDirty(uid, true)
		return fmt.Errorf("section %s not persisted: %w", section, err)
	}

	r.markDirty(uid, false)
	r.mu.Lock()
	var cacheDoc *models.PortfolioDocument
	if r.state != nil && r.state.Identity.UID == uid {
		cacheDoc = r.state.Portfolio.Clone()
	}
	r.mu.Unlock()
	if cacheDoc != nil {
		r.cache.Write(ctx, uid, cacheDoc)
	}
	return nil
}

// markDirty flips the dirty flag if the same user is still signed in.
func (r *Reconciler) markDirty(uid string, dirty bool) {
	r.mu.Lock()
	var snapshot *models.SessionState
	if r.state != nil && r.state.Identity.UID == uid && r.state.Dirty != dirty {
		r.state.Dirty = dirty
		snapshot = r.state.Clone()
	}
	r.mu.Unlock()
	if snapshot != nil {
		r.notifyWatchers(snapshot)
	}
}

// GetAPIKey returns the signed-in user's portfolio API key. When the
// portfolio is already loaded the key comes from memory; otherwise a
// field-scoped store fetch is issued. A user with no portfolio yet gets
// an empty key and no error.
func (r *Reconciler) GetAPIKey(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.state == nil {
		r.mu.Unlock()
		return "", ErrNoSession
	}
	uid := r.state.Identity.UID
	if r.state.Portfolio != nil {
		key := r.state.Portfolio.APIKey
		r.mu.Unlock()
		return key, nil
	}
	r.mu.Unlock()

	key, err := r.store.GetField(ctx, uid, "api_key")
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return key, nil
}

// Refresh forces a rerun of load-or-fallback for the current identity.
// Used after external mutations; the cache is still only consulted when
// the fresh fetch fails.
func (r *Reconciler) Refresh(ctx context.Context) (*models.SessionState, error) {
	r.mu.Lock()
	if r.state == nil {
		r.mu.Unlock()
		return nil, ErrNoSession
	}
	identity := r.state.Identity
	r.mu.Unlock()

	state := r.loadOrFallback(ctx, identity, r.stamp())
	if state == nil {
		return r.Snapshot(), nil
	}
	return state.Clone(), nil
}
