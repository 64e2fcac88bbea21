package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/models"
	"github.com/cvfolio/cvfolio-portal/internal/session"
)

// ProfileHandler serves the reconciled session state and proxies profile
// mutations to the reconciler.
type ProfileHandler struct {
	logger     *common.Logger
	reconciler *session.Reconciler
	autosaver  *session.Autosaver
	jwtSecret  []byte
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(logger *common.Logger, rec *session.Reconciler, saver *session.Autosaver, jwtSecret []byte) *ProfileHandler {
	return &ProfileHandler{
		logger:     logger,
		reconciler: rec,
		autosaver:  saver,
		jwtSecret:  jwtSecret,
	}
}

// requireSession validates the cookie and the live reconciler session,
// rejecting requests whose cookie identity no longer matches the active
// session (e.g. after a stream-driven sign-out).
func (h *ProfileHandler) requireSession(w http.ResponseWriter, r *http.Request) *models.SessionState {
	ok, claims := IsLoggedIn(r, h.jwtSecret)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not signed in")
		return nil
	}

	state := h.reconciler.Snapshot()
	if state == nil || state.Identity.UID != claims.Sub {
		respondError(w, http.StatusUnauthorized, "session expired")
		return nil
	}
	return state
}

// HandleSession handles GET /api/session: the full reconciled view plus
// per-section completion percentages.
func (h *ProfileHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	state := h.requireSession(w, r)
	if state == nil {
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"session":    state,
		"completion": models.SectionCompletion(state.Portfolio),
		"overall":    models.OverallCompletion(state.Portfolio),
	})
}

// sectionUpdateRequest is the body of PUT /api/profile/section and
// POST /api/profile/autosave.
type sectionUpdateRequest struct {
	Section string          `json:"section"`
	Patch   json.RawMessage `json:"patch"`
}

// HandleUpdateSection handles PUT /api/profile/section: an immediate
// section-scoped update through the reconciler.
func (h *ProfileHandler) HandleUpdateSection(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	if h.requireSession(w, r) == nil {
		return
	}

	var req sectionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	section, err := models.ParseSection(req.Section)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Patch) == 0 {
		respondError(w, http.StatusBadRequest, "missing patch")
		return
	}

	if err := h.reconciler.UpdateProfileSection(r.Context(), section, req.Patch); err != nil {
		switch {
		case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrNoPortfolio):
			respondError(w, http.StatusConflict, err.Error())
		default:
			// The optimistic update stuck; the session is flagged dirty so
			// the caller can retry.
			h.logger.Warn().Str("section", req.Section).Str("error", err.Error()).Msg("section update not persisted")
			respondError(w, http.StatusBadGateway, "update applied locally but not persisted")
		}
		return
	}

	respondData(w, http.StatusOK, h.reconciler.Snapshot())
}

// HandleAutosave handles POST /api/profile/autosave: queues a section
// patch into the debounced autosaver instead of writing immediately.
func (h *ProfileHandler) HandleAutosave(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if h.requireSession(w, r) == nil {
		return
	}

	var req sectionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	section, err := models.ParseSection(req.Section)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Patch) == 0 {
		respondError(w, http.StatusBadRequest, "missing patch")
		return
	}

	h.autosaver.Queue(section, req.Patch)
	respondData(w, http.StatusAccepted, map[string]string{"state": "queued"})
}

// HandleAPIKey handles GET /api/profile/apikey: the user's portfolio API
// key plus a masked preview for display.
func (h *ProfileHandler) HandleAPIKey(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if h.requireSession(w, r) == nil {
		return
	}

	key, err := h.reconciler.GetAPIKey(r.Context())
	if err != nil {
		h.logger.Error().Str("error", err.Error()).Msg("api key fetch failed")
		respondError(w, http.StatusBadGateway, "could not fetch api key")
		return
	}

	respondData(w, http.StatusOK, map[string]string{
		"api_key": key,
		"preview": models.MaskAPIKey(key),
	})
}

// HandleRefresh handles POST /api/profile/refresh: force a fresh
// load-or-fallback pass, used after external mutations.
func (h *ProfileHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if h.requireSession(w, r) == nil {
		return
	}

	state, err := h.reconciler.Refresh(r.Context())
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	respondData(w, http.StatusOK, state)
}
