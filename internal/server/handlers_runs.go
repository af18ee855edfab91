package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/benchbook/benchbook/internal/model"
	"github.com/benchbook/benchbook/internal/storage"
)

// HandleCreateRun handles POST /v1/protocol-runs: clone a source entry
// into a new IN_PROGRESS run owned by the caller.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.SourceEntryID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "source_entry_id is required")
		return
	}

	actor := ActorFromContext(r.Context())
	run, err := h.store.CreateRun(r.Context(), req.SourceEntryID, actor.ID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "source entry not found")
		return
	}
	if err != nil {
		h.logger.Error("create run", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to create run")
		return
	}

	h.logger.Info("run created", "run_id", run.ID, "title", run.Title, "runner_id", actor.ID)
	writeJSON(w, r, http.StatusCreated, run)
}

// HandleListRuns handles GET /v1/protocol-runs. Members see their own
// runs; admins see everyone's.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	scope := actor.ID
	if actor.Role == model.RoleAdmin {
		scope = ""
	}

	limit, offset := pagination(r)
	runs, total, err := h.store.ListRuns(r.Context(), scope, limit, offset)
	if err != nil {
		h.logger.Error("list runs", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list runs")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}

// HandleGetRun handles GET /v1/protocol-runs/{id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadAccessibleRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleUpdateRun handles PUT /v1/protocol-runs/{id}: patch interaction
// state, notes, or complete the run. Writes against a COMPLETED run are
// conflicts, not errors to retry.
func (h *Handlers) HandleUpdateRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadAccessibleRun(w, r)
	if !ok {
		return
	}

	var req model.UpdateRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	patch := model.RunPatch{
		InteractionState: req.InteractionState,
		Notes:            req.Notes,
	}
	if req.Status != nil {
		status := model.RunStatus(*req.Status)
		patch.Status = &status
	}
	if err := patch.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	updated, err := h.store.UpdateRun(r.Context(), run.ID, patch)
	if errors.Is(err, storage.ErrRunCompleted) {
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "run already ended and is locked")
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("update run", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to update run")
		return
	}

	if patch.Status != nil && *patch.Status == model.RunStatusCompleted {
		h.logger.Info("run completed", "run_id", updated.ID, "title", updated.Title)
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// loadAccessibleRun parses the run id, loads the run, and applies the
// owner-or-admin rule. On failure it writes the response and returns
// ok=false.
func (h *Handlers) loadAccessibleRun(w http.ResponseWriter, r *http.Request) (model.Run, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run id")
		return model.Run{}, false
	}

	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		return model.Run{}, false
	}
	if err != nil {
		h.logger.Error("get run", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get run")
		return model.Run{}, false
	}

	actor := ActorFromContext(r.Context())
	if !actor.CanAccessRun(run.RunnerID) {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "not the run's owner")
		return model.Run{}, false
	}
	return run, true
}
