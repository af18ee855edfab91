package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/benchbook/benchbook/internal/model"
	"github.com/benchbook/benchbook/internal/storage"
)

// HandleCreateEntry handles POST /v1/entries.
func (h *Handlers) HandleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEntryRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateCreateEntry(req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	actor := ActorFromContext(r.Context())
	entry, err := h.store.CreateEntry(r.Context(), model.Entry{
		Title:       req.Title,
		Description: req.Description,
		Technique:   req.Technique,
		Body:        req.Body,
		AuthorID:    actor.ID,
	})
	if err != nil {
		h.logger.Error("create entry", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to create entry")
		return
	}

	writeJSON(w, r, http.StatusCreated, entry)
}

// HandleListEntries handles GET /v1/entries.
func (h *Handlers) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	entries, total, err := h.store.ListEntries(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list entries", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list entries")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

// HandleGetEntry handles GET /v1/entries/{id}.
func (h *Handlers) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid entry id")
		return
	}

	entry, err := h.store.GetEntry(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "entry not found")
		return
	}
	if err != nil {
		h.logger.Error("get entry", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get entry")
		return
	}

	writeJSON(w, r, http.StatusOK, entry)
}

// HandleUpdateEntry handles PUT /v1/entries/{id}. Only the author or an
// admin may edit a protocol entry.
func (h *Handlers) HandleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid entry id")
		return
	}

	var req model.UpdateEntryRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Title != nil && len(*req.Title) > model.MaxTitleLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "title too long")
		return
	}
	if req.Body != nil && len(*req.Body) > model.MaxBodyLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "body too large")
		return
	}

	existing, err := h.store.GetEntry(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "entry not found")
		return
	}
	if err != nil {
		h.logger.Error("get entry", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get entry")
		return
	}

	actor := ActorFromContext(r.Context())
	if actor.Role != model.RoleAdmin && actor.ID != existing.AuthorID {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "not the entry's author")
		return
	}

	entry, err := h.store.UpdateEntry(r.Context(), id, req)
	if err != nil {
		h.logger.Error("update entry", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to update entry")
		return
	}

	writeJSON(w, r, http.StatusOK, entry)
}

// pagination reads limit/offset query parameters with defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
