package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/benchbook/benchbook/internal/auth"
	"github.com/benchbook/benchbook/internal/model"
	"github.com/benchbook/benchbook/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               storage.Store
	jwtMgr              *auth.JWTManager
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Store               storage.Store
	JWTMgr              *auth.JWTManager
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:               d.Store,
		jwtMgr:              d.JWTMgr,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// HandleAuthToken handles POST /v1/auth/token.
//
// Identity verification lives outside this service; this endpoint mints a
// bearer token for a self-asserted actor so the run engine's ownership
// rules can be exercised. Role defaults to MEMBER.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if req.ActorID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "actor_id is required")
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleMember
	}
	if role != model.RoleMember && role != model.RoleAdmin {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "role must be MEMBER or ADMIN")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(model.Actor{ID: req.ActorID, Name: req.Name, Role: role})
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to issue token")
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}
