package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field length limits for entry and run payloads. These keep a single
// oversized field from filling Postgres TEXT columns with caller-controlled
// garbage; run bodies are large HTML documents so their cap is generous.
const (
	MaxTitleLen = 300
	MaxBodyLen  = 2 * 1024 * 1024 // 2 MB
	MaxNotesLen = 256 * 1024      // 256 KB
	MaxStateLen = 1 * 1024 * 1024 // 1 MB serialized interaction state
)

// APIResponse is the standard envelope for single-object responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// CreateEntryRequest is the request body for POST /v1/entries.
type CreateEntryRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Technique   string `json:"technique"`
	Body        string `json:"body"`
}

// UpdateEntryRequest is the request body for PUT /v1/entries/{id}.
// Nil fields are left unchanged.
type UpdateEntryRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Technique   *string `json:"technique,omitempty"`
	Body        *string `json:"body,omitempty"`
}

// CreateRunRequest is the request body for POST /v1/protocol-runs.
type CreateRunRequest struct {
	SourceEntryID uuid.UUID `json:"source_entry_id"`
}

// UpdateRunRequest is the request body for PUT /v1/protocol-runs/{id}.
type UpdateRunRequest struct {
	InteractionState *string `json:"interaction_state,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	Status           *string `json:"status,omitempty"`
}

// AuthTokenRequest is the request body for POST /v1/auth/token.
type AuthTokenRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
}

// AuthTokenResponse carries a minted bearer token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidateCreateEntry checks per-field limits on a new entry.
func ValidateCreateEntry(req CreateEntryRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(req.Title) > MaxTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d characters", MaxTitleLen)
	}
	if len(req.Body) > MaxBodyLen {
		return fmt.Errorf("body exceeds maximum length of %d bytes", MaxBodyLen)
	}
	return nil
}

// ValidateRunPatch checks per-field limits and status legality on a run update.
func (p RunPatch) Validate() error {
	if p.Notes != nil && len(*p.Notes) > MaxNotesLen {
		return fmt.Errorf("notes exceed maximum length of %d bytes", MaxNotesLen)
	}
	if p.InteractionState != nil && len(*p.InteractionState) > MaxStateLen {
		return fmt.Errorf("interaction state exceeds maximum length of %d bytes", MaxStateLen)
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return fmt.Errorf("unknown status %q", *p.Status)
		}
		if *p.Status == RunStatusInProgress {
			return fmt.Errorf("a run cannot transition back to %s", RunStatusInProgress)
		}
	}
	return nil
}
