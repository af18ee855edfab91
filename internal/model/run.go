// Package model defines the core domain types for Benchbook.
//
// Types correspond directly to database tables and API payloads. Strong
// typing (UUIDs, time.Time, enums) is used wherever possible; the
// interaction-state blob is carried as an opaque string and interpreted
// only by the runstate package.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a protocol run.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "IN_PROGRESS"
	RunStatusCompleted  RunStatus = "COMPLETED"
)

// Valid reports whether the status is one of the known values.
func (s RunStatus) Valid() bool {
	return s == RunStatusInProgress || s == RunStatusCompleted
}

// Run is one cloned, independently tracked execution of a protocol entry.
// The run body is frozen at creation time; InteractionState is the only
// part that mutates until the run transitions to COMPLETED, which is
// terminal.
type Run struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Status           RunStatus `json:"status"`
	Locked           bool      `json:"locked"`
	RunBody          string    `json:"run_body"`
	Notes            string    `json:"notes"`
	InteractionState string    `json:"interaction_state"`
	SourceEntryID    uuid.UUID `json:"source_entry_id"`
	RunnerID         string    `json:"runner_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// SourceEntry is populated on reads for display purposes.
	SourceEntry *EntrySummary `json:"source_entry,omitempty"`
}

// EntrySummary is the subset of an entry attached to run listings.
type EntrySummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Technique string    `json:"technique"`
	AuthorID  string    `json:"author_id"`
}

// RunPatch is a partial update applied to an IN_PROGRESS run.
// Nil fields are left unchanged.
type RunPatch struct {
	InteractionState *string    `json:"interaction_state,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	Status           *RunStatus `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p RunPatch) Empty() bool {
	return p.InteractionState == nil && p.Notes == nil && p.Status == nil
}
