package model

import (
	"time"

	"github.com/google/uuid"
)

// Entry is an authored, reusable protocol document. The body is HTML with
// embedded interactive markers (steps, components, measurement fields,
// timers); authoring itself happens outside this service, so the body is
// stored verbatim.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Technique   string    `json:"technique"`
	Body        string    `json:"body"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is the coarse authorization role consumed by this service.
// The actual authorization policy lives outside the run engine; handlers
// only apply the owner-or-admin rule.
type Role string

const (
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

// Actor is the acting identity extracted from the request's bearer token.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// CanAccessRun reports whether the actor may view or mutate a run owned
// by runnerID. Admins see everything; members see their own runs.
func (a Actor) CanAccessRun(runnerID string) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return runnerID != "" && a.ID == runnerID
}
