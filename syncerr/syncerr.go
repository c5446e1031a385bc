// Package syncerr gives the seven-kind error taxonomy of the sync core
// (spec.md §7) a concrete type so callers can branch on it with
// errors.As, the same way the teacher's crud.ActionError is matched in
// its event loop.
package syncerr

import "fmt"

// Kind is one of the seven error categories the core distinguishes.
type Kind string

const (
	// PerRecord: one upstream record failed to deserialize or upsert.
	PerRecord Kind = "PerRecord"
	// PerEvent: one event in a batch failed.
	PerEvent Kind = "PerEvent"
	// PerSchool: a school-scoped failure (DB open, connection fetch,
	// unhandled reconciler crash).
	PerSchool Kind = "PerSchool"
	// PerDistrict: a district-iteration failure.
	PerDistrict Kind = "PerDistrict"
	// UpstreamTransient: exhausted the upstream client's own retries.
	UpstreamTransient Kind = "UpstreamTransient"
	// ProtectedCollision: a destructive op was gated by protection.
	ProtectedCollision Kind = "ProtectedCollision"
	// Cancelled: the calling context was cancelled.
	Cancelled Kind = "Cancelled"
)

// Error wraps an underlying error with a Kind and enough context to log
// or branch on without string matching.
type Error struct {
	Kind    Kind
	SchoolID string
	Entity  string
	Err     error
}

func (e *Error) Error() string {
	if e.SchoolID == "" && e.Entity == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [school=%s entity=%s]: %v", e.Kind, e.SchoolID, e.Entity, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a syncerr.Error of the given kind.
func New(kind Kind, schoolID, entity string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, SchoolID: schoolID, Entity: entity, Err: err}
}
