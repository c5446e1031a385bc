package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/sectionsync"
)

// StudentReconciler is the subset of reconcile.Reconciler[*model.Student]
// the event processor dispatches to.
type StudentReconciler interface {
	UpsertOne(ctx context.Context, attemptStart time.Time, incoming *model.Student) (bool, error)
	SoftDeleteByUpstreamId(ctx context.Context, upstreamID string) error
}

// TeacherReconciler is the teacher-kind equivalent of StudentReconciler.
type TeacherReconciler interface {
	UpsertOne(ctx context.Context, attemptStart time.Time, incoming *model.Teacher) (bool, error)
	SoftDeleteByUpstreamId(ctx context.Context, upstreamID string) error
}

// TermReconciler is the term-kind equivalent of StudentReconciler.
type TermReconciler interface {
	UpsertOne(ctx context.Context, attemptStart time.Time, incoming *model.Term) (bool, error)
	SoftDeleteByUpstreamId(ctx context.Context, upstreamID string) error
}

// Dispatchers bundles every per-kind reconciler the processor can route
// to. A nil field means that objectKind is routed but has no concrete
// wiring in this call (tests may only exercise one kind).
type Dispatchers struct {
	Students *StudentRoute
	Teachers *TeacherRoute
	Sections *SectionRoute
	Terms    *TermRoute
}

// StudentRoute wraps a StudentReconciler so dispatch.go's generic
// routing code doesn't need a type switch per kind.
type StudentRoute struct{ Reconciler StudentReconciler }

type TeacherRoute struct{ Reconciler TeacherReconciler }

type SectionRoute struct{ Reconciler *sectionsync.Reconciler }

type TermRoute struct{ Reconciler TermReconciler }

// Outcome is the per-batch result the caller (C7) uses to finalize the
// owning SyncAttempt row.
type Outcome struct {
	Processed          int
	Succeeded          int
	Failed             int
	Skipped            int
	PerKind            map[string]int
	LastSuccessID      string
	LastSuccessTime    time.Time
	LastFetchedID      string
	LastFetchedTime    time.Time
	FirstErrorMessage  string
}

// RecordError is a single event's processing failure, used to
// distinguish "the envelope itself was malformed" failures from errors
// coming out of a reconciler once routing succeeded.
type RecordError struct {
	EventID string
	Err     error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("event %s: %v", e.EventID, e.Err)
}

// ProcessBatch dispatches envelopes strictly in the order given (the
// upstream is assumed to already return them chronologically by
// createdAt, per spec.md §4.6) and never parallelizes. A single event's
// failure is counted and the stream continues; it never aborts the
// batch, so a poison event can't create an infinite retry loop at the
// caller.
func ProcessBatch(ctx context.Context, attemptStart time.Time, envelopes []Envelope, d Dispatchers) Outcome {
	out := Outcome{PerKind: map[string]int{}}

	for _, env := range envelopes {
		out.Processed++
		out.LastFetchedID = env.ID
		out.LastFetchedTime = env.CreatedAt

		err := dispatchOne(ctx, attemptStart, env, d)
		kind := string(env.ObjectKind())
		switch {
		case err == errSkipped:
			out.Skipped++
			continue
		case err != nil:
			out.Failed++
			if out.FirstErrorMessage == "" {
				out.FirstErrorMessage = err.Error()
			}
			continue
		}
		out.Succeeded++
		out.PerKind[kind]++
		out.LastSuccessID = env.ID
		out.LastSuccessTime = env.CreatedAt
	}
	return out
}

var errSkipped = fmt.Errorf("events: skipped")

func dispatchOne(ctx context.Context, attemptStart time.Time, env Envelope, d Dispatchers) error {
	switch env.ObjectKind() {
	case ObjectUser:
		return dispatchUser(ctx, attemptStart, env, d)
	case ObjectSection:
		return dispatchSection(ctx, attemptStart, env, d)
	case ObjectTerm:
		return dispatchTerm(ctx, attemptStart, env, d)
	case ObjectCourse, ObjectDistrict:
		return errSkipped
	default:
		return errSkipped
	}
}

func dispatchUser(ctx context.Context, attemptStart time.Time, env Envelope, d Dispatchers) error {
	if env.Action() == ActionDeleted {
		// A delete event still needs to know which reconciler owns the
		// upstream id; classify from the payload if present, otherwise
		// try both (at most one will find a matching row).
		kind, _ := ClassifyUser(env.Payload)
		upstreamID := deletedUpstreamID(env.Payload)
		switch kind {
		case UserTeacher:
			if d.Teachers == nil {
				return errSkipped
			}
			return wrapErr(env.ID, d.Teachers.Reconciler.SoftDeleteByUpstreamId(ctx, upstreamID))
		case UserStudent:
			if d.Students == nil {
				return errSkipped
			}
			return wrapErr(env.ID, d.Students.Reconciler.SoftDeleteByUpstreamId(ctx, upstreamID))
		default:
			if d.Teachers == nil && d.Students == nil {
				return errSkipped
			}
			if d.Teachers != nil {
				if err := d.Teachers.Reconciler.SoftDeleteByUpstreamId(ctx, upstreamID); err != nil {
					return wrapErr(env.ID, err)
				}
			}
			if d.Students != nil {
				return wrapErr(env.ID, d.Students.Reconciler.SoftDeleteByUpstreamId(ctx, upstreamID))
			}
			return nil
		}
	}

	kind, err := ClassifyUser(env.Payload)
	if err != nil {
		return wrapErr(env.ID, err)
	}
	switch kind {
	case UserStudent:
		if d.Students == nil {
			return errSkipped
		}
		student, err := DecodeStudent(env.Payload)
		if err != nil {
			return wrapErr(env.ID, err)
		}
		_, err = d.Students.Reconciler.UpsertOne(ctx, attemptStart, student)
		return wrapErr(env.ID, err)
	case UserTeacher:
		if d.Teachers == nil {
			return errSkipped
		}
		teacher, err := DecodeTeacher(env.Payload)
		if err != nil {
			return wrapErr(env.ID, err)
		}
		_, err = d.Teachers.Reconciler.UpsertOne(ctx, attemptStart, teacher)
		return wrapErr(env.ID, err)
	default:
		return fmt.Errorf("events: user event %s has no classifiable roles", env.ID)
	}
}

func dispatchSection(ctx context.Context, attemptStart time.Time, env Envelope, d Dispatchers) error {
	if d.Sections == nil {
		return errSkipped
	}
	if env.Action() == ActionDeleted {
		return wrapErr(env.ID, d.Sections.Reconciler.SoftDeleteByUpstreamId(ctx, deletedUpstreamID(env.Payload)))
	}
	decoded, err := DecodeSection(env.Payload)
	if err != nil {
		return wrapErr(env.ID, err)
	}
	_, _, err = d.Sections.Reconciler.UpsertOne(ctx, attemptStart, sectionsync.Incoming{
		Section:                  decoded.Section,
		TeacherUpstreamIDs:       decoded.TeacherUpstreamIDs,
		PrimaryTeacherUpstreamID: decoded.PrimaryTeacherUpstreamID,
		StudentUpstreamIDs:       decoded.StudentUpstreamIDs,
	})
	return wrapErr(env.ID, err)
}

func dispatchTerm(ctx context.Context, attemptStart time.Time, env Envelope, d Dispatchers) error {
	if d.Terms == nil {
		return errSkipped
	}
	if env.Action() == ActionDeleted {
		return wrapErr(env.ID, d.Terms.Reconciler.SoftDeleteByUpstreamId(ctx, deletedUpstreamID(env.Payload)))
	}
	term, err := DecodeTerm(env.Payload)
	if err != nil {
		return wrapErr(env.ID, err)
	}
	_, err = d.Terms.Reconciler.UpsertOne(ctx, attemptStart, term)
	return wrapErr(env.ID, err)
}

func wrapErr(eventID string, err error) error {
	if err == nil {
		return nil
	}
	return RecordError{EventID: eventID, Err: err}
}

type idOnlyPayload struct {
	ID string `json:"id"`
}

func deletedUpstreamID(raw []byte) string {
	var p idOnlyPayload
	_ = json.Unmarshal(raw, &p)
	return p.ID
}
