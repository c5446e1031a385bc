// Package reconcile implements the per-entity-kind upsert, change
// detection, orphan soft-delete contract (spec.md §4.3, C3). The
// present/absent branch-then-diff shape is grounded directly on the
// teacher's pkg/types/route.go routeDiffer: look the record up by its
// stable key, and either insert-fresh or diff-and-maybe-update.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/normalize"
)

// Entity is the subset of behavior every per-school roster row shares,
// implemented via model's embedded lifecycle type.
type Entity interface {
	Identifier() string
	GetID() string
	SetID(string)
	GetUpstreamID() string
	GetDeletedAt() *time.Time
	GetLastSeenAt() time.Time
	GetUpdatedAt() time.Time
	Touch(now time.Time, changed bool)
	Restore()
	SoftDelete(now time.Time)
}

// FieldDiffer produces the audit.Field list and whether any of them
// differ, comparing a previously-loaded record against incoming
// upstream values. Implemented once per entity kind (student.go,
// teacher.go, section.go, term.go).
type FieldDiffer[T Entity] interface {
	// Normalize applies C1-style normalization to the incoming record
	// in place (e.g. grade-string parsing) before comparison/apply.
	Normalize(incoming T)
	// Diff returns the tracked-field diffs between current and
	// incoming, using normalize.StringsEqual for strings and
	// structural equality (google/go-cmp) for everything else.
	Diff(current, incoming T) []audit.Field
	// Apply copies every non-lifecycle field from incoming onto
	// current (used both for fresh inserts and for updates).
	Apply(current, incoming T)
	// DisplayName is the human-readable label used in audit rows.
	DisplayName(rec T) string
	// Kind is the EntityKind this differ handles.
	Kind() model.EntityKind
	// Zero returns a fresh, blank record of T, used as the "current"
	// side of a fresh-insert Diff so the Create audit row lists every
	// non-blank incoming field as (null -> newValue).
	Zero() T
}

// Store is the persistence surface a Reconciler needs from the
// per-school store for one entity kind.
type Store[T Entity] interface {
	// FindByUpstreamID returns the current record, or (zero, false) if
	// absent. The returned value is a fresh copy safe to mutate.
	FindByUpstreamID(ctx context.Context, upstreamID string) (T, bool, error)
	// Insert persists a brand-new record.
	Insert(ctx context.Context, rec T) error
	// Update persists changes to an existing record.
	Update(ctx context.Context, rec T) error
	// NewID allocates a fresh local id for an insert.
	NewID() string
	// ScanOrphans returns every non-deleted record whose LastSeenAt is
	// strictly before cutoff. Must be backed by a single indexed query
	// (spec.md §4.3: "Scan must be a single indexed query").
	ScanOrphans(ctx context.Context, cutoff time.Time) ([]T, error)
}

// Reconciler is the generic per-entity-kind engine. One is constructed
// per school attempt per kind (Student, Teacher, Section, Term).
type Reconciler[T Entity] struct {
	store  Store[T]
	differ FieldDiffer[T]
	now    func() time.Time
	auditor *audit.Auditor
}

// New constructs a Reconciler for one entity kind.
func New[T Entity](store Store[T], differ FieldDiffer[T], now func() time.Time, auditor *audit.Auditor) *Reconciler[T] {
	return &Reconciler[T]{store: store, differ: differ, now: now, auditor: auditor}
}

// UpsertOne implements spec.md §4.3's UpsertOne contract. attemptStart
// is the owning attempt's StartedAt, used to stamp LastSeenAt so it is
// always >= attempt.startedAt (P1) and monotonic within the attempt.
func (r *Reconciler[T]) UpsertOne(ctx context.Context, attemptStart time.Time, incoming T) (didChange bool, err error) {
	r.differ.Normalize(incoming)

	current, found, err := r.store.FindByUpstreamID(ctx, incoming.GetUpstreamID())
	if err != nil {
		return false, fmt.Errorf("reconcile: lookup %s %q: %w", r.differ.Kind(), incoming.GetUpstreamID(), err)
	}

	if !found {
		incoming.SetID(r.store.NewID())
		incoming.Touch(attemptStart, true)
		fields := r.differ.Diff(r.differ.Zero(), incoming) // blank "current" vs incoming captures every set field
		if r.auditor != nil {
			r.auditor.TrackCreate(r.differ.Kind(), incoming.GetUpstreamID(), r.differ.DisplayName(incoming), fields)
		}
		if err := r.store.Insert(ctx, incoming); err != nil {
			return false, fmt.Errorf("reconcile: insert %s %q: %w", r.differ.Kind(), incoming.GetUpstreamID(), err)
		}
		return true, nil
	}

	wasDeleted := current.GetDeletedAt() != nil
	diffFields := r.differ.Diff(current, incoming)
	changed := len(diffFields) > 0 || wasDeleted

	current.Touch(attemptStart, changed)
	if !changed {
		if err := r.store.Update(ctx, current); err != nil {
			return false, fmt.Errorf("reconcile: touch %s %q: %w", r.differ.Kind(), incoming.GetUpstreamID(), err)
		}
		return false, nil
	}

	if wasDeleted {
		current.Restore()
	}
	r.differ.Apply(current, incoming)

	if r.auditor != nil {
		r.auditor.TrackUpdate(r.differ.Kind(), incoming.GetUpstreamID(), r.differ.DisplayName(current), diffFields)
	}
	if err := r.store.Update(ctx, current); err != nil {
		return false, fmt.Errorf("reconcile: update %s %q: %w", r.differ.Kind(), incoming.GetUpstreamID(), err)
	}
	return true, nil
}

// SoftDeleteByUpstreamId sets DeletedAt/UpdatedAt if the record is
// present and not already deleted, and emits a Delete audit row.
func (r *Reconciler[T]) SoftDeleteByUpstreamId(ctx context.Context, upstreamID string) error {
	current, found, err := r.store.FindByUpstreamID(ctx, upstreamID)
	if err != nil {
		return fmt.Errorf("reconcile: lookup %s %q: %w", r.differ.Kind(), upstreamID, err)
	}
	if !found || current.GetDeletedAt() != nil {
		return nil
	}

	now := r.now()
	current.SoftDelete(now)
	if r.auditor != nil {
		r.auditor.TrackDelete(r.differ.Kind(), upstreamID, r.differ.DisplayName(current))
	}
	if err := r.store.Update(ctx, current); err != nil {
		return fmt.Errorf("reconcile: soft-delete %s %q: %w", r.differ.Kind(), upstreamID, err)
	}
	return nil
}

// DetectOrphans is the full-sync-only orphan pass (spec.md §4.3): every
// non-deleted record with LastSeenAt < attempt.startedAt is soft
// deleted. isOrphanable lets callers (the Term reconciler) exclude
// isManual rows from the scan without leaking that concept into this
// generic engine.
func (r *Reconciler[T]) DetectOrphans(ctx context.Context, attemptStart time.Time, isOrphanable func(T) bool) (int, error) {
	candidates, err := r.store.ScanOrphans(ctx, attemptStart)
	if err != nil {
		return 0, fmt.Errorf("reconcile: scan orphans %s: %w", r.differ.Kind(), err)
	}

	now := r.now()
	orphaned := 0
	for _, rec := range candidates {
		if isOrphanable != nil && !isOrphanable(rec) {
			continue
		}
		rec.SoftDelete(now)
		if err := r.store.Update(ctx, rec); err != nil {
			return orphaned, fmt.Errorf("reconcile: orphan %s %q: %w", r.differ.Kind(), rec.GetUpstreamID(), err)
		}
		if r.auditor != nil {
			r.auditor.TrackOrphan(r.differ.Kind(), rec.GetUpstreamID(), r.differ.DisplayName(rec))
		}
		orphaned++
	}
	return orphaned, nil
}

// Peek returns the current persisted record for upstreamID without
// modifying anything, used by callers (the Section reconciler wrapper)
// that need to inspect a field's prior value before UpsertOne applies
// the new one.
func (r *Reconciler[T]) Peek(ctx context.Context, upstreamID string) (T, bool, error) {
	return r.store.FindByUpstreamID(ctx, upstreamID)
}

// ScanOrphanCandidates exposes the store's indexed lastSeenAt scan
// directly, for callers (the Section reconciler wrapper) that need
// custom per-record gating instead of DetectOrphans' unconditional
// soft-delete.
func (r *Reconciler[T]) ScanOrphanCandidates(ctx context.Context, cutoff time.Time) ([]T, error) {
	return r.store.ScanOrphans(ctx, cutoff)
}

// SoftDeleteRecord soft-deletes an already-loaded record (as returned
// by ScanOrphanCandidates), tracks an Orphaned audit row, and persists
// it. Exported for the same custom-gating callers as ScanOrphanCandidates.
func (r *Reconciler[T]) SoftDeleteRecord(ctx context.Context, rec T) error {
	rec.SoftDelete(r.now())
	if err := r.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("reconcile: soft-delete %s %q: %w", r.differ.Kind(), rec.GetUpstreamID(), err)
	}
	if r.auditor != nil {
		r.auditor.TrackOrphan(r.differ.Kind(), rec.GetUpstreamID(), r.differ.DisplayName(rec))
	}
	return nil
}

// StructEqual is the shared structural-equality helper for typed,
// non-string fields (grade ints, dates), used by each entity kind's
// FieldDiffer instead of the teacher's reflect.DeepEqual.
func StructEqual[V any](a, b V) bool {
	return cmp.Equal(a, b)
}

// StringFieldEqual is a thin re-export so per-entity differs don't need
// to import normalize directly for the one function they call.
func StringFieldEqual(a, b string) bool {
	return normalize.StringsEqual(a, b)
}
