// Package protect implements the protected-section gating rules
// (spec.md §4.5, C5): warn-but-apply on a protected name change,
// warn-and-skip on a protected section missing from a full sync, and
// an enrollment-changed signal consumed by the orchestrator to decide
// whether to fire the downstream procedure. The protected-id cache is
// an in-memory indexed lookup table, grounded on the teacher's
// pkg/state KongState memdb tables (same "load once, query many times
// per attempt" shape).
package protect

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	memdb "github.com/hashicorp/go-memdb"

	"github.com/brightpath-labs/roster-sync/model"
)

const tableProtectedSections = "protected_sections"

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableProtectedSections: {
				Name: tableProtectedSections,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "UpstreamID"},
					},
				},
			},
		},
	}
}

// Tracker holds the protected-section-id cache for one school attempt
// plus the enrollmentChanged flag C7 consults to decide whether the
// downstream procedure needs to run. It must be constructed fresh per
// attempt (spec.md §5: protection trackers are attempt-scoped and never
// shared).
type Tracker struct {
	db                *memdb.MemDB
	enrollmentChanged bool
}

// NewTracker loads the given protected section refs into an indexed
// in-memory table once per attempt.
func NewTracker(refs []model.ProtectedSectionRef) (*Tracker, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("protect: build memdb: %w", err)
	}
	txn := db.Txn(true)
	for _, ref := range refs {
		if err := txn.Insert(tableProtectedSections, ref); err != nil {
			txn.Abort()
			return nil, fmt.Errorf("protect: index protected section %q: %w", ref.UpstreamID, err)
		}
	}
	txn.Commit()
	return &Tracker{db: db}, nil
}

// IsProtected reports whether upstreamSectionID is a protected section.
func (t *Tracker) IsProtected(upstreamSectionID string) (model.ProtectedSectionRef, bool, error) {
	txn := t.db.Txn(false)
	raw, err := txn.First(tableProtectedSections, "id", upstreamSectionID)
	if err != nil {
		return model.ProtectedSectionRef{}, false, fmt.Errorf("protect: lookup %q: %w", upstreamSectionID, err)
	}
	if raw == nil {
		return model.ProtectedSectionRef{}, false, nil
	}
	return raw.(model.ProtectedSectionRef), true, nil
}

// MarkEnrollmentChanged flips the attempt-wide enrollment-changed flag.
// Implements assoc.EnrollmentSignal.
func (t *Tracker) MarkEnrollmentChanged(string) {
	t.enrollmentChanged = true
}

// EnrollmentChanged reports whether any protected section's roster
// changed during this attempt, consumed by C7 to gate the downstream
// procedure invocation.
func (t *Tracker) EnrollmentChanged() bool {
	return t.enrollmentChanged
}

// WarningSink persists Warning rows produced by the policy below.
type WarningSink interface {
	InsertWarning(w model.Warning) error
}

// Policy applies the three gating rules to a Section reconciler's
// in-flight upsert/orphan decisions.
type Policy struct {
	attemptID string
	now       func() time.Time
	sink      WarningSink
}

// NewPolicy constructs a Policy for one attempt.
func NewPolicy(attemptID string, now func() time.Time, sink WarningSink) *Policy {
	return &Policy{attemptID: attemptID, now: now, sink: sink}
}

// SetAttemptID re-targets the Policy at a new attempt, so warnings it
// writes afterwards link to attemptID. The orchestrator does not use
// it: it constructs a fresh Policy with NewPolicy for each phase.
func (p *Policy) SetAttemptID(attemptID string) {
	p.attemptID = attemptID
}

// OnNameChange implements "a protected section has a name change ->
// write a ProtectedSectionModified warning but still apply the
// update." It does not check whether ref is protected; it always writes
// the warning, so callers invoke it only after IsProtected returned true.
func (p *Policy) OnNameChange(ref model.ProtectedSectionRef, oldName, newName string) error {
	return p.warn(model.WarningProtectedSectionModified, model.KindSection, ref.SectionID, ref.UpstreamID, ref.DisplayName,
		fmt.Sprintf("protected section %q changed name from %q to %q", ref.DisplayName, oldName, newName),
		[]model.ProtectedRef{{SectionID: ref.SectionID, UpstreamID: ref.UpstreamID, DisplayName: ref.DisplayName}})
}

// OnMissingDuringFullSync implements "a protected section is absent
// from upstream during a full sync -> write a ProtectedSectionMissing
// warning and SKIP the soft-delete." Callers must treat this as a
// signal not to call SoftDeleteByUpstreamId for this section.
func (p *Policy) OnMissingDuringFullSync(ref model.ProtectedSectionRef) error {
	return p.warn(model.WarningProtectedSectionMissing, model.KindSection, ref.SectionID, ref.UpstreamID, ref.DisplayName,
		fmt.Sprintf("protected section %q was not present in the latest full sync; soft-delete skipped", ref.DisplayName),
		[]model.ProtectedRef{{SectionID: ref.SectionID, UpstreamID: ref.UpstreamID, DisplayName: ref.DisplayName}})
}

// OnDownstreamFailure records a DownstreamSyncFailed warning, used by
// C7 when RunDownstream returns an error (spec.md §4.7 step 9: the
// failure is surfaced as a warning but never fails the sync).
func (p *Policy) OnDownstreamFailure(sectionAttemptID string, cause error) error {
	return p.warn(model.WarningDownstreamSyncFailed, model.KindSection, "", "", "",
		fmt.Sprintf("downstream procedure failed for section attempt %s: %v", sectionAttemptID, cause), nil)
}

func (p *Policy) warn(kind model.WarningKind, entityKind model.EntityKind, entityID, upstreamID, displayName, message string, refs []model.ProtectedRef) error {
	if p.sink == nil {
		return nil
	}
	w := model.Warning{
		WarningID:              uuid.NewString(),
		AttemptID:              p.attemptID,
		Kind:                   kind,
		EntityKind:             entityKind,
		EntityID:               entityID,
		UpstreamID:             upstreamID,
		DisplayName:            displayName,
		Message:                message,
		AffectedProtectedRefs:  refs,
		AffectedProtectedCount: len(refs),
		CreatedAt:              p.now(),
	}
	if err := p.sink.InsertWarning(w); err != nil {
		return fmt.Errorf("protect: insert warning %s: %w", kind, err)
	}
	return nil
}

// MarshalProtectedRefs renders a slice of ProtectedRef as the JSON blob
// stored alongside a Warning row's affected-count, per spec.md §4.5.
func MarshalProtectedRefs(refs []model.ProtectedRef) (string, error) {
	b, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("protect: marshal protected refs: %w", err)
	}
	return string(b), nil
}
