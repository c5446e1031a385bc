// Package model holds the plain data structures shared by the
// orchestration store and every per-school store.
package model

import "time"

// EntityKind identifies the kind of entity a SyncAttempt, ChangeAudit or
// Warning row pertains to.
type EntityKind string

const (
	KindStudent  EntityKind = "Student"
	KindTeacher  EntityKind = "Teacher"
	KindSection  EntityKind = "Section"
	KindTerm     EntityKind = "Term"
	KindEvent    EntityKind = "Event"
	KindBaseline EntityKind = "Baseline"
)

// SyncMode is whether an attempt replayed the full upstream dataset or
// an incremental event stream.
type SyncMode string

const (
	ModeFull        SyncMode = "Full"
	ModeIncremental SyncMode = "Incremental"
)

// AttemptStatus is the lifecycle state of a SyncAttempt row.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "InProgress"
	StatusSuccess    AttemptStatus = "Success"
	StatusPartial    AttemptStatus = "Partial"
	StatusFailed     AttemptStatus = "Failed"
)

// IsTerminal reports whether status can no longer transition.
func (s AttemptStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFailed
}

// ChangeKind is the kind of change a ChangeAudit row records.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "Created"
	ChangeUpdated  ChangeKind = "Updated"
	ChangeDeleted  ChangeKind = "Deleted"
	ChangeOrphaned ChangeKind = "Orphaned"
)

// WarningKind is the kind of a Warning row.
type WarningKind string

const (
	WarningProtectedSectionModified WarningKind = "ProtectedSectionModified"
	WarningProtectedSectionMissing  WarningKind = "ProtectedSectionMissing"
	WarningDownstreamSyncFailed     WarningKind = "DownstreamSyncFailed"
)

// District is a row in the shared orchestration store.
type District struct {
	DistrictID         string
	UpstreamDistrictID string
	Name               string
	Timezone           string
}

// School is a row in the shared orchestration store.
type School struct {
	SchoolID         string
	DistrictID       string
	UpstreamSchoolID string
	Name             string
	DBLocator        string
	Active           bool
	RequiresFullSync bool
}

// SyncAttempt scopes a single phase of sync work and the audit trail it
// produces. Terminal rows (Status.IsTerminal()) are immutable.
type SyncAttempt struct {
	AttemptID          string
	SchoolID           string
	EntityKind         EntityKind
	Mode               SyncMode
	StartedAt          time.Time
	EndedAt            *time.Time
	Status             AttemptStatus
	RecordsProcessed   int
	RecordsUpdated     int
	RecordsFailed      int
	ErrorMessage       string
	Cursor             *string
	CursorTimestamp    *time.Time
	LastKnownSyncPoint *time.Time
	SummaryBlob        map[string]int
}

// ChangeAudit is one field-level diff row produced during an attempt.
type ChangeAudit struct {
	AuditID        string
	AttemptID      string
	EntityKind     EntityKind
	UpstreamID     string
	DisplayName    string
	ChangeKind     ChangeKind
	FieldList      []string
	OldValuesJSON  string
	NewValuesJSON  string
	At             time.Time
}

// Warning records a protected-entity collision or downstream failure.
type Warning struct {
	WarningID              string
	AttemptID              string
	Kind                   WarningKind
	EntityKind             EntityKind
	EntityID               string
	UpstreamID             string
	DisplayName            string
	Message                string
	AffectedProtectedRefs  []ProtectedRef
	AffectedProtectedCount int
	Acknowledged           bool
	CreatedAt              time.Time
}

// ProtectedRef is one entry in a Warning's affected-protected-refs list.
type ProtectedRef struct {
	SectionID   string
	UpstreamID  string
	DisplayName string
}

// lifecycle holds the fields every per-school entity shares.
type lifecycle struct {
	ID         string
	UpstreamID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastSeenAt time.Time
	DeletedAt  *time.Time
}

// IsDeleted reports whether the record is soft-deleted.
func (l lifecycle) IsDeleted() bool { return l.DeletedAt != nil }

// Student is a per-school roster row.
type Student struct {
	lifecycle
	FirstName     string
	MiddleName    string
	LastName      string
	Grade         *int
	GradeLabel    string
	StudentNumber string
	StateID       string
}

// Identifier returns the upstream id, the reconciliation key for this kind.
func (s *Student) Identifier() string { return s.UpstreamID }

// Teacher is a per-school roster row.
type Teacher struct {
	lifecycle
	FirstName    string
	LastName     string
	FullName     string
	StaffNumber  string
	TeacherNumber string
	Username     string
}

func (t *Teacher) Identifier() string { return t.UpstreamID }

// Section is a per-school roster row.
type Section struct {
	lifecycle
	Name    string
	Period  string
	Subject string
	TermRef string
}

func (s *Section) Identifier() string { return s.UpstreamID }

// Term is a per-school roster row. IsManual terms are never orphaned.
type Term struct {
	lifecycle
	DistrictRef string
	Name        string
	StartDate   *time.Time
	EndDate     *time.Time
	IsManual    bool
}

func (t *Term) Identifier() string { return t.UpstreamID }

// TeacherSection is a membership row (composite key teacherID+sectionID).
type TeacherSection struct {
	TeacherID string
	SectionID string
	IsPrimary bool
}

// StudentSection is a membership row (composite key studentID+sectionID).
type StudentSection struct {
	StudentID  string
	SectionID  string
	OffCampus  bool
}

// ProtectedSectionRef is a read-only view of sections referenced by the
// downstream system.
type ProtectedSectionRef struct {
	SectionID   string
	UpstreamID  string
	DisplayName string
}

// NewLifecycle constructs the shared lifecycle fields for a brand-new
// record being inserted during an upsert.
func NewLifecycle(id, upstreamID string, now time.Time) lifecycle {
	return lifecycle{
		ID:         id,
		UpstreamID: upstreamID,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
	}
}

// Touch bumps LastSeenAt and, if changed is true, UpdatedAt.
func (l *lifecycle) Touch(now time.Time, changed bool) {
	l.LastSeenAt = now
	if changed {
		l.UpdatedAt = now
	}
}

// Restore clears DeletedAt.
func (l *lifecycle) Restore() { l.DeletedAt = nil }

// SoftDelete sets DeletedAt and UpdatedAt to now.
func (l *lifecycle) SoftDelete(now time.Time) {
	l.DeletedAt = &now
	l.UpdatedAt = now
}

// GetID returns the record's local id.
func (l *lifecycle) GetID() string { return l.ID }

// SetID assigns the local id, used when an upsert inserts a brand-new row.
func (l *lifecycle) SetID(id string) { l.ID = id }

// GetUpstreamID returns the stable reconciliation key.
func (l *lifecycle) GetUpstreamID() string { return l.UpstreamID }

// SetUpstreamID assigns the stable reconciliation key, used when
// decoding a freshly-received upstream record that has no local row yet.
func (l *lifecycle) SetUpstreamID(id string) { l.UpstreamID = id }

// GetDeletedAt returns the soft-delete marker, nil when live.
func (l *lifecycle) GetDeletedAt() *time.Time { return l.DeletedAt }

// GetLastSeenAt returns the last time this row was observed upstream.
func (l *lifecycle) GetLastSeenAt() time.Time { return l.LastSeenAt }

// GetUpdatedAt returns the last modification time.
func (l *lifecycle) GetUpdatedAt() time.Time { return l.UpdatedAt }
