// Package store declares the persistence surfaces the core consumes
// (spec.md §3, §6). It holds interfaces only; the Postgres
// implementation lives in pgstore. Splitting the contract out this way
// mirrors the teacher's pkg/state package, which defines the KongState
// surface independently of any one backing store.
package store

import (
	"context"
	"time"

	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/protect"
)

// OrchestrationStore is the single shared store (spec.md §3:
// "Orchestration store (one, shared across all tenants)").
type OrchestrationStore interface {
	ListActiveDistricts(ctx context.Context) ([]model.District, error)
	ListActiveSchools(ctx context.Context, districtID string) ([]model.School, error)
	GetSchool(ctx context.Context, schoolID string) (model.School, error)
	ClearRequiresFullSync(ctx context.Context, schoolID string) error

	// InsertAttempt creates an attempt row before work begins
	// (spec.md §4.9) and returns its freshly-assigned AttemptID.
	InsertAttempt(ctx context.Context, attempt model.SyncAttempt) (string, error)
	// UpdateAttempt persists the final state of an attempt row.
	UpdateAttempt(ctx context.Context, attempt model.SyncAttempt) error
	// LatestSuccessfulAttempt returns the most recent Success attempt
	// for (schoolID, kind).
	LatestSuccessfulAttempt(ctx context.Context, schoolID string, kind model.EntityKind) (model.SyncAttempt, bool, error)
	// HasAnySuccessfulAttempt reports whether this school has ever
	// completed any attempt successfully (spec.md §4.7: "no prior
	// Success attempt exists" forces a full sync for brand-new schools).
	HasAnySuccessfulAttempt(ctx context.Context, schoolID string) (bool, error)
	// LatestSuccessfulCursorAttempt returns the most recent successful
	// Baseline or Event attempt, whichever is newer — the source of the
	// incremental replay cursor (spec.md §4.7 mode selection).
	LatestSuccessfulCursorAttempt(ctx context.Context, schoolID string) (model.SyncAttempt, bool, error)
	// RecoverStaleAttempts marks InProgress attempts older than
	// olderThan as Failed (spec.md §4.9, optional recovery pass).
	RecoverStaleAttempts(ctx context.Context, olderThan time.Time) (int, error)
}

// SchoolStore is one tenant's per-school store (spec.md §3: "Per-school
// store (one per tenant)"). It embeds the narrower interfaces each
// component needs so a concrete implementation (pgstore.SchoolStore)
// can be passed wherever any one of them is expected. Warning rows are
// stored here, not on OrchestrationStore, since a Warning's EntityID
// references a row local to one school (spec.md §4.5).
type SchoolStore interface {
	audit.Sink
	protect.WarningSink
	StudentStore
	TeacherStore
	SectionStore
	TermStore
	MembershipStore
	ProtectedSectionView

	// Close releases the connection, guaranteed on every exit path by
	// the connection factory that opened it (spec.md §6).
	Close() error
}

// StudentStore is the student half of a SchoolStore, typed for
// reconcile.Store[*model.Student].
type StudentStore interface {
	FindStudentByUpstreamID(ctx context.Context, upstreamID string) (*model.Student, bool, error)
	InsertStudent(ctx context.Context, rec *model.Student) error
	UpdateStudent(ctx context.Context, rec *model.Student) error
	NewStudentID() string
	ScanStudentOrphans(ctx context.Context, cutoff time.Time) ([]*model.Student, error)
}

// TeacherStore is the teacher half of a SchoolStore.
type TeacherStore interface {
	FindTeacherByUpstreamID(ctx context.Context, upstreamID string) (*model.Teacher, bool, error)
	InsertTeacher(ctx context.Context, rec *model.Teacher) error
	UpdateTeacher(ctx context.Context, rec *model.Teacher) error
	NewTeacherID() string
	ScanTeacherOrphans(ctx context.Context, cutoff time.Time) ([]*model.Teacher, error)
}

// SectionStore is the section half of a SchoolStore.
type SectionStore interface {
	FindSectionByUpstreamID(ctx context.Context, upstreamID string) (*model.Section, bool, error)
	InsertSection(ctx context.Context, rec *model.Section) error
	UpdateSection(ctx context.Context, rec *model.Section) error
	NewSectionID() string
	// ScanSectionMissing returns non-deleted sections never explicitly
	// orphaned by C3's generic DetectOrphans (sections use sectionsync's
	// own presence/absence pass instead, spec.md §4.9), but the
	// underlying scan is the same lastSeenAt index.
	ScanSectionMissing(ctx context.Context, cutoff time.Time) ([]*model.Section, error)
}

// TermStore is the term half of a SchoolStore.
type TermStore interface {
	FindTermByUpstreamID(ctx context.Context, upstreamID string) (*model.Term, bool, error)
	InsertTerm(ctx context.Context, rec *model.Term) error
	UpdateTerm(ctx context.Context, rec *model.Term) error
	NewTermID() string
	ScanTermOrphans(ctx context.Context, cutoff time.Time) ([]*model.Term, error)
}

// MembershipStore is the assoc half of a SchoolStore, plus the id
// resolvers assoc.TeacherResolver/StudentResolver/SectionResolverFunc
// need.
type MembershipStore interface {
	ResolveTeacherID(ctx context.Context, upstreamID string) (string, bool, error)
	ResolveStudentID(ctx context.Context, upstreamID string) (string, bool, error)
	ResolveSectionID(ctx context.Context, upstreamID string) (string, bool, error)

	ReplaceSectionTeachers(ctx context.Context, sectionID string, rows []model.TeacherSection) error
	ListSectionStudents(ctx context.Context, sectionID string) ([]AssocStudentEnrollment, error)
	InsertStudentEnrollment(ctx context.Context, sectionID string, row model.StudentSection) error
	DeleteStudentEnrollment(ctx context.Context, sectionID, studentID string) error
}

// AssocStudentEnrollment mirrors assoc.StudentEnrollment; store can't
// import assoc (assoc doesn't depend on store, avoiding a cycle), so
// pgstore converts between the two at the call site.
type AssocStudentEnrollment struct {
	StudentID         string
	UpstreamStudentID string
	OffCampus         bool
}

// ProtectedSectionView is the read-only protected-sections lookup C5
// loads once per attempt into protect.Tracker.
type ProtectedSectionView interface {
	ListProtectedSections(ctx context.Context) ([]model.ProtectedSectionRef, error)
}

// ConnectionFactory opens a SchoolStore for one school, guaranteeing
// release on every exit path (spec.md §6). Out of scope to implement
// (secret-store backed); interface only, per the teacher's
// pkg/file pattern of accepting a pre-opened handle rather than owning
// connection lifecycle itself.
type ConnectionFactory interface {
	OpenSchoolStore(ctx context.Context, school model.School) (SchoolStore, error)
}

// DownstreamProcedure is the out-of-scope "workshop" stored procedure
// invocation (spec.md §6): `RunDownstream(store, sectionAttemptId,
// protectionTracker) -> {success, skipped, error?}`.
type DownstreamProcedure interface {
	RunDownstream(ctx context.Context, store SchoolStore, sectionAttemptID string, tracker *protect.Tracker) (DownstreamResult, error)
}

// DownstreamResult is the outcome of one DownstreamProcedure invocation.
type DownstreamResult struct {
	Success bool
	Skipped bool
}
