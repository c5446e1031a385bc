// Package assoc implements Section<->Teacher and Section<->Student
// membership reconciliation (spec.md §4.4, C4). It is invoked by the
// Section reconciler's caller once a section's UpsertOne has completed,
// never on its own.
package assoc

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/brightpath-labs/roster-sync/model"
)

// TeacherResolver maps an upstream teacher id to the local row id.
type TeacherResolver interface {
	ResolveTeacherID(ctx context.Context, upstreamID string) (localID string, found bool, error error)
}

// StudentResolver maps an upstream student id to the local row id.
type StudentResolver interface {
	ResolveStudentID(ctx context.Context, upstreamID string) (localID string, found bool, error error)
}

// SectionResolverFunc maps an upstream section id to its local row id,
// used by sectionsync.Reconciler to locate the row Associations Sync
// should write against immediately after a section upsert.
type SectionResolverFunc func(ctx context.Context, upstreamID string) (localID string, found bool, err error)

// StudentEnrollment is one existing StudentSection row, widened with the
// upstream student id so it can be diffed against the incoming list
// without a second round-trip per row.
type StudentEnrollment struct {
	StudentID         string
	UpstreamStudentID string
	OffCampus         bool
}

// MembershipStore is the persistence surface C4 needs from the
// per-school store.
type MembershipStore interface {
	// ReplaceSectionTeachers deletes every existing TeacherSection row
	// for sectionID and inserts rows, in a single transaction.
	ReplaceSectionTeachers(ctx context.Context, sectionID string, rows []model.TeacherSection) error
	// ListSectionStudents returns the section's current enrollments.
	ListSectionStudents(ctx context.Context, sectionID string) ([]StudentEnrollment, error)
	// InsertStudentEnrollment adds one new StudentSection row.
	InsertStudentEnrollment(ctx context.Context, sectionID string, row model.StudentSection) error
	// DeleteStudentEnrollment removes one StudentSection row by local student id.
	DeleteStudentEnrollment(ctx context.Context, sectionID, studentID string) error
}

// EnrollmentSignal is the subset of the Protection tracker (C5) that C4
// needs to notify when a protected section's roster changes.
type EnrollmentSignal interface {
	MarkEnrollmentChanged(sectionUpstreamID string)
}

// Result summarizes one section's association sync.
type Result struct {
	TeachersLinked    int
	TeachersMissing   int
	StudentsAdded     int
	StudentsRemoved   int
	StudentsUnchanged int
}

// Syncer performs Section<->Teacher and Section<->Student reconciliation
// for one school attempt.
type Syncer struct {
	teachers   TeacherResolver
	students   StudentResolver
	membership MembershipStore
	log        *zap.Logger
}

// New constructs a Syncer.
func New(teachers TeacherResolver, students StudentResolver, membership MembershipStore, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{teachers: teachers, students: students, membership: membership, log: log}
}

// SyncSection reconciles one section's teacher and student membership.
// sectionUpstreamID, isProtected and signal are used only to honor
// spec.md §4.4's protected-enrollment-change notification; signal may
// be nil when the section is not protected.
func (s *Syncer) SyncSection(
	ctx context.Context,
	sectionID, sectionUpstreamID string,
	incomingTeacherUpstreamIDs []string,
	primaryTeacherUpstreamID string,
	incomingStudentUpstreamIDs []string,
	isProtected bool,
	signal EnrollmentSignal,
) (Result, error) {
	var result Result

	teacherRows, missing, err := s.resolveTeacherRows(ctx, incomingTeacherUpstreamIDs, primaryTeacherUpstreamID)
	if err != nil {
		return result, fmt.Errorf("assoc: resolve teachers for section %q: %w", sectionUpstreamID, err)
	}
	result.TeachersLinked = len(teacherRows)
	result.TeachersMissing = missing
	if err := s.membership.ReplaceSectionTeachers(ctx, sectionID, teacherRows); err != nil {
		return result, fmt.Errorf("assoc: replace teachers for section %q: %w", sectionUpstreamID, err)
	}

	studentResult, enrollmentChanged, err := s.syncStudents(ctx, sectionID, incomingStudentUpstreamIDs)
	if err != nil {
		return result, fmt.Errorf("assoc: sync students for section %q: %w", sectionUpstreamID, err)
	}
	result.StudentsAdded = studentResult.added
	result.StudentsRemoved = studentResult.removed
	result.StudentsUnchanged = studentResult.unchanged

	if isProtected && enrollmentChanged && signal != nil {
		signal.MarkEnrollmentChanged(sectionUpstreamID)
	}
	return result, nil
}

func (s *Syncer) resolveTeacherRows(ctx context.Context, upstreamIDs []string, primaryUpstreamID string) ([]model.TeacherSection, int, error) {
	rows := make([]model.TeacherSection, 0, len(upstreamIDs))
	missing := 0
	for _, upstreamID := range upstreamIDs {
		localID, found, err := s.teachers.ResolveTeacherID(ctx, upstreamID)
		if err != nil {
			return nil, missing, err
		}
		if !found {
			s.log.Warn("assoc: teacher not found locally, skipping section link",
				zap.String("upstreamTeacherId", upstreamID))
			missing++
			continue
		}
		rows = append(rows, model.TeacherSection{
			TeacherID: localID,
			IsPrimary: upstreamID == primaryUpstreamID,
		})
	}
	return rows, missing, nil
}

type studentSyncResult struct {
	added, removed, unchanged int
}

// syncStudents implements the keep/insert/delete diff described in
// spec.md §4.4: existing enrollments are built into a set keyed by
// upstream student id, the incoming list is diffed against it with
// samber/lo, and rows are inserted/deleted accordingly. Student
// enrollment rows are never rewritten wholesale (unlike teacher rows)
// so that foreign keys held by other downstream tables survive.
func (s *Syncer) syncStudents(ctx context.Context, sectionID string, incomingUpstreamIDs []string) (studentSyncResult, bool, error) {
	var out studentSyncResult

	existing, err := s.membership.ListSectionStudents(ctx, sectionID)
	if err != nil {
		return out, false, err
	}

	existingByUpstream := make(map[string]StudentEnrollment, len(existing))
	for _, e := range existing {
		existingByUpstream[e.UpstreamStudentID] = e
	}

	incomingSet := lo.SliceToMap(incomingUpstreamIDs, func(id string) (string, struct{}) { return id, struct{}{} })

	toRemove := lo.Filter(existing, func(e StudentEnrollment, _ int) bool {
		_, stillIncoming := incomingSet[e.UpstreamStudentID]
		return !stillIncoming
	})
	toAdd := lo.Filter(incomingUpstreamIDs, func(upstreamID string, _ int) bool {
		_, alreadyPresent := existingByUpstream[upstreamID]
		return !alreadyPresent
	})

	for _, e := range toRemove {
		if err := s.membership.DeleteStudentEnrollment(ctx, sectionID, e.StudentID); err != nil {
			return out, false, err
		}
		out.removed++
	}

	for _, upstreamID := range toAdd {
		localID, found, err := s.students.ResolveStudentID(ctx, upstreamID)
		if err != nil {
			return out, false, err
		}
		if !found {
			s.log.Warn("assoc: student not found locally, skipping enrollment",
				zap.String("upstreamStudentId", upstreamID))
			continue
		}
		if err := s.membership.InsertStudentEnrollment(ctx, sectionID, model.StudentSection{
			StudentID: localID,
			OffCampus: false,
		}); err != nil {
			return out, false, err
		}
		out.added++
	}

	out.unchanged = len(incomingUpstreamIDs) - out.added
	enrollmentChanged := out.added > 0 || out.removed > 0
	return out, enrollmentChanged, nil
}
