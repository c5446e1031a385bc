package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/protect"
	"github.com/brightpath-labs/roster-sync/sectionsync"
	"github.com/brightpath-labs/roster-sync/store"
)

// runFullSync implements spec.md §4.7's full-sync sequence (steps
// 1-10). It returns the section attempt id and whether the downstream
// procedure should run (protection tracker fired OR the section
// attempt recorded updates).
func (o *Orchestrator) runFullSync(ctx context.Context, school model.School, schoolStore store.SchoolStore, tracker *protect.Tracker, result *SyncResult) (sectionAttemptID string, runDownstream bool, err error) {
	// Step 1: reset per-attempt context. Each phase below constructs a
	// fresh Auditor, so there is no cached entity state to clear here.

	studentAuditor := audit.New("", o.Ctx.Clock.Now)
	studentAttemptID, studentStart, err := o.openAttempt(ctx, school.SchoolID, model.KindStudent, model.ModeFull)
	if err != nil {
		return "", false, err
	}
	studentAuditor = audit.New(studentAttemptID, o.Ctx.Clock.Now)
	studentReconciler := newStudentReconciler(schoolStore, o.Ctx.Clock.Now, studentAuditor)

	studentSummary, studentErr := o.pageAndUpsertStudents(ctx, school, studentReconciler, studentStart)

	// Step 3: Teachers. (Students-complete happens-before Teachers-begin.)
	teacherAuditor := audit.New("", o.Ctx.Clock.Now)
	teacherAttemptID, teacherStart, err := o.openAttempt(ctx, school.SchoolID, model.KindTeacher, model.ModeFull)
	if err != nil {
		return "", false, err
	}
	teacherAuditor = audit.New(teacherAttemptID, o.Ctx.Clock.Now)
	teacherReconciler := newTeacherReconciler(schoolStore, o.Ctx.Clock.Now, teacherAuditor)

	teacherSummary, teacherErr := o.pageAndUpsertTeachers(ctx, school, teacherReconciler, teacherStart)

	// Step 4: Sections, including Associations Sync and Protection checks.
	sectionAuditor := audit.New("", o.Ctx.Clock.Now)
	sectionAttemptID, sectionStart, err := o.openAttempt(ctx, school.SchoolID, model.KindSection, model.ModeFull)
	if err != nil {
		return "", false, err
	}
	sectionAuditor = audit.New(sectionAttemptID, o.Ctx.Clock.Now)
	policy := protect.NewPolicy(sectionAttemptID, o.Ctx.Clock.Now, schoolStore)
	innerSections := newSectionInnerReconciler(schoolStore, o.Ctx.Clock.Now, sectionAuditor)
	assocSyncer := newAssocSyncer(schoolStore, o.Ctx.Log)
	sections := sectionsync.New(innerSections, schoolStore.ResolveSectionID, assocSyncer, tracker, policy)

	sectionSummary, sectionErr := o.pageAndUpsertSections(ctx, school, sections, sectionStart)
	missingDeleted, skippedProtected, missingErr := sections.ReconcileMissing(ctx, sectionStart)
	if sectionErr == nil {
		sectionErr = missingErr
	}
	sectionSummary.Deleted += missingDeleted
	sectionSummary.SkippedProtected += skippedProtected
	result.SkippedProtected += skippedProtected

	if err := sectionAuditor.Flush(schoolStore); err != nil {
		o.Ctx.Log.Warn("orchestrator: section audit flush failed", zap.String("schoolId", school.SchoolID), zap.Error(err))
	}
	o.finalizeAttempt(ctx, sectionAttemptID, school.SchoolID, model.KindSection, model.ModeFull, sectionStart, sectionSummary, sectionErr)
	result.addKind(model.KindSection, KindCounts{Processed: sectionSummary.Processed, Updated: sectionSummary.Updated, Failed: sectionSummary.Failed, Deleted: sectionSummary.Deleted})

	// Step 5: Terms.
	termAuditor := audit.New("", o.Ctx.Clock.Now)
	termAttemptID, termStart, err := o.openAttempt(ctx, school.SchoolID, model.KindTerm, model.ModeFull)
	if err != nil {
		return sectionAttemptID, tracker.EnrollmentChanged() || sectionSummary.Updated > 0, err
	}
	termAuditor = audit.New(termAttemptID, o.Ctx.Clock.Now)
	termReconciler := newTermReconciler(schoolStore, o.Ctx.Clock.Now, termAuditor)

	termSummary, termErr := o.pageAndUpsertTerms(ctx, school, termReconciler, termStart)

	// Step 6: orphan pass across Students, Teachers, Terms (not Sections).
	studentOrphans, sErr := studentReconciler.DetectOrphans(ctx, studentStart, nil)
	if studentErr == nil {
		studentErr = sErr
	}
	studentSummary.Deleted += studentOrphans

	teacherOrphans, tErr := teacherReconciler.DetectOrphans(ctx, teacherStart, nil)
	if teacherErr == nil {
		teacherErr = tErr
	}
	teacherSummary.Deleted += teacherOrphans

	termOrphans, trErr := termReconciler.DetectOrphans(ctx, termStart, isOrphanableTerm)
	if termErr == nil {
		termErr = trErr
	}
	termSummary.Deleted += termOrphans

	// Step 7: flush audits (students/teachers/terms; sections already flushed above).
	if err := studentAuditor.Flush(schoolStore); err != nil {
		o.Ctx.Log.Warn("orchestrator: student audit flush failed", zap.String("schoolId", school.SchoolID), zap.Error(err))
	}
	if err := teacherAuditor.Flush(schoolStore); err != nil {
		o.Ctx.Log.Warn("orchestrator: teacher audit flush failed", zap.String("schoolId", school.SchoolID), zap.Error(err))
	}
	if err := termAuditor.Flush(schoolStore); err != nil {
		o.Ctx.Log.Warn("orchestrator: term audit flush failed", zap.String("schoolId", school.SchoolID), zap.Error(err))
	}

	o.finalizeAttempt(ctx, studentAttemptID, school.SchoolID, model.KindStudent, model.ModeFull, studentStart, studentSummary, studentErr)
	o.finalizeAttempt(ctx, teacherAttemptID, school.SchoolID, model.KindTeacher, model.ModeFull, teacherStart, teacherSummary, teacherErr)
	o.finalizeAttempt(ctx, termAttemptID, school.SchoolID, model.KindTerm, model.ModeFull, termStart, termSummary, termErr)

	result.addKind(model.KindStudent, KindCounts{Processed: studentSummary.Processed, Updated: studentSummary.Updated, Failed: studentSummary.Failed, Deleted: studentSummary.Deleted})
	result.addKind(model.KindTeacher, KindCounts{Processed: teacherSummary.Processed, Updated: teacherSummary.Updated, Failed: teacherSummary.Failed, Deleted: teacherSummary.Deleted})
	result.addKind(model.KindTerm, KindCounts{Processed: termSummary.Processed, Updated: termSummary.Updated, Failed: termSummary.Failed, Deleted: termSummary.Deleted})

	// Step 8: baseline write.
	latestEventID, baselineErr := o.SIS.LatestEventId(ctx, school.UpstreamSchoolID)
	baselineStart := o.Ctx.Now()
	baselineAttemptID, _, err := o.openAttempt(ctx, school.SchoolID, model.KindBaseline, model.ModeFull)
	if err != nil {
		return sectionAttemptID, tracker.EnrollmentChanged() || sectionSummary.Updated > 0, err
	}
	baselineSummary := phaseSummary{
		Cursor:             latestEventID,
		LastKnownSyncPoint: &baselineStart,
	}
	o.finalizeAttempt(ctx, baselineAttemptID, school.SchoolID, model.KindBaseline, model.ModeFull, baselineStart, baselineSummary, baselineErr)

	// Step 9: downstream procedure gating.
	runDownstream = tracker.EnrollmentChanged() || sectionSummary.Updated > 0

	// Step 10: clear requiresFullSync, only once every phase above
	// succeeded cleanly (a PerSchool-level failure must leave it set so
	// the next attempt retries a full sync).
	firstErr := firstNonNil(studentErr, teacherErr, sectionErr, termErr, baselineErr)
	if firstErr == nil {
		if err := o.Orch.ClearRequiresFullSync(ctx, school.SchoolID); err != nil {
			o.Ctx.Log.Warn("orchestrator: failed to clear requiresFullSync", zap.String("schoolId", school.SchoolID), zap.Error(err))
		}
	}

	return sectionAttemptID, runDownstream, firstErr
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func isOrphanableTerm(t *model.Term) bool { return !t.IsManual }
