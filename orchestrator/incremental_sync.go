package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/config"
	"github.com/brightpath-labs/roster-sync/events"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/protect"
	"github.com/brightpath-labs/roster-sync/sectionsync"
	"github.com/brightpath-labs/roster-sync/store"
)

// runIncrementalSync implements spec.md §4.7's incremental sequence. A
// school with no replay cursor yet falls back to the behavior
// Config.IncrementalFallback names (time-filtered Student+Teacher-only
// reconcile by default, or a full sync); a school with a cursor
// replays its event stream.
func (o *Orchestrator) runIncrementalSync(ctx context.Context, school model.School, schoolStore store.SchoolStore, tracker *protect.Tracker, d decision, result *SyncResult) (sectionAttemptID string, runDownstream bool, err error) {
	if d.cursor == nil {
		if o.Ctx.Config.IncrementalFallback == config.FallbackFullSync {
			return o.runFullSync(ctx, school, schoolStore, tracker, result)
		}
		err := o.runTimeFilteredFallback(ctx, school, schoolStore, result)
		return "", false, err
	}
	return o.runEventBatch(ctx, school, schoolStore, tracker, *d.cursor, result)
}

// runTimeFilteredFallback reconciles Student and Teacher only, scoped
// by each kind's own last successful attempt, with no orphan pass
// (spec.md §9, Open Question: a cursor-less school still has no replay
// log to walk, so listings are filtered by modifiedSince instead).
func (o *Orchestrator) runTimeFilteredFallback(ctx context.Context, school model.School, schoolStore store.SchoolStore, result *SyncResult) error {
	studentAttemptID, studentStart, err := o.openAttempt(ctx, school.SchoolID, model.KindStudent, model.ModeIncremental)
	if err != nil {
		return err
	}
	studentAuditor := audit.New(studentAttemptID, o.Ctx.Clock.Now)
	studentReconciler := newStudentReconciler(schoolStore, o.Ctx.Clock.Now, studentAuditor)
	studentSince := o.lastSuccessfulStart(ctx, school.SchoolID, model.KindStudent)
	studentSummary, studentErr := o.pageAndUpsertStudentsSince(ctx, school, studentReconciler, studentStart, studentSince)
	if err := studentAuditor.Flush(schoolStore); err != nil {
		o.Ctx.Log.Warn("orchestrator: student audit flush failed", zap.String("schoolId", school.SchoolID), zap.Error(err))
	}
	o.finalizeAttempt(ctx, studentAttemptID, school.SchoolID, model.KindStudent, model.ModeIncremental, studentStart, studentSummary, studentErr)
	result.addKind(model.KindStudent, KindCounts{Processed: studentSummary.Processed, Updated: studentSummary.Updated, Failed: studentSummary.Failed})

	teacherAttemptID, teacherStart, err := o.openAttempt(ctx, school.SchoolID, model.KindTeacher, model.ModeIncremental)
	if err != nil {
		return err
	}
	teacherAuditor := audit.New(teacherAttemptID, o.Ctx.Clock.Now)
	teacherReconciler := newTeacherReconciler(schoolStore, o.Ctx.Clock.Now, teacherAuditor)
	teacherSince := o.lastSuccessfulStart(ctx, school.SchoolID, model.KindTeacher)
	teacherSummary, teacherErr := o.pageAndUpsertTeachersSince(ctx, school, teacherReconciler, teacherStart, teacherSince)
	if err := teacherAuditor.Flush(schoolStore); err != nil {
		o.Ctx.Log.Warn("orchestrator: teacher audit flush failed", zap.String("schoolId", school.SchoolID), zap.Error(err))
	}
	o.finalizeAttempt(ctx, teacherAttemptID, school.SchoolID, model.KindTeacher, model.ModeIncremental, teacherStart, teacherSummary, teacherErr)
	result.addKind(model.KindTeacher, KindCounts{Processed: teacherSummary.Processed, Updated: teacherSummary.Updated, Failed: teacherSummary.Failed})

	return firstNonNil(studentErr, teacherErr)
}

// lastSuccessfulStart returns the StartedAt of the most recent Success
// attempt for kind, or nil if none exists (the listing is then
// unfiltered for that kind).
func (o *Orchestrator) lastSuccessfulStart(ctx context.Context, schoolID string, kind model.EntityKind) *time.Time {
	attempt, found, err := o.Orch.LatestSuccessfulAttempt(ctx, schoolID, kind)
	if err != nil || !found {
		return nil
	}
	return &attempt.StartedAt
}

// runEventBatch fetches up to Config.EventBatchSize events after cursor
// and dispatches them through events.ProcessBatch (spec.md §4.7,
// incremental steps 2-5).
func (o *Orchestrator) runEventBatch(ctx context.Context, school model.School, schoolStore store.SchoolStore, tracker *protect.Tracker, cursor string, result *SyncResult) (sectionAttemptID string, runDownstream bool, err error) {
	eventAttemptID, attemptStart, err := o.openAttempt(ctx, school.SchoolID, model.KindEvent, model.ModeIncremental)
	if err != nil {
		return "", false, err
	}

	envelopes, fetchErr := o.SIS.ListEvents(ctx, school.UpstreamSchoolID, &cursor, o.eventBatchSize())
	if fetchErr != nil {
		o.finalizeAttempt(ctx, eventAttemptID, school.SchoolID, model.KindEvent, model.ModeIncremental, attemptStart, phaseSummary{}, fetchErr)
		return "", false, fetchErr
	}
	result.EventsSummary = &EventsSummary{Fetched: len(envelopes)}

	if len(envelopes) == 0 {
		// No new events: leave the cursor exactly as it was (spec.md
		// §4.7: "zero events fetched leaves the cursor unchanged").
		summary := phaseSummary{Cursor: &cursor}
		o.finalizeAttempt(ctx, eventAttemptID, school.SchoolID, model.KindEvent, model.ModeIncremental, attemptStart, summary, nil)
		return "", false, nil
	}

	eventAuditor := audit.New(eventAttemptID, o.Ctx.Clock.Now)
	sectionAuditor := audit.New(eventAttemptID, o.Ctx.Clock.Now)
	policy := protect.NewPolicy(eventAttemptID, o.Ctx.Clock.Now, schoolStore)
	innerSections := newSectionInnerReconciler(schoolStore, o.Ctx.Clock.Now, sectionAuditor)
	assocSyncer := newAssocSyncer(schoolStore, o.Ctx.Log)
	sections := sectionsync.New(innerSections, schoolStore.ResolveSectionID, assocSyncer, tracker, policy)

	dispatchers := events.Dispatchers{
		Students: &events.StudentRoute{Reconciler: newStudentReconciler(schoolStore, o.Ctx.Clock.Now, eventAuditor)},
		Teachers: &events.TeacherRoute{Reconciler: newTeacherReconciler(schoolStore, o.Ctx.Clock.Now, eventAuditor)},
		Sections: &events.SectionRoute{Reconciler: sections},
		Terms:    &events.TermRoute{Reconciler: newTermReconciler(schoolStore, o.Ctx.Clock.Now, eventAuditor)},
	}

	outcome := events.ProcessBatch(ctx, attemptStart, envelopes, dispatchers)
	result.EventsSummary.Skipped = outcome.Skipped

	if err := eventAuditor.Flush(schoolStore); err != nil {
		o.Ctx.Log.Warn("orchestrator: event audit flush failed", zap.String("schoolId", school.SchoolID), zap.Error(err))
	}
	if err := sectionAuditor.Flush(schoolStore); err != nil {
		o.Ctx.Log.Warn("orchestrator: event-section audit flush failed", zap.String("schoolId", school.SchoolID), zap.Error(err))
	}

	summary := phaseSummary{
		Processed: outcome.Processed,
		Updated:   outcome.Succeeded,
		Failed:    outcome.Failed,
	}
	// The replay cursor advances to the last event that processed
	// successfully; if none did, it stays at the last one fetched so a
	// retry doesn't re-request the whole batch (spec.md §4.7).
	if outcome.LastSuccessID != "" {
		cursorVal := outcome.LastSuccessID
		summary.Cursor = &cursorVal
		summary.CursorTimestamp = &outcome.LastSuccessTime
	} else {
		cursorVal := outcome.LastFetchedID
		summary.Cursor = &cursorVal
		summary.CursorTimestamp = &outcome.LastFetchedTime
	}
	// Any event that processed successfully keeps the attempt at Success
	// even if others in the same batch failed; only a batch with zero
	// successes (but events were returned) degrades to Partial (spec.md
	// §4.7).
	if outcome.Failed > 0 && outcome.Succeeded == 0 {
		summary.Status = model.StatusPartial
		summary.ErrorMessage = outcome.FirstErrorMessage
	}

	// outcome.PerKind is keyed by objectKind ("user", "section", "term"),
	// which does not distinguish Student from Teacher user events, so the
	// batch's counts are reported under the Event kind as a whole rather
	// than split across Student/Teacher/Section/Term.
	result.addKind(model.KindEvent, KindCounts{Processed: outcome.Processed, Updated: outcome.Succeeded, Failed: outcome.Failed})

	o.finalizeAttempt(ctx, eventAttemptID, school.SchoolID, model.KindEvent, model.ModeIncremental, attemptStart, summary, nil)

	// PerEvent failures are locally recovered (spec.md §7): a poison
	// event degrades the attempt to Partial but never fails the sync at
	// the SyncResult level.
	runDownstream = tracker.EnrollmentChanged()
	return "", runDownstream, nil
}

func (o *Orchestrator) eventBatchSize() int {
	if o.Ctx.Config.EventBatchSize > 0 {
		return o.Ctx.Config.EventBatchSize
	}
	return 1000
}
