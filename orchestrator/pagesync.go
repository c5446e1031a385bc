package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/progress"
	"github.com/brightpath-labs/roster-sync/reconcile"
	"github.com/brightpath-labs/roster-sync/sectionsync"
	"github.com/brightpath-labs/roster-sync/sisclient"
)

// pageAndUpsertStudents lists the full upstream student roster and
// upserts every record, reporting progress every o.reportEvery()
// records (spec.md §4.7: "at least every 10 records"). A per-record
// failure is logged and counted, never aborts the page (spec.md §7,
// PerRecord).
func (o *Orchestrator) pageAndUpsertStudents(ctx context.Context, school model.School, r *reconcile.Reconciler[*model.Student], attemptStart time.Time) (phaseSummary, error) {
	return o.pageAndUpsertStudentsSince(ctx, school, r, attemptStart, nil)
}

// pageAndUpsertStudentsSince is pageAndUpsertStudents scoped to records
// modified since modifiedSince (used by the incremental time-filtered
// fallback; nil fetches the full roster).
func (o *Orchestrator) pageAndUpsertStudentsSince(ctx context.Context, school model.School, r *reconcile.Reconciler[*model.Student], attemptStart time.Time, modifiedSince *time.Time) (phaseSummary, error) {
	page, err := o.SIS.ListStudents(ctx, school.UpstreamSchoolID, modifiedSince)
	if err != nil {
		return phaseSummary{}, err
	}

	var summary phaseSummary
	for i, rec := range page.Records {
		student := studentFromRecord(rec)
		changed, err := r.UpsertOne(ctx, attemptStart, student)
		summary.Processed++
		if err != nil {
			summary.Failed++
			o.Ctx.Log.Warn("orchestrator: student upsert failed",
				zap.String("schoolId", school.SchoolID), zap.String("upstreamId", rec.ID), zap.Error(err))
			continue
		}
		if changed {
			summary.Updated++
		}
		o.reportProgress(school.SchoolID, "students", i+1, len(page.Records))
	}
	return summary, nil
}

// pageAndUpsertTeachers mirrors pageAndUpsertStudents for teachers.
func (o *Orchestrator) pageAndUpsertTeachers(ctx context.Context, school model.School, r *reconcile.Reconciler[*model.Teacher], attemptStart time.Time) (phaseSummary, error) {
	return o.pageAndUpsertTeachersSince(ctx, school, r, attemptStart, nil)
}

// pageAndUpsertTeachersSince is pageAndUpsertTeachers scoped to records
// modified since modifiedSince.
func (o *Orchestrator) pageAndUpsertTeachersSince(ctx context.Context, school model.School, r *reconcile.Reconciler[*model.Teacher], attemptStart time.Time, modifiedSince *time.Time) (phaseSummary, error) {
	page, err := o.SIS.ListTeachers(ctx, school.UpstreamSchoolID, modifiedSince)
	if err != nil {
		return phaseSummary{}, err
	}

	var summary phaseSummary
	for i, rec := range page.Records {
		teacher := teacherFromRecord(rec)
		changed, err := r.UpsertOne(ctx, attemptStart, teacher)
		summary.Processed++
		if err != nil {
			summary.Failed++
			o.Ctx.Log.Warn("orchestrator: teacher upsert failed",
				zap.String("schoolId", school.SchoolID), zap.String("upstreamId", rec.ID), zap.Error(err))
			continue
		}
		if changed {
			summary.Updated++
		}
		o.reportProgress(school.SchoolID, "teachers", i+1, len(page.Records))
	}
	return summary, nil
}

// pageAndUpsertSections lists the full upstream section roster and
// upserts every record through the composite section reconciler, which
// also runs Associations Sync and protection gating per record.
func (o *Orchestrator) pageAndUpsertSections(ctx context.Context, school model.School, r *sectionsync.Reconciler, attemptStart time.Time) (phaseSummary, error) {
	page, err := o.SIS.ListSections(ctx, school.UpstreamSchoolID, nil)
	if err != nil {
		return phaseSummary{}, err
	}

	var summary phaseSummary
	for i, rec := range page.Records {
		in := sectionsync.Incoming{
			Section:                  sectionFromRecord(rec),
			TeacherUpstreamIDs:       rec.TeacherUpstreamIDs,
			PrimaryTeacherUpstreamID: rec.PrimaryTeacherUpstreamID,
			StudentUpstreamIDs:       rec.StudentUpstreamIDs,
		}
		changed, _, err := r.UpsertOne(ctx, attemptStart, in)
		summary.Processed++
		if err != nil {
			summary.Failed++
			o.Ctx.Log.Warn("orchestrator: section upsert failed",
				zap.String("schoolId", school.SchoolID), zap.String("upstreamId", rec.ID), zap.Error(err))
			continue
		}
		if changed {
			summary.Updated++
		}
		o.reportProgress(school.SchoolID, "sections", i+1, len(page.Records))
	}
	return summary, nil
}

// pageAndUpsertTerms mirrors pageAndUpsertStudents for terms.
func (o *Orchestrator) pageAndUpsertTerms(ctx context.Context, school model.School, r *reconcile.Reconciler[*model.Term], attemptStart time.Time) (phaseSummary, error) {
	page, err := o.SIS.ListTerms(ctx, school.UpstreamSchoolID, nil)
	if err != nil {
		return phaseSummary{}, err
	}

	var summary phaseSummary
	for i, rec := range page.Records {
		term := termFromRecord(rec)
		changed, err := r.UpsertOne(ctx, attemptStart, term)
		summary.Processed++
		if err != nil {
			summary.Failed++
			o.Ctx.Log.Warn("orchestrator: term upsert failed",
				zap.String("schoolId", school.SchoolID), zap.String("upstreamId", rec.ID), zap.Error(err))
			continue
		}
		if changed {
			summary.Updated++
		}
		o.reportProgress(school.SchoolID, "terms", i+1, len(page.Records))
	}
	return summary, nil
}

// reportProgress emits a Snapshot at phase boundaries and at least every
// o.reportEvery() records, never blocking the caller.
func (o *Orchestrator) reportProgress(schoolID, operation string, done, total int) {
	if total == 0 {
		return
	}
	every := o.reportEvery()
	if done != total && done%every != 0 {
		return
	}
	progress.Report(o.Progress, progress.Snapshot{
		SchoolID:  schoolID,
		Operation: operation,
		Percent:   100 * float64(done) / float64(total),
		PerKind:   map[string]int{operation: done},
	})
}

func studentFromRecord(rec sisclient.StudentRecord) *model.Student {
	s := &model.Student{
		FirstName:     rec.FirstName,
		MiddleName:    rec.MiddleName,
		LastName:      rec.LastName,
		GradeLabel:    rec.Grade,
		StudentNumber: rec.StudentNumber,
		StateID:       rec.SisID,
	}
	s.SetUpstreamID(rec.ID)
	return s
}

func teacherFromRecord(rec sisclient.TeacherRecord) *model.Teacher {
	t := &model.Teacher{
		FirstName:     rec.FirstName,
		LastName:      rec.LastName,
		StaffNumber:   rec.SisID,
		TeacherNumber: rec.TeacherNumber,
		Username:      rec.DistrictUsername,
	}
	t.SetUpstreamID(rec.ID)
	return t
}

func sectionFromRecord(rec sisclient.SectionRecord) *model.Section {
	s := &model.Section{
		Name:    rec.Name,
		Period:  rec.Period,
		Subject: rec.Subject,
		TermRef: rec.TermRef,
	}
	s.SetUpstreamID(rec.ID)
	return s
}

func termFromRecord(rec sisclient.TermRecord) *model.Term {
	t := &model.Term{
		DistrictRef: rec.District,
		Name:        rec.Name,
		StartDate:   rec.StartDate,
		EndDate:     rec.EndDate,
	}
	t.SetUpstreamID(rec.ID)
	return t
}
