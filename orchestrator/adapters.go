// Package orchestrator implements the Mode Decider, School Orchestrator
// and Fan-out Orchestrator (spec.md §4.7, §4.8) plus the Sync History
// Recorder's runtime half (§4.9; attempt persistence itself lives in
// store/pgstore). This file adapts store.SchoolStore's prefixed method
// names onto the narrower, generic interfaces reconcile and assoc
// expect, the same role the teacher's pkg/state adapter types play
// between KongState and the CRUD differ.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath-labs/roster-sync/assoc"
	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/reconcile"
	"github.com/brightpath-labs/roster-sync/store"
)

// newAssocSyncer wires assoc.New against the resolver/membership
// adapters for one school store.
func newAssocSyncer(s store.SchoolStore, log *zap.Logger) *assoc.Syncer {
	return assoc.New(teacherResolverAdapter{s}, studentResolverAdapter{s}, membershipAdapter{s}, log)
}

func newStudentReconciler(s store.SchoolStore, now func() time.Time, a *audit.Auditor) *reconcile.Reconciler[*model.Student] {
	return reconcile.New[*model.Student](studentStoreAdapter{s}, reconcile.NewStudentDiffer(), now, a)
}

func newTeacherReconciler(s store.SchoolStore, now func() time.Time, a *audit.Auditor) *reconcile.Reconciler[*model.Teacher] {
	return reconcile.New[*model.Teacher](teacherStoreAdapter{s}, reconcile.NewTeacherDiffer(), now, a)
}

func newTermReconciler(s store.SchoolStore, now func() time.Time, a *audit.Auditor) *reconcile.Reconciler[*model.Term] {
	return reconcile.New[*model.Term](termStoreAdapter{s}, reconcile.NewTermDiffer(), now, a)
}

func newSectionInnerReconciler(s store.SchoolStore, now func() time.Time, a *audit.Auditor) *reconcile.Reconciler[*model.Section] {
	return reconcile.New[*model.Section](sectionStoreAdapter{s}, reconcile.NewSectionDiffer(), now, a)
}

type studentStoreAdapter struct{ s store.SchoolStore }

func (a studentStoreAdapter) FindByUpstreamID(ctx context.Context, id string) (*model.Student, bool, error) {
	return a.s.FindStudentByUpstreamID(ctx, id)
}
func (a studentStoreAdapter) Insert(ctx context.Context, rec *model.Student) error {
	return a.s.InsertStudent(ctx, rec)
}
func (a studentStoreAdapter) Update(ctx context.Context, rec *model.Student) error {
	return a.s.UpdateStudent(ctx, rec)
}
func (a studentStoreAdapter) NewID() string { return a.s.NewStudentID() }
func (a studentStoreAdapter) ScanOrphans(ctx context.Context, cutoff time.Time) ([]*model.Student, error) {
	return a.s.ScanStudentOrphans(ctx, cutoff)
}

type teacherStoreAdapter struct{ s store.SchoolStore }

func (a teacherStoreAdapter) FindByUpstreamID(ctx context.Context, id string) (*model.Teacher, bool, error) {
	return a.s.FindTeacherByUpstreamID(ctx, id)
}
func (a teacherStoreAdapter) Insert(ctx context.Context, rec *model.Teacher) error {
	return a.s.InsertTeacher(ctx, rec)
}
func (a teacherStoreAdapter) Update(ctx context.Context, rec *model.Teacher) error {
	return a.s.UpdateTeacher(ctx, rec)
}
func (a teacherStoreAdapter) NewID() string { return a.s.NewTeacherID() }
func (a teacherStoreAdapter) ScanOrphans(ctx context.Context, cutoff time.Time) ([]*model.Teacher, error) {
	return a.s.ScanTeacherOrphans(ctx, cutoff)
}

type sectionStoreAdapter struct{ s store.SchoolStore }

func (a sectionStoreAdapter) FindByUpstreamID(ctx context.Context, id string) (*model.Section, bool, error) {
	return a.s.FindSectionByUpstreamID(ctx, id)
}
func (a sectionStoreAdapter) Insert(ctx context.Context, rec *model.Section) error {
	return a.s.InsertSection(ctx, rec)
}
func (a sectionStoreAdapter) Update(ctx context.Context, rec *model.Section) error {
	return a.s.UpdateSection(ctx, rec)
}
func (a sectionStoreAdapter) NewID() string { return a.s.NewSectionID() }
func (a sectionStoreAdapter) ScanOrphans(ctx context.Context, cutoff time.Time) ([]*model.Section, error) {
	return a.s.ScanSectionMissing(ctx, cutoff)
}

type termStoreAdapter struct{ s store.SchoolStore }

func (a termStoreAdapter) FindByUpstreamID(ctx context.Context, id string) (*model.Term, bool, error) {
	return a.s.FindTermByUpstreamID(ctx, id)
}
func (a termStoreAdapter) Insert(ctx context.Context, rec *model.Term) error {
	return a.s.InsertTerm(ctx, rec)
}
func (a termStoreAdapter) Update(ctx context.Context, rec *model.Term) error {
	return a.s.UpdateTerm(ctx, rec)
}
func (a termStoreAdapter) NewID() string { return a.s.NewTermID() }
func (a termStoreAdapter) ScanOrphans(ctx context.Context, cutoff time.Time) ([]*model.Term, error) {
	return a.s.ScanTermOrphans(ctx, cutoff)
}

type teacherResolverAdapter struct{ s store.SchoolStore }

func (a teacherResolverAdapter) ResolveTeacherID(ctx context.Context, upstreamID string) (string, bool, error) {
	return a.s.ResolveTeacherID(ctx, upstreamID)
}

type studentResolverAdapter struct{ s store.SchoolStore }

func (a studentResolverAdapter) ResolveStudentID(ctx context.Context, upstreamID string) (string, bool, error) {
	return a.s.ResolveStudentID(ctx, upstreamID)
}

type membershipAdapter struct{ s store.SchoolStore }

func (m membershipAdapter) ReplaceSectionTeachers(ctx context.Context, sectionID string, rows []model.TeacherSection) error {
	return m.s.ReplaceSectionTeachers(ctx, sectionID, rows)
}

func (m membershipAdapter) ListSectionStudents(ctx context.Context, sectionID string) ([]assoc.StudentEnrollment, error) {
	raw, err := m.s.ListSectionStudents(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	out := make([]assoc.StudentEnrollment, len(raw))
	for i, r := range raw {
		out[i] = assoc.StudentEnrollment{StudentID: r.StudentID, UpstreamStudentID: r.UpstreamStudentID, OffCampus: r.OffCampus}
	}
	return out, nil
}

func (m membershipAdapter) InsertStudentEnrollment(ctx context.Context, sectionID string, row model.StudentSection) error {
	return m.s.InsertStudentEnrollment(ctx, sectionID, row)
}

func (m membershipAdapter) DeleteStudentEnrollment(ctx context.Context, sectionID, studentID string) error {
	return m.s.DeleteStudentEnrollment(ctx, sectionID, studentID)
}
