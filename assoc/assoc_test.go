package assoc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-labs/roster-sync/model"
)

type fakeTeacherResolver struct {
	byUpstream map[string]string
}

func (f fakeTeacherResolver) ResolveTeacherID(_ context.Context, upstreamID string) (string, bool, error) {
	id, found := f.byUpstream[upstreamID]
	return id, found, nil
}

type fakeStudentResolver struct {
	byUpstream map[string]string
}

func (f fakeStudentResolver) ResolveStudentID(_ context.Context, upstreamID string) (string, bool, error) {
	id, found := f.byUpstream[upstreamID]
	return id, found, nil
}

type fakeMembershipStore struct {
	teacherRows     []model.TeacherSection
	studentRows     []StudentEnrollment
	inserted        []model.StudentSection
	deletedStudents []string
}

func (f *fakeMembershipStore) ReplaceSectionTeachers(_ context.Context, _ string, rows []model.TeacherSection) error {
	f.teacherRows = rows
	return nil
}

func (f *fakeMembershipStore) ListSectionStudents(_ context.Context, _ string) ([]StudentEnrollment, error) {
	return f.studentRows, nil
}

func (f *fakeMembershipStore) InsertStudentEnrollment(_ context.Context, _ string, row model.StudentSection) error {
	f.inserted = append(f.inserted, row)
	f.studentRows = append(f.studentRows, StudentEnrollment{StudentID: row.StudentID, UpstreamStudentID: row.StudentID})
	return nil
}

func (f *fakeMembershipStore) DeleteStudentEnrollment(_ context.Context, _ string, studentID string) error {
	f.deletedStudents = append(f.deletedStudents, studentID)
	return nil
}

type fakeSignal struct {
	changed []string
}

func (f *fakeSignal) MarkEnrollmentChanged(sectionUpstreamID string) {
	f.changed = append(f.changed, sectionUpstreamID)
}

func TestSyncSection_ResolvesTeachersAndTracksMissing(t *testing.T) {
	teachers := fakeTeacherResolver{byUpstream: map[string]string{"t-up-1": "t-local-1"}}
	students := fakeStudentResolver{byUpstream: map[string]string{}}
	membership := &fakeMembershipStore{}
	syncer := New(teachers, students, membership, nil)

	result, err := syncer.SyncSection(context.Background(), "sec-local-1", "sec-up-1",
		[]string{"t-up-1", "t-up-missing"}, "t-up-1", nil, false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TeachersLinked)
	assert.Equal(t, 1, result.TeachersMissing)
	require.Len(t, membership.teacherRows, 1)
	assert.Equal(t, "t-local-1", membership.teacherRows[0].TeacherID)
	assert.True(t, membership.teacherRows[0].IsPrimary)
}

func TestSyncSection_AddsAndRemovesStudents(t *testing.T) {
	teachers := fakeTeacherResolver{byUpstream: map[string]string{}}
	students := fakeStudentResolver{byUpstream: map[string]string{"s-up-new": "s-local-new"}}
	membership := &fakeMembershipStore{
		studentRows: []StudentEnrollment{
			{StudentID: "s-local-stale", UpstreamStudentID: "s-up-stale"},
			{StudentID: "s-local-keep", UpstreamStudentID: "s-up-keep"},
		},
	}
	syncer := New(teachers, students, membership, nil)

	result, err := syncer.SyncSection(context.Background(), "sec-local-1", "sec-up-1",
		nil, "", []string{"s-up-keep", "s-up-new"}, false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.StudentsAdded)
	assert.Equal(t, 1, result.StudentsRemoved)
	assert.Equal(t, []string{"s-local-stale"}, membership.deletedStudents)
	require.Len(t, membership.inserted, 1)
	assert.Equal(t, "s-local-new", membership.inserted[0].StudentID)
}

func TestSyncSection_SkipsUnresolvableStudentWithoutError(t *testing.T) {
	teachers := fakeTeacherResolver{byUpstream: map[string]string{}}
	students := fakeStudentResolver{byUpstream: map[string]string{}}
	membership := &fakeMembershipStore{}
	syncer := New(teachers, students, membership, nil)

	result, err := syncer.SyncSection(context.Background(), "sec-local-1", "sec-up-1",
		nil, "", []string{"s-up-unknown"}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.StudentsAdded)
	assert.Empty(t, membership.inserted)
}

func TestSyncSection_ProtectedSectionSignalsOnEnrollmentChange(t *testing.T) {
	teachers := fakeTeacherResolver{byUpstream: map[string]string{}}
	students := fakeStudentResolver{byUpstream: map[string]string{"s-up-new": "s-local-new"}}
	membership := &fakeMembershipStore{}
	syncer := New(teachers, students, membership, nil)
	signal := &fakeSignal{}

	_, err := syncer.SyncSection(context.Background(), "sec-local-1", "sec-up-1",
		nil, "", []string{"s-up-new"}, true, signal)
	require.NoError(t, err)
	assert.Equal(t, []string{"sec-up-1"}, signal.changed)
}

func TestSyncSection_ProtectedSectionNoSignalWithoutChange(t *testing.T) {
	teachers := fakeTeacherResolver{byUpstream: map[string]string{}}
	students := fakeStudentResolver{byUpstream: map[string]string{}}
	membership := &fakeMembershipStore{
		studentRows: []StudentEnrollment{{StudentID: "s-local-keep", UpstreamStudentID: "s-up-keep"}},
	}
	syncer := New(teachers, students, membership, nil)
	signal := &fakeSignal{}

	_, err := syncer.SyncSection(context.Background(), "sec-local-1", "sec-up-1",
		nil, "", []string{"s-up-keep"}, true, signal)
	require.NoError(t, err)
	assert.Empty(t, signal.changed)
}

func TestSyncSection_UnprotectedSectionNeverSignals(t *testing.T) {
	teachers := fakeTeacherResolver{byUpstream: map[string]string{}}
	students := fakeStudentResolver{byUpstream: map[string]string{"s-up-new": "s-local-new"}}
	membership := &fakeMembershipStore{}
	syncer := New(teachers, students, membership, nil)
	signal := &fakeSignal{}

	_, err := syncer.SyncSection(context.Background(), "sec-local-1", "sec-up-1",
		nil, "", []string{"s-up-new"}, false, signal)
	require.NoError(t, err)
	assert.Empty(t, signal.changed)
}
