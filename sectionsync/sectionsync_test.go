package sectionsync

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-labs/roster-sync/assoc"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/protect"
	"github.com/brightpath-labs/roster-sync/reconcile"
)

// fakeSectionStore is an in-memory reconcile.Store[*model.Section].
type fakeSectionStore struct {
	byUpstream map[string]*model.Section
	nextID     int
}

func newFakeSectionStore() *fakeSectionStore {
	return &fakeSectionStore{byUpstream: map[string]*model.Section{}}
}

func (s *fakeSectionStore) FindByUpstreamID(_ context.Context, upstreamID string) (*model.Section, bool, error) {
	rec, ok := s.byUpstream[upstreamID]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (s *fakeSectionStore) Insert(_ context.Context, rec *model.Section) error {
	cp := *rec
	s.byUpstream[rec.GetUpstreamID()] = &cp
	return nil
}

func (s *fakeSectionStore) Update(_ context.Context, rec *model.Section) error {
	cp := *rec
	s.byUpstream[rec.GetUpstreamID()] = &cp
	return nil
}

func (s *fakeSectionStore) NewID() string {
	s.nextID++
	return "sec-local-" + strconv.Itoa(s.nextID)
}

func (s *fakeSectionStore) ScanOrphans(_ context.Context, cutoff time.Time) ([]*model.Section, error) {
	var out []*model.Section
	for _, rec := range s.byUpstream {
		if rec.GetDeletedAt() == nil && rec.GetLastSeenAt().Before(cutoff) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSectionStore) resolve(_ context.Context, upstreamID string) (string, bool, error) {
	rec, ok := s.byUpstream[upstreamID]
	if !ok {
		return "", false, nil
	}
	return rec.GetID(), true, nil
}

type fakeTeacherResolver struct{ byUpstream map[string]string }

func (f fakeTeacherResolver) ResolveTeacherID(_ context.Context, upstreamID string) (string, bool, error) {
	id, found := f.byUpstream[upstreamID]
	return id, found, nil
}

type fakeStudentResolver struct{ byUpstream map[string]string }

func (f fakeStudentResolver) ResolveStudentID(_ context.Context, upstreamID string) (string, bool, error) {
	id, found := f.byUpstream[upstreamID]
	return id, found, nil
}

type fakeMembershipStore struct {
	teacherRows []model.TeacherSection
	studentRows []assoc.StudentEnrollment
}

func (f *fakeMembershipStore) ReplaceSectionTeachers(_ context.Context, _ string, rows []model.TeacherSection) error {
	f.teacherRows = rows
	return nil
}

func (f *fakeMembershipStore) ListSectionStudents(_ context.Context, _ string) ([]assoc.StudentEnrollment, error) {
	return f.studentRows, nil
}

func (f *fakeMembershipStore) InsertStudentEnrollment(_ context.Context, _ string, row model.StudentSection) error {
	f.studentRows = append(f.studentRows, assoc.StudentEnrollment{StudentID: row.StudentID, UpstreamStudentID: row.StudentID})
	return nil
}

func (f *fakeMembershipStore) DeleteStudentEnrollment(_ context.Context, _ string, studentID string) error {
	for i, r := range f.studentRows {
		if r.StudentID == studentID {
			f.studentRows = append(f.studentRows[:i], f.studentRows[i+1:]...)
			break
		}
	}
	return nil
}

type fakeWarningSink struct {
	warnings []model.Warning
}

func (f *fakeWarningSink) InsertWarning(w model.Warning) error {
	f.warnings = append(f.warnings, w)
	return nil
}

func newHarness(t *testing.T, protectedRefs []model.ProtectedSectionRef) (*Reconciler, *fakeSectionStore, *fakeWarningSink) {
	t.Helper()
	store := newFakeSectionStore()
	differ := reconcile.NewSectionDiffer()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inner := reconcile.New[*model.Section](store, differ, func() time.Time { return now }, nil)

	sink := &fakeWarningSink{}
	tracker, err := protect.NewTracker(protectedRefs)
	require.NoError(t, err)
	policy := protect.NewPolicy("attempt-1", func() time.Time { return now }, sink)

	membership := &fakeMembershipStore{}
	assocSyncer := assoc.New(
		fakeTeacherResolver{byUpstream: map[string]string{"t-up-1": "t-local-1"}},
		fakeStudentResolver{byUpstream: map[string]string{"s-up-1": "s-local-1"}},
		membership, nil)

	r := New(inner, store.resolve, assocSyncer, tracker, policy)
	return r, store, sink
}

func sectionIncoming(upstreamID, name string) Incoming {
	sec := &model.Section{Name: name, Period: "1", Subject: "Math"}
	sec.SetUpstreamID(upstreamID)
	return Incoming{
		Section:                  sec,
		TeacherUpstreamIDs:       []string{"t-up-1"},
		PrimaryTeacherUpstreamID: "t-up-1",
		StudentUpstreamIDs:       []string{"s-up-1"},
	}
}

func TestUpsertOne_FreshSectionRunsAssociationsSync(t *testing.T) {
	r, _, _ := newHarness(t, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	changed, result, err := r.UpsertOne(context.Background(), now, sectionIncoming("sec-up-1", "Algebra I"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, result.TeachersLinked)
	assert.Equal(t, 1, result.StudentsAdded)
}

func TestUpsertOne_ProtectedNameChangeWarnsButStillApplies(t *testing.T) {
	refs := []model.ProtectedSectionRef{{SectionID: "whatever", UpstreamID: "sec-up-1", DisplayName: "Algebra I"}}
	r, store, sink := newHarness(t, refs)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := r.UpsertOne(context.Background(), now, sectionIncoming("sec-up-1", "Algebra I"))
	require.NoError(t, err)
	assert.Empty(t, sink.warnings, "first sighting is an insert, not a name change")

	later := now.Add(time.Hour)
	changed, _, err := r.UpsertOne(context.Background(), later, sectionIncoming("sec-up-1", "Algebra I Honors"))
	require.NoError(t, err)
	assert.True(t, changed)

	require.Len(t, sink.warnings, 1)
	assert.Equal(t, model.WarningProtectedSectionModified, sink.warnings[0].Kind)

	stored, found, err := store.FindByUpstreamID(context.Background(), "sec-up-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Algebra I Honors", stored.Name, "the name change is applied despite the warning")
}

func TestReconcileMissing_UnprotectedSoftDeletedProtectedSkipped(t *testing.T) {
	refs := []model.ProtectedSectionRef{{SectionID: "whatever", UpstreamID: "sec-protected", DisplayName: "Algebra I"}}
	r, store, sink := newHarness(t, refs)
	seedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := r.UpsertOne(context.Background(), seedTime, sectionIncoming("sec-protected", "Algebra I"))
	require.NoError(t, err)
	_, _, err = r.UpsertOne(context.Background(), seedTime, sectionIncoming("sec-unprotected", "Biology"))
	require.NoError(t, err)

	attemptStart := seedTime.Add(24 * time.Hour)
	deleted, skipped, err := r.ReconcileMissing(context.Background(), attemptStart)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 1, skipped)

	protectedRow, _, err := store.FindByUpstreamID(context.Background(), "sec-protected")
	require.NoError(t, err)
	assert.Nil(t, protectedRow.GetDeletedAt())

	unprotectedRow, _, err := store.FindByUpstreamID(context.Background(), "sec-unprotected")
	require.NoError(t, err)
	assert.NotNil(t, unprotectedRow.GetDeletedAt())

	require.Len(t, sink.warnings, 1)
	assert.Equal(t, model.WarningProtectedSectionMissing, sink.warnings[0].Kind)
}

func TestSoftDeleteByUpstreamId_BypassesProtection(t *testing.T) {
	refs := []model.ProtectedSectionRef{{SectionID: "whatever", UpstreamID: "sec-protected", DisplayName: "Algebra I"}}
	r, store, sink := newHarness(t, refs)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := r.UpsertOne(context.Background(), now, sectionIncoming("sec-protected", "Algebra I"))
	require.NoError(t, err)

	require.NoError(t, r.SoftDeleteByUpstreamId(context.Background(), "sec-protected"))
	row, _, err := store.FindByUpstreamID(context.Background(), "sec-protected")
	require.NoError(t, err)
	assert.NotNil(t, row.GetDeletedAt(), "an explicit delete event is honored even for a protected section")
	assert.Empty(t, sink.warnings, "explicit deletes never go through the protection policy")
}
