package protect

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-labs/roster-sync/model"
)

// fakeWarningSink records every Warning passed to InsertWarning, with an
// optional forced error for testing the failure path.
type fakeWarningSink struct {
	warnings []model.Warning
	err      error
}

func (s *fakeWarningSink) InsertWarning(w model.Warning) error {
	if s.err != nil {
		return s.err
	}
	s.warnings = append(s.warnings, w)
	return nil
}

func TestTracker_IsProtected(t *testing.T) {
	refs := []model.ProtectedSectionRef{
		{SectionID: "sec-1", UpstreamID: "up-1", DisplayName: "Algebra I"},
		{SectionID: "sec-2", UpstreamID: "up-2", DisplayName: "Biology"},
	}
	tracker, err := NewTracker(refs)
	require.NoError(t, err)

	ref, found, err := tracker.IsProtected("up-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Algebra I", ref.DisplayName)

	_, found, err = tracker.IsProtected("up-missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTracker_EnrollmentChanged(t *testing.T) {
	tracker, err := NewTracker(nil)
	require.NoError(t, err)
	assert.False(t, tracker.EnrollmentChanged())

	tracker.MarkEnrollmentChanged("sec-1")
	assert.True(t, tracker.EnrollmentChanged())
}

func TestPolicy_OnNameChange_WritesWarning(t *testing.T) {
	sink := &fakeWarningSink{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPolicy("attempt-1", func() time.Time { return now }, sink)

	ref := model.ProtectedSectionRef{SectionID: "sec-1", UpstreamID: "up-1", DisplayName: "Algebra I"}
	require.NoError(t, p.OnNameChange(ref, "Algebra I", "Algebra I Honors"))

	require.Len(t, sink.warnings, 1)
	w := sink.warnings[0]
	assert.Equal(t, model.WarningProtectedSectionModified, w.Kind)
	assert.Equal(t, "attempt-1", w.AttemptID)
	assert.Equal(t, "up-1", w.UpstreamID)
	assert.Equal(t, now, w.CreatedAt)
	assert.Contains(t, w.Message, "Algebra I Honors")
	require.Len(t, w.AffectedProtectedRefs, 1)
	assert.Equal(t, "sec-1", w.AffectedProtectedRefs[0].SectionID)
	assert.Equal(t, 1, w.AffectedProtectedCount)
}

func TestPolicy_OnMissingDuringFullSync_WritesWarning(t *testing.T) {
	sink := &fakeWarningSink{}
	p := NewPolicy("attempt-1", func() time.Time { return time.Time{} }, sink)

	ref := model.ProtectedSectionRef{SectionID: "sec-1", UpstreamID: "up-1", DisplayName: "Algebra I"}
	require.NoError(t, p.OnMissingDuringFullSync(ref))

	require.Len(t, sink.warnings, 1)
	assert.Equal(t, model.WarningProtectedSectionMissing, sink.warnings[0].Kind)
	assert.Contains(t, sink.warnings[0].Message, "soft-delete skipped")
}

func TestPolicy_OnDownstreamFailure_WritesWarningWithoutRefs(t *testing.T) {
	sink := &fakeWarningSink{}
	p := NewPolicy("attempt-1", func() time.Time { return time.Time{} }, sink)

	cause := errors.New("procedure timed out")
	require.NoError(t, p.OnDownstreamFailure("section-attempt-1", cause))

	require.Len(t, sink.warnings, 1)
	w := sink.warnings[0]
	assert.Equal(t, model.WarningDownstreamSyncFailed, w.Kind)
	assert.Empty(t, w.AffectedProtectedRefs)
	assert.Equal(t, 0, w.AffectedProtectedCount)
	assert.Contains(t, w.Message, "procedure timed out")
}

func TestPolicy_SetAttemptID_RetargetsSubsequentWarnings(t *testing.T) {
	sink := &fakeWarningSink{}
	p := NewPolicy("attempt-1", func() time.Time { return time.Time{} }, sink)
	ref := model.ProtectedSectionRef{SectionID: "sec-1", UpstreamID: "up-1", DisplayName: "Algebra I"}

	require.NoError(t, p.OnMissingDuringFullSync(ref))
	p.SetAttemptID("attempt-2")
	require.NoError(t, p.OnMissingDuringFullSync(ref))

	require.Len(t, sink.warnings, 2)
	assert.Equal(t, "attempt-1", sink.warnings[0].AttemptID)
	assert.Equal(t, "attempt-2", sink.warnings[1].AttemptID)
}

func TestPolicy_NilSink_IsNoop(t *testing.T) {
	p := NewPolicy("attempt-1", func() time.Time { return time.Time{} }, nil)
	ref := model.ProtectedSectionRef{SectionID: "sec-1", UpstreamID: "up-1", DisplayName: "Algebra I"}
	assert.NoError(t, p.OnNameChange(ref, "old", "new"))
}

func TestPolicy_SinkError_IsWrapped(t *testing.T) {
	sink := &fakeWarningSink{err: errors.New("disk full")}
	p := NewPolicy("attempt-1", func() time.Time { return time.Time{} }, sink)
	ref := model.ProtectedSectionRef{SectionID: "sec-1", UpstreamID: "up-1", DisplayName: "Algebra I"}

	err := p.OnNameChange(ref, "old", "new")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestMarshalProtectedRefs(t *testing.T) {
	refs := []model.ProtectedRef{{SectionID: "sec-1", UpstreamID: "up-1", DisplayName: "Algebra I"}}
	out, err := MarshalProtectedRefs(refs)
	require.NoError(t, err)
	assert.Contains(t, out, "sec-1")
	assert.Contains(t, out, "Algebra I")
}
