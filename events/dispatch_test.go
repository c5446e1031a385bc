package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-labs/roster-sync/model"
)

type fakeStudentReconciler struct {
	upserted []*model.Student
	deleted  []string
	failErr  error
}

func (f *fakeStudentReconciler) UpsertOne(_ context.Context, _ time.Time, incoming *model.Student) (bool, error) {
	if f.failErr != nil {
		return false, f.failErr
	}
	f.upserted = append(f.upserted, incoming)
	return true, nil
}

func (f *fakeStudentReconciler) SoftDeleteByUpstreamId(_ context.Context, upstreamID string) error {
	f.deleted = append(f.deleted, upstreamID)
	return nil
}

type fakeTeacherReconciler struct {
	upserted []*model.Teacher
	deleted  []string
}

func (f *fakeTeacherReconciler) UpsertOne(_ context.Context, _ time.Time, incoming *model.Teacher) (bool, error) {
	f.upserted = append(f.upserted, incoming)
	return true, nil
}

func (f *fakeTeacherReconciler) SoftDeleteByUpstreamId(_ context.Context, upstreamID string) error {
	f.deleted = append(f.deleted, upstreamID)
	return nil
}

type fakeTermReconciler struct {
	upserted []*model.Term
	deleted  []string
}

func (f *fakeTermReconciler) UpsertOne(_ context.Context, _ time.Time, incoming *model.Term) (bool, error) {
	f.upserted = append(f.upserted, incoming)
	return true, nil
}

func (f *fakeTermReconciler) SoftDeleteByUpstreamId(_ context.Context, upstreamID string) error {
	f.deleted = append(f.deleted, upstreamID)
	return nil
}

func userCreatedEnvelope(id, upstreamID, roles string) Envelope {
	payload := `{"id":"` + upstreamID + `","name":{"first":"Ada","last":"Lovelace"},"roles":` + roles + `}`
	return Envelope{ID: id, Type: "user.created", CreatedAt: time.Now(), Payload: json.RawMessage(payload)}
}

func TestProcessBatch_RoutesStudentAndTeacher(t *testing.T) {
	students := &fakeStudentReconciler{}
	teachers := &fakeTeacherReconciler{}
	d := Dispatchers{
		Students: &StudentRoute{Reconciler: students},
		Teachers: &TeacherRoute{Reconciler: teachers},
	}

	envelopes := []Envelope{
		userCreatedEnvelope("evt-1", "stu-1", `{"student":{}}`),
		userCreatedEnvelope("evt-2", "tch-1", `{"teacher":{"credentials":{"districtUsername":"x"}}}`),
	}

	out := ProcessBatch(context.Background(), time.Now(), envelopes, d)
	assert.Equal(t, 2, out.Processed)
	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 0, out.Failed)
	assert.Equal(t, 2, out.PerKind["user"])
	require.Len(t, students.upserted, 1)
	assert.Equal(t, "stu-1", students.upserted[0].GetUpstreamID())
	require.Len(t, teachers.upserted, 1)
	assert.Equal(t, "tch-1", teachers.upserted[0].GetUpstreamID())
	assert.Equal(t, "evt-2", out.LastSuccessID)
}

func TestProcessBatch_SkipsWhenRouteNotWired(t *testing.T) {
	d := Dispatchers{} // no routes at all
	envelopes := []Envelope{userCreatedEnvelope("evt-1", "stu-1", `{"student":{}}`)}
	out := ProcessBatch(context.Background(), time.Now(), envelopes, d)
	assert.Equal(t, 1, out.Processed)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 0, out.Succeeded)
	assert.Equal(t, 0, out.Failed)
}

func TestProcessBatch_SkipsUnroutableObjectKinds(t *testing.T) {
	d := Dispatchers{}
	envelopes := []Envelope{
		{ID: "evt-1", Type: "course.created", CreatedAt: time.Now(), Payload: json.RawMessage(`{}`)},
		{ID: "evt-2", Type: "district.updated", CreatedAt: time.Now(), Payload: json.RawMessage(`{}`)},
	}
	out := ProcessBatch(context.Background(), time.Now(), envelopes, d)
	assert.Equal(t, 2, out.Skipped)
	assert.Equal(t, 0, out.Failed)
}

func TestProcessBatch_ContinuesPastFailure(t *testing.T) {
	students := &fakeStudentReconciler{failErr: errors.New("db down")}
	d := Dispatchers{Students: &StudentRoute{Reconciler: students}}

	envelopes := []Envelope{
		userCreatedEnvelope("evt-1", "stu-1", `{"student":{}}`),
		userCreatedEnvelope("evt-2", "stu-2", `{"student":{}}`),
	}
	out := ProcessBatch(context.Background(), time.Now(), envelopes, d)
	assert.Equal(t, 2, out.Processed)
	assert.Equal(t, 2, out.Failed)
	assert.Equal(t, 0, out.Succeeded)
	assert.Contains(t, out.FirstErrorMessage, "db down")
}

func TestProcessBatch_DeleteEventClassifiesFromPayloadAndSoftDeletes(t *testing.T) {
	students := &fakeStudentReconciler{}
	teachers := &fakeTeacherReconciler{}
	d := Dispatchers{
		Students: &StudentRoute{Reconciler: students},
		Teachers: &TeacherRoute{Reconciler: teachers},
	}
	env := Envelope{
		ID:        "evt-1",
		Type:      "user.deleted",
		CreatedAt: time.Now(),
		Payload:   json.RawMessage(`{"id":"stu-1","roles":{"student":{}}}`),
	}
	out := ProcessBatch(context.Background(), time.Now(), []Envelope{env}, d)
	assert.Equal(t, 1, out.Succeeded)
	assert.Equal(t, []string{"stu-1"}, students.deleted)
	assert.Empty(t, teachers.deleted)
}

func TestProcessBatch_TermRouting(t *testing.T) {
	terms := &fakeTermReconciler{}
	d := Dispatchers{Terms: &TermRoute{Reconciler: terms}}
	env := Envelope{
		ID:        "evt-1",
		Type:      "term.created",
		CreatedAt: time.Now(),
		Payload:   json.RawMessage(`{"id":"term-1","name":"Fall 2026"}`),
	}
	out := ProcessBatch(context.Background(), time.Now(), []Envelope{env}, d)
	assert.Equal(t, 1, out.Succeeded)
	require.Len(t, terms.upserted, 1)
	assert.Equal(t, "term-1", terms.upserted[0].GetUpstreamID())
}

func TestProcessBatch_TermDeleted(t *testing.T) {
	terms := &fakeTermReconciler{}
	d := Dispatchers{Terms: &TermRoute{Reconciler: terms}}
	env := Envelope{
		ID:        "evt-1",
		Type:      "term.deleted",
		CreatedAt: time.Now(),
		Payload:   json.RawMessage(`{"id":"term-1"}`),
	}
	out := ProcessBatch(context.Background(), time.Now(), []Envelope{env}, d)
	assert.Equal(t, 1, out.Succeeded)
	assert.Equal(t, []string{"term-1"}, terms.deleted)
}

func TestProcessBatch_TracksLastFetchedEvenOnFailure(t *testing.T) {
	students := &fakeStudentReconciler{failErr: errors.New("boom")}
	d := Dispatchers{Students: &StudentRoute{Reconciler: students}}
	env := userCreatedEnvelope("evt-1", "stu-1", `{"student":{}}`)
	out := ProcessBatch(context.Background(), time.Now(), []Envelope{env}, d)
	assert.Equal(t, "evt-1", out.LastFetchedID)
	assert.Empty(t, out.LastSuccessID)
}
