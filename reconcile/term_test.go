package reconcile

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-labs/roster-sync/model"
)

// fakeTermStore is an in-memory Store[*model.Term], identical in shape
// to fakeStudentStore but kept separate since Go generics can't share a
// map-backed fake across distinct Entity type parameters without an
// adapter layer the rest of the codebase doesn't use either.
type fakeTermStore struct {
	byUpstream map[string]*model.Term
	nextID     int
}

func newFakeTermStore() *fakeTermStore {
	return &fakeTermStore{byUpstream: map[string]*model.Term{}}
}

func (s *fakeTermStore) FindByUpstreamID(_ context.Context, upstreamID string) (*model.Term, bool, error) {
	rec, ok := s.byUpstream[upstreamID]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (s *fakeTermStore) Insert(_ context.Context, rec *model.Term) error {
	cp := *rec
	s.byUpstream[rec.GetUpstreamID()] = &cp
	return nil
}

func (s *fakeTermStore) Update(_ context.Context, rec *model.Term) error {
	cp := *rec
	s.byUpstream[rec.GetUpstreamID()] = &cp
	return nil
}

func (s *fakeTermStore) NewID() string {
	s.nextID++
	return "term-id-" + strconv.Itoa(s.nextID)
}

func (s *fakeTermStore) ScanOrphans(_ context.Context, cutoff time.Time) ([]*model.Term, error) {
	var out []*model.Term
	for _, rec := range s.byUpstream {
		if rec.GetDeletedAt() == nil && rec.GetLastSeenAt().Before(cutoff) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTermIncoming(upstreamID, name string, isManual bool) *model.Term {
	t := &model.Term{Name: name, IsManual: isManual}
	t.SetUpstreamID(upstreamID)
	return t
}

func TestDetectOrphans_ManualTermsExcludedByIsOrphanable(t *testing.T) {
	store := newFakeTermStore()
	differ := NewTermDiffer()
	attemptStart := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	staleTime := attemptStart.Add(-24 * time.Hour)

	seed := New[*model.Term](store, differ, func() time.Time { return staleTime }, nil)
	manual := newTermIncoming("manual-1", "Custom Intersession", true)
	_, err := seed.UpsertOne(context.Background(), staleTime, manual)
	require.NoError(t, err)

	fed := newTermIncoming("fed-1", "Fall 2026", false)
	_, err = seed.UpsertOne(context.Background(), staleTime, fed)
	require.NoError(t, err)

	r := New[*model.Term](store, differ, func() time.Time { return attemptStart }, nil)
	n, err := r.DetectOrphans(context.Background(), attemptStart, IsOrphanable)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the non-manual stale term should be orphaned")

	manualRow, _, err := store.FindByUpstreamID(context.Background(), "manual-1")
	require.NoError(t, err)
	assert.Nil(t, manualRow.GetDeletedAt(), "manual terms are never orphaned regardless of staleness")

	fedRow, _, err := store.FindByUpstreamID(context.Background(), "fed-1")
	require.NoError(t, err)
	assert.NotNil(t, fedRow.GetDeletedAt())
}

func TestTeacherDiffer_NormalizeFillsFullNameWhenBlank(t *testing.T) {
	differ := NewTeacherDiffer()
	incoming := &model.Teacher{FirstName: "Grace", LastName: "Hopper"}
	differ.Normalize(incoming)
	assert.Equal(t, "Grace Hopper", incoming.FullName)

	// An upstream-supplied FullName is left untouched.
	withFullName := &model.Teacher{FirstName: "Grace", LastName: "Hopper", FullName: "Amazing Grace"}
	differ.Normalize(withFullName)
	assert.Equal(t, "Amazing Grace", withFullName.FullName)
}
