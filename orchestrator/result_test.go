package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brightpath-labs/roster-sync/model"
)

func TestNewFailedResult_CarriesErrorAndZeroDuration(t *testing.T) {
	startedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newFailedResult("sch-1", "Lincoln Elementary", startedAt, errors.New("boom"))

	assert.Equal(t, "sch-1", r.SchoolID)
	assert.Equal(t, "Lincoln Elementary", r.SchoolName)
	assert.False(t, r.Success)
	assert.Equal(t, "boom", r.ErrorMessage)
	assert.Equal(t, startedAt, r.StartedAt)
	assert.Equal(t, startedAt, r.EndedAt)
	assert.NotNil(t, r.PerKind)
	assert.Empty(t, r.PerKind)
}

func TestSyncResult_AddKindAccumulatesAcrossCalls(t *testing.T) {
	r := SyncResult{}
	r.addKind(model.KindStudent, KindCounts{Processed: 10, Updated: 2, Deleted: 1})
	r.addKind(model.KindStudent, KindCounts{Processed: 5, Failed: 1})
	r.addKind(model.KindTeacher, KindCounts{Processed: 3})

	assert.Equal(t, KindCounts{Processed: 15, Updated: 2, Failed: 1, Deleted: 1}, r.PerKind[model.KindStudent])
	assert.Equal(t, KindCounts{Processed: 3}, r.PerKind[model.KindTeacher])
}

func TestSyncResult_AddKindInitializesNilMap(t *testing.T) {
	var r SyncResult
	assert.Nil(t, r.PerKind)

	r.addKind(model.KindSection, KindCounts{Processed: 1})
	assert.Len(t, r.PerKind, 1)
}
