package orchestrator

import (
	"time"

	"github.com/brightpath-labs/roster-sync/model"
)

// KindCounts is the per-entity-kind {processed, updated, failed,
// deleted} tuple a SyncResult reports (spec.md §7).
type KindCounts struct {
	Processed int
	Updated   int
	Failed    int
	Deleted   int
}

// SyncResult is the user-visible outcome of one SyncSchool call
// (spec.md §7).
type SyncResult struct {
	SchoolID         string
	SchoolName       string
	Success          bool
	ErrorMessage     string
	Mode             model.SyncMode
	PerKind          map[model.EntityKind]KindCounts
	Warnings         int
	SkippedProtected int
	EventsSummary    *EventsSummary
	StartedAt        time.Time
	EndedAt          time.Time
}

// EventsSummary is populated only when the school ran an incremental
// event batch.
type EventsSummary struct {
	Fetched int
	Skipped int
}

// DistrictResult aggregates every school in one district.
type DistrictResult struct {
	DistrictID string
	Schools    []SyncResult
}

// SyncSummary aggregates an entire SyncAllDistricts run (spec.md §7).
type SyncSummary struct {
	Districts         []DistrictResult
	TotalSchools      int
	SuccessfulSchools int
	FailedSchools     int
	TotalProcessed    int
	TotalFailed       int
}

func newFailedResult(schoolID, schoolName string, startedAt time.Time, err error) SyncResult {
	return SyncResult{
		SchoolID:     schoolID,
		SchoolName:   schoolName,
		Success:      false,
		ErrorMessage: err.Error(),
		PerKind:      map[model.EntityKind]KindCounts{},
		StartedAt:    startedAt,
		EndedAt:      startedAt,
	}
}

func (r *SyncResult) addKind(kind model.EntityKind, c KindCounts) {
	if r.PerKind == nil {
		r.PerKind = map[model.EntityKind]KindCounts{}
	}
	existing := r.PerKind[kind]
	existing.Processed += c.Processed
	existing.Updated += c.Updated
	existing.Failed += c.Failed
	existing.Deleted += c.Deleted
	r.PerKind[kind] = existing
}
