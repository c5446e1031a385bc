package orchestrator

import (
	"context"

	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/store"
)

// decision is the mode decider's output (spec.md §4.7).
type decision struct {
	mode   model.SyncMode
	cursor *string
}

// decideMode implements: Full iff force OR school.requiresFullSync OR no
// prior Success attempt exists; otherwise Incremental with the replay
// cursor taken from the most recent successful Baseline/Event attempt
// (only when that cursor is both non-null and non-empty).
func decideMode(ctx context.Context, orch store.OrchestrationStore, school model.School, force bool) (decision, error) {
	if force || school.RequiresFullSync {
		return decision{mode: model.ModeFull}, nil
	}

	hasAny, err := orch.HasAnySuccessfulAttempt(ctx, school.SchoolID)
	if err != nil {
		return decision{}, err
	}
	if !hasAny {
		return decision{mode: model.ModeFull}, nil
	}

	latest, found, err := orch.LatestSuccessfulCursorAttempt(ctx, school.SchoolID)
	if err != nil {
		return decision{}, err
	}
	if !found || latest.Cursor == nil || *latest.Cursor == "" {
		return decision{mode: model.ModeIncremental, cursor: nil}, nil
	}
	return decision{mode: model.ModeIncremental, cursor: latest.Cursor}, nil
}
