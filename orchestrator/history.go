package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath-labs/roster-sync/model"
)

// phaseSummary is the counters and cursor state one reconciliation
// phase (or the whole of an Event batch) produces, independent of how
// it gets persisted onto a model.SyncAttempt row.
type phaseSummary struct {
	Processed, Updated, Failed, Deleted, SkippedProtected int
	Cursor                                                *string
	CursorTimestamp                                       *time.Time
	LastKnownSyncPoint                                    *time.Time
	SummaryBlob                                           map[string]int
	// Status, when non-empty, overrides the default
	// error-or-success inference (used for the Partial status on a
	// poison-event batch, spec.md §4.7 finalization rules).
	Status       model.AttemptStatus
	ErrorMessage string
}

// openAttempt inserts an InProgress attempt row (spec.md §4.9: "inserted
// before work begins, to obtain attemptId used by audits and warnings").
func (o *Orchestrator) openAttempt(ctx context.Context, schoolID string, kind model.EntityKind, mode model.SyncMode) (string, time.Time, error) {
	startedAt := o.Ctx.Now()
	attemptID, err := o.Orch.InsertAttempt(ctx, model.SyncAttempt{
		SchoolID:   schoolID,
		EntityKind: kind,
		Mode:       mode,
		StartedAt:  startedAt,
		Status:     model.StatusInProgress,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("orchestrator: open %s attempt for school %q: %w", kind, schoolID, err)
	}
	return attemptID, startedAt, nil
}

// finalizeAttempt writes the terminal state of an attempt row (spec.md
// §4.9: "then UPDATEd on completion"). A non-nil workErr always produces
// Failed; otherwise summary.Status is honored if set, else Success.
func (o *Orchestrator) finalizeAttempt(
	ctx context.Context,
	attemptID, schoolID string,
	kind model.EntityKind,
	mode model.SyncMode,
	startedAt time.Time,
	summary phaseSummary,
	workErr error,
) model.SyncAttempt {
	endedAt := o.Ctx.Now()
	attempt := model.SyncAttempt{
		AttemptID:          attemptID,
		SchoolID:           schoolID,
		EntityKind:         kind,
		Mode:               mode,
		StartedAt:          startedAt,
		EndedAt:            &endedAt,
		RecordsProcessed:   summary.Processed,
		RecordsUpdated:     summary.Updated,
		RecordsFailed:      summary.Failed,
		Cursor:             summary.Cursor,
		CursorTimestamp:    summary.CursorTimestamp,
		LastKnownSyncPoint: summary.LastKnownSyncPoint,
		SummaryBlob:        summary.SummaryBlob,
	}

	switch {
	case workErr != nil:
		attempt.Status = model.StatusFailed
		attempt.ErrorMessage = workErr.Error()
	case summary.Status != "":
		attempt.Status = summary.Status
		attempt.ErrorMessage = summary.ErrorMessage
	default:
		attempt.Status = model.StatusSuccess
	}

	if err := o.Orch.UpdateAttempt(ctx, attempt); err != nil {
		o.Ctx.Log.Error("orchestrator: failed to finalize attempt",
			zap.String("attemptId", attemptID), zap.String("entityKind", string(kind)), zap.Error(err))
	}
	if o.Ctx.Metrics != nil {
		o.Ctx.Metrics.AttemptDuration.WithLabelValues(string(kind), string(mode)).Observe(endedAt.Sub(startedAt).Seconds())
		o.Ctx.Metrics.RecordsProcessed.WithLabelValues(string(kind)).Add(float64(summary.Processed))
		o.Ctx.Metrics.RecordsUpdated.WithLabelValues(string(kind)).Add(float64(summary.Updated))
		o.Ctx.Metrics.RecordsFailed.WithLabelValues(string(kind)).Add(float64(summary.Failed))
	}
	return attempt
}

// RecoverStaleAttempts marks InProgress attempts older than the
// configured threshold as Failed (spec.md §4.9, optional recovery
// pass). Invoked by the out-of-scope startup hook, never from inside
// SyncSchool itself.
func (o *Orchestrator) RecoverStaleAttempts(ctx context.Context) (int, error) {
	cutoff := o.Ctx.Now().Add(-o.Ctx.Config.StaleInProgressThreshold)
	n, err := o.Orch.RecoverStaleAttempts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: recover stale attempts: %w", err)
	}
	return n, nil
}
