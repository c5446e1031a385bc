package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brightpath-labs/roster-sync/lock"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/progress"
	"github.com/brightpath-labs/roster-sync/protect"
	"github.com/brightpath-labs/roster-sync/sisclient"
	"github.com/brightpath-labs/roster-sync/store"
	"github.com/brightpath-labs/roster-sync/synctx"
)

// Orchestrator is the School Orchestrator & Mode Decider (C7) and,
// transitively through SyncDistrict/SyncAllDistricts, the Fan-out
// Orchestrator (C8).
type Orchestrator struct {
	Orch       store.OrchestrationStore
	Conn       store.ConnectionFactory
	SIS        sisclient.Client
	Downstream store.DownstreamProcedure
	Progress   progress.Sink
	SchoolLock lock.SchoolLock
	Ctx        synctx.Context
}

// New constructs an Orchestrator. A nil SchoolLock defaults to
// lock.Noop; a nil Progress defaults to progress.NoopSink.
func New(orch store.OrchestrationStore, conn store.ConnectionFactory, sis sisclient.Client, downstream store.DownstreamProcedure, prog progress.Sink, schoolLock lock.SchoolLock, sc synctx.Context) *Orchestrator {
	if schoolLock == nil {
		schoolLock = lock.Noop{}
	}
	if prog == nil {
		prog = progress.NoopSink{}
	}
	return &Orchestrator{Orch: orch, Conn: conn, SIS: sis, Downstream: downstream, Progress: prog, SchoolLock: schoolLock, Ctx: sc}
}

// SyncSchool implements spec.md §4.7. Every error is captured into the
// returned SyncResult rather than propagated. SyncSchool has no error
// return, so cancellation is not propagated either: a cancelled ctx
// surfaces as a failed SyncResult like any other error.
func (o *Orchestrator) SyncSchool(ctx context.Context, schoolID string, force bool) SyncResult {
	startedAt := o.Ctx.Now()
	if o.Ctx.Metrics != nil {
		o.Ctx.Metrics.SchoolsInFlight.Inc()
		defer o.Ctx.Metrics.SchoolsInFlight.Dec()
	}

	school, err := o.Orch.GetSchool(ctx, schoolID)
	if err != nil {
		return newFailedResult(schoolID, "", startedAt, fmt.Errorf("orchestrator: get school %q: %w", schoolID, err))
	}

	release, acquired, err := o.SchoolLock.TryAcquire(ctx, schoolID)
	if err != nil {
		return newFailedResult(schoolID, school.Name, startedAt, fmt.Errorf("orchestrator: acquire lock for school %q: %w", schoolID, err))
	}
	if !acquired {
		return newFailedResult(schoolID, school.Name, startedAt, fmt.Errorf("orchestrator: school %q already syncing", schoolID))
	}
	defer release()

	schoolStore, err := o.Conn.OpenSchoolStore(ctx, school)
	if err != nil {
		return newFailedResult(schoolID, school.Name, startedAt, fmt.Errorf("orchestrator: open store for school %q: %w", schoolID, err))
	}
	defer func() {
		if err := schoolStore.Close(); err != nil {
			o.Ctx.Log.Warn("orchestrator: failed to close school store", zap.String("schoolId", schoolID), zap.Error(err))
		}
	}()

	d, err := decideMode(ctx, o.Orch, school, force)
	if err != nil {
		return newFailedResult(schoolID, school.Name, startedAt, fmt.Errorf("orchestrator: decide mode for school %q: %w", schoolID, err))
	}

	protectedRefs, err := schoolStore.ListProtectedSections(ctx)
	if err != nil {
		return newFailedResult(schoolID, school.Name, startedAt, fmt.Errorf("orchestrator: load protected sections for school %q: %w", schoolID, err))
	}
	tracker, err := protect.NewTracker(protectedRefs)
	if err != nil {
		return newFailedResult(schoolID, school.Name, startedAt, fmt.Errorf("orchestrator: build protection tracker for school %q: %w", schoolID, err))
	}

	result := SyncResult{SchoolID: schoolID, SchoolName: school.Name, Mode: d.mode, StartedAt: startedAt, PerKind: map[model.EntityKind]KindCounts{}}

	var sectionAttemptID string
	var downstreamShouldRun bool
	var runErr error

	if d.mode == model.ModeFull {
		sectionAttemptID, downstreamShouldRun, runErr = o.runFullSync(ctx, school, schoolStore, tracker, &result)
	} else {
		sectionAttemptID, downstreamShouldRun, runErr = o.runIncrementalSync(ctx, school, schoolStore, tracker, d, &result)
	}

	if runErr != nil {
		result.ErrorMessage = runErr.Error()
	} else {
		result.Success = true
	}

	if downstreamShouldRun && sectionAttemptID != "" && o.Downstream != nil {
		dres, derr := o.Downstream.RunDownstream(ctx, schoolStore, sectionAttemptID, tracker)
		if derr != nil {
			policy := protect.NewPolicy(sectionAttemptID, o.Ctx.Clock.Now, schoolStore)
			if werr := policy.OnDownstreamFailure(sectionAttemptID, derr); werr != nil {
				o.Ctx.Log.Error("orchestrator: failed to record downstream warning", zap.Error(werr))
			}
			result.Warnings++
			o.Ctx.Log.Warn("orchestrator: downstream procedure failed", zap.String("schoolId", schoolID), zap.Error(derr))
		} else if !dres.Skipped {
			o.Ctx.Log.Info("orchestrator: downstream procedure ran", zap.String("schoolId", schoolID), zap.String("sectionAttemptId", sectionAttemptID))
		}
	}

	result.EndedAt = o.Ctx.Now()
	return result
}

// reportEvery returns the progress cadence, defaulting to 10 per
// spec.md §4.7 ("at least every 10 records").
func (o *Orchestrator) reportEvery() int {
	if o.Ctx.Config.ProgressReportEvery > 0 {
		return o.Ctx.Config.ProgressReportEvery
	}
	return 10
}
