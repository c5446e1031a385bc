package orchestrator

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brightpath-labs/roster-sync/progress"
)

// SyncDistrict implements the Fan-out Orchestrator (spec.md §4.8): every
// active school in the district is synced concurrently, bounded to
// Config.DistrictConcurrency (default 5), and progress snapshots are
// rescaled to the district as a whole. force is threaded through to
// every school's SyncSchool call, forcing a full resync district-wide.
func (o *Orchestrator) SyncDistrict(ctx context.Context, districtID string, force bool) (DistrictResult, error) {
	schools, err := o.Orch.ListActiveSchools(ctx, districtID)
	if err != nil {
		return DistrictResult{DistrictID: districtID}, err
	}

	results := make([]SyncResult, len(schools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.districtConcurrency())

	var done int32
	for i, school := range schools {
		i, school := i, school
		g.Go(func() error {
			results[i] = o.SyncSchool(gctx, school.SchoolID, force)
			o.reportDistrictProgress(districtID, int(atomic.AddInt32(&done, 1)), len(schools))
			return nil
		})
	}
	// Every SyncSchool call captures its own failure, cancellation
	// included, into its SyncResult; g.Go never returns a non-nil error,
	// so g.Wait returns nil.
	if err := g.Wait(); err != nil {
		return DistrictResult{DistrictID: districtID, Schools: results}, err
	}

	return DistrictResult{DistrictID: districtID, Schools: results}, nil
}

// SyncAllDistricts runs every active district sequentially (districts
// themselves don't fan out further; only the schools within one do) and
// aggregates a SyncSummary (spec.md §7). A district failure does not
// stop the others (spec.md §7 PerDistrict: "Log; other districts
// proceed") — it is logged, and whatever DistrictResult SyncDistrict
// returned (with no school results when listing the schools failed) is
// appended; DistrictResult carries no failure flag of its own.
func (o *Orchestrator) SyncAllDistricts(ctx context.Context, force bool) (SyncSummary, error) {
	districts, err := o.Orch.ListActiveDistricts(ctx)
	if err != nil {
		return SyncSummary{}, err
	}

	summary := SyncSummary{Districts: make([]DistrictResult, 0, len(districts))}
	for _, d := range districts {
		dr, err := o.SyncDistrict(ctx, d.DistrictID, force)
		if err != nil {
			o.Ctx.Log.Error("orchestrator: district sync failed", zap.String("districtId", d.DistrictID), zap.Error(err))
		}
		summary.Districts = append(summary.Districts, dr)
		for _, sr := range dr.Schools {
			summary.TotalSchools++
			if sr.Success {
				summary.SuccessfulSchools++
			} else {
				summary.FailedSchools++
			}
			for _, counts := range sr.PerKind {
				summary.TotalProcessed += counts.Processed
				summary.TotalFailed += counts.Failed
			}
		}
	}
	return summary, nil
}

func (o *Orchestrator) districtConcurrency() int {
	if o.Ctx.Config.DistrictConcurrency > 0 {
		return o.Ctx.Config.DistrictConcurrency
	}
	return 5
}

func (o *Orchestrator) reportDistrictProgress(districtID string, done, total int) {
	if total == 0 {
		return
	}
	progress.Report(o.Progress, progress.Snapshot{
		Operation: "district:" + districtID,
		Percent:   100 * float64(done) / float64(total),
	})
}
