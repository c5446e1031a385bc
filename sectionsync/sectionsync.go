// Package sectionsync composes the Section reconciler (C3), Associations
// Sync (C4) and the Protection gating rules (C5) into the single unit
// spec.md §4.5 describes as "gating rules executed inside the Section
// reconciler". It is a separate package, rather than folded into
// reconcile.Reconciler, so that reconcile stays generic over every
// entity kind while this package owns the one kind with extra rules.
package sectionsync

import (
	"context"
	"fmt"
	"time"

	"github.com/brightpath-labs/roster-sync/assoc"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/protect"
	"github.com/brightpath-labs/roster-sync/reconcile"
)

// Incoming is one upstream section record plus its membership lists,
// the shape the Section reconciler needs to run both C3 and C4 in one
// call.
type Incoming struct {
	Section                  *model.Section
	TeacherUpstreamIDs       []string
	PrimaryTeacherUpstreamID string
	StudentUpstreamIDs       []string
}

// Reconciler wraps reconcile.Reconciler[*model.Section] with protected
// name-change warnings and an Associations Sync call after every
// upsert.
type Reconciler struct {
	inner      *reconcile.Reconciler[*model.Section]
	resolver   assoc.SectionResolverFunc
	assocSync  *assoc.Syncer
	protection *protect.Tracker
	policy     *protect.Policy
}

// New constructs a section Reconciler. resolveSectionID must return the
// local id for an upstream section id immediately after it has been
// upserted (used to resolve the id Associations Sync writes against).
func New(
	inner *reconcile.Reconciler[*model.Section],
	resolveSectionID assoc.SectionResolverFunc,
	assocSync *assoc.Syncer,
	protection *protect.Tracker,
	policy *protect.Policy,
) *Reconciler {
	return &Reconciler{inner: inner, resolver: resolveSectionID, assocSync: assocSync, protection: protection, policy: policy}
}

// UpsertOne runs C3's upsert, then after every successful upsert
// (whether or not the section's own fields changed) runs Associations
// Sync, and along the way applies C5's
// protected-name-change warning. Returns whether the section's own
// fields changed and the association diff result.
func (r *Reconciler) UpsertOne(ctx context.Context, attemptStart time.Time, in Incoming) (didChange bool, assocResult assoc.Result, err error) {
	upstreamID := in.Section.GetUpstreamID()

	protectedRef, isProtected, err := r.protection.IsProtected(upstreamID)
	if err != nil {
		return false, assocResult, fmt.Errorf("sectionsync: protection lookup %q: %w", upstreamID, err)
	}

	var oldName string
	if isProtected {
		if prior, found, err := r.inner.Peek(ctx, upstreamID); err == nil && found {
			oldName = prior.Name
		}
	}

	didChange, err = r.inner.UpsertOne(ctx, attemptStart, in.Section)
	if err != nil {
		return false, assocResult, err
	}

	if isProtected && didChange && oldName != "" && oldName != in.Section.Name {
		if err := r.policy.OnNameChange(protectedRef, oldName, in.Section.Name); err != nil {
			return didChange, assocResult, err
		}
	}

	localID, found, err := r.resolver(ctx, upstreamID)
	if err != nil {
		return didChange, assocResult, fmt.Errorf("sectionsync: resolve local id for %q: %w", upstreamID, err)
	}
	if !found {
		return didChange, assocResult, fmt.Errorf("sectionsync: section %q missing immediately after upsert", upstreamID)
	}

	assocResult, err = r.assocSync.SyncSection(ctx, localID, upstreamID,
		in.TeacherUpstreamIDs, in.PrimaryTeacherUpstreamID, in.StudentUpstreamIDs,
		isProtected, r.protection)
	if err != nil {
		return didChange, assocResult, fmt.Errorf("sectionsync: associations for %q: %w", upstreamID, err)
	}
	return didChange, assocResult, nil
}

// SoftDeleteByUpstreamId implements the explicit-delete-event path
// (spec.md §4.6): an upstream "section.deleted" event is an explicit
// instruction, not an absence inferred from a full-sync listing, so it
// is never gated by protection the way ReconcileMissing is.
func (r *Reconciler) SoftDeleteByUpstreamId(ctx context.Context, upstreamID string) error {
	return r.inner.SoftDeleteByUpstreamId(ctx, upstreamID)
}

// ReconcileMissing implements the full-sync-only "presence/absence"
// pass spec.md §4.9 calls out as replacing the generic orphan scan for
// sections: any local section not seen (lastSeenAt < attempt.startedAt)
// is soft-deleted, UNLESS it is protected, in which case a
// ProtectedSectionMissing warning is written and the delete is skipped.
func (r *Reconciler) ReconcileMissing(ctx context.Context, attemptStart time.Time) (deleted, skippedProtected int, err error) {
	candidates, err := r.inner.ScanOrphanCandidates(ctx, attemptStart)
	if err != nil {
		return 0, 0, fmt.Errorf("sectionsync: scan missing sections: %w", err)
	}

	for _, sec := range candidates {
		ref, isProtected, err := r.protection.IsProtected(sec.GetUpstreamID())
		if err != nil {
			return deleted, skippedProtected, fmt.Errorf("sectionsync: protection lookup %q: %w", sec.GetUpstreamID(), err)
		}
		if isProtected {
			if err := r.policy.OnMissingDuringFullSync(ref); err != nil {
				return deleted, skippedProtected, err
			}
			skippedProtected++
			continue
		}
		if err := r.inner.SoftDeleteRecord(ctx, sec); err != nil {
			return deleted, skippedProtected, fmt.Errorf("sectionsync: soft-delete missing section %q: %w", sec.GetUpstreamID(), err)
		}
		deleted++
	}
	return deleted, skippedProtected, nil
}
