// Package audit implements the change-audit accumulation and flush
// contract (spec.md §4.2, C2): track field-level diffs in memory during
// one attempt, then write them in a single batch. This mirrors the
// teacher's Syncer.Solve, which accumulates an EntityChanges buffer and
// only prints/serializes it once the diff has been fully walked.
package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Kong/gojsondiff"
	"github.com/Kong/gojsondiff/formatter"
	"github.com/ettle/strcase"
	"github.com/google/uuid"

	"github.com/brightpath-labs/roster-sync/model"
)

// Sink persists a batch of ChangeAudit rows. It is supplied by the
// store package; audit itself never talks to a database directly.
type Sink interface {
	InsertChangeAudits(rows []model.ChangeAudit) error
}

// Field is one tracked field's before/after value, keyed by its
// normalized name.
type Field struct {
	Name string
	// Old/New are nil when the field has no value (blank/null).
	Old, New interface{}
}

// Auditor accumulates ChangeAudit rows for a single attempt and flushes
// them once. It is attempt-scoped and must never be shared across
// concurrently-running attempts (spec.md §5: "in-memory change-audit
// buffers... are attempt-scoped and never shared").
type Auditor struct {
	attemptID string
	now       func() time.Time
	rows      []model.ChangeAudit
}

// New constructs an Auditor for one attempt.
func New(attemptID string, now func() time.Time) *Auditor {
	return &Auditor{attemptID: attemptID, now: now}
}

// TrackCreate emits one audit row listing every non-blank field as
// (null -> newValue).
func (a *Auditor) TrackCreate(kind model.EntityKind, upstreamID, displayName string, fields []Field) {
	present := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.New == nil {
			continue
		}
		present = append(present, Field{Name: f.Name, Old: nil, New: f.New})
	}
	if len(present) == 0 {
		// Still record the creation even if every tracked field is blank.
		present = fields
	}
	a.append(kind, upstreamID, displayName, model.ChangeCreated, present)
}

// TrackUpdate emits one audit row with only the fields that changed. If
// no field changed, it emits nothing (spec.md P6).
func (a *Auditor) TrackUpdate(kind model.EntityKind, upstreamID, displayName string, changed []Field) {
	if len(changed) == 0 {
		return
	}
	a.append(kind, upstreamID, displayName, model.ChangeUpdated, changed)
}

// TrackDelete emits one audit row with changeKind=Deleted.
func (a *Auditor) TrackDelete(kind model.EntityKind, upstreamID, displayName string) {
	a.append(kind, upstreamID, displayName, model.ChangeDeleted, nil)
}

// TrackOrphan emits one audit row with changeKind=Orphaned (full-sync
// orphan pass, spec.md §4.3 DetectOrphans).
func (a *Auditor) TrackOrphan(kind model.EntityKind, upstreamID, displayName string) {
	a.append(kind, upstreamID, displayName, model.ChangeOrphaned, nil)
}

func (a *Auditor) append(kind model.EntityKind, upstreamID, displayName string, change model.ChangeKind, fields []Field) {
	names := make([]string, 0, len(fields))
	oldValues := map[string]interface{}{}
	newValues := map[string]interface{}{}
	for _, f := range fields {
		names = append(names, strcase.ToGoCamel(f.Name))
		oldValues[f.Name] = f.Old
		newValues[f.Name] = f.New
	}
	sort.Strings(names)

	oldJSON, _ := json.Marshal(oldValues)
	newJSON, _ := json.Marshal(newValues)

	a.rows = append(a.rows, model.ChangeAudit{
		AuditID:       uuid.NewString(),
		AttemptID:     a.attemptID,
		EntityKind:    kind,
		UpstreamID:    upstreamID,
		DisplayName:   displayName,
		ChangeKind:    change,
		FieldList:     names,
		OldValuesJSON: string(oldJSON),
		NewValuesJSON: string(newJSON),
		At:            a.now(),
	})
}

// Rows returns the buffered audit rows without flushing, mainly for
// tests that want to assert on what would be written.
func (a *Auditor) Rows() []model.ChangeAudit {
	return a.rows
}

// Flush writes all accumulated rows in a single batch and clears the
// buffer. A flush failure is returned but, per spec.md §4.2, callers
// must treat it as advisory: log it and continue, never fail the
// enclosing attempt because of it.
func (a *Auditor) Flush(sink Sink) error {
	if len(a.rows) == 0 {
		return nil
	}
	rows := a.rows
	a.rows = nil
	if err := sink.InsertChangeAudits(rows); err != nil {
		// Restore the buffer so a caller that retries Flush can still
		// recover the rows instead of silently losing them.
		a.rows = rows
		return fmt.Errorf("audit: flush %d rows: %w", len(rows), err)
	}
	return nil
}

// RenderDiff produces a human-readable diff string between two JSON
// object snapshots, the same role the teacher's generateDiffString
// plays for its console/JSON sync output, used here for warning
// messages describing a protected-section change.
func RenderDiff(oldObj, newObj map[string]interface{}) (string, error) {
	differ := gojsondiff.New()
	d := differ.CompareObjects(oldObj, newObj)
	if !d.Modified() {
		return "", nil
	}
	f := formatter.NewAsciiFormatter(oldObj, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	})
	out, err := f.Format(d)
	if err != nil {
		return "", fmt.Errorf("audit: render diff: %w", err)
	}
	return out, nil
}
