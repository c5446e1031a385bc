package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/store"
)

// OrchestrationStore is the shared, district/school-catalog store
// (spec.md §3: "Orchestration store (one, shared across all tenants)").
type OrchestrationStore struct {
	db *sqlx.DB
}

var _ store.OrchestrationStore = (*OrchestrationStore)(nil)

// NewOrchestrationStore wraps an already-open connection. Schema
// management (migrations) is out of scope, mirroring the teacher's
// stance that state.KongState never creates its own backing store.
func NewOrchestrationStore(db *sqlx.DB) *OrchestrationStore {
	return &OrchestrationStore{db: db}
}

type districtRow struct {
	DistrictID         string `db:"district_id"`
	UpstreamDistrictID string `db:"upstream_district_id"`
	Name               string `db:"name"`
	Timezone           string `db:"timezone"`
}

func (r districtRow) toModel() model.District {
	return model.District{
		DistrictID:         r.DistrictID,
		UpstreamDistrictID: r.UpstreamDistrictID,
		Name:               r.Name,
		Timezone:           r.Timezone,
	}
}

type schoolRow struct {
	SchoolID         string `db:"school_id"`
	DistrictID       string `db:"district_id"`
	UpstreamSchoolID string `db:"upstream_school_id"`
	Name             string `db:"name"`
	DBLocator        string `db:"db_locator"`
	Active           bool   `db:"active"`
	RequiresFullSync bool   `db:"requires_full_sync"`
}

func (r schoolRow) toModel() model.School {
	return model.School{
		SchoolID:         r.SchoolID,
		DistrictID:       r.DistrictID,
		UpstreamSchoolID: r.UpstreamSchoolID,
		Name:             r.Name,
		DBLocator:        r.DBLocator,
		Active:           r.Active,
		RequiresFullSync: r.RequiresFullSync,
	}
}

// ListActiveDistricts returns every district with at least one active
// school (a district with none is skipped by the fan-out orchestrator
// anyway, so it's excluded here to keep SyncAllDistricts's district
// loop free of no-op iterations).
func (s *OrchestrationStore) ListActiveDistricts(ctx context.Context) ([]model.District, error) {
	const q = `
		SELECT DISTINCT d.district_id, d.upstream_district_id, d.name, d.timezone
		FROM districts d
		JOIN schools sc ON sc.district_id = d.district_id
		WHERE sc.active
		ORDER BY d.district_id`
	var rows []districtRow
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("pgstore: list active districts: %w", err)
	}
	out := make([]model.District, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// ListActiveSchools returns every active school in districtID.
func (s *OrchestrationStore) ListActiveSchools(ctx context.Context, districtID string) ([]model.School, error) {
	const q = `
		SELECT school_id, district_id, upstream_school_id, name, db_locator, active, requires_full_sync
		FROM schools
		WHERE district_id = $1 AND active
		ORDER BY school_id`
	var rows []schoolRow
	if err := s.db.SelectContext(ctx, &rows, q, districtID); err != nil {
		return nil, fmt.Errorf("pgstore: list active schools for district %q: %w", districtID, err)
	}
	out := make([]model.School, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetSchool looks up one school by id, active or not (SyncSchool can
// be invoked directly against a specific school regardless of the
// fan-out orchestrator's active-only filter).
func (s *OrchestrationStore) GetSchool(ctx context.Context, schoolID string) (model.School, error) {
	const q = `
		SELECT school_id, district_id, upstream_school_id, name, db_locator, active, requires_full_sync
		FROM schools
		WHERE school_id = $1`
	var row schoolRow
	if err := s.db.GetContext(ctx, &row, q, schoolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.School{}, fmt.Errorf("pgstore: school %q not found", schoolID)
		}
		return model.School{}, fmt.Errorf("pgstore: get school %q: %w", schoolID, err)
	}
	return row.toModel(), nil
}

// ClearRequiresFullSync flips requires_full_sync off once a full sync
// completes with no phase error (spec.md §4.7, step 10).
func (s *OrchestrationStore) ClearRequiresFullSync(ctx context.Context, schoolID string) error {
	const q = `UPDATE schools SET requires_full_sync = false WHERE school_id = $1`
	if _, err := s.db.ExecContext(ctx, q, schoolID); err != nil {
		return fmt.Errorf("pgstore: clear requires_full_sync for school %q: %w", schoolID, err)
	}
	return nil
}

type attemptRow struct {
	AttemptID          string         `db:"attempt_id"`
	SchoolID           string         `db:"school_id"`
	EntityKind         string         `db:"entity_kind"`
	Mode               string         `db:"mode"`
	StartedAt          time.Time      `db:"started_at"`
	EndedAt            sql.NullTime   `db:"ended_at"`
	Status             string         `db:"status"`
	RecordsProcessed   int            `db:"records_processed"`
	RecordsUpdated     int            `db:"records_updated"`
	RecordsFailed      int            `db:"records_failed"`
	ErrorMessage       sql.NullString `db:"error_message"`
	Cursor             sql.NullString `db:"cursor"`
	CursorTimestamp    sql.NullTime   `db:"cursor_timestamp"`
	LastKnownSyncPoint sql.NullTime   `db:"last_known_sync_point"`
	SummaryBlob        []byte         `db:"summary_blob"`
}

func (r attemptRow) toModel() (model.SyncAttempt, error) {
	blob, err := unmarshalSummary(r.SummaryBlob)
	if err != nil {
		return model.SyncAttempt{}, err
	}
	a := model.SyncAttempt{
		AttemptID:        r.AttemptID,
		SchoolID:         r.SchoolID,
		EntityKind:       model.EntityKind(r.EntityKind),
		Mode:             model.SyncMode(r.Mode),
		StartedAt:        r.StartedAt,
		Status:           model.AttemptStatus(r.Status),
		RecordsProcessed: r.RecordsProcessed,
		RecordsUpdated:   r.RecordsUpdated,
		RecordsFailed:    r.RecordsFailed,
		SummaryBlob:      blob,
	}
	if r.EndedAt.Valid {
		a.EndedAt = &r.EndedAt.Time
	}
	if r.ErrorMessage.Valid {
		a.ErrorMessage = r.ErrorMessage.String
	}
	if r.Cursor.Valid {
		a.Cursor = &r.Cursor.String
	}
	if r.CursorTimestamp.Valid {
		a.CursorTimestamp = &r.CursorTimestamp.Time
	}
	if r.LastKnownSyncPoint.Valid {
		a.LastKnownSyncPoint = &r.LastKnownSyncPoint.Time
	}
	return a, nil
}

func fromAttempt(a model.SyncAttempt) (attemptRow, error) {
	blob, err := marshalSummary(a.SummaryBlob)
	if err != nil {
		return attemptRow{}, err
	}
	row := attemptRow{
		AttemptID:        a.AttemptID,
		SchoolID:         a.SchoolID,
		EntityKind:       string(a.EntityKind),
		Mode:             string(a.Mode),
		StartedAt:        a.StartedAt,
		Status:           string(a.Status),
		RecordsProcessed: a.RecordsProcessed,
		RecordsUpdated:   a.RecordsUpdated,
		RecordsFailed:    a.RecordsFailed,
		ErrorMessage:     sql.NullString{String: a.ErrorMessage, Valid: a.ErrorMessage != ""},
		SummaryBlob:      []byte(blob),
	}
	if a.EndedAt != nil {
		row.EndedAt = sql.NullTime{Time: *a.EndedAt, Valid: true}
	}
	if a.Cursor != nil {
		row.Cursor = sql.NullString{String: *a.Cursor, Valid: true}
	}
	if a.CursorTimestamp != nil {
		row.CursorTimestamp = sql.NullTime{Time: *a.CursorTimestamp, Valid: true}
	}
	if a.LastKnownSyncPoint != nil {
		row.LastKnownSyncPoint = sql.NullTime{Time: *a.LastKnownSyncPoint, Valid: true}
	}
	return row, nil
}

// InsertAttempt creates an InProgress attempt row before work begins
// (spec.md §4.9) and returns its freshly-assigned attempt id.
func (s *OrchestrationStore) InsertAttempt(ctx context.Context, attempt model.SyncAttempt) (string, error) {
	attempt.AttemptID = uuid.NewString()
	row, err := fromAttempt(attempt)
	if err != nil {
		return "", err
	}
	const q = `
		INSERT INTO sync_attempts (
			attempt_id, school_id, entity_kind, mode, started_at, ended_at, status,
			records_processed, records_updated, records_failed, error_message,
			cursor, cursor_timestamp, last_known_sync_point, summary_blob
		) VALUES (
			:attempt_id, :school_id, :entity_kind, :mode, :started_at, :ended_at, :status,
			:records_processed, :records_updated, :records_failed, :error_message,
			:cursor, :cursor_timestamp, :last_known_sync_point, :summary_blob
		)`
	// Attempt rows gate C2/C5's audit and warning writes on a valid
	// attempt id, so a transient connection blip here is worth a retry
	// rather than failing the whole sync (pkg/diff/diff.go's
	// handleEvent makes the same call for a single Kong API request).
	if err := withCommitRetry(func() error {
		_, err := s.db.NamedExecContext(ctx, q, row)
		return err
	}); err != nil {
		return "", fmt.Errorf("pgstore: insert attempt for school %q: %w", attempt.SchoolID, err)
	}
	return row.AttemptID, nil
}

// UpdateAttempt persists the terminal state of an attempt row
// (spec.md §4.9). Terminal attempts are immutable by convention of the
// caller (history.go only ever updates once, at finalizeAttempt).
func (s *OrchestrationStore) UpdateAttempt(ctx context.Context, attempt model.SyncAttempt) error {
	row, err := fromAttempt(attempt)
	if err != nil {
		return err
	}
	const q = `
		UPDATE sync_attempts SET
			ended_at = :ended_at,
			status = :status,
			records_processed = :records_processed,
			records_updated = :records_updated,
			records_failed = :records_failed,
			error_message = :error_message,
			cursor = :cursor,
			cursor_timestamp = :cursor_timestamp,
			last_known_sync_point = :last_known_sync_point,
			summary_blob = :summary_blob
		WHERE attempt_id = :attempt_id`
	var res sql.Result
	if err := withCommitRetry(func() error {
		var execErr error
		res, execErr = s.db.NamedExecContext(ctx, q, row)
		return execErr
	}); err != nil {
		return fmt.Errorf("pgstore: update attempt %q: %w", attempt.AttemptID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pgstore: update attempt %q: no such attempt", attempt.AttemptID)
	}
	return nil
}

// LatestSuccessfulAttempt returns the most recent Success attempt for
// (schoolID, kind).
func (s *OrchestrationStore) LatestSuccessfulAttempt(ctx context.Context, schoolID string, kind model.EntityKind) (model.SyncAttempt, bool, error) {
	const q = `
		SELECT attempt_id, school_id, entity_kind, mode, started_at, ended_at, status,
			records_processed, records_updated, records_failed, error_message,
			cursor, cursor_timestamp, last_known_sync_point, summary_blob
		FROM sync_attempts
		WHERE school_id = $1 AND entity_kind = $2 AND status = $3
		ORDER BY started_at DESC
		LIMIT 1`
	var row attemptRow
	err := s.db.GetContext(ctx, &row, q, schoolID, string(kind), string(model.StatusSuccess))
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncAttempt{}, false, nil
	}
	if err != nil {
		return model.SyncAttempt{}, false, fmt.Errorf("pgstore: latest successful %s attempt for school %q: %w", kind, schoolID, err)
	}
	a, err := row.toModel()
	return a, true, err
}

// HasAnySuccessfulAttempt reports whether this school has ever
// completed any attempt successfully (spec.md §4.7: forces a full sync
// for brand-new schools).
func (s *OrchestrationStore) HasAnySuccessfulAttempt(ctx context.Context, schoolID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM sync_attempts WHERE school_id = $1 AND status = $2)`
	var found bool
	if err := s.db.GetContext(ctx, &found, q, schoolID, string(model.StatusSuccess)); err != nil {
		return false, fmt.Errorf("pgstore: has any successful attempt for school %q: %w", schoolID, err)
	}
	return found, nil
}

// LatestSuccessfulCursorAttempt returns the most recent successful
// Baseline or Event attempt, whichever is newer — the source of the
// incremental replay cursor (spec.md §4.7 mode selection).
func (s *OrchestrationStore) LatestSuccessfulCursorAttempt(ctx context.Context, schoolID string) (model.SyncAttempt, bool, error) {
	const q = `
		SELECT attempt_id, school_id, entity_kind, mode, started_at, ended_at, status,
			records_processed, records_updated, records_failed, error_message,
			cursor, cursor_timestamp, last_known_sync_point, summary_blob
		FROM sync_attempts
		WHERE school_id = $1 AND entity_kind IN ($2, $3) AND status = $4
		ORDER BY started_at DESC
		LIMIT 1`
	var row attemptRow
	err := s.db.GetContext(ctx, &row, q, schoolID, string(model.KindBaseline), string(model.KindEvent), string(model.StatusSuccess))
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncAttempt{}, false, nil
	}
	if err != nil {
		return model.SyncAttempt{}, false, fmt.Errorf("pgstore: latest successful cursor attempt for school %q: %w", schoolID, err)
	}
	a, err := row.toModel()
	return a, true, err
}

// RecoverStaleAttempts marks InProgress attempts older than olderThan
// as Failed (spec.md §4.9, optional recovery pass, run by an
// out-of-scope startup hook).
func (s *OrchestrationStore) RecoverStaleAttempts(ctx context.Context, olderThan time.Time) (int, error) {
	const q = `
		UPDATE sync_attempts
		SET status = $1, ended_at = $2, error_message = 'recovered: stale InProgress attempt'
		WHERE status = $3 AND started_at < $2`
	res, err := s.db.ExecContext(ctx, q, string(model.StatusFailed), olderThan, string(model.StatusInProgress))
	if err != nil {
		return 0, fmt.Errorf("pgstore: recover stale attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pgstore: recover stale attempts rows affected: %w", err)
	}
	return int(n), nil
}
