package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/protect"
	"github.com/brightpath-labs/roster-sync/store"
)

// SchoolStore is one tenant's per-school store (spec.md §3: "Per-school
// store (one per tenant)"), backed by a connection already scoped to
// that school's database (or schema) by the connection factory.
// Grounded on the teacher's plain-struct-plus-explicit-SQL style (no
// ORM anywhere in pkg/state).
type SchoolStore struct {
	db *sqlx.DB
}

// NewSchoolStore wraps an already-open, already-scoped connection.
func NewSchoolStore(db *sqlx.DB) *SchoolStore {
	return &SchoolStore{db: db}
}

// Close releases the connection, guaranteed on every exit path by the
// connection factory that opened it (spec.md §6).
func (s *SchoolStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("pgstore: close school store: %w", err)
	}
	return nil
}

var _ store.SchoolStore = (*SchoolStore)(nil)

// --- lifecycle row conversion helpers -------------------------------

type lifecycleRow struct {
	ID         string       `db:"id"`
	UpstreamID string       `db:"upstream_id"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
	LastSeenAt time.Time    `db:"last_seen_at"`
	DeletedAt  sql.NullTime `db:"deleted_at"`
}

func nullTimeOf(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtrOf(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// --- students ---------------------------------------------------------

type studentRow struct {
	lifecycleRow
	FirstName     string `db:"first_name"`
	MiddleName    string `db:"middle_name"`
	LastName      string `db:"last_name"`
	Grade         sql.NullInt32
	GradeLabel    string `db:"grade_label"`
	StudentNumber string `db:"student_number"`
	StateID       string `db:"state_id"`
}

func (r studentRow) toModel() *model.Student {
	s := &model.Student{
		FirstName:     r.FirstName,
		MiddleName:    r.MiddleName,
		LastName:      r.LastName,
		GradeLabel:    r.GradeLabel,
		StudentNumber: r.StudentNumber,
		StateID:       r.StateID,
	}
	s.SetID(r.ID)
	s.SetUpstreamID(r.UpstreamID)
	s.CreatedAt, s.UpdatedAt, s.LastSeenAt = r.CreatedAt, r.UpdatedAt, r.LastSeenAt
	s.DeletedAt = timePtrOf(r.DeletedAt)
	if r.Grade.Valid {
		g := int(r.Grade.Int32)
		s.Grade = &g
	}
	return s
}

func (s *SchoolStore) FindStudentByUpstreamID(ctx context.Context, upstreamID string) (*model.Student, bool, error) {
	const q = `
		SELECT id, upstream_id, created_at, updated_at, last_seen_at, deleted_at,
			first_name, middle_name, last_name, grade, grade_label, student_number, state_id
		FROM students WHERE upstream_id = $1`
	var row studentRow
	err := s.db.GetContext(ctx, &row, q, upstreamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: find student %q: %w", upstreamID, err)
	}
	return row.toModel(), true, nil
}

func (s *SchoolStore) InsertStudent(ctx context.Context, rec *model.Student) error {
	const q = `
		INSERT INTO students (id, upstream_id, created_at, updated_at, last_seen_at, deleted_at,
			first_name, middle_name, last_name, grade, grade_label, student_number, state_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.db.ExecContext(ctx, q, rec.GetID(), rec.GetUpstreamID(), rec.CreatedAt, rec.UpdatedAt, rec.LastSeenAt, nullTimeOf(rec.DeletedAt),
		rec.FirstName, rec.MiddleName, rec.LastName, gradeParam(rec.Grade), rec.GradeLabel, rec.StudentNumber, rec.StateID)
	if err != nil {
		return fmt.Errorf("pgstore: insert student %q: %w", rec.GetUpstreamID(), err)
	}
	return nil
}

func (s *SchoolStore) UpdateStudent(ctx context.Context, rec *model.Student) error {
	const q = `
		UPDATE students SET updated_at = $2, last_seen_at = $3, deleted_at = $4,
			first_name = $5, middle_name = $6, last_name = $7, grade = $8, grade_label = $9,
			student_number = $10, state_id = $11
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, rec.GetID(), rec.UpdatedAt, rec.LastSeenAt, nullTimeOf(rec.DeletedAt),
		rec.FirstName, rec.MiddleName, rec.LastName, gradeParam(rec.Grade), rec.GradeLabel, rec.StudentNumber, rec.StateID)
	if err != nil {
		return fmt.Errorf("pgstore: update student %q: %w", rec.GetID(), err)
	}
	return nil
}

func gradeParam(g *int) sql.NullInt32 {
	if g == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*g), Valid: true}
}

func (s *SchoolStore) NewStudentID() string { return uuid.NewString() }

// ScanStudentOrphans must be a single indexed query (spec.md §4.3).
func (s *SchoolStore) ScanStudentOrphans(ctx context.Context, cutoff time.Time) ([]*model.Student, error) {
	const q = `
		SELECT id, upstream_id, created_at, updated_at, last_seen_at, deleted_at,
			first_name, middle_name, last_name, grade, grade_label, student_number, state_id
		FROM students WHERE deleted_at IS NULL AND last_seen_at < $1`
	var rows []studentRow
	if err := s.db.SelectContext(ctx, &rows, q, cutoff); err != nil {
		return nil, fmt.Errorf("pgstore: scan student orphans: %w", err)
	}
	out := make([]*model.Student, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- teachers ---------------------------------------------------------

type teacherRow struct {
	lifecycleRow
	FirstName     string `db:"first_name"`
	LastName      string `db:"last_name"`
	FullName      string `db:"full_name"`
	StaffNumber   string `db:"staff_number"`
	TeacherNumber string `db:"teacher_number"`
	Username      string `db:"username"`
}

func (r teacherRow) toModel() *model.Teacher {
	t := &model.Teacher{
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		FullName:      r.FullName,
		StaffNumber:   r.StaffNumber,
		TeacherNumber: r.TeacherNumber,
		Username:      r.Username,
	}
	t.SetID(r.ID)
	t.SetUpstreamID(r.UpstreamID)
	t.CreatedAt, t.UpdatedAt, t.LastSeenAt = r.CreatedAt, r.UpdatedAt, r.LastSeenAt
	t.DeletedAt = timePtrOf(r.DeletedAt)
	return t
}

func (s *SchoolStore) FindTeacherByUpstreamID(ctx context.Context, upstreamID string) (*model.Teacher, bool, error) {
	const q = `
		SELECT id, upstream_id, created_at, updated_at, last_seen_at, deleted_at,
			first_name, last_name, full_name, staff_number, teacher_number, username
		FROM teachers WHERE upstream_id = $1`
	var row teacherRow
	err := s.db.GetContext(ctx, &row, q, upstreamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: find teacher %q: %w", upstreamID, err)
	}
	return row.toModel(), true, nil
}

func (s *SchoolStore) InsertTeacher(ctx context.Context, rec *model.Teacher) error {
	const q = `
		INSERT INTO teachers (id, upstream_id, created_at, updated_at, last_seen_at, deleted_at,
			first_name, last_name, full_name, staff_number, teacher_number, username)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, q, rec.GetID(), rec.GetUpstreamID(), rec.CreatedAt, rec.UpdatedAt, rec.LastSeenAt, nullTimeOf(rec.DeletedAt),
		rec.FirstName, rec.LastName, rec.FullName, rec.StaffNumber, rec.TeacherNumber, rec.Username)
	if err != nil {
		return fmt.Errorf("pgstore: insert teacher %q: %w", rec.GetUpstreamID(), err)
	}
	return nil
}

func (s *SchoolStore) UpdateTeacher(ctx context.Context, rec *model.Teacher) error {
	const q = `
		UPDATE teachers SET updated_at = $2, last_seen_at = $3, deleted_at = $4,
			first_name = $5, last_name = $6, full_name = $7, staff_number = $8,
			teacher_number = $9, username = $10
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, rec.GetID(), rec.UpdatedAt, rec.LastSeenAt, nullTimeOf(rec.DeletedAt),
		rec.FirstName, rec.LastName, rec.FullName, rec.StaffNumber, rec.TeacherNumber, rec.Username)
	if err != nil {
		return fmt.Errorf("pgstore: update teacher %q: %w", rec.GetID(), err)
	}
	return nil
}

func (s *SchoolStore) NewTeacherID() string { return uuid.NewString() }

func (s *SchoolStore) ScanTeacherOrphans(ctx context.Context, cutoff time.Time) ([]*model.Teacher, error) {
	const q = `
		SELECT id, upstream_id, created_at, updated_at, last_seen_at, deleted_at,
			first_name, last_name, full_name, staff_number, teacher_number, username
		FROM teachers WHERE deleted_at IS NULL AND last_seen_at < $1`
	var rows []teacherRow
	if err := s.db.SelectContext(ctx, &rows, q, cutoff); err != nil {
		return nil, fmt.Errorf("pgstore: scan teacher orphans: %w", err)
	}
	out := make([]*model.Teacher, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- sections -----------------------------------------------------------

type sectionRow struct {
	lifecycleRow
	Name    string `db:"name"`
	Period  string `db:"period"`
	Subject string `db:"subject"`
	TermRef string `db:"term_ref"`
}

func (r sectionRow) toModel() *model.Section {
	sec := &model.Section{Name: r.Name, Period: r.Period, Subject: r.Subject, TermRef: r.TermRef}
	sec.SetID(r.ID)
	sec.SetUpstreamID(r.UpstreamID)
	sec.CreatedAt, sec.UpdatedAt, sec.LastSeenAt = r.CreatedAt, r.UpdatedAt, r.LastSeenAt
	sec.DeletedAt = timePtrOf(r.DeletedAt)
	return sec
}

func (s *SchoolStore) FindSectionByUpstreamID(ctx context.Context, upstreamID string) (*model.Section, bool, error) {
	const q = `
		SELECT id, upstream_id, created_at, updated_at, last_seen_at, deleted_at, name, period, subject, term_ref
		FROM sections WHERE upstream_id = $1`
	var row sectionRow
	err := s.db.GetContext(ctx, &row, q, upstreamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: find section %q: %w", upstreamID, err)
	}
	return row.toModel(), true, nil
}

func (s *SchoolStore) InsertSection(ctx context.Context, rec *model.Section) error {
	const q = `
		INSERT INTO sections (id, upstream_id, created_at, updated_at, last_seen_at, deleted_at, name, period, subject, term_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, q, rec.GetID(), rec.GetUpstreamID(), rec.CreatedAt, rec.UpdatedAt, rec.LastSeenAt, nullTimeOf(rec.DeletedAt),
		rec.Name, rec.Period, rec.Subject, rec.TermRef)
	if err != nil {
		return fmt.Errorf("pgstore: insert section %q: %w", rec.GetUpstreamID(), err)
	}
	return nil
}

func (s *SchoolStore) UpdateSection(ctx context.Context, rec *model.Section) error {
	const q = `
		UPDATE sections SET updated_at = $2, last_seen_at = $3, deleted_at = $4, name = $5, period = $6, subject = $7, term_ref = $8
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, rec.GetID(), rec.UpdatedAt, rec.LastSeenAt, nullTimeOf(rec.DeletedAt), rec.Name, rec.Period, rec.Subject, rec.TermRef)
	if err != nil {
		return fmt.Errorf("pgstore: update section %q: %w", rec.GetID(), err)
	}
	return nil
}

func (s *SchoolStore) NewSectionID() string { return uuid.NewString() }

// ScanSectionMissing backs sectionsync's presence/absence pass, not
// C3's generic DetectOrphans (spec.md §4.9), but shares the same index.
func (s *SchoolStore) ScanSectionMissing(ctx context.Context, cutoff time.Time) ([]*model.Section, error) {
	const q = `
		SELECT id, upstream_id, created_at, updated_at, last_seen_at, deleted_at, name, period, subject, term_ref
		FROM sections WHERE deleted_at IS NULL AND last_seen_at < $1`
	var rows []sectionRow
	if err := s.db.SelectContext(ctx, &rows, q, cutoff); err != nil {
		return nil, fmt.Errorf("pgstore: scan missing sections: %w", err)
	}
	out := make([]*model.Section, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- terms ----------------------------------------------------------------

type termRow struct {
	lifecycleRow
	DistrictRef string       `db:"district_ref"`
	Name        string       `db:"name"`
	StartDate   sql.NullTime `db:"start_date"`
	EndDate     sql.NullTime `db:"end_date"`
	IsManual    bool         `db:"is_manual"`
}

func (r termRow) toModel() *model.Term {
	t := &model.Term{DistrictRef: r.DistrictRef, Name: r.Name, IsManual: r.IsManual}
	t.SetID(r.ID)
	t.SetUpstreamID(r.UpstreamID)
	t.CreatedAt, t.UpdatedAt, t.LastSeenAt = r.CreatedAt, r.UpdatedAt, r.LastSeenAt
	t.DeletedAt = timePtrOf(r.DeletedAt)
	t.StartDate = timePtrOf(r.StartDate)
	t.EndDate = timePtrOf(r.EndDate)
	return t
}

func (s *SchoolStore) FindTermByUpstreamID(ctx context.Context, upstreamID string) (*model.Term, bool, error) {
	const q = `
		SELECT id, upstream_id, created_at, updated_at, last_seen_at, deleted_at, district_ref, name, start_date, end_date, is_manual
		FROM terms WHERE upstream_id = $1`
	var row termRow
	err := s.db.GetContext(ctx, &row, q, upstreamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: find term %q: %w", upstreamID, err)
	}
	return row.toModel(), true, nil
}

func (s *SchoolStore) InsertTerm(ctx context.Context, rec *model.Term) error {
	const q = `
		INSERT INTO terms (id, upstream_id, created_at, updated_at, last_seen_at, deleted_at, district_ref, name, start_date, end_date, is_manual)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.ExecContext(ctx, q, rec.GetID(), rec.GetUpstreamID(), rec.CreatedAt, rec.UpdatedAt, rec.LastSeenAt, nullTimeOf(rec.DeletedAt),
		rec.DistrictRef, rec.Name, nullTimeOf(rec.StartDate), nullTimeOf(rec.EndDate), rec.IsManual)
	if err != nil {
		return fmt.Errorf("pgstore: insert term %q: %w", rec.GetUpstreamID(), err)
	}
	return nil
}

func (s *SchoolStore) UpdateTerm(ctx context.Context, rec *model.Term) error {
	const q = `
		UPDATE terms SET updated_at = $2, last_seen_at = $3, deleted_at = $4, district_ref = $5, name = $6,
			start_date = $7, end_date = $8, is_manual = $9
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, rec.GetID(), rec.UpdatedAt, rec.LastSeenAt, nullTimeOf(rec.DeletedAt),
		rec.DistrictRef, rec.Name, nullTimeOf(rec.StartDate), nullTimeOf(rec.EndDate), rec.IsManual)
	if err != nil {
		return fmt.Errorf("pgstore: update term %q: %w", rec.GetID(), err)
	}
	return nil
}

func (s *SchoolStore) NewTermID() string { return uuid.NewString() }

// ScanTermOrphans returns manual terms too: the scan stays unfiltered so
// it remains a single plain index lookup (spec.md §4.3), and
// DetectOrphans drops manual terms through the isOrphanableTerm filter
// that orchestrator/full_sync.go passes in.
func (s *SchoolStore) ScanTermOrphans(ctx context.Context, cutoff time.Time) ([]*model.Term, error) {
	const q = `
		SELECT id, upstream_id, created_at, updated_at, last_seen_at, deleted_at, district_ref, name, start_date, end_date, is_manual
		FROM terms WHERE deleted_at IS NULL AND last_seen_at < $1`
	var rows []termRow
	if err := s.db.SelectContext(ctx, &rows, q, cutoff); err != nil {
		return nil, fmt.Errorf("pgstore: scan term orphans: %w", err)
	}
	out := make([]*model.Term, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- membership / associations ----------------------------------------

func (s *SchoolStore) ResolveTeacherID(ctx context.Context, upstreamID string) (string, bool, error) {
	return s.resolveID(ctx, "teachers", upstreamID)
}

func (s *SchoolStore) ResolveStudentID(ctx context.Context, upstreamID string) (string, bool, error) {
	return s.resolveID(ctx, "students", upstreamID)
}

func (s *SchoolStore) ResolveSectionID(ctx context.Context, upstreamID string) (string, bool, error) {
	return s.resolveID(ctx, "sections", upstreamID)
}

func (s *SchoolStore) resolveID(ctx context.Context, table, upstreamID string) (string, bool, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE upstream_id = $1`, table)
	var id string
	err := s.db.GetContext(ctx, &id, q, upstreamID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pgstore: resolve %s id for %q: %w", table, upstreamID, err)
	}
	return id, true, nil
}

// ReplaceSectionTeachers deletes every TeacherSection row for sectionID
// and inserts the incoming set in one transaction (spec.md §4.4:
// "delete ALL existing TeacherSection rows for the section" on every
// Associations Sync pass, teacher rows being cheap to rewrite).
func (s *SchoolStore) ReplaceSectionTeachers(ctx context.Context, sectionID string, rows []model.TeacherSection) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: replace section teachers begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM teacher_sections WHERE section_id = $1`, sectionID); err != nil {
		return fmt.Errorf("pgstore: replace section teachers delete: %w", err)
	}
	const insertQ = `INSERT INTO teacher_sections (teacher_id, section_id, is_primary) VALUES ($1, $2, $3)`
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, insertQ, row.TeacherID, sectionID, row.IsPrimary); err != nil {
			return fmt.Errorf("pgstore: replace section teachers insert %q: %w", row.TeacherID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: replace section teachers commit: %w", err)
	}
	return nil
}

func (s *SchoolStore) ListSectionStudents(ctx context.Context, sectionID string) ([]store.AssocStudentEnrollment, error) {
	const q = `
		SELECT ss.student_id AS student_id, st.upstream_id AS upstream_student_id, ss.off_campus AS off_campus
		FROM student_sections ss
		JOIN students st ON st.id = ss.student_id
		WHERE ss.section_id = $1`
	type row struct {
		StudentID         string `db:"student_id"`
		UpstreamStudentID string `db:"upstream_student_id"`
		OffCampus         bool   `db:"off_campus"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, q, sectionID); err != nil {
		return nil, fmt.Errorf("pgstore: list section %q students: %w", sectionID, err)
	}
	out := make([]store.AssocStudentEnrollment, len(rows))
	for i, r := range rows {
		out[i] = store.AssocStudentEnrollment{StudentID: r.StudentID, UpstreamStudentID: r.UpstreamStudentID, OffCampus: r.OffCampus}
	}
	return out, nil
}

func (s *SchoolStore) InsertStudentEnrollment(ctx context.Context, sectionID string, row model.StudentSection) error {
	const q = `INSERT INTO student_sections (student_id, section_id, off_campus) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, q, row.StudentID, sectionID, row.OffCampus); err != nil {
		return fmt.Errorf("pgstore: insert student enrollment %q/%q: %w", row.StudentID, sectionID, err)
	}
	return nil
}

func (s *SchoolStore) DeleteStudentEnrollment(ctx context.Context, sectionID, studentID string) error {
	const q = `DELETE FROM student_sections WHERE section_id = $1 AND student_id = $2`
	if _, err := s.db.ExecContext(ctx, q, sectionID, studentID); err != nil {
		return fmt.Errorf("pgstore: delete student enrollment %q/%q: %w", studentID, sectionID, err)
	}
	return nil
}

// --- protected sections -------------------------------------------------

func (s *SchoolStore) ListProtectedSections(ctx context.Context) ([]model.ProtectedSectionRef, error) {
	const q = `SELECT section_id, upstream_id, display_name FROM protected_sections`
	type row struct {
		SectionID   string `db:"section_id"`
		UpstreamID  string `db:"upstream_id"`
		DisplayName string `db:"display_name"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("pgstore: list protected sections: %w", err)
	}
	out := make([]model.ProtectedSectionRef, len(rows))
	for i, r := range rows {
		out[i] = model.ProtectedSectionRef{SectionID: r.SectionID, UpstreamID: r.UpstreamID, DisplayName: r.DisplayName}
	}
	return out, nil
}

// --- change audits (audit.Sink) -----------------------------------------

// InsertChangeAudits flushes one attempt's accumulated ChangeAudit rows
// in a single transaction (spec.md §4.2, C2: "flushed once per attempt,
// not per record").
func (s *SchoolStore) InsertChangeAudits(rows []model.ChangeAudit) error {
	if len(rows) == 0 {
		return nil
	}
	ctx := context.Background()
	const q = `
		INSERT INTO change_audits (audit_id, attempt_id, entity_kind, upstream_id, display_name, change_kind, field_list, old_values_json, new_values_json, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	// The whole flush is one attempt-scoped transaction, so a transient
	// connection blip retries the batch from scratch rather than
	// losing the audit trail for this attempt.
	err := withCommitRetry(func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("pgstore: insert change audits begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, a := range rows {
			fieldList, err := marshalFieldList(a.FieldList)
			if err != nil {
				return backoff.Permanent(err)
			}
			id := a.AuditID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx, q, id, a.AttemptID, string(a.EntityKind), a.UpstreamID, a.DisplayName, string(a.ChangeKind), fieldList, a.OldValuesJSON, a.NewValuesJSON, a.At); err != nil {
				return fmt.Errorf("pgstore: insert change audit %q: %w", id, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("pgstore: insert change audits commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// --- warnings (protect.WarningSink) -------------------------------------

// InsertWarning persists one Warning row. EntityID/UpstreamID reference
// rows local to this school, which is why this method lives on
// SchoolStore rather than the shared OrchestrationStore.
func (s *SchoolStore) InsertWarning(w model.Warning) error {
	refsJSON, err := protect.MarshalProtectedRefs(w.AffectedProtectedRefs)
	if err != nil {
		return err
	}
	id := w.WarningID
	if id == "" {
		id = uuid.NewString()
	}
	const q = `
		INSERT INTO warnings (warning_id, attempt_id, kind, entity_kind, entity_id, upstream_id, display_name, message, affected_protected_refs, affected_protected_count, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if err := withCommitRetry(func() error {
		_, err := s.db.ExecContext(context.Background(), q, id, w.AttemptID, string(w.Kind), string(w.EntityKind), w.EntityID, w.UpstreamID, w.DisplayName, w.Message, refsJSON, w.AffectedProtectedCount, w.Acknowledged, w.CreatedAt)
		return err
	}); err != nil {
		return fmt.Errorf("pgstore: insert warning %q: %w", id, err)
	}
	return nil
}
