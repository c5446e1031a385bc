// Package sisclient declares the upstream SIS client surface the core
// consumes (spec.md §6). Pagination, auth and rate-limiting are the
// concrete client's concern and explicitly out of scope here; this
// package holds interfaces and the wire-adjacent record shapes the
// core's decoders expect, nothing else.
package sisclient

import (
	"context"
	"time"

	"github.com/brightpath-labs/roster-sync/events"
)

// StudentRecord is the full-sync listing shape for one student
// (spec.md §6): `id, name:{first, middle?, last}, grade (string),
// sisId?, studentNumber?`.
type StudentRecord struct {
	ID            string
	FirstName     string
	MiddleName    string
	LastName      string
	Grade         string
	SisID         string
	StudentNumber string
}

// TeacherRecord is the full-sync listing shape for one teacher:
// `id, name:{first,last}, sisId?, teacherNumber?,
// roles.teacher.credentials.districtUsername?`.
type TeacherRecord struct {
	ID                string
	FirstName         string
	LastName          string
	SisID             string
	TeacherNumber     string
	DistrictUsername  string
}

// SectionRecord is the full-sync listing shape for one section:
// `id, name?, period?, subject?, termRef?, teachers:[id],
// primaryTeacher?:id, students:[id]`.
type SectionRecord struct {
	ID                       string
	Name                     string
	Period                   string
	Subject                  string
	TermRef                  string
	TeacherUpstreamIDs       []string
	PrimaryTeacherUpstreamID string
	StudentUpstreamIDs       []string
}

// TermRecord is the full-sync listing shape for one term:
// `id, district, name?, startDate (ISO date?), endDate (ISO date?)`.
type TermRecord struct {
	ID        string
	District  string
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
}

// Client is the capability surface the core requires from the upstream
// SIS, independent of its wire format (spec.md §6).
type Client interface {
	ListStudents(ctx context.Context, upstreamSchoolID string, modifiedSince *time.Time) (StudentPage, error)
	ListTeachers(ctx context.Context, upstreamSchoolID string, modifiedSince *time.Time) (TeacherPage, error)
	ListSections(ctx context.Context, upstreamSchoolID string, modifiedSince *time.Time) (SectionPage, error)
	ListTerms(ctx context.Context, upstreamSchoolID string, modifiedSince *time.Time) (TermPage, error)

	// ListEvents returns up to limit events after cursor (oldest
	// first), unfiltered by kind (spec.md §4.7 incremental step 3
	// fetches "no type filter").
	ListEvents(ctx context.Context, upstreamSchoolID string, cursor *string, limit int) ([]events.Envelope, error)

	// LatestEventId returns the upstream's current newest event id for
	// this school, or nil if it has no events yet (used to seed the
	// Baseline attempt at the end of a full sync, spec.md §4.7 step 8).
	LatestEventId(ctx context.Context, upstreamSchoolID string) (*string, error)
}

// StudentPage, TeacherPage, SectionPage, TermPage are streamed listing
// results. The core only ever ranges over Records; Cursor/HasMore exist
// so a real client can paginate internally without the core caring.
type StudentPage struct {
	Records []StudentRecord
	HasMore bool
	Cursor  string
}

type TeacherPage struct {
	Records []TeacherRecord
	HasMore bool
	Cursor  string
}

type SectionPage struct {
	Records []SectionRecord
	HasMore bool
	Cursor  string
}

type TermPage struct {
	Records []TermRecord
	HasMore bool
	Cursor  string
}
