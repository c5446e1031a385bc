package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/brightpath-labs/roster-sync/model"
)

// UserKind distinguishes the two reconcilers a "user" event can route
// to, decided by inspecting the payload's roles discriminator.
type UserKind string

const (
	UserStudent UserKind = "student"
	UserTeacher UserKind = "teacher"
	UserUnknown UserKind = ""
)

type upstreamName struct {
	First  string `json:"first"`
	Middle string `json:"middle"`
	Last   string `json:"last"`
}

type teacherCredentials struct {
	DistrictUsername string `json:"districtUsername"`
}

type teacherRole struct {
	Credentials teacherCredentials `json:"credentials"`
}

// rolesObject is the modern roles discriminator shape: an object keyed
// by role name, e.g. {"teacher": {"credentials": {...}}}.
type rolesObject struct {
	Student json.RawMessage `json:"student"`
	Teacher *teacherRole    `json:"teacher"`
}

type userPayload struct {
	ID            string          `json:"id"`
	Name          upstreamName    `json:"name"`
	Grade         string          `json:"grade"`
	SisID         string          `json:"sisId"`
	StudentNumber string          `json:"studentNumber"`
	TeacherNumber string          `json:"teacherNumber"`
	Roles         json.RawMessage `json:"roles"`
}

// ClassifyUser inspects a user event payload's roles discriminator and
// reports whether it names a student or a teacher. Both the modern
// object form and the legacy array-with-role form are accepted
// (spec.md §4.6). gjson probes the raw roles bytes for which shape is
// present before any struct is unmarshaled, since the two shapes
// (object keyed by role vs. array of {role: ...} entries) can't both be
// decoded into one Go type without a custom UnmarshalJSON.
func ClassifyUser(raw json.RawMessage) (UserKind, error) {
	var up userPayload
	if err := json.Unmarshal(raw, &up); err != nil {
		return UserUnknown, fmt.Errorf("events: decode user payload: %w", err)
	}
	if len(up.Roles) == 0 {
		return UserUnknown, nil
	}

	roles := gjson.ParseBytes(up.Roles)
	switch {
	case roles.IsObject():
		switch {
		case roles.Get("teacher").Exists():
			return UserTeacher, nil
		case roles.Get("student").Exists():
			return UserStudent, nil
		}
	case roles.IsArray():
		for _, entry := range roles.Array() {
			switch entry.Get("role").String() {
			case "teacher":
				return UserTeacher, nil
			case "student":
				return UserStudent, nil
			}
		}
	}

	return UserUnknown, nil
}

// DecodeStudent decodes a user event payload classified as UserStudent
// into a model.Student. Lifecycle fields are left zero; the caller's
// reconciler fills them in via UpsertOne.
func DecodeStudent(raw json.RawMessage) (*model.Student, error) {
	var up userPayload
	if err := json.Unmarshal(raw, &up); err != nil {
		return nil, fmt.Errorf("events: decode student payload: %w", err)
	}
	s := &model.Student{
		FirstName:     up.Name.First,
		MiddleName:    up.Name.Middle,
		LastName:      up.Name.Last,
		GradeLabel:    up.Grade,
		StudentNumber: up.StudentNumber,
		StateID:       up.SisID,
	}
	s.SetUpstreamID(up.ID)
	return s, nil
}

// DecodeTeacher decodes a user event payload classified as UserTeacher
// into a model.Teacher.
func DecodeTeacher(raw json.RawMessage) (*model.Teacher, error) {
	var up userPayload
	if err := json.Unmarshal(raw, &up); err != nil {
		return nil, fmt.Errorf("events: decode teacher payload: %w", err)
	}

	username := ""
	var obj rolesObject
	if err := json.Unmarshal(up.Roles, &obj); err == nil && obj.Teacher != nil {
		username = obj.Teacher.Credentials.DistrictUsername
	}

	t := &model.Teacher{
		FirstName:     up.Name.First,
		LastName:      up.Name.Last,
		StaffNumber:   up.SisID,
		TeacherNumber: up.TeacherNumber,
		Username:      username,
	}
	t.SetUpstreamID(up.ID)
	return t, nil
}

type sectionPayload struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Period         string   `json:"period"`
	Subject        string   `json:"subject"`
	TermRef        string   `json:"termRef"`
	Teachers       []string `json:"teachers"`
	PrimaryTeacher string   `json:"primaryTeacher"`
	Students       []string `json:"students"`
}

// DecodedSection is a section record plus the membership lists
// Associations Sync (C4) needs, the payload shape events hands to
// sectionsync.Reconciler.UpsertOne.
type DecodedSection struct {
	Section                  *model.Section
	TeacherUpstreamIDs       []string
	PrimaryTeacherUpstreamID string
	StudentUpstreamIDs       []string
}

// DecodeSection decodes a "section" event payload.
func DecodeSection(raw json.RawMessage) (DecodedSection, error) {
	var sp sectionPayload
	if err := json.Unmarshal(raw, &sp); err != nil {
		return DecodedSection{}, fmt.Errorf("events: decode section payload: %w", err)
	}
	sec := &model.Section{
		Name:    sp.Name,
		Period:  sp.Period,
		Subject: sp.Subject,
		TermRef: sp.TermRef,
	}
	sec.SetUpstreamID(sp.ID)
	return DecodedSection{
		Section:                  sec,
		TeacherUpstreamIDs:       sp.Teachers,
		PrimaryTeacherUpstreamID: sp.PrimaryTeacher,
		StudentUpstreamIDs:       sp.Students,
	}, nil
}

type termPayload struct {
	ID        string `json:"id"`
	District  string `json:"district"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// DecodeTerm decodes a "term" event payload. ISO dates that fail to
// parse are left nil rather than failing the whole event, since a term
// without dates is still a usable record.
func DecodeTerm(raw json.RawMessage) (*model.Term, error) {
	var tp termPayload
	if err := json.Unmarshal(raw, &tp); err != nil {
		return nil, fmt.Errorf("events: decode term payload: %w", err)
	}
	t := &model.Term{
		DistrictRef: tp.District,
		Name:        tp.Name,
		StartDate:   parseISODate(tp.StartDate),
		EndDate:     parseISODate(tp.EndDate),
	}
	t.SetUpstreamID(tp.ID)
	return t, nil
}

func parseISODate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return &ts
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return &ts
	}
	return nil
}
