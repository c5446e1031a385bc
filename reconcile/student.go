package reconcile

import (
	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/normalize"
)

// StudentDiffer implements FieldDiffer[*model.Student]. Grade is parsed
// from its upstream string form before comparison/apply (spec.md §4.1
// C1 normalization), everything else is a direct trimmed/cased string
// compare via normalize.StringsEqual.
type StudentDiffer struct {
	// ParseGrade overrides normalize.ParseGrade, for tests.
	ParseGrade func(string) *int
}

// NewStudentDiffer constructs a StudentDiffer with normalize.ParseGrade.
func NewStudentDiffer() *StudentDiffer {
	return &StudentDiffer{ParseGrade: normalize.ParseGrade}
}

func (d *StudentDiffer) Kind() model.EntityKind { return model.KindStudent }

func (d *StudentDiffer) Zero() *model.Student { return &model.Student{} }

// Normalize fills GradeLabel's parsed numeric form into Grade, leaving
// GradeLabel itself untouched so the original upstream string survives
// for display and re-diffing.
func (d *StudentDiffer) Normalize(incoming *model.Student) {
	parse := d.ParseGrade
	if parse == nil {
		parse = normalize.ParseGrade
	}
	incoming.Grade = parse(incoming.GradeLabel)
}

func (d *StudentDiffer) DisplayName(rec *model.Student) string {
	name := rec.FirstName + " " + rec.LastName
	if normalize.IsBlank(name) {
		return rec.GetUpstreamID()
	}
	return name
}

func (d *StudentDiffer) Diff(current, incoming *model.Student) []audit.Field {
	var fields []audit.Field
	add := func(name string, changed bool, oldV, newV interface{}) {
		if changed {
			fields = append(fields, audit.Field{Name: name, Old: oldV, New: newV})
		}
	}
	add("firstName", !StringFieldEqual(current.FirstName, incoming.FirstName), current.FirstName, incoming.FirstName)
	add("middleName", !StringFieldEqual(current.MiddleName, incoming.MiddleName), current.MiddleName, incoming.MiddleName)
	add("lastName", !StringFieldEqual(current.LastName, incoming.LastName), current.LastName, incoming.LastName)
	add("gradeLabel", !StringFieldEqual(current.GradeLabel, incoming.GradeLabel), current.GradeLabel, incoming.GradeLabel)
	add("studentNumber", !StringFieldEqual(current.StudentNumber, incoming.StudentNumber), current.StudentNumber, incoming.StudentNumber)
	add("stateId", !StringFieldEqual(current.StateID, incoming.StateID), current.StateID, incoming.StateID)
	if !StructEqual(current.Grade, incoming.Grade) {
		fields = append(fields, audit.Field{Name: "grade", Old: current.Grade, New: incoming.Grade})
	}
	return fields
}

func (d *StudentDiffer) Apply(current, incoming *model.Student) {
	current.FirstName = incoming.FirstName
	current.MiddleName = incoming.MiddleName
	current.LastName = incoming.LastName
	current.Grade = incoming.Grade
	current.GradeLabel = incoming.GradeLabel
	current.StudentNumber = incoming.StudentNumber
	current.StateID = incoming.StateID
}
