package reconcile

import (
	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/normalize"
)

// TeacherDiffer implements FieldDiffer[*model.Teacher].
type TeacherDiffer struct{}

func NewTeacherDiffer() *TeacherDiffer { return &TeacherDiffer{} }

func (d *TeacherDiffer) Kind() model.EntityKind { return model.KindTeacher }

func (d *TeacherDiffer) Zero() *model.Teacher { return &model.Teacher{} }

func (d *TeacherDiffer) Normalize(incoming *model.Teacher) {
	if normalize.IsBlank(incoming.FullName) {
		incoming.FullName = incoming.FirstName + " " + incoming.LastName
	}
}

func (d *TeacherDiffer) DisplayName(rec *model.Teacher) string {
	if normalize.IsBlank(rec.FullName) {
		return rec.GetUpstreamID()
	}
	return rec.FullName
}

func (d *TeacherDiffer) Diff(current, incoming *model.Teacher) []audit.Field {
	var fields []audit.Field
	add := func(name string, changed bool, oldV, newV interface{}) {
		if changed {
			fields = append(fields, audit.Field{Name: name, Old: oldV, New: newV})
		}
	}
	add("firstName", !StringFieldEqual(current.FirstName, incoming.FirstName), current.FirstName, incoming.FirstName)
	add("lastName", !StringFieldEqual(current.LastName, incoming.LastName), current.LastName, incoming.LastName)
	add("fullName", !StringFieldEqual(current.FullName, incoming.FullName), current.FullName, incoming.FullName)
	add("staffNumber", !StringFieldEqual(current.StaffNumber, incoming.StaffNumber), current.StaffNumber, incoming.StaffNumber)
	add("teacherNumber", !StringFieldEqual(current.TeacherNumber, incoming.TeacherNumber), current.TeacherNumber, incoming.TeacherNumber)
	add("username", !StringFieldEqual(current.Username, incoming.Username), current.Username, incoming.Username)
	return fields
}

func (d *TeacherDiffer) Apply(current, incoming *model.Teacher) {
	current.FirstName = incoming.FirstName
	current.LastName = incoming.LastName
	current.FullName = incoming.FullName
	current.StaffNumber = incoming.StaffNumber
	current.TeacherNumber = incoming.TeacherNumber
	current.Username = incoming.Username
}
