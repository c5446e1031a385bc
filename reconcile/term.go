package reconcile

import (
	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/normalize"
)

// TermDiffer implements FieldDiffer[*model.Term].
type TermDiffer struct{}

func NewTermDiffer() *TermDiffer { return &TermDiffer{} }

func (d *TermDiffer) Kind() model.EntityKind { return model.KindTerm }

func (d *TermDiffer) Zero() *model.Term { return &model.Term{} }

func (d *TermDiffer) Normalize(*model.Term) {}

func (d *TermDiffer) DisplayName(rec *model.Term) string {
	if normalize.IsBlank(rec.Name) {
		return rec.GetUpstreamID()
	}
	return rec.Name
}

func (d *TermDiffer) Diff(current, incoming *model.Term) []audit.Field {
	var fields []audit.Field
	add := func(name string, changed bool, oldV, newV interface{}) {
		if changed {
			fields = append(fields, audit.Field{Name: name, Old: oldV, New: newV})
		}
	}
	add("name", !StringFieldEqual(current.Name, incoming.Name), current.Name, incoming.Name)
	if !StructEqual(current.StartDate, incoming.StartDate) {
		fields = append(fields, audit.Field{Name: "startDate", Old: current.StartDate, New: incoming.StartDate})
	}
	if !StructEqual(current.EndDate, incoming.EndDate) {
		fields = append(fields, audit.Field{Name: "endDate", Old: current.EndDate, New: incoming.EndDate})
	}
	return fields
}

func (d *TermDiffer) Apply(current, incoming *model.Term) {
	current.Name = incoming.Name
	current.DistrictRef = incoming.DistrictRef
	current.StartDate = incoming.StartDate
	current.EndDate = incoming.EndDate
	current.IsManual = incoming.IsManual
}

// IsOrphanable excludes isManual term rows from the full-sync orphan
// scan (spec.md §4.3: manually-created terms are never orphaned since
// no upstream feed ever re-asserts them).
func IsOrphanable(t *model.Term) bool { return !t.IsManual }
