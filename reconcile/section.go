package reconcile

import (
	"github.com/brightpath-labs/roster-sync/audit"
	"github.com/brightpath-labs/roster-sync/model"
	"github.com/brightpath-labs/roster-sync/normalize"
)

// SectionDiffer implements FieldDiffer[*model.Section].
type SectionDiffer struct{}

func NewSectionDiffer() *SectionDiffer { return &SectionDiffer{} }

func (d *SectionDiffer) Kind() model.EntityKind { return model.KindSection }

func (d *SectionDiffer) Zero() *model.Section { return &model.Section{} }

func (d *SectionDiffer) Normalize(*model.Section) {}

func (d *SectionDiffer) DisplayName(rec *model.Section) string {
	if normalize.IsBlank(rec.Name) {
		return rec.GetUpstreamID()
	}
	return rec.Name
}

func (d *SectionDiffer) Diff(current, incoming *model.Section) []audit.Field {
	var fields []audit.Field
	add := func(name string, changed bool, oldV, newV interface{}) {
		if changed {
			fields = append(fields, audit.Field{Name: name, Old: oldV, New: newV})
		}
	}
	add("name", !StringFieldEqual(current.Name, incoming.Name), current.Name, incoming.Name)
	add("period", !StringFieldEqual(current.Period, incoming.Period), current.Period, incoming.Period)
	add("subject", !StringFieldEqual(current.Subject, incoming.Subject), current.Subject, incoming.Subject)
	add("termRef", !StringFieldEqual(current.TermRef, incoming.TermRef), current.TermRef, incoming.TermRef)
	return fields
}

func (d *SectionDiffer) Apply(current, incoming *model.Section) {
	current.Name = incoming.Name
	current.Period = incoming.Period
	current.Subject = incoming.Subject
	current.TermRef = incoming.TermRef
}
