// Package events implements the chronological, typed event dispatch
// contract (spec.md §4.6, C6): decode an envelope, validate its shape,
// split its type into objectKind/action, route to the matching
// reconciler, and track a cursor that tolerates poison events. The
// tagged-envelope decode shape is grounded on the teacher's
// pkg/file/loader.go pattern of decoding a generic node then branching
// on a discriminator field before a second, typed decode pass.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// ObjectKind is the entity family an event pertains to.
type ObjectKind string

const (
	ObjectUser     ObjectKind = "user"
	ObjectSection  ObjectKind = "section"
	ObjectTerm     ObjectKind = "term"
	ObjectCourse   ObjectKind = "course"
	ObjectDistrict ObjectKind = "district"
)

// Action is what happened to the object.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Envelope is the upstream wire shape: {id, type="<objectKind>.<action>",
// createdAt, payload}.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

// ObjectKind splits the envelope's Type into its objectKind half.
func (e Envelope) ObjectKind() ObjectKind {
	kind, _, _ := strings.Cut(e.Type, ".")
	return ObjectKind(kind)
}

// Action splits the envelope's Type into its action half.
func (e Envelope) Action() Action {
	_, action, _ := strings.Cut(e.Type, ".")
	return Action(action)
}

// envelopeSchema is a minimal structural check: the four top-level
// fields must be present with the right JSON types. Payload internals
// are validated per record kind by the typed decoders in payload.go,
// not here.
const envelopeSchema = `{
  "type": "object",
  "required": ["id", "type", "createdAt", "payload"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "type": {"type": "string", "pattern": "^[a-z]+\\.[a-z]+$"},
    "createdAt": {"type": "string"},
    "payload": {"type": "object"}
  }
}`

var envelopeSchemaLoader = gojsonschema.NewStringLoader(envelopeSchema)

// DecodeEnvelope validates raw against envelopeSchema and unmarshals it
// into an Envelope. Schema validation catches malformed events (missing
// required fields, wrong types) before any typed payload decoding is
// attempted, so a poison event fails fast with a clear message.
func DecodeEnvelope(raw json.RawMessage) (Envelope, error) {
	result, err := gojsonschema.Validate(envelopeSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Envelope{}, fmt.Errorf("events: validate envelope: %w", err)
	}
	if !result.Valid() {
		return Envelope{}, fmt.Errorf("events: envelope failed validation: %s", joinErrors(result.Errors()))
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: decode envelope: %w", err)
	}
	return env, nil
}

func joinErrors(errs []gojsonschema.ResultError) string {
	var b strings.Builder
	for i, e := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.String())
	}
	return b.String()
}
