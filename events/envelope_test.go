package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope_Valid(t *testing.T) {
	raw := []byte(`{"id":"evt-1","type":"user.created","createdAt":"2026-01-01T00:00:00Z","payload":{"id":"up-1"}}`)
	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", env.ID)
	assert.Equal(t, ObjectUser, env.ObjectKind())
	assert.Equal(t, ActionCreated, env.Action())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), env.CreatedAt)
}

func TestDecodeEnvelope_MissingRequiredField(t *testing.T) {
	raw := []byte(`{"type":"user.created","createdAt":"2026-01-01T00:00:00Z","payload":{}}`)
	_, err := DecodeEnvelope(raw)
	assert.Error(t, err)
}

func TestDecodeEnvelope_BadTypePattern(t *testing.T) {
	raw := []byte(`{"id":"evt-1","type":"NotLowercase","createdAt":"2026-01-01T00:00:00Z","payload":{}}`)
	_, err := DecodeEnvelope(raw)
	assert.Error(t, err)
}

func TestDecodeEnvelope_PayloadMustBeObject(t *testing.T) {
	raw := []byte(`{"id":"evt-1","type":"user.created","createdAt":"2026-01-01T00:00:00Z","payload":"not-an-object"}`)
	_, err := DecodeEnvelope(raw)
	assert.Error(t, err)
}

func TestEnvelope_ObjectKindAndAction(t *testing.T) {
	env := Envelope{Type: "section.deleted", Payload: json.RawMessage(`{}`)}
	assert.Equal(t, ObjectSection, env.ObjectKind())
	assert.Equal(t, ActionDeleted, env.Action())
}
