package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUser_ModernObjectShape(t *testing.T) {
	raw := []byte(`{"id":"up-1","roles":{"teacher":{"credentials":{"districtUsername":"jsmith"}}}}`)
	kind, err := ClassifyUser(raw)
	require.NoError(t, err)
	assert.Equal(t, UserTeacher, kind)
}

func TestClassifyUser_ModernStudentShape(t *testing.T) {
	raw := []byte(`{"id":"up-1","roles":{"student":{}}}`)
	kind, err := ClassifyUser(raw)
	require.NoError(t, err)
	assert.Equal(t, UserStudent, kind)
}

func TestClassifyUser_LegacyArrayShape(t *testing.T) {
	raw := []byte(`{"id":"up-1","roles":[{"role":"teacher"}]}`)
	kind, err := ClassifyUser(raw)
	require.NoError(t, err)
	assert.Equal(t, UserTeacher, kind)
}

func TestClassifyUser_NoRoles(t *testing.T) {
	raw := []byte(`{"id":"up-1"}`)
	kind, err := ClassifyUser(raw)
	require.NoError(t, err)
	assert.Equal(t, UserUnknown, kind)
}

func TestClassifyUser_UnclassifiableRoles(t *testing.T) {
	raw := []byte(`{"id":"up-1","roles":[{"role":"parent"}]}`)
	kind, err := ClassifyUser(raw)
	require.NoError(t, err)
	assert.Equal(t, UserUnknown, kind)
}

func TestDecodeStudent(t *testing.T) {
	raw := []byte(`{"id":"up-1","name":{"first":"Ada","middle":"M","last":"Lovelace"},"grade":"7","sisId":"sis-1","studentNumber":"sn-1"}`)
	s, err := DecodeStudent(raw)
	require.NoError(t, err)
	assert.Equal(t, "up-1", s.GetUpstreamID())
	assert.Equal(t, "Ada", s.FirstName)
	assert.Equal(t, "Lovelace", s.LastName)
	assert.Equal(t, "7", s.GradeLabel)
	assert.Equal(t, "sis-1", s.StateID)
	assert.Equal(t, "sn-1", s.StudentNumber)
}

func TestDecodeTeacher_ExtractsUsernameFromModernRoles(t *testing.T) {
	raw := []byte(`{"id":"up-2","name":{"first":"Grace","last":"Hopper"},"sisId":"staff-1","teacherNumber":"tn-1","roles":{"teacher":{"credentials":{"districtUsername":"ghopper"}}}}`)
	tch, err := DecodeTeacher(raw)
	require.NoError(t, err)
	assert.Equal(t, "up-2", tch.GetUpstreamID())
	assert.Equal(t, "ghopper", tch.Username)
	assert.Equal(t, "staff-1", tch.StaffNumber)
	assert.Equal(t, "tn-1", tch.TeacherNumber)
}

func TestDecodeTeacher_MissingRolesLeavesUsernameBlank(t *testing.T) {
	raw := []byte(`{"id":"up-2","name":{"first":"Grace","last":"Hopper"}}`)
	tch, err := DecodeTeacher(raw)
	require.NoError(t, err)
	assert.Empty(t, tch.Username)
}

func TestDecodeSection(t *testing.T) {
	raw := []byte(`{"id":"sec-1","name":"Algebra I","period":"2","subject":"Math","termRef":"term-1","teachers":["t-1","t-2"],"primaryTeacher":"t-1","students":["s-1"]}`)
	decoded, err := DecodeSection(raw)
	require.NoError(t, err)
	assert.Equal(t, "sec-1", decoded.Section.GetUpstreamID())
	assert.Equal(t, "Algebra I", decoded.Section.Name)
	assert.Equal(t, []string{"t-1", "t-2"}, decoded.TeacherUpstreamIDs)
	assert.Equal(t, "t-1", decoded.PrimaryTeacherUpstreamID)
	assert.Equal(t, []string{"s-1"}, decoded.StudentUpstreamIDs)
}

func TestDecodeTerm_ParsesISODates(t *testing.T) {
	raw := []byte(`{"id":"term-1","district":"dist-1","name":"Fall 2026","startDate":"2026-08-15","endDate":"2027-06-01"}`)
	term, err := DecodeTerm(raw)
	require.NoError(t, err)
	assert.Equal(t, "term-1", term.GetUpstreamID())
	require.NotNil(t, term.StartDate)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), *term.StartDate)
	require.NotNil(t, term.EndDate)
}

func TestDecodeTerm_UnparsableDatesLeftNil(t *testing.T) {
	raw := []byte(`{"id":"term-1","district":"dist-1","name":"Fall 2026","startDate":"not-a-date"}`)
	term, err := DecodeTerm(raw)
	require.NoError(t, err)
	assert.Nil(t, term.StartDate)
	assert.Nil(t, term.EndDate)
}

func TestParseISODate_RFC3339Fallback(t *testing.T) {
	raw := []byte(`{"id":"term-1","district":"dist-1","name":"Fall 2026","startDate":"2026-08-15T00:00:00Z"}`)
	term, err := DecodeTerm(raw)
	require.NoError(t, err)
	require.NotNil(t, term.StartDate)
}

func TestDecodeStudent_MalformedJSON(t *testing.T) {
	_, err := DecodeStudent(json.RawMessage(`not json`))
	assert.Error(t, err)
}
