package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGrade(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *int
	}{
		{"kindergarten word", "Kindergarten", intPtr(0)},
		{"kindergarten letter", " k ", intPtr(0)},
		{"pre-k variants", "PreK", intPtr(-1)},
		{"pre-k hyphen", "Pre-K", intPtr(-1)},
		{"tk", "TK", intPtr(-1)},
		{"plain integer", "7", intPtr(7)},
		{"negative integer", "-1", intPtr(-1)},
		{"whitespace padded", "  9  ", intPtr(9)},
		{"blank", "", nil},
		{"whitespace only", "   ", nil},
		{"garbage suffix", "12th", nil},
		{"non numeric", "ungraded", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseGrade(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank("   "))
	assert.True(t, IsBlank("\t\n"))
	assert.False(t, IsBlank("x"))
}

func TestStringsEqual(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		expect bool
	}{
		{"both blank variants", "", "   ", true},
		{"case insensitive", "Jones", "jones", true},
		{"whitespace padded", "  Smith ", "Smith", true},
		{"one blank one not", "", "x", false},
		{"different values", "Smith", "Jones", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, StringsEqual(tt.a, tt.b))
		})
	}
}
