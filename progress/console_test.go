package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConsoleSink_DisablesOutputWhenStdoutIsNotATerminal(t *testing.T) {
	// Test runs always have stdout redirected to a pipe/file, never an
	// interactive terminal, so DisableOutput must come back true.
	sink := NewConsoleSink()
	assert.True(t, sink.DisableOutput)
}

func TestConsoleSink_ReportRespectsDisableOutput(t *testing.T) {
	sink := &ConsoleSink{DisableOutput: true}
	// Report must not panic and must not block even with output disabled.
	sink.Report(Snapshot{SchoolID: "sch-1", Operation: "full-sync", Percent: 50})
}
