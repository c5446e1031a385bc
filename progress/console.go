package progress

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// mu serializes writes from multiple concurrently-syncing schools, the
// same guard pkg/cprint uses for its colorized create/update/delete
// println helpers in the teacher.
var mu sync.Mutex

var phasePrintln = color.New(color.FgCyan).PrintlnFunc()

func conditionalPrintln(disabled *bool, a ...interface{}) {
	if disabled != nil && *disabled {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	phasePrintln(a...)
}

// ConsoleSink prints a colorized one-line progress report, intended for
// local/manual invocations of the orchestrator rather than the
// production service path (which should wire a metrics-backed Sink
// instead).
type ConsoleSink struct {
	// DisableOutput silences every Report call, mirroring cprint's
	// package-level DisableOutput switch used by the teacher's tests.
	DisableOutput bool
}

// NewConsoleSink returns a ConsoleSink with DisableOutput set when
// stdout isn't an interactive terminal (piped to a file, a cron job's
// log capture, a non-interactive CI invocation), the same check
// readfile.go uses before prompting for a missing input.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{DisableOutput: !term.IsTerminal(int(os.Stdout.Fd()))}
}

// Report prints "[school] operation NN% (kind=n, ...)".
func (c *ConsoleSink) Report(s Snapshot) {
	label := s.SchoolID
	if label == "" {
		label = "district"
	}
	conditionalPrintln(&c.DisableOutput, fmt.Sprintf(
		"[%s] %s %.0f%% %s", label, s.Operation, s.Percent, formatCounts(s.PerKind)))
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	out := "("
	first := true
	for k, v := range counts {
		if !first {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, v)
		first = false
	}
	return out + ")"
}
