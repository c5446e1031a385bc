// Package synctx carries the capabilities every layer of the
// orchestrator needs but that should never be reached for ambiently:
// the clock, the logger, metrics, and the effective configuration for
// one attempt. Passing this explicitly instead of a package-level
// logger or time.Now() is the one deliberate redesign from the
// teacher's own style (which does reach for time.Now() and a package
// logger directly); it exists so tests can run an entire full-sync
// sequence against a FixedClock with deterministic timestamps.
package synctx

import (
	"time"

	"go.uber.org/zap"

	"github.com/brightpath-labs/roster-sync/config"
	"github.com/brightpath-labs/roster-sync/normalize"
	"github.com/brightpath-labs/roster-sync/telemetry"
)

// Context bundles the capabilities threaded through every orchestrator
// and reconciler call. It is a plain value, not a context.Context key,
// so its fields show up in normal Go method signatures rather than
// needing a type-assertion lookup.
type Context struct {
	Clock   normalize.Clock
	Log     *zap.Logger
	Metrics *telemetry.Metrics
	Config  config.Config
}

// New constructs a Context with SystemClock, a no-op logger/metrics,
// and default config, for callers that only want to override one field.
func New() Context {
	return Context{
		Clock:   normalize.SystemClock{},
		Log:     zap.NewNop(),
		Metrics: telemetry.NewMetrics(),
		Config:  config.Defaults(),
	}
}

// Now is shorthand for sc.Clock.Now().
func (sc Context) Now() time.Time { return sc.Clock.Now() }
