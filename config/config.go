// Package config loads the engine-wide defaults the orchestrator needs:
// fan-out concurrency, attempt timeouts, and the handful of behavior
// switches spec.md leaves as an implementer's open question. Loading
// follows steveyegge/beads' direct use of spf13/viper (the teacher only
// pulls viper in transitively, via its CLI's command tree).
package config

import (
	"time"

	"dario.cat/mergo"
	"github.com/spf13/viper"
)

// IncrementalFallback selects the behavior used when an incremental
// sync has no cursor yet (spec.md §9, Open Question).
type IncrementalFallback string

const (
	// FallbackTimeFiltered reconciles Student and Teacher only, scoped
	// by modifiedSince, with no orphan pass. This is the default.
	FallbackTimeFiltered IncrementalFallback = "time-filtered"
	// FallbackFullSync falls back to a complete full sync instead.
	FallbackFullSync IncrementalFallback = "full-sync"
)

// Config holds every tunable the orchestrator and event processor read.
type Config struct {
	// DistrictConcurrency bounds how many schools sync in parallel
	// within one district (spec.md §4.8: "up to 5").
	DistrictConcurrency int `mapstructure:"district_concurrency"`

	// AttemptTimeout is the hard per-attempt ceiling (spec.md §5).
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`

	// StaleInProgressThreshold is how old an InProgress attempt must be
	// before RecoverStaleAttempts is willing to mark it Failed.
	StaleInProgressThreshold time.Duration `mapstructure:"stale_in_progress_threshold"`

	// EventBatchSize is how many events are fetched per incremental
	// pass (spec.md §4.7 step 3: "up to 1000").
	EventBatchSize int `mapstructure:"event_batch_size"`

	// IncrementalFallback picks the no-cursor behavior.
	IncrementalFallback IncrementalFallback `mapstructure:"incremental_fallback"`

	// ProgressReportEvery throttles progress snapshots (spec.md §4.7:
	// "at least every 10 records").
	ProgressReportEvery int `mapstructure:"progress_report_every"`
}

// Defaults returns the engine's built-in defaults.
func Defaults() Config {
	return Config{
		DistrictConcurrency:      5,
		AttemptTimeout:           30 * time.Minute,
		StaleInProgressThreshold: 2 * time.Hour,
		EventBatchSize:           1000,
		IncrementalFallback:      FallbackTimeFiltered,
		ProgressReportEvery:      10,
	}
}

// Load reads configuration from the given viper instance, overlaying it
// onto Defaults(). A nil v returns the defaults unchanged.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()
	if v == nil {
		return cfg, nil
	}

	v.SetDefault("district_concurrency", cfg.DistrictConcurrency)
	v.SetDefault("attempt_timeout", cfg.AttemptTimeout)
	v.SetDefault("stale_in_progress_threshold", cfg.StaleInProgressThreshold)
	v.SetDefault("event_batch_size", cfg.EventBatchSize)
	v.SetDefault("incremental_fallback", string(cfg.IncrementalFallback))
	v.SetDefault("progress_report_every", cfg.ProgressReportEvery)

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return Config{}, err
	}
	return loaded, nil
}

// WithSchoolOverride merges a school-specific partial override onto a
// base Config, returning a new Config. Only non-zero fields in
// override take precedence, mirroring how a school's own settings
// should win over the district/global defaults without requiring the
// caller to repeat every field.
func WithSchoolOverride(base Config, override Config) (Config, error) {
	merged := base
	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return Config{}, err
	}
	return merged, nil
}
