package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 5, cfg.DistrictConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.AttemptTimeout)
	assert.Equal(t, 2*time.Hour, cfg.StaleInProgressThreshold)
	assert.Equal(t, 1000, cfg.EventBatchSize)
	assert.Equal(t, FallbackTimeFiltered, cfg.IncrementalFallback)
	assert.Equal(t, 10, cfg.ProgressReportEvery)
}

func TestLoad_NilViperReturnsDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestWithSchoolOverride_NonZeroFieldsWin(t *testing.T) {
	base := Defaults()
	override := Config{DistrictConcurrency: 2, IncrementalFallback: FallbackFullSync}

	merged, err := WithSchoolOverride(base, override)
	require.NoError(t, err)

	assert.Equal(t, 2, merged.DistrictConcurrency)
	assert.Equal(t, FallbackFullSync, merged.IncrementalFallback)
	assert.Equal(t, base.AttemptTimeout, merged.AttemptTimeout, "unset override fields keep the base value")
}

func TestWithSchoolOverride_ZeroOverrideLeavesBaseUntouched(t *testing.T) {
	base := Defaults()
	merged, err := WithSchoolOverride(base, Config{})
	require.NoError(t, err)
	assert.Equal(t, base, merged)
}
