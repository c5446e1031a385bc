package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightpath-labs/roster-sync/config"
	"github.com/brightpath-labs/roster-sync/progress"
	"github.com/brightpath-labs/roster-sync/synctx"
)

type recordingSink struct {
	snaps []progress.Snapshot
}

func (r *recordingSink) Report(s progress.Snapshot) {
	r.snaps = append(r.snaps, s)
}

func TestDistrictConcurrency_UsesConfiguredValue(t *testing.T) {
	o := &Orchestrator{Ctx: synctx.Context{Config: config.Config{DistrictConcurrency: 3}}}
	assert.Equal(t, 3, o.districtConcurrency())
}

func TestDistrictConcurrency_FallsBackToFiveWhenUnset(t *testing.T) {
	o := &Orchestrator{Ctx: synctx.Context{Config: config.Config{}}}
	assert.Equal(t, 5, o.districtConcurrency())
}

func TestReportDistrictProgress_SendsRescaledPercent(t *testing.T) {
	sink := &recordingSink{}
	o := &Orchestrator{Progress: sink}
	o.reportDistrictProgress("dist-1", 2, 4)

	assert.Len(t, sink.snaps, 1)
	assert.Equal(t, "district:dist-1", sink.snaps[0].Operation)
	assert.Equal(t, 50.0, sink.snaps[0].Percent)
}

func TestReportDistrictProgress_SkipsWhenTotalIsZero(t *testing.T) {
	sink := &recordingSink{}
	o := &Orchestrator{Progress: sink}
	o.reportDistrictProgress("dist-1", 0, 0)

	assert.Empty(t, sink.snaps)
}
