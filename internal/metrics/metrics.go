// Package metrics samples host telemetry for threshold triggers.
package metrics

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fleetops/fleet-tasks/internal/db"
	"github.com/fleetops/fleet-tasks/internal/trigger"
)

// Provider produces the metric snapshot the scheduler hands to the trigger
// evaluator on each poll cycle.
type Provider interface {
	Snapshot() (trigger.MetricSnapshot, error)
}

// HostProvider samples the local host via gopsutil.
type HostProvider struct{}

// Snapshot returns cpu/memory utilization plus a derived health score.
// The health score starts at 100 and loses points as cpu/memory pressure
// grows, so "health_score lt 50" style triggers fire under sustained load.
func (HostProvider) Snapshot() (trigger.MetricSnapshot, error) {
	snap := trigger.MetricSnapshot{}

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return nil, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}
	snap[db.MetricCPUPercent] = cpuPct

	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	snap[db.MetricMemoryPercent] = vm.UsedPercent

	score := 100 - (cpuPct+vm.UsedPercent)/2
	if score < 0 {
		score = 0
	}
	snap[db.MetricHealthScore] = score

	return snap, nil
}

// StaticProvider returns a fixed snapshot. Used in tests and as a stand-in
// when a machine-scoped collector is not wired up.
type StaticProvider struct {
	Values trigger.MetricSnapshot
}

func (p StaticProvider) Snapshot() (trigger.MetricSnapshot, error) {
	return p.Values, nil
}
