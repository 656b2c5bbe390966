// Package sysinfo reports the host facts the health endpoint surfaces
// alongside liveness: runtime architecture, CPU count, and available
// memory, useful to an operator deciding whether an unhealthy instance
// is resource-starved.
package sysinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a point-in-time read of host resource facts.
type Snapshot struct {
	GoOS                 string
	GoArch               string
	NumCPU               int
	CPUModel             string
	TotalMemoryBytes     uint64
	AvailableMemoryBytes uint64
}

// Provider reports a Snapshot of the current host.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// defaultProvider reads live host facts via gopsutil.
type defaultProvider struct{}

// NewDefaultProvider builds a Provider backed by the real host.
func NewDefaultProvider() Provider {
	return defaultProvider{}
}

func (defaultProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		GoOS:   runtime.GOOS,
		GoArch: runtime.GOARCH,
		NumCPU: runtime.NumCPU(),
	}

	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	if len(infos) > 0 {
		snap.CPUModel = infos[0].ModelName
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap.TotalMemoryBytes = vm.Total
	snap.AvailableMemoryBytes = vm.Available

	return snap, nil
}
